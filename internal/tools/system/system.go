// Package system implements system_info, a read-only report of the host and
// the working directory.
package system

import (
	"encoding/json"
	"os"
	"runtime"
	"time"

	units "github.com/docker/go-units"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
	"github.com/ChamsBouzaiene/hearth/internal/sandbox"
	"github.com/ChamsBouzaiene/hearth/internal/workspace"
)

// SystemInfoSchema describes system_info to the planner.
var SystemInfoSchema = engine.ToolSchema{
	Name:        "system_info",
	Description: "Reports the operating system, kernel, CPU count, free disk space and the detected project type of the working directory.",
	Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	ReadOnly:    true,
}

// KernelInfo comes from uname where available.
type KernelInfo struct {
	Name    string `json:"name,omitempty"`
	Release string `json:"release,omitempty"`
	Version string `json:"version,omitempty"`
	Machine string `json:"machine,omitempty"`
}

// DiskInfo describes the filesystem holding the working directory.
type DiskInfo struct {
	Total      string `json:"total"`
	Free       string `json:"free"`
	TotalBytes uint64 `json:"total_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
}

// Info is the JSON output of system_info.
type Info struct {
	OS          string                `json:"os"`
	Arch        string                `json:"arch"`
	Hostname    string                `json:"hostname,omitempty"`
	Kernel      *KernelInfo           `json:"kernel,omitempty"`
	CPUs        int                   `json:"cpus"`
	GoVersion   string                `json:"go_version"`
	WorkingDir  string                `json:"working_dir"`
	ProjectType workspace.ProjectType `json:"project_type"`
	Disk        *DiskInfo             `json:"disk,omitempty"`
	Time        string                `json:"time"`
}

// Collect gathers Info. Kernel and disk details are best effort.
func Collect(jail *sandbox.Jail) Info {
	root := jail.Root()
	info := Info{
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		CPUs:        runtime.NumCPU(),
		GoVersion:   runtime.Version(),
		WorkingDir:  root,
		ProjectType: workspace.DetectProjectType(root),
		Time:        time.Now().UTC().Format(time.RFC3339),
	}
	if host, err := os.Hostname(); err == nil {
		info.Hostname = host
	}
	info.Kernel = kernelInfo()
	if total, free, ok := diskUsage(root); ok {
		info.Disk = &DiskInfo{
			Total:      units.HumanSize(float64(total)),
			Free:       units.HumanSize(float64(free)),
			TotalBytes: total,
			FreeBytes:  free,
		}
	}
	return info
}

// SystemInfo renders Collect as indented JSON.
func SystemInfo(jail *sandbox.Jail) (string, error) {
	out, err := json.MarshalIndent(Collect(jail), "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
