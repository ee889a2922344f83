package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
)

const containerWorkdir = "/workspace"

// DockerRunner runs commands in isolated, network-less containers with the
// jail root bind-mounted as the working directory.
type DockerRunner struct {
	client *client.Client
	config Config
}

// NewDockerRunner creates a new Docker-based runner.
func NewDockerRunner(ctx context.Context, config Config) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon not accessible: %w", err)
	}

	return &DockerRunner{client: cli, config: config}, nil
}

// Close releases the Docker client.
func (r *DockerRunner) Close() error { return r.client.Close() }

// RunCmd runs a command in an isolated Docker container.
func (r *DockerRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		if r.config.CmdTimeout > 0 {
			timeout = r.config.CmdTimeout
		} else {
			timeout = defaultCmdTimeout
		}
	}

	img := ImageFor(dir, r.config)
	if err := r.ensureImage(ctx, img); err != nil {
		return Result{}, fmt.Errorf("failed to ensure image %s: %w", img, err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get absolute path: %w", err)
	}

	resources, err := r.resources()
	if err != nil {
		return Result{}, err
	}

	containerConfig := &container.Config{
		Image:           img,
		Cmd:             append([]string{name}, args...),
		WorkingDir:      containerWorkdir,
		User:            "1000:1000",
		Env:             []string{"HOME=/tmp"},
		NetworkDisabled: true,
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: absDir,
				Target: containerWorkdir,
			},
		},
		Resources:      resources,
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		ReadonlyRootfs: true,
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=100m",
		},
	}

	createResp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create container: %w", err)
	}
	containerID := createResp.ID

	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true})
	}()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.client.ContainerStart(execCtx, containerID, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("failed to start container: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(execCtx, containerID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case <-execCtx.Done():
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer killCancel()
		_ = r.client.ContainerKill(killCtx, containerID, "SIGKILL")
		return Result{Code: -1, TimedOut: true}, execCtx.Err()
	case err := <-errCh:
		if err != nil {
			return Result{}, fmt.Errorf("container wait error: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to read container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return Result{}, fmt.Errorf("failed to demultiplex container logs: %w", err)
	}

	return Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Code:   int(exitCode),
	}, nil
}

func (r *DockerRunner) resources() (container.Resources, error) {
	memory, err := parseMemory(r.config.Memory)
	if err != nil {
		return container.Resources{}, err
	}
	cpus, err := parseCPU(r.config.CPU)
	if err != nil {
		return container.Resources{}, err
	}
	return container.Resources{
		Memory:   memory,
		NanoCPUs: int64(cpus * 1e9),
		Ulimits: []*units.Ulimit{
			{Name: "nofile", Soft: 1024, Hard: 1024},
		},
	}, nil
}

// ensureImage checks if the image exists locally, and pulls it if not.
func (r *DockerRunner) ensureImage(ctx context.Context, imageName string) error {
	if _, err := r.client.ImageInspect(ctx, imageName); err == nil {
		return nil
	}

	reader, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	// Drain the pull output (required for pull to complete)
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// parseMemory parses a memory limit such as "1g" or "512m" into bytes.
func parseMemory(memStr string) (int64, error) {
	memStr = strings.TrimSpace(memStr)
	if memStr == "" {
		return 1 << 30, nil
	}
	n, err := units.RAMInBytes(memStr)
	if err != nil {
		return 0, fmt.Errorf("invalid memory limit %q: %w", memStr, err)
	}
	return n, nil
}

// parseCPU parses a CPU limit such as "2" or "1.5".
func parseCPU(cpuStr string) (float64, error) {
	cpuStr = strings.TrimSpace(cpuStr)
	if cpuStr == "" {
		return 2, nil
	}
	v, err := strconv.ParseFloat(cpuStr, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid cpu limit %q", cpuStr)
	}
	return v, nil
}
