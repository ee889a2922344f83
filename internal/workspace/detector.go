// Package workspace inspects a sandbox root to tell what kind of project it
// holds. The result picks container images and is reported by system_info.
package workspace

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectType represents the type of project.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeRust    ProjectType = "rust"
	ProjectTypeUnknown ProjectType = "unknown"
)

// manifests are checked in order; the first one present decides.
var manifests = []struct {
	file string
	kind ProjectType
}{
	{"go.mod", ProjectTypeGo},
	{"package.json", ProjectTypeNode},
	{"pyproject.toml", ProjectTypePython},
	{"requirements.txt", ProjectTypePython},
	{"Cargo.toml", ProjectTypeRust},
}

var extensions = map[string]ProjectType{
	".go":  ProjectTypeGo,
	".ts":  ProjectTypeNode,
	".tsx": ProjectTypeNode,
	".js":  ProjectTypeNode,
	".jsx": ProjectTypeNode,
	".py":  ProjectTypePython,
	".rs":  ProjectTypeRust,
}

// minFilesForGuess is how many top-level source files an extension needs
// before it decides the project type on its own.
const minFilesForGuess = 3

// DetectProjectType checks manifests first and falls back to counting
// source file extensions in root.
func DetectProjectType(root string) ProjectType {
	if m := Manifest(root); m != "" {
		for _, entry := range manifests {
			if entry.file == m {
				return entry.kind
			}
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return ProjectTypeUnknown
	}

	counts := make(map[ProjectType]int)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if kind, ok := extensions[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			counts[kind]++
		}
	}

	best, bestCount := ProjectTypeUnknown, 0
	for _, kind := range []ProjectType{ProjectTypeGo, ProjectTypeNode, ProjectTypePython, ProjectTypeRust} {
		if counts[kind] > bestCount {
			best, bestCount = kind, counts[kind]
		}
	}
	if bestCount >= minFilesForGuess {
		return best
	}
	return ProjectTypeUnknown
}

// Manifest returns the name of the first known manifest file in root, or "".
func Manifest(root string) string {
	for _, entry := range manifests {
		if _, err := os.Stat(filepath.Join(root, entry.file)); err == nil {
			return entry.file
		}
	}
	return ""
}
