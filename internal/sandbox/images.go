package sandbox

import (
	"github.com/ChamsBouzaiene/hearth/internal/workspace"
)

// fallbackImage has a POSIX sh, which shell-routed commands need.
const fallbackImage = "alpine:latest"

var defaultImages = map[workspace.ProjectType]string{
	workspace.ProjectTypeGo:     "golang:alpine",
	workspace.ProjectTypeNode:   "node:alpine",
	workspace.ProjectTypePython: "python:alpine",
	workspace.ProjectTypeRust:   "rust:alpine",
}

// ImageFor picks the container image for commands run in dir. A configured
// image always wins; otherwise the toolchain image for the detected project.
func ImageFor(dir string, config Config) string {
	if config.DockerImage != "" {
		return config.DockerImage
	}
	if img, ok := defaultImages[workspace.DetectProjectType(dir)]; ok {
		return img
	}
	return fallbackImage
}
