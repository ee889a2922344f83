package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/docker/client"
)

// Mode represents the sandbox execution mode.
type Mode string

const (
	// ModeDocker uses Docker containers for isolation.
	ModeDocker Mode = "docker"
	// ModeHost runs commands directly on the host (no isolation beyond the jail).
	ModeHost Mode = "host"
	// ModeAuto selects Docker if available, otherwise falls back to host.
	ModeAuto Mode = "auto"
)

// ParseMode maps a config string to a Mode. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeDocker, ModeHost:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown sandbox mode %q (want host, docker or auto)", s)
}

// Config holds configuration for sandbox execution.
type Config struct {
	Mode        Mode
	DockerImage string        // Custom Docker image override
	CPU         string        // CPU limit (e.g., "2")
	Memory      string        // Memory limit (e.g., "1g")
	CmdTimeout  time.Duration // Default command timeout
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Mode:       ModeAuto,
		CPU:        "2",
		Memory:     "1g",
		CmdTimeout: defaultCmdTimeout,
	}
}

// IsDockerAvailable pings the daemon named by the environment.
func IsDockerAvailable(ctx context.Context) bool {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return false
	}
	defer cli.Close()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err = cli.Ping(ctx)
	return err == nil
}

// NewRunner creates a runner for config.Mode:
// - "docker": Use Docker (error if unavailable)
// - "host": Use host executor
// - "auto": Use Docker if available, fallback to host
func NewRunner(ctx context.Context, config Config, logger *slog.Logger) (Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch config.Mode {
	case ModeDocker:
		return NewDockerRunner(ctx, config)

	case ModeHost:
		logger.Debug("using host runner; commands are confined to the sandbox root only by working directory")
		return NewHostRunner(config), nil

	case ModeAuto, "":
		if IsDockerAvailable(ctx) {
			dockerRunner, err := NewDockerRunner(ctx, config)
			if err == nil {
				return dockerRunner, nil
			}
			logger.Warn("docker available but runner creation failed, falling back to host", "error", err)
			return NewHostRunner(config), nil
		}
		logger.Warn("docker not available, using host runner")
		return NewHostRunner(config), nil

	default:
		return nil, fmt.Errorf("unknown runner mode: %s", config.Mode)
	}
}
