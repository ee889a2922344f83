// Package sandbox confines tool side effects: a path jail for file access and
// runners that execute processes on the host or inside a container.
package sandbox

import (
	"context"
	"time"
)

// Result captures output of a command.
type Result struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Runner defines the interface for running commands in a sandboxed environment.
type Runner interface {
	// RunCmd runs a command in dir with a timeout.
	// - ctx: base context for cancellation
	// - dir: working directory, already verified against the jail
	// - name: executable name, e.g. "go" or "sh"
	// - args: arguments, e.g. []string{"test", "./..."}
	// - timeout: optional timeout (<=0 uses the configured default)
	RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error)

func (f RunnerFunc) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error) {
	return f(ctx, dir, name, args, timeout)
}
