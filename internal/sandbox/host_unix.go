//go:build !windows
// +build !windows

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

const defaultCmdTimeout = 30 * time.Second

// HostRunner runs commands directly on the host machine. The only
// confinement is the working directory, which callers verify against the jail.
type HostRunner struct {
	config Config
}

// NewHostRunner returns a host runner using config's default timeout.
func NewHostRunner(config Config) *HostRunner {
	return &HostRunner{config: config}
}

// RunCmd runs name in dir. On timeout the whole process group is killed and
// the result is marked TimedOut; the returned error is then the context's.
func (r *HostRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		if r.config.CmdTimeout > 0 {
			timeout = r.config.CmdTimeout
		} else {
			timeout = defaultCmdTimeout
		}
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	// Create a new process group so we can kill all child processes on cancel
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return Result{Code: -1}, err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-cctx.Done():
			// Kill the entire process group (negative PID)
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	res := Result{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}

	if cerr := cctx.Err(); cerr != nil {
		res.Code = -1
		res.TimedOut = errors.Is(cerr, context.DeadlineExceeded)
		return res, cerr
	}

	if waitErr != nil {
		res.Code = 1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.Code = exitErr.ExitCode()
			// A non-zero exit is a result, not a runner failure.
			return res, nil
		}
		return res, waitErr
	}

	return res, nil
}
