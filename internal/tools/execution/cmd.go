// Package execution implements run_command, the process-execution tool.
//
// Commands are split on whitespace and run as argv. A command containing any
// shell metacharacter is passed to "sh -c" instead; the caller owns the
// safety of such commands.
package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
	"github.com/ChamsBouzaiene/hearth/internal/sandbox"
	"github.com/ChamsBouzaiene/hearth/internal/tools/args"
)

const (
	maxRunCmdTimeout = 5 * time.Minute
	shellPath        = "sh"
)

// shellMetacharacters route a command through the shell when any is present.
const shellMetacharacters = "|&;<>()$`\\\"'*?[]#~=%{}!\n"

// RunCommandSchema describes run_command to the planner.
var RunCommandSchema = engine.ToolSchema{
	Name:        "run_command",
	Description: "Runs a command in the working directory and returns its stdout and stderr. Plain commands run without a shell; commands using pipes, redirects, quotes, globs or variables run under sh -c.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "minLength": 1, "description": "Command line to run, e.g. 'go test ./...'"},
			"timeout_seconds": {"type": "integer", "minimum": 1, "maximum": 300, "description": "Seconds before the command is killed. Default: the task timeout"},
			"working_dir": {"type": "string", "description": "Directory relative to the working directory. Default: '.'"}
		},
		"required": ["command"]
	}`),
	ReadOnly: false,
}

// RunCommandArgs are the decoded arguments of run_command.
type RunCommandArgs struct {
	Command        string
	TimeoutSeconds int
	WorkingDir     string
}

// ParseRunCommandArgs extracts run_command arguments with defaults.
func ParseRunCommandArgs(m map[string]any) RunCommandArgs {
	return RunCommandArgs{
		Command:        args.String(m, "command", ""),
		TimeoutSeconds: args.Int(m, "timeout_seconds", 0),
		WorkingDir:     args.String(m, "working_dir", "."),
	}
}

// NeedsShell reports whether command contains a shell metacharacter.
func NeedsShell(command string) bool {
	return strings.ContainsAny(command, shellMetacharacters)
}

// Argv splits command into the executable and its arguments. Commands that
// need a shell become sh -c <command>.
func Argv(command string) (name string, argv []string) {
	if NeedsShell(command) {
		return shellPath, []string{"-c", command}
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// CommandResult is the outcome of a command that ran.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Timeout  time.Duration
}

// Succeeded reports a zero exit within the timeout.
func (r CommandResult) Succeeded() bool { return r.ExitCode == 0 && !r.TimedOut }

// Output renders stdout followed by a labelled stderr section.
func (r CommandResult) Output() string {
	var b strings.Builder
	b.WriteString(r.Stdout)
	if r.Stderr != "" {
		if b.Len() > 0 && !strings.HasSuffix(r.Stdout, "\n") {
			b.WriteByte('\n')
		}
		b.WriteString("[stderr]\n")
		b.WriteString(r.Stderr)
	}
	return b.String()
}

// Failure describes why the command did not succeed, or "" if it did.
func (r CommandResult) Failure() string {
	switch {
	case r.TimedOut:
		return fmt.Sprintf("command timed out after %s", r.Timeout)
	case r.ExitCode != 0:
		return fmt.Sprintf("command exited with status %d", r.ExitCode)
	}
	return ""
}

// ResolveTimeout picks the per-call timeout: the requested seconds if
// positive, else def, capped at five minutes.
func ResolveTimeout(seconds int, def time.Duration) time.Duration {
	timeout := def
	if seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if timeout > maxRunCmdTimeout {
		timeout = maxRunCmdTimeout
	}
	return timeout
}

// RunCommand runs a.Command through runner inside the jail. A non-zero exit
// or a timeout is a CommandResult, not an error; errors mean the command
// could not be run at all.
func RunCommand(ctx context.Context, runner sandbox.Runner, jail *sandbox.Jail, a RunCommandArgs, defaultTimeout time.Duration) (CommandResult, error) {
	command := strings.TrimSpace(a.Command)
	if command == "" {
		return CommandResult{}, engine.Errorf(engine.KindInvalidArguments, RunCommandSchema.Name, "empty command")
	}

	wd := a.WorkingDir
	if wd == "" {
		wd = "."
	}
	dir, err := jail.Verify(wd)
	if err != nil {
		return CommandResult{}, err
	}

	timeout := ResolveTimeout(a.TimeoutSeconds, defaultTimeout)
	name, argv := Argv(command)

	res, err := runner.RunCmd(ctx, dir, name, argv, timeout)
	out := CommandResult{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.Code,
		TimedOut: res.TimedOut,
		Timeout:  timeout,
	}
	if res.TimedOut || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
		out.TimedOut = true
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("run %s: %w", name, err)
	}
	return out, nil
}
