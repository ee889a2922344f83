package execution

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
	"github.com/ChamsBouzaiene/hearth/internal/sandbox"
)

// MockRunner is a mock implementation of sandbox.Runner.
type MockRunner struct {
	RunCmdFunc func(ctx context.Context, dir, name string, args []string, timeout time.Duration) (sandbox.Result, error)
}

func (m *MockRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
	if m.RunCmdFunc != nil {
		return m.RunCmdFunc(ctx, dir, name, args, timeout)
	}
	return sandbox.Result{}, nil
}

type runCall struct {
	dir     string
	name    string
	args    []string
	timeout time.Duration
}

func recordingRunner(res sandbox.Result, err error) (*MockRunner, *[]runCall) {
	var calls []runCall
	return &MockRunner{
		RunCmdFunc: func(ctx context.Context, dir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
			calls = append(calls, runCall{dir: dir, name: name, args: args, timeout: timeout})
			return res, err
		},
	}, &calls
}

func newJail(t *testing.T) *sandbox.Jail {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	jail, err := sandbox.NewJail(root)
	require.NoError(t, err)
	return jail
}

func TestArgv(t *testing.T) {
	tests := []struct {
		command  string
		wantName string
		wantArgs []string
	}{
		{"go test ./...", "go", []string{"test", "./..."}},
		{"  ls   -la  ", "ls", []string{"-la"}},
		{"pwd", "pwd", []string{}},
		{"echo hi | wc -c", "sh", []string{"-c", "echo hi | wc -c"}},
		{"echo $HOME", "sh", []string{"-c", "echo $HOME"}},
		{"ls *.go", "sh", []string{"-c", "ls *.go"}},
		{"echo 'a b'", "sh", []string{"-c", "echo 'a b'"}},
		{"make && make install", "sh", []string{"-c", "make && make install"}},
		{"FOO=1 env", "sh", []string{"-c", "FOO=1 env"}},
		{"cat <in", "sh", []string{"-c", "cat <in"}},
		{"echo a\necho b", "sh", []string{"-c", "echo a\necho b"}},
		{"", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			name, argv := Argv(tt.command)
			assert.Equal(t, tt.wantName, name)
			if len(tt.wantArgs) == 0 {
				assert.Empty(t, argv)
			} else {
				assert.Equal(t, tt.wantArgs, argv)
			}
		})
	}
}

func TestRunCommand(t *testing.T) {
	jail := newJail(t)

	tests := []struct {
		name        string
		args        RunCommandArgs
		mockResult  sandbox.Result
		mockErr     error
		wantDir     string
		wantName    string
		wantTimeout time.Duration
		wantOK      bool
		wantFailure string
		wantOutput  string
	}{
		{
			name:        "Plain command succeeds",
			args:        ParseRunCommandArgs(map[string]any{"command": "go version"}),
			mockResult:  sandbox.Result{Stdout: "go version go1.24\n"},
			wantDir:     jail.Root(),
			wantName:    "go",
			wantTimeout: 30 * time.Second,
			wantOK:      true,
			wantOutput:  "go version go1.24\n",
		},
		{
			name:        "Working dir and timeout are honoured",
			args:        ParseRunCommandArgs(map[string]any{"command": "ls", "working_dir": "sub", "timeout_seconds": 7.0}),
			wantDir:     filepath.Join(jail.Root(), "sub"),
			wantName:    "ls",
			wantTimeout: 7 * time.Second,
			wantOK:      true,
		},
		{
			name:        "Non-zero exit is a failed result",
			args:        ParseRunCommandArgs(map[string]any{"command": "grep -r missing ."}),
			mockResult:  sandbox.Result{Stderr: "nothing found\n", Code: 1},
			wantDir:     jail.Root(),
			wantName:    "grep",
			wantTimeout: 30 * time.Second,
			wantFailure: "command exited with status 1",
			wantOutput:  "[stderr]\nnothing found\n",
		},
		{
			name:        "Timeout is a failed result",
			args:        ParseRunCommandArgs(map[string]any{"command": "sleep 10", "timeout_seconds": 1.0}),
			mockResult:  sandbox.Result{Code: -1, TimedOut: true},
			mockErr:     context.DeadlineExceeded,
			wantDir:     jail.Root(),
			wantName:    "sleep",
			wantTimeout: time.Second,
			wantFailure: "command timed out after 1s",
		},
		{
			name:        "Shell command",
			args:        ParseRunCommandArgs(map[string]any{"command": "echo hi > out.txt"}),
			wantDir:     jail.Root(),
			wantName:    "sh",
			wantTimeout: 30 * time.Second,
			wantOK:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, calls := recordingRunner(tt.mockResult, tt.mockErr)

			res, err := RunCommand(context.Background(), runner, jail, tt.args, 30*time.Second)
			require.NoError(t, err)
			require.Len(t, *calls, 1)

			call := (*calls)[0]
			assert.Equal(t, tt.wantDir, call.dir)
			assert.Equal(t, tt.wantName, call.name)
			assert.Equal(t, tt.wantTimeout, call.timeout)
			assert.Equal(t, tt.wantOK, res.Succeeded())
			assert.Equal(t, tt.wantFailure, res.Failure())
			assert.Equal(t, tt.wantOutput, res.Output())
		})
	}
}

func TestRunCommandRejects(t *testing.T) {
	jail := newJail(t)
	runner, calls := recordingRunner(sandbox.Result{}, nil)

	_, err := RunCommand(context.Background(), runner, jail, RunCommandArgs{Command: "   "}, time.Second)
	var kerr *engine.Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, engine.KindInvalidArguments, kerr.Kind)

	_, err = RunCommand(context.Background(), runner, jail, RunCommandArgs{Command: "ls", WorkingDir: "../.."}, time.Second)
	assert.ErrorIs(t, err, sandbox.ErrOutsideJail)

	assert.Empty(t, *calls)
}

func TestRunCommandRunnerError(t *testing.T) {
	jail := newJail(t)
	boom := errors.New("executable file not found")
	runner, _ := recordingRunner(sandbox.Result{Code: -1}, boom)

	_, err := RunCommand(context.Background(), runner, jail, RunCommandArgs{Command: "nope"}, time.Second)
	assert.ErrorIs(t, err, boom)
}

func TestResolveTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, ResolveTimeout(0, 30*time.Second))
	assert.Equal(t, 2*time.Second, ResolveTimeout(2, 30*time.Second))
	assert.Equal(t, 30*time.Second, ResolveTimeout(0, 0))
	assert.Equal(t, 5*time.Minute, ResolveTimeout(3600, time.Second))
}

func TestCommandResultOutput(t *testing.T) {
	r := CommandResult{Stdout: "out", Stderr: "err"}
	assert.Equal(t, "out\n[stderr]\nerr", r.Output())
	assert.Equal(t, "", CommandResult{}.Output())
}
