package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
	"github.com/ChamsBouzaiene/hearth/internal/sandbox"
	"github.com/ChamsBouzaiene/hearth/internal/tools/filesystem"
)

var fastRetry = engine.RetryPolicy{
	MaxRetries:   3,
	InitialDelay: time.Millisecond,
	MaxDelay:     2 * time.Millisecond,
	Multiplier:   2,
}

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

// countingFS counts reads on top of the real filesystem.
type countingFS struct {
	*filesystem.OSFileSystem
	reads atomic.Int32
	err   error
}

func (c *countingFS) ReadFile(name string) ([]byte, error) {
	c.reads.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.OSFileSystem.ReadFile(name)
}

func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	reg, err := DefaultRegistry()
	require.NoError(t, err)
	opts = append([]Option{WithRetryPolicy(fastRetry), WithRunner(&MockRunner{})}, opts...)
	rt, err := NewRuntime(reg, engine.DefaultToolContext(t.TempDir()), opts...)
	require.NoError(t, err)
	return rt
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestRuntimeWriteThenRead(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	res, err := rt.Execute(ctx, "write_file", map[string]any{"path": "notes/todo.txt", "content": "ship it"})
	require.NoError(t, err)
	require.True(t, res.Success, res.ErrorText())
	assert.Equal(t, "write_file", res.Tool)

	res, err = rt.Execute(ctx, "read_file", map[string]any{"path": "notes/todo.txt"})
	require.NoError(t, err)
	require.True(t, res.Success, res.ErrorText())
	assert.Equal(t, "ship it", res.Output)
	assert.Nil(t, res.Error)

	res, err = rt.Execute(ctx, "list_directory", nil)
	require.NoError(t, err)
	require.True(t, res.Success, res.ErrorText())
	assert.Contains(t, res.Output, `"notes/"`)
}

func TestRuntimeUnknownTool(t *testing.T) {
	rt := newTestRuntime(t)

	res, err := rt.Execute(context.Background(), "delete_file", map[string]any{"path": "x"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "delete_file", res.Tool)
	assert.Equal(t, "unknown tool: delete_file", res.ErrorText())
}

func TestRuntimeSandboxViolation(t *testing.T) {
	rt := newTestRuntime(t)

	for _, tool := range []string{"read_file", "write_file", "list_directory"} {
		t.Run(tool, func(t *testing.T) {
			res, err := rt.Execute(context.Background(), tool, map[string]any{"path": "../../etc/passwd", "content": "x"})
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Contains(t, res.ErrorText(), "sandbox violation")

			s, ok := engine.SymptomForResult(res)
			require.True(t, ok)
			assert.Equal(t, engine.SymptomSecurityViolation, s.Kind)
		})
	}
}

func TestRuntimeRunCommand(t *testing.T) {
	var gotDir, gotName string
	var gotArgs []string
	runner := &MockRunner{
		RunCmdFunc: func(ctx context.Context, dir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
			gotDir, gotName, gotArgs = dir, name, args
			return sandbox.Result{Stdout: "FAIL\n", Code: 2}, nil
		},
	}
	rt := newTestRuntime(t, WithRunner(runner))

	res, err := rt.Execute(context.Background(), "run_command", map[string]any{"command": "go test ./..."})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 2, *res.ExitCode)
	assert.Equal(t, "command exited with status 2", res.ErrorText())
	assert.Equal(t, "FAIL\n", res.Output)

	assert.Equal(t, rt.Context().WorkingDir, gotDir)
	assert.Equal(t, "go", gotName)
	assert.Equal(t, []string{"test", "./..."}, gotArgs)
}

func TestRuntimeMutatingToolsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	runner := &MockRunner{
		RunCmdFunc: func(ctx context.Context, dir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
			calls.Add(1)
			return sandbox.Result{Code: -1}, errors.New("connection reset")
		},
	}
	rt := newTestRuntime(t, WithRunner(runner))

	res, err := rt.Execute(context.Background(), "run_command", map[string]any{"command": "make"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRuntimeFilesystemErrorsAreNotRetried(t *testing.T) {
	fs := &countingFS{OSFileSystem: filesystem.NewOSFileSystem(), err: errors.New("i/o error")}
	rt := newTestRuntime(t, WithFileSystem(fs))
	writeFiles(t, rt.Context().WorkingDir, map[string]string{"a.txt": "a"})

	res, err := rt.Execute(context.Background(), "read_file", map[string]any{"path": "a.txt"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, int32(1), fs.reads.Load())
}

func TestRuntimeFetchRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flaky":
			if hits.Add(1) <= 2 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, "ok")
		case "/down":
			hits.Add(1)
			http.Error(w, "down", http.StatusInternalServerError)
		default:
			hits.Add(1)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	rt := newTestRuntime(t, WithHTTPClient(srv.Client()))
	ctx := context.Background()

	res, err := rt.Execute(ctx, "http_fetch", map[string]any{"url": srv.URL + "/flaky"})
	require.NoError(t, err)
	assert.True(t, res.Success, res.ErrorText())
	assert.True(t, strings.HasSuffix(res.Output, "ok"))
	assert.Equal(t, int32(3), hits.Load())

	hits.Store(0)
	res, err = rt.Execute(ctx, "http_fetch", map[string]any{"url": srv.URL + "/down"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorText(), "max retries exceeded after 4 attempts")
	assert.Equal(t, int32(4), hits.Load())

	hits.Store(0)
	res, err = rt.Execute(ctx, "http_fetch", map[string]any{"url": srv.URL + "/missing"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRuntimeCapsOutput(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)
	tc := engine.DefaultToolContext(t.TempDir())
	tc.MaxOutputSize = 10
	rt, err := NewRuntime(reg, tc, WithRunner(&MockRunner{}))
	require.NoError(t, err)
	writeFiles(t, rt.Context().WorkingDir, map[string]string{"big.txt": strings.Repeat("0123456789", 5)})

	res, err := rt.Execute(context.Background(), "read_file", map[string]any{"path": "big.txt"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "0123456789\n[output truncated: 10 of 50 bytes shown]", res.Output)
}

func TestCapOutputRuneBoundary(t *testing.T) {
	s := "ab" + "é" + "cd" // é is two bytes
	got := capOutput(s, 3)
	assert.True(t, strings.HasPrefix(got, "ab\n"), got)
	assert.Equal(t, "short", capOutput("short", 100))
	assert.Equal(t, s, capOutput(s, 0))
}

func TestRuntimeIgnorePatterns(t *testing.T) {
	rt := newTestRuntime(t, WithIgnorePatterns([]string{"*.tmp"}))
	writeFiles(t, rt.Context().WorkingDir, map[string]string{"a.txt": "a", "b.tmp": "b"})

	res, err := rt.Execute(context.Background(), "list_directory", map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, res.Output, `"a.txt"`)
	assert.NotContains(t, res.Output, `"b.tmp"`)

	res, err = rt.Execute(context.Background(), "list_directory", map[string]any{"ignore_patterns": []any{"*.txt"}})
	require.NoError(t, err)
	assert.NotContains(t, res.Output, `"a.txt"`)
	assert.Contains(t, res.Output, `"b.tmp"`)
}

func TestExecuteBatchOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	runner := &MockRunner{
		RunCmdFunc: func(ctx context.Context, dir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return sandbox.Result{Stdout: name}, nil
		},
	}
	rt := newTestRuntime(t, WithRunner(runner))
	writeFiles(t, rt.Context().WorkingDir, map[string]string{"a.txt": "A", "b.txt": "B"})

	calls := []engine.ToolCall{
		{Name: "read_file", Args: map[string]any{"path": "a.txt"}},
		{Name: "read_file", Args: map[string]any{"path": "b.txt"}},
		{Name: "run_command", Args: map[string]any{"command": "first"}},
		{Name: "nope"},
		{Name: "run_command", Args: map[string]any{"command": "second"}},
		{Name: "read_file", Args: map[string]any{"path": "a.txt"}},
	}
	results, err := rt.ExecuteBatch(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, results, len(calls))

	assert.Equal(t, "A", results[0].Output)
	assert.Equal(t, "B", results[1].Output)
	assert.Equal(t, "first", results[2].Output)
	assert.False(t, results[3].Success)
	assert.Equal(t, "second", results[4].Output)
	assert.Equal(t, "A", results[5].Output)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestExecuteBatchParallelReadsMatchSequential(t *testing.T) {
	rt := newTestRuntime(t)
	writeFiles(t, rt.Context().WorkingDir, map[string]string{
		"a.txt":     "alpha",
		"b.txt":     "bravo",
		"dir/c.txt": "charlie",
	})
	calls := []engine.ToolCall{
		{Name: "read_file", Args: map[string]any{"path": "a.txt"}},
		{Name: "list_directory", Args: map[string]any{"recursive": true}},
		{Name: "read_file", Args: map[string]any{"path": "dir/c.txt"}},
		{Name: "read_file", Args: map[string]any{"path": "b.txt"}},
	}

	parallel, err := rt.ExecuteBatch(context.Background(), calls)
	require.NoError(t, err)

	for _, order := range [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}} {
		for _, i := range order {
			res, err := rt.Execute(context.Background(), calls[i].Name, calls[i].Args)
			require.NoError(t, err)
			assert.Equal(t, parallel[i].Success, res.Success)
			assert.Equal(t, parallel[i].Output, res.Output)
		}
	}
}

func TestExecuteBatchBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		inFlight.Add(-1)
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()
	rt := newTestRuntime(t, WithHTTPClient(srv.Client()))

	calls := make([]engine.ToolCall, 10)
	for i := range calls {
		calls[i] = engine.ToolCall{Name: "http_fetch", Args: map[string]any{"url": fmt.Sprintf("%s/%d", srv.URL, i)}}
	}
	results, err := rt.ExecuteBatch(context.Background(), calls)
	require.NoError(t, err)
	for _, res := range results {
		assert.True(t, res.Success, res.ErrorText())
	}
	assert.LessOrEqual(t, peak.Load(), int32(MaxConcurrency))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestRuntimeValidate(t *testing.T) {
	rt := newTestRuntime(t)
	assert.NoError(t, rt.Validate(engine.ToolCall{Name: "read_file", Args: map[string]any{"path": "a"}}))
	assert.Error(t, rt.Validate(engine.ToolCall{Name: "read_file"}))
}

func TestNewRuntimeMissingRoot(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)
	_, err = NewRuntime(reg, engine.DefaultToolContext(filepath.Join(t.TempDir(), "missing")))
	assert.Error(t, err)
}
