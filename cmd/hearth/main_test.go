package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/hearth/internal/journal"
)

// runCLI executes the root command against a fresh sandbox root and an
// empty user config directory.
func runCLI(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HEARTH_SANDBOX_MODE", "host")
	t.Setenv("HEARTH_LOG_LEVEL", "error")

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--root", root, "--config-dir", filepath.Join(t.TempDir(), "cfg")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestToolsCommand(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		format  string
		nameKey func(m map[string]any) string
	}{
		{"native", func(m map[string]any) string { return m["name"].(string) }},
		{"openai", func(m map[string]any) string { return m["function"].(map[string]any)["name"].(string) }},
		{"anthropic", func(m map[string]any) string { return m["name"].(string) }},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out, err := runCLI(t, root, "tools", "--format", tt.format)
			require.NoError(t, err)

			var decoded []map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &decoded))
			var names []string
			for _, m := range decoded {
				names = append(names, tt.nameKey(m))
			}
			assert.ElementsMatch(t,
				[]string{"http_fetch", "list_directory", "read_file", "run_command", "system_info", "write_file"}, names)
		})
	}

	_, err := runCLI(t, root, "tools", "--format", "yaml")
	assert.Error(t, err)
}

func TestBudgetCommand(t *testing.T) {
	root := t.TempDir()

	out, err := runCLI(t, root, "budget", "0.5")
	require.NoError(t, err)
	assert.Contains(t, out, "allocated:   26 iterations (base 8, max 50)")

	out, err = runCLI(t, root, "budget", "0.8")
	require.NoError(t, err)
	assert.Contains(t, out, "uncertainty: 0.50")
	assert.Contains(t, out, "allocated:   44 iterations")

	_, err = runCLI(t, root, "budget", "1.5")
	assert.Error(t, err)
	_, err = runCLI(t, root, "budget", "lots")
	assert.Error(t, err)
}

func TestExecCommand(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello\n"), 0644))

	out, err := runCLI(t, root, "exec", "read_file", `{"path": "hello.txt"}`)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	out, err = runCLI(t, root, "exec", "write_file", `{"path": "sub/new.txt", "content": "abc"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 3 bytes")
	data, err := os.ReadFile(filepath.Join(root, "sub", "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	out, err = runCLI(t, root, "exec", "--json", "read_file", `{"path": "../outside.txt"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sandbox violation")
	assert.Contains(t, out, `"success": false`)

	_, err = runCLI(t, root, "exec", "read_file", `{}`)
	assert.Error(t, err, "schema validation rejects a missing path")

	_, err = runCLI(t, root, "exec", "read_file", `not json`)
	assert.Error(t, err)

	_, err = runCLI(t, root, "exec", "launch_rockets")
	assert.Error(t, err)
}

func TestJournalCommand(t *testing.T) {
	root := t.TempDir()

	out, err := runCLI(t, root, "journal")
	require.NoError(t, err)
	assert.Contains(t, out, "no tasks recorded")

	ctx := context.Background()
	store, err := journal.Open(ctx, filepath.Join(root, ".hearth", "journal.db"))
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, store.BeginTask(ctx, "task-1", "tidy the readme", 11, now))
	require.NoError(t, store.AddTransition(ctx, journal.TransitionRecord{
		TaskID: "task-1", From: "init", Event: "start_session", To: "planning", At: now,
	}))
	require.NoError(t, store.Close())

	out, err = runCLI(t, root, "journal")
	require.NoError(t, err)
	assert.Contains(t, out, "task-1")
	assert.Contains(t, out, "tidy the readme")
	assert.Contains(t, out, "running")

	out, err = runCLI(t, root, "journal", "task-1")
	require.NoError(t, err)
	assert.Contains(t, out, "init -> planning")
	assert.Contains(t, out, "start_session")

	_, err = runCLI(t, root, "journal", "task-404")
	assert.Error(t, err)
}

func TestRunCommand_RequiresEndpoint(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("HEARTH_API_KEY", "")
	t.Setenv("HEARTH_BASE_URL", "")
	t.Setenv("HEARTH_PROVIDER", "openai")

	_, err := runCLI(t, t.TempDir(), "run", "--no-journal", "do", "something")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	_, err = runCLI(t, t.TempDir(), "run", "--complexity", "2", "goal")
	assert.Error(t, err)
}
