package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJail(t *testing.T) (*Jail, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.go"), []byte("package main\n"), 0o644))
	j, err := NewJail(dir)
	require.NoError(t, err)
	return j, j.Root()
}

func TestNewJailRequiresExistingDir(t *testing.T) {
	_, err := NewJail(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	_, err = NewJail(f)
	assert.Error(t, err)
}

func TestVerifyAccepts(t *testing.T) {
	j, root := newTestJail(t)
	tests := []struct {
		name      string
		candidate string
		want      string
	}{
		{"relative file", "src/main.go", filepath.Join(root, "src", "main.go")},
		{"root itself", ".", root},
		{"absolute inside", filepath.Join(root, "src"), filepath.Join(root, "src")},
		{"dot dot staying inside", "src/nested/../main.go", filepath.Join(root, "src", "main.go")},
		{"nonexistent write target", "src/new/dir/file.txt", filepath.Join(root, "src", "new", "dir", "file.txt")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := j.Verify(tt.candidate)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifyRejectsEscapes(t *testing.T) {
	j, root := newTestJail(t)
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "nothing"), filepath.Join(root, "dangling")))

	for _, candidate := range []string{
		"../../../etc/passwd",
		"/etc/passwd",
		"a/../../..",
		"./../../",
		"src/../../outside.txt",
		"escape",
		"escape/file.txt",
		"dangling",
		"",
	} {
		t.Run(candidate, func(t *testing.T) {
			_, err := j.Verify(candidate)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrOutsideJail))
			var ve *ViolationError
			require.ErrorAs(t, err, &ve)
			assert.False(t, ve.Retryable())
			assert.Contains(t, err.Error(), "sandbox violation")
		})
	}
}

func TestVerifyRejectsSiblingWithSharedPrefix(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "work")
	sibling := filepath.Join(parent, "work-other")
	require.NoError(t, os.Mkdir(root, 0o755))
	require.NoError(t, os.Mkdir(sibling, 0o755))

	j, err := NewJail(root)
	require.NoError(t, err)
	_, err = j.Verify(sibling)
	assert.ErrorIs(t, err, ErrOutsideJail)
}

func TestVerifyResultIsInsideRoot(t *testing.T) {
	j, root := newTestJail(t)
	for _, c := range []string{"src", "src/nested", "x/y/z", "src/./nested/.."} {
		got, err := j.Verify(c)
		require.NoError(t, err)
		rel, err := filepath.Rel(root, got)
		require.NoError(t, err)
		assert.NotContains(t, rel, "..", c)
	}
}
