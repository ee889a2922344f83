// Package filesystem implements the file tools: read_file and list_directory
// (read-only) and write_file (mutating). Every path goes through the sandbox
// jail before the disk is touched.
package filesystem

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileSystem is the disk as the file tools see it. Paths passed in have
// already been verified against the jail.
type FileSystem interface {
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	ReadDir(name string) ([]os.DirEntry, error)
	WalkDir(root string, fn fs.WalkDirFunc) error
}

// OSFileSystem works on the real disk. WriteFile replaces the target
// atomically: concurrent readers see the old content or the new, never a
// partial file.
type OSFileSystem struct{}

// NewOSFileSystem creates a new OSFileSystem.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

func (*OSFileSystem) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

func (*OSFileSystem) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

func (*OSFileSystem) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

func (*OSFileSystem) ReadDir(name string) ([]os.DirEntry, error) { return os.ReadDir(name) }

func (*OSFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error { return filepath.WalkDir(root, fn) }

// WriteFile writes to a temp file beside name and renames it into place.
func (*OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpName, name); err != nil {
		return err
	}
	committed = true
	return nil
}
