package filesystem

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
	"github.com/ChamsBouzaiene/hearth/internal/sandbox"
	"github.com/ChamsBouzaiene/hearth/internal/tools/args"
)

// WriteFileSchema describes write_file to the planner.
var WriteFileSchema = engine.ToolSchema{
	Name:        "write_file",
	Description: "Writes content to a file inside the working directory, creating parent directories as needed. Overwrites existing files.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "minLength": 1, "description": "File path relative to the working directory"},
			"content": {"type": "string", "description": "Full file content to write"}
		},
		"required": ["path", "content"]
	}`),
	ReadOnly: false,
}

// WriteFileArgs are the decoded arguments of write_file.
type WriteFileArgs struct {
	Path    string
	Content string
}

// ParseWriteFileArgs extracts write_file arguments; missing fields are empty.
func ParseWriteFileArgs(m map[string]any) WriteFileArgs {
	return WriteFileArgs{
		Path:    args.String(m, "path", ""),
		Content: args.String(m, "content", ""),
	}
}

// WriteFile verifies the target, creates its parent directories, verifies the
// target again now that the parents exist, and only then writes.
func WriteFile(fsys FileSystem, jail *sandbox.Jail, a WriteFileArgs) (string, error) {
	target, err := jail.Verify(a.Path)
	if err != nil {
		return "", err
	}

	if err := fsys.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create parent of %s: %w", a.Path, err)
	}

	// A parent created above may be reached through a link planted meanwhile.
	target, err = jail.Verify(a.Path)
	if err != nil {
		return "", err
	}

	if err := fsys.WriteFile(target, []byte(a.Content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", a.Path, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(a.Content), a.Path), nil
}
