package filesystem

import (
	"encoding/json"
	"fmt"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
	"github.com/ChamsBouzaiene/hearth/internal/sandbox"
	"github.com/ChamsBouzaiene/hearth/internal/tools/args"
)

// ReadFileSchema describes read_file to the planner.
var ReadFileSchema = engine.ToolSchema{
	Name:        "read_file",
	Description: "Reads a file inside the working directory and returns its content. Paths are relative to the working directory.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "minLength": 1, "description": "File path relative to the working directory"}
		},
		"required": ["path"]
	}`),
	ReadOnly: true,
}

// ReadFileArgs are the decoded arguments of read_file.
type ReadFileArgs struct {
	Path string
}

// ParseReadFileArgs extracts read_file arguments; a missing path is empty.
func ParseReadFileArgs(m map[string]any) ReadFileArgs {
	return ReadFileArgs{Path: args.String(m, "path", "")}
}

// ReadFile returns the content of a.Path.
func ReadFile(fsys FileSystem, jail *sandbox.Jail, a ReadFileArgs) (string, error) {
	target, err := jail.Verify(a.Path)
	if err != nil {
		return "", err
	}

	info, err := fsys.Stat(target)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", a.Path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("read %s: is a directory", a.Path)
	}

	content, err := fsys.ReadFile(target)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", a.Path, err)
	}
	return string(content), nil
}
