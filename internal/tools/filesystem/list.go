package filesystem

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
	"github.com/ChamsBouzaiene/hearth/internal/sandbox"
	"github.com/ChamsBouzaiene/hearth/internal/tools/args"
)

const (
	defaultListLimit    = 1000
	defaultListMaxDepth = -1
)

// DefaultIgnorePatterns apply when the caller passes none.
var DefaultIgnorePatterns = []string{".git", "node_modules"}

// ListDirectorySchema describes list_directory to the planner.
var ListDirectorySchema = engine.ToolSchema{
	Name:        "list_directory",
	Description: "Lists entries of a directory inside the working directory. Directories end with '/'. Supports recursive listing and gitignore-style ignore patterns.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Directory relative to the working directory. Default: '.'"},
			"recursive": {"type": "boolean", "description": "List subdirectories too. Default: false"},
			"max_depth": {"type": "integer", "minimum": -1, "description": "Maximum depth for recursive listing, 0 is direct children. Default: -1 (unlimited)"},
			"limit": {"type": "integer", "minimum": 1, "description": "Maximum number of entries. Default: 1000"},
			"ignore_patterns": {"type": "array", "items": {"type": "string"}, "description": "gitignore-style patterns. Default: ['.git', 'node_modules']"}
		}
	}`),
	ReadOnly: true,
}

// ListDirectoryArgs are the decoded arguments of list_directory.
type ListDirectoryArgs struct {
	Path           string
	Recursive      bool
	MaxDepth       int
	Limit          int
	IgnorePatterns []string
}

// ParseListDirectoryArgs extracts list_directory arguments with defaults.
func ParseListDirectoryArgs(m map[string]any) ListDirectoryArgs {
	a := ListDirectoryArgs{
		Path:           args.String(m, "path", "."),
		Recursive:      args.Bool(m, "recursive", false),
		MaxDepth:       args.Int(m, "max_depth", defaultListMaxDepth),
		Limit:          args.Int(m, "limit", defaultListLimit),
		IgnorePatterns: args.Strings(m, "ignore_patterns", DefaultIgnorePatterns),
	}
	if a.Path == "" {
		a.Path = "."
	}
	if a.Limit <= 0 {
		a.Limit = defaultListLimit
	}
	return a
}

// Listing is the JSON output of list_directory.
type Listing struct {
	Path      string   `json:"path"`
	Entries   []string `json:"entries"`
	Truncated bool     `json:"truncated"`
}

// ListDirectory lists a.Path. Entry paths are relative to the jail root and
// use forward slashes.
func ListDirectory(fsys FileSystem, jail *sandbox.Jail, a ListDirectoryArgs) (string, error) {
	dir, err := jail.Verify(a.Path)
	if err != nil {
		return "", err
	}
	info, err := fsys.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", a.Path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("list %s: not a directory", a.Path)
	}

	var matcher *gitignore.GitIgnore
	if len(a.IgnorePatterns) > 0 {
		matcher = gitignore.CompileIgnoreLines(a.IgnorePatterns...)
	}
	root := jail.Root()
	ignored := func(rel string) bool {
		return matcher != nil && matcher.MatchesPath(rel)
	}

	listing := Listing{Path: a.Path, Entries: make([]string, 0)}
	add := func(full string, isDir bool) bool {
		rel, err := filepath.Rel(root, full)
		if err != nil {
			return false
		}
		rel = filepath.ToSlash(rel)
		if ignored(rel) {
			return false
		}
		if len(listing.Entries) >= a.Limit {
			listing.Truncated = true
			return false
		}
		if isDir {
			rel += "/"
		}
		listing.Entries = append(listing.Entries, rel)
		return true
	}

	if a.Recursive {
		err = fsys.WalkDir(dir, func(p string, d fs.DirEntry, werr error) error {
			if werr != nil {
				if p == dir {
					return werr
				}
				return nil
			}
			if p == dir {
				return nil
			}
			if listing.Truncated {
				return filepath.SkipAll
			}
			if a.MaxDepth >= 0 {
				fromStart, rerr := filepath.Rel(dir, p)
				if rerr == nil && strings.Count(fromStart, string(filepath.Separator)) > a.MaxDepth {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
			}
			if !add(p, d.IsDir()) && d.IsDir() && !listing.Truncated {
				return filepath.SkipDir
			}
			return nil
		})
		if err != nil && !errors.Is(err, filepath.SkipAll) {
			return "", fmt.Errorf("list %s: %w", a.Path, err)
		}
	} else {
		entries, err := fsys.ReadDir(dir)
		if err != nil {
			return "", fmt.Errorf("list %s: %w", a.Path, err)
		}
		for _, entry := range entries {
			add(filepath.Join(dir, entry.Name()), entry.IsDir())
			if listing.Truncated {
				break
			}
		}
	}

	out, err := json.Marshal(listing)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
