// Package tools holds the tool registry and the runtime that dispatches tool
// calls under a fixed concurrency bound.
package tools

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
	"github.com/ChamsBouzaiene/hearth/internal/tools/execution"
	"github.com/ChamsBouzaiene/hearth/internal/tools/filesystem"
	"github.com/ChamsBouzaiene/hearth/internal/tools/system"
	"github.com/ChamsBouzaiene/hearth/internal/tools/web"
)

// ToolKind identifies a built-in implementation. The set is closed.
type ToolKind int

const (
	KindReadFile ToolKind = iota + 1
	KindListDirectory
	KindWriteFile
	KindRunCommand
	KindSystemInfo
	KindHTTPFetch
)

func (k ToolKind) String() string {
	switch k {
	case KindReadFile:
		return "read_file"
	case KindListDirectory:
		return "list_directory"
	case KindWriteFile:
		return "write_file"
	case KindRunCommand:
		return "run_command"
	case KindSystemInfo:
		return "system_info"
	case KindHTTPFetch:
		return "http_fetch"
	}
	return fmt.Sprintf("ToolKind(%d)", int(k))
}

// Tool binds a schema to the implementation that serves it.
type Tool struct {
	Kind   ToolKind
	Schema engine.ToolSchema
}

// Name returns the registered name.
func (t Tool) Name() string { return t.Schema.Name }

// ReadOnly reports whether the tool never mutates shared state.
func (t Tool) ReadOnly() bool { return t.Schema.ReadOnly }

// Builtins returns the six built-in tools.
func Builtins() []Tool {
	return []Tool{
		{Kind: KindReadFile, Schema: filesystem.ReadFileSchema},
		{Kind: KindListDirectory, Schema: filesystem.ListDirectorySchema},
		{Kind: KindWriteFile, Schema: filesystem.WriteFileSchema},
		{Kind: KindRunCommand, Schema: execution.RunCommandSchema},
		{Kind: KindSystemInfo, Schema: system.SystemInfoSchema},
		{Kind: KindHTTPFetch, Schema: web.HTTPFetchSchema},
	}
}

// Registry is an immutable name to tool map built once at startup. It is
// safe for concurrent use.
type Registry struct {
	tools   map[string]Tool
	schemas map[string]*gojsonschema.Schema
	names   []string
}

// NewRegistry registers tools. Duplicate names, unknown kinds and schemas
// that do not compile are rejected.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:   make(map[string]Tool, len(tools)),
		schemas: make(map[string]*gojsonschema.Schema, len(tools)),
	}
	for _, t := range tools {
		name := t.Name()
		if name == "" {
			return nil, fmt.Errorf("register %s: empty tool name", t.Kind)
		}
		if t.Kind < KindReadFile || t.Kind > KindHTTPFetch {
			return nil, fmt.Errorf("register %s: unknown tool kind %d", name, int(t.Kind))
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("register %s: duplicate tool name", name)
		}
		if !json.Valid(t.Schema.Parameters) {
			return nil, fmt.Errorf("register %s: parameter schema is not valid JSON", name)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(t.Schema.Parameters))
		if err != nil {
			return nil, fmt.Errorf("register %s: compile schema: %w", name, err)
		}
		r.tools[name] = t
		r.schemas[name] = schema
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// DefaultRegistry registers the built-in tools.
func DefaultRegistry() (*Registry, error) {
	return NewRegistry(Builtins()...)
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Contains reports whether name is registered.
func (r *Registry) Contains(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// ReadOnlyTools returns the sorted names of tools safe to run in parallel.
func (r *Registry) ReadOnlyTools() []string {
	return r.filter(true)
}

// WriteTools returns the sorted names of mutating tools.
func (r *Registry) WriteTools() []string {
	return r.filter(false)
}

func (r *Registry) filter(readOnly bool) []string {
	var out []string
	for _, name := range r.names {
		if r.tools[name].ReadOnly() == readOnly {
			out = append(out, name)
		}
	}
	return out
}

// Schemas returns the model-facing schemas sorted by name.
func (r *Registry) Schemas() []engine.ToolSchema {
	out := make([]engine.ToolSchema, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.tools[name].Schema)
	}
	return out
}

// Validate checks args against the tool's parameter schema. The error is a
// *engine.ToolValidationError and is never retried.
func (r *Registry) Validate(name string, args map[string]any) error {
	schema, ok := r.schemas[name]
	if !ok {
		return &engine.ToolValidationError{ToolName: name, Errors: []string{"unknown tool"}}
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return &engine.ToolValidationError{ToolName: name, Errors: []string{err.Error()}}
	}
	if !result.Valid() {
		var errorMsgs []string
		for _, desc := range result.Errors() {
			errorMsgs = append(errorMsgs, desc.String())
		}
		return &engine.ToolValidationError{ToolName: name, Errors: errorMsgs}
	}
	return nil
}
