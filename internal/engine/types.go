package engine

import (
	"encoding/json"
	"time"
)

// ToolCall is one (tool name, arguments) pair requested by the planner.
type ToolCall struct {
	ID   string         // Planner-assigned call ID (optional)
	Name string         // Tool name as registered
	Args map[string]any // Untyped JSON arguments
}

// ToolSchema is the model-facing description of a tool.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameter_schema"` // JSON schema for the arguments object
	ReadOnly    bool            `json:"read_only"`
}

// ToolContext is the per-task configuration handed to every tool invocation.
// It is owned by the runtime and never mutated during execution.
type ToolContext struct {
	WorkingDir    string        // Jail root for the task
	Timeout       time.Duration // Per-call timeout for process and network tools
	MaxOutputSize int           // Maximum bytes of output kept in a ToolResult
	Verbose       bool          // Include extra diagnostic detail in outputs
}

// DefaultToolContext returns the runtime defaults for a working directory.
func DefaultToolContext(workingDir string) ToolContext {
	return ToolContext{
		WorkingDir:    workingDir,
		Timeout:       30 * time.Second,
		MaxOutputSize: 100_000,
	}
}

// ToolResult is produced once per invocation attempt. It is the wire
// contract returned to the planner.
type ToolResult struct {
	Tool     string        `json:"tool"`
	Output   string        `json:"output"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Error    *string       `json:"error,omitempty"`
	ExitCode *int          `json:"exit_code,omitempty"`
}

// FailedResult builds an unsuccessful ToolResult carrying msg as its error.
func FailedResult(tool, msg string, elapsed time.Duration) ToolResult {
	return ToolResult{
		Tool:     tool,
		Success:  false,
		Duration: elapsed,
		Error:    &msg,
	}
}

// ErrorText returns the error message or "" when the result has none.
func (r ToolResult) ErrorText() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}
