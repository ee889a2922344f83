package engine

import "context"

// ToolExecutor is the task loop's view of the tool runtime.
type ToolExecutor interface {
	// Validate checks call arguments before dispatch. Failures are structural
	// and never retried.
	Validate(call ToolCall) error
	// ExecuteBatch runs calls and returns one result per call, in order. The
	// error is reserved for cancellation of ctx.
	ExecuteBatch(ctx context.Context, calls []ToolCall) ([]ToolResult, error)
}

// ToolExecutorFunc adapts a function to ToolExecutor with no validation.
type ToolExecutorFunc func(ctx context.Context, calls []ToolCall) ([]ToolResult, error)

func (f ToolExecutorFunc) Validate(ToolCall) error { return nil }

func (f ToolExecutorFunc) ExecuteBatch(ctx context.Context, calls []ToolCall) ([]ToolResult, error) {
	return f(ctx, calls)
}
