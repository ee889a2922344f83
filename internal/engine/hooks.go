// engine/hooks.go
package engine

import (
	"context"
	"time"
)

// Hook observes a task loop. Every method is called synchronously from the
// goroutine that owns the task.
type Hook interface {
	OnTaskStart(ctx context.Context, st *TaskStatus)
	OnTransition(ctx context.Context, st *TaskStatus, rec TransitionRecord)
	OnToolCall(ctx context.Context, st *TaskStatus, call ToolCall)
	OnToolResult(ctx context.Context, st *TaskStatus, call ToolCall, result ToolResult)
	// Retry hooks
	OnRetryAttempt(ctx context.Context, st *TaskStatus, attempt int, maxAttempts int, delay time.Duration, err error)
	OnRetryExhausted(ctx context.Context, st *TaskStatus, err error)
	// Resource hooks
	OnBudgetWarning(ctx context.Context, st *TaskStatus, w BudgetWarning)
	OnStagnation(ctx context.Context, st *TaskStatus, report StagnationReport)
	OnRecovery(ctx context.Context, st *TaskStatus, pattern FailurePattern, action RecoveryAction)
	OnDone(ctx context.Context, st *TaskStatus, out Outcome)
}

// NopHook lets you implement any hook you need.
type NopHook struct{}

func (NopHook) OnTaskStart(context.Context, *TaskStatus)                                    {}
func (NopHook) OnTransition(context.Context, *TaskStatus, TransitionRecord)                 {}
func (NopHook) OnToolCall(context.Context, *TaskStatus, ToolCall)                           {}
func (NopHook) OnToolResult(context.Context, *TaskStatus, ToolCall, ToolResult)             {}
func (NopHook) OnRetryAttempt(context.Context, *TaskStatus, int, int, time.Duration, error) {}
func (NopHook) OnRetryExhausted(context.Context, *TaskStatus, error)                        {}
func (NopHook) OnBudgetWarning(context.Context, *TaskStatus, BudgetWarning)                 {}
func (NopHook) OnStagnation(context.Context, *TaskStatus, StagnationReport)                 {}
func (NopHook) OnRecovery(context.Context, *TaskStatus, FailurePattern, RecoveryAction)     {}
func (NopHook) OnDone(context.Context, *TaskStatus, Outcome)                                {}
