package engine

import (
	"context"
	"time"
)

type Hooks []Hook

func (hs Hooks) OnTaskStart(ctx context.Context, st *TaskStatus) {
	for _, h := range hs {
		h.OnTaskStart(ctx, st)
	}
}
func (hs Hooks) OnTransition(ctx context.Context, st *TaskStatus, rec TransitionRecord) {
	for _, h := range hs {
		h.OnTransition(ctx, st, rec)
	}
}
func (hs Hooks) OnToolCall(ctx context.Context, st *TaskStatus, c ToolCall) {
	for _, h := range hs {
		h.OnToolCall(ctx, st, c)
	}
}
func (hs Hooks) OnToolResult(ctx context.Context, st *TaskStatus, c ToolCall, r ToolResult) {
	for _, h := range hs {
		h.OnToolResult(ctx, st, c, r)
	}
}
func (hs Hooks) OnRetryAttempt(ctx context.Context, st *TaskStatus, attempt int, maxAttempts int, delay time.Duration, err error) {
	for _, h := range hs {
		h.OnRetryAttempt(ctx, st, attempt, maxAttempts, delay, err)
	}
}
func (hs Hooks) OnRetryExhausted(ctx context.Context, st *TaskStatus, err error) {
	for _, h := range hs {
		h.OnRetryExhausted(ctx, st, err)
	}
}
func (hs Hooks) OnBudgetWarning(ctx context.Context, st *TaskStatus, w BudgetWarning) {
	for _, h := range hs {
		h.OnBudgetWarning(ctx, st, w)
	}
}
func (hs Hooks) OnStagnation(ctx context.Context, st *TaskStatus, r StagnationReport) {
	for _, h := range hs {
		h.OnStagnation(ctx, st, r)
	}
}
func (hs Hooks) OnRecovery(ctx context.Context, st *TaskStatus, p FailurePattern, a RecoveryAction) {
	for _, h := range hs {
		h.OnRecovery(ctx, st, p, a)
	}
}
func (hs Hooks) OnDone(ctx context.Context, st *TaskStatus, out Outcome) {
	for _, h := range hs {
		h.OnDone(ctx, st, out)
	}
}
