// engine/hook_logger.go
package engine

import (
	"context"
	"log/slog"
	"time"
)

// LoggerHook writes task events through a structured logger.
type LoggerHook struct{ L *slog.Logger }

func (h LoggerHook) OnTaskStart(ctx context.Context, st *TaskStatus) {
	h.L.InfoContext(ctx, "task started", "task", st.ID, "goal", st.Goal, "budget", st.Budget)
}
func (h LoggerHook) OnTransition(ctx context.Context, st *TaskStatus, rec TransitionRecord) {
	attrs := []any{"task", st.ID, "iter", st.Iteration, "from", rec.From, "event", rec.Event, "to", rec.To}
	if rec.Reason != "" {
		attrs = append(attrs, "reason", rec.Reason)
	}
	h.L.DebugContext(ctx, "transition", attrs...)
}
func (h LoggerHook) OnToolCall(ctx context.Context, st *TaskStatus, c ToolCall) {
	h.L.DebugContext(ctx, "tool call", "task", st.ID, "tool", c.Name, "args", c.Args)
}
func (h LoggerHook) OnToolResult(ctx context.Context, st *TaskStatus, c ToolCall, r ToolResult) {
	if !r.Success {
		h.L.WarnContext(ctx, "tool failed", "task", st.ID, "tool", c.Name, "error", r.ErrorText(), "duration", r.Duration)
		return
	}
	preview := r.Output
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	h.L.DebugContext(ctx, "tool result", "task", st.ID, "tool", c.Name, "duration", r.Duration, "output", preview)
}
func (h LoggerHook) OnRetryAttempt(ctx context.Context, st *TaskStatus, attempt int, maxAttempts int, delay time.Duration, err error) {
	h.L.WarnContext(ctx, "retry", "task", st.ID, "attempt", attempt, "max", maxAttempts, "delay", delay, "error", err)
}
func (h LoggerHook) OnRetryExhausted(ctx context.Context, st *TaskStatus, err error) {
	h.L.ErrorContext(ctx, "retries exhausted", "task", st.ID, "error", err)
}
func (h LoggerHook) OnBudgetWarning(ctx context.Context, st *TaskStatus, w BudgetWarning) {
	h.L.WarnContext(ctx, w.Message, "task", st.ID, "kind", w.Kind, "used", w.Used, "allocated", w.Allocated)
}
func (h LoggerHook) OnStagnation(ctx context.Context, st *TaskStatus, r StagnationReport) {
	h.L.WarnContext(ctx, "progress stagnant", "task", st.ID, "velocity", r.Velocity.Velocity, "streak", r.IterationsStagnant)
}
func (h LoggerHook) OnRecovery(ctx context.Context, st *TaskStatus, p FailurePattern, a RecoveryAction) {
	h.L.InfoContext(ctx, "recovery", "task", st.ID, "symptom", p.Symptom.String(), "frequency", p.Frequency,
		"action", a.Kind, "reason", a.Reason)
}
func (h LoggerHook) OnDone(ctx context.Context, st *TaskStatus, out Outcome) {
	level := slog.LevelInfo
	if out.FinalState == StateError {
		level = slog.LevelError
	}
	h.L.Log(ctx, level, "task done", "task", out.TaskID, "state", out.FinalState, "iterations", out.Iterations,
		"reason", out.Reason)
}
