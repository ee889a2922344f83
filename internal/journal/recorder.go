package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
)

// Recorder is an engine.Hook that writes everything it observes to a Store.
// Hooks cannot fail the task, so write errors are logged and kept for Err.
type Recorder struct {
	engine.NopHook

	store  *Store
	logger *slog.Logger
	now    func() time.Time
	errs   []error
}

// NewRecorder returns a hook writing to store.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, now: time.Now}
}

// Err joins every write failure seen so far.
func (r *Recorder) Err() error { return errors.Join(r.errs...) }

func (r *Recorder) check(ctx context.Context, err error) {
	if err == nil {
		return
	}
	r.errs = append(r.errs, err)
	r.logger.WarnContext(ctx, "journal write failed", "error", err)
}

// Writes outlive cancellation so an aborted task still gets its final rows.
func detach(ctx context.Context) context.Context { return context.WithoutCancel(ctx) }

func (r *Recorder) OnTaskStart(ctx context.Context, st *engine.TaskStatus) {
	r.check(ctx, r.store.BeginTask(detach(ctx), st.ID, st.Goal, st.Budget, r.now()))
}

func (r *Recorder) OnTransition(ctx context.Context, st *engine.TaskStatus, rec engine.TransitionRecord) {
	r.check(ctx, r.store.AddTransition(detach(ctx), TransitionRecord{
		TaskID: st.ID,
		From:   string(rec.From),
		Event:  string(rec.Event),
		To:     string(rec.To),
		At:     rec.At,
		Reason: rec.Reason,
	}))
}

func (r *Recorder) OnToolResult(ctx context.Context, st *engine.TaskStatus, call engine.ToolCall, res engine.ToolResult) {
	args, err := json.Marshal(call.Args)
	if err != nil {
		args = []byte(fmt.Sprintf("%q", fmt.Sprint(call.Args)))
	}
	r.check(ctx, r.store.AddToolCall(detach(ctx), ToolCallRecord{
		ID:        uuid.NewString(),
		TaskID:    st.ID,
		Iteration: st.Iteration,
		CallID:    call.ID,
		Tool:      call.Name,
		Args:      string(args),
		Success:   res.Success,
		Error:     res.ErrorText(),
		ExitCode:  res.ExitCode,
		OutputLen: len(res.Output),
		Duration:  res.Duration,
		At:        r.now(),
	}))
}

func (r *Recorder) event(ctx context.Context, st *engine.TaskStatus, kind, msg string) {
	r.check(ctx, r.store.AddEvent(detach(ctx), EventRecord{
		TaskID:    st.ID,
		Iteration: st.Iteration,
		Kind:      kind,
		Message:   msg,
		At:        r.now(),
	}))
}

func (r *Recorder) OnRetryExhausted(ctx context.Context, st *engine.TaskStatus, err error) {
	r.event(ctx, st, "retry_exhausted", err.Error())
}

func (r *Recorder) OnBudgetWarning(ctx context.Context, st *engine.TaskStatus, w engine.BudgetWarning) {
	r.event(ctx, st, "budget_"+string(w.Kind), w.Message)
}

func (r *Recorder) OnStagnation(ctx context.Context, st *engine.TaskStatus, rep engine.StagnationReport) {
	r.event(ctx, st, "stagnation", fmt.Sprintf("velocity %.4f, %d stagnant checks", rep.Velocity.Velocity, rep.IterationsStagnant))
}

func (r *Recorder) OnRecovery(ctx context.Context, st *engine.TaskStatus, p engine.FailurePattern, a engine.RecoveryAction) {
	r.event(ctx, st, "recovery", fmt.Sprintf("%s x%d -> %s: %s", p.Symptom.String(), p.Frequency, a.Kind, a.Reason))
}

func (r *Recorder) OnDone(ctx context.Context, st *engine.TaskStatus, out engine.Outcome) {
	finished := r.now()
	r.check(ctx, r.store.FinishTask(detach(ctx), TaskRecord{
		TaskID:      out.TaskID,
		FinishedAt:  &finished,
		FinalState:  string(out.FinalState),
		Reason:      out.Reason,
		Iterations:  out.Iterations,
		Budget:      st.Budget,
		Termination: string(out.Termination.Reason),
	}))
}
