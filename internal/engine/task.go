package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// PlanRequest is everything the planner sees for one iteration.
type PlanRequest struct {
	TaskID      string
	Goal        string
	Iteration   int
	Remaining   int          // Iterations left in the budget, including this one
	Strategy    Strategy     // Approach currently in force
	Simplify    bool         // Recovery asked for a simpler approach
	Parallelism int          // Calls beyond this are executed in later waves
	Previous    []ToolResult // Results of the last iteration, in call order
}

// Plan is the planner's answer. Done with no calls means the goal is met.
type Plan struct {
	Calls      []ToolCall
	Done       bool
	Complexity float64 // Reassessed complexity in (0,1]; 0 leaves the budget alone
}

// Planner is the model-facing collaborator that decides the next tool calls.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (Plan, error)
}

// Verification scores an iteration. Progress and Validation are in [0,1].
type Verification struct {
	Progress   float64
	Validation float64
	Done       bool
}

// Verifier judges the results of an iteration against the goal.
type Verifier interface {
	Verify(ctx context.Context, goal string, results []ToolResult) (Verification, error)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(ctx context.Context, req PlanRequest) (Plan, error)

func (f PlannerFunc) Plan(ctx context.Context, req PlanRequest) (Plan, error) { return f(ctx, req) }

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, goal string, results []ToolResult) (Verification, error)

func (f VerifierFunc) Verify(ctx context.Context, goal string, results []ToolResult) (Verification, error) {
	return f(ctx, goal, results)
}

// TaskStatus is the live view of a task handed to hooks.
type TaskStatus struct {
	ID        string
	Goal      string
	Iteration int
	State     TaskState
	Strategy  Strategy
	Budget    int
}

// Outcome summarizes a finished task.
type Outcome struct {
	TaskID      string
	Goal        string
	FinalState  TaskState
	Reason      string // Why the task ended in Error; empty on Final
	Iterations  int
	Termination TerminationCondition
	History     []TransitionRecord
}

// Succeeded reports whether the task reached Final.
func (o Outcome) Succeeded() bool { return o.FinalState == StateFinal }

// TaskConfig describes one task.
type TaskConfig struct {
	Goal       string
	Complexity float64 // Initial complexity estimate in [0,1]
	Engine     EngineConfig
}

// Task owns the state machine and the budget, convergence and recovery state
// of a single goal. It is driven by Run and is not safe for concurrent use.
type Task struct {
	id     string
	config TaskConfig
	hooks  Hooks

	machine     *Machine
	budget      *BudgetManager
	convergence *ConvergenceDetector
	recovery    *Recovery
	retrier     *Retrier

	status   TaskStatus
	simplify bool
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewTask validates cfg and returns a task in Init.
func NewTask(cfg TaskConfig, hooks ...Hook) (*Task, error) {
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	t := &Task{
		id:          uuid.NewString(),
		config:      cfg,
		hooks:       Hooks(hooks),
		machine:     NewMachine(),
		budget:      NewBudgetManager(cfg.Engine.Budget),
		convergence: NewConvergenceDetector(cfg.Engine.Convergence),
		recovery:    NewRecovery(cfg.Engine.Recovery),
		retrier:     NewRetrier(cfg.Engine.Retry),
		sleep:       sleepContext,
	}
	t.status = TaskStatus{ID: t.id, Goal: cfg.Goal, State: StateInit, Strategy: StrategyDirect}
	return t, nil
}

// ID returns the task identifier.
func (t *Task) ID() string { return t.id }

// State returns the current lifecycle state.
func (t *Task) State() TaskState { return t.machine.Current() }

// fire applies event and reports the transition. An invalid transition here
// means the loop itself is wrong.
func (t *Task) fire(ctx context.Context, event StateEvent, reason string) error {
	rec, err := t.machine.FireWithReason(event, reason)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvariant, &TaskContextError{
			Err: err, TaskID: t.id, Iteration: t.status.Iteration, State: t.machine.Current(), Operation: "transition",
		})
	}
	t.status.State = rec.To
	t.hooks.OnTransition(ctx, &t.status, rec)
	return nil
}

func (t *Task) abort(ctx context.Context, reason string) {
	rec := t.machine.Abort(reason)
	t.status.State = rec.To
	t.hooks.OnTransition(ctx, &t.status, rec)
}

// Run drives the task to Final or Error. The returned error is non-nil only
// for a broken invariant; every other failure is reported in the Outcome.
func (t *Task) Run(ctx context.Context, planner Planner, verifier Verifier, tools ToolExecutor) (Outcome, error) {
	t.status.Budget = t.budget.CalculateBudget(t.config.Complexity)
	t.hooks.OnTaskStart(ctx, &t.status)

	if err := t.fire(ctx, EventStartSession, ""); err != nil {
		return t.outcome(TerminationCondition{}), err
	}

	var (
		previous []ToolResult
		term     TerminationCondition
	)

	for !t.machine.IsTerminal() {
		if err := ctx.Err(); err != nil {
			t.abort(ctx, fmt.Sprintf("cancelled: %v", err))
			break
		}
		if t.budget.IsExhausted() {
			term = TerminationCondition{Reason: TerminationBudgetExhausted, Message: "iteration budget spent"}
			t.abort(ctx, fmt.Sprintf("iteration budget exhausted after %d iterations", t.budget.Used()))
			break
		}

		t.budget.IncrementIteration()
		t.status.Iteration = t.budget.Used()
		if w := t.budget.CheckExhaustionWarning(); w != nil {
			t.hooks.OnBudgetWarning(ctx, &t.status, *w)
			if w.Kind == BudgetWarningThreshold {
				if action := t.handleSymptom(ctx, Symptom{Kind: SymptomBudgetPressure}); action.Kind == ActionAbort {
					t.abort(ctx, "recovery gave up: "+action.Reason)
					break
				}
			}
		}

		// Planning
		plan, err := t.plan(ctx, planner, previous)
		if err != nil {
			if ferr := t.fire(ctx, EventUnrecoverableError, fmt.Sprintf("planning failed: %v", err)); ferr != nil {
				return t.outcome(term), ferr
			}
			break
		}
		if plan.Complexity > 0 {
			allocated, w := t.budget.AdjustBudgetRuntime(plan.Complexity)
			t.status.Budget = allocated
			if w != nil {
				t.hooks.OnBudgetWarning(ctx, &t.status, *w)
			}
		}
		if plan.Done && len(plan.Calls) == 0 {
			term = TerminationCondition{Reason: TerminationSuccess, Message: "planner reported the goal met"}
			if err := t.fire(ctx, EventGoalAchieved, ""); err != nil {
				return t.outcome(term), err
			}
			break
		}

		event := EventToolCall
		if len(plan.Calls) == 0 {
			event = EventPlanComplete
		}
		if err := t.fire(ctx, event, ""); err != nil {
			return t.outcome(term), err
		}

		// Executing
		results, err := t.execute(ctx, tools, plan.Calls)
		if err != nil {
			t.abort(ctx, fmt.Sprintf("cancelled: %v", err))
			break
		}
		previous = results

		if action, ok := t.recoverFromResults(ctx, results); ok && action.Kind == ActionAbort {
			if err := t.fire(ctx, EventToolFailure, "recovery gave up: "+action.Reason); err != nil {
				return t.outcome(term), err
			}
			break
		}
		if err := t.fire(ctx, EventToolComplete, ""); err != nil {
			return t.outcome(term), err
		}

		// Verifying
		v, err := verifier.Verify(ctx, t.config.Goal, results)
		if err != nil {
			if ferr := t.fire(ctx, EventValidationFailure, fmt.Sprintf("verification failed: %v", err)); ferr != nil {
				return t.outcome(term), ferr
			}
			break
		}

		t.convergence.RecordProgress(v.Progress, t.status.Iteration)
		report := t.convergence.DetectStagnation()
		if report.Status == StagnationStagnant {
			t.hooks.OnStagnation(ctx, &t.status, report)
		}

		term = t.convergence.CheckTermination(v.Progress, v.Validation, t.budget.Used(), t.budget.Allocated())
		if v.Done || term.Reason == TerminationSuccess ||
			(v.Progress > t.config.Engine.Convergence.SuccessProgress && v.Validation >= t.recovery.ValidationThreshold()) {
			term = TerminationCondition{Reason: TerminationSuccess, Message: "goal verified"}
			if err := t.fire(ctx, EventGoalAchieved, ""); err != nil {
				return t.outcome(term), err
			}
			break
		}

		switch term.Reason {
		case TerminationStagnation:
			t.abort(ctx, term.Message)
			continue
		case TerminationBudgetExhausted:
			t.abort(ctx, fmt.Sprintf("iteration budget exhausted after %d iterations", t.budget.Used()))
			continue
		}

		var action RecoveryAction
		var acted bool
		if report.Status == StagnationStagnant {
			action, acted = t.handleSymptom(ctx, Symptom{Kind: SymptomStagnation}), true
		}
		if !acted && v.Progress > t.config.Engine.Convergence.SuccessProgress {
			// Work looks finished but does not validate.
			action, acted = t.handleSymptom(ctx, Symptom{Kind: SymptomValidationFailure}), true
		}
		if acted && action.Kind == ActionAbort {
			t.abort(ctx, "recovery gave up: "+action.Reason)
			continue
		}

		if err := t.fire(ctx, EventContinueIteration, ""); err != nil {
			return t.outcome(term), err
		}
	}

	out := t.outcome(term)
	t.hooks.OnDone(ctx, &t.status, out)
	return out, nil
}

func (t *Task) plan(ctx context.Context, planner Planner, previous []ToolResult) (Plan, error) {
	req := PlanRequest{
		TaskID:      t.id,
		Goal:        t.config.Goal,
		Iteration:   t.status.Iteration,
		Remaining:   t.budget.GetRemaining() + 1,
		Strategy:    t.recovery.CurrentStrategy(),
		Simplify:    t.simplify,
		Parallelism: t.recovery.Parallelism(),
		Previous:    previous,
	}
	t.simplify = false

	retrier := *t.retrier
	retrier.OnRetry = func(attempt int, delay time.Duration, err error) {
		t.hooks.OnRetryAttempt(ctx, &t.status, attempt, t.retrier.Policy.MaxRetries, delay, err)
	}
	plan, err := RetryWithPolicy(ctx, &retrier, func(ctx context.Context) (Plan, error) {
		return planner.Plan(ctx, req)
	})
	if IsRetryExhausted(err) {
		t.hooks.OnRetryExhausted(ctx, &t.status, err)
	}
	return plan, err
}

// execute validates calls, runs the valid ones in waves no wider than the
// current parallelism, and returns results in call order.
func (t *Task) execute(ctx context.Context, tools ToolExecutor, calls []ToolCall) ([]ToolResult, error) {
	results := make([]ToolResult, len(calls))
	var runnable []int
	for i, call := range calls {
		t.hooks.OnToolCall(ctx, &t.status, call)
		if err := tools.Validate(call); err != nil {
			results[i] = FailedResult(call.Name, err.Error(), 0)
			continue
		}
		runnable = append(runnable, i)
	}

	width := t.recovery.Parallelism()
	if width < 1 {
		width = 1
	}
	for start := 0; start < len(runnable); start += width {
		end := int(math.Min(float64(start+width), float64(len(runnable))))
		wave := make([]ToolCall, 0, end-start)
		for _, idx := range runnable[start:end] {
			wave = append(wave, calls[idx])
		}
		out, err := tools.ExecuteBatch(ctx, wave)
		if err != nil {
			return nil, err
		}
		if len(out) != len(wave) {
			return nil, fmt.Errorf("%w: executor returned %d results for %d calls", ErrInvariant, len(out), len(wave))
		}
		for j, idx := range runnable[start:end] {
			results[idx] = out[j]
		}
	}

	for i, call := range calls {
		t.hooks.OnToolResult(ctx, &t.status, call, results[i])
	}
	return results, nil
}

// recoverFromResults feeds every symptom into the pattern history and acts on
// the most frequent one.
func (t *Task) recoverFromResults(ctx context.Context, results []ToolResult) (RecoveryAction, bool) {
	var worst *FailurePattern
	for _, r := range results {
		s, ok := SymptomForResult(r)
		if !ok {
			continue
		}
		p := t.recovery.DetectPattern(s)
		if worst == nil || p.Frequency > worst.Frequency ||
			(p.Frequency == worst.Frequency && p.Symptom.Severity() > worst.Symptom.Severity()) {
			worst = &p
		}
	}
	if worst == nil {
		return RecoveryAction{}, false
	}
	return t.act(ctx, *worst), true
}

func (t *Task) handleSymptom(ctx context.Context, s Symptom) RecoveryAction {
	return t.act(ctx, t.recovery.DetectPattern(s))
}

// act selects and applies a recovery action. Abort is left to the caller,
// which knows which state the machine is in.
func (t *Task) act(ctx context.Context, p FailurePattern) RecoveryAction {
	action := t.recovery.SelectRecoveryAction(p)
	t.hooks.OnRecovery(ctx, &t.status, p, action)

	switch action.Kind {
	case ActionRetryWithBackoff:
		_ = t.sleep(ctx, action.Delay)
	case ActionRotateStrategy:
		t.status.Strategy = action.Strategy
	case ActionReassessComplexity:
		allocated, w := t.budget.AdjustBudgetRuntime(math.Min(1, t.budget.Complexity()+0.2))
		t.status.Budget = allocated
		if w != nil {
			t.hooks.OnBudgetWarning(ctx, &t.status, *w)
		}
	case ActionSimplifyApproach:
		t.simplify = true
	}
	return action
}

func (t *Task) outcome(term TerminationCondition) Outcome {
	out := Outcome{
		TaskID:      t.id,
		Goal:        t.config.Goal,
		FinalState:  t.machine.Current(),
		Iterations:  t.budget.Used(),
		Termination: term,
		History:     t.machine.History(),
	}
	if out.FinalState == StateError {
		out.Reason = t.machine.Reason()
		if out.Reason == "" {
			out.Reason = "task failed"
		}
	}
	return out
}
