package engine

import (
	"fmt"
	"time"
)

// TaskState is the lifecycle position of a task.
type TaskState string

const (
	StateInit      TaskState = "init"
	StatePlanning  TaskState = "planning"
	StateExecuting TaskState = "executing"
	StateVerifying TaskState = "verifying"
	StateFinal     TaskState = "final"
	StateError     TaskState = "error"
)

// IsTerminal returns true for Final and Error, which absorb every event.
func (s TaskState) IsTerminal() bool {
	return s == StateFinal || s == StateError
}

// AllStates lists every state in lifecycle order.
func AllStates() []TaskState {
	return []TaskState{StateInit, StatePlanning, StateExecuting, StateVerifying, StateFinal, StateError}
}

// StateEvent is an input to the state machine.
type StateEvent string

const (
	EventStartSession       StateEvent = "start_session"
	EventPlanComplete       StateEvent = "plan_complete"
	EventToolCall           StateEvent = "tool_call"
	EventGoalAchieved       StateEvent = "goal_achieved"
	EventToolComplete       StateEvent = "tool_complete"
	EventToolFailure        StateEvent = "tool_failure"
	EventContinueIteration  StateEvent = "continue_iteration"
	EventValidationFailure  StateEvent = "validation_failure"
	EventUnrecoverableError StateEvent = "unrecoverable_error"
	EventPanic              StateEvent = "panic"
)

// AllEvents lists every event.
func AllEvents() []StateEvent {
	return []StateEvent{
		EventStartSession, EventPlanComplete, EventToolCall, EventGoalAchieved,
		EventToolComplete, EventToolFailure, EventContinueIteration,
		EventValidationFailure, EventUnrecoverableError, EventPanic,
	}
}

type edge struct {
	from  TaskState
	event StateEvent
}

// transitions holds every non-absorbing, non-Panic edge.
var transitions = map[edge]TaskState{
	{StateInit, EventStartSession}:           StatePlanning,
	{StatePlanning, EventPlanComplete}:       StateExecuting,
	{StatePlanning, EventToolCall}:           StateExecuting,
	{StatePlanning, EventGoalAchieved}:       StateFinal,
	{StatePlanning, EventUnrecoverableError}: StateError,
	{StateExecuting, EventToolComplete}:      StateVerifying,
	{StateExecuting, EventToolFailure}:       StateError,
	{StateVerifying, EventContinueIteration}: StatePlanning,
	{StateVerifying, EventGoalAchieved}:      StateFinal,
	{StateVerifying, EventValidationFailure}: StateError,
}

// InvalidTransitionError reports an event that has no edge from the current state.
type InvalidTransitionError struct {
	From  TaskState
	Event StateEvent
	Valid []StateEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: state %s does not accept event %s (valid: %v)", e.From, e.Event, e.Valid)
}

// Retryable is always false; the same input yields the same rejection.
func (e *InvalidTransitionError) Retryable() bool { return false }

// Transition is the pure transition function. It has no hidden inputs.
func Transition(state TaskState, event StateEvent) (TaskState, error) {
	if state.IsTerminal() {
		return state, nil
	}
	if event == EventPanic {
		return StateError, nil
	}
	if next, ok := transitions[edge{state, event}]; ok {
		return next, nil
	}
	return state, &InvalidTransitionError{From: state, Event: event, Valid: ValidEvents(state)}
}

// ValidEvents enumerates the events accepted from state, in AllEvents order.
func ValidEvents(state TaskState) []StateEvent {
	var out []StateEvent
	for _, ev := range AllEvents() {
		if state.IsTerminal() || ev == EventPanic {
			out = append(out, ev)
			continue
		}
		if _, ok := transitions[edge{state, ev}]; ok {
			out = append(out, ev)
		}
	}
	return out
}

// TransitionRecord is one entry of a machine's history.
type TransitionRecord struct {
	From   TaskState
	Event  StateEvent
	To     TaskState
	At     time.Time
	Reason string // Set for Abort and terminal failures
}

// Machine tracks the single active state of one task. Only the owning task
// loop calls Fire.
type Machine struct {
	state   TaskState
	reason  string
	history []TransitionRecord
	now     func() time.Time
}

// NewMachine returns a machine in Init.
func NewMachine() *Machine {
	return &Machine{state: StateInit, now: time.Now}
}

// Current returns the active state.
func (m *Machine) Current() TaskState { return m.state }

// IsTerminal reports whether the machine has reached Final or Error.
func (m *Machine) IsTerminal() bool { return m.state.IsTerminal() }

// ValidEvents lists the events accepted from the current state.
func (m *Machine) ValidEvents() []StateEvent { return ValidEvents(m.state) }

// Reason is the human-readable cause recorded when the task failed.
func (m *Machine) Reason() string { return m.reason }

// History returns a copy of the transition log.
func (m *Machine) History() []TransitionRecord {
	out := make([]TransitionRecord, len(m.history))
	copy(out, m.history)
	return out
}

// Fire applies event. On an invalid event the state is unchanged.
func (m *Machine) Fire(event StateEvent) (TransitionRecord, error) {
	return m.fire(event, "")
}

// FireWithReason applies event and records reason if the machine enters Error.
func (m *Machine) FireWithReason(event StateEvent, reason string) (TransitionRecord, error) {
	return m.fire(event, reason)
}

// Abort fires the modeled Panic event. The recorded reason is what separates
// an orchestrated abort from ErrInvariant.
func (m *Machine) Abort(reason string) TransitionRecord {
	rec, _ := m.fire(EventPanic, reason)
	return rec
}

func (m *Machine) fire(event StateEvent, reason string) (TransitionRecord, error) {
	from := m.state
	to, err := Transition(from, event)
	if err != nil {
		return TransitionRecord{}, err
	}
	rec := TransitionRecord{From: from, Event: event, To: to, At: m.now()}
	if to == StateError && !from.IsTerminal() {
		if reason == "" {
			reason = string(event)
		}
		m.reason = reason
		rec.Reason = reason
	}
	m.state = to
	m.history = append(m.history, rec)
	return rec, nil
}
