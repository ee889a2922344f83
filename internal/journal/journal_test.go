package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_TaskLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	start := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, s.BeginTask(ctx, "t1", "first", 8, start))
	require.NoError(t, s.BeginTask(ctx, "t2", "second", 12, start.Add(time.Minute)))

	done := start.Add(2 * time.Minute)
	require.NoError(t, s.FinishTask(ctx, TaskRecord{
		TaskID: "t1", FinishedAt: &done, FinalState: "error", Reason: "stagnant", Iterations: 6, Budget: 10,
		Termination: "stagnation",
	}))

	tasks, err := s.RecentTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, "t2", tasks[0].TaskID, "newest first")
	assert.Nil(t, tasks[0].FinishedAt)
	assert.Equal(t, 12, tasks[0].Budget)

	t1 := tasks[1]
	assert.Equal(t, "first", t1.Goal)
	assert.True(t, t1.StartedAt.Equal(start))
	require.NotNil(t, t1.FinishedAt)
	assert.True(t, t1.FinishedAt.Equal(done))
	assert.Equal(t, "error", t1.FinalState)
	assert.Equal(t, "stagnant", t1.Reason)
	assert.Equal(t, 6, t1.Iterations)
	assert.Equal(t, 10, t1.Budget)
	assert.Equal(t, "stagnation", t1.Termination)

	limited, err := s.RecentTasks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "t2", limited[0].TaskID)
}

func TestStore_ChildRows(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	at := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, s.BeginTask(ctx, "t1", "goal", 8, at))

	require.NoError(t, s.AddTransition(ctx, TransitionRecord{TaskID: "t1", From: "init", Event: "start_session", To: "planning", At: at}))
	require.NoError(t, s.AddTransition(ctx, TransitionRecord{TaskID: "t1", From: "planning", Event: "panic", To: "error", At: at, Reason: "cancelled"}))

	code := 2
	require.NoError(t, s.AddToolCall(ctx, ToolCallRecord{
		ID: "c1", TaskID: "t1", Iteration: 1, CallID: "call_1_0", Tool: "run_command", Args: `{"command":"false"}`,
		Error: "command exited with status 2", ExitCode: &code, OutputLen: 0, Duration: 1500 * time.Millisecond, At: at,
	}))
	require.NoError(t, s.AddToolCall(ctx, ToolCallRecord{
		ID: "c2", TaskID: "t1", Iteration: 1, Tool: "read_file", Args: `{}`, Success: true, OutputLen: 42, At: at.Add(time.Second),
	}))
	require.NoError(t, s.AddEvent(ctx, EventRecord{TaskID: "t1", Iteration: 1, Kind: "recovery", Message: "timeout", At: at}))

	trs, err := s.Transitions(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, trs, 2)
	assert.Equal(t, "start_session", trs[0].Event)
	assert.Equal(t, "cancelled", trs[1].Reason)

	calls, err := s.ToolCalls(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "run_command", calls[0].Tool)
	assert.False(t, calls[0].Success)
	require.NotNil(t, calls[0].ExitCode)
	assert.Equal(t, 2, *calls[0].ExitCode)
	assert.Equal(t, 1500*time.Millisecond, calls[0].Duration)
	assert.True(t, calls[1].Success)
	assert.Nil(t, calls[1].ExitCode)
	assert.Equal(t, 42, calls[1].OutputLen)

	events, err := s.Events(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "recovery", events[0].Kind)

	none, err := s.ToolCalls(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.BeginTask(ctx, "t1", "goal", 8, time.Now()))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	tasks, err := s.RecentTasks(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestRecorder_RecordsTaskRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	rec := NewRecorder(s, nil)

	task, err := engine.NewTask(engine.TaskConfig{Goal: "say hello", Complexity: 0.1, Engine: engine.DefaultEngineConfig()}, rec)
	require.NoError(t, err)

	planner := engine.PlannerFunc(func(ctx context.Context, req engine.PlanRequest) (engine.Plan, error) {
		return engine.Plan{Calls: []engine.ToolCall{
			{ID: "a", Name: "read_file", Args: map[string]any{"path": "hello.txt"}},
			{ID: "b", Name: "run_command", Args: map[string]any{"command": "echo hi"}},
		}}, nil
	})
	verifier := engine.VerifierFunc(func(ctx context.Context, goal string, results []engine.ToolResult) (engine.Verification, error) {
		return engine.Verification{Progress: 1, Validation: 1, Done: true}, nil
	})
	zero := 0
	executor := engine.ToolExecutorFunc(func(ctx context.Context, calls []engine.ToolCall) ([]engine.ToolResult, error) {
		out := make([]engine.ToolResult, len(calls))
		for i, c := range calls {
			out[i] = engine.ToolResult{Tool: c.Name, Output: "hi\n", Success: true, Duration: time.Millisecond}
			if c.Name == "run_command" {
				out[i].ExitCode = &zero
			}
		}
		return out, nil
	})

	outcome, err := task.Run(ctx, planner, verifier, executor)
	require.NoError(t, err)
	require.True(t, outcome.Succeeded())
	require.NoError(t, rec.Err())

	tasks, err := s.RecentTasks(ctx, 5)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID(), tasks[0].TaskID)
	assert.Equal(t, "say hello", tasks[0].Goal)
	assert.Equal(t, "final", tasks[0].FinalState)
	assert.Equal(t, "success", tasks[0].Termination)
	assert.Equal(t, 1, tasks[0].Iterations)
	assert.NotNil(t, tasks[0].FinishedAt)

	trs, err := s.Transitions(ctx, task.ID())
	require.NoError(t, err)
	var events []string
	for _, tr := range trs {
		events = append(events, tr.Event)
	}
	assert.Equal(t, []string{"start_session", "tool_call", "tool_complete", "goal_achieved"}, events)

	calls, err := s.ToolCalls(ctx, task.ID())
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].CallID)
	assert.JSONEq(t, `{"path":"hello.txt"}`, calls[0].Args)
	assert.Equal(t, 1, calls[0].Iteration)
	require.NotNil(t, calls[1].ExitCode)
	assert.Equal(t, 0, *calls[1].ExitCode)
	assert.NotEqual(t, calls[0].ID, calls[1].ID)
}

func TestRecorder_KeepsWriteErrors(t *testing.T) {
	s := openTestStore(t)
	rec := NewRecorder(s, nil)
	require.NoError(t, s.Close())

	st := &engine.TaskStatus{ID: "t1", Goal: "g"}
	rec.OnTaskStart(context.Background(), st)
	rec.OnBudgetWarning(context.Background(), st, engine.BudgetWarning{Kind: engine.BudgetWarningThreshold, Message: "80% used"})

	assert.Error(t, rec.Err())
}
