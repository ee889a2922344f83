// Package journal records task runs in a SQLite database: one row per task,
// its state transitions, every tool invocation and notable loop events.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// TaskRecord is one row of the tasks table.
type TaskRecord struct {
	TaskID      string
	Goal        string
	StartedAt   time.Time
	FinishedAt  *time.Time // nil while running or if the process died
	FinalState  string
	Reason      string
	Iterations  int
	Budget      int
	Termination string
}

// TransitionRecord is one persisted state change.
type TransitionRecord struct {
	TaskID string
	From   string
	Event  string
	To     string
	At     time.Time
	Reason string
}

// ToolCallRecord is one persisted tool invocation.
type ToolCallRecord struct {
	ID        string
	TaskID    string
	Iteration int
	CallID    string
	Tool      string
	Args      string // JSON
	Success   bool
	Error     string
	ExitCode  *int
	OutputLen int
	Duration  time.Duration
	At        time.Time
}

// EventRecord is a budget, stagnation, retry or recovery signal.
type EventRecord struct {
	TaskID    string
	Iteration int
	Kind      string
	Message   string
	At        time.Time
}

// Store provides journal persistence.
type Store struct {
	db *sql.DB
}

// Open creates the database file and its directory if needed.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// One writer; the task loop is the only producer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		task_id     TEXT PRIMARY KEY,
		goal        TEXT NOT NULL,
		started_at  INTEGER NOT NULL,
		finished_at INTEGER,
		final_state TEXT NOT NULL DEFAULT '',
		reason      TEXT NOT NULL DEFAULT '',
		iterations  INTEGER NOT NULL DEFAULT 0,
		budget      INTEGER NOT NULL DEFAULT 0,
		termination TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS transitions (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id    TEXT NOT NULL,
		from_state TEXT NOT NULL,
		event      TEXT NOT NULL,
		to_state   TEXT NOT NULL,
		at         INTEGER NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (task_id) REFERENCES tasks(task_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS tool_calls (
		id          TEXT PRIMARY KEY,
		task_id     TEXT NOT NULL,
		iteration   INTEGER NOT NULL,
		call_id     TEXT NOT NULL DEFAULT '',
		tool        TEXT NOT NULL,
		args        TEXT NOT NULL,
		success     INTEGER NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		exit_code   INTEGER,
		output_len  INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		at          INTEGER NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(task_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS events (
		seq       INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id   TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		kind      TEXT NOT NULL,
		message   TEXT NOT NULL,
		at        INTEGER NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(task_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_transitions_task ON transitions(task_id);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_task ON tool_calls(task_id);
	CREATE INDEX IF NOT EXISTS idx_events_task ON events(task_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_started ON tasks(started_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// BeginTask inserts the task row.
func (s *Store) BeginTask(ctx context.Context, taskID, goal string, budget int, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (task_id, goal, started_at, budget)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET goal = excluded.goal, budget = excluded.budget
	`, taskID, goal, at.UnixMilli(), budget)
	if err != nil {
		return fmt.Errorf("failed to begin task %s: %w", taskID, err)
	}
	return nil
}

// FinishTask records the outcome of a task.
func (s *Store) FinishTask(ctx context.Context, rec TaskRecord) error {
	finished := time.Now()
	if rec.FinishedAt != nil {
		finished = *rec.FinishedAt
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET finished_at = ?, final_state = ?, reason = ?, iterations = ?, budget = ?, termination = ?
		WHERE task_id = ?
	`, finished.UnixMilli(), rec.FinalState, rec.Reason, rec.Iterations, rec.Budget, rec.Termination, rec.TaskID)
	if err != nil {
		return fmt.Errorf("failed to finish task %s: %w", rec.TaskID, err)
	}
	return nil
}

// AddTransition appends a state change.
func (s *Store) AddTransition(ctx context.Context, rec TransitionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions (task_id, from_state, event, to_state, at, reason)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.TaskID, rec.From, rec.Event, rec.To, rec.At.UnixMilli(), rec.Reason)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// AddToolCall appends a tool invocation.
func (s *Store) AddToolCall(ctx context.Context, rec ToolCallRecord) error {
	var exitCode sql.NullInt64
	if rec.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*rec.ExitCode), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_calls (id, task_id, iteration, call_id, tool, args, success, error, exit_code, output_len, duration_ms, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.TaskID, rec.Iteration, rec.CallID, rec.Tool, rec.Args, boolToInt(rec.Success), rec.Error,
		exitCode, rec.OutputLen, rec.Duration.Milliseconds(), rec.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record tool call: %w", err)
	}
	return nil
}

// AddEvent appends a loop event.
func (s *Store) AddEvent(ctx context.Context, rec EventRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (task_id, iteration, kind, message, at) VALUES (?, ?, ?, ?, ?)
	`, rec.TaskID, rec.Iteration, rec.Kind, rec.Message, rec.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// RecentTasks returns up to limit tasks, newest first.
func (s *Store) RecentTasks(ctx context.Context, limit int) ([]TaskRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, goal, started_at, finished_at, final_state, reason, iterations, budget, termination
		FROM tasks
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&rec.TaskID, &rec.Goal, &started, &finished, &rec.FinalState, &rec.Reason,
			&rec.Iterations, &rec.Budget, &rec.Termination); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		rec.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			t := time.UnixMilli(finished.Int64)
			rec.FinishedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Transitions returns a task's transitions in order.
func (s *Store) Transitions(ctx context.Context, taskID string) ([]TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, from_state, event, to_state, at, reason
		FROM transitions WHERE task_id = ? ORDER BY seq
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var rec TransitionRecord
		var at int64
		if err := rows.Scan(&rec.TaskID, &rec.From, &rec.Event, &rec.To, &at, &rec.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		rec.At = time.UnixMilli(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ToolCalls returns a task's tool invocations in order.
func (s *Store) ToolCalls(ctx context.Context, taskID string) ([]ToolCallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, iteration, call_id, tool, args, success, error, exit_code, output_len, duration_ms, at
		FROM tool_calls WHERE task_id = ? ORDER BY at, rowid
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool calls: %w", err)
	}
	defer rows.Close()

	var out []ToolCallRecord
	for rows.Next() {
		var rec ToolCallRecord
		var success int
		var exitCode sql.NullInt64
		var durationMs, at int64
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.Iteration, &rec.CallID, &rec.Tool, &rec.Args, &success,
			&rec.Error, &exitCode, &rec.OutputLen, &durationMs, &at); err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		rec.Success = success != 0
		if exitCode.Valid {
			code := int(exitCode.Int64)
			rec.ExitCode = &code
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.At = time.UnixMilli(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Events returns a task's loop events in order.
func (s *Store) Events(ctx context.Context, taskID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, iteration, kind, message, at FROM events WHERE task_id = ? ORDER BY seq
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		var at int64
		if err := rows.Scan(&rec.TaskID, &rec.Iteration, &rec.Kind, &rec.Message, &at); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.At = time.UnixMilli(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
