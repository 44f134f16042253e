/*
PURPOSE:
  Persists run reports to SQLite so traces can be compared across runs.

REQUIREMENTS:
  User-specified:
  - Optional; enabled by trace_db / --trace-db.

  Implementation-discovered:
  - Tables: runs, trace_entries, blocked_tasks, mutations.
  - Sweeps save several reports through one handle.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (run, sweep, history)
  - Dependencies: modernc.org/sqlite (pure Go, driver name "sqlite")

ERROR HANDLING:
  - Errors are prefixed with the failing step ("store.Open: ping: ...").
  - SaveReport is transactional; a duplicate run id rolls back.

USAGE:
  s, err := store.Open("runs.db")
  defer s.Close()

RELATED FILES:
  - internal/cli/history.go
*/

package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/daryltucker/donkey-runner/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	domain          TEXT NOT NULL,
	started_at      TEXT NOT NULL,
	elapsed_ms      INTEGER NOT NULL,
	phase           TEXT NOT NULL,
	budget          INTEGER NOT NULL,
	used            INTEGER NOT NULL,
	remaining       INTEGER NOT NULL,
	task_count      INTEGER NOT NULL,
	batch_count     INTEGER NOT NULL,
	provider_tokens INTEGER NOT NULL,
	fallbacks       INTEGER NOT NULL,
	fatal           TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS trace_entries (
	run_id           TEXT NOT NULL REFERENCES runs(run_id),
	seq              INTEGER NOT NULL,
	timestamp        TEXT NOT NULL,
	task_id          TEXT NOT NULL,
	domain           TEXT NOT NULL,
	batch            INTEGER NOT NULL,
	estimated_tokens INTEGER NOT NULL,
	prompt_tokens    INTEGER NOT NULL,
	response_tokens  INTEGER NOT NULL,
	total_tokens     INTEGER NOT NULL,
	response         TEXT NOT NULL,
	mutated          INTEGER NOT NULL,
	fallback         INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS blocked_tasks (
	run_id           TEXT NOT NULL REFERENCES runs(run_id),
	seq              INTEGER NOT NULL,
	task_id          TEXT NOT NULL,
	estimated_tokens INTEGER NOT NULL,
	budget_remaining INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS mutations (
	run_id    TEXT NOT NULL REFERENCES runs(run_id),
	seq       INTEGER NOT NULL,
	task_id   TEXT NOT NULL,
	mutation  TEXT NOT NULL,
	original  TEXT NOT NULL,
	mutated   TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);`

// Store wraps a SQLite database holding run reports.
type Store struct {
	db *sql.DB
}

// RunRow is the per-run summary stored in the runs table.
type RunRow struct {
	RunID          string
	Domain         string
	StartedAt      time.Time
	Elapsed        time.Duration
	Phase          model.Phase
	Budget         int
	Used           int
	Remaining      int
	TaskCount      int
	BatchCount     int
	ProviderTokens int
	Fallbacks      int
	Fatal          string
}

// Open opens (creating if needed) the database at path and applies the schema.
// Driver name is "sqlite" (modernc.org/sqlite, not mattn/go-sqlite3).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("store.Open: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.Open: ping: %w", err)
	}
	// Sweeps save from several goroutines; keep a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.Open: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// dsn appends the connection pragmas to path, keeping any query string it
// already carries.
func dsn(path string) string {
	pragmas := url.Values{"_pragma": {"foreign_keys(1)", "journal_mode(WAL)"}}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + pragmas.Encode()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveReport writes a report and all its rows in one transaction.
func (s *Store) SaveReport(ctx context.Context, r *model.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.SaveReport: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(run_id, domain, started_at, elapsed_ms, phase, budget, used, remaining, task_count, batch_count, provider_tokens, fallbacks, fatal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Domain, r.StartedAt.UTC().Format(time.RFC3339Nano), r.Elapsed.Milliseconds(), string(r.Phase),
		r.Summary.Budget, r.Summary.Used, r.Summary.Remaining, r.TaskCount, r.BatchCount,
		r.ProviderTokens, r.Fallbacks, r.Fatal)
	if err != nil {
		return fmt.Errorf("store.SaveReport: run %s: %w", r.RunID, err)
	}

	for i, e := range r.Trace {
		_, err = tx.ExecContext(ctx, `INSERT INTO trace_entries
			(run_id, seq, timestamp, task_id, domain, batch, estimated_tokens, prompt_tokens, response_tokens, total_tokens, response, mutated, fallback)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, i, e.Timestamp.UTC().Format(time.RFC3339Nano), e.TaskID, e.Domain, e.Batch,
			e.EstimatedTokens, e.PromptTokens, e.ResponseTokens, e.TotalTokens, e.ResponseText,
			boolInt(e.Mutated), boolInt(e.Fallback))
		if err != nil {
			return fmt.Errorf("store.SaveReport: trace %s: %w", e.TaskID, err)
		}
	}

	for i, b := range r.Summary.BlockedTasks {
		_, err = tx.ExecContext(ctx, `INSERT INTO blocked_tasks (run_id, seq, task_id, estimated_tokens, budget_remaining)
			VALUES (?, ?, ?, ?, ?)`, r.RunID, i, b.TaskID, b.EstimatedTokens, b.BudgetRemaining)
		if err != nil {
			return fmt.Errorf("store.SaveReport: blocked %s: %w", b.TaskID, err)
		}
	}

	for i, m := range r.Mutations {
		_, err = tx.ExecContext(ctx, `INSERT INTO mutations (run_id, seq, task_id, mutation, original, mutated)
			VALUES (?, ?, ?, ?, ?, ?)`, r.RunID, i, m.TaskID, m.Mutation, m.OriginalPrompt, m.MutatedPrompt)
		if err != nil {
			return fmt.Errorf("store.SaveReport: mutation %s: %w", m.TaskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store.SaveReport: commit: %w", err)
	}
	return nil
}

// ListRuns returns stored runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, domain, started_at, elapsed_ms, phase, budget, used, remaining,
		task_count, batch_count, provider_tokens, fallbacks, fatal FROM runs ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("store.ListRuns: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		var started, phase string
		var elapsedMS int64
		if err := rows.Scan(&r.RunID, &r.Domain, &started, &elapsedMS, &phase, &r.Budget, &r.Used, &r.Remaining,
			&r.TaskCount, &r.BatchCount, &r.ProviderTokens, &r.Fallbacks, &r.Fatal); err != nil {
			return nil, fmt.Errorf("store.ListRuns: scan: %w", err)
		}
		r.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("store.ListRuns: started_at: %w", err)
		}
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		r.Phase = model.Phase(phase)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadTrace returns the trace of a run in execution order.
func (s *Store) LoadTrace(ctx context.Context, runID string) ([]model.TraceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, task_id, domain, batch, estimated_tokens, prompt_tokens,
		response_tokens, total_tokens, response, mutated, fallback FROM trace_entries WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("store.LoadTrace: %w", err)
	}
	defer rows.Close()

	var out []model.TraceEntry
	for rows.Next() {
		var e model.TraceEntry
		var ts string
		var mutated, fallback int
		if err := rows.Scan(&ts, &e.TaskID, &e.Domain, &e.Batch, &e.EstimatedTokens, &e.PromptTokens,
			&e.ResponseTokens, &e.TotalTokens, &e.ResponseText, &mutated, &fallback); err != nil {
			return nil, fmt.Errorf("store.LoadTrace: scan: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("store.LoadTrace: timestamp: %w", err)
		}
		e.Mutated = mutated != 0
		e.Fallback = fallback != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// LoadBlocked returns the blocked tasks of a run in the order they were blocked.
func (s *Store) LoadBlocked(ctx context.Context, runID string) ([]model.BlockedTask, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_id, estimated_tokens, budget_remaining
		FROM blocked_tasks WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("store.LoadBlocked: %w", err)
	}
	defer rows.Close()

	var out []model.BlockedTask
	for rows.Next() {
		var b model.BlockedTask
		if err := rows.Scan(&b.TaskID, &b.EstimatedTokens, &b.BudgetRemaining); err != nil {
			return nil, fmt.Errorf("store.LoadBlocked: scan: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
