// Package journal keeps an append-only SQLite audit trail of mission
// runs: lifecycle events and per-step transitions. It is a diagnostics
// surface only; the engine never reads journal rows back into live
// state.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"callsign/internal/api"
	"callsign/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS journal (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	step INTEGER NOT NULL,
	trigger_type TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT '',
	input TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_run ON journal(run_id, id);
`

// Store is the journal database handle. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the journal database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Store{db: db, logger: logging.NewComponentLogger(logger, "journal")}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunEvent appends a run lifecycle row (started, reset, completed,
// force_advance). Failures are logged, never surfaced: a journal hiccup
// must not affect mission progression.
func (s *Store) RunEvent(runID, kind string, step int) {
	s.append(runID, kind, step, "", "", "")
}

// StepTransition appends a consumed-step row.
func (s *Store) StepTransition(runID string, step int, trigger, role, input string) {
	s.append(runID, "step", step, trigger, role, input)
}

func (s *Store) append(runID, kind string, step int, trigger, role, input string) {
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(
			`INSERT INTO journal (run_id, kind, step, trigger_type, role, input, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, kind, step, trigger, role, input,
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		return err
	})
	if err != nil {
		s.logger.Warn("journal append failed",
			logging.String(logging.FieldRunID, runID),
			logging.Error(err))
	}
}

// List returns the most recent entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]api.JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, kind, step, trigger_type, role, input, created_at
		 FROM journal ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListRun returns all entries for one run, oldest first.
func (s *Store) ListRun(ctx context.Context, runID string) ([]api.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, kind, step, trigger_type, role, input, created_at
		 FROM journal WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query journal run: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]api.JournalEntry, error) {
	var out []api.JournalEntry
	for rows.Next() {
		var e api.JournalEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Kind, &e.Step, &e.Trigger, &e.Role, &e.Input, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}
	return out, nil
}

// retryOnBusy retries short writes that lose the WAL write lock.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 20 * time.Millisecond)
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
