// Package results persists finished pipeline runs to a local SQLite database
// so past answers can be reviewed without rerunning the browser.
package results

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kvasirlabs/askpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store implements schemas.ResultSink over SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates or opens the run database at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		status TEXT NOT NULL,
		stage TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		answer_text TEXT,
		strategy TEXT,
		error TEXT,
		injection_json TEXT,
		snapshot_json TEXT,
		sources_json TEXT,
		attempts_json TEXT,
		timings_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun writes one finished run. Saving the same run ID twice replaces the
// earlier row.
func (s *Store) SaveRun(ctx context.Context, run *schemas.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	injection, err := json.Marshal(run.Injection)
	if err != nil {
		return fmt.Errorf("failed to encode injection outcome: %w", err)
	}
	snapshot, err := json.Marshal(run.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	sources, err := json.Marshal(run.Sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}
	attempts, err := json.Marshal(run.Attempts)
	if err != nil {
		return fmt.Errorf("failed to encode attempts: %w", err)
	}
	timings, err := json.Marshal(run.Timings)
	if err != nil {
		return fmt.Errorf("failed to encode timings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			id, query, status, stage, started_at, finished_at,
			answer_text, strategy, error,
			injection_json, snapshot_json, sources_json, attempts_json, timings_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Query, string(run.Status), run.Stage, run.StartedAt, run.FinishedAt,
		run.AnswerText, run.StrategyUsed, run.Error,
		string(injection), string(snapshot), string(sources), string(attempts), string(timings),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*schemas.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, query, status, stage, started_at, finished_at,
			answer_text, strategy, error,
			injection_json, snapshot_json, sources_json, attempts_json, timings_json
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*schemas.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, status, stage, started_at, finished_at,
			answer_text, strategy, error,
			injection_json, snapshot_json, sources_json, attempts_json, timings_json
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*schemas.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*schemas.PipelineRun, error) {
	var (
		run                                             schemas.PipelineRun
		status                                          string
		startedAt, finishedAt                           time.Time
		injection, snapshot, sources, attempts, timings string
	)
	err := row.Scan(
		&run.ID, &run.Query, &status, &run.Stage, &startedAt, &finishedAt,
		&run.AnswerText, &run.StrategyUsed, &run.Error,
		&injection, &snapshot, &sources, &attempts, &timings,
	)
	if err != nil {
		return nil, err
	}
	run.Status = schemas.RunStatus(status)
	run.StartedAt = startedAt
	run.FinishedAt = finishedAt

	for name, pair := range map[string]struct {
		raw string
		out any
	}{
		"injection": {injection, &run.Injection},
		"snapshot":  {snapshot, &run.Snapshot},
		"sources":   {sources, &run.Sources},
		"attempts":  {attempts, &run.Attempts},
		"timings":   {timings, &run.Timings},
	} {
		if pair.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(pair.raw), pair.out); err != nil {
			return nil, fmt.Errorf("failed to decode %s column: %w", name, err)
		}
	}
	return &run, nil
}
