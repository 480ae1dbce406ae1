// Package history persists suite reports in SQLite so pass rates and
// flaky scenarios can be tracked across invocations.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/autorp/autorp/internal/report"
)

// ErrNotFound reports a missing suite id.
var ErrNotFound = errors.New("history: suite not found")

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS suites (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		total_runs INTEGER NOT NULL,
		successful_runs INTEGER NOT NULL,
		failed_runs INTEGER NOT NULL,
		report TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		suite_id TEXT NOT NULL REFERENCES suites(id) ON DELETE CASCADE,
		script TEXT NOT NULL,
		slug TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		attempt INTEGER NOT NULL,
		status TEXT NOT NULL,
		duration REAL NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_suite ON runs(suite_id)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_slug ON runs(slug)`,
}

// Store keeps suite history in one SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database and applies the
// schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history: database path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ping db: %w", err)
	}
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: migrate: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SuiteRecord is one stored suite's headline numbers.
type SuiteRecord struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	TotalRuns      int       `json:"total_runs"`
	SuccessfulRuns int       `json:"successful_runs"`
	FailedRuns     int       `json:"failed_runs"`
}

// RunRecord is one stored attempt, used for per-scenario history.
type RunRecord struct {
	ID        string  `json:"id"`
	SuiteID   string  `json:"suite_id"`
	Script    string  `json:"script"`
	Slug      string  `json:"slug"`
	Iteration int     `json:"iteration"`
	Attempt   int     `json:"attempt"`
	Status    string  `json:"status"`
	Duration  float64 `json:"duration"`
}

// SaveSuite stores a full report and its per-run index rows. Returns the
// new suite id.
func (s *Store) SaveSuite(ctx context.Context, rep *report.Report) (string, error) {
	blob, err := rep.JSON()
	if err != nil {
		return "", fmt.Errorf("history: encode report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("history: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO suites (id, started_at, total_runs, successful_runs, failed_runs, report)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, rep.GeneratedAt.UTC().UnixMilli(),
		rep.Summary.TotalRuns, rep.Summary.SuccessfulRuns, rep.Summary.FailedRuns,
		string(blob),
	)
	if err != nil {
		return "", fmt.Errorf("history: insert suite: %w", err)
	}

	for _, run := range rep.Runs {
		runID := run.ID
		if runID == "" {
			runID = uuid.NewString()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO runs (id, suite_id, script, slug, iteration, attempt, status, duration)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, id, run.Script, run.Slug, run.Iteration, run.Attempt,
			run.Status, run.Duration,
		)
		if err != nil {
			return "", fmt.Errorf("history: insert run %s: %w", runID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("history: commit: %w", err)
	}
	return id, nil
}

// ListSuites returns the most recent suites, newest first.
func (s *Store) ListSuites(ctx context.Context, limit int) ([]SuiteRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, total_runs, successful_runs, failed_runs
		 FROM suites ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list suites: %w", err)
	}
	defer rows.Close()

	var out []SuiteRecord
	for rows.Next() {
		var rec SuiteRecord
		var millis int64
		if err := rows.Scan(&rec.ID, &millis, &rec.TotalRuns, &rec.SuccessfulRuns, &rec.FailedRuns); err != nil {
			return nil, fmt.Errorf("history: scan suite: %w", err)
		}
		rec.StartedAt = time.UnixMilli(millis).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetSuite loads one stored report by suite id.
func (s *Store) GetSuite(ctx context.Context, id string) (*report.Report, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM suites WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: get suite %s: %w", id, err)
	}
	var rep report.Report
	if err := json.Unmarshal([]byte(blob), &rep); err != nil {
		return nil, fmt.Errorf("history: decode suite %s: %w", id, err)
	}
	return &rep, nil
}

// ScenarioHistory returns the recent attempts of one scenario slug,
// newest suites first.
func (s *Store) ScenarioHistory(ctx context.Context, slug string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.suite_id, r.script, r.slug, r.iteration, r.attempt, r.status, r.duration
		 FROM runs r JOIN suites s ON s.id = r.suite_id
		 WHERE r.slug = ?
		 ORDER BY s.started_at DESC, r.iteration, r.attempt
		 LIMIT ?`, slug, limit)
	if err != nil {
		return nil, fmt.Errorf("history: scenario history: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.ID, &rec.SuiteID, &rec.Script, &rec.Slug,
			&rec.Iteration, &rec.Attempt, &rec.Status, &rec.Duration); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
