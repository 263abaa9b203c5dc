// Package sqlitestore keeps runs in an embedded SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thleqel/llm-test-platform/internal/store"
	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS test_runs (
	id          TEXT PRIMARY KEY,
	suite_name  TEXT NOT NULL,
	start_time  INTEGER NOT NULL,
	end_time    INTEGER,
	total_tests INTEGER NOT NULL,
	passed      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	errors      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	status      TEXT NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS test_results (
	run_id       TEXT NOT NULL REFERENCES test_runs(id) ON DELETE CASCADE,
	test_case_id TEXT NOT NULL,
	status       TEXT NOT NULL,
	timestamp    INTEGER NOT NULL,
	document     TEXT NOT NULL,
	PRIMARY KEY (run_id, test_case_id)
);

CREATE INDEX IF NOT EXISTS idx_test_runs_suite ON test_runs(suite_name, start_time);
CREATE INDEX IF NOT EXISTS idx_test_results_case ON test_results(test_case_id, timestamp);
`

const runColumns = `id, suite_name, start_time, end_time, total_tests, passed, failed, errors, skipped, status, metadata`

// Store provides SQLite-backed run persistence
type Store struct {
	db  *sql.DB
	log logrus.FieldLogger
}

var _ store.Store = (*Store)(nil)

// New opens (or creates) the database at path and applies the schema.
func New(path string, log logrus.FieldLogger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// A single connection serialises writers and keeps in-memory databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{
		db:  db,
		log: log.WithField("component", "sqlite_store"),
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun upserts the run and replaces its results in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *llmtest.TestRun, results []*llmtest.TestResult) error {
	metadata, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("encoding run metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var endTime sql.NullInt64
	if run.EndTime != nil {
		endTime = sql.NullInt64{Int64: run.EndTime.UnixNano(), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO test_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			suite_name = excluded.suite_name,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			total_tests = excluded.total_tests,
			passed = excluded.passed,
			failed = excluded.failed,
			errors = excluded.errors,
			skipped = excluded.skipped,
			status = excluded.status,
			metadata = excluded.metadata
	`,
		run.ID,
		run.SuiteName,
		run.StartTime.UnixNano(),
		endTime,
		run.TotalTests,
		run.Passed,
		run.Failed,
		run.Errors,
		run.Skipped,
		string(run.Status),
		string(metadata),
	)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM test_results WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("clearing previous results: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO test_results (run_id, test_case_id, status, timestamp, document)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing result insert: %w", err)
	}
	defer stmt.Close()

	for _, result := range results {
		doc, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encoding result %s: %w", result.TestCaseID, err)
		}

		if _, err := stmt.ExecContext(ctx, run.ID, result.TestCaseID, string(result.Status), result.Timestamp.UnixNano(), string(doc)); err != nil {
			return fmt.Errorf("saving result %s: %w", result.TestCaseID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}

	s.log.WithFields(logrus.Fields{"run_id": run.ID, "results": len(results)}).Debug("saved test run")

	return nil
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(ctx context.Context, runID string) (*llmtest.TestRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM test_runs WHERE id = ?`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, runID)
	}

	return run, err
}

// GetRunResults returns every result of a run.
func (s *Store) GetRunResults(ctx context.Context, runID string) ([]*llmtest.TestResult, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	results, err := s.queryResults(ctx, `SELECT document FROM test_results WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}

	store.SortResults(results)

	return results, nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, suite string, limit int) ([]*llmtest.TestRun, error) {
	query := `SELECT ` + runColumns + ` FROM test_runs WHERE 1=1`
	var args []any

	if suite != "" {
		query += " AND suite_name = ?"
		args = append(args, suite)
	}

	query += " ORDER BY start_time DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*llmtest.TestRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetTestCaseHistory returns results for one test case, newest first.
func (s *Store) GetTestCaseHistory(ctx context.Context, testCaseID string, limit int) ([]*llmtest.TestResult, error) {
	query := `SELECT document FROM test_results WHERE test_case_id = ? ORDER BY timestamp DESC`
	args := []any{testCaseID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return s.queryResults(ctx, query, args...)
}

// GetSummary derives the summary from the stored run.
func (s *Store) GetSummary(ctx context.Context, runID string) (*store.Summary, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	return store.NewSummary(run), nil
}

func (s *Store) queryResults(ctx context.Context, query string, args ...any) ([]*llmtest.TestResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	results := make([]*llmtest.TestResult, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}

		var result llmtest.TestResult
		if err := json.Unmarshal([]byte(doc), &result); err != nil {
			return nil, fmt.Errorf("decoding result: %w", err)
		}

		results = append(results, &result)
	}

	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*llmtest.TestRun, error) {
	var (
		run       llmtest.TestRun
		startTime int64
		endTime   sql.NullInt64
		status    string
		metadata  string
	)

	err := row.Scan(
		&run.ID,
		&run.SuiteName,
		&startTime,
		&endTime,
		&run.TotalTests,
		&run.Passed,
		&run.Failed,
		&run.Errors,
		&run.Skipped,
		&status,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	run.StartTime = time.Unix(0, startTime).UTC()
	if endTime.Valid {
		end := time.Unix(0, endTime.Int64).UTC()
		run.EndTime = &end
	}
	run.Status = llmtest.RunStatus(status)

	run.Metadata = make(map[string]any)
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &run.Metadata); err != nil {
			return nil, fmt.Errorf("decoding run metadata: %w", err)
		}
	}

	return &run, nil
}
