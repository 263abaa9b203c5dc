package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"
	"github.com/thleqel/llm-test-platform/internal/config"
	"github.com/thleqel/llm-test-platform/internal/store"
	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
)

// runRow mirrors the test_runs table.
type runRow struct {
	ID         string     `ch:"id"`
	SuiteName  string     `ch:"suite_name"`
	StartTime  time.Time  `ch:"start_time"`
	EndTime    *time.Time `ch:"end_time"`
	TotalTests uint32     `ch:"total_tests"`
	Passed     uint32     `ch:"passed"`
	Failed     uint32     `ch:"failed"`
	Errors     uint32     `ch:"errors"`
	Skipped    uint32     `ch:"skipped"`
	Status     string     `ch:"status"`
	Metadata   string     `ch:"metadata"`
}

// resultRow mirrors the test_results table.
type resultRow struct {
	RunID      string    `ch:"run_id"`
	TestCaseID string    `ch:"test_case_id"`
	Status     string    `ch:"status"`
	Passed     bool      `ch:"passed"`
	Timestamp  time.Time `ch:"timestamp"`
	DurationMS float64   `ch:"duration_ms"`
	Document   string    `ch:"document"`
}

const (
	runColumns    = "id, suite_name, start_time, end_time, total_tests, passed, failed, errors, skipped, status, metadata"
	resultColumns = "run_id, test_case_id, status, passed, timestamp, duration_ms, document"
)

// Store keeps runs in the tables created by the migrations package. Both
// tables use ReplacingMergeTree, so reads go through FINAL and saving a
// run twice keeps the latest version.
type Store struct {
	conn     driver.Conn
	database string
	log      logrus.FieldLogger
}

var _ store.Store = (*Store)(nil)

// NewStore wraps an open connection. Tables are qualified with database.
func NewStore(conn driver.Conn, database string, log logrus.FieldLogger) *Store {
	return &Store{
		conn:     conn,
		database: database,
		log:      log.WithField("component", "clickhouse_store"),
	}
}

// Open connects using cfg and returns a store over cfg.ClickhouseDatabase.
func Open(ctx context.Context, cfg *config.AppConfig, log logrus.FieldLogger) (*Store, error) {
	conn, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	exists, err := DatabaseExists(ctx, conn, cfg.ClickhouseDatabase)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if !exists {
		_ = conn.Close()
		return nil, fmt.Errorf("database %s does not exist, run setup first", cfg.ClickhouseDatabase)
	}

	return NewStore(conn, cfg.ClickhouseDatabase, log), nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// SaveRun appends the run and its results in two batches.
func (s *Store) SaveRun(ctx context.Context, run *llmtest.TestRun, results []*llmtest.TestResult) error {
	row, err := toRunRow(run)
	if err != nil {
		return err
	}

	runBatch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (%s)", s.table("test_runs"), runColumns))
	if err != nil {
		return fmt.Errorf("preparing run batch: %w", err)
	}

	if err := runBatch.AppendStruct(row); err != nil {
		return fmt.Errorf("appending run: %w", err)
	}

	if err := runBatch.Send(); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}

	if len(results) == 0 {
		return nil
	}

	resultBatch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (%s)", s.table("test_results"), resultColumns))
	if err != nil {
		return fmt.Errorf("preparing result batch: %w", err)
	}

	for _, result := range results {
		rr, err := toResultRow(run.ID, result)
		if err != nil {
			_ = resultBatch.Abort()
			return err
		}

		if err := resultBatch.AppendStruct(rr); err != nil {
			_ = resultBatch.Abort()
			return fmt.Errorf("appending result %s: %w", result.TestCaseID, err)
		}
	}

	if err := resultBatch.Send(); err != nil {
		return fmt.Errorf("saving results: %w", err)
	}

	s.log.WithFields(logrus.Fields{"run_id": run.ID, "results": len(results)}).Debug("saved test run")

	return nil
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(ctx context.Context, runID string) (*llmtest.TestRun, error) {
	var rows []runRow

	query := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE id = ? LIMIT 1", runColumns, s.table("test_runs"))
	if err := s.conn.Select(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, runID)
	}

	return fromRunRow(&rows[0])
}

// GetRunResults returns every result of a run.
func (s *Store) GetRunResults(ctx context.Context, runID string) ([]*llmtest.TestResult, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE run_id = ?", resultColumns, s.table("test_results"))

	results, err := s.selectResults(ctx, query, runID)
	if err != nil {
		return nil, err
	}

	store.SortResults(results)

	return results, nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, suite string, limit int) ([]*llmtest.TestRun, error) {
	query := fmt.Sprintf("SELECT %s FROM %s FINAL", runColumns, s.table("test_runs"))
	var args []any

	if suite != "" {
		query += " WHERE suite_name = ?"
		args = append(args, suite)
	}

	query += " ORDER BY start_time DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var rows []runRow
	if err := s.conn.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	runs := make([]*llmtest.TestRun, 0, len(rows))
	for i := range rows {
		run, err := fromRunRow(&rows[i])
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, nil
}

// GetTestCaseHistory returns results for one test case, newest first.
func (s *Store) GetTestCaseHistory(ctx context.Context, testCaseID string, limit int) ([]*llmtest.TestResult, error) {
	query := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE test_case_id = ? ORDER BY timestamp DESC",
		resultColumns, s.table("test_results"))

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	return s.selectResults(ctx, query, testCaseID)
}

// GetSummary derives the summary from the stored run.
func (s *Store) GetSummary(ctx context.Context, runID string) (*store.Summary, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	return store.NewSummary(run), nil
}

func (s *Store) selectResults(ctx context.Context, query string, args ...any) ([]*llmtest.TestResult, error) {
	var rows []resultRow
	if err := s.conn.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}

	results := make([]*llmtest.TestResult, 0, len(rows))
	for i := range rows {
		result, err := fromResultRow(&rows[i])
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, nil
}

func (s *Store) table(name string) string {
	return fmt.Sprintf("`%s`.%s", s.database, name)
}

func toRunRow(run *llmtest.TestRun) (*runRow, error) {
	metadata, err := json.Marshal(run.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding run metadata: %w", err)
	}

	row := &runRow{
		ID:         run.ID,
		SuiteName:  run.SuiteName,
		StartTime:  run.StartTime.UTC(),
		TotalTests: uint32(max(run.TotalTests, 0)), //nolint:gosec // non-negative
		Passed:     uint32(max(run.Passed, 0)),     //nolint:gosec // non-negative
		Failed:     uint32(max(run.Failed, 0)),     //nolint:gosec // non-negative
		Errors:     uint32(max(run.Errors, 0)),     //nolint:gosec // non-negative
		Skipped:    uint32(max(run.Skipped, 0)),    //nolint:gosec // non-negative
		Status:     string(run.Status),
		Metadata:   string(metadata),
	}

	if run.EndTime != nil {
		end := run.EndTime.UTC()
		row.EndTime = &end
	}

	return row, nil
}

func fromRunRow(row *runRow) (*llmtest.TestRun, error) {
	run := &llmtest.TestRun{
		ID:         row.ID,
		SuiteName:  row.SuiteName,
		StartTime:  row.StartTime.UTC(),
		TotalTests: int(row.TotalTests),
		Passed:     int(row.Passed),
		Failed:     int(row.Failed),
		Errors:     int(row.Errors),
		Skipped:    int(row.Skipped),
		Status:     llmtest.RunStatus(row.Status),
		Metadata:   make(map[string]any),
	}

	if row.EndTime != nil {
		end := row.EndTime.UTC()
		run.EndTime = &end
	}

	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &run.Metadata); err != nil {
			return nil, fmt.Errorf("decoding run metadata: %w", err)
		}
	}

	return run, nil
}

func toResultRow(runID string, result *llmtest.TestResult) (*resultRow, error) {
	doc, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding result %s: %w", result.TestCaseID, err)
	}

	return &resultRow{
		RunID:      runID,
		TestCaseID: result.TestCaseID,
		Status:     string(result.Status),
		Passed:     result.Passed,
		Timestamp:  result.Timestamp.UTC(),
		DurationMS: result.DurationMS,
		Document:   string(doc),
	}, nil
}

func fromResultRow(row *resultRow) (*llmtest.TestResult, error) {
	var result llmtest.TestResult
	if err := json.Unmarshal([]byte(row.Document), &result); err != nil {
		return nil, fmt.Errorf("decoding result %s: %w", row.TestCaseID, err)
	}

	return &result, nil
}
