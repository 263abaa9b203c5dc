// Package store persists finished test runs and their results.
package store

import (
	"context"
	"errors"
	"sort"

	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
)

// Backend names accepted by configuration.
const (
	BackendFile       = "file"
	BackendSQLite     = "sqlite"
	BackendClickHouse = "clickhouse"
)

var (
	// ErrNotFound is returned when a run does not exist.
	ErrNotFound = errors.New("run not found")
	// ErrUnknownBackend is returned for an unsupported STORE_BACKEND value.
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Summary is the aggregate view of a stored run.
type Summary struct {
	RunID      string            `json:"run_id"`
	SuiteName  string            `json:"suite_name"`
	Status     llmtest.RunStatus `json:"status"`
	Total      int               `json:"total_tests"`
	Passed     int               `json:"passed"`
	Failed     int               `json:"failed"`
	Errors     int               `json:"errors"`
	Skipped    int               `json:"skipped"`
	PassRate   float64           `json:"pass_rate"`
	DurationMS float64           `json:"duration_ms"`
}

// Store is the persistence collaborator shared by the CLI, the API and the
// scheduler.
type Store interface {
	llmtest.ResultStore

	GetRun(ctx context.Context, runID string) (*llmtest.TestRun, error)
	GetRunResults(ctx context.Context, runID string) ([]*llmtest.TestResult, error)
	// ListRuns returns runs newest first. An empty suite matches every run
	// and a non-positive limit means no limit.
	ListRuns(ctx context.Context, suite string, limit int) ([]*llmtest.TestRun, error)
	// GetTestCaseHistory returns results for one test case across runs, newest first.
	GetTestCaseHistory(ctx context.Context, testCaseID string, limit int) ([]*llmtest.TestResult, error)
	GetSummary(ctx context.Context, runID string) (*Summary, error)
	Close() error
}

// NewSummary derives the aggregate view of a run.
func NewSummary(run *llmtest.TestRun) *Summary {
	snap := run.Snapshot()

	s := &Summary{
		RunID:     snap.ID,
		SuiteName: snap.SuiteName,
		Status:    snap.Status,
		Total:     snap.TotalTests,
		Passed:    snap.Passed,
		Failed:    snap.Failed,
		Errors:    snap.Errors,
		Skipped:   snap.Skipped,
		PassRate:  snap.PassRate(),
	}

	if snap.EndTime != nil {
		s.DurationMS = float64(snap.EndTime.Sub(snap.StartTime).Microseconds()) / 1000.0
	}

	return s
}

// SortRunsNewestFirst orders runs by start time, newest first, and applies limit.
func SortRunsNewestFirst(runs []*llmtest.TestRun, limit int) []*llmtest.TestRun {
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs
}

// SortResultsNewestFirst orders results by timestamp, newest first, and applies limit.
func SortResultsNewestFirst(results []*llmtest.TestResult, limit int) []*llmtest.TestResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results
}

// SortResults orders results of one run by start time, then test case id.
func SortResults(results []*llmtest.TestResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if !results[i].Timestamp.Equal(results[j].Timestamp) {
			return results[i].Timestamp.Before(results[j].Timestamp)
		}
		return results[i].TestCaseID < results[j].TestCaseID
	})
}
