// Package storetest holds behaviour checks shared by every store backend.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thleqel/llm-test-platform/internal/store"
	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
)

// NewRun builds a finished run with one result per status, started at start.
func NewRun(id, suite string, start time.Time) (*llmtest.TestRun, []*llmtest.TestResult) {
	statuses := []llmtest.Status{llmtest.StatusPassed, llmtest.StatusFailed, llmtest.StatusError, llmtest.StatusSkipped}

	run := llmtest.NewTestRun(id, suite, len(statuses), map[string]any{"max_concurrency": 2})
	run.StartTime = start.UTC()

	results := make([]*llmtest.TestResult, 0, len(statuses))
	for i, status := range statuses {
		result := &llmtest.TestResult{
			TestCaseID:   []string{"capital", "weather", "math", "disabled"}[i],
			TestCaseName: "case",
			RunID:        id,
			Status:       status,
			Input:        "What is the capital of France?",
			ActualOutput: "Paris",
			Passed:       status == llmtest.StatusPassed,
			Metrics: []llmtest.MetricResult{
				{Name: "answer_relevancy", Score: 0.9, Threshold: 0.7, Passed: status == llmtest.StatusPassed, Reason: "ok"},
			},
			Metadata:   map[string]any{"adapter_type": "mock"},
			Timestamp:  start.Add(time.Duration(i) * time.Second).UTC(),
			DurationMS: 12.5,
		}
		results = append(results, result)
		run.Record(status)
	}

	run.Finish(start.Add(10 * time.Second))

	return run, results
}

// Run exercises a Store implementation. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("save and load", func(t *testing.T) {
		s := newStore(t)

		run, results := NewRun("run-1", "smoke", base)
		require.NoError(t, s.SaveRun(ctx, run.Snapshot(), results))

		got, err := s.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, "run-1", got.ID)
		assert.Equal(t, "smoke", got.SuiteName)
		assert.Equal(t, 4, got.TotalTests)
		assert.Equal(t, 1, got.Passed)
		assert.Equal(t, 1, got.Failed)
		assert.Equal(t, 1, got.Errors)
		assert.Equal(t, 1, got.Skipped)
		assert.Equal(t, llmtest.RunStatusCompleted, got.Status)
		assert.True(t, got.StartTime.Equal(base))
		require.NotNil(t, got.EndTime)
		assert.True(t, got.EndTime.Equal(base.Add(10*time.Second)))

		loaded, err := s.GetRunResults(ctx, "run-1")
		require.NoError(t, err)
		require.Len(t, loaded, 4)
		assert.Equal(t, "capital", loaded[0].TestCaseID)
		assert.Equal(t, llmtest.StatusPassed, loaded[0].Status)
		assert.Equal(t, "Paris", loaded[0].ActualOutput)
		require.Len(t, loaded[0].Metrics, 1)
		assert.Equal(t, "answer_relevancy", loaded[0].Metrics[0].Name)
		assert.InDelta(t, 0.9, loaded[0].Metrics[0].Score, 1e-9)
		assert.True(t, loaded[0].Metrics[0].Passed)
		assert.Equal(t, "mock", loaded[0].Metadata["adapter_type"])
		assert.InDelta(t, 12.5, loaded[0].DurationMS, 1e-9)
	})

	t.Run("missing run", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetRun(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.GetSummary(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("summary", func(t *testing.T) {
		s := newStore(t)

		run, results := NewRun("run-1", "smoke", base)
		require.NoError(t, s.SaveRun(ctx, run.Snapshot(), results))

		summary, err := s.GetSummary(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, 4, summary.Total)
		assert.Equal(t, 1, summary.Passed)
		assert.InDelta(t, 25.0, summary.PassRate, 1e-9)
		assert.InDelta(t, 10000.0, summary.DurationMS, 1e-6)
	})

	t.Run("list runs newest first", func(t *testing.T) {
		s := newStore(t)

		for i, suite := range []string{"smoke", "regression", "smoke"} {
			run, results := NewRun("run-"+string(rune('a'+i)), suite, base.Add(time.Duration(i)*time.Hour))
			require.NoError(t, s.SaveRun(ctx, run.Snapshot(), results))
		}

		runs, err := s.ListRuns(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, []string{"run-c", "run-b", "run-a"}, runIDs(runs))

		runs, err = s.ListRuns(ctx, "smoke", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"run-c", "run-a"}, runIDs(runs))

		runs, err = s.ListRuns(ctx, "", 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"run-c"}, runIDs(runs))
	})

	t.Run("test case history", func(t *testing.T) {
		s := newStore(t)

		for i := range 3 {
			run, results := NewRun("run-"+string(rune('a'+i)), "smoke", base.Add(time.Duration(i)*time.Hour))
			require.NoError(t, s.SaveRun(ctx, run.Snapshot(), results))
		}

		history, err := s.GetTestCaseHistory(ctx, "weather", 0)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, "run-c", history[0].RunID)
		for _, r := range history {
			assert.Equal(t, "weather", r.TestCaseID)
		}

		history, err = s.GetTestCaseHistory(ctx, "weather", 2)
		require.NoError(t, err)
		assert.Len(t, history, 2)

		history, err = s.GetTestCaseHistory(ctx, "unknown", 0)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("save is idempotent", func(t *testing.T) {
		s := newStore(t)

		run, results := NewRun("run-1", "smoke", base)
		require.NoError(t, s.SaveRun(ctx, run.Snapshot(), results))
		require.NoError(t, s.SaveRun(ctx, run.Snapshot(), results))

		loaded, err := s.GetRunResults(ctx, "run-1")
		require.NoError(t, err)
		assert.Len(t, loaded, 4)

		runs, err := s.ListRuns(ctx, "", 0)
		require.NoError(t, err)
		assert.Len(t, runs, 1)
	})
}

func runIDs(runs []*llmtest.TestRun) []string {
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	return ids
}
