package clickhouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thleqel/llm-test-platform/internal/store/storetest"
	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
)

func TestRunRowRoundTrip(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run, _ := storetest.NewRun("run-1", "smoke", start)

	row, err := toRunRow(run)
	require.NoError(t, err)

	assert.Equal(t, "run-1", row.ID)
	assert.Equal(t, uint32(4), row.TotalTests)
	require.NotNil(t, row.EndTime)
	assert.JSONEq(t, `{"max_concurrency":2}`, row.Metadata)

	back, err := fromRunRow(row)
	require.NoError(t, err)

	assert.Equal(t, run.ID, back.ID)
	assert.Equal(t, run.SuiteName, back.SuiteName)
	assert.True(t, run.StartTime.Equal(back.StartTime))
	assert.True(t, run.EndTime.Equal(*back.EndTime))
	assert.Equal(t, run.Passed, back.Passed)
	assert.Equal(t, run.Status, back.Status)
	assert.InDelta(t, 2, back.Metadata["max_concurrency"], 0)
}

func TestRunRowWithoutEndTime(t *testing.T) {
	t.Parallel()

	run := llmtest.NewTestRun("run-2", "", 0, nil)

	row, err := toRunRow(run)
	require.NoError(t, err)
	assert.Nil(t, row.EndTime)

	back, err := fromRunRow(row)
	require.NoError(t, err)
	assert.Nil(t, back.EndTime)
	assert.Equal(t, llmtest.RunStatusRunning, back.Status)
}

func TestResultRowKeepsDocument(t *testing.T) {
	t.Parallel()

	_, results := storetest.NewRun("run-3", "smoke", time.Now())
	original := results[1]

	row, err := toResultRow("run-3", original)
	require.NoError(t, err)

	assert.Equal(t, "run-3", row.RunID)
	assert.Equal(t, original.TestCaseID, row.TestCaseID)
	assert.Equal(t, string(original.Status), row.Status)
	assert.Equal(t, original.Passed, row.Passed)

	back, err := fromResultRow(row)
	require.NoError(t, err)
	assert.Equal(t, original.TestCaseID, back.TestCaseID)
	assert.Equal(t, original.Status, back.Status)
	assert.Len(t, back.Metrics, len(original.Metrics))
}

func TestFromResultRowRejectsBadDocument(t *testing.T) {
	t.Parallel()

	_, err := fromResultRow(&resultRow{TestCaseID: "x", Document: "{"})
	assert.ErrorContains(t, err, "decoding result x")
}

func TestOnCluster(t *testing.T) {
	t.Parallel()

	assert.Empty(t, onCluster(""))
	assert.Equal(t, "ON CLUSTER 'main'", onCluster("main"))
}
