package table

import (
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
	"github.com/thleqel/llm-test-platform/internal/testing/metrics"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestResultsFormatter_Format(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	f := NewResultsFormatter(quietLogger(), NewRenderer(quietLogger()))

	assert.Equal(t, "No tests executed", f.Format(nil))

	out := f.Format([]*llmtest.TestResult{
		{TestCaseID: "capital", Status: llmtest.StatusPassed, Metrics: []llmtest.MetricResult{{Name: "m", Score: 0.9, Threshold: 0.5, Passed: true}}},
		{
			TestCaseID:   "weather",
			Status:       llmtest.StatusFailed,
			ActualOutput: "It is sunny",
			Metrics:      []llmtest.MetricResult{{Name: "faithfulness", Score: 0.2, Threshold: 0.7, Reason: "unsupported claim"}},
		},
		{TestCaseID: "broken", Status: llmtest.StatusError, Error: "connection refused"},
	})

	assert.Contains(t, out, "capital")
	assert.Contains(t, out, "✓ PASSED")
	assert.Contains(t, out, "✗ FAILED")
	assert.Contains(t, out, "! ERROR")
	assert.Contains(t, out, "Failed Test Details")
	assert.Contains(t, out, "0.20/0.70")
	assert.Contains(t, out, "unsupported claim")
	assert.Contains(t, out, "connection refused")
}

func TestSummaryFormatter_Format(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	run := llmtest.NewTestRun("run-42", "smoke", 2, nil)
	run.Record(llmtest.StatusPassed)
	run.Record(llmtest.StatusFailed)
	run.Finish(run.StartTime.Add(2 * time.Second))
	run.SetMetadata("persistence_error", "disk full")

	f := NewSummaryFormatter(quietLogger(), NewRenderer(quietLogger()))
	out := f.Format(run)

	assert.Contains(t, out, "run-42")
	assert.Contains(t, out, "smoke")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "2.0s")
	assert.Contains(t, out, "disk full")

	assert.Empty(t, f.FormatAdapters(metrics.SummaryMetric{}))
	adapters := f.FormatAdapters(metrics.SummaryMetric{
		ByAdapter: map[string]metrics.AdapterSummary{"http": {Total: 2, Passed: 1}},
	})
	assert.Contains(t, adapters, "1/2")
}

func TestRunsFormatter(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	f := NewRunsFormatter(quietLogger(), NewRenderer(quietLogger()))

	assert.Equal(t, "No test runs found", f.Format(nil))
	assert.Contains(t, f.FormatHistory("tc-1", nil), "No history found for test case tc-1")

	run := llmtest.NewTestRun("run-1", "smoke", 1, nil)
	run.Record(llmtest.StatusPassed)
	assert.Contains(t, f.Format([]*llmtest.TestRun{run}), "run-1")

	history := f.FormatHistory("tc-1", []*llmtest.TestResult{
		{RunID: "run-1", TestCaseID: "tc-1", Status: llmtest.StatusPassed, ActualOutput: "Paris"},
	})
	assert.Contains(t, history, "Paris")
	assert.Contains(t, history, "run-1")
}

func TestRenderer_ColumnAlignment(t *testing.T) {
	t.Parallel()

	out := NewRenderer(quietLogger()).RenderToString(
		[]string{"Name", "Count"},
		[][]string{{"a", "1"}, {"bbbbbb", "12345"}},
		WithColumnAlignment(tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT),
	)

	assert.Contains(t, out, "a      ")
	assert.Contains(t, out, "    1 ")
	assert.NotContains(t, out, "1    ")
}

func TestRunsColumnAlignment_CoversEveryHeader(t *testing.T) {
	t.Parallel()

	assert.Len(t, runsColumnAlignment, 9)
	assert.Equal(t, tablewriter.ALIGN_LEFT, runsColumnAlignment[0])
	assert.Equal(t, tablewriter.ALIGN_RIGHT, runsColumnAlignment[4])
}
