package output

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
	"github.com/thleqel/llm-test-platform/internal/testing/metrics"
	"github.com/thleqel/llm-test-platform/internal/testing/table"
)

func newTestFormatter(buf *bytes.Buffer, collector metrics.Collector) Formatter {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	renderer := table.NewRenderer(log)

	return NewFormatter(
		buf,
		true,
		collector,
		table.NewResultsFormatter(log, renderer),
		table.NewSummaryFormatter(log, renderer),
	)
}

func TestFormatter_ListenerOutput(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	buf := &bytes.Buffer{}
	f := newTestFormatter(buf, nil)

	run := llmtest.NewTestRun("run-1", "smoke", 2, nil)
	f.OnRunStarted(run)

	run.Record(llmtest.StatusPassed)
	f.OnTestResult(run, &llmtest.TestResult{TestCaseID: "a", Status: llmtest.StatusPassed, DurationMS: 12})

	run.Record(llmtest.StatusError)
	f.OnTestResult(run, &llmtest.TestResult{TestCaseID: "b", Status: llmtest.StatusError, Error: "boom"})

	f.OnRunCompleted(run, nil)

	out := buf.String()
	assert.Contains(t, out, "Running 2 tests from smoke (run run-1)")
	assert.Contains(t, out, "[1/2] PASSED a (12ms)")
	assert.Contains(t, out, "[2/2] ERROR b")
	assert.Contains(t, out, "    boom")
}

func TestFormatter_Messages(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	buf := &bytes.Buffer{}
	f := newTestFormatter(buf, metrics.NewCollector(logrus.New()))

	f.PrintSuccess("done")
	f.PrintError("failed to save", errors.New("disk full"))
	f.PrintAdapterSummary()

	assert.Contains(t, buf.String(), "done\n")
	assert.Contains(t, buf.String(), "failed to save: disk full\n")
	assert.NotContains(t, buf.String(), "Adapters")
}
