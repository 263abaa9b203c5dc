// Package output prints test run progress and results for humans.
package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
	"github.com/thleqel/llm-test-platform/internal/testing/format"
	"github.com/thleqel/llm-test-platform/internal/testing/metrics"
	"github.com/thleqel/llm-test-platform/internal/testing/table"
)

// Formatter provides clean, human-friendly output
type Formatter interface {
	llmtest.Listener

	PrintPhase(phase string)
	PrintProgress(message string, duration time.Duration)
	PrintSuccess(message string)
	PrintError(message string, err error)
	PrintTestResults(results []*llmtest.TestResult)
	PrintSummary(run *llmtest.TestRun)
	PrintAdapterSummary()
}

type formatter struct {
	writer  io.Writer
	verbose bool
	mu      sync.Mutex

	// Table formatting components
	metrics          metrics.Collector
	resultsFormatter *table.ResultsFormatter
	summaryFormatter *table.SummaryFormatter

	// Colors
	green  *color.Color
	red    *color.Color
	yellow *color.Color
	blue   *color.Color
	gray   *color.Color
}

// NewFormatter creates a new output formatter
func NewFormatter(
	writer io.Writer,
	verbose bool,
	metricsCollector metrics.Collector,
	resultsFormatter *table.ResultsFormatter,
	summaryFormatter *table.SummaryFormatter,
) Formatter {
	return &formatter{
		writer:           writer,
		verbose:          verbose,
		metrics:          metricsCollector,
		resultsFormatter: resultsFormatter,
		summaryFormatter: summaryFormatter,
		green:            color.New(color.FgGreen),
		red:              color.New(color.FgRed),
		yellow:           color.New(color.FgYellow),
		blue:             color.New(color.FgBlue),
		gray:             color.New(color.FgHiBlack),
	}
}

// PrintPhase prints phase separator
func (f *formatter) PrintPhase(phase string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blue.Fprintf(f.writer, "\n▸ %s\n", phase)
}

// PrintProgress prints progress with timing
func (f *formatter) PrintProgress(message string, duration time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if duration > 0 {
		f.gray.Fprintf(f.writer, "%s (%s)\n", message, format.Duration(duration))
	} else {
		fmt.Fprintf(f.writer, "%s\n", message)
	}
}

// PrintSuccess prints green message
func (f *formatter) PrintSuccess(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.green.Fprintf(f.writer, "%s\n", message)
}

// PrintError prints red message + error details
func (f *formatter) PrintError(message string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.red.Fprintf(f.writer, "%s", message)
	if err != nil {
		f.red.Fprintf(f.writer, ": %v", err)
	}
	fmt.Fprintf(f.writer, "\n")
}

// PrintTestResults prints a table of test results
func (f *formatter) PrintTestResults(results []*llmtest.TestResult) {
	output := f.resultsFormatter.Format(results)
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintln(f.writer, output)
}

// PrintSummary prints a summary table with aggregate statistics
func (f *formatter) PrintSummary(run *llmtest.TestRun) {
	output := f.summaryFormatter.Format(run)
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintln(f.writer, output)
}

// PrintAdapterSummary prints per-adapter pass rates from the metrics collector
func (f *formatter) PrintAdapterSummary() {
	if f.metrics == nil {
		return
	}

	output := f.summaryFormatter.FormatAdapters(f.metrics.GetSummary())
	if output == "" {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintln(f.writer, output)
}

// OnRunStarted announces the run.
func (f *formatter) OnRunStarted(run *llmtest.TestRun) {
	snap := run.Snapshot()
	f.PrintPhase(fmt.Sprintf("Running %d tests from %s (run %s)", snap.TotalTests, snap.SuiteName, snap.ID))
}

// OnTestResult prints one line per completed test, colored by status.
func (f *formatter) OnTestResult(run *llmtest.TestRun, result *llmtest.TestResult) {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := run.Snapshot().TotalTests
	line := fmt.Sprintf("[%d/%d] %s %s (%s)", run.Completed(), total, result.Status, result.TestCaseID, format.Millis(result.DurationMS))

	switch result.Status {
	case llmtest.StatusPassed:
		f.green.Fprintln(f.writer, line)
	case llmtest.StatusSkipped:
		f.gray.Fprintln(f.writer, line)
	case llmtest.StatusFailed:
		f.yellow.Fprintln(f.writer, line)
	default:
		f.red.Fprintln(f.writer, line)
	}

	if f.verbose && result.Error != "" {
		f.gray.Fprintf(f.writer, "    %s\n", format.Truncate(result.Error, 120))
	}
}

// OnRunCompleted is a no-op; callers print the summary once persistence is done.
func (f *formatter) OnRunCompleted(*llmtest.TestRun, []*llmtest.TestResult) {}
