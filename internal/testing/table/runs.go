package table

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
	"github.com/thleqel/llm-test-platform/internal/testing/format"
)

// RunsFormatter formats stored runs and per-test history.
type RunsFormatter struct {
	log      logrus.FieldLogger
	renderer Renderer
	colors   *ColorHelper
}

// NewRunsFormatter creates a new runs table formatter.
func NewRunsFormatter(log logrus.FieldLogger, renderer Renderer) *RunsFormatter {
	return &RunsFormatter{
		log:      log.WithField("component", "table.runs_formatter"),
		renderer: renderer,
		colors:   NewColorHelper(),
	}
}

// Format lists runs, newest first as given.
func (f *RunsFormatter) Format(runs []*llmtest.TestRun) string {
	if len(runs) == 0 {
		return "No test runs found"
	}

	headers := []string{"Run ID", "Suite", "Started", "Status", "Passed", "Failed", "Errors", "Skipped", "Pass Rate"}
	rows := make([][]string, 0, len(runs))

	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.SuiteName,
			format.Timestamp(run.StartTime),
			string(run.Status),
			fmt.Sprintf("%d/%d", run.Passed, run.TotalTests),
			fmt.Sprintf("%d", run.Failed),
			fmt.Sprintf("%d", run.Errors),
			fmt.Sprintf("%d", run.Skipped),
			f.colors.FormatPercentage(run.PassRate()),
		})
	}

	return f.renderer.RenderToString(headers, rows, WithColumnAlignment(runsColumnAlignment...))
}

// Counts are right-aligned so they line up across runs.
var runsColumnAlignment = []int{
	tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
	tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
}

// FormatHistory lists the results of one test case across runs.
func (f *RunsFormatter) FormatHistory(testCaseID string, results []*llmtest.TestResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No history found for test case %s", testCaseID)
	}

	headers := []string{"Run ID", "Timestamp", "Status", "Duration", "Output"}
	rows := make([][]string, 0, len(results))

	for _, r := range results {
		rows = append(rows, []string{
			r.RunID,
			format.Timestamp(r.Timestamp),
			f.colors.FormatStatus(string(r.Status)),
			format.Millis(r.DurationMS),
			format.Truncate(r.ActualOutput, maxDetailLength),
		})
	}

	return "\n" + f.colors.Header("▸ History: "+testCaseID) + "\n\n" + f.renderer.RenderToString(headers, rows)
}
