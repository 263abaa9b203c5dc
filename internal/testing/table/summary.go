package table

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
	"github.com/thleqel/llm-test-platform/internal/testing/format"
	"github.com/thleqel/llm-test-platform/internal/testing/metrics"
)

// SummaryFormatter formats run statistics as a table.
type SummaryFormatter struct {
	log      logrus.FieldLogger
	renderer Renderer
	colors   *ColorHelper
}

// NewSummaryFormatter creates a new summary table formatter.
func NewSummaryFormatter(log logrus.FieldLogger, renderer Renderer) *SummaryFormatter {
	return &SummaryFormatter{
		log:      log.WithField("component", "table.summary_formatter"),
		renderer: renderer,
		colors:   NewColorHelper(),
	}
}

// Format converts a finished run into a formatted table string.
func (f *SummaryFormatter) Format(run *llmtest.TestRun) string {
	snap := run.Snapshot()
	passRate := run.PassRate()

	// Format values with colors
	passedValue := fmt.Sprintf("%d (%s)", snap.Passed, f.colors.FormatPercentage(passRate))
	if snap.Passed == snap.TotalTests {
		passedValue = f.colors.Success(fmt.Sprintf("%d (%.1f%%)", snap.Passed, passRate))
	}

	failedValue := f.colors.Success("0")
	if snap.Failed > 0 {
		failedValue = f.colors.Failure(fmt.Sprintf("%d", snap.Failed))
	}

	errorValue := f.colors.Success("0")
	if snap.Errors > 0 {
		errorValue = f.colors.Failure(fmt.Sprintf("%d", snap.Errors))
	}

	var (
		headers = []string{"Metric", "Value"}
		rows    = [][]string{
			{"Run ID", snap.ID},
			{"Suite", snap.SuiteName},
			{"Total Tests", f.colors.Bold(fmt.Sprintf("%d", snap.TotalTests))},
			{"Passed", passedValue},
			{"Failed", failedValue},
			{"Errors", errorValue},
			{"Skipped", f.colors.Muted(fmt.Sprintf("%d", snap.Skipped))},
			{"Total Duration", format.Duration(run.Duration())},
		}
	)

	if msg, ok := snap.Metadata["persistence_error"].(string); ok {
		rows = append(rows, []string{"Persistence", f.colors.Failure(msg)})
	}

	return "\n" + f.colors.Header("▸ Summary") + "\n\n" + f.renderer.RenderToString(headers, rows)
}

// FormatAdapters breaks collected metrics down by adapter type.
func (f *SummaryFormatter) FormatAdapters(summary metrics.SummaryMetric) string {
	if len(summary.ByAdapter) == 0 {
		return ""
	}

	names := make([]string, 0, len(summary.ByAdapter))
	for name := range summary.ByAdapter {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := []string{"Adapter", "Passed", "Pass Rate"}
	rows := make([][]string, 0, len(names))

	for _, name := range names {
		as := summary.ByAdapter[name]

		rate := 0.0
		if as.Total > 0 {
			rate = float64(as.Passed) / float64(as.Total) * 100.0
		}

		rows = append(rows, []string{
			name,
			f.colors.FormatMetrics(as.Passed, as.Total),
			f.colors.FormatPercentage(rate),
		})
	}

	footer := []string{"average", format.Duration(summary.AverageDuration), "slowest " + summary.SlowestTest}

	return "\n" + f.colors.Header("▸ Adapters") + "\n\n" +
		f.renderer.RenderToString(headers, rows, WithFooter(footer))
}
