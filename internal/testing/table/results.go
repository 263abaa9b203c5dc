package table

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
	"github.com/thleqel/llm-test-platform/internal/testing/format"
)

const (
	maxDetailLength = 50
	maxOutputLength = 200
)

// ResultsFormatter formats test results as a table.
type ResultsFormatter struct {
	log      logrus.FieldLogger
	renderer Renderer
	colors   *ColorHelper
}

// NewResultsFormatter creates a new results table formatter.
func NewResultsFormatter(log logrus.FieldLogger, renderer Renderer) *ResultsFormatter {
	return &ResultsFormatter{
		log:      log.WithField("component", "table.results_formatter"),
		renderer: renderer,
		colors:   NewColorHelper(),
	}
}

// Format converts test results into a formatted table string with failure details.
func (f *ResultsFormatter) Format(results []*llmtest.TestResult) string {
	if len(results) == 0 {
		return "No tests executed"
	}

	var (
		headers     = []string{"Test Case", "Status", "Metrics", "Duration", "Details"}
		rows        = make([][]string, 0, len(results))
		failedTests = make([]*llmtest.TestResult, 0)
	)

	for _, result := range results {
		var details string

		passedMetrics := 0
		for _, m := range result.Metrics {
			if m.Passed {
				passedMetrics++
			}
		}

		switch result.Status {
		case llmtest.StatusFailed, llmtest.StatusError:
			failedTests = append(failedTests, result)

			if failed := len(result.Metrics) - passedMetrics; failed > 0 {
				details = f.colors.Failure(fmt.Sprintf("%d/%d failed", failed, len(result.Metrics)))
			}

			if result.Error != "" {
				if details != "" {
					details += " - "
				}

				details += f.colors.Muted(format.Truncate(result.Error, maxDetailLength))
			}
		case llmtest.StatusSkipped:
			details = f.colors.Muted(format.Truncate(result.Error, maxDetailLength))
		}

		rows = append(rows, []string{
			result.TestCaseID,
			f.colors.FormatStatus(string(result.Status)),
			f.colors.FormatMetrics(passedMetrics, len(result.Metrics)),
			format.Millis(result.DurationMS),
			details,
		})
	}

	output := "\n" + f.colors.Header("▸ Test Results") + "\n\n" + f.renderer.RenderToString(headers, rows)

	// Add detailed failure section if there are any failures
	if len(failedTests) > 0 {
		output += f.formatFailureDetails(failedTests)
	}

	return output
}

// formatFailureDetails creates a detailed section showing every failed metric
func (f *ResultsFormatter) formatFailureDetails(failedTests []*llmtest.TestResult) string {
	var builder strings.Builder

	builder.WriteString("\n\n" + f.colors.Header("▸ Failed Test Details") + "\n\n")

	for i, test := range failedTests {
		if i > 0 {
			builder.WriteString("\n")
		}

		builder.WriteString(fmt.Sprintf("%s (%s)\n", test.TestCaseID, format.Millis(test.DurationMS)))

		if test.ActualOutput != "" {
			builder.WriteString(fmt.Sprintf("  %s: %s\n",
				f.colors.Info("Output"),
				format.Truncate(test.ActualOutput, maxOutputLength),
			))
		}

		if test.Error != "" {
			builder.WriteString(fmt.Sprintf("  %s: %s\n", f.colors.Failure("Error"), test.Error))
		}

		for _, m := range test.Metrics {
			if m.Passed {
				continue
			}

			builder.WriteString(fmt.Sprintf("  %s %s: %s\n",
				f.colors.Failure("✗"),
				f.colors.Bold(m.Name),
				f.colors.FormatScore(m.Score, m.Threshold, m.Passed),
			))

			if m.Reason != "" {
				builder.WriteString(fmt.Sprintf("    %s: %s\n",
					f.colors.Warning("Reason"),
					format.Truncate(m.Reason, maxOutputLength),
				))
			}
		}
	}

	return builder.String()
}

// FormatMetricBreakdown renders every metric of a single result.
func (f *ResultsFormatter) FormatMetricBreakdown(result *llmtest.TestResult) string {
	if len(result.Metrics) == 0 {
		return f.colors.Muted("No metrics evaluated")
	}

	headers := []string{"Metric", "Score", "Result", "Reason"}
	rows := make([][]string, 0, len(result.Metrics))

	for _, m := range result.Metrics {
		rows = append(rows, []string{
			m.Name,
			f.colors.FormatScore(m.Score, m.Threshold, m.Passed),
			f.colors.FormatPassed(m.Passed),
			format.Truncate(m.Reason, maxDetailLength),
		})
	}

	return f.renderer.RenderToString(headers, rows)
}
