package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
)

// Format is an export file format.
type Format string

// Supported export formats.
const (
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

var errUnknownFormat = errors.New("unknown export format")

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q (expected json or html)", errUnknownFormat, s)
	}
}

// Report is the document written by Export.
type Report struct {
	Run         *llmtest.TestRun      `json:"run"`
	Summary     *Summary              `json:"summary"`
	Results     []*llmtest.TestResult `json:"results"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// BuildReport loads everything needed to export a run.
func BuildReport(ctx context.Context, s Store, runID string) (*Report, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	results, err := s.GetRunResults(ctx, runID)
	if err != nil {
		return nil, err
	}

	return &Report{
		Run:         run,
		Summary:     NewSummary(run),
		Results:     results,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// Export writes a run report to path. An empty path defaults to
// "<run_id>.<format>" in the working directory. It returns the written path.
func Export(ctx context.Context, s Store, runID string, format Format, path string) (string, error) {
	report, err := BuildReport(ctx, s, runID)
	if err != nil {
		return "", err
	}

	if path == "" {
		path = fmt.Sprintf("%s.%s", runID, format)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", fmt.Errorf("creating export directory: %w", err)
		}
	}

	f, err := os.Create(path) // #nosec G304 -- path is chosen by the operator
	if err != nil {
		return "", fmt.Errorf("creating export file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := WriteReport(f, report, format); err != nil {
		return "", err
	}

	return path, nil
}

// WriteReport renders report in the given format.
func WriteReport(w io.Writer, report *Report, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encoding json report: %w", err)
		}

		return nil
	case FormatHTML:
		if err := reportTemplate.Execute(w, report); err != nil {
			return fmt.Errorf("rendering html report: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownFormat, format)
	}
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"lower": func(s llmtest.Status) string { return strings.ToLower(string(s)) },
	"pct":   func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"score": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"ms":    func(v float64) string { return fmt.Sprintf("%.0fms", v) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Test run {{.Summary.RunID}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%; margin-bottom: 1em; }
th, td { border: 1px solid #ddd; padding: 6px; text-align: left; vertical-align: top; }
.passed { color: #1a7f37; } .failed { color: #cf222e; } .error { color: #bc4c00; } .skipped { color: #6e7781; }
pre { white-space: pre-wrap; margin: 0; }
</style>
</head>
<body>
<h1>{{.Summary.SuiteName}}</h1>
<p>Run <code>{{.Summary.RunID}}</code> started {{.Run.StartTime.Format "2006-01-02 15:04:05 MST"}}, generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>
<table>
<tr><th>Total</th><th>Passed</th><th>Failed</th><th>Errors</th><th>Skipped</th><th>Pass rate</th><th>Duration</th></tr>
<tr><td>{{.Summary.Total}}</td><td>{{.Summary.Passed}}</td><td>{{.Summary.Failed}}</td><td>{{.Summary.Errors}}</td><td>{{.Summary.Skipped}}</td><td>{{pct .Summary.PassRate}}</td><td>{{ms .Summary.DurationMS}}</td></tr>
</table>
<table>
<tr><th>Test case</th><th>Status</th><th>Input</th><th>Actual output</th><th>Metrics</th><th>Error</th></tr>
{{- range .Results}}
<tr>
<td>{{.TestCaseID}}{{if .TestCaseName}}<br><small>{{.TestCaseName}}</small>{{end}}</td>
<td class="{{lower .Status}}">{{.Status}}</td>
<td><pre>{{.Input}}</pre></td>
<td><pre>{{.ActualOutput}}</pre></td>
<td>{{range .Metrics}}<div class="{{if .Passed}}passed{{else}}failed{{end}}">{{.Name}}: {{score .Score}} / {{score .Threshold}}{{if .Reason}}<br><small>{{.Reason}}</small>{{end}}</div>{{end}}</td>
<td>{{.Error}}</td>
</tr>
{{- end}}
</table>
</body>
</html>
`))
