package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/thleqel/llm-test-platform/internal/store"
	"github.com/thleqel/llm-test-platform/internal/testing/table"
)

var (
	listSuite    string
	listLimit    int
	historyLimit int
	exportFormat string
	exportPath   string
)

var listRunsCmd = &cobra.Command{
	Use:   "list-runs",
	Short: "List stored test runs",
	Long: `List stored test runs, newest first.

Examples:
  llmtest list-runs
  llmtest list-runs --suite smoke --limit 5`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return ListRuns(listSuite, listLimit)
	},
}

var showRunCmd = &cobra.Command{
	Use:   "show-run <run-id>",
	Short: "Show the results of a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return ShowRun(args[0])
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <test-case-id>",
	Short: "Show the results of one test case across runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return ShowHistory(args[0], historyLimit)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a stored run as JSON or HTML",
	Long: `Export a stored run with its summary and every test result.

Examples:
  llmtest export 6f1c... --format html
  llmtest export 6f1c... --format json --output reports/latest.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return ExportRun(args[0], exportFormat, exportPath)
	},
}

// ListRuns prints stored runs, optionally filtered by suite name.
func ListRuns(suite string, limit int) error {
	ctx := context.Background()

	s, err := openStore(ctx, Logger)
	if err != nil {
		return err
	}
	defer closeStore(s)

	runs, err := s.ListRuns(ctx, suite, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	renderer := table.NewRenderer(Logger)
	fmt.Println(table.NewRunsFormatter(Logger, renderer).Format(runs))

	return nil
}

// ShowRun prints the summary and result tables of a stored run.
func ShowRun(runID string) error {
	ctx := context.Background()

	s, err := openStore(ctx, Logger)
	if err != nil {
		return err
	}
	defer closeStore(s)

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	results, err := s.GetRunResults(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load results for run %s: %w", runID, err)
	}

	renderer := table.NewRenderer(Logger)
	fmt.Println(table.NewResultsFormatter(Logger, renderer).Format(results))
	fmt.Println(table.NewSummaryFormatter(Logger, renderer).Format(run))

	return nil
}

// ShowHistory prints the results of one test case across runs.
func ShowHistory(testCaseID string, limit int) error {
	ctx := context.Background()

	s, err := openStore(ctx, Logger)
	if err != nil {
		return err
	}
	defer closeStore(s)

	results, err := s.GetTestCaseHistory(ctx, testCaseID, limit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	renderer := table.NewRenderer(Logger)
	fmt.Println(table.NewRunsFormatter(Logger, renderer).FormatHistory(testCaseID, results))

	return nil
}

// ExportRun writes a report for a stored run and prints where it went.
func ExportRun(runID, formatName, path string) error {
	format, err := store.ParseFormat(formatName)
	if err != nil {
		return err
	}

	ctx := context.Background()

	s, err := openStore(ctx, Logger)
	if err != nil {
		return err
	}
	defer closeStore(s)

	written, err := store.Export(ctx, s, runID, format, path)
	if err != nil {
		return fmt.Errorf("failed to export run %s: %w", runID, err)
	}

	fmt.Printf("✅ Report written to %s\n", written)

	return nil
}

func closeStore(s store.Store) {
	if err := s.Close(); err != nil {
		Logger.WithError(err).Warn("Failed to close result store")
	}
}

func init() {
	listRunsCmd.Flags().StringVar(&listSuite, "suite", "", "Only list runs of this suite")
	listRunsCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum runs to list (0 for all)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum results to show (0 for all)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", string(store.FormatJSON), "Report format: json or html")
	exportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "Report path (default <run_id>.<format>)")

	rootCmd.AddCommand(listRunsCmd, showRunCmd, historyCmd, exportCmd)
}
