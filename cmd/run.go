package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/thleqel/llm-test-platform/internal/store"
	"github.com/thleqel/llm-test-platform/internal/testing/orchestrator"
)

var (
	errTestsFailed = errors.New("one or more tests failed")
	errInvalidVar  = errors.New("variables must be given as key=value")
)

// RunOptions selects a suite and how to run it.
type RunOptions struct {
	SuitePath      string
	TestIDs        []string
	Tags           []string
	MaxConcurrency int
	EvaluatorURL   string
	Vars           []string
	ExportFormat   string
	ExportPath     string
	Export         bool
	Verbose        bool
}

var runOpts RunOptions

var runCmd = &cobra.Command{
	Use:   "run <suite.yaml>",
	Short: "Run a test suite",
	Long: `Run the test cases of a suite file against the configured evaluator.

Each test case triggers the system under test through its adapter, scores
the output with the requested metrics and the run is stored in the
configured result store.

Examples:
  llmtest run suites/smoke.yaml
  llmtest run suites/smoke.yaml --tags critical --max-concurrency 4
  llmtest run suites/smoke.yaml --test-ids tc-1,tc-2 --var api_key=secret
  llmtest run suites/smoke.yaml --export --export-format html`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		opts := runOpts
		opts.SuitePath = args[0]

		return RunSuite(&opts)
	},
}

// RunSuite loads and runs a suite, printing progress to stdout. It returns
// errTestsFailed when any test failed or errored.
func RunSuite(opts *RunOptions) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := commandLogger(opts.Verbose)

	vars, err := parseVars(opts.Vars)
	if err != nil {
		return err
	}

	var exportFormat store.Format
	if opts.Export {
		if exportFormat, err = store.ParseFormat(opts.ExportFormat); err != nil {
			return err
		}
	}

	eng, err := newEngine(ctx, &engineOptions{
		Writer:         os.Stdout,
		Verbose:        opts.Verbose,
		EvaluatorURL:   opts.EvaluatorURL,
		MaxConcurrency: opts.MaxConcurrency,
	}, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	suite, err := eng.loader.LoadSuite(opts.SuitePath)
	if err != nil {
		return fmt.Errorf("failed to load suite: %w", err)
	}

	run, results, err := eng.orchestrator.Run(ctx, &orchestrator.Request{
		Suite:          suite,
		TestIDs:        opts.TestIDs,
		Tags:           opts.Tags,
		MaxConcurrency: opts.MaxConcurrency,
		Runtime:        vars,
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n📦 Run ID: %s\n", run.ID)

	if persistErr, ok := run.Snapshot().Metadata["persistence_error"]; ok {
		fmt.Printf("⚠️  Results were not saved: %v\n", persistErr)
	} else if opts.Export {
		path, err := store.Export(ctx, eng.store, run.ID, exportFormat, opts.ExportPath)
		if err != nil {
			return fmt.Errorf("failed to export run: %w", err)
		}

		fmt.Printf("📄 Report written to %s\n", path)
	}

	if orchestrator.Failed(results) {
		return errTestsFailed
	}

	return nil
}

// parseVars turns key=value pairs into runtime variables.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w, got %q", errInvalidVar, pair)
		}

		vars[key] = value
	}

	return vars, nil
}

func init() {
	runCmd.Flags().StringSliceVar(&runOpts.TestIDs, "test-ids", nil, "Only run these test case ids (comma-separated)")
	runCmd.Flags().StringSliceVar(&runOpts.Tags, "tags", nil, "Only run test cases carrying any of these tags")
	runCmd.Flags().IntVar(&runOpts.MaxConcurrency, "max-concurrency", 0, "Maximum concurrent test cases (default from suite or MAX_CONCURRENCY)")
	runCmd.Flags().StringVar(&runOpts.EvaluatorURL, "evaluator-url", "", "Override EVALUATOR_URL")
	runCmd.Flags().StringArrayVar(&runOpts.Vars, "var", nil, "Runtime variable as key=value (repeatable)")
	runCmd.Flags().BoolVar(&runOpts.Export, "export", false, "Export a report after the run")
	runCmd.Flags().StringVar(&runOpts.ExportFormat, "export-format", string(store.FormatJSON), "Report format: json or html")
	runCmd.Flags().StringVar(&runOpts.ExportPath, "export-path", "", "Report path (default <run_id>.<format>)")
	runCmd.Flags().BoolVarP(&runOpts.Verbose, "verbose", "v", false, "Verbose output")
	rootCmd.AddCommand(runCmd)
}
