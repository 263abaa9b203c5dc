package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/thleqel/llm-test-platform/internal/config"
	"github.com/thleqel/llm-test-platform/internal/testing/adapter"
	"github.com/thleqel/llm-test-platform/internal/testing/evaluator"
	"github.com/thleqel/llm-test-platform/internal/testing/table"
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
	"gopkg.in/yaml.v3"
)

var errSuiteInvalid = errors.New("suite is invalid")

var validateCmd = &cobra.Command{
	Use:   "validate <suite.yaml>",
	Short: "Validate a suite file without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return ValidateSuite(args[0])
	},
}

var listSuitesCmd = &cobra.Command{
	Use:   "list-suites [dir]",
	Short: "List suites found in a directory (default SUITES_DIR)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}

		return ListSuites(dir)
	},
}

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List registered adapter types and built-in functions",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return ListAdapters()
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "List the metrics offered by the evaluator",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return ListMetrics()
	},
}

// ValidateSuite reports every error and warning found in a suite file.
func ValidateSuite(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path supplied by the operator
	if err != nil {
		return fmt.Errorf("failed to read suite: %w", err)
	}

	var suite testdef.Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return fmt.Errorf("failed to decode suite: %w", err)
	}

	report := testdef.Validate(&suite)

	for _, w := range report.Warnings {
		fmt.Printf("⚠️  %s\n", w)
	}

	if !report.Valid() {
		for _, e := range report.Errors {
			fmt.Printf("❌ %s\n", e)
		}

		return fmt.Errorf("%w: %d error(s) in %s", errSuiteInvalid, len(report.Errors), path)
	}

	fmt.Printf("✅ Suite '%s' is valid (%d test cases)\n", suite.Name, len(suite.TestCases))

	return nil
}

// ListSuites prints the suites under dir. An empty dir uses SUITES_DIR.
func ListSuites(dir string) error {
	if dir == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		dir = cfg.SuitesDir
	}

	suites, err := testdef.NewLoader(Logger).LoadSuites(dir)
	if err != nil {
		return fmt.Errorf("failed to load suites: %w", err)
	}

	if len(suites) == 0 {
		fmt.Printf("No suites found in %s\n", dir)
		return nil
	}

	rows := make([][]string, 0, len(suites))
	for _, s := range suites {
		adapterType := "-"
		if def := s.Adapter(); def != nil {
			adapterType = def.Type
		}

		rows = append(rows, []string{s.Name, s.Version, fmt.Sprintf("%d", len(s.TestCases)), adapterType, s.Path})
	}

	fmt.Println(table.NewRenderer(Logger).RenderToString(
		[]string{"Suite", "Version", "Tests", "Default Adapter", "Path"},
		rows,
	))

	return nil
}

// ListAdapters prints the adapter type tags and built-in function names.
func ListAdapters() error {
	registry := adapter.NewDefaultRegistry(&adapter.Options{Logger: Logger})
	if err := adapter.RegisterBuiltins(registry.Functions()); err != nil {
		return fmt.Errorf("failed to register builtin functions: %w", err)
	}

	fmt.Printf("Adapter types: %s\n", strings.Join(registry.List(), ", "))
	fmt.Printf("Functions:     %s\n", strings.Join(registry.Functions().Names(), ", "))

	return nil
}

// ListMetrics asks the evaluator which metrics it supports.
func ListMetrics() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client := evaluator.NewClient(&evaluator.Config{
		BaseURL:    cfg.EvaluatorURL,
		Timeout:    cfg.EvaluatorTimeout,
		MaxRetries: cfg.EvaluatorRetries,
		Logger:     Logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	names, err := client.ListMetrics(ctx)
	if err != nil {
		return fmt.Errorf("failed to list metrics from %s: %w", cfg.EvaluatorURL, err)
	}

	fmt.Printf("Metrics offered by %s:\n", cfg.EvaluatorURL)
	for _, name := range names {
		fmt.Printf("  - %s\n", name)
	}

	return nil
}

func init() {
	rootCmd.AddCommand(validateCmd, listSuitesCmd, adaptersCmd, metricsCmd)
}
