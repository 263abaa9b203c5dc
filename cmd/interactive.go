package cmd

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/thleqel/llm-test-platform/internal/actions"
	"github.com/thleqel/llm-test-platform/internal/config"
	"github.com/thleqel/llm-test-platform/internal/interactive"
	"github.com/thleqel/llm-test-platform/internal/store"
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Launch interactive TUI mode",
	Long:  `Launches the interactive Terminal User Interface for the LLM test platform.`,
	Run: func(_ *cobra.Command, _ []string) {
		RunInteractive()
	},
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}

// RunInteractive shows the main menu until the user exits.
func RunInteractive() {
	fmt.Println("LLM Test Platform - Interactive Mode")
	fmt.Println("====================================")
	fmt.Println()

	for {
		options := []interactive.MenuOption{
			{
				Name:        "🧪 Run Suite",
				Description: "Pick a suite and run it against the evaluator",
				Action:      runSuiteMenu,
			},
			{
				Name:        "📊 Results",
				Description: "Browse stored runs, test history and exports",
				Action:      showResultsMenu,
			},
			{
				Name:        "📚 Suites",
				Description: "List and validate suite files",
				Action:      showSuitesMenu,
			},
			{
				Name:        "🗄️  Result Store",
				Description: "Setup or clear the ClickHouse result store",
				Action:      showStoreMenu,
			},
			{
				Name:        "📋 Show Config",
				Description: "Display current environment configuration",
				Action: func() error {
					if err := actions.ShowConfig(); err != nil {
						fmt.Printf("\n❌ Error: %v\n", err)
					}
					interactive.PauseForEnter()
					return nil
				},
			},
		}

		if err := interactive.ShowMainMenu(options); err != nil {
			if errors.Is(err, interactive.ErrExit) {
				fmt.Println("Goodbye!")
				return
			}
			log.Fatal(err)
		}

		fmt.Println()
	}
}

func runSuiteMenu() error {
	defer interactive.PauseForEnter()

	path, err := selectSuite()
	if err != nil {
		fmt.Printf("\n❌ Error: %v\n", err)
		return nil
	}

	tags, err := interactive.Input("Tags to run (comma-separated, empty for all):", "")
	if err != nil {
		return nil
	}

	ids, err := interactive.Input("Test case ids to run (comma-separated, empty for all):", "")
	if err != nil {
		return nil
	}

	concurrency, err := interactive.Input("Max concurrency (0 for default):", "0")
	if err != nil {
		return nil
	}

	maxConcurrency, err := strconv.Atoi(concurrency)
	if err != nil {
		fmt.Printf("\n❌ Error: invalid concurrency %q\n", concurrency)
		return nil
	}

	opts := &RunOptions{
		SuitePath:      path,
		Tags:           interactive.SplitList(tags),
		TestIDs:        interactive.SplitList(ids),
		MaxConcurrency: maxConcurrency,
		ExportFormat:   string(store.FormatHTML),
		Export:         interactive.Confirm("Export an HTML report after the run?"),
	}

	if err := RunSuite(opts); err != nil {
		if errors.Is(err, errTestsFailed) {
			fmt.Println("\n❌ Some tests failed")
			return nil
		}
		fmt.Printf("\n❌ Error: %v\n", err)
		return nil
	}

	fmt.Println("\n✅ All tests passed")

	return nil
}

// selectSuite offers the suites under SUITES_DIR, falling back to a path prompt.
func selectSuite() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}

	suites, err := testdef.NewLoader(Logger).LoadSuites(cfg.SuitesDir)
	if err != nil || len(suites) == 0 {
		return interactive.Input("Suite file:", "")
	}

	choices := make([]string, 0, len(suites))
	for _, s := range suites {
		choices = append(choices, s.Path)
	}

	return interactive.Select("Which suite?", choices)
}

func showResultsMenu() error {
	options := []interactive.MenuOption{
		{
			Name:        "List Runs",
			Description: "Show the most recent stored runs",
			Action: func() error {
				suite, err := interactive.Input("Suite name (empty for all):", "")
				if err != nil {
					return nil
				}
				reportError(ListRuns(suite, 20))
				return nil
			},
		},
		{
			Name:        "Show Run",
			Description: "Show the result tables of one run",
			Action: func() error {
				runID, err := interactive.Input("Run id:", "")
				if err != nil {
					return nil
				}
				reportError(ShowRun(runID))
				return nil
			},
		},
		{
			Name:        "Test History",
			Description: "Show one test case across runs",
			Action: func() error {
				id, err := interactive.Input("Test case id:", "")
				if err != nil {
					return nil
				}
				reportError(ShowHistory(id, 20))
				return nil
			},
		},
		{
			Name:        "Export Run",
			Description: "Write a JSON or HTML report for a run",
			Action: func() error {
				runID, err := interactive.Input("Run id:", "")
				if err != nil {
					return nil
				}
				format, err := interactive.Select("Format:", []string{string(store.FormatHTML), string(store.FormatJSON)})
				if err != nil {
					return nil
				}
				reportError(ExportRun(runID, format, ""))
				return nil
			},
		},
	}

	return showSubMenu(options)
}

func showSuitesMenu() error {
	options := []interactive.MenuOption{
		{
			Name:        "List Suites",
			Description: "List suites under SUITES_DIR",
			Action: func() error {
				reportError(ListSuites(""))
				return nil
			},
		},
		{
			Name:        "Validate Suite",
			Description: "Report errors and warnings for a suite file",
			Action: func() error {
				path, err := selectSuite()
				if err != nil {
					return nil
				}
				reportError(ValidateSuite(path))
				return nil
			},
		},
		{
			Name:        "List Adapters",
			Description: "Show adapter types and built-in functions",
			Action: func() error {
				reportError(ListAdapters())
				return nil
			},
		},
		{
			Name:        "List Metrics",
			Description: "Ask the evaluator which metrics it offers",
			Action: func() error {
				reportError(ListMetrics())
				return nil
			},
		},
	}

	return showSubMenu(options)
}

func showStoreMenu() error {
	options := []interactive.MenuOption{
		{
			Name:        "Setup",
			Description: "Validate config and setup the ClickHouse database (safe to run multiple times)",
			Action: func() error {
				confirmAction(actions.Setup, "Do you want to proceed with the setup?", "Setup")
				return nil
			},
		},
		{
			Name:        "Teardown",
			Description: "Clear every stored run from ClickHouse (destructive)",
			Action: func() error {
				confirmAction(actions.Teardown, "⚠️  Are you SURE you want to delete all stored runs? This cannot be undone!", "Teardown")
				return nil
			},
		},
	}

	return showSubMenu(options)
}

// confirmAction runs a two-phase action: preview, confirm, then execute.
func confirmAction(action func(isInteractive, skipConfirm bool) error, question, name string) {
	defer interactive.PauseForEnter()

	if err := action(true, false); err != nil {
		fmt.Printf("\n❌ Error: %v\n", err)
		return
	}

	if !interactive.Confirm(question) {
		fmt.Printf("%s canceled.\n", name)
		return
	}

	if err := action(true, true); err != nil {
		fmt.Printf("\n❌ Error: %v\n", err)
	}
}

func showSubMenu(options []interactive.MenuOption) error {
	if err := interactive.ShowMainMenu(options); err != nil && !errors.Is(err, interactive.ErrExit) {
		return err
	}
	return nil
}

func reportError(err error) {
	if err != nil {
		fmt.Printf("\n❌ Error: %v\n", err)
	}
	interactive.PauseForEnter()
}
