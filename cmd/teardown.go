package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/thleqel/llm-test-platform/internal/actions"
)

var (
	forceTeardown bool
)

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Clear all stored runs from the ClickHouse result store",
	Long: `Validates configuration and truncates every table of the ClickHouse results database.
This command will:
- Validate your configuration
- Check the server hostname against LLMTEST_SAFE_HOSTS
- TRUNCATE every results table (migrations are kept)

⚠️  WARNING: This will permanently delete all stored runs!`,
	RunE: func(_ *cobra.Command, _ []string) error {
		if !forceTeardown {
			// First call to show config
			if err := actions.Teardown(false, false); err != nil {
				return err
			}
			fmt.Println("\n⚠️  WARNING: This will permanently delete all stored runs!")
			fmt.Println("Use --force flag to proceed with teardown")
			return nil
		}

		if err := actions.Teardown(false, true); err != nil {
			return fmt.Errorf("teardown failed: %w", err)
		}
		return nil
	},
}

func init() {
	teardownCmd.Flags().BoolVarP(&forceTeardown, "force", "f", false, "Skip confirmation and proceed with teardown")
	rootCmd.AddCommand(teardownCmd)
}
