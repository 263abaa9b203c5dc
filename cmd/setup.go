package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/thleqel/llm-test-platform/internal/actions"
)

var (
	forceSetup bool
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Setup the ClickHouse result store",
	Long: `Validates configuration and sets up the ClickHouse result store.
This command will:
- Validate your configuration
- Test the ClickHouse connection
- Create the results database if it doesn't exist
- Run database migrations

Only needed when STORE_BACKEND=clickhouse. The file and sqlite backends
prepare themselves on first use.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		if !forceSetup {
			// First call to show config
			if err := actions.Setup(false, false); err != nil {
				return err
			}
			fmt.Println("\nUse --force flag to proceed with setup")
			return nil
		}

		if err := actions.Setup(false, true); err != nil {
			return fmt.Errorf("setup failed: %w", err)
		}
		return nil
	},
}

func init() {
	setupCmd.Flags().BoolVarP(&forceSetup, "force", "f", false, "Skip confirmation and proceed with setup")
	rootCmd.AddCommand(setupCmd)
}
