package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/thleqel/llm-test-platform/internal/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the execution and results HTTP API",
	Long: `Start the HTTP API used by the web UI.

Runs are started in the background and stream their results to websocket
subscribers at /ws/test-execution/{run_id}.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		eng, err := newEngine(ctx, &engineOptions{}, Logger)
		if err != nil {
			return err
		}
		defer eng.Close()

		addr := serveAddr
		if addr == "" {
			addr = eng.cfg.APIAddr
		}

		server := api.NewServer(&api.Config{
			Logger:       Logger,
			Addr:         addr,
			Runner:       eng.orchestrator,
			Loader:       eng.loader,
			Store:        eng.store,
			Evaluator:    eng.evaluator,
			EvaluatorURL: eng.cfg.EvaluatorURL,
			SuitesDir:    eng.cfg.SuitesDir,
			Adapters:     eng.registry,
		})

		fmt.Printf("🚀 Serving API on %s\n", addr)

		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default API_ADDR)")
	rootCmd.AddCommand(serveCmd)
}
