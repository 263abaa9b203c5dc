package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/thleqel/llm-test-platform/internal/actions"
	"github.com/thleqel/llm-test-platform/internal/config"
	"github.com/thleqel/llm-test-platform/internal/store"
	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
	"github.com/thleqel/llm-test-platform/internal/testing/adapter"
	"github.com/thleqel/llm-test-platform/internal/testing/evaluator"
	"github.com/thleqel/llm-test-platform/internal/testing/metrics"
	"github.com/thleqel/llm-test-platform/internal/testing/orchestrator"
	"github.com/thleqel/llm-test-platform/internal/testing/output"
	"github.com/thleqel/llm-test-platform/internal/testing/table"
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
)

// engine bundles every collaborator a run needs.
type engine struct {
	cfg          *config.AppConfig
	store        store.Store
	evaluator    evaluator.Client
	registry     *adapter.Registry
	loader       testdef.Loader
	metrics      metrics.Collector
	formatter    output.Formatter
	orchestrator *orchestrator.Orchestrator
	log          logrus.FieldLogger
}

// engineOptions tunes engine construction for one command.
type engineOptions struct {
	// Writer receives human output; nil disables the console formatter.
	Writer         io.Writer
	Verbose        bool
	EvaluatorURL   string
	MaxConcurrency int
}

func newEngine(ctx context.Context, opts *engineOptions, log logrus.FieldLogger) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if opts.EvaluatorURL != "" {
		cfg.EvaluatorURL = opts.EvaluatorURL
	}

	if opts.MaxConcurrency > 0 {
		cfg.MaxConcurrency = opts.MaxConcurrency
	}

	resultStore, err := actions.OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	registry := adapter.NewDefaultRegistry(&adapter.Options{
		Logger:        log,
		ScreenshotDir: cfg.ScreenshotDir(),
	})
	if err := adapter.RegisterBuiltins(registry.Functions()); err != nil {
		_ = resultStore.Close()
		return nil, fmt.Errorf("registering builtin functions: %w", err)
	}

	evalClient := evaluator.NewClient(&evaluator.Config{
		BaseURL:    cfg.EvaluatorURL,
		Timeout:    cfg.EvaluatorTimeout,
		MaxRetries: cfg.EvaluatorRetries,
		Logger:     log,
	})

	testCfg := llmtest.DefaultTestConfig()
	testCfg.MaxConcurrency = cfg.MaxConcurrency
	testCfg.EvaluationTimeout = cfg.EvaluatorTimeout

	executor := llmtest.NewExecutor(&llmtest.ExecutorConfig{
		Logger:     log,
		Adapters:   registry,
		Evaluator:  evalClient,
		TestConfig: testCfg,
	})

	collector := metrics.NewCollector(log)

	scheduler := llmtest.NewScheduler(&llmtest.SchedulerConfig{
		Logger:         log,
		Executor:       executor,
		Store:          resultStore,
		Metrics:        collector,
		MaxConcurrency: cfg.MaxConcurrency,
	})

	var formatter output.Formatter
	if opts.Writer != nil {
		renderer := table.NewRenderer(log)
		formatter = output.NewFormatter(
			opts.Writer,
			opts.Verbose,
			collector,
			table.NewResultsFormatter(log, renderer),
			table.NewSummaryFormatter(log, renderer),
		)
	}

	orch := orchestrator.New(&orchestrator.Config{
		Logger:    log,
		Scheduler: scheduler,
		Metrics:   collector,
		Formatter: formatter,
	})
	if err := orch.Start(ctx); err != nil {
		_ = resultStore.Close()
		return nil, fmt.Errorf("failed to start orchestrator: %w", err)
	}

	return &engine{
		cfg:          cfg,
		store:        resultStore,
		evaluator:    evalClient,
		registry:     registry,
		loader:       testdef.NewLoader(log),
		metrics:      collector,
		formatter:    formatter,
		orchestrator: orch,
		log:          log,
	}, nil
}

func (e *engine) Close() {
	if err := e.orchestrator.Stop(); err != nil {
		e.log.WithError(err).Warn("failed to stop orchestrator")
	}

	if err := e.store.Close(); err != nil {
		e.log.WithError(err).Warn("failed to close result store")
	}
}

// openStore loads config and opens only the result store.
func openStore(ctx context.Context, log logrus.FieldLogger) (store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return actions.OpenStore(ctx, cfg, log)
}
