// Package orchestrator runs whole suites: it filters test cases, resolves
// suite-level settings and drives the scheduler and console output.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
	"github.com/thleqel/llm-test-platform/internal/testing/metrics"
	"github.com/thleqel/llm-test-platform/internal/testing/output"
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
)

var (
	// ErrNoTestCases is returned when filtering leaves nothing to run.
	ErrNoTestCases = errors.New("no test cases match the filter")

	errNilSuite = errors.New("suite is required")
)

// Runner is the scheduling collaborator.
type Runner interface {
	Run(ctx context.Context, cases []*testdef.TestCase, opts *llmtest.RunOptions) (*llmtest.TestRun, []*llmtest.TestResult)
}

// Config contains configuration for suite orchestration.
type Config struct {
	Logger    logrus.FieldLogger
	Scheduler Runner
	Metrics   metrics.Collector
	// Formatter is optional; when set it receives live progress and prints
	// the result tables once a run completes.
	Formatter output.Formatter
}

// Request selects what to run from a suite.
type Request struct {
	Suite          *testdef.Suite
	TestIDs        []string
	Tags           []string
	RunID          string
	MaxConcurrency int
	Runtime        map[string]any
	Listeners      []llmtest.Listener
}

// Orchestrator coordinates suite execution.
type Orchestrator struct {
	scheduler Runner
	metrics   metrics.Collector
	formatter output.Formatter
	log       logrus.FieldLogger
}

// New creates a new orchestrator.
func New(cfg *Config) *Orchestrator {
	return &Orchestrator{
		scheduler: cfg.Scheduler,
		metrics:   cfg.Metrics,
		formatter: cfg.Formatter,
		log:       cfg.Logger.WithField("component", "orchestrator"),
	}
}

// Start initializes the orchestrator and its collaborators.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.log.Debug("starting orchestrator")

	if o.metrics != nil {
		if err := o.metrics.Start(ctx); err != nil {
			return fmt.Errorf("starting metrics collector: %w", err)
		}
	}

	return nil
}

// Stop releases orchestrator resources.
func (o *Orchestrator) Stop() error {
	o.log.Debug("stopping orchestrator")

	if o.metrics != nil {
		if err := o.metrics.Stop(); err != nil {
			return fmt.Errorf("stopping metrics collector: %w", err)
		}
	}

	return nil
}

// Run executes the selected cases of req.Suite. Per-case failures are
// results; an error is only returned when nothing could be scheduled.
func (o *Orchestrator) Run(ctx context.Context, req *Request) (*llmtest.TestRun, []*llmtest.TestResult, error) {
	if req == nil || req.Suite == nil {
		return nil, nil, errNilSuite
	}

	suite := req.Suite

	cases := suite.Filter(req.TestIDs, req.Tags)
	if len(cases) == 0 {
		return nil, nil, fmt.Errorf("%w in suite %q", ErrNoTestCases, suite.Name)
	}

	if suite.TestConfig.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(suite.TestConfig.Timeout)*time.Second)
		defer cancel()
	}

	opts := &llmtest.RunOptions{
		RunID:          req.RunID,
		SuiteName:      suite.Name,
		MaxConcurrency: resolveConcurrency(req.MaxConcurrency, suite.TestConfig.MaxConcurrency),
		DefaultAdapter: suite.Adapter(),
		Runtime:        req.Runtime,
		Metadata:       runMetadata(req),
		Listeners:      req.Listeners,
	}

	if o.formatter != nil {
		opts.Listeners = append(append([]llmtest.Listener{}, req.Listeners...), o.formatter)
	}

	o.log.WithFields(logrus.Fields{
		"suite": suite.Name,
		"tests": len(cases),
	}).Debug("dispatching suite")

	run, results := o.scheduler.Run(ctx, cases, opts)

	if o.formatter != nil {
		o.formatter.PrintTestResults(results)
		o.formatter.PrintSummary(run)
		o.formatter.PrintAdapterSummary()
	}

	return run, results, nil
}

// Failed reports whether any result is FAILED or ERROR.
func Failed(results []*llmtest.TestResult) bool {
	for _, r := range results {
		if r.Status == llmtest.StatusFailed || r.Status == llmtest.StatusError {
			return true
		}
	}
	return false
}

// resolveConcurrency prefers the request, then the suite. Zero lets the
// scheduler apply its own default.
func resolveConcurrency(requested, suite int) int {
	if requested > 0 {
		return requested
	}
	if suite > 0 {
		return suite
	}
	return 0
}

func runMetadata(req *Request) map[string]any {
	metadata := map[string]any{}

	if req.Suite.Path != "" {
		metadata["suite_path"] = req.Suite.Path
	}
	if req.Suite.Version != "" {
		metadata["suite_version"] = req.Suite.Version
	}
	if len(req.TestIDs) > 0 {
		metadata["test_ids"] = req.TestIDs
	}
	if len(req.Tags) > 0 {
		metadata["tags"] = req.Tags
	}

	return metadata
}
