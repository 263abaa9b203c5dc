package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/thleqel/llm-test-platform/internal/testing/metrics"
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
	"golang.org/x/sync/errgroup"
)

// TestExecutor runs one test case to a terminal result.
type TestExecutor interface {
	Execute(ctx context.Context, req *ExecutionRequest) *TestResult
}

// Listener observes run progress. Callbacks may arrive from several
// goroutines at once and must not block for long.
type Listener interface {
	OnRunStarted(run *TestRun)
	OnTestResult(run *TestRun, result *TestResult)
	OnRunCompleted(run *TestRun, results []*TestResult)
}

// ResultStore persists a finished run.
type ResultStore interface {
	SaveRun(ctx context.Context, run *TestRun, results []*TestResult) error
}

// SchedulerConfig contains configuration for the scheduler.
type SchedulerConfig struct {
	Logger         logrus.FieldLogger
	Executor       TestExecutor
	Store          ResultStore
	Metrics        metrics.Collector
	Listeners      []Listener
	MaxConcurrency int
}

// RunOptions tunes a single Run call.
type RunOptions struct {
	// RunID is generated when empty.
	RunID          string
	SuiteName      string
	MaxConcurrency int
	DefaultAdapter *testdef.AdapterConfig
	Runtime        map[string]any
	Metadata       map[string]any
	Listeners      []Listener
}

// Scheduler executes many test cases under a concurrency ceiling.
type Scheduler struct {
	executor       TestExecutor
	store          ResultStore
	metrics        metrics.Collector
	listeners      []Listener
	maxConcurrency int
	log            logrus.FieldLogger
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg *SchedulerConfig) *Scheduler {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}

	return &Scheduler{
		executor:       cfg.Executor,
		store:          cfg.Store,
		metrics:        cfg.Metrics,
		listeners:      cfg.Listeners,
		maxConcurrency: maxConcurrency,
		log:            cfg.Logger.WithField("component", "scheduler"),
	}
}

// Run executes every case and returns the finished run with one result per
// case, in completion order. It does not return an error: per-case failures
// are results, and a persistence failure is logged and noted in the run
// metadata under "persistence_error".
func (s *Scheduler) Run(ctx context.Context, cases []*testdef.TestCase, opts *RunOptions) (*TestRun, []*TestResult) {
	if opts == nil {
		opts = &RunOptions{}
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	limit := opts.MaxConcurrency
	if limit <= 0 {
		limit = s.maxConcurrency
	}

	// Runtime context first; caller metadata overrides it.
	metadata := make(map[string]any, len(opts.Runtime)+len(opts.Metadata)+1)
	for k, v := range opts.Runtime {
		metadata[k] = v
	}
	for k, v := range opts.Metadata {
		metadata[k] = v
	}
	metadata["max_concurrency"] = limit

	run := NewTestRun(runID, opts.SuiteName, len(cases), metadata)

	listeners := make([]Listener, 0, len(s.listeners)+len(opts.Listeners))
	listeners = append(listeners, s.listeners...)
	listeners = append(listeners, opts.Listeners...)

	log := s.log.WithFields(logrus.Fields{
		"run_id": runID,
		"suite":  opts.SuiteName,
	})

	log.WithFields(logrus.Fields{
		"tests":           len(cases),
		"max_concurrency": limit,
	}).Info("starting test run")

	notify(log, listeners, func(l Listener) { l.OnRunStarted(run) })

	var (
		mu      sync.Mutex
		results = make([]*TestResult, 0, len(cases))
		g       errgroup.Group
	)

	// Each errgroup slot is one permit; Go blocks until a slot frees.
	g.SetLimit(limit)

	for _, tc := range cases {
		g.Go(func() error {
			result := s.runOne(ctx, tc, runID, opts, log)

			mu.Lock()
			results = append(results, result)
			mu.Unlock()

			run.Record(result.Status)
			s.record(result)
			notify(log, listeners, func(l Listener) { l.OnTestResult(run, result) })

			return nil
		})
	}

	_ = g.Wait()

	run.Finish(time.Now())
	if ctx.Err() != nil {
		run.SetStatus(RunStatusInterrupted)
	}

	snapshot := run.Snapshot()
	log.WithFields(logrus.Fields{
		"passed":   snapshot.Passed,
		"failed":   snapshot.Failed,
		"errors":   snapshot.Errors,
		"skipped":  snapshot.Skipped,
		"duration": run.Duration().String(),
	}).Info("test run completed")

	if s.store != nil {
		if err := s.store.SaveRun(context.WithoutCancel(ctx), snapshot, results); err != nil {
			log.WithError(err).Error("failed to persist test run")
			run.SetMetadata("persistence_error", err.Error())
		}
	}

	notify(log, listeners, func(l Listener) { l.OnRunCompleted(run, results) })

	return run, results
}

// runOne executes a case while holding a permit. A panic escaping the
// executor still yields an ERROR result.
func (s *Scheduler) runOne(
	ctx context.Context,
	tc *testdef.TestCase,
	runID string,
	opts *RunOptions,
	log logrus.FieldLogger,
) (result *TestResult) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"test_case_id": tc.ID,
				"panic":        r,
			}).Error("test task panicked")

			result = errorResult(tc, runID, fmt.Errorf("%w: %v", errUnexpectedPanic, r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return errorResult(tc, runID, fmt.Errorf("not started: %w", err))
	}

	result = s.executor.Execute(ctx, &ExecutionRequest{
		TestCase:       tc,
		RunID:          runID,
		DefaultAdapter: opts.DefaultAdapter,
		Runtime:        opts.Runtime,
	})
	if result == nil {
		result = errorResult(tc, runID, errNilResult)
	}

	result.RunID = runID

	return result
}

func (s *Scheduler) record(result *TestResult) {
	if s.metrics == nil {
		return
	}

	m := &metrics.TestResultMetric{
		TestCaseID:   result.TestCaseID,
		RunID:        result.RunID,
		Status:       string(result.Status),
		Passed:       result.Passed,
		Duration:     time.Duration(result.DurationMS * float64(time.Millisecond)),
		MetricsTotal: len(result.Metrics),
		ErrorMessage: result.Error,
		Timestamp:    result.Timestamp,
	}

	if adapterType, ok := result.Metadata["adapter_type"].(string); ok {
		m.AdapterType = adapterType
	}

	for _, mr := range result.Metrics {
		if mr.Passed {
			m.MetricsPassed++
			continue
		}

		m.MetricsFailed++
		m.FailedMetrics = append(m.FailedMetrics, metrics.FailedMetricDetail{
			Name:      mr.Name,
			Score:     mr.Score,
			Threshold: mr.Threshold,
			Reason:    mr.Reason,
		})
	}

	s.metrics.RecordTestResult(m)
}

// notify calls fn for each listener; a panicking listener cannot break the run.
func notify(log logrus.FieldLogger, listeners []Listener, fn func(Listener)) {
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("panic", r).Warn("run listener panicked")
				}
			}()

			fn(l)
		}()
	}
}

func errorResult(tc *testdef.TestCase, runID string, err error) *TestResult {
	return &TestResult{
		TestCaseID:     tc.ID,
		TestCaseName:   tc.Name,
		RunID:          runID,
		Status:         StatusError,
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		Metrics:        []MetricResult{},
		Error:          err.Error(),
		Metadata:       map[string]any{},
		Timestamp:      time.Now().UTC(),
	}
}
