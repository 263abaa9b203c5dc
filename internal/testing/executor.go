package testing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thleqel/llm-test-platform/internal/testing/adapter"
	"github.com/thleqel/llm-test-platform/internal/testing/evaluator"
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
)

const (
	defaultSkipReason      = "test disabled"
	defaultMetricReason    = "metric evaluation failed"
	missingMetricReason    = "metric not returned by evaluator"
	evaluationTimeoutLabel = "evaluation timeout"
)

var (
	errNilAdapterResult = errors.New("adapter returned no result")
	errUnexpectedPanic  = errors.New("unexpected panic")
	errNilResult        = errors.New("executor returned no result")
)

// AdapterFactory builds a fresh adapter for one execution.
type AdapterFactory interface {
	New(cfg *testdef.AdapterConfig) (adapter.Adapter, error)
}

// ExecutionRequest is everything needed to run one test case.
type ExecutionRequest struct {
	TestCase       *testdef.TestCase
	RunID          string
	DefaultAdapter *testdef.AdapterConfig
	Runtime        map[string]any
}

// ExecutorConfig contains the collaborators of an Executor.
type ExecutorConfig struct {
	Logger     logrus.FieldLogger
	Adapters   AdapterFactory
	Evaluator  evaluator.Client
	TestConfig *TestConfig
}

// Executor runs a single test case end to end. It never returns an error or
// panics: every failure is represented in the returned TestResult.
type Executor struct {
	adapters  AdapterFactory
	evaluator evaluator.Client
	cfg       *TestConfig
	log       logrus.FieldLogger
}

// NewExecutor creates a new test executor.
func NewExecutor(cfg *ExecutorConfig) *Executor {
	return &Executor{
		adapters:  cfg.Adapters,
		evaluator: cfg.Evaluator,
		cfg:       cfg.TestConfig.withDefaults(),
		log:       cfg.Logger.WithField("component", "test_executor"),
	}
}

// Execute runs req.TestCase and returns its terminal result.
func (e *Executor) Execute(ctx context.Context, req *ExecutionRequest) (result *TestResult) {
	start := time.Now()
	tc := req.TestCase

	result = &TestResult{
		TestCaseID:     tc.ID,
		TestCaseName:   tc.Name,
		RunID:          req.RunID,
		Status:         StatusPending,
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		Metrics:        []MetricResult{},
		Metadata:       make(map[string]any),
		Timestamp:      start.UTC(),
	}

	log := e.log.WithFields(logrus.Fields{
		"test_case_id": tc.ID,
		"run_id":       req.RunID,
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("test execution panicked")
			markError(result, fmt.Errorf("%w: %v", errUnexpectedPanic, r))
		}

		result.DurationMS = float64(time.Since(start).Microseconds()) / 1000.0
	}()

	if !tc.IsEnabled() {
		result.Status = StatusSkipped
		result.Error = tc.SkipReason
		if result.Error == "" {
			result.Error = defaultSkipReason
		}

		log.Debug("test skipped")

		return result
	}

	result.Status = StatusRunning

	adapterCfg := tc.Adapter
	if adapterCfg == nil {
		adapterCfg = req.DefaultAdapter
	}

	if adapterCfg == nil {
		markError(result, fmt.Errorf("configuration error: %w for test case %s", adapter.ErrMissingAdapter, tc.ID))
		return result
	}

	result.Metadata["adapter_type"] = adapterCfg.Type

	a, err := e.adapters.New(adapterCfg)
	if err != nil {
		markError(result, fmt.Errorf("configuration error: %w", err))
		return result
	}

	// Registered before Setup so a partially acquired resource is released.
	defer e.teardown(ctx, a, log)

	if err := a.Setup(ctx); err != nil {
		log.WithError(err).Warn("adapter setup failed")
		markError(result, fmt.Errorf("adapter setup: %w", err))
		return result
	}

	out := a.Execute(ctx, tc, req.Runtime)
	if out == nil {
		markError(result, errNilAdapterResult)
		return result
	}

	for k, v := range out.Metadata {
		result.Metadata[k] = v
	}

	if !out.Success {
		log.WithField("error", out.Error).Info("adapter execution failed")
		result.Status = StatusError
		result.Error = out.Error
		result.ActualOutput = out.ActualOutput
		return result
	}

	result.ActualOutput = out.ActualOutput

	e.evaluate(ctx, tc, result, log)

	log.WithField("status", result.Status).Debug("test finished")

	return result
}

func (e *Executor) evaluate(ctx context.Context, tc *testdef.TestCase, result *TestResult, log logrus.FieldLogger) {
	if len(tc.Metrics) == 0 {
		result.Passed = true
		result.Status = StatusPassed
		return
	}

	req := &evaluator.Request{
		Input:            tc.Input,
		ActualOutput:     result.ActualOutput,
		ExpectedOutput:   tc.ExpectedOutput,
		RetrievalContext: tc.RetrievalContext,
		Metrics:          tc.Metrics,
	}

	// A single threshold is forwarded per call: the first metric's, if declared.
	if threshold, ok := tc.Threshold(tc.Metrics[0]); ok {
		req.MetricParams = map[string]any{"threshold": threshold}
	}

	evalCtx, cancel := context.WithTimeout(ctx, e.cfg.EvaluationTimeout)
	defer cancel()

	resp, err := e.evaluator.Evaluate(evalCtx, req)
	if err != nil {
		if errors.Is(err, evaluator.ErrTimeout) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			log.WithError(err).Warn("evaluation timed out")

			result.Metrics = timedOutMetrics(tc, e.cfg.DefaultThreshold)
			result.Passed = false
			result.Status = StatusFailed
			result.Error = evaluationTimeoutLabel

			return
		}

		markError(result, fmt.Errorf("evaluation failed: %w", err))

		return
	}

	result.Metadata["evaluation"] = resp.Raw
	result.Metrics, result.Passed = judgeMetrics(tc, resp.Metrics, e.cfg.DefaultThreshold)

	if result.Passed {
		result.Status = StatusPassed
	} else {
		result.Status = StatusFailed
	}
}

// teardown releases the adapter even when the caller's context is done.
func (e *Executor) teardown(ctx context.Context, a adapter.Adapter, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.TeardownTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Warn("adapter teardown panicked")
		}
	}()

	if err := a.Teardown(ctx); err != nil {
		log.WithError(err).Warn("adapter teardown failed")
	}
}

// resolveThreshold picks the test case's threshold, then the evaluator's, then the default.
func resolveThreshold(tc *testdef.TestCase, metric string, echoed *float64, fallback float64) float64 {
	if threshold, ok := tc.Threshold(metric); ok {
		return threshold
	}

	if echoed != nil {
		return *echoed
	}

	return fallback
}

// judgeMetrics compares scores to thresholds. Requested metrics come first in
// request order, followed by any extra metrics the evaluator reported.
func judgeMetrics(tc *testdef.TestCase, scores map[string]*evaluator.MetricScore, fallback float64) ([]MetricResult, bool) {
	names := make([]string, 0, len(scores)+len(tc.Metrics))
	seen := make(map[string]struct{}, cap(names))

	for _, name := range tc.Metrics {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	extra := make([]string, 0)
	for name := range scores {
		if _, ok := seen[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	names = append(names, extra...)

	results := make([]MetricResult, 0, len(names))
	allPassed := true

	for _, name := range names {
		score, ok := scores[name]
		if !ok || score == nil {
			results = append(results, MetricResult{
				Name:      name,
				Threshold: resolveThreshold(tc, name, nil, fallback),
				Passed:    false,
				Reason:    missingMetricReason,
				Metadata:  map[string]any{"error": true, "success": false},
			})
			allPassed = false

			continue
		}

		mr := MetricResult{
			Name:      name,
			Score:     score.Score,
			Threshold: resolveThreshold(tc, name, score.Threshold, fallback),
			Reason:    score.Reason,
			Metadata:  score.Metadata,
		}

		if score.Success {
			mr.Passed = mr.Score >= mr.Threshold
		} else {
			mr.Passed = false
			if mr.Reason == "" {
				mr.Reason = defaultMetricReason
			}

			metadata := make(map[string]any, len(score.Metadata)+2)
			for k, v := range score.Metadata {
				metadata[k] = v
			}
			metadata["error"] = true
			metadata["success"] = false
			mr.Metadata = metadata
		}

		if !mr.Passed {
			allPassed = false
		}

		results = append(results, mr)
	}

	return results, allPassed
}

func timedOutMetrics(tc *testdef.TestCase, fallback float64) []MetricResult {
	results := make([]MetricResult, 0, len(tc.Metrics))

	for _, name := range tc.Metrics {
		results = append(results, MetricResult{
			Name:      name,
			Threshold: resolveThreshold(tc, name, nil, fallback),
			Passed:    false,
			Reason:    evaluationTimeoutLabel,
			Metadata:  map[string]any{"error": true, "success": false, "timeout": true},
		})
	}

	return results
}

func markError(result *TestResult, err error) {
	result.Status = StatusError
	result.Passed = false
	result.Error = err.Error()
}
