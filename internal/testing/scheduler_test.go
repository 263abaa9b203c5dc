package testing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thleqel/llm-test-platform/internal/testing/evaluator"
	"github.com/thleqel/llm-test-platform/internal/testing/metrics"
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
)

type recordingStore struct {
	mu      sync.Mutex
	calls   int
	run     *TestRun
	results []*TestResult
	err     error
}

func (s *recordingStore) SaveRun(_ context.Context, run *TestRun, results []*TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.run = run
	s.results = results

	return s.err
}

type recordingListener struct {
	started   atomic.Int32
	results   atomic.Int32
	completed atomic.Int32
}

func (l *recordingListener) OnRunStarted(*TestRun)                  { l.started.Add(1) }
func (l *recordingListener) OnTestResult(*TestRun, *TestResult)     { l.results.Add(1) }
func (l *recordingListener) OnRunCompleted(*TestRun, []*TestResult) { l.completed.Add(1) }

type panickingListener struct{}

func (panickingListener) OnRunStarted(*TestRun)                  { panic("boom") }
func (panickingListener) OnTestResult(*TestRun, *TestResult)     { panic("boom") }
func (panickingListener) OnRunCompleted(*TestRun, []*TestResult) { panic("boom") }

// gaugeExecutor tracks how many executions overlap.
type gaugeExecutor struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (g *gaugeExecutor) Execute(_ context.Context, req *ExecutionRequest) *TestResult {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	time.Sleep(g.delay)

	return &TestResult{TestCaseID: req.TestCase.ID, Status: StatusPassed, Passed: true}
}

type panickingExecutor struct{}

func (panickingExecutor) Execute(context.Context, *ExecutionRequest) *TestResult {
	panic("executor exploded")
}

func newTestScheduler(exec TestExecutor, store ResultStore, collector metrics.Collector, listeners ...Listener) *Scheduler {
	cfg := &SchedulerConfig{
		Logger:    quietLogger(),
		Executor:  exec,
		Metrics:   collector,
		Listeners: listeners,
	}

	if store != nil {
		cfg.Store = store
	}

	return NewScheduler(cfg)
}

func mixedCases() []*testdef.TestCase {
	disabled := false

	return []*testdef.TestCase{
		{ID: "pass", Input: "q", Metrics: []string{"good"}, Adapter: mockAdapter("a")},
		{ID: "fail", Input: "q", Metrics: []string{"bad"}, Adapter: mockAdapter("a")},
		{ID: "error", Input: "q", Metrics: []string{"good"}, Adapter: &testdef.AdapterConfig{Type: "unknown"}},
		{ID: "skip", Input: "q", Enabled: &disabled},
		{ID: "plain", Input: "q", Adapter: mockAdapter("a")},
	}
}

func mixedExecutor(t *testing.T) *Executor {
	t.Helper()

	ev := &stubEvaluator{metrics: map[string]*evaluator.MetricScore{
		"good": score(0.9, true),
		"bad":  score(0.1, true),
	}}

	return newTestExecutor(t, &probeAdapter{}, ev, nil)
}

func statusesByID(results []*TestResult) map[string]Status {
	out := make(map[string]Status, len(results))
	for _, r := range results {
		out[r.TestCaseID] = r.Status
	}
	return out
}

func TestSchedulerRun_CountsEveryResult(t *testing.T) {
	t.Parallel()

	store := &recordingStore{}
	collector := metrics.NewCollector(quietLogger())
	listener := &recordingListener{}
	s := newTestScheduler(mixedExecutor(t), store, collector, listener)

	cases := mixedCases()
	run, results := s.Run(context.Background(), cases, &RunOptions{SuiteName: "smoke", MaxConcurrency: 2})

	require.Len(t, results, len(cases))

	snap := run.Snapshot()
	assert.Equal(t, RunStatusCompleted, snap.Status)
	require.NotNil(t, snap.EndTime)
	assert.Equal(t, "smoke", snap.SuiteName)
	assert.Equal(t, len(cases), snap.TotalTests)
	assert.Equal(t, snap.TotalTests, snap.Passed+snap.Failed+snap.Errors+snap.Skipped)
	assert.Equal(t, 2, snap.Passed)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 1, snap.Errors)
	assert.Equal(t, 1, snap.Skipped)
	assert.Equal(t, 2, snap.Metadata["max_concurrency"])

	assert.Equal(t, map[string]Status{
		"pass":  StatusPassed,
		"fail":  StatusFailed,
		"error": StatusError,
		"skip":  StatusSkipped,
		"plain": StatusPassed,
	}, statusesByID(results))

	for _, r := range results {
		assert.Equal(t, run.ID, r.RunID)
		assert.True(t, r.Status.Terminal())
	}

	assert.Equal(t, 1, store.calls)
	assert.Equal(t, run.ID, store.run.ID)
	assert.Len(t, store.results, len(cases))
	assert.NotContains(t, snap.Metadata, "persistence_error")

	assert.Equal(t, int32(1), listener.started.Load())
	assert.Equal(t, int32(len(cases)), listener.results.Load())
	assert.Equal(t, int32(1), listener.completed.Load())

	summary := collector.GetSummary()
	assert.Equal(t, len(cases), summary.TotalTests)
	assert.Equal(t, 1, summary.FailedTests)
}

func TestSchedulerRun_RespectsConcurrencyLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		limit int
		cases int
	}{
		{name: "serial", limit: 1, cases: 6},
		{name: "three permits", limit: 3, cases: 12},
		{name: "more permits than cases", limit: 20, cases: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exec := &gaugeExecutor{delay: 10 * time.Millisecond}
			s := newTestScheduler(exec, nil, nil)

			cases := make([]*testdef.TestCase, 0, tt.cases)
			for i := range tt.cases {
				cases = append(cases, &testdef.TestCase{ID: fmt.Sprintf("tc-%d", i)})
			}

			_, results := s.Run(context.Background(), cases, &RunOptions{MaxConcurrency: tt.limit})

			assert.Len(t, results, tt.cases)
			assert.LessOrEqual(t, exec.peak.Load(), int32(tt.limit))
			assert.GreaterOrEqual(t, exec.peak.Load(), int32(1))
		})
	}
}

func TestSchedulerRun_PanicBecomesErrorResult(t *testing.T) {
	t.Parallel()

	store := &recordingStore{}
	s := newTestScheduler(panickingExecutor{}, store, nil)

	cases := []*testdef.TestCase{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	run, results := s.Run(context.Background(), cases, &RunOptions{RunID: "fixed-run"})

	assert.Equal(t, "fixed-run", run.ID)
	require.Len(t, results, 3)

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.TestCaseID)
		assert.Equal(t, StatusError, r.Status)
		assert.Equal(t, "fixed-run", r.RunID)
		assert.Contains(t, r.Error, "executor exploded")
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	assert.Equal(t, 3, run.Snapshot().Errors)
}

func TestSchedulerRun_PersistenceFailureIsRecorded(t *testing.T) {
	t.Parallel()

	store := &recordingStore{err: errors.New("disk full")}
	s := newTestScheduler(mixedExecutor(t), store, nil)

	run, results := s.Run(context.Background(), mixedCases(), nil)

	assert.Len(t, results, 5)
	assert.Equal(t, "disk full", run.Snapshot().Metadata["persistence_error"])
	assert.Equal(t, RunStatusCompleted, run.Snapshot().Status)
}

func TestSchedulerRun_ListenerPanicDoesNotBreakRun(t *testing.T) {
	t.Parallel()

	listener := &recordingListener{}
	s := newTestScheduler(mixedExecutor(t), nil, nil, panickingListener{})

	run, results := s.Run(context.Background(), mixedCases(), &RunOptions{Listeners: []Listener{listener}})

	assert.Len(t, results, 5)
	assert.Equal(t, 5, run.Completed())
	assert.Equal(t, int32(5), listener.results.Load())
	assert.Equal(t, int32(1), listener.completed.Load())
}

func TestSchedulerRun_Empty(t *testing.T) {
	t.Parallel()

	store := &recordingStore{}
	s := newTestScheduler(mixedExecutor(t), store, nil)

	run, results := s.Run(context.Background(), nil, nil)

	assert.Empty(t, results)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusCompleted, run.Snapshot().Status)
	assert.Zero(t, run.PassRate())
	assert.Equal(t, 1, store.calls)
}

func TestSchedulerRun_IsRepeatable(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(mixedExecutor(t), nil, nil)

	first, firstResults := s.Run(context.Background(), mixedCases(), nil)
	second, secondResults := s.Run(context.Background(), mixedCases(), nil)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, statusesByID(firstResults), statusesByID(secondResults))
}

func TestSchedulerRun_CancelledContextStillYieldsOneResultPerCase(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &gaugeExecutor{}
	s := newTestScheduler(exec, nil, nil)

	cases := make([]*testdef.TestCase, 0, 8)
	for i := range 8 {
		cases = append(cases, &testdef.TestCase{ID: fmt.Sprintf("tc-%d", i)})
	}

	run, results := s.Run(ctx, cases, &RunOptions{MaxConcurrency: 1})

	require.Len(t, results, 8)
	for _, r := range results {
		assert.Equal(t, StatusError, r.Status)
		assert.Contains(t, r.Error, "not started")
	}

	assert.Equal(t, 8, run.Snapshot().Errors)
	assert.Equal(t, RunStatusInterrupted, run.Snapshot().Status)
	assert.Zero(t, exec.peak.Load())
}

func TestSchedulerRun_RuntimeContextBecomesRunMetadata(t *testing.T) {
	t.Parallel()

	store := &recordingStore{}
	s := newTestScheduler(mixedExecutor(t), store, nil)

	run, _ := s.Run(context.Background(), mixedCases(), &RunOptions{
		MaxConcurrency: 3,
		Runtime:        map[string]any{"env": "staging", "suite_path": "from-runtime"},
		Metadata:       map[string]any{"suite_path": "suites/smoke.yaml"},
	})

	snap := run.Snapshot()
	assert.Equal(t, "staging", snap.Metadata["env"])
	assert.Equal(t, "suites/smoke.yaml", snap.Metadata["suite_path"])
	assert.Equal(t, 3, snap.Metadata["max_concurrency"])
	assert.Equal(t, "staging", store.run.Metadata["env"])
}
