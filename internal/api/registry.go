package api

import (
	"sort"
	"sync"
	"time"

	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
)

// Run states reported for runs started through the API.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateCancelled = "cancelled"
	StateError     = "error"
)

// RunStatus is the wire view of a run known to the registry.
type RunStatus struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	Suite      string    `json:"suite"`
	TotalTests int       `json:"total_tests"`
	Completed  int       `json:"completed"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	Errors     int       `json:"errors"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

type activeRun struct {
	status    string
	suite     string
	total     int
	err       string
	startedAt time.Time
	run       *llmtest.TestRun
}

// RunRegistry tracks runs started by this process, keyed by run id. It
// observes the scheduler as a Listener to pick up live counters.
type RunRegistry struct {
	mu   sync.RWMutex
	runs map[string]*activeRun
}

var _ llmtest.Listener = (*RunRegistry)(nil)

// NewRunRegistry creates an empty registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*activeRun)}
}

// Add registers a run that is about to start.
func (r *RunRegistry) Add(runID, suite string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[runID] = &activeRun{
		status:    StateRunning,
		suite:     suite,
		total:     total,
		startedAt: time.Now().UTC(),
	}
}

// Get returns the status of a registered run.
func (r *RunRegistry) Get(runID string) (*RunStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ar, ok := r.runs[runID]
	if !ok {
		return nil, false
	}

	return ar.view(runID), true
}

// Active returns every run still in the running state, oldest first.
func (r *RunRegistry) Active() []*RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*RunStatus, 0, len(r.runs))
	for id, ar := range r.runs {
		if ar.status == StateRunning {
			out = append(out, ar.view(id))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})

	return out
}

// Cancel labels a running run as cancelled. Execution is not interrupted.
// It reports whether the run exists and whether it was still running.
func (r *RunRegistry) Cancel(runID string) (found, running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ar, ok := r.runs[runID]
	if !ok {
		return false, false
	}

	if ar.status != StateRunning {
		return true, false
	}

	ar.status = StateCancelled

	return true, true
}

// Fail records a run that could not be executed.
func (r *RunRegistry) Fail(runID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ar, ok := r.runs[runID]; ok {
		ar.status = StateError
		ar.err = err.Error()
	}
}

// OnRunStarted attaches the live run to its registry entry.
func (r *RunRegistry) OnRunStarted(run *llmtest.TestRun) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ar, ok := r.runs[run.ID]; ok {
		ar.run = run
	}
}

// OnTestResult is a no-op; counters are read from the live run.
func (r *RunRegistry) OnTestResult(*llmtest.TestRun, *llmtest.TestResult) {}

// OnRunCompleted marks the run completed unless it was labelled cancelled.
func (r *RunRegistry) OnRunCompleted(run *llmtest.TestRun, _ []*llmtest.TestResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ar, ok := r.runs[run.ID]
	if !ok {
		return
	}

	ar.run = run
	if ar.status == StateRunning {
		ar.status = StateCompleted
	}
}

func (ar *activeRun) view(runID string) *RunStatus {
	status := &RunStatus{
		RunID:      runID,
		Status:     ar.status,
		Suite:      ar.suite,
		TotalTests: ar.total,
		Error:      ar.err,
		StartedAt:  ar.startedAt,
	}

	if ar.run != nil {
		snap := ar.run.Snapshot()
		status.Passed = snap.Passed
		status.Failed = snap.Failed
		status.Errors = snap.Errors
		status.Skipped = snap.Skipped
		status.Completed = snap.Passed + snap.Failed + snap.Errors + snap.Skipped
	}

	return status
}
