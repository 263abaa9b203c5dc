package testing

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a single test result.
type Status string

// Test result statuses. PASSED, FAILED, ERROR and SKIPPED are terminal.
const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusPassed  Status = "PASSED"
	StatusFailed  Status = "FAILED"
	StatusError   Status = "ERROR"
	StatusSkipped Status = "SKIPPED"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusError, StatusSkipped:
		return true
	default:
		return false
	}
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	// RunStatusInterrupted marks a run whose context ended before every case started.
	RunStatusInterrupted RunStatus = "interrupted"
)

// MetricResult is the judged outcome of one metric.
type MetricResult struct {
	Name      string         `json:"name"`
	Score     float64        `json:"score"`
	Threshold float64        `json:"threshold"`
	Passed    bool           `json:"passed"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TestResult is produced exactly once per test case per run.
type TestResult struct {
	TestCaseID     string         `json:"test_case_id"`
	TestCaseName   string         `json:"test_case_name,omitempty"`
	RunID          string         `json:"run_id"`
	Status         Status         `json:"status"`
	Input          string         `json:"input,omitempty"`
	ActualOutput   string         `json:"actual_output,omitempty"`
	ExpectedOutput string         `json:"expected_output,omitempty"`
	Metrics        []MetricResult `json:"metrics"`
	Passed         bool           `json:"passed"`
	Error          string         `json:"error,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	DurationMS     float64        `json:"duration_ms"`
}

// TestRun aggregates one scheduling pass. Counters are guarded by a mutex
// because results complete concurrently; use Snapshot to read a consistent copy.
type TestRun struct {
	mu sync.Mutex

	ID         string         `json:"id"`
	SuiteName  string         `json:"suite_name"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	TotalTests int            `json:"total_tests"`
	Passed     int            `json:"passed"`
	Failed     int            `json:"failed"`
	Errors     int            `json:"errors"`
	Skipped    int            `json:"skipped"`
	Status     RunStatus      `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewTestRun creates a run in the running state.
func NewTestRun(id, suiteName string, total int, metadata map[string]any) *TestRun {
	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &TestRun{
		ID:         id,
		SuiteName:  suiteName,
		StartTime:  time.Now().UTC(),
		TotalTests: total,
		Status:     RunStatusRunning,
		Metadata:   metadata,
	}
}

// Record counts one terminal result.
func (r *TestRun) Record(status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch status {
	case StatusPassed:
		r.Passed++
	case StatusFailed:
		r.Failed++
	case StatusSkipped:
		r.Skipped++
	default:
		r.Errors++
	}
}

// Finish stamps the end time and marks the run completed.
func (r *TestRun) Finish(end time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	end = end.UTC()
	r.EndTime = &end
	r.Status = RunStatusCompleted
}

// SetStatus overrides the status label.
func (r *TestRun) SetStatus(status RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Status = status
}

// SetMetadata records a metadata key.
func (r *TestRun) SetMetadata(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Metadata[key] = value
}

// Snapshot returns a consistent copy safe to read or serialize.
func (r *TestRun) Snapshot() *TestRun {
	r.mu.Lock()
	defer r.mu.Unlock()

	metadata := make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		metadata[k] = v
	}

	var end *time.Time
	if r.EndTime != nil {
		t := *r.EndTime
		end = &t
	}

	return &TestRun{
		ID:         r.ID,
		SuiteName:  r.SuiteName,
		StartTime:  r.StartTime,
		EndTime:    end,
		TotalTests: r.TotalTests,
		Passed:     r.Passed,
		Failed:     r.Failed,
		Errors:     r.Errors,
		Skipped:    r.Skipped,
		Status:     r.Status,
		Metadata:   metadata,
	}
}

// Completed returns how many results have been recorded so far.
func (r *TestRun) Completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.Passed + r.Failed + r.Errors + r.Skipped
}

// PassRate is the percentage of passed tests, 0 for an empty run.
func (r *TestRun) PassRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.TotalTests == 0 {
		return 0
	}

	return float64(r.Passed) / float64(r.TotalTests) * 100.0
}

// Duration is the elapsed wall clock time, measured to now for unfinished runs.
func (r *TestRun) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.EndTime == nil {
		return time.Since(r.StartTime)
	}

	return r.EndTime.Sub(r.StartTime)
}
