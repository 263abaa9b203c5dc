package metrics

import "time"

// FailedMetricDetail captures details about a single metric that did not pass
type FailedMetricDetail struct {
	Name      string
	Score     float64
	Threshold float64
	Reason    string
}

// TestResultMetric captures metrics about a test case execution
type TestResultMetric struct {
	TestCaseID    string
	RunID         string
	Status        string
	AdapterType   string
	Passed        bool
	Duration      time.Duration
	MetricsTotal  int
	MetricsPassed int
	MetricsFailed int
	ErrorMessage  string // empty if passed
	FailedMetrics []FailedMetricDetail
	Timestamp     time.Time
}
