// Package metrics provides test execution metrics collection and aggregation.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Status labels as recorded in TestResultMetric.Status.
const (
	StatusPassed  = "PASSED"
	StatusFailed  = "FAILED"
	StatusError   = "ERROR"
	StatusSkipped = "SKIPPED"
)

// Collector interface for metrics collection
type Collector interface {
	Start(ctx context.Context) error
	Stop() error
	RecordTestResult(metric *TestResultMetric)
	GetTestMetrics() []TestResultMetric
	GetSummary() SummaryMetric
	Reset()
}

// collector implements Collector interface
type collector struct {
	log         logrus.FieldLogger
	mu          sync.RWMutex
	testMetrics []TestResultMetric
	startTime   time.Time
}

// NewCollector creates a new metrics collector
func NewCollector(log logrus.FieldLogger) Collector {
	return &collector{
		log:         log.WithField("component", "metrics_collector"),
		testMetrics: make([]TestResultMetric, 0, 50), // capacity hint
		startTime:   time.Now(),
	}
}

func (c *collector) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()

	c.log.Debug("metrics collector started")

	return nil
}

func (c *collector) Stop() error {
	c.log.Debug("metrics collector stopped")

	return nil
}

func (c *collector) RecordTestResult(metric *TestResultMetric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.testMetrics = append(c.testMetrics, *metric)
}

func (c *collector) GetTestMetrics() []TestResultMetric {
	c.mu.RLock()
	defer c.mu.RUnlock()
	// Return copy to avoid race conditions
	result := make([]TestResultMetric, len(c.testMetrics))
	copy(result, c.testMetrics)
	return result
}

func (c *collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.testMetrics = c.testMetrics[:0]
	c.startTime = time.Now()
}

func (c *collector) GetSummary() SummaryMetric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	summary := SummaryMetric{
		TotalDuration: time.Since(c.startTime),
		TotalTests:    len(c.testMetrics),
		ByAdapter:     make(map[string]AdapterSummary),
	}

	var total time.Duration

	for _, tm := range c.testMetrics {
		switch tm.Status {
		case StatusPassed:
			summary.PassedTests++
		case StatusFailed:
			summary.FailedTests++
		case StatusSkipped:
			summary.SkippedTests++
		default:
			summary.ErrorTests++
		}

		total += tm.Duration
		if tm.Duration > summary.SlowestDuration {
			summary.SlowestDuration = tm.Duration
			summary.SlowestTest = tm.TestCaseID
		}

		if tm.AdapterType != "" {
			as := summary.ByAdapter[tm.AdapterType]
			as.Total++
			if tm.Passed {
				as.Passed++
			}
			summary.ByAdapter[tm.AdapterType] = as
		}
	}

	if summary.TotalTests > 0 {
		summary.PassRate = float64(summary.PassedTests) / float64(summary.TotalTests) * 100.0
		summary.AverageDuration = total / time.Duration(summary.TotalTests)
	}

	return summary
}

// Compile-time interface compliance check
var _ Collector = (*collector)(nil)
