package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorSummary(t *testing.T) {
	t.Parallel()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	c := NewCollector(log)
	require.NoError(t, c.Start(context.Background()))

	c.RecordTestResult(&TestResultMetric{TestCaseID: "a", Status: StatusPassed, Passed: true, AdapterType: "http", Duration: 10 * time.Millisecond})
	c.RecordTestResult(&TestResultMetric{TestCaseID: "b", Status: StatusFailed, AdapterType: "http", Duration: 30 * time.Millisecond})
	c.RecordTestResult(&TestResultMetric{TestCaseID: "c", Status: StatusError, AdapterType: "shell", Duration: 20 * time.Millisecond})
	c.RecordTestResult(&TestResultMetric{TestCaseID: "d", Status: StatusSkipped})

	summary := c.GetSummary()
	assert.Equal(t, 4, summary.TotalTests)
	assert.Equal(t, 1, summary.PassedTests)
	assert.Equal(t, 1, summary.FailedTests)
	assert.Equal(t, 1, summary.ErrorTests)
	assert.Equal(t, 1, summary.SkippedTests)
	assert.InDelta(t, 25.0, summary.PassRate, 1e-9)
	assert.Equal(t, 15*time.Millisecond, summary.AverageDuration)
	assert.Equal(t, "b", summary.SlowestTest)
	assert.Equal(t, AdapterSummary{Total: 2, Passed: 1}, summary.ByAdapter["http"])
	assert.Equal(t, AdapterSummary{Total: 1}, summary.ByAdapter["shell"])

	metrics := c.GetTestMetrics()
	require.Len(t, metrics, 4)
	metrics[0].TestCaseID = "mutated"
	assert.Equal(t, "a", c.GetTestMetrics()[0].TestCaseID)

	c.Reset()
	assert.Empty(t, c.GetTestMetrics())
	assert.Zero(t, c.GetSummary().PassRate)
	require.NoError(t, c.Stop())
}
