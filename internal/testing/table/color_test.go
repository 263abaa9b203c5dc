package table

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestColorHelper_FormatStatus(t *testing.T) {
	// Disable colors for consistent testing
	color.NoColor = true
	defer func() { color.NoColor = false }()

	helper := NewColorHelper()

	tests := []struct {
		status   string
		expected string
	}{
		{status: "PASSED", expected: "✓ PASSED"},
		{status: "FAILED", expected: "✗ FAILED"},
		{status: "ERROR", expected: "! ERROR"},
		{status: "SKIPPED", expected: "- SKIPPED"},
		{status: "RUNNING", expected: "RUNNING"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.expected, helper.FormatStatus(tt.status))
		})
	}
}

func TestColorHelper_FormatPassed(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	helper := NewColorHelper()

	assert.Equal(t, "✓ PASS", helper.FormatPassed(true))
	assert.Equal(t, "✗ FAIL", helper.FormatPassed(false))
}

func TestColorHelper_FormatMetrics(t *testing.T) {
	// Disable colors for consistent testing
	color.NoColor = true
	defer func() { color.NoColor = false }()

	helper := NewColorHelper()

	tests := []struct {
		name     string
		passed   int
		total    int
		expected string
	}{
		{
			name:     "all passed",
			passed:   3,
			total:    3,
			expected: "3/3",
		},
		{
			name:     "partial pass",
			passed:   1,
			total:    3,
			expected: "1/3",
		},
		{
			name:     "all failed",
			passed:   0,
			total:    2,
			expected: "0/2",
		},
		{
			name:     "no metrics",
			expected: "-",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := helper.FormatMetrics(tt.passed, tt.total)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestColorHelper_FormatScore(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	helper := NewColorHelper()

	assert.Equal(t, "0.90/0.70", helper.FormatScore(0.9, 0.7, true))
	assert.Equal(t, "0.60/0.70", helper.FormatScore(0.6, 0.7, false))
}

func TestColorHelper_FormatPercentage(t *testing.T) {
	// Disable colors for consistent testing
	color.NoColor = true
	defer func() { color.NoColor = false }()

	helper := NewColorHelper()

	tests := []struct {
		name     string
		value    float64
		expected string
	}{
		{
			name:     "100%",
			value:    100.0,
			expected: "100.0%",
		},
		{
			name:     "90%",
			value:    90.0,
			expected: "90.0%",
		},
		{
			name:     "0%",
			value:    0.0,
			expected: "0.0%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := helper.FormatPercentage(tt.value)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestColorHelper_ColorsDisabledWhenNoColor(t *testing.T) {
	// Enable NoColor flag
	color.NoColor = true
	defer func() { color.NoColor = false }()

	helper := NewColorHelper()
	assert.False(t, helper.enabled)

	// Should return plain text
	assert.Equal(t, "test", helper.Success("test"))
	assert.Equal(t, "test", helper.Failure("test"))
	assert.Equal(t, "test", helper.Warning("test"))
	assert.Equal(t, "test", helper.Muted("test"))
}
