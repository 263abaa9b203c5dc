package metrics

import "time"

// SummaryMetric provides aggregate statistics across all recorded test cases
type SummaryMetric struct {
	TotalDuration   time.Duration
	TotalTests      int
	PassedTests     int
	FailedTests     int
	ErrorTests      int
	SkippedTests    int
	PassRate        float64 // percentage
	AverageDuration time.Duration
	SlowestTest     string
	SlowestDuration time.Duration
	ByAdapter       map[string]AdapterSummary
}

// AdapterSummary aggregates results per trigger adapter type
type AdapterSummary struct {
	Total  int
	Passed int
}
