// Package testing runs test cases through trigger adapters and the remote
// evaluator, and schedules many of them concurrently.
//
// This file defines operational parameters for how tests execute
// (concurrency, timeouts) rather than what tests to run.
package testing

import (
	"time"
)

// DefaultMaxConcurrency is the permit count used when no ceiling is configured.
const DefaultMaxConcurrency = 10

// DefaultThreshold applies when neither the test case nor the evaluator supplies one.
const DefaultThreshold = 0.5

// TestConfig holds test execution operational parameters.
type TestConfig struct {
	// MaxConcurrency bounds how many test cases execute at once.
	MaxConcurrency int

	// EvaluationTimeout caps each evaluator call. Expiry marks the
	// requested metrics failed instead of erroring the test.
	EvaluationTimeout time.Duration

	// TeardownTimeout bounds adapter cleanup, which runs even after the
	// caller's context is cancelled.
	TeardownTimeout time.Duration

	// DefaultThreshold is the last-resort pass mark for a metric.
	DefaultThreshold float64
}

// DefaultTestConfig returns a TestConfig with default values for all test execution parameters.
func DefaultTestConfig() *TestConfig {
	return &TestConfig{
		MaxConcurrency:    DefaultMaxConcurrency,
		EvaluationTimeout: 2 * time.Minute,
		TeardownTimeout:   30 * time.Second,
		DefaultThreshold:  DefaultThreshold,
	}
}

func (c *TestConfig) withDefaults() *TestConfig {
	def := DefaultTestConfig()
	if c == nil {
		return def
	}

	out := *c
	if out.MaxConcurrency <= 0 {
		out.MaxConcurrency = def.MaxConcurrency
	}
	if out.EvaluationTimeout <= 0 {
		out.EvaluationTimeout = def.EvaluationTimeout
	}
	if out.TeardownTimeout <= 0 {
		out.TeardownTimeout = def.TeardownTimeout
	}
	if out.DefaultThreshold <= 0 {
		out.DefaultThreshold = def.DefaultThreshold
	}

	return &out
}
