// Package adapter provides the trigger adapters that turn a test case's input
// into an actual output, and the registry that builds them from configuration.
package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
	"github.com/thleqel/llm-test-platform/internal/testing/variables"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidConfig is returned when an adapter's config mapping cannot be used.
	ErrInvalidConfig = errors.New("invalid adapter config")
	// ErrSetup is returned when an adapter fails to acquire its resources.
	ErrSetup = errors.New("adapter setup failed")
)

// Adapter is a trigger that produces an actual output for a test case.
//
// Execute never returns an error: every failure is captured in the Result.
// Teardown is best effort and must be safe to call after a failed or
// partial Setup. An adapter instance serves a single test execution.
type Adapter interface {
	Setup(ctx context.Context) error
	Execute(ctx context.Context, tc *testdef.TestCase, runtime map[string]any) *Result
	Teardown(ctx context.Context) error
}

// Result is the outcome of one adapter invocation.
type Result struct {
	ActualOutput string         `json:"actual_output"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Success      bool           `json:"success"`
	Error        string         `json:"error,omitempty"`
}

func succeeded(output string, metadata map[string]any) *Result {
	return &Result{
		ActualOutput: output,
		Metadata:     metadata,
		Success:      true,
	}
}

func failed(err error, metadata map[string]any) *Result {
	if metadata == nil {
		metadata = make(map[string]any, 1)
	}

	metadata["error_details"] = err.Error()

	return &Result{
		Metadata: metadata,
		Success:  false,
		Error:    err.Error(),
	}
}

// Options carries dependencies shared by every adapter built by a registry.
type Options struct {
	Logger        logrus.FieldLogger
	Functions     *FunctionTable
	ScreenshotDir string
}

// Factory builds an adapter from its opaque config mapping.
type Factory func(cfg map[string]any, opts *Options) (Adapter, error)

// scope builds the substitution scope for one execution.
func scope(tc *testdef.TestCase, runtime map[string]any) variables.Scope {
	return variables.BuildScope(tc.ID, tc.Input, tc.Context, runtime)
}

// decodeConfig maps an opaque config onto a typed struct, rejecting unknown keys.
func decodeConfig(raw map[string]any, out any) error {
	if len(raw) == 0 {
		return nil
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// noopLifecycle is embedded by stateless adapters.
type noopLifecycle struct{}

func (noopLifecycle) Setup(context.Context) error    { return nil }
func (noopLifecycle) Teardown(context.Context) error { return nil }
