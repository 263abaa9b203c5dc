package adapter

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
	"github.com/thleqel/llm-test-platform/internal/testing/variables"
)

var errNoFixture = errors.New("fixture adapter needs actual_output or fixture_file")

// FixtureConfig configures the fixture adapter.
type FixtureConfig struct {
	ActualOutput string `yaml:"actual_output"`
	FixtureFile  string `yaml:"fixture_file"`
}

// Fixture returns a configured literal or file contents. It is the
// deterministic adapter used for dry runs and tests.
type Fixture struct {
	noopLifecycle
	cfg FixtureConfig
}

// NewFixture builds a fixture adapter.
func NewFixture(raw map[string]any, _ *Options) (Adapter, error) {
	var cfg FixtureConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}

	return &Fixture{cfg: cfg}, nil
}

// Execute returns the fixture output.
func (f *Fixture) Execute(_ context.Context, tc *testdef.TestCase, runtime map[string]any) *Result {
	metadata := map[string]any{
		"adapter_type": TypeMock,
	}

	switch {
	case f.cfg.ActualOutput != "":
		return succeeded(variables.SubstituteString(f.cfg.ActualOutput, scope(tc, runtime)), metadata)
	case f.cfg.FixtureFile != "":
		metadata["fixture_file"] = f.cfg.FixtureFile

		data, err := os.ReadFile(f.cfg.FixtureFile)
		if err != nil {
			return failed(fmt.Errorf("reading fixture file: %w", err), metadata)
		}

		return succeeded(string(data), metadata)
	default:
		return failed(errNoFixture, metadata)
	}
}
