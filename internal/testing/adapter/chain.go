package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
	"github.com/thleqel/llm-test-platform/internal/testing/variables"
)

const (
	defaultChainInputKey  = "input"
	defaultChainOutputKey = "output"
)

var errChainRequired = errors.New("chain_name is required")

// ChainConfig configures the chain adapter.
type ChainConfig struct {
	ChainModule string         `yaml:"chain_module"`
	ChainName   string         `yaml:"chain_name"`
	InputKey    string         `yaml:"input_key"`
	OutputKey   string         `yaml:"output_key"`
	ChainKwargs map[string]any `yaml:"chain_kwargs"`
}

// Chain invokes a registered chain callable with a single input mapping and
// reads the answer from one key of its result.
type Chain struct {
	noopLifecycle
	cfg  ChainConfig
	name string
	fn   AsyncFunc
}

// NewChain resolves "<chain_module>.<chain_name>" in the function table.
func NewChain(raw map[string]any, opts *Options) (Adapter, error) {
	var cfg ChainConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}

	if cfg.ChainName == "" {
		return nil, errChainRequired
	}

	if cfg.InputKey == "" {
		cfg.InputKey = defaultChainInputKey
	}

	if cfg.OutputKey == "" {
		cfg.OutputKey = defaultChainOutputKey
	}

	name := (&FunctionConfig{Module: cfg.ChainModule, Function: cfg.ChainName}).name()

	fn, ok := opts.Functions.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %v)", errUnknownFunction, name, opts.Functions.Names())
	}

	return &Chain{cfg: cfg, name: name, fn: fn}, nil
}

// Execute builds {input_key: input, ...context, ...chain_kwargs} and calls the chain.
func (c *Chain) Execute(ctx context.Context, tc *testdef.TestCase, runtime map[string]any) (result *Result) {
	metadata := map[string]any{
		"chain": c.cfg.ChainName,
	}

	defer func() {
		if r := recover(); r != nil {
			result = failed(fmt.Errorf("%w: %v", errFunctionPanicked, r), metadata)
		}
	}()

	input := make(map[string]any, len(tc.Context)+len(c.cfg.ChainKwargs)+1)
	input[c.cfg.InputKey] = tc.Input
	for k, v := range tc.Context {
		input[k] = v
	}
	if kwargs, ok := variables.Substitute(c.cfg.ChainKwargs, scope(tc, runtime)).(map[string]any); ok {
		for k, v := range kwargs {
			input[k] = v
		}
	}

	select {
	case out, ok := <-c.fn(ctx, input):
		if !ok {
			return failed(fmt.Errorf("chain %s closed without a result", c.name), metadata)
		}

		if out.Err != nil {
			return failed(fmt.Errorf("invoking %s: %w", c.name, out.Err), metadata)
		}

		return succeeded(chainOutput(out.Value, c.cfg.OutputKey, metadata), metadata)
	case <-ctx.Done():
		return failed(fmt.Errorf("invoking %s: %w", c.name, ctx.Err()), metadata)
	}
}

// chainOutput reads outputKey from a mapping result; anything else is stringified whole.
func chainOutput(value any, outputKey string, metadata map[string]any) string {
	m, ok := value.(map[string]any)
	if !ok {
		metadata["full_result"] = map[string]any{}
		return variables.Stringify(value)
	}

	metadata["full_result"] = m

	if v, found := m[outputKey]; found {
		return variables.Stringify(v)
	}

	return variables.Stringify(m)
}
