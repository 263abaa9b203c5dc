package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
	"github.com/thleqel/llm-test-platform/internal/testing/variables"
)

var (
	errFunctionRequired = errors.New("function name is required")
	errUnknownFunction  = errors.New("function is not registered")
	errFunctionExists   = errors.New("function already registered")
	errFunctionPanicked = errors.New("function panicked")
)

// Func is a callable that returns immediately.
type Func func(ctx context.Context, args map[string]any) (any, error)

// AsyncFunc is a callable that completes later by sending on the returned channel.
type AsyncFunc func(ctx context.Context, args map[string]any) <-chan Outcome

// Outcome is the eventual value of an AsyncFunc.
type Outcome struct {
	Value any
	Err   error
}

// FunctionTable holds the callables the host application exposes to suites.
type FunctionTable struct {
	mu    sync.RWMutex
	funcs map[string]AsyncFunc
}

// NewFunctionTable creates an empty table.
func NewFunctionTable() *FunctionTable {
	return &FunctionTable{funcs: make(map[string]AsyncFunc)}
}

// Register adds a synchronous callable.
func (t *FunctionTable) Register(name string, fn Func) error {
	if fn == nil {
		return fmt.Errorf("%w: %s is nil", errUnknownFunction, name)
	}

	return t.RegisterAsync(name, func(ctx context.Context, args map[string]any) <-chan Outcome {
		ch := make(chan Outcome, 1)
		v, err := fn(ctx, args)
		ch <- Outcome{Value: v, Err: err}
		return ch
	})
}

// RegisterAsync adds an asynchronous callable.
func (t *FunctionTable) RegisterAsync(name string, fn AsyncFunc) error {
	if name == "" {
		return errFunctionRequired
	}

	if fn == nil {
		return fmt.Errorf("%w: %s is nil", errUnknownFunction, name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.funcs[name]; exists {
		return fmt.Errorf("%w: %s", errFunctionExists, name)
	}

	t.funcs[name] = fn

	return nil
}

// Lookup returns the callable registered under name.
func (t *FunctionTable) Lookup(name string) (AsyncFunc, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	fn, ok := t.funcs[name]

	return fn, ok
}

// Names lists registered callables in sorted order.
func (t *FunctionTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.funcs))
	for name := range t.funcs {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// RegisterBuiltins adds the callables shipped with the CLI.
func RegisterBuiltins(t *FunctionTable) error {
	builtins := map[string]Func{
		// echo returns its input argument unchanged.
		"echo": func(_ context.Context, args map[string]any) (any, error) {
			return args["input"], nil
		},
		// json renders all arguments as a JSON document.
		"json": func(_ context.Context, args map[string]any) (any, error) {
			data, err := json.Marshal(args)
			if err != nil {
				return nil, err
			}
			return string(data), nil
		},
	}

	for name, fn := range builtins {
		if err := t.Register(name, fn); err != nil {
			return err
		}
	}

	return nil
}

// FunctionConfig configures the function adapter.
type FunctionConfig struct {
	Module   string         `yaml:"module"`
	Function string         `yaml:"function"`
	Args     map[string]any `yaml:"args"`
}

// name joins module and function the way callables are registered.
func (c *FunctionConfig) name() string {
	if c.Module == "" {
		return c.Function
	}
	return c.Module + "." + c.Function
}

// Function invokes a callable from the host's function table.
type Function struct {
	noopLifecycle
	cfg  FunctionConfig
	name string
	fn   AsyncFunc
}

// NewFunction resolves the configured callable.
func NewFunction(raw map[string]any, opts *Options) (Adapter, error) {
	var cfg FunctionConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}

	if cfg.Function == "" {
		return nil, errFunctionRequired
	}

	if cfg.Args == nil {
		cfg.Args = map[string]any{"input": "{{input}}"}
	}

	name := cfg.name()

	fn, ok := opts.Functions.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %v)", errUnknownFunction, name, opts.Functions.Names())
	}

	return &Function{cfg: cfg, name: name, fn: fn}, nil
}

// Execute calls the function with substituted arguments and waits for its outcome.
func (f *Function) Execute(ctx context.Context, tc *testdef.TestCase, runtime map[string]any) (result *Result) {
	metadata := map[string]any{
		"function": f.name,
	}

	defer func() {
		if r := recover(); r != nil {
			result = failed(fmt.Errorf("%w: %v", errFunctionPanicked, r), metadata)
		}
	}()

	args, _ := variables.Substitute(f.cfg.Args, scope(tc, runtime)).(map[string]any)
	metadata["args"] = args

	select {
	case out, ok := <-f.fn(ctx, args):
		if !ok {
			return failed(fmt.Errorf("function %s closed without a result", f.name), metadata)
		}

		if out.Err != nil {
			return failed(fmt.Errorf("calling %s: %w", f.name, out.Err), metadata)
		}

		return succeeded(variables.Stringify(out.Value), metadata)
	case <-ctx.Done():
		return failed(fmt.Errorf("calling %s: %w", f.name, ctx.Err()), metadata)
	}
}
