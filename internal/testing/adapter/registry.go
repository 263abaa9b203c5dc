package adapter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
)

var (
	// ErrUnknownAdapter is returned when no factory is registered for a type tag.
	ErrUnknownAdapter = errors.New("unknown adapter type")
	// ErrMissingAdapter is returned when neither the test case nor the suite names an adapter.
	ErrMissingAdapter = errors.New("no adapter configured")

	errEmptyTypeTag      = errors.New("adapter type tag is empty")
	errNilFactory        = errors.New("adapter factory is nil")
	errAlreadyRegistered = errors.New("adapter type already registered")
)

// Built-in adapter type tags.
const (
	TypeHTTP      = "http"
	TypeBrowser   = "browser"
	TypeFunction  = "function"
	TypeShell     = "shell"
	TypeWebSocket = "websocket"
	TypeChain     = "langchain"
	TypeMock      = "mock"
)

// Registry maps adapter type tags to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	opts      *Options
	log       logrus.FieldLogger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts *Options) *Registry {
	if opts == nil {
		opts = &Options{}
	}

	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	if opts.Functions == nil {
		opts.Functions = NewFunctionTable()
	}

	return &Registry{
		factories: make(map[string]Factory),
		opts:      opts,
		log:       opts.Logger.WithField("component", "adapter_registry"),
	}
}

// NewDefaultRegistry creates a registry with every built-in adapter and
// the aliases used by older suite files.
func NewDefaultRegistry(opts *Options) *Registry {
	r := NewRegistry(opts)

	builtins := []struct {
		tag     string
		factory Factory
	}{
		{TypeHTTP, NewHTTP},
		{TypeBrowser, NewBrowser},
		{"playwright", NewBrowser},
		{TypeFunction, NewFunction},
		{"python_function", NewFunction},
		{TypeShell, NewShell},
		{TypeWebSocket, NewWebSocket},
		{TypeChain, NewChain},
		{TypeMock, NewFixture},
		{"fixture", NewFixture},
	}

	for _, b := range builtins {
		if err := r.Register(b.tag, b.factory); err != nil {
			panic(fmt.Sprintf("registering built-in adapter %s: %v", b.tag, err))
		}
	}

	return r
}

// Register adds a factory under a type tag. Tags are case-insensitive and
// may only be registered once.
func (r *Registry) Register(tag string, factory Factory) error {
	tag = normalizeTag(tag)
	if tag == "" {
		return errEmptyTypeTag
	}

	if factory == nil {
		return fmt.Errorf("%w: %s", errNilFactory, tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[tag]; exists {
		return fmt.Errorf("%w: %s", errAlreadyRegistered, tag)
	}

	r.factories[tag] = factory

	r.log.WithField("type", tag).Debug("registered adapter")

	return nil
}

// New builds a fresh adapter instance for cfg.
func (r *Registry) New(cfg *testdef.AdapterConfig) (Adapter, error) {
	if cfg == nil {
		return nil, ErrMissingAdapter
	}

	tag := normalizeTag(cfg.Type)

	r.mu.RLock()
	factory, ok := r.factories[tag]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (available types: %s)",
			ErrUnknownAdapter, cfg.Type, strings.Join(r.List(), ", "))
	}

	adapter, err := factory(cfg.Config, r.opts)
	if err != nil {
		return nil, fmt.Errorf("creating %s adapter: %w", tag, err)
	}

	return adapter, nil
}

// List returns the registered type tags in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.factories))
	for tag := range r.factories {
		tags = append(tags, tag)
	}

	sort.Strings(tags)

	return tags
}

// Functions returns the callable table consulted by the function adapter.
func (r *Registry) Functions() *FunctionTable {
	return r.opts.Functions
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
