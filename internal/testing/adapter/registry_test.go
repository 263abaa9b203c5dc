package adapter

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
)

func testOptions() *Options {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &Options{Logger: log, ScreenshotDir: "screenshots"}
}

func testCase(input string) *testdef.TestCase {
	return &testdef.TestCase{ID: "tc-1", Name: "case", Input: input}
}

type customAdapter struct {
	noopLifecycle
}

func (customAdapter) Execute(context.Context, *testdef.TestCase, map[string]any) *Result {
	return succeeded("custom", nil)
}

func TestDefaultRegistry_List(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry(testOptions())
	assert.Equal(t, []string{
		"browser", "fixture", "function", "http", "langchain", "mock",
		"playwright", "python_function", "shell", "websocket",
	}, r.List())
}

func TestRegistry_UnknownTag(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry(testOptions())

	_, err := r.New(&testdef.AdapterConfig{Type: "carrier-pigeon"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownAdapter)
	assert.Contains(t, err.Error(), `"carrier-pigeon"`)
	assert.Contains(t, err.Error(), "http, mock")
}

func TestRegistry_MissingConfig(t *testing.T) {
	t.Parallel()

	_, err := NewDefaultRegistry(testOptions()).New(nil)
	assert.ErrorIs(t, err, ErrMissingAdapter)
}

func TestRegistry_RegisterValidation(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testOptions())
	factory := func(map[string]any, *Options) (Adapter, error) { return customAdapter{}, nil }

	require.NoError(t, r.Register("Custom", factory))
	assert.ErrorIs(t, r.Register("custom", factory), errAlreadyRegistered)
	assert.ErrorIs(t, r.Register("  ", factory), errEmptyTypeTag)
	assert.ErrorIs(t, r.Register("other", nil), errNilFactory)

	a, err := r.New(&testdef.AdapterConfig{Type: "CUSTOM"})
	require.NoError(t, err)

	res := a.Execute(context.Background(), testCase("q"), nil)
	assert.True(t, res.Success)
	assert.Equal(t, "custom", res.ActualOutput)
}

func TestRegistry_NewReturnsFreshInstances(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry(testOptions())
	cfg := &testdef.AdapterConfig{Type: TypeMock, Config: map[string]any{"actual_output": "x"}}

	a1, err := r.New(cfg)
	require.NoError(t, err)
	a2, err := r.New(cfg)
	require.NoError(t, err)

	assert.NotSame(t, a1, a2)
}

func TestRegistry_InvalidConfigRejected(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry(testOptions())

	_, err := r.New(&testdef.AdapterConfig{Type: TypeMock, Config: map[string]any{"actual_outptu": "typo"}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
