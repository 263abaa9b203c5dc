package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
)

func chainOptions(t *testing.T) (*Options, chan map[string]any) {
	t.Helper()

	received := make(chan map[string]any, 1)

	opts := testOptions()
	opts.Functions = NewFunctionTable()

	require.NoError(t, opts.Functions.Register("qa.answer_chain", func(_ context.Context, args map[string]any) (any, error) {
		received <- args
		return map[string]any{"answer": "Paris", "sources": []any{"wiki"}}, nil
	}))
	require.NoError(t, opts.Functions.Register("qa.plain_chain", func(_ context.Context, args map[string]any) (any, error) {
		return "plain " + args["input"].(string), nil
	}))
	require.NoError(t, opts.Functions.Register("qa.broken_chain", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("llm unavailable")
	}))

	return opts, received
}

func TestChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		config     map[string]any
		wantOK     bool
		wantOutput string
	}{
		{
			name:       "output key from mapping",
			config:     map[string]any{"chain_module": "qa", "chain_name": "answer_chain", "output_key": "answer"},
			wantOK:     true,
			wantOutput: "Paris",
		},
		{
			name:       "missing output key stringifies the mapping",
			config:     map[string]any{"chain_module": "qa", "chain_name": "answer_chain"},
			wantOK:     true,
			wantOutput: `{"answer":"Paris","sources":["wiki"]}`,
		},
		{
			name:       "non mapping result",
			config:     map[string]any{"chain_module": "qa", "chain_name": "plain_chain"},
			wantOK:     true,
			wantOutput: "plain capital?",
		},
		{
			name:   "chain error",
			config: map[string]any{"chain_module": "qa", "chain_name": "broken_chain"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts, _ := chainOptions(t)

			a, err := NewChain(tt.config, opts)
			require.NoError(t, err)

			res := a.Execute(context.Background(), testCase("capital?"), nil)
			require.Equal(t, tt.wantOK, res.Success, res.Error)

			if tt.wantOK {
				assert.Equal(t, tt.wantOutput, res.ActualOutput)
			} else {
				assert.Contains(t, res.Error, "llm unavailable")
			}
		})
	}
}

func TestChain_InputMapping(t *testing.T) {
	t.Parallel()

	opts, received := chainOptions(t)

	a, err := NewChain(map[string]any{
		"chain_module": "qa",
		"chain_name":   "answer_chain",
		"input_key":    "question",
		"chain_kwargs": map[string]any{"temperature": 0, "user": "{{user}}", "lang": "fr"},
	}, opts)
	require.NoError(t, err)

	tc := &testdef.TestCase{
		ID:      "tc-1",
		Input:   "capital?",
		Context: map[string]any{"user": "ada", "lang": "en"},
	}

	res := a.Execute(context.Background(), tc, nil)
	require.True(t, res.Success, res.Error)

	args := <-received
	assert.Equal(t, "capital?", args["question"])
	assert.Equal(t, "ada", args["user"])
	assert.Equal(t, "fr", args["lang"])
	assert.Equal(t, 0, args["temperature"])
	assert.Equal(t, "answer_chain", res.Metadata["chain"])
}

func TestNewChain_Errors(t *testing.T) {
	t.Parallel()

	opts, _ := chainOptions(t)

	_, err := NewChain(map[string]any{"chain_module": "qa"}, opts)
	require.ErrorIs(t, err, errChainRequired)

	_, err = NewChain(map[string]any{"chain_module": "qa", "chain_name": "missing"}, opts)
	require.ErrorIs(t, err, errUnknownFunction)

	_, err = NewChain(map[string]any{"chain_name": "x", "chain_modul": "typo"}, opts)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDefaultRegistry_BuildsChain(t *testing.T) {
	t.Parallel()

	opts, _ := chainOptions(t)
	r := NewDefaultRegistry(opts)

	a, err := r.New(&testdef.AdapterConfig{Type: "LangChain", Config: map[string]any{"chain_module": "qa", "chain_name": "plain_chain"}})
	require.NoError(t, err)
	assert.IsType(t, &Chain{}, a)
}
