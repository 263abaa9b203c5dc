package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runShell(t *testing.T, cfg map[string]any) *Result {
	t.Helper()

	a, err := NewShell(cfg, testOptions())
	require.NoError(t, err)

	return a.Execute(context.Background(), testCase("hello world"), map[string]any{"greeting": "hi"})
}

func TestShell(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		config     map[string]any
		wantOK     bool
		wantOutput string
		wantErr    string
	}{
		{
			name:       "trimmed stdout with substituted args",
			config:     map[string]any{"command": "echo", "args": []any{"{{greeting}}", "{{input}}"}},
			wantOK:     true,
			wantOutput: "hi hello world",
		},
		{
			name: "json extraction",
			config: map[string]any{
				"command":       "sh",
				"args":          []any{"-c", `printf '{"result":{"text":"%s"}}' "$0"`, "{{input}}"},
				"response_path": "result.text",
			},
			wantOK:     true,
			wantOutput: "hello world",
		},
		{
			name: "non json stdout falls back to raw",
			config: map[string]any{
				"command":       "echo",
				"args":          []any{"not json"},
				"response_path": "result",
			},
			wantOK:     true,
			wantOutput: "not json",
		},
		{
			name: "path miss falls back to stdout",
			config: map[string]any{
				"command":       "printf",
				"args":          []any{`{"other":"x"}`},
				"response_path": "result.text",
			},
			wantOK:     true,
			wantOutput: `{"other":"x"}`,
		},
		{
			name:    "non-zero exit",
			config:  map[string]any{"command": "sh", "args": []any{"-c", "echo oops >&2; exit 3"}},
			wantOK:  false,
			wantErr: "non-zero status 3: oops",
		},
		{
			name:    "timeout kills the process",
			config:  map[string]any{"command": "sleep", "args": []any{"5"}, "timeout": 0.1},
			wantOK:  false,
			wantErr: "command execution timeout",
		},
		{
			name:    "missing binary",
			config:  map[string]any{"command": "definitely-not-a-real-binary-xyz"},
			wantOK:  false,
			wantErr: "running command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			start := time.Now()
			res := runShell(t, tt.config)

			assert.Less(t, time.Since(start), 4*time.Second)
			assert.Equal(t, tt.wantOK, res.Success, res.Error)

			if tt.wantOK {
				assert.Equal(t, tt.wantOutput, res.ActualOutput)
				assert.Equal(t, 0, res.Metadata["return_code"])
			} else {
				assert.Contains(t, res.Error, tt.wantErr)
			}
		})
	}
}

func TestShell_CommandMetadataIsQuoted(t *testing.T) {
	t.Parallel()

	res := runShell(t, map[string]any{"command": "echo", "args": []any{"{{input}}"}})
	require.True(t, res.Success)
	assert.Equal(t, "echo 'hello world'", res.Metadata["command"])
}

func TestNewShell_RequiresCommand(t *testing.T) {
	t.Parallel()

	_, err := NewShell(map[string]any{}, testOptions())
	assert.ErrorIs(t, err, errCommandRequired)
}
