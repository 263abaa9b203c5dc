package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixture(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "answer.txt")
	require.NoError(t, os.WriteFile(file, []byte("Paris from file"), 0o600))

	tests := []struct {
		name       string
		config     map[string]any
		wantOK     bool
		wantOutput string
	}{
		{
			name:       "literal",
			config:     map[string]any{"actual_output": "Paris"},
			wantOK:     true,
			wantOutput: "Paris",
		},
		{
			name:       "literal with placeholder",
			config:     map[string]any{"actual_output": "echo: {{input}}"},
			wantOK:     true,
			wantOutput: "echo: capital?",
		},
		{
			name:       "file",
			config:     map[string]any{"fixture_file": file},
			wantOK:     true,
			wantOutput: "Paris from file",
		},
		{
			name:   "missing file",
			config: map[string]any{"fixture_file": filepath.Join(dir, "nope.txt")},
			wantOK: false,
		},
		{
			name:   "nothing configured",
			config: nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a, err := NewFixture(tt.config, testOptions())
			require.NoError(t, err)

			res := a.Execute(context.Background(), testCase("capital?"), nil)
			assert.Equal(t, tt.wantOK, res.Success)
			assert.Equal(t, TypeMock, res.Metadata["adapter_type"])

			if tt.wantOK {
				assert.Equal(t, tt.wantOutput, res.ActualOutput)
				assert.Empty(t, res.Error)
			} else {
				assert.NotEmpty(t, res.Error)
			}
		})
	}
}
