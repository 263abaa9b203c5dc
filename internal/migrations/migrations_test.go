package migrations

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thleqel/llm-test-platform/internal/config"
)

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cluster    string
		wantEngine string
		wantOn     string
	}{
		{name: "single node", wantEngine: "ReplacingMergeTree(updated_at)"},
		{name: "cluster", cluster: "results_cluster", wantEngine: "ReplicatedReplacingMergeTree(", wantOn: "ON CLUSTER 'results_cluster'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			require.NoError(t, Render(dir, "llm_tests", tt.cluster))

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			require.Len(t, entries, 4)

			data, err := os.ReadFile(filepath.Join(dir, "001_create_test_runs.up.sql"))
			require.NoError(t, err)

			sql := string(data)
			assert.Contains(t, sql, "`llm_tests`.test_runs")
			assert.Contains(t, sql, tt.wantEngine)
			assert.NotContains(t, sql, "${")

			if tt.wantOn != "" {
				assert.Contains(t, sql, tt.wantOn)
			} else {
				assert.NotContains(t, sql, "ON CLUSTER")
			}
		})
	}
}

func TestConnectionString(t *testing.T) {
	t.Parallel()

	cfg := &config.AppConfig{
		ClickhouseHost:       "localhost",
		ClickhouseNativePort: 9000,
		ClickhouseUsername:   "default",
		ClickhousePassword:   "p@ss&word",
		ClickhouseDatabase:   "llm_tests",
	}

	conn := ConnectionString(cfg)
	require.True(t, strings.HasPrefix(conn, "clickhouse://localhost:9000?"))

	u, err := url.Parse(conn)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "p@ss&word", q.Get("password"))
	assert.Equal(t, "llm_tests", q.Get("database"))
	assert.Equal(t, "MergeTree", q.Get("x-migrations-table-engine"))
	assert.Empty(t, q.Get("x-cluster-name"))
}
