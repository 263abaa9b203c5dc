package actions

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thleqel/llm-test-platform/internal/config"
	"github.com/thleqel/llm-test-platform/internal/store"
)

func validConfig() *config.AppConfig {
	return &config.AppConfig{
		ClickhouseHost:       "localhost",
		ClickhouseNativePort: 9000,
		ClickhouseUsername:   "default",
		ClickhouseDatabase:   "llm_tests",
	}
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.AppConfig)
		wantErr error
	}{
		{name: "valid", mutate: func(*config.AppConfig) {}},
		{name: "no database", mutate: func(c *config.AppConfig) { c.ClickhouseDatabase = "" }, wantErr: ErrDatabaseNotSet},
		{name: "default database", mutate: func(c *config.AppConfig) { c.ClickhouseDatabase = "default" }, wantErr: ErrDatabaseIsDefault},
		{name: "no host", mutate: func(c *config.AppConfig) { c.ClickhouseHost = "" }, wantErr: ErrHostNotSet},
		{name: "no port", mutate: func(c *config.AppConfig) { c.ClickhouseNativePort = 0 }, wantErr: ErrPortNotSet},
		{name: "no username", mutate: func(c *config.AppConfig) { c.ClickhouseUsername = "" }, wantErr: ErrUsernameNotSet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := validateConfig(cfg)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTruncateQuery(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "TRUNCATE TABLE `llm_tests`.`test_runs`", truncateQuery("llm_tests", "test_runs", ""))
	assert.Contains(t, truncateQuery("llm_tests", "test_runs", "main"), "ON CLUSTER 'main' SYNC")
}

func TestBlockedHostname(t *testing.T) {
	t.Parallel()

	err := errors.New("SAFETY: ClickHouse host 'ch-prod-1' is not in LLMTEST_SAFE_HOSTS")
	assert.Equal(t, "ch-prod-1", blockedHostname(err))
	assert.Equal(t, "UNKNOWN", blockedHostname(errors.New("connection refused")))

	assert.Equal(t, `LLMTEST_SAFE_HOSTS="a,ch-prod-1"`, allowHostExport([]string{"a"}, "ch-prod-1"))
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	dir := t.TempDir()
	ctx := context.Background()

	t.Run("file", func(t *testing.T) {
		s, err := OpenStore(ctx, &config.AppConfig{StoreBackend: store.BackendFile, ResultsDir: dir}, log)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := &config.AppConfig{StoreBackend: store.BackendSQLite, SQLitePath: filepath.Join(dir, "db", "results.db")}

		s, err := OpenStore(ctx, cfg, log)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		s, err := OpenStore(ctx, &config.AppConfig{StoreBackend: "mongo"}, log)
		require.ErrorIs(t, err, store.ErrUnknownBackend)
		assert.Nil(t, s)
	})
}
