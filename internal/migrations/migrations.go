// Package migrations handles database schema migrations
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/clickhouse" // clickhouse driver for migrations
	_ "github.com/golang-migrate/migrate/v4/source/file"         // file source driver for migrations
	"github.com/sirupsen/logrus"
	"github.com/thleqel/llm-test-platform/internal/config"
)

//go:embed sql/*.sql
var files embed.FS

// Placeholders substituted into every migration file.
const (
	placeholderDatabase        = "${DATABASE}"
	placeholderOnCluster       = "${ON_CLUSTER}"
	placeholderReplacingEngine = "${REPLACING_ENGINE}"
)

// PrepareAndRun renders the embedded migrations for cfg and applies them.
func PrepareAndRun(cfg *config.AppConfig, log logrus.FieldLogger) error {
	log = log.WithField("component", "migrations")

	tempDir, err := os.MkdirTemp("", "llmtest-migrations-*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(tempDir) // Clean up temp dir when done
	}()

	if procErr := Render(tempDir, cfg.ClickhouseDatabase, cfg.ClickhouseCluster); procErr != nil {
		return fmt.Errorf("failed to process migration files: %w", procErr)
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", tempDir), ConnectionString(cfg))
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer func() {
		if _, closeErr := m.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("failed to close migration instance")
		}
	}()

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", upErr)
	}

	if errors.Is(upErr, migrate.ErrNoChange) {
		log.Info("no new migrations to apply")
		return nil
	}

	version, dirty, vErr := m.Version()
	if vErr != nil && !errors.Is(vErr, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", vErr)
	}

	log.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("migrations applied")

	return nil
}

// Render writes the embedded migrations into destDir with placeholders
// substituted for the target database and cluster.
func Render(destDir, database, cluster string) error {
	entries, err := fs.ReadDir(files, "sql")
	if err != nil {
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	replacer := strings.NewReplacer(
		placeholderDatabase, database,
		placeholderOnCluster, onClusterClause(cluster),
		placeholderReplacingEngine, replacingEngine(cluster),
	)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := files.ReadFile("sql/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", entry.Name(), err)
		}

		destPath := filepath.Join(destDir, entry.Name())
		if err := os.WriteFile(destPath, []byte(replacer.Replace(string(content))), 0o600); err != nil {
			return fmt.Errorf("failed to write file %s: %w", destPath, err)
		}
	}

	return nil
}

// ConnectionString builds the ClickHouse connection string for golang-migrate
func ConnectionString(cfg *config.AppConfig) string {
	q := url.Values{}
	q.Set("username", cfg.ClickhouseUsername)
	q.Set("database", cfg.ClickhouseDatabase)
	q.Set("x-multi-statement", "true")

	if cfg.ClickhousePassword != "" {
		q.Set("password", cfg.ClickhousePassword)
	}

	if cfg.ClickhouseCluster != "" {
		// Clustered setups need a replicated migrations table
		q.Set("x-cluster-name", cfg.ClickhouseCluster)
		q.Set("x-migrations-table-engine", "ReplicatedMergeTree")
	} else {
		q.Set("x-migrations-table-engine", "MergeTree")
	}

	return fmt.Sprintf("clickhouse://%s:%d?%s", cfg.ClickhouseHost, cfg.ClickhouseNativePort, q.Encode())
}

func onClusterClause(cluster string) string {
	if cluster == "" {
		return ""
	}
	return fmt.Sprintf("ON CLUSTER '%s'", cluster)
}

func replacingEngine(cluster string) string {
	if cluster == "" {
		return "ReplacingMergeTree(updated_at)"
	}
	return `ReplicatedReplacingMergeTree('/clickhouse/{installation}/{cluster}/tables/{shard}/{database}/{table}', '{replica}', updated_at)`
}
