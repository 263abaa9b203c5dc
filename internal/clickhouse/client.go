// Package clickhouse provides ClickHouse database connection and management utilities
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/thleqel/llm-test-platform/internal/config"
)

// Connect establishes a connection to ClickHouse using native protocol
func Connect(ctx context.Context, cfg *config.AppConfig) (driver.Conn, error) {
	// Use "default" database for the initial connection so setup can create
	// the results database after connecting
	options := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.ClickhouseHost, cfg.ClickhouseNativePort)},
		Auth: clickhouse.Auth{
			Database: config.DefaultDatabase,
			Username: cfg.ClickhouseUsername,
			Password: cfg.ClickhousePassword,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     time.Second * 30,
		MaxOpenConns:    5,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Duration(10) * time.Minute,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return conn, nil
}

// CreateDatabase creates a database if it doesn't exist
func CreateDatabase(ctx context.Context, conn driver.Conn, dbName, cluster string) error {
	query := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` %s", dbName, onCluster(cluster))

	if err := conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	return nil
}

// DropDatabase drops a database and everything in it
func DropDatabase(ctx context.Context, conn driver.Conn, dbName, cluster string) error {
	query := fmt.Sprintf("DROP DATABASE IF EXISTS `%s` %s SYNC", dbName, onCluster(cluster))

	if err := conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}

	return nil
}

// DatabaseExists reports whether dbName is present on the server
func DatabaseExists(ctx context.Context, conn driver.Conn, dbName string) (bool, error) {
	var count uint64
	if err := conn.QueryRow(ctx, "SELECT count() FROM system.databases WHERE name = ?", dbName).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check if database exists: %w", err)
	}

	return count > 0, nil
}

// TestConnection tests if we can connect to ClickHouse
func TestConnection(ctx context.Context, cfg *config.AppConfig) error {
	conn, err := Connect(ctx, cfg)
	if err != nil {
		return err
	}

	return conn.Close()
}

func onCluster(cluster string) string {
	if cluster != "" {
		return fmt.Sprintf("ON CLUSTER '%s'", cluster)
	}
	return ""
}
