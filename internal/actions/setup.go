// Package actions contains the operational tasks behind the setup, teardown
// and show-config commands.
package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/thleqel/llm-test-platform/internal/clickhouse"
	"github.com/thleqel/llm-test-platform/internal/config"
	"github.com/thleqel/llm-test-platform/internal/migrations"
)

var (
	// ErrDatabaseNotSet is returned when the results database is not configured
	ErrDatabaseNotSet = errors.New("CLICKHOUSE_DATABASE is not set")
	// ErrDatabaseIsDefault is returned when the results database is 'default'
	ErrDatabaseIsDefault = errors.New("CLICKHOUSE_DATABASE cannot be 'default' - please choose a dedicated database name")
	// ErrHostNotSet is returned when the ClickHouse host is not configured
	ErrHostNotSet = errors.New("ClickHouse host is not set")
	// ErrPortNotSet is returned when the ClickHouse port is not configured
	ErrPortNotSet = errors.New("ClickHouse native port is not set")
	// ErrUsernameNotSet is returned when the ClickHouse username is not configured
	ErrUsernameNotSet = errors.New("ClickHouse username is not set")
)

// Setup creates the ClickHouse results database and applies migrations.
// Without skipConfirm it only prints the target so the caller can confirm.
func Setup(isInteractive, skipConfirm bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if valErr := validateConfig(cfg); valErr != nil {
		return valErr
	}

	printTarget("📋 Setup Configuration:", cfg)

	if !skipConfirm {
		if isInteractive {
			fmt.Printf("⚠️  You are about to setup results database: %s\n", strings.ToUpper(cfg.ClickhouseDatabase))
			fmt.Println("This will create the database and tables if they don't exist.")
		}
		// Return here so the caller can handle confirmation
		return nil
	}

	ctx := context.Background()

	fmt.Println("🔌 Testing ClickHouse connection...")
	if testErr := clickhouse.TestConnection(ctx, cfg); testErr != nil {
		return fmt.Errorf("connection test failed: %w", testErr)
	}
	fmt.Println("✅ Connection successful!")

	fmt.Println("\n🔗 Connecting to ClickHouse...")
	conn, err := clickhouse.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			fmt.Printf("Warning: failed to close connection: %v\n", err)
		}
	}()

	fmt.Printf("\n📦 Creating database '%s' if it doesn't exist...\n", cfg.ClickhouseDatabase)
	if err := clickhouse.CreateDatabase(ctx, conn, cfg.ClickhouseDatabase, cfg.ClickhouseCluster); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	fmt.Printf("✅ Database '%s' is ready!\n", cfg.ClickhouseDatabase)

	fmt.Printf("\n🔄 Running database migrations...\n")
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	if err := migrations.PrepareAndRun(cfg, log); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	fmt.Println("\n🎉 Setup completed successfully!")
	return nil
}

// validateConfig checks if the configuration is valid for setup and teardown
func validateConfig(cfg *config.AppConfig) error {
	if cfg.ClickhouseDatabase == "" {
		return ErrDatabaseNotSet
	}
	if cfg.ClickhouseDatabase == config.DefaultDatabase {
		return ErrDatabaseIsDefault
	}

	if cfg.ClickhouseHost == "" {
		return ErrHostNotSet
	}

	if cfg.ClickhouseNativePort == 0 {
		return ErrPortNotSet
	}

	if cfg.ClickhouseUsername == "" {
		return ErrUsernameNotSet
	}

	return nil
}

func printTarget(title string, cfg *config.AppConfig) {
	fmt.Printf("\n%s\n", title)
	fmt.Println(strings.Repeat("=", 24))
	fmt.Printf("ClickHouse Host: %s:%d\n", cfg.ClickhouseHost, cfg.ClickhouseNativePort)
	fmt.Printf("Username:        %s\n", cfg.ClickhouseUsername)
	fmt.Printf("Database Name:   %s\n", cfg.ClickhouseDatabase)
	if cfg.ClickhouseCluster != "" {
		fmt.Printf("Cluster:         %s\n", cfg.ClickhouseCluster)
	} else {
		fmt.Printf("Cluster:         (single-node)\n")
	}
	fmt.Println()
}
