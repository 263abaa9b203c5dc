// Package config handles configuration loading and management
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var errInvalidBackend = errors.New("STORE_BACKEND must be one of file, sqlite, clickhouse")

// AppConfig holds the application configuration loaded from environment variables.
type AppConfig struct {
	LogLevel string

	EvaluatorURL     string
	EvaluatorTimeout time.Duration
	EvaluatorRetries int
	MaxConcurrency   int

	SuitesDir    string
	ResultsDir   string
	StoreBackend string
	SQLitePath   string

	ClickhouseHost       string
	ClickhouseNativePort int
	ClickhouseUsername   string
	ClickhousePassword   string
	ClickhouseDatabase   string
	ClickhouseCluster    string
	SafeHostnames        []string

	APIAddr string
}

// Load reads configuration from environment variables and .env file.
func Load() (*AppConfig, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// It's okay if the file doesn't exist
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	return FromEnv()
}

// FromEnv reads configuration from the process environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		EvaluatorURL:       getEnv("EVALUATOR_URL", DefaultEvaluatorURL),
		SuitesDir:          getEnv("SUITES_DIR", DefaultSuitesDir),
		ResultsDir:         getEnv("RESULTS_DIR", DefaultResultsDir),
		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", DefaultStoreBackend)),
		SQLitePath:         getEnv("SQLITE_PATH", DefaultSQLitePath),
		ClickhouseHost:     getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickhouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickhousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
		ClickhouseDatabase: getEnv("CLICKHOUSE_DATABASE", DefaultClickhouseDatabase),
		ClickhouseCluster:  getEnv("CLICKHOUSE_CLUSTER", ""),
		SafeHostnames:      parseSafeHostnames(getEnv("LLMTEST_SAFE_HOSTS", "")),
		APIAddr:            getEnv("API_ADDR", DefaultAPIAddr),
	}

	var err error

	if cfg.EvaluatorTimeout, err = time.ParseDuration(getEnv("EVALUATOR_TIMEOUT", DefaultEvaluatorTimeout.String())); err != nil {
		return nil, fmt.Errorf("invalid EVALUATOR_TIMEOUT: %w", err)
	}

	if cfg.EvaluatorRetries, err = strconv.Atoi(getEnv("EVALUATOR_RETRIES", strconv.Itoa(DefaultEvaluatorRetries))); err != nil {
		return nil, fmt.Errorf("invalid EVALUATOR_RETRIES: %w", err)
	}

	if cfg.MaxConcurrency, err = strconv.Atoi(getEnv("MAX_CONCURRENCY", strconv.Itoa(DefaultMaxConcurrency))); err != nil {
		return nil, fmt.Errorf("invalid MAX_CONCURRENCY: %w", err)
	}

	if cfg.ClickhouseNativePort, err = strconv.Atoi(getEnv("CLICKHOUSE_NATIVE_PORT", "9000")); err != nil {
		return nil, fmt.Errorf("invalid CLICKHOUSE_NATIVE_PORT: %w", err)
	}

	switch cfg.StoreBackend {
	case "file", "sqlite", "clickhouse":
	default:
		return nil, fmt.Errorf("%w, got %q", errInvalidBackend, cfg.StoreBackend)
	}

	return cfg, nil
}

// ScreenshotDir is where browser screenshots are written.
func (c *AppConfig) ScreenshotDir() string {
	return filepath.Join(c.ResultsDir, ScreenshotsDir)
}

func (c *AppConfig) String() string {
	passwordDisplay := "(not set)"
	if c.ClickhousePassword != "" {
		passwordDisplay = "********"
	}

	clusterDisplay := c.ClickhouseCluster
	if clusterDisplay == "" {
		clusterDisplay = "(single-node)"
	}

	safeHosts := strings.Join(c.SafeHostnames, ", ")
	if safeHosts == "" {
		safeHosts = "(none)"
	}

	return fmt.Sprintf(`Current Configuration:
======================
Log Level:              %s
Evaluator URL:          %s
Evaluator Timeout:      %s
Evaluator Retries:      %d
Max Concurrency:        %d
Suites Directory:       %s
Results Directory:      %s
Store Backend:          %s
SQLite Path:            %s
ClickHouse Host:        %s
ClickHouse Native Port: %d
ClickHouse Username:    %s
ClickHouse Password:    %s
ClickHouse Database:    %s
ClickHouse Cluster:     %s
Safe Hosts:             %s
API Address:            %s`,
		c.LogLevel,
		c.EvaluatorURL,
		c.EvaluatorTimeout,
		c.EvaluatorRetries,
		c.MaxConcurrency,
		c.SuitesDir,
		c.ResultsDir,
		c.StoreBackend,
		c.SQLitePath,
		c.ClickhouseHost,
		c.ClickhouseNativePort,
		c.ClickhouseUsername,
		passwordDisplay,
		c.ClickhouseDatabase,
		clusterDisplay,
		safeHosts,
		c.APIAddr,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseSafeHostnames parses a comma-separated list of hostnames.
func parseSafeHostnames(s string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, ",")
	hostnames := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			hostnames = append(hostnames, trimmed)
		}
	}

	return hostnames
}
