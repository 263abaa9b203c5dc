package config

import "time"

const (
	// DefaultEvaluatorURL is the scoring service used when EVALUATOR_URL is unset.
	DefaultEvaluatorURL = "http://localhost:8001"
	// DefaultEvaluatorTimeout caps one evaluation call.
	DefaultEvaluatorTimeout = 2 * time.Minute
	// DefaultEvaluatorRetries is the number of transport retries per evaluation.
	DefaultEvaluatorRetries = 2
	// DefaultMaxConcurrency is the scheduler permit count.
	DefaultMaxConcurrency = 10
	// DefaultSuitesDir is where suite files are discovered.
	DefaultSuitesDir = "test_artifacts/test_suites"
	// DefaultResultsDir is the file store root.
	DefaultResultsDir = "test_results"
	// DefaultSQLitePath is the sqlite store location.
	DefaultSQLitePath = "test_results/results.db"
	// DefaultStoreBackend selects the file store.
	DefaultStoreBackend = "file"
	// DefaultClickhouseDatabase holds the results tables.
	DefaultClickhouseDatabase = "llm_tests"
	// DefaultAPIAddr is the REST and websocket listen address.
	DefaultAPIAddr = ":8000"
	// ScreenshotsDir is created under the results directory for browser screenshots.
	ScreenshotsDir = "screenshots"
	// MigrationsDir is the directory path for database migrations.
	MigrationsDir = "migrations"
	// DefaultDatabase is the name of the ClickHouse default database.
	DefaultDatabase = "default"
)
