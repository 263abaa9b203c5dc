package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/thleqel/llm-test-platform/internal/clickhouse"
	"github.com/thleqel/llm-test-platform/internal/config"
)

// ErrHostnameValidationFailed is returned when hostname validation fails for safety reasons.
var ErrHostnameValidationFailed = errors.New("hostname validation failed - operation blocked for safety")

// Teardown truncates every results table in the configured ClickHouse
// database. The schema and migration history are kept.
func Teardown(isInteractive, skipConfirm bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if valErr := validateConfig(cfg); valErr != nil {
		return valErr
	}

	printTarget("⚠️  Teardown Configuration:", cfg)

	if !skipConfirm {
		if isInteractive {
			fmt.Printf("🗑️  You are about to TRUNCATE all tables in database: %s\n", strings.ToUpper(cfg.ClickhouseDatabase))
			fmt.Println("⚠️  WARNING: This will permanently delete ALL stored test runs!")
		}
		// Return here so the caller can handle confirmation
		return nil
	}

	ctx := context.Background()

	fmt.Println("🔗 Connecting to ClickHouse...")
	conn, err := clickhouse.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close connection: %v\n", closeErr)
		}
	}()

	fmt.Println("🔒 Validating hostname safety...")
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	if err := clickhouse.NewValidator(cfg.SafeHostnames, log).Validate(ctx, conn); err != nil {
		fmt.Println()
		displayHostnameValidationError(err, cfg.SafeHostnames)
		return ErrHostnameValidationFailed
	}
	fmt.Println("✅ Hostname validated successfully!")

	exists, err := clickhouse.DatabaseExists(ctx, conn, cfg.ClickhouseDatabase)
	if err != nil {
		return err
	}

	if !exists {
		fmt.Printf("ℹ️  Database '%s' does not exist, nothing to teardown\n", cfg.ClickhouseDatabase)
		fmt.Println("\n✅ Teardown completed successfully!")
		return nil
	}

	fmt.Printf("\n🗑️  Cleaning data from database '%s'...\n", cfg.ClickhouseDatabase)

	rows, err := conn.Query(ctx, `
		SELECT name
		FROM system.tables
		WHERE database = ?
		AND name != 'schema_migrations'
		ORDER BY name
	`, cfg.ClickhouseDatabase)
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close rows: %v\n", closeErr)
		}
	}()

	tables := []string{}
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}

	if len(tables) == 0 {
		fmt.Printf("ℹ️  No data tables found in database '%s'\n", cfg.ClickhouseDatabase)
	}

	for _, table := range tables {
		fmt.Printf("  🗑️  Truncating %s...\n", table)
		if err := conn.Exec(ctx, truncateQuery(cfg.ClickhouseDatabase, table, cfg.ClickhouseCluster)); err != nil {
			// Keep going so one broken table does not leave the rest populated
			fmt.Printf("  ⚠️  Warning: failed to truncate %s: %v\n", table, err)
		}
	}

	fmt.Printf("✅ Database '%s' has been cleaned!\n", cfg.ClickhouseDatabase)
	fmt.Println("\n✅ Teardown completed successfully!")
	return nil
}

func truncateQuery(database, table, cluster string) string {
	if cluster != "" {
		return fmt.Sprintf("TRUNCATE TABLE `%s`.`%s` ON CLUSTER '%s' SYNC SETTINGS alter_sync = 2",
			database, table, cluster)
	}

	return fmt.Sprintf("TRUNCATE TABLE `%s`.`%s`", database, table)
}

// displayHostnameValidationError displays a big red warning box when hostname validation fails
func displayHostnameValidationError(err error, whitelist []string) {
	red := color.New(color.FgRed, color.Bold).SprintFunc()

	hostname := blockedHostname(err)

	fmt.Println(red("╔══════════════════════════════════════════════════════════╗"))
	fmt.Println(red("║         🚨  HOSTNAME VALIDATION FAILED  🚨               ║"))
	fmt.Println(red("╚══════════════════════════════════════════════════════════╝"))
	fmt.Println(red(""))
	fmt.Println(red("  ⚠️  Non-whitelisted ClickHouse host detected!"))
	fmt.Println(red(""))
	fmt.Println(red("  Blocked Hostname: " + hostname))
	fmt.Println(red(""))
	fmt.Println(red("  Check for active port-forwards or SSH tunnels:"))
	fmt.Println(red("    • kubectl port-forward"))
	fmt.Println(red("    • ssh -L (local tunnels)"))
	fmt.Println(red("    • VPN/bastion connections"))
	fmt.Println(red(""))
	fmt.Println(red("  Current Whitelist: " + fmt.Sprintf("%v", whitelist)))
	fmt.Println(red(""))
	fmt.Println(red("  To allow, set environment variable:"))
	fmt.Println(red("    " + allowHostExport(whitelist, hostname)))
	fmt.Println()
}

// blockedHostname extracts the host from a validator error message.
func blockedHostname(err error) string {
	parts := strings.SplitN(err.Error(), "host '", 2)
	if len(parts) < 2 {
		return "UNKNOWN"
	}

	host, _, found := strings.Cut(parts[1], "'")
	if !found || host == "" {
		return "UNKNOWN"
	}

	return host
}

func allowHostExport(whitelist []string, hostname string) string {
	newWhitelist := append(append([]string{}, whitelist...), hostname)
	return fmt.Sprintf("LLMTEST_SAFE_HOSTS=%q", strings.Join(newWhitelist, ","))
}
