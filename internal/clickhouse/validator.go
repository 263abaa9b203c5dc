package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"
)

var (
	// ErrConnectionNil is returned when the database connection is nil.
	ErrConnectionNil = errors.New("database connection is nil")

	// ErrNonWhitelistedHost is returned when attempting a destructive operation on a non-whitelisted ClickHouse host.
	ErrNonWhitelistedHost = errors.New("refusing to modify non-whitelisted ClickHouse host")
)

// Validator validates ClickHouse hostnames against a whitelist to prevent
// accidentally dropping a results database that is not meant for testing.
type Validator interface {
	// Validate checks the connected server's hostName() against the whitelist.
	Validate(ctx context.Context, conn driver.Conn) error
}

type validator struct {
	safeHostnames []string
	log           logrus.FieldLogger
}

// Compile-time check to ensure validator implements Validator interface.
var _ Validator = (*validator)(nil)

// NewValidator creates a new hostname validator with the provided whitelist.
func NewValidator(safeHostnames []string, log logrus.FieldLogger) Validator {
	return &validator{
		safeHostnames: safeHostnames,
		log:           log.WithField("component", "hostname_validator"),
	}
}

// Validate checks if the connected ClickHouse hostname is whitelisted.
func (v *validator) Validate(ctx context.Context, conn driver.Conn) error {
	if conn == nil {
		return ErrConnectionNil
	}

	var hostname string
	if err := conn.QueryRow(ctx, "SELECT hostName()").Scan(&hostname); err != nil {
		return fmt.Errorf("failed to query ClickHouse hostname: %w", err)
	}

	return v.check(hostname)
}

func (v *validator) check(hostname string) error {
	hostname = strings.TrimSpace(hostname)
	if !slices.Contains(v.safeHostnames, hostname) {
		return fmt.Errorf(
			"SAFETY: ClickHouse host '%s' is not in LLMTEST_SAFE_HOSTS. "+
				"Add it to the whitelist to allow destructive operations. "+
				"Current whitelist: %v: %w",
			hostname,
			v.safeHostnames,
			ErrNonWhitelistedHost,
		)
	}

	v.log.WithFields(logrus.Fields{
		"hostname":  hostname,
		"whitelist": v.safeHostnames,
	}).Info("ClickHouse hostname validated successfully")

	return nil
}
