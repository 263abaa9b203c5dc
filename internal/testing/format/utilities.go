// Package format provides shared formatting utilities for human-readable output.
package format

import (
	"fmt"
	"strings"
	"time"
)

// Duration formats a duration for human-readable output.
// Handles microseconds, milliseconds, seconds, and minutes.
func Duration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.0fµs", float64(d.Microseconds()))
	}
	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d.Milliseconds()))
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	return fmt.Sprintf("%.1fm", d.Minutes())
}

// Millis formats a duration given in fractional milliseconds.
func Millis(ms float64) string {
	return Duration(time.Duration(ms * float64(time.Millisecond)))
}

// Truncate shortens s to at most limit runes, marking the cut with "...".
// Newlines are flattened so the result fits a single table cell.
func Truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if limit <= 3 || len(runes) <= limit {
		return s
	}

	return string(runes[:limit-3]) + "..."
}

// Timestamp renders t in UTC for tables, or "-" for the zero time.
func Timestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.UTC().Format("2006-01-02 15:04:05")
}
