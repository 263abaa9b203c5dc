package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Microsecond, "500µs"},
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1.5m"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Duration(tt.in))
		})
	}
}

func TestMillis(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "12ms", Millis(12.4))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{name: "short", in: "hello", limit: 10, want: "hello"},
		{name: "cut", in: "hello world", limit: 8, want: "hello..."},
		{name: "flattens newlines", in: "a\nb\tc", limit: 20, want: "a b c"},
		{name: "tiny limit", in: "hello world", limit: 2, want: "hello world"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Truncate(tt.in, tt.limit))
		})
	}
}

func TestTimestamp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "-", Timestamp(time.Time{}))
	assert.Equal(t, "2024-03-01 10:20:30", Timestamp(time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)))
}
