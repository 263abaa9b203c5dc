package clickhouse

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestValidatorCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		whitelist []string
		hostname  string
		wantErr   bool
	}{
		{name: "whitelisted", whitelist: []string{"ch-test"}, hostname: "ch-test"},
		{name: "trims whitespace", whitelist: []string{"ch-test"}, hostname: " ch-test\n"},
		{name: "not whitelisted", whitelist: []string{"ch-test"}, hostname: "ch-prod", wantErr: true},
		{name: "empty whitelist", hostname: "localhost", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := &validator{safeHostnames: tt.whitelist, log: quietLogger()}
			err := v.check(tt.hostname)

			if tt.wantErr {
				require.ErrorIs(t, err, ErrNonWhitelistedHost)
				assert.Contains(t, err.Error(), "LLMTEST_SAFE_HOSTS")
				return
			}

			require.NoError(t, err)
		})
	}
}

func TestValidateNilConnection(t *testing.T) {
	t.Parallel()

	err := NewValidator(nil, quietLogger()).Validate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrConnectionNil)
}
