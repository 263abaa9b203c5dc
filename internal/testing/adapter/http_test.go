package adapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHTTP(t *testing.T, cfg map[string]any, runtime map[string]any) *Result {
	t.Helper()

	a, err := NewHTTP(cfg, testOptions())
	require.NoError(t, err)
	require.NoError(t, a.Setup(context.Background()))
	defer func() { _ = a.Teardown(context.Background()) }()

	tc := testCase("What is the capital of France?")
	tc.Context = map[string]any{"session": "s-1"}

	return a.Execute(context.Background(), tc, runtime)
}

func TestHTTP_SuccessWithSubstitution(t *testing.T) {
	t.Parallel()

	var (
		gotBody   map[string]any
		gotHeader string
		gotPath   string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Session")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"answer": "Paris", "tokens": 3}}`))
	}))
	defer srv.Close()

	res := runHTTP(t, map[string]any{
		"endpoint":      srv.URL + "/chat/{{env}}",
		"headers":       map[string]any{"X-Session": "{{session}}"},
		"request_body":  map[string]any{"question": "{{input}}", "id": "{{test_case_id}}", "max": 5},
		"response_path": "data.answer",
	}, map[string]any{"env": "staging"})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Paris", res.ActualOutput)
	assert.Equal(t, "/chat/staging", gotPath)
	assert.Equal(t, "s-1", gotHeader)
	assert.Equal(t, "What is the capital of France?", gotBody["question"])
	assert.Equal(t, "tc-1", gotBody["id"])
	assert.InDelta(t, 5, gotBody["max"], 0)
	assert.Equal(t, http.StatusOK, res.Metadata["status_code"])
	assert.Contains(t, res.Metadata, "response_time_ms")
	assert.Contains(t, res.Metadata, "full_response")
}

func TestHTTP_DefaultResponsePath(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response": "hi"}`))
	}))
	defer srv.Close()

	res := runHTTP(t, map[string]any{"url": srv.URL}, nil)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "hi", res.ActualOutput)
}

func TestHTTP_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		config  map[string]any
		wantErr string
	}{
		{
			name: "non-2xx status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte("upstream down"))
			},
			wantErr: "502",
		},
		{
			name: "path miss",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"other": "x"}`))
			},
			config:  map[string]any{"response_path": "data.answer"},
			wantErr: "path not found",
		},
		{
			name: "non json body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("plain"))
			},
			wantErr: "not valid JSON",
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(2 * time.Second):
				case <-r.Context().Done():
				}
			},
			config:  map[string]any{"timeout": 0.05},
			wantErr: "sending request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			cfg := map[string]any{"endpoint": srv.URL}
			for k, v := range tt.config {
				cfg[k] = v
			}

			res := runHTTP(t, cfg, nil)
			assert.False(t, res.Success)
			assert.Contains(t, res.Error, tt.wantErr)
		})
	}
}

func TestHTTP_RawResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("  plain answer \n"))
	}))
	defer srv.Close()

	res := runHTTP(t, map[string]any{"endpoint": srv.URL, "method": "get", "raw_response": true}, nil)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "plain answer", res.ActualOutput)
	assert.Equal(t, http.MethodGet, res.Metadata["method"])
}

func TestHTTP_TransportError(t *testing.T) {
	t.Parallel()

	res := runHTTP(t, map[string]any{"endpoint": "http://127.0.0.1:1/unreachable"}, nil)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestNewHTTP_RequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := NewHTTP(map[string]any{"method": "POST"}, testOptions())
	assert.ErrorIs(t, err, errEndpointRequired)
}
