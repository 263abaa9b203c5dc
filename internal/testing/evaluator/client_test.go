package evaluator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, evaluateSinglePath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{
			"result": {
				"metrics": {
					"answer_relevancy": {"score": 0.9, "reason": "on topic", "success": true, "threshold": 0.7},
					"faithfulness": {"score": 0.0, "reason": "timeout", "success": false}
				}
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL + "/", Logger: quietLogger()})

	resp, err := c.Evaluate(context.Background(), &Request{
		Input:            "q",
		ActualOutput:     "a",
		ExpectedOutput:   "e",
		RetrievalContext: []string{"ctx1"},
		Metrics:          []string{"answer_relevancy", "faithfulness"},
		MetricParams:     map[string]any{"threshold": 0.7},
	})
	require.NoError(t, err)

	assert.Equal(t, "q", got["input"])
	assert.Equal(t, "a", got["actual_output"])
	assert.Equal(t, "e", got["expected_output"])
	assert.Equal(t, []any{"ctx1"}, got["retrieval_context"])
	assert.Equal(t, map[string]any{"threshold": 0.7}, got["metric_kwargs"])

	require.Len(t, resp.Metrics, 2)
	relevancy := resp.Metrics["answer_relevancy"]
	assert.InDelta(t, 0.9, relevancy.Score, 1e-9)
	assert.True(t, relevancy.Success)
	require.NotNil(t, relevancy.Threshold)
	assert.InDelta(t, 0.7, *relevancy.Threshold, 1e-9)

	faith := resp.Metrics["faithfulness"]
	assert.False(t, faith.Success)
	assert.Nil(t, faith.Threshold)
	assert.Equal(t, "timeout", faith.Reason)

	assert.Contains(t, resp.Raw, "result")
}

func TestEvaluate_OmitsEmptyOptionalFields(t *testing.T) {
	t.Parallel()

	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"result": {"metrics": {}}}`))
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL, Logger: quietLogger()})
	_, err := c.Evaluate(context.Background(), &Request{Input: "q", ActualOutput: "a", Metrics: []string{"m"}})
	require.NoError(t, err)

	assert.NotContains(t, got, "expected_output")
	assert.NotContains(t, got, "retrieval_context")
	assert.NotContains(t, got, "metric_kwargs")
}

func TestEvaluate_ErrorStatusIsRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL, MaxRetries: 1, Logger: quietLogger()})

	_, err := c.Evaluate(context.Background(), &Request{Metrics: []string{"m"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStatus)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(2), calls.Load())
}

func TestEvaluate_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, Logger: quietLogger()})

	_, err := c.Evaluate(context.Background(), &Request{Metrics: []string{"m"}})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestEvaluate_MissingResult(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL, Logger: quietLogger()})
	_, err := c.Evaluate(context.Background(), &Request{Metrics: []string{"m"}})
	assert.ErrorIs(t, err, errNoResult)
}

func TestHealthAndListMetrics(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(healthPath, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.HandleFunc(listMetricsPath, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"metrics":["answer_relevancy","faithfulness"]}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL, Logger: quietLogger()})

	require.NoError(t, c.Health(context.Background()))

	metrics, err := c.ListMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"answer_relevancy", "faithfulness"}, metrics)
}
