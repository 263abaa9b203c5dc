// Package evaluator talks to the remote metric scoring service.
package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is where the scoring service listens by default.
	DefaultBaseURL = "http://localhost:8001"
	// DefaultTimeout caps a single evaluation call.
	DefaultTimeout = 2 * time.Minute

	evaluateSinglePath = "/api/v1/evaluation/single"
	listMetricsPath    = "/api/v1/evaluation/metrics"
	healthPath         = "/health"
)

var (
	// ErrTimeout is returned when an evaluation exceeds its deadline.
	ErrTimeout = errors.New("evaluation timeout")
	// ErrStatus is returned for non-2xx responses from the service.
	ErrStatus = errors.New("evaluator returned an error status")

	errNoResult = errors.New("evaluator response has no result")
)

// Request asks the service to score one actual output.
type Request struct {
	Input            string         `json:"input"`
	ActualOutput     string         `json:"actual_output"`
	ExpectedOutput   string         `json:"expected_output,omitempty"`
	RetrievalContext []string       `json:"retrieval_context,omitempty"`
	Metrics          []string       `json:"metrics"`
	MetricParams     map[string]any `json:"metric_kwargs,omitempty"`
}

// MetricScore is the service's verdict for one metric. Success is false when
// the metric could not be computed.
type MetricScore struct {
	Score     float64        `json:"score"`
	Reason    string         `json:"reason,omitempty"`
	Success   bool           `json:"success"`
	Threshold *float64       `json:"threshold,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Response holds every scored metric plus the raw payload for auditing.
type Response struct {
	Metrics map[string]*MetricScore
	Raw     map[string]any
}

type responseEnvelope struct {
	Result *struct {
		Metrics map[string]*MetricScore `json:"metrics"`
	} `json:"result"`
}

// Client is the evaluator collaborator.
type Client interface {
	Evaluate(ctx context.Context, req *Request) (*Response, error)
	ListMetrics(ctx context.Context) ([]string, error)
	Health(ctx context.Context) error
}

// Config configures the HTTP client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Logger     logrus.FieldLogger
}

type client struct {
	baseURL string
	timeout time.Duration
	http    *retryablehttp.Client
	log     logrus.FieldLogger
}

var _ Client = (*client)(nil)

// NewClient creates an HTTP evaluator client. Transport errors and 5xx
// responses are retried with backoff up to MaxRetries times.
func NewClient(cfg *Config) Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}
	log = log.WithField("component", "evaluator_client")

	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			log.WithFields(logrus.Fields{"url": req.URL.String(), "attempt": attempt}).Debug("retrying evaluator request")
		}
	}
	// Hand non-2xx responses back to the caller instead of a generic giving-up error.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &client{
		baseURL: baseURL,
		timeout: timeout,
		http:    rc,
		log:     log,
	}
}

// Evaluate scores one actual output. Deadline expiry is reported as ErrTimeout.
func (c *client) Evaluate(ctx context.Context, req *Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.do(ctx, http.MethodPost, evaluateSinglePath, payload)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		return nil, err
	}

	var env responseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if env.Result == nil {
		return nil, errNoResult
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding raw response: %w", err)
	}

	metrics := env.Result.Metrics
	if metrics == nil {
		metrics = make(map[string]*MetricScore)
	}

	c.log.WithField("metrics", len(metrics)).Debug("evaluation completed")

	return &Response{Metrics: metrics, Raw: raw}, nil
}

// ListMetrics returns the metric names the service supports.
func (c *client) ListMetrics(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, listMetricsPath, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Metrics []string `json:"metrics"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding metrics: %w", err)
	}

	return out.Metrics, nil
}

// Health reports whether the service answers its health endpoint.
func (c *client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, healthPath, nil)
	return err
}

func (c *client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling evaluator %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading evaluator response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 256 {
			msg = msg[:256]
		}
		return nil, fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, msg)
	}

	return data, nil
}
