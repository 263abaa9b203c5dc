package adapter

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
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
	"github.com/thleqel/llm-test-platform/internal/testing/variables"
)

const (
	defaultHTTPTimeout      = 30 * time.Second
	defaultHTTPResponsePath = "response"
	maxErrorBodyBytes       = 512
)

var (
	errEndpointRequired = errors.New("http adapter needs an endpoint")
	errNon2xxStatus     = errors.New("unexpected http status")
	errResponseNotJSON  = errors.New("response body is not valid JSON")
)

// HTTPConfig configures the HTTP adapter.
type HTTPConfig struct {
	Endpoint     string            `yaml:"endpoint"`
	URL          string            `yaml:"url"`
	Method       string            `yaml:"method"`
	Headers      map[string]string `yaml:"headers"`
	RequestBody  any               `yaml:"request_body"`
	Timeout      float64           `yaml:"timeout"`
	ResponsePath string            `yaml:"response_path"`
	RawResponse  bool              `yaml:"raw_response"`
}

// HTTP issues one request per execution and extracts the actual output from
// the JSON response body.
type HTTP struct {
	cfg     HTTPConfig
	timeout time.Duration
	client  *http.Client
}

// NewHTTP builds an HTTP adapter.
func NewHTTP(raw map[string]any, _ *Options) (Adapter, error) {
	var cfg HTTPConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = cfg.URL
	}

	if cfg.Endpoint == "" {
		return nil, errEndpointRequired
	}

	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	cfg.Method = strings.ToUpper(cfg.Method)

	if cfg.RequestBody == nil && cfg.Method != http.MethodGet {
		cfg.RequestBody = map[string]any{"input": "{{input}}"}
	}

	if cfg.ResponsePath == "" {
		cfg.ResponsePath = defaultHTTPResponsePath
	}

	timeout := defaultHTTPTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout * float64(time.Second))
	}

	return &HTTP{cfg: cfg, timeout: timeout}, nil
}

// Setup creates the pooled client used for the execution.
func (h *HTTP) Setup(context.Context) error {
	h.client = cleanhttp.DefaultPooledClient()
	return nil
}

// Teardown releases idle connections.
func (h *HTTP) Teardown(context.Context) error {
	if h.client != nil {
		h.client.CloseIdleConnections()
	}
	return nil
}

// Execute performs the request.
func (h *HTTP) Execute(ctx context.Context, tc *testdef.TestCase, runtime map[string]any) *Result {
	vars := scope(tc, runtime)
	endpoint := variables.SubstituteString(h.cfg.Endpoint, vars)
	body := variables.Substitute(h.cfg.RequestBody, vars)

	metadata := map[string]any{
		"url":          endpoint,
		"method":       h.cfg.Method,
		"request_body": body,
	}

	reqBody, contentType, err := encodeBody(body)
	if err != nil {
		return failed(err, metadata)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, h.cfg.Method, endpoint, reqBody)
	if err != nil {
		return failed(fmt.Errorf("building request: %w", err), metadata)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	for k, v := range h.cfg.Headers {
		req.Header.Set(k, variables.SubstituteString(v, vars))
	}

	client := h.client
	if client == nil {
		client = cleanhttp.DefaultClient()
	}

	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		return failed(fmt.Errorf("sending request: %w", err), metadata)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)

	metadata["status_code"] = resp.StatusCode
	metadata["response_time_ms"] = float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		return failed(fmt.Errorf("reading response: %w", err), metadata)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failed(fmt.Errorf("%w %d: %s", errNon2xxStatus, resp.StatusCode, truncate(string(data), maxErrorBodyBytes)), metadata)
	}

	if h.cfg.RawResponse {
		return succeeded(strings.TrimSpace(string(data)), metadata)
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		metadata["raw_response"] = truncate(string(data), maxErrorBodyBytes)
		return failed(fmt.Errorf("%w: %w", errResponseNotJSON, err), metadata)
	}

	metadata["full_response"] = parsed

	output, err := searchPath(h.cfg.ResponsePath, parsed)
	if err != nil {
		return failed(err, metadata)
	}

	return succeeded(output, metadata)
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "text/plain; charset=utf-8", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encoding request body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
