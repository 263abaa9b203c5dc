package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
	"github.com/thleqel/llm-test-platform/internal/testing/variables"
)

const (
	defaultSocketTimeout     = 30 * time.Second
	defaultSocketExtractPath = "content"
)

var (
	errSocketURLRequired = errors.New("websocket adapter needs a url")
	errSocketTimeout     = errors.New("websocket response timeout")
)

// WaitConfig overrides how long to wait for the reply.
type WaitConfig struct {
	Timeout float64 `yaml:"timeout"`
}

// WebSocketConfig configures the websocket adapter.
type WebSocketConfig struct {
	URL             string            `yaml:"url"`
	Headers         map[string]string `yaml:"headers"`
	Timeout         float64           `yaml:"timeout"`
	ConnectMessage  any               `yaml:"connect_message"`
	SendMessage     any               `yaml:"send_message"`
	WaitForResponse WaitConfig        `yaml:"wait_for_response"`
	ExtractPath     string            `yaml:"extract_path"`
}

// WebSocket sends one message and reads exactly one reply.
type WebSocket struct {
	noopLifecycle
	cfg         WebSocketConfig
	timeout     time.Duration
	waitTimeout time.Duration
}

// NewWebSocket builds a websocket adapter.
func NewWebSocket(raw map[string]any, _ *Options) (Adapter, error) {
	var cfg WebSocketConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}

	if cfg.URL == "" {
		return nil, errSocketURLRequired
	}

	if cfg.SendMessage == nil {
		cfg.SendMessage = map[string]any{"message": "{{input}}"}
	}

	if cfg.ExtractPath == "" {
		cfg.ExtractPath = defaultSocketExtractPath
	}

	timeout := defaultSocketTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout * float64(time.Second))
	}

	waitTimeout := timeout
	if cfg.WaitForResponse.Timeout > 0 {
		waitTimeout = time.Duration(cfg.WaitForResponse.Timeout * float64(time.Second))
	}

	return &WebSocket{cfg: cfg, timeout: timeout, waitTimeout: waitTimeout}, nil
}

// Execute dials, sends and waits for the reply.
func (w *WebSocket) Execute(ctx context.Context, tc *testdef.TestCase, runtime map[string]any) *Result {
	vars := scope(tc, runtime)
	url := variables.SubstituteString(w.cfg.URL, vars)

	metadata := map[string]any{
		"url": url,
	}

	header := http.Header{}
	for k, v := range w.cfg.Headers {
		header.Set(k, variables.SubstituteString(v, vars))
	}

	dialCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: w.timeout,
	}

	conn, resp, err := dialer.DialContext(dialCtx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return failed(fmt.Errorf("connecting: %w", err), metadata)
	}
	defer conn.Close()

	// Unblock the read below if the caller gives up first.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if w.cfg.ConnectMessage != nil {
		if err := writeMessage(conn, variables.Substitute(w.cfg.ConnectMessage, vars), w.timeout); err != nil {
			return failed(fmt.Errorf("sending connect message: %w", err), metadata)
		}
	}

	sent := variables.Substitute(w.cfg.SendMessage, vars)
	metadata["sent_message"] = sent

	if err := writeMessage(conn, sent, w.timeout); err != nil {
		return failed(fmt.Errorf("sending message: %w", err), metadata)
	}

	if err := conn.SetReadDeadline(time.Now().Add(w.waitTimeout)); err != nil {
		return failed(fmt.Errorf("setting read deadline: %w", err), metadata)
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return failed(errSocketTimeout, metadata)
		}
		return failed(fmt.Errorf("reading response: %w", err), metadata)
	}

	var parsed any
	if err := json.Unmarshal(message, &parsed); err != nil {
		metadata["raw_response"] = string(message)
		return failed(fmt.Errorf("%w: %w", errResponseNotJSON, err), metadata)
	}

	metadata["full_response"] = parsed

	output, err := extractReply(w.cfg.ExtractPath, parsed, message)
	if err != nil {
		return failed(err, metadata)
	}

	return succeeded(output, metadata)
}

// extractReply reads the actual output from a reply. A missing plain key
// yields the whole reply and a missing dotted path yields "".
func extractReply(path string, parsed any, raw []byte) (string, error) {
	if _, ok := parsed.(map[string]any); !ok {
		return "", fmt.Errorf("%w: %s", errPathNotFound, path)
	}

	output, err := dottedLookup(path, parsed)
	if err == nil {
		return output, nil
	}

	if strings.Contains(path, ".") {
		return "", nil
	}

	return strings.TrimSpace(string(raw)), nil
}

func writeMessage(conn *websocket.Conn, msg any, timeout time.Duration) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}

	if s, ok := msg.(string); ok {
		return conn.WriteMessage(websocket.TextMessage, []byte(s))
	}

	return conn.WriteJSON(msg)
}
