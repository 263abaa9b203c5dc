package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSocketServer replies to every message after the first `skip` with reply(msg).
func newSocketServer(t *testing.T, skip int, reply func(msg map[string]any) any) (*httptest.Server, chan map[string]any) {
	t.Helper()

	received := make(chan map[string]any, 4)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for i := 0; ; i++ {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg

			if i < skip {
				continue
			}

			if out := reply(msg); out != nil {
				_ = conn.WriteJSON(out)
			}
		}
	}))

	return srv, received
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocket_RoundTrip(t *testing.T) {
	t.Parallel()

	srv, received := newSocketServer(t, 1, func(msg map[string]any) any {
		return map[string]any{"data": map[string]any{"content": "echo: " + msg["text"].(string)}}
	})
	defer srv.Close()

	a, err := NewWebSocket(map[string]any{
		"url":             wsURL(srv),
		"connect_message": map[string]any{"type": "hello", "case": "{{test_case_id}}"},
		"send_message":    map[string]any{"text": "{{input}}"},
		"extract_path":    "data.content",
	}, testOptions())
	require.NoError(t, err)

	res := a.Execute(context.Background(), testCase("ping"), nil)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "echo: ping", res.ActualOutput)

	handshake := <-received
	assert.Equal(t, "hello", handshake["type"])
	assert.Equal(t, "tc-1", handshake["case"])
}

func TestWebSocket_DefaultMessageAndPath(t *testing.T) {
	t.Parallel()

	srv, _ := newSocketServer(t, 0, func(msg map[string]any) any {
		return map[string]any{"content": msg["message"]}
	})
	defer srv.Close()

	a, err := NewWebSocket(map[string]any{"url": wsURL(srv)}, testOptions())
	require.NoError(t, err)

	res := a.Execute(context.Background(), testCase("hi"), nil)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "hi", res.ActualOutput)
}

func TestWebSocket_Timeout(t *testing.T) {
	t.Parallel()

	srv, _ := newSocketServer(t, 0, func(map[string]any) any { return nil })
	defer srv.Close()

	a, err := NewWebSocket(map[string]any{
		"url":               wsURL(srv),
		"wait_for_response": map[string]any{"timeout": 0.1},
	}, testOptions())
	require.NoError(t, err)

	start := time.Now()
	res := a.Execute(context.Background(), testCase("hi"), nil)

	assert.False(t, res.Success)
	assert.Equal(t, errSocketTimeout.Error(), res.Error)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWebSocket_ExtractMiss(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		reply      any
		wantOK     bool
		wantOutput string
	}{
		{name: "plain key falls back to whole reply", path: "content", reply: map[string]any{"text": "hello"}, wantOK: true, wantOutput: `{"text":"hello"}`},
		{name: "dotted path yields empty output", path: "data.content", reply: map[string]any{"data": map[string]any{}}, wantOK: true, wantOutput: ""},
		{name: "non-object reply fails", path: "content", reply: "plain", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv, _ := newSocketServer(t, 0, func(map[string]any) any { return tt.reply })
			defer srv.Close()

			a, err := NewWebSocket(map[string]any{"url": wsURL(srv), "extract_path": tt.path}, testOptions())
			require.NoError(t, err)

			res := a.Execute(context.Background(), testCase("hi"), nil)
			require.Equal(t, tt.wantOK, res.Success, res.Error)

			if tt.wantOK {
				assert.Equal(t, tt.wantOutput, res.ActualOutput)
			} else {
				assert.Contains(t, res.Error, "path not found")
			}
		})
	}
}

func TestWebSocket_ConnectFailure(t *testing.T) {
	t.Parallel()

	a, err := NewWebSocket(map[string]any{"url": "ws://127.0.0.1:1/nope", "timeout": 1}, testOptions())
	require.NoError(t, err)

	res := a.Execute(context.Background(), testCase("hi"), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "connecting")
}
