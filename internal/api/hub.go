package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/thleqel/llm-test-platform/internal/store"
	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
)

// Websocket message types.
const (
	MessageTestResult = "test_result"
	MessageRunStatus  = "run_status"
	MessageAck        = "ack"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Message is pushed to clients watching a run.
type Message struct {
	Type    string          `json:"type"`
	RunID   string          `json:"run_id,omitempty"`
	Status  string          `json:"status,omitempty"`
	Data    any             `json:"data,omitempty"`
	Summary *store.Summary  `json:"summary,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

type subscriber struct {
	runID string
	conn  *websocket.Conn
	send  chan []byte
}

// Hub fans run progress out to websocket subscribers, grouped by run id.
// Slow subscribers are dropped rather than blocking the scheduler.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]map[*subscriber]struct{}
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

var _ llmtest.Listener = (*Hub)(nil)

// NewHub creates a new websocket hub.
func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		subs: make(map[string]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log.WithField("component", "ws_hub"),
	}
}

// Subscribers returns how many clients watch runID.
func (h *Hub) Subscribers(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs[runID])
}

// ServeRun upgrades the request and streams messages for runID until the
// client disconnects.
func (h *Hub) ServeRun(w http.ResponseWriter, r *http.Request, runID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	sub := &subscriber{
		runID: runID,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
	}

	h.add(sub)

	go h.writePump(sub)
	h.readPump(sub)
}

// OnRunStarted broadcasts the running status.
func (h *Hub) OnRunStarted(run *llmtest.TestRun) {
	snap := run.Snapshot()
	h.Broadcast(&Message{
		Type:    MessageRunStatus,
		RunID:   snap.ID,
		Status:  string(snap.Status),
		Summary: store.NewSummary(snap),
	})
}

// OnTestResult broadcasts one finished test.
func (h *Hub) OnTestResult(run *llmtest.TestRun, result *llmtest.TestResult) {
	h.Broadcast(&Message{
		Type:  MessageTestResult,
		RunID: run.ID,
		Data:  result,
	})
}

// OnRunCompleted broadcasts the final status and summary.
func (h *Hub) OnRunCompleted(run *llmtest.TestRun, _ []*llmtest.TestResult) {
	snap := run.Snapshot()
	h.Broadcast(&Message{
		Type:    MessageRunStatus,
		RunID:   snap.ID,
		Status:  string(snap.Status),
		Summary: store.NewSummary(snap),
	})
}

// Broadcast sends msg to every subscriber of msg.RunID.
func (h *Hub) Broadcast(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Warn("failed to encode websocket message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[msg.RunID] {
		select {
		case sub.send <- data:
		default:
			h.log.WithField("run_id", msg.RunID).Warn("dropping slow websocket subscriber")
			h.removeLocked(sub)
		}
	}
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[sub.runID] == nil {
		h.subs[sub.runID] = make(map[*subscriber]struct{})
	}
	h.subs[sub.runID][sub] = struct{}{}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *subscriber) {
	subs, ok := h.subs[sub.runID]
	if !ok {
		return
	}

	if _, ok := subs[sub]; !ok {
		return
	}

	delete(subs, sub)
	close(sub.send)

	if len(subs) == 0 {
		delete(h.subs, sub.runID)
	}
}

// readPump acknowledges client messages and detects disconnects.
func (h *Hub) readPump(sub *subscriber) {
	defer func() {
		h.remove(sub)
		_ = sub.conn.Close()
	}()

	sub.conn.SetReadLimit(maxMessageSize)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := sub.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).Debug("websocket read error")
			}
			return
		}

		ack, err := json.Marshal(&Message{Type: MessageAck, RunID: sub.runID, Message: ackPayload(message)})
		if err != nil {
			continue
		}

		h.mu.RLock()
		_, live := h.subs[sub.runID][sub]
		if live {
			select {
			case sub.send <- ack:
			default:
			}
		}
		h.mu.RUnlock()
	}
}

// writePump owns all writes to the connection.
func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sub.conn.Close()
	}()

	for {
		select {
		case data, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ackPayload echoes JSON messages as-is and wraps anything else as a string.
func ackPayload(message []byte) json.RawMessage {
	if json.Valid(message) {
		return message
	}

	quoted, _ := json.Marshal(string(message))
	return quoted
}
