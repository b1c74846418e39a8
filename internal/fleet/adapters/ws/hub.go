package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/common/logger"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/contracts"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/domain"
)

const (
	wsWriteTimeout = 5 * time.Second

	// sendQueueSize bounds the per-session outbound queue. When a consumer
	// falls this far behind, further events are dropped for that session
	// only; the contract is at-most-current-state, not a replay log.
	sendQueueSize = 64
)

// Conn is the subset of *websocket.Conn the hub writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Ensure Hub implements the domain.Broadcaster interface.
var _ domain.Broadcaster = (*Hub)(nil)

// Hub delivers events to the set of connected sessions. Each session gets a
// buffered outbound queue drained by a single writer goroutine, so a slow or
// broken session never blocks delivery to the others, and events submitted
// for one session arrive in submission order.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*client
	logger   *logger.Logger
}

type client struct {
	id   string
	conn Conn
	send chan []byte
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*client),
		logger:   log,
	}
}

// Register adds a session and starts its writer. An existing session under
// the same ID is closed and replaced.
func (h *Hub) Register(sessionID string, conn Conn) {
	c := &client{id: sessionID, conn: conn, send: make(chan []byte, sendQueueSize)}

	h.mu.Lock()
	if old, ok := h.sessions[sessionID]; ok {
		close(old.send)
		_ = old.conn.Close()
	}
	h.sessions[sessionID] = c
	h.mu.Unlock()

	go h.writePump(c)
	h.logger.Info(context.Background(), "ws_registered", "Session registered", map[string]any{"session_id": sessionID})
}

// Unregister removes a session and stops its writer. Idempotent.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	c, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
		close(c.send)
	}
	h.mu.Unlock()

	if ok {
		h.logger.Info(context.Background(), "ws_removed", "Session removed", map[string]any{"session_id": sessionID})
	}
}

// BroadcastAll delivers an event to every connected session.
func (h *Hub) BroadcastAll(event string, payload any) {
	h.broadcast(event, payload, "")
}

// BroadcastExcept delivers an event to every connected session but one.
func (h *Hub) BroadcastExcept(event string, payload any, excludedSessionID string) {
	h.broadcast(event, payload, excludedSessionID)
}

// Send delivers an event to a single session; not connected is a no-op.
func (h *Hub) Send(sessionID, event string, payload any) {
	msg, err := h.encode(event, payload)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.sessions[sessionID]; ok {
		h.enqueue(c, msg)
	}
}

// SessionCount reports the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// broadcast marshals once and enqueues per session, skipping the excluded one.
func (h *Hub) broadcast(event string, payload any, excludedSessionID string) {
	msg, err := h.encode(event, payload)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.sessions {
		if id == excludedSessionID {
			continue
		}
		h.enqueue(c, msg)
	}
}

func (h *Hub) encode(event string, payload any) ([]byte, error) {
	msg, err := json.Marshal(contracts.OutboundEnvelope{Type: event, Data: payload})
	if err != nil {
		h.logger.Error(context.Background(), "ws_encode_failed", "Failed to encode outbound event", err, map[string]any{
			"event": event,
		})
		return nil, err
	}
	return msg, nil
}

// enqueue is non-blocking; the caller holds at least a read lock, which keeps
// the send channel open for the duration of the send.
func (h *Hub) enqueue(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.logger.Debug(context.Background(), "ws_send_dropped", "Outbound queue full; event dropped for slow session", map[string]any{
			"session_id": c.id,
		})
	}
}

// writePump drains a session's queue onto its connection. On a write error
// the connection is closed to unblock the session's reader; the lifecycle
// handler then unregisters the session, which closes the queue and ends
// this goroutine.
func (h *Hub) writePump(c *client) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Error(context.Background(), "ws_write_failed", "Failed to write to session", err, map[string]any{
				"session_id": c.id,
			})
			_ = c.conn.Close()
			// keep draining until Unregister closes the queue, so
			// non-blocking enqueues keep falling through cheaply
			for range c.send {
			}
			return
		}
	}
}
