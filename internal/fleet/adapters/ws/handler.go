package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/common/logger"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/app"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/contracts"
)

const (
	pongWait    = 60 * time.Second
	pingPeriod  = 30 * time.Second
	ctrlTimeout = 5 * time.Second
)

// Handler owns the per-session lifecycle: upgrade, session identity, the read
// loop, and the guaranteed disconnect cleanup. Malformed frames are dropped
// and logged; the transport contract is fire-and-forget, so no error frames
// are ever sent back to clients.
type Handler struct {
	logger   *logger.Logger
	upgrader websocket.Upgrader
	hub      *Hub
	registry *app.SessionRegistry
	presence *app.Presence
	relay    *app.LocationRelay
}

func NewHandler(log *logger.Logger, hub *Hub, registry *app.SessionRegistry, presence *app.Presence, relay *app.LocationRelay) *Handler {
	return &Handler{
		logger: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		hub:      hub,
		registry: registry,
		presence: presence,
		relay:    relay,
	}
}

// HandleWS serves one transport session from connect to disconnect.
//
// State machine per session: Connected-Unbound -> (driver-active) ->
// Connected-Bound -> (disconnect) -> Closed. Disconnect is terminal; cleanup
// always runs, even when the request context is already canceled.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error(r.Context(), "ws_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer conn.Close()

	sessionID := newSessionID()
	ctx := h.logger.WithSessionID(r.Context(), sessionID)

	h.hub.Register(sessionID, conn)
	h.registry.Add(sessionID)
	h.logger.Info(ctx, "ws_connected", "Session connected", nil)

	defer h.teardown(ctx, sessionID)

	conn.SetReadLimit(1 << 20) // 1 MiB
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// keepalive pings; WriteControl is safe alongside the hub's writer.
	// done gives the goroutine an exit path on disconnect: a stopped
	// ticker's channel never fires, so ranging over it alone would park
	// this goroutine forever.
	done := make(chan struct{})
	defer close(done)
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout)); err != nil {
					_ = conn.Close() // unblock the reader; teardown follows
					return
				}
			}
		}
	}()

	// read loop: per-connection arrival order is preserved by reading and
	// dispatching sequentially
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Error(ctx, "ws_unexpected_close", "Session closed unexpectedly", err, nil)
			} else {
				h.logger.Info(ctx, "ws_connection_closed", "Session closed", nil)
			}
			return
		}

		var msg contracts.Envelope
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logger.Debug(ctx, "ws_bad_frame", "Dropping frame that is not a valid envelope", map[string]any{
				"size": len(payload),
			})
			continue
		}

		switch msg.Type {
		case contracts.EventDriverActive:
			h.handleDriverActive(ctx, sessionID, msg.Data)

		case contracts.EventUpdateLocation:
			h.handleUpdateLocation(ctx, sessionID, msg.Data)

		default:
			h.logger.Debug(ctx, "ws_unknown_event", "Dropping unknown event type", map[string]any{
				"event": msg.Type,
			})
		}
	}
}

// handleDriverActive marks the reported driver online and binds the session
// to it. Re-sent check-ins are idempotent: the binding sticks, the upsert
// re-asserts online and refreshes last_seen.
func (h *Handler) handleDriverActive(ctx context.Context, sessionID string, raw json.RawMessage) {
	p, err := contracts.DecodeDriverActive(raw)
	if err != nil {
		h.logger.Debug(ctx, "ws_validation_error", "Dropping malformed driver-active payload", map[string]any{
			"reason": err.Error(),
		})
		return
	}

	if bound, ok := h.registry.BoundDriver(sessionID); ok && bound != p.DriverID {
		h.logger.Debug(ctx, "ws_rebind_ignored", "Session already bound; keeping first binding", map[string]any{
			"bound_driver_id": bound,
		})
	}

	if err := h.presence.MarkOnline(ctx, p.DriverID); err != nil {
		// presence already logged; session stays alive and may retry
		return
	}

	// bind only once the online state is durable, so teardown never owes
	// an offline write for a driver the store never accepted
	h.registry.Bind(sessionID, p.DriverID)
}

// handleUpdateLocation forwards a position report using the payload's own
// driver ID; the relay does not require a prior binding.
func (h *Handler) handleUpdateLocation(ctx context.Context, sessionID string, raw json.RawMessage) {
	p, err := contracts.DecodeUpdateLocation(raw)
	if err != nil {
		h.logger.Debug(ctx, "ws_validation_error", "Dropping malformed update-location payload", map[string]any{
			"reason": err.Error(),
		})
		return
	}

	if err := h.relay.Relay(ctx, sessionID, p.DriverID, p.Coordinates); err != nil {
		// relay already logged; nothing is surfaced to the client
		return
	}
}

// teardown runs the terminal disconnect sequence: drop the session from the
// hub, release its binding, and mark a bound driver offline. The offline
// write uses a detached context so cleanup completes even when the request
// context died with the connection; its duration is bounded inside Presence.
func (h *Handler) teardown(ctx context.Context, sessionID string) {
	h.hub.Unregister(sessionID)

	driverID, bound := h.registry.Unbind(sessionID)
	if !bound {
		return
	}

	cleanupCtx := context.WithoutCancel(ctx)
	if err := h.presence.MarkOffline(cleanupCtx, driverID); err != nil {
		h.logger.Error(cleanupCtx, "disconnect_offline_failed", "Failed to mark driver offline on disconnect", err, map[string]any{
			"driver_id": driverID,
		})
	}
}

// newSessionID mints a transport session identifier, stable for the
// connection's lifetime.
func newSessionID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("sess_%d", time.Now().UnixNano())
	}
	return "sess_" + hex.EncodeToString(b)
}
