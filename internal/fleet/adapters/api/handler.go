package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/common/logger"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/domain"
)

// SessionCounter exposes the live session count (implemented by the ws hub).
type SessionCounter interface {
	SessionCount() int
}

// Pinger verifies store connectivity (implemented by pgxpool.Pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the current-state HTTP API: health, fleet snapshot, and
// per-driver location (cache-first).
type Handler struct {
	logger   *logger.Logger
	reader   domain.FleetReader
	cache    domain.LocationCache // optional
	sessions SessionCounter
	db       Pinger
}

func NewHandler(log *logger.Logger, reader domain.FleetReader, cache domain.LocationCache, sessions SessionCounter, db Pinger) *Handler {
	return &Handler{
		logger:   log,
		reader:   reader,
		cache:    cache,
		sessions: sessions,
		db:       db,
	}
}

// RegisterRoutes attaches the API endpoints to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /fleet/drivers", h.handleListDrivers)
	mux.HandleFunc("GET /fleet/drivers/{id}/location", h.handleDriverLocation)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code, dbState := "ok", http.StatusOK, "ok"
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error(ctx, "health_db_ping_failed", "Store unreachable during health check", err, nil)
		status, code, dbState = "degraded", http.StatusServiceUnavailable, "unreachable"
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"database":  dbState,
		"sessions":  h.sessions.SessionCount(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	drivers, err := h.reader.ListDrivers(ctx)
	if err != nil {
		h.logger.Error(ctx, "fleet_snapshot_failed", "Failed to read fleet snapshot", err, nil)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if drivers == nil {
		drivers = []domain.DriverRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"drivers": drivers,
		"count":   len(drivers),
	})
}

func (h *Handler) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	driverID := strings.TrimSpace(r.PathValue("id"))
	if driverID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing driver id")
		return
	}
	ctx = h.logger.WithDriverID(ctx, driverID)

	// hot path: last position cache
	if h.cache != nil {
		coords, err := h.cache.GetLastPosition(ctx, driverID)
		if err != nil {
			h.logger.Error(ctx, "location_cache_read_failed", "Cache read failed; falling back to store", err, nil)
		} else if coords != nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"driverId":    driverID,
				"coordinates": coords,
				"source":      "cache",
			})
			return
		}
	}

	rec, err := h.reader.GetDriver(ctx, driverID)
	if err != nil {
		h.logger.Error(ctx, "driver_read_failed", "Failed to read driver record", err, nil)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if rec == nil || rec.Coordinates == nil {
		writeJSONError(w, http.StatusNotFound, "no known location for driver")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"driverId":    rec.DriverID,
		"coordinates": rec.Coordinates,
		"lastSeen":    rec.LastSeen,
		"source":      "store",
	})
}
