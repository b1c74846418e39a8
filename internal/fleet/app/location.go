package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/common/logger"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/contracts"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/domain"
)

// LocationRelay validates and forwards position updates: persist coordinates
// and last_seen without touching status, then broadcast to every session
// except the reporting one (senders already know their own position).
type LocationRelay struct {
	logger       *logger.Logger
	store        domain.PositionStore
	hub          domain.Broadcaster
	cache        domain.LocationCache  // optional; nil disables the hot cache
	events       domain.EventPublisher // optional; nil disables event export
	storeTimeout time.Duration
}

func NewLocationRelay(log *logger.Logger, store domain.PositionStore, hub domain.Broadcaster, cache domain.LocationCache, events domain.EventPublisher) *LocationRelay {
	return &LocationRelay{
		logger:       log,
		store:        store,
		hub:          hub,
		cache:        cache,
		events:       events,
		storeTimeout: DefaultStoreTimeout,
	}
}

// Relay applies one position report from the given session. Malformed input
// (empty driver ID, non-finite or out-of-range coordinates) is dropped with a
// validation error and produces no side effect; the relay does not require a
// prior binding. A store failure skips the broadcast for this update: a stale
// position is preferable to announcing unsaved data as canonical.
func (r *LocationRelay) Relay(ctx context.Context, sessionID, driverID string, coords domain.Coordinates) error {
	if strings.TrimSpace(driverID) == "" {
		return domain.ErrEmptyDriverID
	}
	if err := coords.Validate(); err != nil {
		return err
	}
	ctx = r.logger.WithDriverID(ctx, driverID)

	sctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	rec, err := r.store.Upsert(sctx, driverID, domain.Fields{Coordinates: &coords})
	cancel()
	if err != nil {
		r.logger.Error(ctx, "location_store_failed", "Failed to persist position; broadcast skipped", err, map[string]any{
			"latitude":  coords.Latitude,
			"longitude": coords.Longitude,
		})
		return fmt.Errorf("relay location: %w", err)
	}

	r.cachePosition(ctx, driverID, coords, rec.LastSeen)

	r.hub.BroadcastExcept(contracts.EventLocationReceived, contracts.LocationReceived{
		DriverID:    driverID,
		Coordinates: coords,
	}, sessionID)

	r.exportLocation(ctx, driverID, coords, rec.LastSeen)
	return nil
}

// cachePosition is write-through and best effort.
func (r *LocationRelay) cachePosition(ctx context.Context, driverID string, coords domain.Coordinates, at time.Time) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SetLastPosition(ctx, driverID, coords, at); err != nil {
		r.logger.Error(ctx, "location_cache_failed", "Failed to cache last position", err, nil)
	}
}

func (r *LocationRelay) exportLocation(ctx context.Context, driverID string, coords domain.Coordinates, at time.Time) {
	if r.events == nil {
		return
	}
	if err := r.events.PublishLocation(ctx, driverID, coords, at); err != nil {
		r.logger.Error(ctx, "location_event_publish_failed", "Failed to export location event", err, nil)
	}
}
