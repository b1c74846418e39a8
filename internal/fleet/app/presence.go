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

// DefaultStoreTimeout bounds every position-store call so a hung store can
// stall at most one session's current event, never disconnect cleanup.
const DefaultStoreTimeout = 5 * time.Second

// Presence drives driver online/offline transitions: persist first, then
// broadcast. A failed store write suppresses the broadcast for that event so
// unsaved state is never announced as canonical; the session stays alive.
type Presence struct {
	logger       *logger.Logger
	store        domain.PositionStore
	hub          domain.Broadcaster
	events       domain.EventPublisher // optional; nil disables event export
	storeTimeout time.Duration
}

func NewPresence(log *logger.Logger, store domain.PositionStore, hub domain.Broadcaster, events domain.EventPublisher) *Presence {
	return &Presence{
		logger:       log,
		store:        store,
		hub:          hub,
		events:       events,
		storeTimeout: DefaultStoreTimeout,
	}
}

// MarkOnline upserts {status: online, last_seen: now} for the driver and, on
// success, broadcasts a status-update to every session, the reporting one
// included. An empty driver ID is rejected before any side effect.
func (p *Presence) MarkOnline(ctx context.Context, driverID string) error {
	if strings.TrimSpace(driverID) == "" {
		return domain.ErrEmptyDriverID
	}
	ctx = p.logger.WithDriverID(ctx, driverID)

	status := domain.StatusOnline
	rec, err := p.upsert(ctx, driverID, domain.Fields{Status: &status})
	if err != nil {
		p.logger.Error(ctx, "mark_online_store_failed", "Failed to persist online status; broadcast skipped", err, nil)
		return fmt.Errorf("mark online: %w", err)
	}

	p.hub.BroadcastAll(contracts.EventStatusUpdate, contracts.StatusUpdate{
		DriverID: driverID,
		Status:   status.String(),
	})
	p.logger.Info(ctx, "driver_online", "Driver checked in", nil)

	p.exportStatus(ctx, driverID, status, rec.LastSeen)
	return nil
}

// MarkOffline flips an existing record to offline and broadcasts on success.
// Update-only: an unknown driver produces no record and no broadcast. Store
// errors are logged and swallowed by the caller's disconnect sequence.
func (p *Presence) MarkOffline(ctx context.Context, driverID string) error {
	if strings.TrimSpace(driverID) == "" {
		return domain.ErrEmptyDriverID
	}
	ctx = p.logger.WithDriverID(ctx, driverID)

	status := domain.StatusOffline
	sctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	rec, err := p.store.UpdateIfExists(sctx, driverID, domain.Fields{Status: &status})
	if err != nil {
		p.logger.Error(ctx, "mark_offline_store_failed", "Failed to persist offline status; broadcast skipped", err, nil)
		return fmt.Errorf("mark offline: %w", err)
	}
	if rec == nil {
		// bound session for a driver the store never saw; nothing to announce
		p.logger.Debug(ctx, "mark_offline_unknown_driver", "No record for disconnecting driver", nil)
		return nil
	}

	p.hub.BroadcastAll(contracts.EventStatusUpdate, contracts.StatusUpdate{
		DriverID: driverID,
		Status:   status.String(),
	})
	p.logger.Info(ctx, "driver_offline", "Driver went offline", nil)

	p.exportStatus(ctx, driverID, status, rec.LastSeen)
	return nil
}

func (p *Presence) upsert(ctx context.Context, driverID string, fields domain.Fields) (domain.DriverRecord, error) {
	sctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()
	return p.store.Upsert(sctx, driverID, fields)
}

// exportStatus is best effort: broker trouble must never affect the relay path.
func (p *Presence) exportStatus(ctx context.Context, driverID string, status domain.Status, at time.Time) {
	if p.events == nil {
		return
	}
	if err := p.events.PublishStatus(ctx, driverID, status, at); err != nil {
		p.logger.Error(ctx, "status_event_publish_failed", "Failed to export status event", err, map[string]any{
			"status": status.String(),
		})
	}
}
