package domain

import (
	"context"
	"time"
)

// PositionStore is the durable per-driver status/position store.
// Both calls must be atomic per record (no interleaved partial writes).
type PositionStore interface {
	// Upsert creates the record if absent, otherwise merges the given
	// fields into it. last_seen is refreshed either way.
	Upsert(ctx context.Context, driverID string, fields Fields) (DriverRecord, error)

	// UpdateIfExists merges fields into an existing record and returns it.
	// Returns (nil, nil) when no record exists for driverID.
	UpdateIfExists(ctx context.Context, driverID string, fields Fields) (*DriverRecord, error)
}

// FleetReader serves current-state reads for the HTTP API.
type FleetReader interface {
	GetDriver(ctx context.Context, driverID string) (*DriverRecord, error)
	ListDrivers(ctx context.Context) ([]DriverRecord, error)
}

// Broadcaster fans an event out to connected sessions, best effort.
// A slow or broken session must never block delivery to the others.
type Broadcaster interface {
	BroadcastAll(event string, payload any)
	BroadcastExcept(event string, payload any, excludedSessionID string)
}

// EventPublisher exports fleet events to a message broker for downstream
// consumers. Implementations are best-effort; callers log and move on.
type EventPublisher interface {
	PublishStatus(ctx context.Context, driverID string, status Status, at time.Time) error
	PublishLocation(ctx context.Context, driverID string, coords Coordinates, at time.Time) error
}

// LocationCache holds the latest known coordinates per driver with a TTL.
type LocationCache interface {
	SetLastPosition(ctx context.Context, driverID string, coords Coordinates, at time.Time) error
	GetLastPosition(ctx context.Context, driverID string) (*Coordinates, error)
}
