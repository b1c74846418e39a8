package contracts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/domain"
)

// Event names carried in the envelope `type` field.
const (
	EventDriverActive     = "driver-active"
	EventUpdateLocation   = "update-location"
	EventStatusUpdate     = "status-update"
	EventLocationReceived = "location-received"
)

// Envelope is the minimal inbound frame: a named event plus raw payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// OutboundEnvelope mirrors Envelope for messages the server emits.
type OutboundEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// DriverActive is the payload of a driver check-in.
type DriverActive struct {
	DriverID string `json:"driverId"`
}

// UpdateLocation is the payload of a position report.
type UpdateLocation struct {
	DriverID    string             `json:"driverId"`
	Coordinates domain.Coordinates `json:"coordinates"`
}

// StatusUpdate is broadcast to all sessions on presence transitions.
type StatusUpdate struct {
	DriverID string `json:"driverId"`
	Status   string `json:"status"`
}

// LocationReceived is broadcast to all sessions except the reporting one.
type LocationReceived struct {
	DriverID    string             `json:"driverId"`
	Coordinates domain.Coordinates `json:"coordinates"`
}

// DecodeDriverActive parses and validates a driver-active payload.
// Untyped input never crosses this boundary: a missing, empty, or
// whitespace-only driverId is a validation error, not a zero value to be
// trusted downstream.
func DecodeDriverActive(raw json.RawMessage) (DriverActive, error) {
	var p DriverActive
	if err := json.Unmarshal(raw, &p); err != nil {
		return DriverActive{}, fmt.Errorf("decode driver-active: %w", err)
	}
	if strings.TrimSpace(p.DriverID) == "" {
		return DriverActive{}, domain.ErrEmptyDriverID
	}
	return p, nil
}

// DecodeUpdateLocation parses and validates an update-location payload.
func DecodeUpdateLocation(raw json.RawMessage) (UpdateLocation, error) {
	var p UpdateLocation
	if err := json.Unmarshal(raw, &p); err != nil {
		return UpdateLocation{}, fmt.Errorf("decode update-location: %w", err)
	}
	if strings.TrimSpace(p.DriverID) == "" {
		return UpdateLocation{}, domain.ErrEmptyDriverID
	}
	if err := p.Coordinates.Validate(); err != nil {
		return UpdateLocation{}, err
	}
	return p, nil
}
