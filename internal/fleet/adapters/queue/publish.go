package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/common/rabbitmq"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/domain"
)

// Ensure FleetPublisher implements the domain.EventPublisher interface.
var _ domain.EventPublisher = (*FleetPublisher)(nil)

// FleetPublisher exports fleet events to the RabbitMQ topic exchange for
// downstream consumers (analytics, trip services). It never participates in
// the session broadcast path; failures here are the caller's to log and ignore.
type FleetPublisher struct {
	client *rabbitmq.Client
}

func NewFleetPublisher(client *rabbitmq.Client) *FleetPublisher {
	return &FleetPublisher{client: client}
}

type statusEvent struct {
	Type      string    `json:"type"` // "driver_status"
	DriverID  string    `json:"driver_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type locationEvent struct {
	Type        string             `json:"type"` // "driver_location"
	DriverID    string             `json:"driver_id"`
	Coordinates domain.Coordinates `json:"coordinates"`
	Timestamp   time.Time          `json:"timestamp"`
}

// PublishStatus publishes a presence transition under driver.status.<id>.
func (p *FleetPublisher) PublishStatus(ctx context.Context, driverID string, status domain.Status, at time.Time) error {
	body, err := json.Marshal(statusEvent{
		Type:      "driver_status",
		DriverID:  driverID,
		Status:    status.String(),
		Timestamp: at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}

	return p.client.PublishMessage(p.client.Exchange(), "driver.status."+driverID, body)
}

// PublishLocation publishes a position report under driver.location.<id>.
func (p *FleetPublisher) PublishLocation(ctx context.Context, driverID string, coords domain.Coordinates, at time.Time) error {
	body, err := json.Marshal(locationEvent{
		Type:        "driver_location",
		DriverID:    driverID,
		Coordinates: coords,
		Timestamp:   at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal location event: %w", err)
	}

	return p.client.PublishMessage(p.client.Exchange(), "driver.location."+driverID, body)
}
