package domain

import (
	"math"
	"time"
)

// Coordinates is a WGS84 position reported by a driver client.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate rejects non-finite and out-of-range coordinate pairs.
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) ||
		math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return ErrInvalidCoordinates
	}
	if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// DriverRecord is the durable per-driver row owned by the position store.
// Exactly one record exists per driver ID; absence means the driver has
// never checked in. Coordinates stay nil until the first position update.
type DriverRecord struct {
	DriverID    string       `json:"driverId"`
	Status      Status       `json:"status"`
	LastSeen    time.Time    `json:"lastSeen"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Fields is a partial write against a DriverRecord. Nil members are left
// untouched by the store (merge semantics); last_seen is always refreshed
// at write time.
type Fields struct {
	Status      *Status
	Coordinates *Coordinates
}
