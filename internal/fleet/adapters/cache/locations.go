package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/domain"
)

const locationKeyPrefix = "fleet:location:"

// Ensure LocationCache implements the domain.LocationCache interface.
var _ domain.LocationCache = (*LocationCache)(nil)

// LocationCache keeps the latest known coordinates per driver in Redis with a
// TTL, so dispatcher reads do not have to hit Postgres for hot drivers.
// Entries are written through on every accepted position update and expire on
// their own once a driver stops reporting.
type LocationCache struct {
	client *redis.Client
	ttl    time.Duration
}

type cachedPosition struct {
	Coordinates domain.Coordinates `json:"coordinates"`
	RecordedAt  time.Time          `json:"recorded_at"`
}

func NewLocationCache(client *redis.Client, ttl time.Duration) *LocationCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LocationCache{client: client, ttl: ttl}
}

// SetLastPosition stores the latest coordinates for a driver.
func (c *LocationCache) SetLastPosition(ctx context.Context, driverID string, coords domain.Coordinates, at time.Time) error {
	val, err := json.Marshal(cachedPosition{Coordinates: coords, RecordedAt: at.UTC()})
	if err != nil {
		return fmt.Errorf("marshal cached position: %w", err)
	}

	return c.client.Set(ctx, locationKeyPrefix+driverID, val, c.ttl).Err()
}

// GetLastPosition returns the cached coordinates, or nil on a miss
// (a miss is not an error).
func (c *LocationCache) GetLastPosition(ctx context.Context, driverID string) (*domain.Coordinates, error) {
	val, err := c.client.Get(ctx, locationKeyPrefix+driverID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var pos cachedPosition
	if err := json.Unmarshal([]byte(val), &pos); err != nil {
		return nil, fmt.Errorf("unmarshal cached position: %w", err)
	}

	return &pos.Coordinates, nil
}
