package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/domain"
)

// PositionStore persists driver status/position records using pgx and plain SQL.
// All writes are single statements, so each call is atomic per record.
type PositionStore struct {
	db *pgxpool.Pool
}

var (
	_ domain.PositionStore = (*PositionStore)(nil)
	_ domain.FleetReader   = (*PositionStore)(nil)
)

func NewPositionStore(db *pgxpool.Pool) *PositionStore {
	return &PositionStore{db: db}
}

// Upsert creates the driver row if absent, otherwise merges the given fields.
// NULL parameters leave existing columns untouched; last_seen is always
// refreshed. A record created by a location-only write defaults to offline:
// status is controlled by explicit check-ins, never implied by a position.
func (s *PositionStore) Upsert(ctx context.Context, driverID string, fields domain.Fields) (domain.DriverRecord, error) {
	if driverID == "" {
		return domain.DriverRecord{}, domain.ErrEmptyDriverID
	}

	status, lat, lng := splitFields(fields)

	row := s.db.QueryRow(ctx, `
		INSERT INTO drivers (driver_id, status, last_seen, latitude, longitude)
		VALUES ($1, COALESCE($2, 'offline'), now(), $3, $4)
		ON CONFLICT (driver_id) DO UPDATE SET
			status    = COALESCE($2, drivers.status),
			latitude  = COALESCE($3, drivers.latitude),
			longitude = COALESCE($4, drivers.longitude),
			last_seen = now()
		RETURNING driver_id, status, last_seen, latitude, longitude
	`, driverID, status, lat, lng)

	rec, err := scanRecord(row)
	if err != nil {
		return domain.DriverRecord{}, fmt.Errorf("upsert driver %s: %w", driverID, err)
	}
	return rec, nil
}

// UpdateIfExists merges fields into an existing row and returns the result.
// Returns (nil, nil) when no row exists for driverID.
func (s *PositionStore) UpdateIfExists(ctx context.Context, driverID string, fields domain.Fields) (*domain.DriverRecord, error) {
	if driverID == "" {
		return nil, domain.ErrEmptyDriverID
	}

	status, lat, lng := splitFields(fields)

	row := s.db.QueryRow(ctx, `
		UPDATE drivers SET
			status    = COALESCE($2, status),
			latitude  = COALESCE($3, latitude),
			longitude = COALESCE($4, longitude),
			last_seen = now()
		WHERE driver_id = $1
		RETURNING driver_id, status, last_seen, latitude, longitude
	`, driverID, status, lat, lng)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update driver %s: %w", driverID, err)
	}
	return &rec, nil
}

// GetDriver returns one driver record, or nil when unknown.
func (s *PositionStore) GetDriver(ctx context.Context, driverID string) (*domain.DriverRecord, error) {
	row := s.db.QueryRow(ctx, `
		SELECT driver_id, status, last_seen, latitude, longitude
		FROM drivers
		WHERE driver_id = $1
	`, driverID)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get driver %s: %w", driverID, err)
	}
	return &rec, nil
}

// ListDrivers returns the current fleet snapshot, most recently seen first.
func (s *PositionStore) ListDrivers(ctx context.Context) ([]domain.DriverRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT driver_id, status, last_seen, latitude, longitude
		FROM drivers
		ORDER BY last_seen DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	defer rows.Close()

	var out []domain.DriverRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list drivers: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}

	return out, nil
}

// splitFields maps a partial update onto nullable SQL parameters.
func splitFields(fields domain.Fields) (status *string, lat, lng *float64) {
	if fields.Status != nil {
		s := fields.Status.String()
		status = &s
	}
	if fields.Coordinates != nil {
		lat = &fields.Coordinates.Latitude
		lng = &fields.Coordinates.Longitude
	}
	return status, lat, lng
}

// scanRecord reads one driver row; latitude/longitude are nullable until the
// first position update arrives. The status column goes through ParseStatus
// so an unexpected value surfaces as an error instead of flowing through.
func scanRecord(row pgx.Row) (domain.DriverRecord, error) {
	var (
		rec        domain.DriverRecord
		statusText string
		lat, lng   *float64
	)
	if err := row.Scan(&rec.DriverID, &statusText, &rec.LastSeen, &lat, &lng); err != nil {
		return domain.DriverRecord{}, err
	}

	status, err := domain.ParseStatus(statusText)
	if err != nil {
		return domain.DriverRecord{}, fmt.Errorf("driver %s: status %q: %w", rec.DriverID, statusText, err)
	}
	rec.Status = status

	if lat != nil && lng != nil {
		rec.Coordinates = &domain.Coordinates{Latitude: *lat, Longitude: *lng}
	}

	return rec, nil
}
