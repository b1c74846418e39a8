package app

import (
	"context"
	"sync"
	"time"

	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/domain"
)

// fakeStore is an in-memory PositionStore with merge semantics matching the
// SQL adapter: nil fields leave columns untouched, last_seen always advances.
type fakeStore struct {
	mu          sync.Mutex
	records     map[string]domain.DriverRecord
	upsertCalls int
	updateCalls int
	failWith    error // when set, every call fails without writing
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]domain.DriverRecord)}
}

func (s *fakeStore) Upsert(ctx context.Context, driverID string, fields domain.Fields) (domain.DriverRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++

	if s.failWith != nil {
		return domain.DriverRecord{}, s.failWith
	}

	rec, ok := s.records[driverID]
	if !ok {
		rec = domain.DriverRecord{DriverID: driverID, Status: domain.StatusOffline}
	}
	applyFields(&rec, fields)
	s.records[driverID] = rec
	return rec, nil
}

func (s *fakeStore) UpdateIfExists(ctx context.Context, driverID string, fields domain.Fields) (*domain.DriverRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++

	if s.failWith != nil {
		return nil, s.failWith
	}

	rec, ok := s.records[driverID]
	if !ok {
		return nil, nil
	}
	applyFields(&rec, fields)
	s.records[driverID] = rec
	out := rec
	return &out, nil
}

func (s *fakeStore) record(driverID string) (domain.DriverRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[driverID]
	return rec, ok
}

func applyFields(rec *domain.DriverRecord, fields domain.Fields) {
	if fields.Status != nil {
		rec.Status = *fields.Status
	}
	if fields.Coordinates != nil {
		c := *fields.Coordinates
		rec.Coordinates = &c
	}
	rec.LastSeen = time.Now().UTC()
}

// fakeHub records broadcast submissions in order.
type broadcastCall struct {
	event    string
	payload  any
	excluded string
}

type fakeHub struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (h *fakeHub) BroadcastAll(event string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, broadcastCall{event: event, payload: payload})
}

func (h *fakeHub) BroadcastExcept(event string, payload any, excludedSessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, broadcastCall{event: event, payload: payload, excluded: excludedSessionID})
}

func (h *fakeHub) broadcasts() []broadcastCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]broadcastCall, len(h.calls))
	copy(out, h.calls)
	return out
}

// fakeCache records the latest write per driver.
type fakeCache struct {
	mu        sync.Mutex
	positions map[string]domain.Coordinates
	failWith  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{positions: make(map[string]domain.Coordinates)}
}

func (c *fakeCache) SetLastPosition(ctx context.Context, driverID string, coords domain.Coordinates, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return c.failWith
	}
	c.positions[driverID] = coords
	return nil
}

func (c *fakeCache) GetLastPosition(ctx context.Context, driverID string) (*domain.Coordinates, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	coords, ok := c.positions[driverID]
	if !ok {
		return nil, nil
	}
	return &coords, nil
}

// fakePublisher records exported events.
type fakePublisher struct {
	mu            sync.Mutex
	statusEvents  []string // "driverID:status"
	locationCalls int
	failWith      error
}

func (p *fakePublisher) PublishStatus(ctx context.Context, driverID string, status domain.Status, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.statusEvents = append(p.statusEvents, driverID+":"+status.String())
	return nil
}

func (p *fakePublisher) PublishLocation(ctx context.Context, driverID string, coords domain.Coordinates, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.locationCalls++
	return nil
}
