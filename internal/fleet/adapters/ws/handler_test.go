package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/common/logger"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/app"
	"github.com/Nashonlyy-dev/fleet-tracker-backend/internal/fleet/domain"
)

// memStore is an in-memory PositionStore for end-to-end session tests.
type memStore struct {
	mu      sync.Mutex
	records map[string]domain.DriverRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]domain.DriverRecord)}
}

func (s *memStore) Upsert(_ context.Context, driverID string, fields domain.Fields) (domain.DriverRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[driverID]
	if !ok {
		rec = domain.DriverRecord{DriverID: driverID, Status: domain.StatusOffline}
	}
	s.apply(&rec, fields)
	s.records[driverID] = rec
	return rec, nil
}

func (s *memStore) UpdateIfExists(_ context.Context, driverID string, fields domain.Fields) (*domain.DriverRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[driverID]
	if !ok {
		return nil, nil
	}
	s.apply(&rec, fields)
	s.records[driverID] = rec
	out := rec
	return &out, nil
}

func (s *memStore) apply(rec *domain.DriverRecord, fields domain.Fields) {
	if fields.Status != nil {
		rec.Status = *fields.Status
	}
	if fields.Coordinates != nil {
		c := *fields.Coordinates
		rec.Coordinates = &c
	}
	rec.LastSeen = time.Now().UTC()
}

func (s *memStore) status(driverID string) (domain.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[driverID]
	if !ok {
		return "", false
	}
	return rec.Status, true
}

func newTestServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()
	log := logger.New("test")
	store := newMemStore()
	hub := NewHub(log)
	registry := app.NewSessionRegistry()
	presence := app.NewPresence(log, store, hub, nil)
	relay := app.NewLocationRelay(log, store, hub, nil, nil)
	h := NewHandler(log, hub, registry, presence, relay)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)
	return srv, store
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	msg, err := json.Marshal(map[string]any{"type": event, "data": data})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("invalid frame %q: %v", raw, err)
	}
	return f
}

func readStatusUpdate(t *testing.T, conn *websocket.Conn) (driverID, status string) {
	t.Helper()
	f := readFrame(t, conn)
	if f.Type != "status-update" {
		t.Fatalf("frame type = %q, want status-update", f.Type)
	}
	var p struct {
		DriverID string `json:"driverId"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(f.Data, &p); err != nil {
		t.Fatalf("status-update payload: %v", err)
	}
	return p.DriverID, p.Status
}

func TestCheckInBroadcastsToAllSessions(t *testing.T) {
	srv, store := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	send(t, a, "driver-active", map[string]string{"driverId": "driver-1"})

	// the reporting session receives its own status update too
	for _, conn := range []*websocket.Conn{a, b} {
		driverID, status := readStatusUpdate(t, conn)
		if driverID != "driver-1" || status != "online" {
			t.Errorf("status-update = (%s, %s), want (driver-1, online)", driverID, status)
		}
	}

	if got, ok := store.status("driver-1"); !ok || got != domain.StatusOnline {
		t.Errorf("stored status = (%v, %v), want online", got, ok)
	}
}

func TestLocationUpdateExcludesSender(t *testing.T) {
	srv, store := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	send(t, a, "driver-active", map[string]string{"driverId": "driver-1"})
	readStatusUpdate(t, a)
	readStatusUpdate(t, b)

	send(t, a, "update-location", map[string]any{
		"driverId":    "driver-1",
		"coordinates": map[string]float64{"latitude": 51.1694, "longitude": 71.4491},
	})

	f := readFrame(t, b)
	if f.Type != "location-received" {
		t.Fatalf("sess_b frame type = %q, want location-received", f.Type)
	}
	var p struct {
		DriverID    string `json:"driverId"`
		Coordinates struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"coordinates"`
	}
	if err := json.Unmarshal(f.Data, &p); err != nil {
		t.Fatalf("location payload: %v", err)
	}
	if p.DriverID != "driver-1" || p.Coordinates.Latitude != 51.1694 || p.Coordinates.Longitude != 71.4491 {
		t.Errorf("location payload = %+v", p)
	}

	// prove the sender was skipped: the next frame A sees is a later
	// broadcast, not the location it reported
	send(t, b, "driver-active", map[string]string{"driverId": "driver-2"})
	driverID, _ := readStatusUpdate(t, a)
	if driverID != "driver-2" {
		t.Errorf("sess_a next frame was for %q, want driver-2", driverID)
	}

	if got, ok := store.status("driver-1"); !ok || got != domain.StatusOnline {
		t.Errorf("location update changed status: got (%v, %v), want online", got, ok)
	}
}

func TestDisconnectMarksBoundDriverOffline(t *testing.T) {
	srv, store := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	send(t, a, "driver-active", map[string]string{"driverId": "driver-1"})
	readStatusUpdate(t, a)
	readStatusUpdate(t, b)

	a.Close()

	driverID, status := readStatusUpdate(t, b)
	if driverID != "driver-1" || status != "offline" {
		t.Errorf("disconnect broadcast = (%s, %s), want (driver-1, offline)", driverID, status)
	}
	if got, _ := store.status("driver-1"); got != domain.StatusOffline {
		t.Errorf("stored status = %q, want offline", got)
	}
}

func TestUnboundSessionDisconnectIsSilent(t *testing.T) {
	srv, store := newTestServer(t)
	observer := dial(t, srv)
	b := dial(t, srv)

	// observer never checks in, then leaves
	observer.Close()

	// a later valid check-in must be the first thing B sees
	send(t, b, "driver-active", map[string]string{"driverId": "driver-9"})
	driverID, status := readStatusUpdate(t, b)
	if driverID != "driver-9" || status != "online" {
		t.Errorf("first frame after observer left = (%s, %s), want (driver-9, online)", driverID, status)
	}

	if _, ok := store.status(""); ok {
		t.Error("observer disconnect wrote a record")
	}
}

func TestMalformedFramesAreDroppedSilently(t *testing.T) {
	srv, store := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	// none of these may produce a write or a broadcast
	_ = a.WriteMessage(websocket.TextMessage, []byte("not json"))
	send(t, a, "driver-active", map[string]string{"driverId": ""})
	send(t, a, "teleport", map[string]string{"driverId": "driver-1"})
	send(t, a, "update-location", map[string]any{
		"driverId":    "driver-1",
		"coordinates": map[string]float64{"latitude": 120, "longitude": 0},
	})

	// the session survives all of it; a valid check-in still works
	send(t, a, "driver-active", map[string]string{"driverId": "driver-1"})

	driverID, status := readStatusUpdate(t, b)
	if driverID != "driver-1" || status != "online" {
		t.Errorf("first broadcast = (%s, %s), want (driver-1, online)", driverID, status)
	}
	rec, ok := store.status("driver-1")
	if !ok || rec != domain.StatusOnline {
		t.Errorf("stored status = (%v, %v), want online", rec, ok)
	}
}

func TestWhitespaceCheckInDoesNotBindSession(t *testing.T) {
	srv, store := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	// the garbage check-in must not claim the session's one binding
	send(t, a, "driver-active", map[string]string{"driverId": "   "})
	send(t, a, "driver-active", map[string]string{"driverId": "driver-1"})

	driverID, status := readStatusUpdate(t, b)
	if driverID != "driver-1" || status != "online" {
		t.Fatalf("broadcast = (%s, %s), want (driver-1, online)", driverID, status)
	}
	readStatusUpdate(t, a)

	// the real binding must drive the disconnect transition
	a.Close()

	driverID, status = readStatusUpdate(t, b)
	if driverID != "driver-1" || status != "offline" {
		t.Errorf("disconnect broadcast = (%s, %s), want (driver-1, offline)", driverID, status)
	}
	if got, _ := store.status("driver-1"); got != domain.StatusOffline {
		t.Errorf("stored status = %q, want offline", got)
	}
	if _, ok := store.status("   "); ok {
		t.Error("whitespace driver ID reached the store")
	}
}

func TestDisconnectReleasesSessionGoroutines(t *testing.T) {
	srv, _ := newTestServer(t)

	before := runtime.NumGoroutine()

	const sessions = 30
	for i := 0; i < sessions; i++ {
		conn := dial(t, srv)
		send(t, conn, "driver-active", map[string]string{"driverId": "driver-1"})
		readStatusUpdate(t, conn)
		conn.Close()
	}

	// reader, writer, and keepalive goroutines must all exit on disconnect
	deadline := time.Now().Add(3 * time.Second)
	for {
		if n := runtime.NumGoroutine(); n <= before+5 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("goroutines: before=%d after=%d; session goroutines outlived their connections",
				before, runtime.NumGoroutine())
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestRepeatedCheckInIsIdempotent(t *testing.T) {
	srv, store := newTestServer(t)
	a := dial(t, srv)

	for i := 0; i < 2; i++ {
		send(t, a, "driver-active", map[string]string{"driverId": "driver-1"})
		driverID, status := readStatusUpdate(t, a)
		if driverID != "driver-1" || status != "online" {
			t.Fatalf("check-in #%d broadcast = (%s, %s)", i+1, driverID, status)
		}
	}

	if got, _ := store.status("driver-1"); got != domain.StatusOnline {
		t.Errorf("stored status = %q, want online", got)
	}
}
