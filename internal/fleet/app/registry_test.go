package app

import (
	"sync"
	"testing"
)

func TestSessionRegistryBindFirstWins(t *testing.T) {
	r := NewSessionRegistry()
	r.Add("sess_a")

	r.Bind("sess_a", "driver-1")
	r.Bind("sess_a", "driver-2")

	got, ok := r.BoundDriver("sess_a")
	if !ok {
		t.Fatal("expected sess_a to be bound")
	}
	if got != "driver-1" {
		t.Errorf("binding changed after rebind attempt: got %q, want %q", got, "driver-1")
	}
}

func TestSessionRegistryBindUnknownSession(t *testing.T) {
	r := NewSessionRegistry()

	r.Bind("sess_gone", "driver-1")

	if _, ok := r.BoundDriver("sess_gone"); ok {
		t.Error("bind on unknown session must not create an entry")
	}
	if _, bound := r.Unbind("sess_gone"); bound {
		t.Error("bind on unknown session left a binding behind")
	}
}

func TestSessionRegistryUnbind(t *testing.T) {
	r := NewSessionRegistry()
	r.Add("sess_a")
	r.Add("sess_b")
	r.Bind("sess_a", "driver-1")

	driverID, bound := r.Unbind("sess_a")
	if !bound || driverID != "driver-1" {
		t.Errorf("Unbind(sess_a) = (%q, %v), want (driver-1, true)", driverID, bound)
	}

	// observer that never bound
	if _, bound := r.Unbind("sess_b"); bound {
		t.Error("Unbind on unbound session reported a binding")
	}

	// unknown session
	if _, bound := r.Unbind("sess_a"); bound {
		t.Error("second Unbind on the same session reported a binding")
	}
	if _, ok := r.BoundDriver("sess_a"); ok {
		t.Error("session still tracked after Unbind")
	}
}

func TestSessionRegistryAddIsIdempotent(t *testing.T) {
	r := NewSessionRegistry()
	r.Add("sess_a")
	r.Bind("sess_a", "driver-1")
	r.Add("sess_a")

	got, ok := r.BoundDriver("sess_a")
	if !ok || got != "driver-1" {
		t.Errorf("re-Add cleared binding: got (%q, %v)", got, ok)
	}
}

func TestSessionRegistryConcurrentAccess(t *testing.T) {
	r := NewSessionRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.Add(id)
			r.Bind(id, "driver-"+id)
			r.BoundDriver(id)
			r.Unbind(id)
		}(string(rune('a' + i%26)))
	}
	wg.Wait()

	for i := 0; i < 26; i++ {
		id := string(rune('a' + i))
		if _, ok := r.BoundDriver(id); ok {
			t.Errorf("session %q still tracked after all goroutines unbound", id)
		}
	}
}
