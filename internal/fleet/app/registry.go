package app

import "sync"

// SessionRegistry maps live transport sessions to an optional driver identity.
// Purely in-memory and scoped to this process's connection set; the registry
// never outlives a restart and holds no references to connections themselves.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]string // sessionID -> bound driverID ("" while unbound)
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Add registers a newly connected, unbound session.
func (r *SessionRegistry) Add(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		r.sessions[sessionID] = ""
	}
}

// Bind records the session's driver identity. A no-op when the session is
// unknown (transport already closed) or already bound: a session's binding,
// once set, never changes for its lifetime.
func (r *SessionRegistry) Bind(sessionID, driverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bound, ok := r.sessions[sessionID]
	if !ok || bound != "" {
		return
	}
	r.sessions[sessionID] = driverID
}

// Unbind removes the session and returns its prior binding. The second
// return is false for sessions that never bound (pure observers) and for
// unknown sessions.
func (r *SessionRegistry) Unbind(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	driverID, ok := r.sessions[sessionID]
	if !ok {
		return "", false
	}
	delete(r.sessions, sessionID)
	return driverID, driverID != ""
}

// BoundDriver returns the driver bound to a session, if any.
func (r *SessionRegistry) BoundDriver(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	driverID, ok := r.sessions[sessionID]
	return driverID, ok && driverID != ""
}
