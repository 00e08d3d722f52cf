package session

import "sync"

// Handle is what the registry stores per principal: enough to push an
// event to the connection and to tear it down when displaced.
type Handle interface {
	// Send delivers one event frame to the connection. Implementations
	// must be safe for concurrent use.
	Send(eventType string, payload any) error

	// Close terminates the underlying connection.
	Close() error

	// ID distinguishes two connections of the same principal.
	ID() string
}

// Registry maps principal ids to their single live connection handle.
// A second attach for the same principal atomically displaces the
// first: the old handle is returned to the caller for closing, so a
// stale connection can never receive events meant for the new one.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Handle)}
}

// Attach installs h as the principal's connection and returns the
// displaced handle, if any.
func (reg *Registry) Attach(principalID string, h Handle) (displaced Handle) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	displaced = reg.conns[principalID]
	reg.conns[principalID] = h
	return displaced
}

// Detach removes the principal's handle only if it is still the given
// one. A detach from a displaced connection must not drop its successor.
func (reg *Registry) Detach(principalID string, h Handle) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	cur, ok := reg.conns[principalID]
	if !ok || cur.ID() != h.ID() {
		return false
	}
	delete(reg.conns, principalID)
	return true
}

// Lookup returns the principal's live handle, if any.
func (reg *Registry) Lookup(principalID string) (Handle, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	h, ok := reg.conns[principalID]
	return h, ok
}

// Len reports how many principals are connected.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.conns)
}
