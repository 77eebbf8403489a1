package mcp

import "sync"

// SessionRegistry maps run and debug-session IDs to the MCP client
// session that owns them. Populated when a client starts a run or debug
// session, so event notifications reach the right client.
type SessionRegistry struct {
	mu     sync.RWMutex
	owners map[string]string // ownerID (run/session) → MCP session ID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{owners: make(map[string]string)}
}

// Register associates an owner ID with an MCP session ID. A repeated
// registration overwrites the previous mapping (reconnect).
func (r *SessionRegistry) Register(ownerID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[ownerID] = sessionID
}

// SessionFor returns the MCP session ID for the given owner, if connected.
func (r *SessionRegistry) SessionFor(ownerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.owners[ownerID]
	return sid, ok
}

// Remove deletes all owner mappings for the given MCP session ID.
// Called when a client disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for owner, sid := range r.owners {
		if sid == sessionID {
			delete(r.owners, owner)
		}
	}
}
