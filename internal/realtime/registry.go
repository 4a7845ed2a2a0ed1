package realtime

import (
	"sync"
	"time"

	"github.com/mealdrop/mealdrop/internal/user"
)

// Entry is a live registration in the connection registry.
type Entry struct {
	UserID      string
	Role        user.Role
	Conn        *Conn
	ConnectedAt time.Time
}

// Registry is the single source of truth for "who is reachable right now",
// scoped to one process. One entry per user; a reconnect replaces the prior
// connection (last write wins). Entries are removed eagerly on disconnect so
// emissions never target a dead socket silently.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// Register stores (or overwrites) the entry for a user. If the user had a
// prior connection, it is returned so the caller can close it.
func (r *Registry) Register(userID string, role user.Role, conn *Conn) (replaced *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.entries[userID]; ok && prev.Conn != conn {
		replaced = prev.Conn
	}

	r.entries[userID] = &Entry{
		UserID:      userID,
		Role:        role,
		Conn:        conn,
		ConnectedAt: time.Now(),
	}
	return replaced
}

// Unregister removes the entry owning the given connection. A reconnect races
// register/unregister for the same user: if the registry already points at a
// newer connection, the stale unregister is a no-op.
func (r *Registry) Unregister(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, entry := range r.entries {
		if entry.Conn == conn {
			delete(r.entries, userID)
			return
		}
	}
}

// Get returns the live entry for a user, if any.
func (r *Registry) Get(userID string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[userID]
	return entry, ok
}

// ByRole returns all live entries for a role.
func (r *Registry) ByRole(role user.Role) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []*Entry
	for _, entry := range r.entries {
		if entry.Role == role {
			entries = append(entries, entry)
		}
	}
	return entries
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
