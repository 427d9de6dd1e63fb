package registry

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry maps user ids to their set of live connections. A user may hold
// any number of simultaneous connections (tabs, devices); presence is derived
// from the count, never stored.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*Connection // userID -> connID -> conn
	byConn map[string]*Connection
	logger zerolog.Logger
}

// New creates an empty connection registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		byUser: make(map[string]map[string]*Connection),
		byConn: make(map[string]*Connection),
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Register adds a connection under its user id and reports whether it is the
// user's first live connection. Idempotent per connection id.
func (r *Registry) Register(c *Connection) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[c.ID]; ok {
		return false
	}
	conns := r.byUser[c.UserID]
	if conns == nil {
		conns = make(map[string]*Connection)
		r.byUser[c.UserID] = conns
		first = true
	}
	conns[c.ID] = c
	r.byConn[c.ID] = c

	r.logger.Info().
		Str("conn_id", c.ID).
		Str("user_id", c.UserID).
		Int("user_conns", len(conns)).
		Msg("connection registered")
	return first
}

// Unregister removes a connection and reports whether it was the user's last
// live connection. Removing an unknown connection is a no-op.
func (r *Registry) Unregister(c *Connection) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[c.ID]; !ok {
		return false
	}
	delete(r.byConn, c.ID)

	conns := r.byUser[c.UserID]
	delete(conns, c.ID)
	if len(conns) == 0 {
		delete(r.byUser, c.UserID)
		last = true
	}

	r.logger.Info().
		Str("conn_id", c.ID).
		Str("user_id", c.UserID).
		Bool("last", last).
		Msg("connection unregistered")
	return last
}

// ConnectionsFor returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsFor(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	return conns
}

// IsOnline reports whether the user holds at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Each calls fn for every live connection, iterating over a snapshot so fn
// may register or unregister connections.
func (r *Registry) Each(fn func(*Connection)) {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.byConn))
	for _, c := range r.byConn {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		fn(c)
	}
}

// OnlineUsers returns the ids of all users with at least one connection.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		users = append(users, id)
	}
	return users
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
