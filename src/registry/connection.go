package registry

import (
	"sync"
	"time"

	"github.com/roomlink/realtime/src/types"
)

// Connection wraps one live transport session for one client device/tab.
type Connection struct {
	ID     string
	UserID string

	conn        types.Conn
	Send        chan types.ServerEvent
	connectedAt time.Time

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewConnection creates a connection wrapper around a transport session.
func NewConnection(id, userID string, conn types.Conn, sendBuffer int) *Connection {
	return &Connection{
		ID:          id,
		UserID:      userID,
		conn:        conn,
		Send:        make(chan types.ServerEvent, sendBuffer),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// ConnectedAt returns when the connection was established.
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// Deliver enqueues an event for this connection. It reports false when the
// connection is closed or its send buffer is full; either way the caller
// moves on, a slow or departing subscriber never blocks a broadcast.
func (c *Connection) Deliver(ev types.ServerEvent) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- ev:
		return true
	default:
		return false
	}
}

// WritePump writes queued events to the transport. Call in a goroutine.
func (c *Connection) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case ev, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close stops the write pump and marks the connection dead. Safe to call
// more than once; only the first call has an effect.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	close(c.Send)
	c.conn.Close()
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
