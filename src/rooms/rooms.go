package rooms

import (
	"sync"

	"github.com/roomlink/realtime/src/registry"
	"github.com/roomlink/realtime/src/types"
	"github.com/rs/zerolog"
)

// UserRoom names the room holding every connection of one user.
func UserRoom(userID string) string { return "user:" + userID }

// ChatRoom names the room holding the participants of one conversation.
func ChatRoom(chatID string) string { return "chat:" + chatID }

// MessageBridge relays room broadcasts to other server instances.
// Defined here to avoid a circular import with the bridge package.
type MessageBridge interface {
	Publish(room string, ev types.ServerEvent) error
	Available() bool
}

// Index maps room names to subscriber connections. Rooms hold back-references
// only; connection lifecycle belongs to the registry.
type Index struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*registry.Connection // room -> connID -> conn
	byConn map[string]map[string]bool                 // connID -> set of rooms
	bridge MessageBridge
	logger zerolog.Logger
}

// New creates an empty room membership index.
func New(logger zerolog.Logger) *Index {
	return &Index{
		rooms:  make(map[string]map[string]*registry.Connection),
		byConn: make(map[string]map[string]bool),
		logger: logger.With().Str("component", "rooms").Logger(),
	}
}

// SetBridge attaches a cross-instance bridge. When set, broadcasts are also
// published to other instances.
func (i *Index) SetBridge(b MessageBridge) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.bridge = b
}

// Join subscribes a connection to a room. Idempotent.
func (i *Index) Join(room string, c *registry.Connection) {
	i.mu.Lock()
	defer i.mu.Unlock()

	subs := i.rooms[room]
	if subs == nil {
		subs = make(map[string]*registry.Connection)
		i.rooms[room] = subs
	}
	subs[c.ID] = c

	joined := i.byConn[c.ID]
	if joined == nil {
		joined = make(map[string]bool)
		i.byConn[c.ID] = joined
	}
	joined[room] = true
}

// Leave unsubscribes a connection from a room. Idempotent.
func (i *Index) Leave(room string, c *registry.Connection) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.leaveLocked(room, c.ID)
}

// LeaveAll removes a connection from every room it belongs to. Atomic with
// respect to broadcasts: a broadcast snapshots subscribers either before or
// after the removal, never mid-removal.
func (i *Index) LeaveAll(c *registry.Connection) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for room := range i.byConn[c.ID] {
		i.leaveLocked(room, c.ID)
	}
	delete(i.byConn, c.ID)
}

func (i *Index) leaveLocked(room, connID string) {
	subs, ok := i.rooms[room]
	if !ok {
		return
	}
	delete(subs, connID)
	if len(subs) == 0 {
		delete(i.rooms, room)
	}
	if joined, ok := i.byConn[connID]; ok {
		delete(joined, room)
	}
}

// Subscribers returns a snapshot of a room's connections.
func (i *Index) Subscribers(room string) []*registry.Connection {
	i.mu.RLock()
	defer i.mu.RUnlock()

	subs := make([]*registry.Connection, 0, len(i.rooms[room]))
	for _, c := range i.rooms[room] {
		subs = append(subs, c)
	}
	return subs
}

// Broadcast sends an event to every current subscriber of a room. A room with
// no subscribers is a no-op, not an error: the recipient may simply be
// offline. Each send is independent; a closed connection or full buffer is
// logged and skipped.
func (i *Index) Broadcast(room string, ev types.ServerEvent) {
	i.publishToBridge(room, ev)
	i.deliver(room, "", ev)
}

// BroadcastExcept behaves like Broadcast but skips one local connection,
// used for read receipts the marking client already knows about.
func (i *Index) BroadcastExcept(room, exceptConnID string, ev types.ServerEvent) {
	i.publishToBridge(room, ev)
	i.deliver(room, exceptConnID, ev)
}

// DeliverLocal sends an event from the bridge to local subscribers only.
// It does not re-publish, preventing infinite relay loops.
func (i *Index) DeliverLocal(room string, ev types.ServerEvent) {
	i.deliver(room, "", ev)
}

func (i *Index) deliver(room, exceptConnID string, ev types.ServerEvent) {
	for _, c := range i.Subscribers(room) {
		if c.ID == exceptConnID {
			continue
		}
		if !c.Deliver(ev) {
			// Closed mid-broadcast or buffer full; never fatal to the rest.
			i.logger.Warn().
				Str("room", room).
				Str("conn_id", c.ID).
				Str("kind", ev.Kind).
				Msg("dropped event for subscriber")
		}
	}
}

func (i *Index) publishToBridge(room string, ev types.ServerEvent) {
	i.mu.RLock()
	b := i.bridge
	i.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(room, ev); err != nil {
		i.logger.Error().Err(err).Str("room", room).Msg("bridge publish failed")
	}
}

// Counts returns room names with their subscriber counts.
func (i *Index) Counts() map[string]int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	counts := make(map[string]int, len(i.rooms))
	for room, subs := range i.rooms {
		counts[room] = len(subs)
	}
	return counts
}
