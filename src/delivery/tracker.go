package delivery

import (
	"sync"
	"time"

	"github.com/roomlink/realtime/src/registry"
	"github.com/roomlink/realtime/src/rooms"
	"github.com/roomlink/realtime/src/types"
	"github.com/rs/zerolog"
)

const (
	// staleEntryTTL bounds how long a sent or delivered entry is tracked.
	// Past this the durable store owns the message's fate.
	staleEntryTTL = time.Hour
	sweepInterval = 10 * time.Minute
)

// Tracker assigns delivery states to relayed messages. States only move
// forward: sent -> delivered -> read. A message to an offline recipient
// stays at sent for the rest of the session; advancing it later is the
// durable store's job. Entries are dropped on reaching the terminal read
// state and swept once stale, so the map never grows with server age.
type Tracker struct {
	registry *registry.Registry
	rooms    *rooms.Index
	delay    time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	states map[string]entry

	done     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	state     types.DeliveryState
	updatedAt time.Time
}

// New creates a delivery tracker and starts its stale-entry sweeper. delay
// is how long after acceptance the recipient's presence is checked before
// marking a message delivered. Call Stop on shutdown.
func New(reg *registry.Registry, idx *rooms.Index, delay time.Duration, logger zerolog.Logger) *Tracker {
	t := &Tracker{
		registry: reg,
		rooms:    idx,
		delay:    delay,
		logger:   logger.With().Str("component", "delivery").Logger(),
		states:   make(map[string]entry),
		done:     make(chan struct{}),
	}
	go t.janitor()
	return t
}

// Stop halts the stale-entry sweeper. Safe to call more than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

// MarkSent records a freshly accepted message.
func (t *Tracker) MarkSent(messageID string) {
	t.advance(messageID, types.StateSent)
}

// ScheduleDelivered checks the recipient's presence after the configured
// delay and, if still online, advances the message to delivered and notifies
// the sender only. Best-effort: not an acknowledgment handshake.
func (t *Tracker) ScheduleDelivered(messageID, chatID, senderID, recipientID string) {
	time.AfterFunc(t.delay, func() {
		if !t.registry.IsOnline(recipientID) {
			return
		}
		if !t.advance(messageID, types.StateDelivered) {
			return
		}
		t.rooms.Broadcast(rooms.UserRoom(senderID), types.NewServerEvent(types.KindMessageDelivered, map[string]any{
			"messageId": messageID,
			"chatId":    chatID,
		}))
	})
}

// MarkRead advances messages to read and broadcasts the receipt to the
// chat room, excluding the marking connection. The receipt may name message
// ids this session never relayed (history read from the store); those are
// forwarded without being tracked.
func (t *Tracker) MarkRead(chatID string, messageIDs []string, readBy, exceptConnID string) {
	for _, id := range messageIDs {
		t.advance(id, types.StateRead)
	}
	t.rooms.BroadcastExcept(rooms.ChatRoom(chatID), exceptConnID, types.NewServerEvent(types.KindMessagesRead, map[string]any{
		"chatId":     chatID,
		"messageIds": messageIDs,
		"readBy":     readBy,
	}))
}

// StateOf returns the tracked state of a message, if any. Messages that
// reached read are no longer tracked.
func (t *Tracker) StateOf(messageID string) (types.DeliveryState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.states[messageID]
	return e.state, ok
}

// Pending returns the number of tracked in-flight messages.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}

// advance moves a message forward, refusing regressions and repeats. Only
// sent may create an entry; an unknown id at any later stage means the
// message was never tracked this session or already reached read. The
// terminal read state removes the entry.
func (t *Tracker) advance(messageID string, next types.DeliveryState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.states[messageID]
	switch {
	case !ok && next == types.StateSent:
		t.states[messageID] = entry{state: next, updatedAt: time.Now()}
		return true
	case !ok:
		return false
	case !cur.state.Before(next):
		t.logger.Debug().
			Str("message_id", messageID).
			Str("from", string(cur.state)).
			Str("to", string(next)).
			Msg("ignoring delivery state regression")
		return false
	case next == types.StateRead:
		delete(t.states, messageID)
		return true
	default:
		t.states[messageID] = entry{state: next, updatedAt: time.Now()}
		return true
	}
}

func (t *Tracker) janitor() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.sweepStale(time.Now())
		case <-t.done:
			return
		}
	}
}

// sweepStale drops entries untouched for longer than the TTL.
func (t *Tracker) sweepStale(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	swept := 0
	for id, e := range t.states {
		if now.Sub(e.updatedAt) > staleEntryTTL {
			delete(t.states, id)
			swept++
		}
	}
	if swept > 0 {
		t.logger.Debug().Int("swept", swept).Int("remaining", len(t.states)).Msg("swept stale delivery entries")
	}
}
