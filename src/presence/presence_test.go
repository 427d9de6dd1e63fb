package presence

import (
	"errors"
	"testing"

	"github.com/roomlink/realtime/src/registry"
	"github.com/roomlink/realtime/src/types"
	"github.com/rs/zerolog"
)

type stubConn struct{}

func (stubConn) WriteJSON(any) error { return nil }
func (stubConn) ReadJSON(any) error  { return errors.New("connection closed") }
func (stubConn) Close() error        { return nil }

func newConn(id, userID string) *registry.Connection {
	return registry.NewConnection(id, userID, stubConn{}, 32)
}

func countKind(c *registry.Connection, kind, userID string) int {
	n := 0
	for {
		select {
		case ev := <-c.Send:
			if ev.Kind == kind && ev.Data["userId"] == userID {
				n++
			}
		default:
			return n
		}
	}
}

func TestOnlineAnnouncedOnceForMultipleConnections(t *testing.T) {
	reg := registry.New(zerolog.Nop())
	p := New(reg, zerolog.Nop())

	observer := newConn("obs", "bob")
	p.Connected(observer)

	a1 := newConn("a1", "alice")
	a2 := newConn("a2", "alice")
	p.Connected(a1)
	p.Connected(a2)

	if got := countKind(observer, types.KindUserOnline, "alice"); got != 1 {
		t.Errorf("expected exactly 1 user_online for alice, got %d", got)
	}
}

func TestOfflineAnnouncedOnlyAfterLastDisconnect(t *testing.T) {
	reg := registry.New(zerolog.Nop())
	p := New(reg, zerolog.Nop())

	observer := newConn("obs", "bob")
	p.Connected(observer)

	a1 := newConn("a1", "alice")
	a2 := newConn("a2", "alice")
	p.Connected(a1)
	p.Connected(a2)
	drainAll(observer)

	p.Disconnected(a1)
	if got := countKind(observer, types.KindUserOffline, "alice"); got != 0 {
		t.Errorf("no user_offline expected while a connection remains, got %d", got)
	}

	p.Disconnected(a2)
	if got := countKind(observer, types.KindUserOffline, "alice"); got != 1 {
		t.Errorf("expected exactly 1 user_offline after last disconnect, got %d", got)
	}
}

func TestRepeatDisconnectDoesNotRepeatAnnouncement(t *testing.T) {
	reg := registry.New(zerolog.Nop())
	p := New(reg, zerolog.Nop())

	observer := newConn("obs", "bob")
	p.Connected(observer)

	a := newConn("a1", "alice")
	p.Connected(a)
	drainAll(observer)

	p.Disconnected(a)
	p.Disconnected(a)

	if got := countKind(observer, types.KindUserOffline, "alice"); got != 1 {
		t.Errorf("double disconnect must announce once, got %d", got)
	}
}

func TestOnlineUsers(t *testing.T) {
	reg := registry.New(zerolog.Nop())
	p := New(reg, zerolog.Nop())

	p.Connected(newConn("a1", "alice"))
	p.Connected(newConn("b1", "bob"))

	if got := len(p.OnlineUsers()); got != 2 {
		t.Errorf("expected 2 online users, got %d", got)
	}
}

func drainAll(c *registry.Connection) {
	for {
		select {
		case <-c.Send:
		default:
			return
		}
	}
}
