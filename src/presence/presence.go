package presence

import (
	"github.com/roomlink/realtime/src/registry"
	"github.com/roomlink/realtime/src/types"
	"github.com/rs/zerolog"
)

// Coordinator derives online/offline transitions from registry mutations and
// announces them. Announcements are strict: user_online fires only on a
// user's first connection, user_offline only when the last one closes.
type Coordinator struct {
	registry *registry.Registry
	logger   zerolog.Logger
}

// New creates a presence coordinator over the given registry.
func New(reg *registry.Registry, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		registry: reg,
		logger:   logger.With().Str("component", "presence").Logger(),
	}
}

// Connected registers a connection and, if it took the user from idle to
// online, announces the transition to every live connection.
func (p *Coordinator) Connected(c *registry.Connection) {
	if first := p.registry.Register(c); first {
		p.announce(types.KindUserOnline, c.UserID)
	}
}

// Disconnected unregisters a connection and, if the user's connection set is
// now empty, announces the offline transition.
func (p *Coordinator) Disconnected(c *registry.Connection) {
	if last := p.registry.Unregister(c); last {
		p.announce(types.KindUserOffline, c.UserID)
	}
}

// OnlineUsers returns the ids of all currently-online users.
func (p *Coordinator) OnlineUsers() []string {
	return p.registry.OnlineUsers()
}

func (p *Coordinator) announce(kind, userID string) {
	p.logger.Debug().Str("user_id", userID).Str("kind", kind).Msg("presence transition")

	ev := types.NewServerEvent(kind, map[string]any{"userId": userID})
	p.registry.Each(func(c *registry.Connection) {
		c.Deliver(ev)
	})
}
