package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/roomlink/realtime/config"
	"github.com/roomlink/realtime/src/auth"
	"github.com/roomlink/realtime/src/delivery"
	"github.com/roomlink/realtime/src/presence"
	"github.com/roomlink/realtime/src/registry"
	"github.com/roomlink/realtime/src/rooms"
	"github.com/roomlink/realtime/src/router"
	"github.com/roomlink/realtime/src/store"
	"github.com/roomlink/realtime/src/types"
)

// Service composes the realtime core: registry, room index, presence
// coordinator, delivery tracker and event router, over the auth and store
// collaborators. One instance per server process; constructed on startup,
// torn down on shutdown.
type Service struct {
	registry *registry.Registry
	rooms    *rooms.Index
	presence *presence.Coordinator
	delivery *delivery.Tracker
	router   *router.Router
	store    store.MessageStore
	logger   zerolog.Logger
}

// New wires the realtime core together.
func New(cfg *config.Config, st store.MessageStore, verifier auth.Verifier, logger zerolog.Logger) *Service {
	reg := registry.New(logger)
	idx := rooms.New(logger)
	pres := presence.New(reg, logger)
	trk := delivery.New(reg, idx, cfg.DeliveredCheckDelay, logger)
	rtr := router.New(reg, idx, pres, trk, st, verifier, router.Options{
		HandshakeTimeout: cfg.HandshakeTimeout,
		SendBuffer:       cfg.SendBufferSize,
	}, logger)

	return &Service{
		registry: reg,
		rooms:    idx,
		presence: pres,
		delivery: trk,
		router:   rtr,
		store:    st,
		logger:   logger.With().Str("component", "service").Logger(),
	}
}

// HandleConnection runs one transport session to completion.
func (s *Service) HandleConnection(conn types.Conn, token string) {
	s.router.Serve(conn, token)
}

// SetBridge attaches a cross-instance broadcast bridge to the room index.
func (s *Service) SetBridge(b rooms.MessageBridge) {
	s.rooms.SetBridge(b)
}

// Rooms exposes the room index for the bridge's local delivery path.
func (s *Service) Rooms() *rooms.Index { return s.rooms }

// OnlineUsers returns the ids of all currently-online users.
func (s *Service) OnlineUsers() []string {
	return s.presence.OnlineUsers()
}

// ConnectionCount returns the number of live connections.
func (s *Service) ConnectionCount() int {
	return s.registry.Count()
}

// RoomCount returns the number of rooms with at least one subscriber.
func (s *Service) RoomCount() int {
	return len(s.rooms.Counts())
}

// RecentMessages loads chat history through the store collaborator,
// most recent last.
func (s *Service) RecentMessages(ctx context.Context, chatID string, limit int) ([]types.Envelope, error) {
	return s.store.LoadRecentMessages(ctx, chatID, limit)
}

// Shutdown closes every live connection and stops the delivery tracker.
func (s *Service) Shutdown() {
	s.logger.Info().Int("connections", s.registry.Count()).Msg("closing all connections")
	s.registry.Each(func(c *registry.Connection) {
		c.Close()
	})
	s.delivery.Stop()
}
