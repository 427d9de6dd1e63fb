package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roomlink/realtime/src/auth"
	"github.com/roomlink/realtime/src/delivery"
	"github.com/roomlink/realtime/src/presence"
	"github.com/roomlink/realtime/src/registry"
	"github.com/roomlink/realtime/src/rooms"
	"github.com/roomlink/realtime/src/store"
	"github.com/roomlink/realtime/src/types"
)

const persistTimeout = 5 * time.Second

// Options tunes per-connection behavior.
type Options struct {
	// HandshakeTimeout bounds how long a connection may stay
	// unauthenticated before it is closed.
	HandshakeTimeout time.Duration
	// SendBuffer is the per-connection outbound queue size.
	SendBuffer int
}

// Router drives the per-connection session state machine
// (unauthenticated -> authenticated -> closed), decodes inbound frames into
// typed events and dispatches them to the presence, room, delivery and store
// collaborators. Handlers run on the connection's read goroutine, so events
// from one connection are processed in the order received.
type Router struct {
	registry *registry.Registry
	rooms    *rooms.Index
	presence *presence.Coordinator
	delivery *delivery.Tracker
	store    store.MessageStore
	verifier auth.Verifier
	opts     Options
	logger   zerolog.Logger
}

// session is the per-connection state. close runs its teardown exactly once
// regardless of how many paths reach it.
type session struct {
	conn      *registry.Connection
	router    *Router
	closeOnce sync.Once
}

// New creates an event router over the given collaborators.
func New(reg *registry.Registry, idx *rooms.Index, pres *presence.Coordinator, trk *delivery.Tracker, st store.MessageStore, verifier auth.Verifier, opts Options, logger zerolog.Logger) *Router {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	return &Router{
		registry: reg,
		rooms:    idx,
		presence: pres,
		delivery: trk,
		store:    st,
		verifier: verifier,
		opts:     opts,
		logger:   logger.With().Str("component", "router").Logger(),
	}
}

// Serve runs one connection to completion. token may carry the handshake
// credential from the transport upgrade; when empty, the first inbound
// frames must authenticate within the handshake window. Serve returns when
// the transport closes or a fatal protocol error occurs.
func (r *Router) Serve(conn types.Conn, token string) {
	frames := make(chan types.ClientEvent)
	go func() {
		defer close(frames)
		for {
			var ev types.ClientEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			frames <- ev
		}
	}()

	userID, err := r.handshake(conn, token, frames)
	if err != nil {
		r.logger.Warn().Err(err).Msg("handshake failed")
		r.writeDirect(conn, types.NewServerEvent(types.KindError, map[string]any{
			"code":    "unauthorized",
			"message": "authentication failed",
		}))
		conn.Close()
		// Drain so the reader goroutine can exit.
		for range frames {
		}
		return
	}

	c := registry.NewConnection(uuid.New().String(), userID, conn, r.opts.SendBuffer)
	go c.WritePump()

	s := &session{conn: c, router: r}
	defer s.close()

	r.presence.Connected(c)
	r.rooms.Join(rooms.UserRoom(userID), c)

	r.logger.Info().Str("conn_id", c.ID).Str("user_id", userID).Msg("session started")

	for ev := range frames {
		r.dispatch(s, ev)
	}
}

// handshake resolves the connection's user id. With an upgrade-time token the
// transition is immediate; otherwise the client gets the handshake window to
// send an authenticate event. Any other event kind in that window is rejected
// with an authorization error and causes no side effect.
func (r *Router) handshake(conn types.Conn, token string, frames <-chan types.ClientEvent) (string, error) {
	if token != "" {
		return r.verifier.Verify(token)
	}

	timer := time.NewTimer(r.opts.HandshakeTimeout)
	defer timer.Stop()

	for {
		select {
		case raw, ok := <-frames:
			if !ok {
				return "", ErrConnectionClosed
			}
			if raw.Kind != types.KindAuthenticate {
				r.writeDirect(conn, types.NewServerEvent(types.KindError, map[string]any{
					"code":    "unauthorized",
					"message": "authenticate before sending events",
					"kind":    raw.Kind,
				}))
				continue
			}
			ev, err := decodeEvent(raw)
			if err != nil {
				return "", err
			}
			return r.verifier.Verify(ev.(authenticateEvent).Token)
		case <-timer.C:
			return "", ErrHandshakeTimeout
		}
	}
}

// dispatch decodes one inbound frame and runs its handler. Decode failures
// are per-event rejections; the connection stays open.
func (r *Router) dispatch(s *session, raw types.ClientEvent) {
	ev, err := decodeEvent(raw)
	if err != nil {
		code := "validation"
		if errors.Is(err, ErrUnknownKind) {
			code = "unknown_kind"
		}
		r.logger.Debug().Err(err).Str("kind", raw.Kind).Str("conn_id", s.conn.ID).Msg("rejected event")
		s.conn.Deliver(types.NewServerEvent(types.KindError, map[string]any{
			"code":    code,
			"message": err.Error(),
			"kind":    raw.Kind,
		}))
		return
	}

	switch e := ev.(type) {
	case authenticateEvent:
		s.conn.Deliver(types.NewServerEvent(types.KindError, map[string]any{
			"code":    "already_authenticated",
			"message": "connection is already authenticated",
		}))
	case typingEvent:
		r.handleTyping(s, e)
	case sendMessageEvent:
		r.handleSendMessage(s, e)
	case markReadEvent:
		r.handleMarkRead(s, e)
	case chatOpenedEvent:
		r.handleChatOpened(s, e)
	case visitRequestEvent:
		r.handleVisitRequest(s, e)
	case visitResponseEvent:
		r.handleVisitResponse(s, e)
	case notificationEvent:
		r.handleNotification(s, e)
	}
}

func (r *Router) handleTyping(s *session, e typingEvent) {
	r.rooms.Broadcast(rooms.UserRoom(e.ToUserID), types.NewServerEvent(types.KindUserTyping, map[string]any{
		"chatId":   e.ChatID,
		"userId":   s.conn.UserID,
		"isTyping": e.Typing,
	}))
}

func (r *Router) handleSendMessage(s *session, e sendMessageEvent) {
	env := types.Envelope{
		ID:          uuid.New().String(),
		ChatID:      e.ChatID,
		FromUserID:  s.conn.UserID,
		ToUserID:    e.ToUserID,
		Body:        e.Body,
		Attachments: e.Attachments,
		State:       types.StateSent,
		CreatedAt:   time.Now().UTC(),
	}
	if env.Attachments == nil {
		env.Attachments = []string{}
	}
	r.delivery.MarkSent(env.ID)

	// Read receipts are broadcast on the chat room, so the sender joins it
	// here even if it never issued chat_opened.
	r.rooms.Join(rooms.ChatRoom(e.ChatID), s.conn)

	r.rooms.Broadcast(rooms.UserRoom(s.conn.UserID), types.NewServerEvent(types.KindMessageSent, env.Data()))
	r.rooms.Broadcast(rooms.UserRoom(e.ToUserID), types.NewServerEvent(types.KindNewMessage, env.Data()))

	if r.registry.IsOnline(e.ToUserID) {
		r.delivery.ScheduleDelivered(env.ID, env.ChatID, env.FromUserID, env.ToUserID)
	}

	// Persistence is asynchronous relative to the live broadcast; a store
	// failure surfaces to the sender but never retracts frames already sent.
	go r.persist(s, env)
}

func (r *Router) persist(s *session, env types.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if _, err := r.store.SaveMessage(ctx, env); err != nil {
		r.logger.Error().Err(err).Str("message_id", env.ID).Str("chat_id", env.ChatID).Msg("message persist failed")
		s.conn.Deliver(types.NewServerEvent(types.KindMessageError, map[string]any{
			"messageId": env.ID,
			"chatId":    env.ChatID,
			"error":     "failed to save message",
		}))
	}
}

func (r *Router) handleMarkRead(s *session, e markReadEvent) {
	r.delivery.MarkRead(e.ChatID, e.MessageIDs, s.conn.UserID, s.conn.ID)
}

func (r *Router) handleChatOpened(s *session, e chatOpenedEvent) {
	r.rooms.Join(rooms.ChatRoom(e.ChatID), s.conn)
	r.rooms.Broadcast(rooms.UserRoom(e.OtherUserID), types.NewServerEvent(types.KindChatOpened, map[string]any{
		"chatId": e.ChatID,
		"userId": s.conn.UserID,
	}))
}

func (r *Router) handleVisitRequest(s *session, e visitRequestEvent) {
	r.rooms.Broadcast(rooms.UserRoom(e.OwnerID), types.NewServerEvent(types.KindNewVisitRequest, map[string]any{
		"listingId":     e.ListingID,
		"requesterId":   s.conn.UserID,
		"proposedTimes": e.ProposedTimes,
	}))
}

func (r *Router) handleVisitResponse(s *session, e visitResponseEvent) {
	r.rooms.Broadcast(rooms.UserRoom(e.RequesterID), types.NewServerEvent(types.KindVisitResponse, map[string]any{
		"requestId": e.RequestID,
		"status":    e.Status,
	}))
}

func (r *Router) handleNotification(s *session, e notificationEvent) {
	r.rooms.Broadcast(rooms.UserRoom(e.ToUserID), types.NewServerEvent(types.KindNotification, map[string]any{
		"type": e.Type,
		"data": e.Data,
	}))
}

// writeDirect writes to the transport before a session exists, so the write
// pump is not running yet.
func (r *Router) writeDirect(conn types.Conn, ev types.ServerEvent) {
	if err := conn.WriteJSON(ev); err != nil {
		r.logger.Debug().Err(err).Msg("pre-session write failed")
	}
}

// close tears the session down: unregister first so presence transitions
// fire, then leave every room, then stop the pumps. Runs exactly once.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.router.presence.Disconnected(s.conn)
		s.router.rooms.LeaveAll(s.conn)
		s.conn.Close()
		s.router.logger.Info().
			Str("conn_id", s.conn.ID).
			Str("user_id", s.conn.UserID).
			Dur("duration", time.Since(s.conn.ConnectedAt())).
			Msg("session closed")
	})
}
