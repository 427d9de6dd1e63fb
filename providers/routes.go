package providers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/roomlink/realtime/config"
	"github.com/roomlink/realtime/src/service"
)

// Provider exposes the realtime service over HTTP: the WebSocket upgrade
// endpoint plus a small introspection and history surface.
type Provider struct {
	svc      *service.Service
	cfg      *config.Config
	logger   zerolog.Logger
	upgrader websocket.FastHTTPUpgrader
}

// New creates a transport provider for the given service.
func New(svc *service.Service, cfg *config.Config, logger zerolog.Logger) *Provider {
	return &Provider{
		svc:    svc,
		cfg:    cfg,
		logger: logger.With().Str("component", "transport").Logger(),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
	}
}

// RegisterRoutes registers the HTTP surface via Fiber. The WebSocket
// upgrade itself uses FastHTTPHandler, registered at the app level since
// Fiber v3 does not expose *fasthttp.RequestCtx.
func (p *Provider) RegisterRoutes(group fiber.Router) {
	group.Get("/ws/info", p.handleInfo)
	group.Get("/presence/online", p.handleOnline)
	group.Get("/chats/:chatId/messages", p.handleMessages)
}

func (p *Provider) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket":   true,
		"endpoint":    "/ws",
		"connections": p.svc.ConnectionCount(),
		"rooms":       p.svc.RoomCount(),
	})
}

func (p *Provider) handleOnline(c fiber.Ctx) error {
	users := p.svc.OnlineUsers()
	return c.JSON(fiber.Map{
		"users": users,
		"count": len(users),
	})
}

func (p *Provider) handleMessages(c fiber.Ctx) error {
	chatID := c.Params("chatId")
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	msgs, err := p.svc.RecentMessages(ctx, chatID, limit)
	if err != nil {
		p.logger.Error().Err(err).Str("chat_id", chatID).Msg("history load failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "message store unavailable",
		})
	}
	return c.JSON(fiber.Map{
		"chatId":   chatID,
		"messages": msgs,
	})
}

// FastHTTPHandler returns a raw fasthttp handler for WebSocket upgrades.
// Register this on the fasthttp server at the "/ws" path. The handshake
// credential is taken from the "token" query parameter or a bearer
// Authorization header; when absent, the client must send an authenticate
// event over the socket.
func (p *Provider) FastHTTPHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		token := string(ctx.QueryArgs().Peek("token"))
		if token == "" {
			header := string(ctx.Request.Header.Peek("Authorization"))
			if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
				token = rest
			}
		}

		err := p.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			p.svc.HandleConnection(&fasthttpConn{conn}, token)
		})
		if err != nil {
			p.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type fasthttpConn struct {
	conn *websocket.Conn
}

func (f *fasthttpConn) WriteJSON(v any) error { return f.conn.WriteJSON(v) }
func (f *fasthttpConn) ReadJSON(v any) error  { return f.conn.ReadJSON(v) }
func (f *fasthttpConn) Close() error          { return f.conn.Close() }
