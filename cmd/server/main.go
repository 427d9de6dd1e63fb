package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/roomlink/realtime/config"
	"github.com/roomlink/realtime/providers"
	"github.com/roomlink/realtime/src/auth"
	"github.com/roomlink/realtime/src/bridge"
	"github.com/roomlink/realtime/src/service"
	"github.com/roomlink/realtime/src/store"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := config.FromEnv()

	st := buildStore(cfg, logger)
	defer st.Close()

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	svc := service.New(cfg, st, verifier, logger)

	// Cross-instance fan-out is optional; without Redis the server runs
	// standalone with full authority over its own connection state.
	var br bridge.Bridge
	rb := bridge.NewRedisBridge(bridge.RedisConfigFromEnv(), svc.Rooms(), logger)
	if err := rb.Start(); err != nil {
		logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
	} else {
		br = rb
		svc.SetBridge(rb)
	}

	p := providers.New(svc, cfg, logger)
	app := fiber.New()
	p.RegisterRoutes(app)
	appHandler := app.Handler()
	wsHandler := p.FastHTTPHandler()

	server := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			if string(ctx.Path()) == "/ws" {
				wsHandler(ctx)
				return
			}
			appHandler(ctx)
		},
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("realtime server listening")
		if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	svc.Shutdown()
	if br != nil {
		if err := br.Stop(); err != nil {
			logger.Error().Err(err).Msg("bridge stop error")
		}
	}
}

// buildStore selects the message store backend. Redis failures degrade to
// the in-memory store so the realtime layer stays up; the store is a
// collaborator, not the authority for live delivery.
func buildStore(cfg *config.Config, logger zerolog.Logger) store.MessageStore {
	if cfg.StoreBackend == "redis" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		rcfg := bridge.RedisConfigFromEnv()
		rs, err := store.NewRedisStore(ctx, store.RedisStoreConfig{
			Addr:     rcfg.Addr,
			Password: rcfg.Password,
			DB:       rcfg.DB,
			Prefix:   rcfg.Prefix,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("redis store unavailable, falling back to memory")
		} else {
			logger.Info().Str("redis_addr", rcfg.Addr).Msg("redis message store connected")
			return rs
		}
	}
	return store.NewMemoryStore()
}
