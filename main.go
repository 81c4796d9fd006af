package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/trackship/server/config"
	"github.com/trackship/server/src/api"
	"github.com/trackship/server/src/auth"
	"github.com/trackship/server/src/cache"
	"github.com/trackship/server/src/hub"
	"github.com/trackship/server/src/store"
	"github.com/valyala/fasthttp"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(os.Getenv("TRACKSHIP_LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	cfg, err := config.Load(os.Getenv("TRACKSHIP_CONFIG"))
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	ctx := context.Background()
	st, err := store.Connect(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer st.Close()

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	switch command {
	case "serve":
		serve(cfg, st, logger)
	case "migrate":
		if err := st.ApplySchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	case "seed":
		if err := st.ApplySchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		if err := st.Seed(ctx, adminEmail(), adminPassword()); err != nil {
			logger.Fatal().Err(err).Msg("seeding failed")
		}
	default:
		logger.Fatal().Str("command", command).Msg("unknown command, expected serve, migrate or seed")
	}
}

func serve(cfg config.Config, st *store.Postgres, logger zerolog.Logger) {
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenLifetimeHours)*time.Hour)

	h := hub.New(tokens, logger,
		hub.WithPingInterval(time.Duration(cfg.Socket.PingIntervalSec)*time.Second))
	go h.Run()
	defer h.Stop()

	// The tracking cache is optional; start failures leave the server
	// in standalone mode.
	var tc *cache.TrackingCache
	candidate := cache.New(cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
		TTL:      time.Duration(cfg.Redis.TTLSec) * time.Second,
	}, logger)
	if err := candidate.Start(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, tracking cache disabled")
	} else {
		tc = candidate
		defer tc.Stop()
	}

	srv := api.NewServer(st, tokens, h, tc, logger)
	app := srv.Router(cfg.HTTP.CORSOrigin)

	// WebSocket upgrades bypass fiber: the raw fasthttp handler owns
	// the /ws path, everything else goes to the fiber app.
	wsHandler := srv.WebSocketHandler()
	appHandler := app.Handler()
	server := &fasthttp.Server{
		Name: "trackship",
		Handler: func(ctx *fasthttp.RequestCtx) {
			if string(ctx.Path()) == "/ws" {
				wsHandler(ctx)
				return
			}
			appHandler(ctx)
		},
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Info().Msg("shutting down")
		if err := server.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.ListenOn, cfg.HTTP.Port)
	logger.Info().Str("addr", addr).Msg("server listening")
	if err := server.ListenAndServe(addr); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func adminEmail() string {
	if v := os.Getenv("TRACKSHIP_ADMIN_EMAIL"); v != "" {
		return v
	}
	return "admin@example.com"
}

func adminPassword() string {
	if v := os.Getenv("TRACKSHIP_ADMIN_PASSWORD"); v != "" {
		return v
	}
	return "admin123"
}
