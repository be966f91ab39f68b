package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/suwandre/fundscope/api"
	"github.com/suwandre/fundscope/api/handlers"
	"github.com/suwandre/fundscope/config"
	"github.com/suwandre/fundscope/internal/cache"
	"github.com/suwandre/fundscope/internal/funding"
	"github.com/suwandre/fundscope/internal/logging"
	"github.com/suwandre/fundscope/internal/metrics"
	"github.com/suwandre/fundscope/internal/runlock"
	"github.com/suwandre/fundscope/internal/store"
)

func main() {
	// ── 1. Root context setup
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── 2. Config + logger
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	log.Info().Msg("config loaded")

	// ── 3. Storage
	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.MigrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()

	// ── 4. Cache + run coordination
	ch := cache.New(cfg.RedisURL)
	defer ch.Close()
	locks := runlock.New(st, cfg.LockTTL())

	// ── 5. Funding service + metrics
	svc := funding.New(st)
	m := metrics.New()

	// ── 6. Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Fundscope",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	// ── 7. Routes
	api.SetupRoutes(app, api.Deps{
		Store:   st,
		Funding: svc,
		Locks:   locks,
		Cache:   ch,
		Metrics: m,
		Windows: handlers.Windows{
			Lighter:  cfg.LighterWindow(),
			Hyena:    cfg.HyenaWindow(),
			History:  cfg.HistoryWindow(),
			CacheTTL: cfg.CacheTTL(),
		},
	})

	// ── 8. Graceful shutdown listener
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutdown signal received")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	// ── 9. Start server (blocking)
	log.Info().Str("port", cfg.AppPort).Msg("starting server")
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}
