package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/suwandre/fundscope/config"
	"github.com/suwandre/fundscope/internal/collector"
	"github.com/suwandre/fundscope/internal/exchange"
	"github.com/suwandre/fundscope/internal/logging"
	"github.com/suwandre/fundscope/internal/metrics"
	"github.com/suwandre/fundscope/internal/models"
	"github.com/suwandre/fundscope/internal/runlock"
	"github.com/suwandre/fundscope/internal/store"
)

func main() {
	// ── 1. Flags
	job := flag.String("job", "all", "collection job to run: lighter, hyena or all")
	quick := flag.Bool("quick", false, "restrict hyena collection to the first coins of the universe")
	schedule := flag.String("schedule", "", "cron expression for repeated runs; empty runs once and exits")
	flag.Parse()

	// ── 2. Root context setup
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── 3. Config + logger
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)

	// ── 4. Storage + coordination
	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.MigrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()

	locks := runlock.New(st, cfg.LockTTL())
	col := collector.New(st, locks)
	m := metrics.New()

	// ── 5. Exchange adapters
	fetchers, err := buildFetchers(cfg, *job, *quick)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot build fetchers")
	}
	log.Info().Int("count", len(fetchers)).Str("job", *job).Msg("exchange adapters initialized")

	runAll := func(ctx context.Context) bool {
		ok := true
		for _, f := range fetchers {
			if !runOne(ctx, col, m, f) {
				ok = false
			}
		}
		return ok
	}

	// ── 6. One-shot mode
	if *schedule == "" {
		if !runAll(ctx) {
			os.Exit(1)
		}
		return
	}

	// ── 7. Scheduled mode
	c := cron.New()
	if _, err := c.AddFunc(*schedule, func() { runAll(ctx) }); err != nil {
		log.Fatal().Err(err).Str("schedule", *schedule).Msg("invalid schedule")
	}
	c.Start()
	log.Info().Str("schedule", *schedule).Msg("collector scheduled")

	// Metrics live on their own port so scheduled runs stay observable.
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	// ── 8. Graceful shutdown
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	<-c.Stop().Done()
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("error during metrics shutdown")
	}
}

// buildFetchers resolves the -job flag into concrete adapters.
func buildFetchers(cfg *config.Config, job string, quick bool) ([]exchange.RateFetcher, error) {
	lighter := exchange.NewLighterAdapter(cfg.LighterBaseURL, cfg.HTTPTimeout())
	hyena := exchange.NewHyenaAdapter(exchange.HyenaConfig{
		APIURL:             cfg.HyperliquidAPIURL,
		Timeout:            cfg.HTTPTimeout(),
		MinRequestInterval: cfg.HyenaMinRequestInterval(),
		Lookback:           cfg.HyenaLookback(),
		QuickLimit:         cfg.HyenaQuickLimit,
	})
	var hyenaFetcher exchange.RateFetcher = hyena
	if quick {
		hyenaFetcher = hyena.Quick()
	}

	switch job {
	case "lighter":
		return []exchange.RateFetcher{lighter}, nil
	case "hyena":
		return []exchange.RateFetcher{hyenaFetcher}, nil
	case "all":
		return []exchange.RateFetcher{lighter, hyenaFetcher}, nil
	default:
		return nil, errors.New("unknown job " + job + ", want lighter, hyena or all")
	}
}

// runOne executes a single collection run and records its outcome. Skipped
// runs count as success: another process already holds the lock.
func runOne(ctx context.Context, col *collector.Collector, m *metrics.Metrics, f exchange.RateFetcher) bool {
	start := time.Now()

	status, err := col.Run(ctx, f)
	switch {
	case errors.Is(err, collector.ErrSkipped):
		m.RecordRun(f.Name(), "skipped", time.Since(start))
		return true
	case err != nil:
		log.Error().Err(err).Str("job", f.Name()).Msg("collection run aborted")
		m.RecordRun(f.Name(), "failed", time.Since(start))
		return false
	}

	m.RecordRun(f.Name(), string(status.State), time.Since(start))
	m.RecordObservations(f.Name(), status.RecordsStored)
	return status.State == models.RunStateCompleted
}
