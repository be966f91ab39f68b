// Package collector turns raw venue rates into stored observations and
// orchestrates collection runs: lock, status bookkeeping, fetch, ingest.
package collector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/suwandre/fundscope/internal/exchange"
	"github.com/suwandre/fundscope/internal/models"
	"github.com/suwandre/fundscope/internal/runlock"
	"github.com/suwandre/fundscope/internal/store"
)

// ErrSkipped reports that another run already holds the job's lock. Callers
// treat it as a no-op, not a failure.
var ErrSkipped = errors.New("collector: run already in progress")

type Collector struct {
	store store.Store
	locks *runlock.Coordinator
}

func New(s store.Store, locks *runlock.Coordinator) *Collector {
	return &Collector{store: s, locks: locks}
}

// Ingest validates raw rates and persists the survivors as one atomic batch
// sharing a single observation timestamp. Unparseable or non-finite rates and
// empty symbols are skipped with a warning; they never poison the batch.
// Returns the number of observations stored.
func (c *Collector) Ingest(ctx context.Context, ex models.Exchange, raw []exchange.RawRate) (int, error) {
	observedAt := time.Now().UTC()

	batch := make([]models.Observation, 0, len(raw))
	for _, r := range raw {
		if r.Symbol == "" {
			log.Warn().Str("exchange", string(ex)).Str("rate", r.Rate).Msg("skipping rate without symbol")
			continue
		}

		rate, err := strconv.ParseFloat(r.Rate, 64)
		if err != nil {
			log.Warn().Str("exchange", string(ex)).Str("symbol", r.Symbol).Str("rate", r.Rate).Msg("skipping invalid rate")
			continue
		}
		// ParseFloat accepts "NaN" and "Inf" spellings, so finiteness is a
		// separate check.
		if math.IsNaN(rate) || math.IsInf(rate, 0) {
			log.Warn().Str("exchange", string(ex)).Str("symbol", r.Symbol).Str("rate", r.Rate).Msg("skipping non-finite rate")
			continue
		}

		batch = append(batch, models.Observation{
			Exchange:   ex,
			Symbol:     r.Symbol,
			Rate:       rate,
			ObservedAt: observedAt,
		})
	}

	if len(batch) == 0 {
		return 0, nil
	}
	if err := c.store.AppendObservations(ctx, batch); err != nil {
		return 0, fmt.Errorf("store observations: %w", err)
	}
	return len(batch), nil
}

// Run executes one collection run for a venue: acquire the job lock, record
// the run as running, fetch, ingest, record the terminal state, release.
//
// Fetch and ingest problems do not escape as errors; they land in the
// returned status (state failed) and in the store for the status endpoint.
// ErrSkipped means another holder has the lock; other errors mean run
// coordination itself was impossible.
func (c *Collector) Run(ctx context.Context, fetcher exchange.RateFetcher) (models.RunStatus, error) {
	job := fetcher.Name()

	ex, err := models.ParseExchange(job)
	if err != nil {
		return models.RunStatus{}, fmt.Errorf("collector: %w", err)
	}

	ok, err := c.locks.Acquire(ctx, job)
	if err != nil {
		return models.RunStatus{}, fmt.Errorf("collector: %w", err)
	}
	if !ok {
		return models.RunStatus{}, ErrSkipped
	}
	defer c.locks.Release(ctx, job)

	status := models.RunStatus{
		Job:       job,
		RunID:     uuid.NewString(),
		State:     models.RunStateRunning,
		StartedAt: time.Now().UTC(),
	}
	c.locks.WriteStatus(ctx, status)
	log.Info().Str("job", job).Str("run_id", status.RunID).Msg("collection run started")

	raw, err := fetcher.FetchCurrentRates(ctx)
	if err != nil {
		return c.finish(ctx, status, 0, err), nil
	}

	stored, err := c.Ingest(ctx, ex, raw)
	return c.finish(ctx, status, stored, err), nil
}

// finish stamps the terminal state onto the status record and persists it.
func (c *Collector) finish(ctx context.Context, status models.RunStatus, stored int, runErr error) models.RunStatus {
	done := time.Now().UTC()
	status.CompletedAt = &done
	status.RecordsStored = stored

	if runErr != nil {
		status.State = models.RunStateFailed
		status.Error = runErr.Error()
		log.Error().Err(runErr).Str("job", status.Job).Str("run_id", status.RunID).Msg("collection run failed")
	} else {
		status.State = models.RunStateCompleted
		log.Info().Str("job", status.Job).Str("run_id", status.RunID).Int("stored", stored).Msg("collection run completed")
	}

	c.locks.WriteStatus(ctx, status)
	return status
}
