package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/suwandre/fundscope/internal/models"
)

// ErrNotFound is returned when a lease or status record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence boundary for funding-rate observations, run leases
// and run status records. Observation batches commit atomically: concurrent
// readers see either the whole batch or none of it.
type Store interface {
	// AppendObservations persists a batch of observations as a single unit.
	AppendObservations(ctx context.Context, batch []models.Observation) error

	// ObservationsSince returns all observations for an exchange observed at or
	// after the given time, in no particular order.
	ObservationsSince(ctx context.Context, exchange models.Exchange, since time.Time) ([]models.Observation, error)

	// SymbolHistory returns the observations for one symbol (matched
	// case-insensitively) at or after the given time, ascending by timestamp.
	SymbolHistory(ctx context.Context, exchange models.Exchange, symbol string, since time.Time) ([]models.Observation, error)

	// TryInsertLease atomically creates the lease if no lease with the same
	// name exists. Returns true iff the lease was newly created.
	TryInsertLease(ctx context.Context, lease models.Lease) (bool, error)

	// GetLease returns the lease with the given name, or ErrNotFound.
	GetLease(ctx context.Context, name string) (*models.Lease, error)

	// DeleteLease removes the lease with the given name. Deleting an absent
	// lease is not an error.
	DeleteLease(ctx context.Context, name string) error

	// UpsertRunStatus overwrites the status record for the job.
	UpsertRunStatus(ctx context.Context, status models.RunStatus) error

	// LatestRunStatus returns the status for a job, or, when job is empty, the
	// most recently started run across all jobs. Returns ErrNotFound when no
	// run has ever been recorded.
	LatestRunStatus(ctx context.Context, job string) (*models.RunStatus, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Open selects the store implementation from the database URL: a Postgres
// store (with migrations applied) when the URL is set, the in-memory store
// otherwise.
func Open(ctx context.Context, databaseURL, migrationsDir string) (Store, error) {
	if databaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, using in-memory store (data is lost on restart)")
		return NewMemory(), nil
	}

	pg, err := NewPostgres(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if migrationsDir != "" {
		if err := Migrate(pg.DB(), migrationsDir); err != nil {
			pg.Close()
			return nil, err
		}
	}

	return pg, nil
}
