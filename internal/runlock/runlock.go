// Package runlock coordinates collection runs through the store: an exclusive
// per-job lease so overlapping runs skip instead of double-collecting, and a
// per-job status record for the status endpoint.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/suwandre/fundscope/internal/models"
	"github.com/suwandre/fundscope/internal/store"
)

// Coordinator hands out run leases with a fixed TTL. A lease left behind by a
// crashed run is reclaimable once its TTL has passed, so a dead holder blocks
// the job for at most one TTL.
type Coordinator struct {
	store  store.Store
	ttl    time.Duration
	holder string
}

func New(s store.Store, ttl time.Duration) *Coordinator {
	return &Coordinator{
		store:  s,
		ttl:    ttl,
		holder: fmt.Sprintf("%s-%d", uuid.NewString(), os.Getpid()),
	}
}

// Holder identifies this coordinator in lease records.
func (c *Coordinator) Holder() string { return c.holder }

// Acquire attempts to take the lease for a job. Returns true iff this caller
// now holds it. A live lease held elsewhere returns false with no error; a
// stale lease is removed and the insert retried exactly once.
func (c *Coordinator) Acquire(ctx context.Context, job string) (bool, error) {
	now := time.Now().UTC()
	lease := models.Lease{
		Name:       job,
		Holder:     c.holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(c.ttl),
	}

	ok, err := c.store.TryInsertLease(ctx, lease)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", job, err)
	}
	if ok {
		return true, nil
	}

	existing, err := c.store.GetLease(ctx, job)
	if errors.Is(err, store.ErrNotFound) {
		// Holder released between our insert and read.
		return c.retryInsert(ctx, lease)
	}
	if err != nil {
		return false, fmt.Errorf("inspect lock %s: %w", job, err)
	}

	if !existing.Expired(now) {
		log.Info().
			Str("job", job).
			Str("holder", existing.Holder).
			Time("expires_at", existing.ExpiresAt).
			Msg("run lock held, skipping")
		return false, nil
	}

	log.Warn().
		Str("job", job).
		Str("holder", existing.Holder).
		Time("expired_at", existing.ExpiresAt).
		Msg("reclaiming stale run lock")

	if err := c.store.DeleteLease(ctx, job); err != nil {
		return false, fmt.Errorf("remove stale lock %s: %w", job, err)
	}
	return c.retryInsert(ctx, lease)
}

// retryInsert is the single post-conflict attempt; losing again means another
// run got there first.
func (c *Coordinator) retryInsert(ctx context.Context, lease models.Lease) (bool, error) {
	ok, err := c.store.TryInsertLease(ctx, lease)
	if err != nil {
		return false, fmt.Errorf("reacquire lock %s: %w", lease.Name, err)
	}
	return ok, nil
}

// Release drops the lease for a job. Best effort: failures are logged so a run
// never fails on cleanup, and the TTL bounds the damage.
func (c *Coordinator) Release(ctx context.Context, job string) {
	if err := c.store.DeleteLease(ctx, job); err != nil {
		log.Warn().Err(err).Str("job", job).Msg("failed to release run lock")
	}
}

// WriteStatus records a run state transition. Best effort: a status write
// failure never aborts the run it describes.
func (c *Coordinator) WriteStatus(ctx context.Context, status models.RunStatus) {
	if err := c.store.UpsertRunStatus(ctx, status); err != nil {
		log.Warn().Err(err).Str("job", status.Job).Msg("failed to record run status")
	}
}

// ReadStatus returns the last status for a job, or the most recently started
// run across all jobs when job is empty. store.ErrNotFound means no run has
// ever been recorded.
func (c *Coordinator) ReadStatus(ctx context.Context, job string) (*models.RunStatus, error) {
	return c.store.LatestRunStatus(ctx, job)
}
