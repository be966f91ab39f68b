package store

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suwandre/fundscope/internal/models"
)

func TestAppendAndObservationsSince(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	batch := []models.Observation{
		{Exchange: models.ExchangeLighter, Symbol: "BTC-USDC", Rate: 0.0001, ObservedAt: now},
		{Exchange: models.ExchangeLighter, Symbol: "ETH-USDC", Rate: -0.0002, ObservedAt: now},
		{Exchange: models.ExchangeHyena, Symbol: "BTC", Rate: 0.0003, ObservedAt: now},
	}
	require.NoError(t, s.AppendObservations(ctx, batch))

	got, err := s.ObservationsSince(ctx, models.ExchangeLighter, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ObservationsSince(ctx, models.ExchangeHyena, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BTC", got[0].Symbol)

	// Observations older than the cutoff are excluded.
	got, err = s.ObservationsSince(ctx, models.ExchangeLighter, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppendEmptyBatch(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.AppendObservations(context.Background(), nil))
}

func TestSymbolHistoryCaseInsensitiveAscending(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendObservations(ctx, []models.Observation{
		{Exchange: models.ExchangeLighter, Symbol: "ETH-USDC", Rate: 0.3, ObservedAt: base.Add(2 * time.Hour)},
		{Exchange: models.ExchangeLighter, Symbol: "ETH-USDC", Rate: 0.1, ObservedAt: base},
		{Exchange: models.ExchangeLighter, Symbol: "ETH-USDC", Rate: 0.2, ObservedAt: base.Add(time.Hour)},
		{Exchange: models.ExchangeLighter, Symbol: "BTC-USDC", Rate: 0.9, ObservedAt: base},
	}))

	got, err := s.SymbolHistory(ctx, models.ExchangeLighter, "eth-usdc", base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 0.1, got[0].Rate)
	assert.Equal(t, 0.2, got[1].Rate)
	assert.Equal(t, 0.3, got[2].Rate)

	upper, err := s.SymbolHistory(ctx, models.ExchangeLighter, "ETH-USDC", base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, got, upper)
}

func TestLeaseConflictAndRelease(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	now := time.Now().UTC()

	lease := models.Lease{Name: "lighter", Holder: "run-1", AcquiredAt: now, ExpiresAt: now.Add(30 * time.Minute)}
	ok, err := s.TryInsertLease(ctx, lease)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second insert under the same name loses.
	ok, err = s.TryInsertLease(ctx, models.Lease{Name: "lighter", Holder: "run-2", AcquiredAt: now, ExpiresAt: now.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetLease(ctx, "lighter")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.Holder)

	require.NoError(t, s.DeleteLease(ctx, "lighter"))
	_, err = s.GetLease(ctx, "lighter")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err = s.TryInsertLease(ctx, models.Lease{Name: "lighter", Holder: "run-3", AcquiredAt: now, ExpiresAt: now.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteAbsentLease(t *testing.T) {
	s := NewMemory()
	assert.NoError(t, s.DeleteLease(context.Background(), "never-acquired"))
}

func TestTryInsertLeaseConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	now := time.Now().UTC()

	const workers = 32
	var wg sync.WaitGroup
	var wins atomic.Int32

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(holder int) {
			defer wg.Done()
			ok, err := s.TryInsertLease(ctx, models.Lease{
				Name:       "lighter",
				Holder:     strconv.Itoa(holder),
				AcquiredAt: now,
				ExpiresAt:  now.Add(30 * time.Minute),
			})
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	// Exactly one goroutine may win the lease.
	assert.Equal(t, int32(1), wins.Load())
}

func TestRunStatusUpsertAndLatest(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.LatestRunStatus(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	early := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	late := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertRunStatus(ctx, models.RunStatus{
		Job: "lighter", RunID: "a", State: models.RunStateRunning, StartedAt: early,
	}))
	require.NoError(t, s.UpsertRunStatus(ctx, models.RunStatus{
		Job: "hyena", RunID: "b", State: models.RunStateRunning, StartedAt: late,
	}))

	got, err := s.LatestRunStatus(ctx, "lighter")
	require.NoError(t, err)
	assert.Equal(t, "a", got.RunID)

	// Empty job selects the most recently started run.
	got, err = s.LatestRunStatus(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "hyena", got.Job)

	// Upsert replaces the prior record for the job.
	done := late.Add(time.Minute)
	require.NoError(t, s.UpsertRunStatus(ctx, models.RunStatus{
		Job: "lighter", RunID: "a", State: models.RunStateCompleted, StartedAt: early,
		CompletedAt: &done, RecordsStored: 42,
	}))
	got, err = s.LatestRunStatus(ctx, "lighter")
	require.NoError(t, err)
	assert.Equal(t, models.RunStateCompleted, got.State)
	assert.Equal(t, 42, got.RecordsStored)
	require.NotNil(t, got.CompletedAt)

	_, err = s.LatestRunStatus(ctx, "unknown-job")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenWithoutDatabaseURLUsesMemory(t *testing.T) {
	s, err := Open(context.Background(), "", "")
	require.NoError(t, err)
	defer s.Close()

	_, ok := s.(*Memory)
	assert.True(t, ok)
	assert.NoError(t, s.Ping(context.Background()))
}
