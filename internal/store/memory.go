package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/suwandre/fundscope/internal/models"
)

// Memory is an in-process Store used when no database is configured, and as
// the backing store in tests. Safe for concurrent use.
type Memory struct {
	mu           sync.RWMutex
	observations []models.Observation
	leases       map[string]models.Lease
	statuses     map[string]models.RunStatus
}

func NewMemory() *Memory {
	return &Memory{
		leases:   make(map[string]models.Lease),
		statuses: make(map[string]models.RunStatus),
	}
}

func (m *Memory) AppendObservations(ctx context.Context, batch []models.Observation) error {
	if len(batch) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations = append(m.observations, batch...)
	return nil
}

func (m *Memory) ObservationsSince(ctx context.Context, exchange models.Exchange, since time.Time) ([]models.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Observation, 0)
	for _, obs := range m.observations {
		if obs.Exchange == exchange && !obs.ObservedAt.Before(since) {
			out = append(out, obs)
		}
	}
	return out, nil
}

func (m *Memory) SymbolHistory(ctx context.Context, exchange models.Exchange, symbol string, since time.Time) ([]models.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Observation, 0)
	for _, obs := range m.observations {
		if obs.Exchange == exchange && strings.EqualFold(obs.Symbol, symbol) && !obs.ObservedAt.Before(since) {
			out = append(out, obs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}

func (m *Memory) TryInsertLease(ctx context.Context, lease models.Lease) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.leases[lease.Name]; exists {
		return false, nil
	}
	m.leases[lease.Name] = lease
	return true, nil
}

func (m *Memory) GetLease(ctx context.Context, name string) (*models.Lease, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lease, ok := m.leases[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &lease, nil
}

func (m *Memory) DeleteLease(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leases, name)
	return nil
}

func (m *Memory) UpsertRunStatus(ctx context.Context, status models.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status.Job] = status
	return nil
}

func (m *Memory) LatestRunStatus(ctx context.Context, job string) (*models.RunStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if job != "" {
		status, ok := m.statuses[job]
		if !ok {
			return nil, ErrNotFound
		}
		return &status, nil
	}

	var latest *models.RunStatus
	for j := range m.statuses {
		status := m.statuses[j]
		if latest == nil || status.StartedAt.After(latest.StartedAt) {
			latest = &status
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
