package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/suwandre/fundscope/internal/models"
)

// Postgres is the database-backed Store. One row per observation; leases and
// per-job status live in their own tables and rely on primary-key conflicts
// for atomicity.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool against the given URL and verifies it
// with a ping.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	return &Postgres{db: db}, nil
}

// DB exposes the underlying pool for migrations.
func (p *Postgres) DB() *sql.DB { return p.db }

func (p *Postgres) AppendObservations(ctx context.Context, batch []models.Observation) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin observation batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO funding_rates (exchange, symbol, rate, observed_at)
		VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("prepare observation insert: %w", err)
	}
	defer stmt.Close()

	for _, obs := range batch {
		if _, err := stmt.ExecContext(ctx, string(obs.Exchange), obs.Symbol, obs.Rate, obs.ObservedAt.UTC()); err != nil {
			return fmt.Errorf("insert observation %s/%s: %w", obs.Exchange, obs.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit observation batch: %w", err)
	}
	return nil
}

func (p *Postgres) ObservationsSince(ctx context.Context, exchange models.Exchange, since time.Time) ([]models.Observation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT exchange, symbol, rate, observed_at
		FROM funding_rates
		WHERE exchange = $1 AND observed_at >= $2`,
		string(exchange), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

func (p *Postgres) SymbolHistory(ctx context.Context, exchange models.Exchange, symbol string, since time.Time) ([]models.Observation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT exchange, symbol, rate, observed_at
		FROM funding_rates
		WHERE exchange = $1 AND LOWER(symbol) = LOWER($2) AND observed_at >= $3
		ORDER BY observed_at ASC`,
		string(exchange), symbol, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query symbol history: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

func scanObservations(rows *sql.Rows) ([]models.Observation, error) {
	out := make([]models.Observation, 0)
	for rows.Next() {
		var obs models.Observation
		var exchange string
		if err := rows.Scan(&exchange, &obs.Symbol, &obs.Rate, &obs.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		obs.Exchange = models.Exchange(exchange)
		obs.ObservedAt = obs.ObservedAt.UTC()
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return out, nil
}

func (p *Postgres) TryInsertLease(ctx context.Context, lease models.Lease) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO run_locks (name, holder, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING`,
		lease.Name, lease.Holder, lease.AcquiredAt.UTC(), lease.ExpiresAt.UTC())
	if err != nil {
		return false, fmt.Errorf("insert lease %s: %w", lease.Name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("lease rows affected: %w", err)
	}
	return n == 1, nil
}

func (p *Postgres) GetLease(ctx context.Context, name string) (*models.Lease, error) {
	var lease models.Lease
	err := p.db.QueryRowContext(ctx, `
		SELECT name, holder, acquired_at, expires_at
		FROM run_locks
		WHERE name = $1`, name).
		Scan(&lease.Name, &lease.Holder, &lease.AcquiredAt, &lease.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lease %s: %w", name, err)
	}
	lease.AcquiredAt = lease.AcquiredAt.UTC()
	lease.ExpiresAt = lease.ExpiresAt.UTC()
	return &lease, nil
}

func (p *Postgres) DeleteLease(ctx context.Context, name string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM run_locks WHERE name = $1`, name); err != nil {
		return fmt.Errorf("delete lease %s: %w", name, err)
	}
	return nil
}

func (p *Postgres) UpsertRunStatus(ctx context.Context, status models.RunStatus) error {
	var completedAt sql.NullTime
	if status.CompletedAt != nil {
		completedAt = sql.NullTime{Time: status.CompletedAt.UTC(), Valid: true}
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO run_status (job, run_id, state, started_at, completed_at, error, records_stored)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			state = EXCLUDED.state,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			error = EXCLUDED.error,
			records_stored = EXCLUDED.records_stored`,
		status.Job, status.RunID, string(status.State), status.StartedAt.UTC(), completedAt, status.Error, status.RecordsStored)
	if err != nil {
		return fmt.Errorf("upsert run status %s: %w", status.Job, err)
	}
	return nil
}

func (p *Postgres) LatestRunStatus(ctx context.Context, job string) (*models.RunStatus, error) {
	query := `
		SELECT job, run_id, state, started_at, completed_at, error, records_stored
		FROM run_status`
	args := []any{}
	if job != "" {
		query += ` WHERE job = $1`
		args = append(args, job)
	} else {
		query += ` ORDER BY started_at DESC LIMIT 1`
	}

	var status models.RunStatus
	var state string
	var completedAt sql.NullTime
	err := p.db.QueryRowContext(ctx, query, args...).
		Scan(&status.Job, &status.RunID, &state, &status.StartedAt, &completedAt, &status.Error, &status.RecordsStored)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run status: %w", err)
	}

	status.State = models.RunState(state)
	status.StartedAt = status.StartedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		status.CompletedAt = &t
	}
	return &status, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
