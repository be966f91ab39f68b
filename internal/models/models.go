package models

import (
	"fmt"
	"strings"
	"time"
)

// Exchange identifies one of the tracked perpetual-futures venues.
type Exchange string

const (
	ExchangeLighter Exchange = "lighter"
	ExchangeHyena   Exchange = "hyena"
)

// ParseExchange maps a venue name (any case) to its Exchange constant.
func ParseExchange(s string) (Exchange, error) {
	switch strings.ToLower(s) {
	case string(ExchangeLighter):
		return ExchangeLighter, nil
	case string(ExchangeHyena):
		return ExchangeHyena, nil
	default:
		return "", fmt.Errorf("unknown exchange %q", s)
	}
}

// Observation is a single persisted funding-rate sample. Observations are
// immutable once written; Rate is always finite by the time it reaches the store.
type Observation struct {
	Exchange   Exchange  `json:"exchange"`
	Symbol     string    `json:"symbol"`
	Rate       float64   `json:"rate"`
	ObservedAt time.Time `json:"observed_at"`
}

// RunState is the lifecycle state of a collection run.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// RunStatus is the last-run record for a collection job. One mutable record
// per job name, overwritten on every state transition.
type RunStatus struct {
	Job           string     `json:"job"`
	RunID         string     `json:"run_id"`
	State         RunState   `json:"state"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Error         string     `json:"error,omitempty"`
	RecordsStored int        `json:"records_stored"`
}

// Lease is an exclusively-held run marker with an explicit expiry. A lease
// whose ExpiresAt has passed may be reclaimed by the next run.
type Lease struct {
	Name       string    `json:"name"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lease is stale as of now.
func (l Lease) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// SymbolRate is one ranked entry in an opportunities response.
type SymbolRate struct {
	Symbol         string  `json:"symbol"`
	AverageRate    float64 `json:"average_rate"`
	AnnualizedRate float64 `json:"annualized_rate"`
}

// Opportunities is the aggregated view served by the funding-rate endpoints.
// TopLong ranks symbols ascending by average rate (most negative first: shorts
// pay longs), TopShort descending (longs pay shorts). Both hold the same
// symbol set.
type Opportunities struct {
	TopLong         []SymbolRate `json:"top_long"`
	TopShort        []SymbolRate `json:"top_short"`
	Timestamp       time.Time    `json:"timestamp"`
	NextFundingTime time.Time    `json:"next_funding_time"`
}

// HistoryPoint is one observation in a per-symbol history response.
type HistoryPoint struct {
	Symbol    string    `json:"symbol"`
	Rate      float64   `json:"rate"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse is the payload of the status endpoint. When no run has been
// recorded yet only Status is set ({"status":"idle"}).
type StatusResponse struct {
	Job           string     `json:"job,omitempty"`
	RunID         string     `json:"run_id,omitempty"`
	Status        RunState   `json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Error         string     `json:"error,omitempty"`
	RecordsStored *int       `json:"records_stored,omitempty"`
}
