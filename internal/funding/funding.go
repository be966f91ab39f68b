// Package funding computes the aggregated views served by the API: windowed
// per-symbol mean rates ranked into long/short opportunity lists, and
// per-symbol history.
package funding

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/suwandre/fundscope/internal/models"
	"github.com/suwandre/fundscope/internal/store"
)

// hoursPerYear annualizes an hourly funding rate: rate * 24 * 365.
const hoursPerYear = 24 * 365

type Service struct {
	store store.Store
}

func New(s store.Store) *Service {
	return &Service{store: s}
}

// TopOpportunities aggregates the observations of the last window into one
// mean rate per symbol and ranks them both ways: TopLong ascending (most
// negative first), TopShort descending. An empty window yields empty lists,
// never an error.
func (s *Service) TopOpportunities(ctx context.Context, ex models.Exchange, window time.Duration) (models.Opportunities, error) {
	now := time.Now().UTC()

	out := models.Opportunities{
		TopLong:         []models.SymbolRate{},
		TopShort:        []models.SymbolRate{},
		Timestamp:       now,
		NextFundingTime: NextFundingTime(now),
	}

	obs, err := s.store.ObservationsSince(ctx, ex, now.Add(-window))
	if err != nil {
		return out, err
	}

	type bucket struct {
		sum float64
		n   int
	}
	buckets := make(map[string]*bucket)
	for _, o := range obs {
		// Rates are validated at ingest, but re-check so a corrupt row can
		// never leak into a response.
		if math.IsNaN(o.Rate) || math.IsInf(o.Rate, 0) {
			continue
		}
		symbol := strings.ToUpper(o.Symbol)
		b, ok := buckets[symbol]
		if !ok {
			b = &bucket{}
			buckets[symbol] = b
		}
		b.sum += o.Rate
		b.n++
	}

	ranked := make([]models.SymbolRate, 0, len(buckets))
	for symbol, b := range buckets {
		mean := b.sum / float64(b.n)
		annualized := mean * hoursPerYear
		if math.IsNaN(annualized) || math.IsInf(annualized, 0) {
			continue
		}
		ranked = append(ranked, models.SymbolRate{
			Symbol:         symbol,
			AverageRate:    mean,
			AnnualizedRate: annualized,
		})
	}

	out.TopLong = sortRanked(ranked, false)
	out.TopShort = sortRanked(ranked, true)
	return out, nil
}

// sortRanked orders a copy of the ranked set by mean rate, ties broken by
// symbol so responses are deterministic.
func sortRanked(ranked []models.SymbolRate, descending bool) []models.SymbolRate {
	out := make([]models.SymbolRate, len(ranked))
	copy(out, ranked)
	sort.Slice(out, func(i, j int) bool {
		if out[i].AverageRate != out[j].AverageRate {
			if descending {
				return out[i].AverageRate > out[j].AverageRate
			}
			return out[i].AverageRate < out[j].AverageRate
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// History returns a symbol's observations over the window, oldest first.
// Symbol matching is case-insensitive; the points echo the canonical
// uppercase form.
func (s *Service) History(ctx context.Context, ex models.Exchange, symbol string, window time.Duration) ([]models.HistoryPoint, error) {
	now := time.Now().UTC()

	obs, err := s.store.SymbolHistory(ctx, ex, symbol, now.Add(-window))
	if err != nil {
		return []models.HistoryPoint{}, err
	}

	points := make([]models.HistoryPoint, 0, len(obs))
	for _, o := range obs {
		if math.IsNaN(o.Rate) || math.IsInf(o.Rate, 0) {
			continue
		}
		points = append(points, models.HistoryPoint{
			Symbol:    strings.ToUpper(o.Symbol),
			Rate:      o.Rate,
			Timestamp: o.ObservedAt,
		})
	}
	return points, nil
}

// NextFundingTime is the next whole UTC hour after now; perp venues here fund
// hourly on the hour.
func NextFundingTime(now time.Time) time.Time {
	return now.UTC().Truncate(time.Hour).Add(time.Hour)
}
