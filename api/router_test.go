package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suwandre/fundscope/api/handlers"
	"github.com/suwandre/fundscope/internal/cache"
	"github.com/suwandre/fundscope/internal/funding"
	"github.com/suwandre/fundscope/internal/models"
	"github.com/suwandre/fundscope/internal/runlock"
	"github.com/suwandre/fundscope/internal/store"
)

func testWindows() handlers.Windows {
	return handlers.Windows{
		Lighter:  48 * time.Hour,
		Hyena:    72 * time.Hour,
		History:  7 * 24 * time.Hour,
		CacheTTL: time.Minute,
	}
}

func newTestApp(s store.Store) *fiber.App {
	app := fiber.New()
	SetupRoutes(app, Deps{
		Store:   s,
		Funding: funding.New(s),
		Locks:   runlock.New(s, 30*time.Minute),
		Cache:   cache.NewMemory(),
		Windows: testWindows(),
	})
	return app
}

func seedObservation(t *testing.T, s store.Store, ex models.Exchange, symbol string, rate float64) {
	t.Helper()
	require.NoError(t, s.AppendObservations(context.Background(), []models.Observation{{
		Exchange:   ex,
		Symbol:     symbol,
		Rate:       rate,
		ObservedAt: time.Now().UTC().Add(-time.Minute),
	}}))
}

func getJSON(t *testing.T, app *fiber.App, path string) (int, map[string]any, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp.StatusCode, body, string(raw)
}

func TestFundingRatesEndpoint(t *testing.T) {
	s := store.NewMemory()
	seedObservation(t, s, models.ExchangeLighter, "BTC-USDC", 0.0001)
	seedObservation(t, s, models.ExchangeLighter, "ETH-USDC", -0.0002)
	app := newTestApp(s)

	status, body, _ := getJSON(t, app, "/api/funding_rates")
	require.Equal(t, fiber.StatusOK, status)

	topLong, ok := body["top_long"].([]any)
	require.True(t, ok)
	require.Len(t, topLong, 2)

	first := topLong[0].(map[string]any)
	assert.Equal(t, "ETH-USDC", first["symbol"])
	assert.InDelta(t, -0.0002, first["average_rate"].(float64), 1e-12)
	assert.InDelta(t, -1.752, first["annualized_rate"].(float64), 1e-9)

	topShort := body["top_short"].([]any)
	assert.Equal(t, "BTC-USDC", topShort[0].(map[string]any)["symbol"])

	// ISO-8601 UTC with a literal Z.
	assert.True(t, strings.HasSuffix(body["timestamp"].(string), "Z"))
	next := body["next_funding_time"].(string)
	assert.True(t, strings.HasSuffix(next, "Z"))
	parsed, err := time.Parse(time.RFC3339, next)
	require.NoError(t, err)
	assert.Zero(t, parsed.Minute())
	assert.Zero(t, parsed.Second())
}

func TestFundingRatesEmptyWindow(t *testing.T) {
	app := newTestApp(store.NewMemory())

	status, body, raw := getJSON(t, app, "/api/funding_rates")
	assert.Equal(t, fiber.StatusOK, status)

	// Empty arrays, never null, never an error.
	topLong, ok := body["top_long"].([]any)
	require.True(t, ok, "top_long must be an array: %s", raw)
	assert.Empty(t, topLong)
	topShort, ok := body["top_short"].([]any)
	require.True(t, ok)
	assert.Empty(t, topShort)
	assert.NotEmpty(t, body["timestamp"])
}

func TestHyenaRatesAreIsolatedPerVenue(t *testing.T) {
	s := store.NewMemory()
	seedObservation(t, s, models.ExchangeLighter, "BTC-USDC", 0.0001)
	seedObservation(t, s, models.ExchangeHyena, "HYPE", 0.0005)
	app := newTestApp(s)

	status, body, _ := getJSON(t, app, "/api/hyena/funding_rates")
	require.Equal(t, fiber.StatusOK, status)

	topLong := body["top_long"].([]any)
	require.Len(t, topLong, 1)
	assert.Equal(t, "HYPE", topLong[0].(map[string]any)["symbol"])
}

func TestHistoryEndpointCaseInsensitive(t *testing.T) {
	s := store.NewMemory()
	require.NoError(t, s.AppendObservations(context.Background(), []models.Observation{
		{Exchange: models.ExchangeLighter, Symbol: "ETH-USDC", Rate: 0.1, ObservedAt: time.Now().UTC().Add(-2 * time.Hour)},
		{Exchange: models.ExchangeLighter, Symbol: "ETH-USDC", Rate: 0.2, ObservedAt: time.Now().UTC().Add(-time.Hour)},
	}))
	app := newTestApp(s)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/funding_rates/eth-usdc", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var points []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&points))
	require.Len(t, points, 2)

	// Oldest first, symbol normalized to uppercase, Z-suffixed timestamps.
	assert.Equal(t, "ETH-USDC", points[0]["symbol"])
	assert.InDelta(t, 0.1, points[0]["rate"].(float64), 1e-12)
	assert.InDelta(t, 0.2, points[1]["rate"].(float64), 1e-12)
	assert.True(t, strings.HasSuffix(points[0]["timestamp"].(string), "Z"))
}

func TestHistoryUnknownSymbolIsEmptyArray(t *testing.T) {
	app := newTestApp(store.NewMemory())

	resp, err := app.Test(httptest.NewRequest("GET", "/api/funding_rates/NOPE-USDC", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(raw)))
}

func TestStatusIdleBeforeAnyRun(t *testing.T) {
	app := newTestApp(store.NewMemory())

	status, body, raw := getJSON(t, app, "/api/status")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "idle", body["status"])
	assert.NotContains(t, raw, "started_at")
	assert.NotContains(t, raw, "run_id")
}

func TestStatusReportsLastRun(t *testing.T) {
	s := store.NewMemory()
	app := newTestApp(s)

	done := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)
	require.NoError(t, s.UpsertRunStatus(context.Background(), models.RunStatus{
		Job:           "lighter",
		RunID:         "run-1",
		State:         models.RunStateCompleted,
		StartedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		CompletedAt:   &done,
		RecordsStored: 12,
	}))

	status, body, _ := getJSON(t, app, "/api/status")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "lighter", body["job"])
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "2025-06-01T12:00:00Z", body["started_at"])
	assert.Equal(t, float64(12), body["records_stored"])
}

func TestStatusJobFilter(t *testing.T) {
	s := store.NewMemory()
	app := newTestApp(s)
	ctx := context.Background()

	require.NoError(t, s.UpsertRunStatus(ctx, models.RunStatus{
		Job: "lighter", RunID: "a", State: models.RunStateCompleted,
		StartedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, s.UpsertRunStatus(ctx, models.RunStatus{
		Job: "hyena", RunID: "b", State: models.RunStateFailed,
		StartedAt: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC), Error: "venue down",
	}))

	// Unfiltered: most recently started wins.
	_, body, _ := getJSON(t, app, "/api/status")
	assert.Equal(t, "hyena", body["job"])
	assert.Equal(t, "venue down", body["error"])

	_, body, _ = getJSON(t, app, "/api/status?job=lighter")
	assert.Equal(t, "lighter", body["job"])
	assert.Equal(t, "completed", body["status"])
}

func TestHealthz(t *testing.T) {
	status, body, _ := getJSON(t, newTestApp(store.NewMemory()), "/healthz")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestOpportunitiesServedFromCache(t *testing.T) {
	s := store.NewMemory()
	seedObservation(t, s, models.ExchangeLighter, "BTC-USDC", 0.0001)
	app := newTestApp(s)

	_, first, _ := getJSON(t, app, "/api/funding_rates")
	require.Len(t, first["top_long"], 1)

	// New data lands, but the rendered payload is still cached.
	seedObservation(t, s, models.ExchangeLighter, "ETH-USDC", -0.0002)
	_, second, _ := getJSON(t, app, "/api/funding_rates")
	assert.Len(t, second["top_long"], 1)
}

type brokenReadStore struct {
	store.Store
}

func (b *brokenReadStore) ObservationsSince(ctx context.Context, ex models.Exchange, since time.Time) ([]models.Observation, error) {
	return nil, errors.New("read failed")
}

func TestFundingRatesDegradedOnStoreFailure(t *testing.T) {
	app := newTestApp(&brokenReadStore{Store: store.NewMemory()})

	status, body, _ := getJSON(t, app, "/api/funding_rates")
	assert.Equal(t, fiber.StatusInternalServerError, status)

	// Degraded payload keeps the response shape.
	topLong, ok := body["top_long"].([]any)
	require.True(t, ok)
	assert.Empty(t, topLong)
	assert.NotEmpty(t, body["timestamp"])
}
