package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLighterFetchBareList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/funding-rates", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		// Rates arrive both as strings and as bare numbers.
		w.Write([]byte(`[
			{"symbol": "BTC-USDC", "rate": "0.0001"},
			{"symbol": "ETH-USDC", "rate": -0.0002}
		]`))
	}))
	defer srv.Close()

	adapter := NewLighterAdapter(srv.URL, 5*time.Second)
	rates, err := adapter.FetchCurrentRates(context.Background())
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, RawRate{Symbol: "BTC-USDC", Rate: "0.0001"}, rates[0])
	assert.Equal(t, RawRate{Symbol: "ETH-USDC", Rate: "-0.0002"}, rates[1])
}

func TestLighterFetchWrappedObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"funding_rates": [{"symbol": "SOL-USDC", "rate": "0.00005"}]}`))
	}))
	defer srv.Close()

	adapter := NewLighterAdapter(srv.URL, 5*time.Second)
	rates, err := adapter.FetchCurrentRates(context.Background())
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "SOL-USDC", rates[0].Symbol)
	assert.Equal(t, "0.00005", rates[0].Rate)
}

func TestLighterMissingRateBecomesEmptyString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol": "ARB-USDC"}]`))
	}))
	defer srv.Close()

	adapter := NewLighterAdapter(srv.URL, 5*time.Second)
	rates, err := adapter.FetchCurrentRates(context.Background())
	require.NoError(t, err)
	require.Len(t, rates, 1)
	// Ingestion rejects the empty rate downstream; the client just reports it.
	assert.Equal(t, "", rates[0].Rate)
}

func TestLighterUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	adapter := NewLighterAdapter(srv.URL, 5*time.Second)
	_, err := adapter.FetchCurrentRates(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
}

func TestLighterMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	adapter := NewLighterAdapter(srv.URL, 5*time.Second)
	_, err := adapter.FetchCurrentRates(context.Background())
	require.Error(t, err)
}

func TestLighterDefaultBaseURL(t *testing.T) {
	adapter := NewLighterAdapter("", 5*time.Second)
	assert.Equal(t, DefaultLighterBaseURL, adapter.baseURL)
	assert.Equal(t, "lighter", adapter.Name())
}
