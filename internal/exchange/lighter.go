package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultLighterBaseURL is the public Lighter mainnet API.
const DefaultLighterBaseURL = "https://mainnet.zklighter.elliot.ai/api/v1"

// LighterAdapter holds any config/state specific to Lighter.
type LighterAdapter struct {
	baseURL    string
	httpClient *http.Client
}

// Constructor function. Creates a new LighterAdapter instance. An empty
// baseURL selects the public mainnet API.
func NewLighterAdapter(baseURL string, timeout time.Duration) *LighterAdapter {
	if baseURL == "" {
		baseURL = DefaultLighterBaseURL
	}
	return &LighterAdapter{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (l *LighterAdapter) Name() string {
	return "lighter"
}

// FetchCurrentRates fetches the current funding rate for every Lighter market
// in a single call.
func (l *LighterAdapter) FetchCurrentRates(ctx context.Context) ([]RawRate, error) {
	url := fmt.Sprintf("%s/funding-rates", l.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("lighter funding rates: failed to build request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lighter funding rates request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lighter funding rates: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	items, err := decodeLighterRates(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse lighter response: %w", err)
	}

	rates := make([]RawRate, 0, len(items))
	for _, item := range items {
		rates = append(rates, RawRate{Symbol: item.Symbol, Rate: item.rateString()})
	}
	return rates, nil
}

// lighterItem matches one entry of the funding-rates response. Rate has been
// observed both as a JSON string and as a bare number, so it is decoded
// untyped and normalized by rateString.
type lighterItem struct {
	Symbol string `json:"symbol"`
	Rate   any    `json:"rate"`
}

func (i lighterItem) rateString() string {
	switch v := i.Rate.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// decodeLighterRates handles both response shapes: a bare list, or a
// {"funding_rates": [...]} wrapper.
func decodeLighterRates(body []byte) ([]lighterItem, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	var items []lighterItem
	if trimmed[0] == '[' {
		if err := decodeNumbers(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var wrapper struct {
		FundingRates []lighterItem `json:"funding_rates"`
	}
	if err := decodeNumbers(trimmed, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.FundingRates, nil
}

// decodeNumbers unmarshals with UseNumber so numeric rates keep their exact
// wire form instead of going through float64.
func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
