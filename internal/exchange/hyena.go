package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// HyENA is a builder-deployed perp dex on Hyperliquid, so its funding data is
// served by the standard Hyperliquid info endpoint with a "dex" parameter.
// Coins come back prefixed ("hyna:BTC") and are stripped for display.
const (
	DefaultHyperliquidAPIURL = "https://api.hyperliquid.xyz/info"
	hyenaDexName             = "hyna"
	hyenaCoinPrefix          = "hyna:"
)

// fallbackCoins keeps collection alive when universe discovery fails.
var fallbackCoins = []string{"hyna:BTC", "hyna:ETH", "hyna:SOL", "hyna:HYPE"}

// HyenaConfig carries the knobs for the HyENA client. Zero values select the
// public API with its documented limits.
type HyenaConfig struct {
	APIURL             string
	Timeout            time.Duration
	MinRequestInterval time.Duration
	Lookback           time.Duration
	QuickLimit         int
}

// HyenaAdapter holds any config/state specific to HyENA. All outbound calls
// share one rate limiter so consecutive requests keep the minimum interval.
type HyenaAdapter struct {
	apiURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
	lookback   time.Duration
	quickLimit int
}

// Constructor function. Creates a new HyenaAdapter instance.
func NewHyenaAdapter(cfg HyenaConfig) *HyenaAdapter {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultHyperliquidAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MinRequestInterval <= 0 {
		cfg.MinRequestInterval = 500 * time.Millisecond
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 72 * time.Hour
	}
	if cfg.QuickLimit <= 0 {
		cfg.QuickLimit = 50
	}
	return &HyenaAdapter{
		apiURL: cfg.APIURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:    rate.NewLimiter(rate.Every(cfg.MinRequestInterval), 1),
		lookback:   cfg.Lookback,
		quickLimit: cfg.QuickLimit,
	}
}

func (h *HyenaAdapter) Name() string {
	return "hyena"
}

// FetchCurrentRates walks the full HyENA universe, averaging each coin's
// funding history over the lookback window. One RawRate per coin with data.
func (h *HyenaAdapter) FetchCurrentRates(ctx context.Context) ([]RawRate, error) {
	return h.fetchRates(ctx, 0)
}

// FetchQuickRates is the low-latency variant: only the first coins of the
// universe, for request-path callers that cannot wait out the full walk.
func (h *HyenaAdapter) FetchQuickRates(ctx context.Context) ([]RawRate, error) {
	return h.fetchRates(ctx, h.quickLimit)
}

func (h *HyenaAdapter) fetchRates(ctx context.Context, limit int) ([]RawRate, error) {
	coins, err := h.universe(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(coins) > limit {
		coins = coins[:limit]
	}

	now := time.Now().UTC()
	start := now.Add(-h.lookback)
	log.Info().Int("coins", len(coins)).Msg("fetching hyena funding history")

	rates := make([]RawRate, 0, len(coins))
	for _, coin := range coins {
		records, err := h.fundingHistory(ctx, coin, start, now)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("hyena funding history aborted: %w", ctx.Err())
			}
			log.Warn().Err(err).Str("coin", coin).Msg("skipping coin, funding history failed")
			continue
		}

		avg, ok := averageFundingRate(records)
		if !ok {
			log.Debug().Str("coin", coin).Msg("no valid funding data for coin")
			continue
		}

		rates = append(rates, RawRate{
			Symbol: displaySymbol(coin),
			Rate:   strconv.FormatFloat(avg, 'f', -1, 64),
		})
	}
	return rates, nil
}

// universe discovers the active HyENA coins. Discovery failure falls back to
// a known coin list rather than failing the whole run; only context
// cancellation aborts.
func (h *HyenaAdapter) universe(ctx context.Context) ([]string, error) {
	body, err := h.post(ctx, map[string]any{"type": "meta", "dex": hyenaDexName})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("hyena universe aborted: %w", ctx.Err())
		}
		log.Error().Err(err).Msg("failed to load hyena universe, using fallback coins")
		return fallbackCoins, nil
	}

	var meta struct {
		Universe []struct {
			Name       string `json:"name"`
			IsDelisted bool   `json:"isDelisted"`
		} `json:"universe"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		log.Error().Err(err).Msg("failed to parse hyena universe, using fallback coins")
		return fallbackCoins, nil
	}

	coins := make([]string, 0, len(meta.Universe))
	for _, entry := range meta.Universe {
		if entry.Name == "" || entry.IsDelisted {
			continue
		}
		coins = append(coins, entry.Name)
	}

	if len(coins) == 0 {
		log.Warn().Msg("no active coins found in hyena dex")
	} else {
		log.Info().Int("count", len(coins)).Msg("loaded active hyena coins")
	}
	return coins, nil
}

// fundingHistory fetches one coin's funding records over [start, end].
func (h *HyenaAdapter) fundingHistory(ctx context.Context, coin string, start, end time.Time) ([]hyenaFundingRecord, error) {
	body, err := h.post(ctx, map[string]any{
		"type":      "fundingHistory",
		"coin":      coin,
		"startTime": start.UnixMilli(),
		"endTime":   end.UnixMilli(),
	})
	if err != nil {
		return nil, err
	}

	var records []hyenaFundingRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to parse funding history for %s: %w", coin, err)
	}
	return records, nil
}

type hyenaFundingRecord struct {
	Coin        string `json:"coin"`
	FundingRate string `json:"fundingRate"`
	Time        int64  `json:"time"`
}

// averageFundingRate is the simple mean of the parseable rates. ok is false
// when no record yields a usable number.
func averageFundingRate(records []hyenaFundingRecord) (float64, bool) {
	var sum float64
	var n int
	for _, rec := range records {
		rate, err := strconv.ParseFloat(rec.FundingRate, 64)
		if err != nil {
			continue
		}
		sum += rate
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// displaySymbol converts "hyna:BTC" to "BTC".
func displaySymbol(coin string) string {
	return strings.TrimPrefix(coin, hyenaCoinPrefix)
}

// post sends one rate-limited info request.
func (h *HyenaAdapter) post(ctx context.Context, payload map[string]any) ([]byte, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("hyena rate limiter: %w", err)
	}

	reqJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("hyena: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.apiURL, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("hyena: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hyena request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hyena: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// quickHyena presents quick mode through the RateFetcher interface.
type quickHyena struct {
	*HyenaAdapter
}

func (q quickHyena) FetchCurrentRates(ctx context.Context) ([]RawRate, error) {
	return q.FetchQuickRates(ctx)
}

// Quick returns a RateFetcher view of the adapter that fetches in quick mode.
func (h *HyenaAdapter) Quick() RateFetcher {
	return quickHyena{h}
}
