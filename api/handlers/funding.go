package handlers

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/suwandre/fundscope/internal/cache"
	"github.com/suwandre/fundscope/internal/funding"
	"github.com/suwandre/fundscope/internal/models"
)

// Windows bundles the read-side tuning: aggregation window per venue, the
// history lookback, and how long rendered opportunity payloads may be cached.
type Windows struct {
	Lighter  time.Duration
	Hyena    time.Duration
	History  time.Duration
	CacheTTL time.Duration
}

type FundingHandler struct {
	svc     *funding.Service
	cache   cache.Cacher
	windows Windows
}

func NewFundingHandler(svc *funding.Service, c cache.Cacher, w Windows) *FundingHandler {
	return &FundingHandler{svc, c, w}
}

// Handles GET /api/funding_rates.
func (h *FundingHandler) GetLighterRates(c fiber.Ctx) error {
	return h.opportunities(c, models.ExchangeLighter, h.windows.Lighter)
}

// Handles GET /api/hyena/funding_rates.
func (h *FundingHandler) GetHyenaRates(c fiber.Ctx) error {
	return h.opportunities(c, models.ExchangeHyena, h.windows.Hyena)
}

// Handles GET /api/funding_rates/:symbol.
func (h *FundingHandler) GetLighterHistory(c fiber.Ctx) error {
	return h.history(c, models.ExchangeLighter)
}

// Handles GET /api/hyena/funding_rates/:symbol.
func (h *FundingHandler) GetHyenaHistory(c fiber.Ctx) error {
	return h.history(c, models.ExchangeHyena)
}

func (h *FundingHandler) opportunities(c fiber.Ctx, ex models.Exchange, window time.Duration) error {
	key := "opportunities:" + string(ex)

	if cached, err := h.cache.Get(c.Context(), key); err == nil {
		c.Type("json")
		return c.Status(fiber.StatusOK).Send(cached)
	}

	out, err := h.svc.TopOpportunities(c.Context(), ex, window)
	if err != nil {
		log.Error().Err(err).Str("exchange", string(ex)).Msg("aggregation failed")
		// Degraded payload: empty lists, valid timestamps.
		return c.Status(fiber.StatusInternalServerError).JSON(out)
	}

	if body, err := json.Marshal(out); err == nil {
		if err := h.cache.Set(c.Context(), key, body, h.windows.CacheTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}

	return c.Status(fiber.StatusOK).JSON(out)
}

func (h *FundingHandler) history(c fiber.Ctx, ex models.Exchange) error {
	symbol := strings.ToUpper(c.Params("symbol"))
	if symbol == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "symbol parameter is required",
		})
	}

	points, err := h.svc.History(c.Context(), ex, symbol, h.windows.History)
	if err != nil {
		log.Error().Err(err).Str("exchange", string(ex)).Str("symbol", symbol).Msg("history lookup failed")
		return c.Status(fiber.StatusInternalServerError).JSON([]models.HistoryPoint{})
	}

	return c.Status(fiber.StatusOK).JSON(points)
}
