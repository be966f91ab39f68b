package handlers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/suwandre/fundscope/internal/store"
)

type HealthHandler struct {
	store store.Store
}

func NewHealthHandler(s store.Store) *HealthHandler {
	return &HealthHandler{s}
}

// Handles GET /healthz.
func (h *HealthHandler) GetHealth(c fiber.Ctx) error {
	if err := h.store.Ping(c.Context()); err != nil {
		log.Warn().Err(err).Msg("health check: store unreachable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "ok",
	})
}
