package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/suwandre/fundscope/internal/models"
	"github.com/suwandre/fundscope/internal/runlock"
	"github.com/suwandre/fundscope/internal/store"
)

type StatusHandler struct {
	coord *runlock.Coordinator
}

func NewStatusHandler(coord *runlock.Coordinator) *StatusHandler {
	return &StatusHandler{coord}
}

// Handles GET /api/status. Without ?job= it reports the most recently
// started run across all jobs; before any run has happened it answers idle.
func (h *StatusHandler) GetStatus(c fiber.Ctx) error {
	job := c.Query("job")

	status, err := h.coord.ReadStatus(c.Context(), job)
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusOK).JSON(models.StatusResponse{Status: models.RunStateIdle})
	}
	if err != nil {
		log.Error().Err(err).Str("job", job).Msg("status lookup failed")
		return c.Status(fiber.StatusInternalServerError).JSON(models.StatusResponse{Status: models.RunStateIdle})
	}

	return c.Status(fiber.StatusOK).JSON(models.StatusResponse{
		Job:           status.Job,
		RunID:         status.RunID,
		Status:        status.State,
		StartedAt:     &status.StartedAt,
		CompletedAt:   status.CompletedAt,
		Error:         status.Error,
		RecordsStored: &status.RecordsStored,
	})
}
