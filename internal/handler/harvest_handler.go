package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/arena-go-api/internal/dto"
	"github.com/noah-isme/arena-go-api/internal/service"
	"github.com/noah-isme/arena-go-api/internal/utils"
)

// HarvestHandler exposes the repository ingestion endpoint.
type HarvestHandler struct {
	service   service.HarvestService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewHarvestHandler constructs the handler.
func NewHarvestHandler(service service.HarvestService, validator *validator.Validate, logger zerolog.Logger) *HarvestHandler {
	return &HarvestHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "harvest_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *HarvestHandler) Register(router fiber.Router) {
	router.Post("", h.harvest)
}

func (h *HarvestHandler) harvest(c *fiber.Ctx) error {
	var payload dto.HarvestRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "missing required field", err.Error())
	}

	response, err := h.service.Harvest(c.Context(), payload.RepoURL, payload.FolderName)
	if err != nil {
		return h.handleError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (h *HarvestHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidRepoURL):
		return utils.SendError(c, fiber.StatusBadRequest, "invalid repository url", "expected https://github.com/{owner}/{repo}")
	case errors.Is(err, service.ErrUpstreamUnavailable):
		return utils.SendError(c, fiber.StatusBadRequest, "repository fetch failed", "hosting api rejected the request")
	case errors.Is(err, service.ErrStorageWrite):
		return utils.SendError(c, fiber.StatusBadRequest, "storage write failed")
	default:
		h.logger.Error().Err(err).Msg("harvest failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
