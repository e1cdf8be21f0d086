package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/arena-go-api/internal/dto"
	"github.com/noah-isme/arena-go-api/internal/service"
	"github.com/noah-isme/arena-go-api/internal/utils"
	"github.com/noah-isme/arena-go-api/pkg/ai"
)

// GradeHandler exposes the submission grading endpoint.
type GradeHandler struct {
	service   service.GradeService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGradeHandler constructs the handler.
func NewGradeHandler(service service.GradeService, validator *validator.Validate, logger zerolog.Logger) *GradeHandler {
	return &GradeHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "grade_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *GradeHandler) Register(router fiber.Router) {
	router.Post("", h.grade)
}

func (h *GradeHandler) grade(c *fiber.Ctx) error {
	var payload dto.GradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "missing required field", err.Error())
	}

	evaluation, err := h.service.Grade(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.GradeResponse{Success: true, Evaluation: evaluation})
}

func (h *GradeHandler) handleError(c *fiber.Ctx, err error) error {
	var malformed *ai.MalformedResponseError
	switch {
	case errors.Is(err, service.ErrEmptyFileSet):
		return utils.SendError(c, fiber.StatusBadRequest, "no files found for evaluation", "harvest the repository first")
	case errors.Is(err, ai.ErrTruncated):
		return utils.SendError(c, fiber.StatusBadRequest, "submission too large to evaluate", "reduce the harvested file set")
	case errors.As(err, &malformed):
		return utils.SendError(c, fiber.StatusBadRequest, "model returned an unusable response")
	case errors.Is(err, service.ErrModelUnavailable), errors.Is(err, service.ErrGraderUnavailable):
		return utils.SendError(c, fiber.StatusBadRequest, "evaluation model unavailable", "retry with backoff")
	default:
		h.logger.Error().Err(err).Msg("grading failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
