package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/arena-go-api/internal/config"
	"github.com/noah-isme/arena-go-api/internal/handler"
	"github.com/noah-isme/arena-go-api/internal/middleware"
	"github.com/noah-isme/arena-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	HarvestHandler    *handler.HarvestHandler
	GradeHandler      *handler.GradeHandler
	SubmissionHandler *handler.SubmissionHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	// Each harvest walks an entire repository tree; keep the pipeline
	// endpoints behind a per-client limiter.
	pipelineLimit := middleware.RateLimit("pipeline", 10, time.Minute)

	if deps.HarvestHandler != nil {
		harvest := api.Group("/harvest", pipelineLimit)
		deps.HarvestHandler.Register(harvest)
	}

	if deps.GradeHandler != nil {
		grade := api.Group("/grade", pipelineLimit)
		deps.GradeHandler.Register(grade)
	}

	if deps.SubmissionHandler != nil {
		submissions := api.Group("/submissions", pipelineLimit)
		deps.SubmissionHandler.Register(submissions)
	}
}
