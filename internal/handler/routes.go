package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mediagrab/api/internal/config"
	"github.com/mediagrab/api/internal/middleware"
	ws "github.com/mediagrab/api/internal/websocket"
	"github.com/mediagrab/api/pkg/response"
)

// Router wires handlers and limits into a fiber app.
type Router struct {
	Download *DownloadHandler
	Jobs     *JobHandler
	Health   *HealthHandler
	Limiter  *middleware.RateLimiter
	Limits   config.RateLimitConfig
	Hub      *ws.Hub
}

// Register mounts every route on app.
func (r *Router) Register(app *fiber.App) {
	app.Get("/health", r.Health.Health)

	api := app.Group("/api")

	api.Post("/formats", r.Limiter.DiscoverLimit(r.Limits.DiscoverPerMin), r.Download.Formats)
	api.Post("/download", r.Limiter.DownloadLimit(r.Limits.DownloadPerHour), r.Download.Download)
	api.Get("/download", r.Limiter.RetrieveLimit(r.Limits.RetrievePerMin), r.Download.Retrieve)

	api.Post("/jobs", r.Limiter.DownloadLimit(r.Limits.DownloadPerHour), r.Jobs.Submit)
	api.Get("/jobs/:jobId", r.Jobs.Status)

	if r.Hub == nil {
		return
	}

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:jobId", func(c *fiber.Ctx) error {
		if _, err := uuid.Parse(c.Params("jobId")); err != nil {
			return response.ValidationError(c, "Invalid job ID", nil)
		}
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		r.Hub.HandleConnection(c, c.Params("jobId"))
	}))
}
