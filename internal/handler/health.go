package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mediagrab/api/internal/service"
)

type HealthHandler struct {
	service *service.DownloadService
}

func NewHealthHandler(svc *service.DownloadService) *HealthHandler {
	return &HealthHandler{service: svc}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	deps, ok := h.service.Health(c.Context())
	status := "ok"
	code := fiber.StatusOK
	if !ok {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":       status,
		"dependencies": deps,
	})
}
