package handlers

import (
	"phicontext/internal/health"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Health responds with the cache health report.
// An unhealthy cache answers 503.
// GET /health
func (h *ContextCacheHandler) Health(c *fiber.Ctx) error {
	report := h.cache.GetHealth()

	status := fiber.StatusOK
	if report.Status == string(health.StatusUnhealthy) {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"status":    report.Status,
		"issues":    report.Issues,
		"entries":   report.Statistics.TotalEntries,
		"capacity":  report.Statistics.Capacity,
		"timestamp": report.CheckedAt.Format(time.RFC3339),
	})
}
