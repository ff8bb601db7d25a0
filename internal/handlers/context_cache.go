package handlers

import (
	"context"
	"log"
	"phicontext/internal/jobs"
	"phicontext/internal/models"
	"phicontext/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ContextCache is the part of the context cache exposed over HTTP.
// Context payloads are never served.
type ContextCache interface {
	GetHealth() models.CacheHealth
	GetStatistics() models.CacheStatistics
	ReanalyzeImportance(ctx context.Context) (services.ReanalysisResult, error)
}

// JobStatusProvider reports scheduled job state
type JobStatusProvider interface {
	GetStatus() []jobs.JobStatus
}

// ContextCacheHandler serves cache health, statistics and maintenance endpoints
type ContextCacheHandler struct {
	cache     ContextCache
	scheduler JobStatusProvider
}

// NewContextCacheHandler creates a new context cache handler; scheduler may be nil
func NewContextCacheHandler(cache ContextCache, scheduler JobStatusProvider) *ContextCacheHandler {
	return &ContextCacheHandler{cache: cache, scheduler: scheduler}
}

// Stats returns cache statistics
// GET /api/context/stats
func (h *ContextCacheHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(h.cache.GetStatistics())
}

// Reanalyze runs an importance sweep immediately
// POST /api/context/reanalyze
func (h *ContextCacheHandler) Reanalyze(c *fiber.Ctx) error {
	result, err := h.cache.ReanalyzeImportance(c.UserContext())
	if err != nil {
		log.Printf("❌ [CONTEXT] Manual reanalysis failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Reanalysis failed",
		})
	}

	return c.JSON(fiber.Map{
		"total":       result.Total,
		"rescored":    result.Rescored,
		"expired":     result.Expired,
		"failed":      result.Failed,
		"duration_ms": result.Duration.Milliseconds(),
	})
}

// Jobs lists the scheduled maintenance jobs
// GET /api/context/jobs
func (h *ContextCacheHandler) Jobs(c *fiber.Ctx) error {
	if h.scheduler == nil {
		return c.JSON(fiber.Map{"jobs": []jobs.JobStatus{}})
	}
	return c.JSON(fiber.Map{"jobs": h.scheduler.GetStatus()})
}

// RegisterRoutes mounts the handler on app
func (h *ContextCacheHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.Health)

	api := app.Group("/api/context")
	api.Get("/stats", h.Stats)
	api.Post("/reanalyze", h.Reanalyze)
	api.Get("/jobs", h.Jobs)
}
