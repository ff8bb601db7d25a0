package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func TestLoadRateLimitConfig(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("RATE_LIMIT_CONTEXT_API", "42")
	t.Setenv("RATE_LIMIT_REANALYZE", "not-a-number")

	config := LoadRateLimitConfig()
	if config.ContextAPIMax != 42 {
		t.Errorf("Expected context API max 42, got %d", config.ContextAPIMax)
	}
	if config.ReanalyzeMax != DefaultRateLimitConfig().ReanalyzeMax {
		t.Errorf("Expected default reanalyze max, got %d", config.ReanalyzeMax)
	}
}

func TestLoadRateLimitConfig_Development(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")

	config := LoadRateLimitConfig()
	if config.ContextAPIMax != 1000 {
		t.Errorf("Expected relaxed context API max 1000, got %d", config.ContextAPIMax)
	}
}

func TestRateLimiters(t *testing.T) {
	config := &RateLimitConfig{
		ContextAPIMax:        3,
		ContextAPIExpiration: time.Minute,
		ReanalyzeMax:         1,
		ReanalyzeExpiration:  time.Minute,
	}

	app := fiber.New()
	app.Use("/api/context", ContextAPIRateLimiter(config))
	app.Use("/api/context/reanalyze", ReanalyzeRateLimiter(config))
	app.Get("/api/context/stats", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Post("/api/context/reanalyze", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	tests := []struct {
		method   string
		path     string
		expected int
	}{
		{"POST", "/api/context/reanalyze", fiber.StatusOK},
		{"POST", "/api/context/reanalyze", fiber.StatusTooManyRequests},
		{"GET", "/api/context/stats", fiber.StatusOK},
		{"GET", "/api/context/stats", fiber.StatusTooManyRequests},
	}

	for i, tt := range tests {
		resp, err := app.Test(httptest.NewRequest(tt.method, tt.path, nil))
		if err != nil {
			t.Fatalf("Request %d failed: %v", i, err)
		}
		if resp.StatusCode != tt.expected {
			t.Errorf("Request %d (%s %s): expected status %d, got %d", i, tt.method, tt.path, tt.expected, resp.StatusCode)
		}
	}
}
