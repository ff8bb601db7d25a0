package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings (per IP)
type RateLimitConfig struct {
	// Read endpoints under /api/context
	ContextAPIMax        int
	ContextAPIExpiration time.Duration

	// Manual reanalysis locks the cache chunk by chunk, keep it rare
	ReanalyzeMax        int
	ReanalyzeExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		// 120/min = 2 req/sec
		ContextAPIMax:        120,
		ContextAPIExpiration: 1 * time.Minute,

		ReanalyzeMax:        5,
		ReanalyzeExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	if v := os.Getenv("RATE_LIMIT_CONTEXT_API"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.ContextAPIMax = n
		}
	}

	if v := os.Getenv("RATE_LIMIT_REANALYZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.ReanalyzeMax = n
		}
	}

	// Development mode: more lenient limits
	if os.Getenv("ENVIRONMENT") == "development" {
		config.ContextAPIMax = 1000
		config.ReanalyzeMax = 60
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

// ContextAPIRateLimiter limits all requests under /api/context
func ContextAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.ContextAPIMax,
		Expiration: config.ContextAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "context-api:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Context API limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please slow down.",
				"retry_after": int(config.ContextAPIExpiration.Seconds()),
			})
		},
	})
}

// ReanalyzeRateLimiter limits manual importance reanalysis
func ReanalyzeRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.ReanalyzeMax,
		Expiration: config.ReanalyzeExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "reanalyze:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Reanalysis limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Reanalysis rate limit reached. Please wait before triggering another sweep.",
				"retry_after": int(config.ReanalyzeExpiration.Seconds()),
			})
		},
	})
}
