package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"classifier_server/pkg/apperr"
)

// RateLimitConfig configures a per-IP fixed window limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration // Default: 1 minute

	// Storage shares counters between instances. nil keeps them in process memory.
	Storage fiber.Storage
}

// RateLimit returns a limiter keyed by client IP. Rejected requests go through
// the error handler as RATE_LIMITED.
func RateLimit(cfg RateLimitConfig) fiber.Handler {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Window,
		Storage:    cfg.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return apperr.RateLimited(cfg.Window)
		},
	})
}
