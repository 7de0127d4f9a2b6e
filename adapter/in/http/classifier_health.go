package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Version is reported by /health.
const Version = "1.0.0"

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// breakerReporter is implemented by checkers guarded by a circuit breaker.
type breakerReporter interface {
	BreakerState() string
}

type HealthHandler struct {
	redis   HealthChecker // nil when running without persistence
	timeout time.Duration
}

func NewHealthHandler(redis HealthChecker) *HealthHandler {
	return &HealthHandler{redis: redis, timeout: 2 * time.Second}
}

func (h *HealthHandler) Register(app fiber.Router) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

// Health always answers 200; the redis field reports connected, disconnected or error.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	redisStatus := "disconnected"
	if h.redis != nil {
		redisStatus = "connected"
		if err := h.ping(c.UserContext()); err != nil {
			redisStatus = "error"
		}
	}

	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "classification",
		"redis":   redisStatus,
		"version": Version,
	})
}

// Ready fails with 503 when configured Redis cannot be reached.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	checks := make(map[string]string)
	allHealthy := true

	if h.redis != nil {
		if err := h.ping(c.UserContext()); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["redis"] = "healthy"
		}
		if br, ok := h.redis.(breakerReporter); ok {
			checks["pattern_cache_breaker"] = br.BreakerState()
		}
	} else {
		checks["redis"] = "not configured"
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.redis.Ping(ctx)
}
