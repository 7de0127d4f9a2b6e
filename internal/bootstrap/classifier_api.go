package bootstrap

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classifier_server/adapter/in/http"
	"classifier_server/config"
	"classifier_server/infra/middleware"
	"classifier_server/pkg/cache"
	"classifier_server/pkg/logger"
)

func NewAPI(cfg *config.Config, deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),

		// go-json instead of encoding/json
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:          1 * 1024 * 1024, // notifications are small
		ServerHeader:       "",
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.RequestID())     // 1. Request ID
	app.Use(middleware.RequestLogger()) // 2. Request logging
	app.Use(middleware.Recover())       // 3. Panic recovery

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		// "*" cannot be combined with credentials
		allowOrigins = "*"
		allowCredentials = false
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health check. A typed nil would look configured, so pass nil explicitly.
	var redisChecker http.HealthChecker
	if deps.PatternCache != nil {
		redisChecker = deps.PatternCache
	}
	http.NewHealthHandler(redisChecker).Register(app)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	var feedbackLimiter fiber.Handler
	if cfg.FeedbackRateLimit > 0 {
		limitCfg := middleware.RateLimitConfig{Max: cfg.FeedbackRateLimit}
		if deps.Redis != nil {
			limitCfg.Storage = cache.NewLimiterStorage(deps.Redis, "ratelimit:feedback:")
		}
		feedbackLimiter = middleware.RateLimit(limitCfg)
		logger.Info("Feedback rate limit: %d requests/min per IP", cfg.FeedbackRateLimit)
	}

	http.NewClassifierHandler(deps.Classifier, deps.Persistent()).Register(app, feedbackLimiter)

	return app
}
