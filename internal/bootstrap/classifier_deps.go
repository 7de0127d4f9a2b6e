package bootstrap

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"classifier_server/adapter/out/messaging"
	"classifier_server/adapter/out/persistence"
	"classifier_server/config"
	"classifier_server/core/port/out"
	"classifier_server/core/service/classification"
	"classifier_server/pkg/cache"
	"classifier_server/pkg/logger"
)

// Dependencies is built once per process and shared by the API and the worker,
// so both see the same learned patterns.
type Dependencies struct {
	Config *config.Config

	// nil when REDIS_URL is empty or Redis was unreachable at startup
	Redis        *redis.Client
	RedisCache   *cache.RedisCache
	PatternCache *persistence.PatternCacheAdapter

	Store      *classification.LearnedPatternStore
	Classifier *classification.Classifier
	Publisher  out.ClassificationPublisher // nil without Redis
}

// Persistent reports whether learned patterns are backed by Redis.
func (d *Dependencies) Persistent() bool {
	return d.PatternCache != nil
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	log := logger.WithField("component", "deps")

	// Redis (optional)
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, learned patterns will not be persisted")
		} else {
			deps.Redis = client
			deps.RedisCache = cache.NewRedisCache(client)
			deps.PatternCache = persistence.NewPatternCacheAdapter(deps.RedisCache, cfg.RedisTimeout(), logger.Zerolog())
			deps.Publisher = messaging.NewRedisProducer(client)
			log.Info("Redis connected, learned patterns persisted under %q", cfg.PatternKeyPrefix)
		}
	} else {
		log.Info("REDIS_URL not set, running with in-memory learned patterns")
	}

	storeCfg := &classification.LearnedStoreConfig{
		KeyPrefix: cfg.PatternKeyPrefix,
		TTL:       cfg.PatternTTL(),
		Logger:    logger.Zerolog(),
	}
	if deps.PatternCache != nil {
		deps.Store = classification.NewLearnedPatternStore(deps.PatternCache, storeCfg)
	} else {
		deps.Store = classification.NewLearnedPatternStore(nil, storeCfg)
	}

	deps.Classifier = classification.NewClassifier(deps.Store, logger.WithField("component", "classifier"))

	loadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	deps.Classifier.LoadLearnedPatterns(loadCtx)
	cancel()

	cleanup := func() {
		if deps.RedisCache != nil {
			if err := deps.RedisCache.Close(); err != nil {
				log.WithError(err).Warn("Failed to close Redis")
			}
		}
	}

	return deps, cleanup, nil
}
