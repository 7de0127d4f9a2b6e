// Package persistence provides storage adapters implementing outbound ports.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"classifier_server/core/port/out"
	"classifier_server/pkg/cache"
	"classifier_server/pkg/resilience"
)

// =============================================================================
// Learned Pattern Cache (Redis)
// =============================================================================

// PatternCacheAdapter implements out.PatternCache on Redis. Every call runs
// through a circuit breaker with a per-call timeout.
type PatternCacheAdapter struct {
	cache   *cache.RedisCache
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewPatternCacheAdapter creates a new PatternCacheAdapter.
func NewPatternCacheAdapter(redisCache *cache.RedisCache, timeout time.Duration, log zerolog.Logger) *PatternCacheAdapter {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &PatternCacheAdapter{
		cache:   redisCache,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("pattern-cache"), log),
		timeout: timeout,
	}
}

// Get returns (nil, nil) when key does not exist.
func (a *PatternCacheAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := resilience.Execute(a.breaker, func() ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		data, found, err := a.cache.Get(ctx, key)
		if err != nil || !found {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

// SetWithTTL stores value under key, replacing any previous value and expiry.
func (a *PatternCacheAdapter) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := resilience.Execute(a.breaker, func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		return struct{}{}, a.cache.Set(ctx, key, value, ttl)
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. A missing key is not an error.
func (a *PatternCacheAdapter) Delete(ctx context.Context, key string) error {
	_, err := resilience.Execute(a.breaker, func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		return struct{}{}, a.cache.Delete(ctx, key)
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Update rewrites keys atomically with WATCH/MULTI. The timeout covers every retry.
func (a *PatternCacheAdapter) Update(ctx context.Context, keys []string, ttl time.Duration, fn func(current map[string][]byte) (map[string][]byte, error)) error {
	_, err := resilience.Execute(a.breaker, func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		return struct{}{}, a.cache.Update(ctx, keys, ttl, fn)
	})
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// Ping checks connectivity, bypassing the breaker so health checks see the real state.
func (a *PatternCacheAdapter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.cache.Ping(ctx)
}

// BreakerState reports the circuit breaker state (closed, half-open, open).
func (a *PatternCacheAdapter) BreakerState() string {
	return a.breaker.State().String()
}

var (
	_ out.PatternCache   = (*PatternCacheAdapter)(nil)
	_ out.PatternUpdater = (*PatternCacheAdapter)(nil)
)
