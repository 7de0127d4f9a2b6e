// Package cache wraps the Redis client with the byte-oriented operations the service needs.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a minimal byte-oriented Redis client wrapper.
type RedisCache struct {
	client *redis.Client
}

// NewRedisClient parses a redis:// URL and verifies the connection with PING.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the stored value, or (nil, false, nil) when the key is absent.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores value under key; a zero ttl means no expiry.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes keys. Missing keys are not an error.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// maxUpdateAttempts bounds optimistic retries when a watched key changes mid-update.
const maxUpdateAttempts = 5

// ErrUpdateConflict is returned when Update keeps losing to concurrent writers.
var ErrUpdateConflict = errors.New("cache: update conflict")

// Update reads keys under WATCH, passes their values (nil when missing) to fn and
// writes the returned values in one MULTI/EXEC. A nil value deletes the key; keys
// fn leaves out are untouched. If another client writes a watched key before EXEC
// the whole round is retried, so fn may run more than once.
func (c *RedisCache) Update(ctx context.Context, keys []string, ttl time.Duration, fn func(current map[string][]byte) (map[string][]byte, error)) error {
	txf := func(tx *redis.Tx) error {
		current := make(map[string][]byte, len(keys))
		for _, key := range keys {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", key, err)
			}
			current[key] = data
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, key := range keys {
				value, ok := next[key]
				switch {
				case !ok:
				case value == nil:
					pipe.Del(ctx, key)
				default:
					pipe.Set(ctx, key, value, ttl)
				}
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := c.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w after %d attempts", ErrUpdateConflict, maxUpdateAttempts)
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
