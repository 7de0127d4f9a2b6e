package classification

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errCacheDown = errors.New("cache unavailable")

// memCache is an in-memory PatternCache.
type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	sets    int
	deletes int
}

func newMemCache() *memCache {
	return &memCache{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (c *memCache) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]byte(nil), value...)
	c.ttls[key] = ttl
	c.sets++
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	delete(c.ttls, key)
	c.deletes++
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// failingCache fails every call.
type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, error) {
	return nil, errCacheDown
}

func (failingCache) SetWithTTL(context.Context, string, []byte, time.Duration) error {
	return errCacheDown
}

func (failingCache) Delete(context.Context, string) error {
	return errCacheDown
}

// updatingCache adds an atomic Update to memCache.
type updatingCache struct {
	*memCache
	updates int
}

func (c *updatingCache) Update(_ context.Context, keys []string, ttl time.Duration, fn func(map[string][]byte) (map[string][]byte, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates++

	current := make(map[string][]byte, len(keys))
	for _, key := range keys {
		current[key] = c.data[key]
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	for _, key := range keys {
		value, ok := next[key]
		switch {
		case !ok:
		case value == nil:
			delete(c.data, key)
			delete(c.ttls, key)
		default:
			c.data[key] = value
			c.ttls[key] = ttl
		}
	}
	return nil
}
