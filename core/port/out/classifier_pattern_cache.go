package out

import (
	"context"
	"time"
)

// PatternCache is the expiring key-value store that durably caches learned patterns.
// Every call may fail; callers treat failures as non-fatal.
type PatternCache interface {
	// Get returns (nil, nil) when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// PatternUpdater is implemented by caches that can rewrite a set of keys with no
// other writer interleaving (e.g. Redis WATCH/MULTI). Stores shared by several
// processes need it to merge instead of overwrite.
type PatternUpdater interface {
	// Update passes the current values of keys (nil when missing) to fn and stores
	// the values fn returns under ttl. A nil value deletes the key; keys fn leaves
	// out are untouched. fn may run more than once.
	Update(ctx context.Context, keys []string, ttl time.Duration, fn func(current map[string][]byte) (map[string][]byte, error)) error
}
