// Package cache provides the listing cache contract and its redis
// implementation. Keys are namespaced per entity so mutations can invalidate
// every cached listing of that entity in one call.
package cache

import (
	"context"
	"time"
)

// Cache stores serialized listing payloads.
type Cache interface {
	// Get returns the cached payload and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a payload under the key for the given lifetime.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// InvalidatePrefix removes every key under the prefix.
	InvalidatePrefix(ctx context.Context, prefix string) error
}
