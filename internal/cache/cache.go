// Package cache implements the cache store for the catalog: a key-value
// store with TTLs, key deletion and namespace-wide clearing.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss is returned when a key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")
)

// Store is the cache contract consumed by the catalog service. Cached values
// are opaque bytes; callers own serialization. Implementations must treat
// entries as disposable — the persistent store stays authoritative.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// ClearNamespace removes every key under the given namespace prefix.
	// Used when the affected keys cannot be enumerated individually.
	ClearNamespace(ctx context.Context, namespace string) error
}
