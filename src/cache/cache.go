package cache

import (
	"context"
	"time"
)

// Cache is the shared key/value store used for payment entries, idempotency
// claims and summary results. Values are JSON-encoded by implementations.
// SetIfAbsent must be atomic; the idempotency gate relies on it.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetIfAbsent(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Exists(ctx context.Context, key string) (bool, error)
}
