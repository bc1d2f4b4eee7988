package cache

import (
	"context"
	"time"
)

// Store represents a shared cache interface used across the application.
//
// IncrementWithTTL increments the counter stored under key and refreshes its
// expiry to window, so a counter lives until window has passed without a
// further increment. It returns the new count and the remaining TTL.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Pruner is implemented by stores that keep expired entries until swept.
type Pruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}
