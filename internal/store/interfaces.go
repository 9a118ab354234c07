package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is not found or has expired
var ErrNotFound = errors.New("not found")

// Backend is the raw key-value store the tenant namespace is layered on.
// Keys are passed through verbatim; namespacing is the caller's concern.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value under key. A ttl <= 0 means the key never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Keys returns every key matching a Redis-style glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
