package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions tunes the connection pool on top of what the URL carries
type RedisOptions struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore implements Backend for a Redis-protocol store
type RedisStore struct {
	client redis.Cmdable
	closer func() error
	logger *zap.Logger
}

// NewRedisStore connects to the store addressed by opts.URL.
// The URL embeds host and access token, e.g. rediss://default:<token>@host:6379.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if opts.PoolSize > 0 {
		redisOpts.PoolSize = opts.PoolSize
	}
	if opts.MinIdleConns > 0 {
		redisOpts.MinIdleConns = opts.MinIdleConns
	}
	if opts.DialTimeout > 0 {
		redisOpts.DialTimeout = opts.DialTimeout
	}
	if opts.ReadTimeout > 0 {
		redisOpts.ReadTimeout = opts.ReadTimeout
	}
	if opts.WriteTimeout > 0 {
		redisOpts.WriteTimeout = opts.WriteTimeout
	}
	// The store call either completes or fails; no client-side retries.
	redisOpts.MaxRetries = -1

	client := redis.NewClient(redisOpts)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", redisOpts.Addr), zap.Bool("tls", redisOpts.TLSConfig != nil))

	return &RedisStore{
		client: client,
		closer: client.Close,
		logger: logger,
	}, nil
}

// NewRedisStoreFromClient wraps an existing client; Close becomes a no-op
func NewRedisStoreFromClient(client redis.Cmdable, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		closer: func() error { return nil },
		logger: logger,
	}
}

// Get retrieves the raw value stored under key
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set stores value, using SETEX when a positive ttl is given
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl > 0 {
		return s.client.SetEx(ctx, key, value, ttl).Err()
	}
	return s.client.Set(ctx, key, value, 0).Err()
}

// Delete removes key; a missing key is not an error
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Keys runs KEYS with the given pattern
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.client.Keys(ctx, pattern).Result()
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.closer()
}
