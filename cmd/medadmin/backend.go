package main

import (
	"context"
	"fmt"
	"time"

	"github.com/devrev/medadmin/internal/config"
	"github.com/devrev/medadmin/internal/store"
	"go.uber.org/zap"
)

// openBackend is a variable so tests can substitute a shared in-memory store.
var openBackend = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Backend, error) {
	switch cfg.KV.Backend {
	case "redis":
		return store.NewRedisStore(ctx, store.RedisOptions{
			URL:          cfg.Redis.URL,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, logger)
	case "memory":
		logger.Warn("Using in-memory key-value store; data is lost on exit",
			zap.Int("max_size", cfg.KV.MemoryMaxSize))
		return store.NewMemoryStore(cfg.KV.MemoryMaxSize, logger, store.WithJanitor(time.Minute)), nil
	default:
		return nil, fmt.Errorf("unknown kv backend %q", cfg.KV.Backend)
	}
}
