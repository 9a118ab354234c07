package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/devrev/medadmin/internal/config"
	"github.com/devrev/medadmin/internal/health"
	"github.com/devrev/medadmin/internal/logging"
	"github.com/devrev/medadmin/internal/metrics"
	"github.com/devrev/medadmin/internal/migrate"
	"github.com/devrev/medadmin/internal/server"
	"github.com/devrev/medadmin/internal/store"
	"github.com/devrev/medadmin/internal/tenantkv"
	"github.com/devrev/medadmin/internal/tenants"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Applies pending migrations, connects to the key-value store and serves
the HTTP API, the metrics endpoint and, when enabled, the gRPC health service.

A migration failure stops startup with a non-zero exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting medadmin",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("kv_backend", cfg.KV.Backend),
		zap.Bool("auth_enabled", cfg.Auth.Enabled),
	)

	m := metrics.NewMetrics()

	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		var err error
		pool, err = migrate.Open(ctx, cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MinConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
	}

	if cfg.Database.MigrateOnStartup {
		if err := runMigrations(ctx, cfg, pool, logger); err != nil {
			return err
		}
	}

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open key-value store: %w", err)
	}
	defer backend.Close()

	kv := tenantkv.New(backend, logger, tenantkv.WithMetrics(m))

	var tenantSvc *tenants.Service
	if pool != nil {
		cache := store.NewMemoryStore(cfg.Tenants.CacheSize, logger, store.WithJanitor(time.Minute))
		defer cache.Close()
		tenantSvc = tenants.NewService(tenants.NewPostgresRepository(pool), cache, cfg.Tenants.CacheTTL, logger)
	}

	healthOpts := []health.Option{
		health.WithCheck("kv", kv),
		health.WithMetrics(m),
	}
	if pool != nil {
		healthOpts = append(healthOpts, health.WithCheck("database", pool))
	}

	var grpcServer *health.GRPCServer
	if cfg.GRPC.Enabled {
		grpcServer = health.NewGRPCServer(cfg.GRPC.Port, logger)
		healthOpts = append(healthOpts, health.WithGRPCHealth(grpcServer.Health()))
	}

	healthCheck := health.NewHealthCheck(logger, healthOpts...)

	httpServer := server.NewServer(cfg, kv, tenantSvc, healthCheck, m, logger)
	httpServer.SetupRoutes()

	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(httpServer.Start)
	if metricsServer != nil {
		g.Go(metricsServer.Start)
	}
	if grpcServer != nil {
		g.Go(grpcServer.Start)
	}
	g.Go(func() error {
		return healthCheck.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")
		healthCheck.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown HTTP server", zap.Error(err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown metrics server", zap.Error(err))
			}
		}
		if grpcServer != nil {
			grpcServer.Shutdown(shutdownCtx)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
		return err
	}

	logger.Info("medadmin shutdown complete")
	return nil
}
