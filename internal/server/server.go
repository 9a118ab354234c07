// Package server provides the HTTP server implementation for the medadmin API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/devrev/medadmin/internal/apierrors"
	"github.com/devrev/medadmin/internal/config"
	"github.com/devrev/medadmin/internal/handler"
	"github.com/devrev/medadmin/internal/health"
	"github.com/devrev/medadmin/internal/metrics"
	"github.com/devrev/medadmin/internal/middleware"
	"github.com/devrev/medadmin/internal/tenantkv"
	"github.com/devrev/medadmin/internal/tenants"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const unmatchedRoute = "unmatched"

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	handlers     *handler.Handlers
	tenants      *handler.TenantHandlers
	healthCheck  *health.HealthCheck
	errorHandler *apierrors.Handler
	metrics      *metrics.Metrics
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates a new HTTP server. m may be nil to disable HTTP metrics
// and tenantSvc may be nil when no database is configured.
func NewServer(
	cfg *config.Config,
	kv *tenantkv.Store,
	tenantSvc *tenants.Service,
	healthCheck *health.HealthCheck,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Server {
	router := mux.NewRouter()
	errorHandler := apierrors.NewHandler(logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var tenantHandlers *handler.TenantHandlers
	if tenantSvc != nil {
		tenantHandlers = handler.NewTenantHandlers(tenantSvc, errorHandler, logger, cfg.Server.RequestTimeout)
	}

	return &Server{
		router:       router,
		httpServer:   httpServer,
		handlers:     handler.NewHandlers(kv, errorHandler, logger, cfg),
		tenants:      tenantHandlers,
		healthCheck:  healthCheck,
		errorHandler: errorHandler,
		metrics:      m,
		logger:       logger,
		cfg:          cfg,
	}
}

// SetupRoutes configures all HTTP routes.
//
// Cross-cutting middleware wraps the whole router so it also sees preflight
// and unmatched requests. Auth and the request timeout run per route because
// they need the matched path variables.
func (s *Server) SetupRoutes() {
	outer := []func(http.Handler) http.Handler{
		middleware.Recovery(s.errorHandler, s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger, "/health", "/ready"),
	}
	if s.metrics != nil {
		outer = append(outer, metrics.MetricsMiddleware(s.metrics, s.routeName))
	}
	outer = append(outer, middleware.CORS(s.cfg.Server.CORSOrigins))

	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.errorHandler,
			s.logger,
		)
		outer = append(outer, rateLimiter.Limit)
	}

	s.httpServer.Handler = middleware.Chain(outer...)(s.router)

	// Health check endpoints
	s.router.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	// API v1 routes
	v1 := s.router.PathPrefix("/v1").Subrouter()
	if s.cfg.Server.RequestTimeout > 0 {
		v1.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}
	adminOnly := func(h http.HandlerFunc) http.Handler { return h }
	if s.cfg.Auth.Enabled {
		auth := middleware.NewAuthenticator(s.cfg.Auth.JWTSecret, s.cfg.Auth.Issuer, s.errorHandler, s.logger)
		v1.Use(auth.Authenticate)
		adminOnly = func(h http.HandlerFunc) http.Handler { return auth.RequireAdmin(h) }
	}

	// Tenant key-value operations
	v1.HandleFunc("/tenants/{tenant_id}/kv", s.handlers.ListKeys).Methods(http.MethodGet)
	v1.HandleFunc("/tenants/{tenant_id}/kv/{key:.+}", s.handlers.PutValue).Methods(http.MethodPut)
	v1.HandleFunc("/tenants/{tenant_id}/kv/{key:.+}", s.handlers.GetValue).Methods(http.MethodGet)
	v1.HandleFunc("/tenants/{tenant_id}/kv/{key:.+}", s.handlers.DeleteValue).Methods(http.MethodDelete)

	// Tenant registry
	if s.tenants != nil {
		v1.Handle("/tenants", adminOnly(s.tenants.CreateTenant)).Methods(http.MethodPost)
		v1.Handle("/tenants", adminOnly(s.tenants.ListTenants)).Methods(http.MethodGet)
		v1.HandleFunc("/tenants/{tenant_id}", s.tenants.GetTenant).Methods(http.MethodGet)
		v1.Handle("/tenants/{tenant_id}", adminOnly(s.tenants.DeleteTenant)).Methods(http.MethodDelete)
		v1.Handle("/tenants/{tenant_id}/status", adminOnly(s.tenants.UpdateTenantStatus)).Methods(http.MethodPut)
	}

	// Page-label helper for list views
	v1.HandleFunc("/pagination", s.handlers.Pagination).Methods(http.MethodGet)

	// Not found handler
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteNotFound(w, "endpoint not found", requestID)
	})

	// Method not allowed handler
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apierrors.ErrorCodeInvalidRequest, "method not allowed", requestID)
	})
}

// routeName labels a request with its route template, never the raw path.
func (s *Server) routeName(r *http.Request) string {
	var match mux.RouteMatch
	if !s.router.Match(r, &match) || match.Route == nil {
		return unmatchedRoute
	}
	tpl, err := match.Route.GetPathTemplate()
	if err != nil {
		return unmatchedRoute
	}
	return tpl
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.Int("port", s.cfg.Server.Port),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Serve serves on an existing listener.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// GetRouter returns the router for testing purposes.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// GetHandler returns the http.Handler for the server, middleware included.
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
