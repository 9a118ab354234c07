// Package health provides liveness and readiness checks for medadmin.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/devrev/medadmin/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// Pinger is a dependency that can be probed, such as the tenant store or the
// PostgreSQL pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type namedCheck struct {
	name   string
	pinger Pinger
}

// HealthCheck manages health check functionality.
type HealthCheck struct {
	checks        []namedCheck
	logger        *zap.Logger
	metrics       *metrics.Metrics
	grpcHealth    *grpchealth.Server
	checkInterval time.Duration
	probeTimeout  time.Duration

	mu        sync.RWMutex
	ready     bool
	statuses  map[string]string
	lastErr   error
	lastCheck time.Time
}

// Option configures a HealthCheck.
type Option func(*HealthCheck)

// WithCheck adds a named dependency to the readiness probe.
func WithCheck(name string, p Pinger) Option {
	return func(hc *HealthCheck) {
		hc.checks = append(hc.checks, namedCheck{name: name, pinger: p})
	}
}

// WithMetrics mirrors readiness into the health gauge.
func WithMetrics(m *metrics.Metrics) Option {
	return func(hc *HealthCheck) {
		hc.metrics = m
	}
}

// WithGRPCHealth mirrors readiness into a gRPC health server.
func WithGRPCHealth(s *grpchealth.Server) Option {
	return func(hc *HealthCheck) {
		hc.grpcHealth = s
	}
}

// WithInterval sets how often the background loop probes dependencies.
func WithInterval(d time.Duration) Option {
	return func(hc *HealthCheck) {
		hc.checkInterval = d
	}
}

// NewHealthCheck creates a new HealthCheck instance. It reports not ready
// until the first successful probe.
func NewHealthCheck(logger *zap.Logger, opts ...Option) *HealthCheck {
	hc := &HealthCheck{
		logger:        logger,
		checkInterval: 5 * time.Second,
		probeTimeout:  5 * time.Second,
		statuses:      map[string]string{},
	}
	for _, opt := range opts {
		opt(hc)
	}
	hc.publish(false)
	return hc
}

// LivenessResponse represents the response for the liveness check.
type LivenessResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the response for the readiness check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// LivenessHandler handles GET /health requests.
// Returns 200 OK if the process is running.
func (hc *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Status: statusHealthy})
}

// ReadinessHandler handles GET /ready requests.
// Returns 200 OK if every dependency answered its last probe. It never probes
// itself; Run keeps the status fresh.
func (hc *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hc.mu.RLock()
	resp := ReadinessResponse{Status: "ready", Checks: copyStatuses(hc.statuses)}
	ready := hc.ready
	if !ready {
		resp.Status = "not_ready"
		if hc.lastErr != nil {
			resp.Error = hc.lastErr.Error()
		}
	}
	hc.mu.RUnlock()

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CheckNow probes every dependency concurrently and records the result.
func (hc *HealthCheck) CheckNow(ctx context.Context) error {
	statuses := make(map[string]string, len(hc.checks))
	errs := make([]error, len(hc.checks))

	var g errgroup.Group
	for i, c := range hc.checks {
		i, c := i, c
		g.Go(func() error {
			if err := c.pinger.Ping(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", c.name, err)
			}
			return nil
		})
	}
	g.Wait()

	for i, c := range hc.checks {
		statuses[c.name] = statusHealthy
		if errs[i] != nil {
			statuses[c.name] = statusUnhealthy
		}
	}
	err := errors.Join(errs...)

	hc.mu.Lock()
	wasReady := hc.ready
	hc.ready = err == nil
	hc.statuses = statuses
	hc.lastErr = err
	hc.lastCheck = time.Now()
	hc.mu.Unlock()

	if err != nil {
		hc.logger.Warn("health check failed", zap.Error(err))
	} else if !wasReady {
		hc.logger.Info("all dependencies healthy", zap.Strings("checks", sortedNames(statuses)))
	}
	hc.publish(err == nil)

	return err
}

// Run probes dependencies immediately and then every check interval until
// ctx is done.
func (hc *HealthCheck) Run(ctx context.Context) error {
	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		probeCtx, cancel := context.WithTimeout(ctx, hc.probeTimeout)
		hc.CheckNow(probeCtx)
		cancel()

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Shutdown marks the service as not serving.
func (hc *HealthCheck) Shutdown() {
	hc.SetReady(false)
	if hc.grpcHealth != nil {
		hc.grpcHealth.Shutdown()
	}
}

// IsReady returns the current readiness status.
func (hc *HealthCheck) IsReady() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.ready
}

// LastCheck returns when dependencies were last probed.
func (hc *HealthCheck) LastCheck() time.Time {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.lastCheck
}

// SetReady sets the readiness status.
func (hc *HealthCheck) SetReady(ready bool) {
	hc.mu.Lock()
	hc.ready = ready
	hc.mu.Unlock()
	hc.publish(ready)
}

func (hc *HealthCheck) publish(ready bool) {
	if hc.metrics != nil {
		hc.metrics.SetHealthStatus(ready)
	}
	if hc.grpcHealth != nil {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if ready {
			status = healthpb.HealthCheckResponse_SERVING
		}
		hc.grpcHealth.SetServingStatus("", status)
	}
}

func copyStatuses(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
