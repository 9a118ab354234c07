package tenants

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/devrev/medadmin/internal/store"
	"github.com/devrev/medadmin/internal/tenantkv"
	"go.uber.org/zap"
)

// Service manages tenants with a read-through cache in front of the
// repository.
type Service struct {
	repo     Repository
	cache    store.Backend
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a tenant service. cache is usually a store.MemoryStore
// private to the service.
func NewService(repo Repository, cache store.Backend, cacheTTL time.Duration, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// Get retrieves a tenant, using the cache when possible.
func (s *Service) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	if err := tenantkv.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}

	cacheKey := tenantCacheKey(tenantID)
	if data, err := s.cache.Get(ctx, cacheKey); err == nil {
		var tenant Tenant
		if err := json.Unmarshal(data, &tenant); err == nil {
			s.logger.Debug("tenant retrieved from cache", zap.String("tenant_id", tenantID))
			return &tenant, nil
		}
	}

	tenant, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	s.cacheTenant(ctx, tenant)
	return tenant, nil
}

// Create registers a new active tenant.
func (s *Service) Create(ctx context.Context, tenantID, name string) (*Tenant, error) {
	if err := tenantkv.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tenant := &Tenant{
		TenantID:  tenantID,
		Name:      strings.TrimSpace(name),
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, tenant); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	s.logger.Info("created tenant", zap.String("tenant_id", tenantID))

	s.cacheTenant(ctx, tenant)
	return tenant, nil
}

// List returns every registered tenant. The cache is bypassed.
func (s *Service) List(ctx context.Context) ([]*Tenant, error) {
	tenants, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}

// SetStatus moves a tenant to status and returns the updated tenant.
func (s *Service) SetStatus(ctx context.Context, tenantID string, status Status) (*Tenant, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	tenant, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant.Status == status {
		return tenant, nil
	}

	old := tenant.Status
	tenant.Status = status
	tenant.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateStatus(ctx, tenantID, status, tenant.UpdatedAt); err != nil {
		s.invalidate(ctx, tenantID)
		return nil, fmt.Errorf("failed to update tenant status: %w", err)
	}

	s.logger.Info("updated tenant status",
		zap.String("tenant_id", tenantID),
		zap.String("old_status", string(old)),
		zap.String("new_status", string(status)))

	s.invalidate(ctx, tenantID)
	return tenant, nil
}

// Delete removes a tenant from the registry. Its key-value data is untouched.
func (s *Service) Delete(ctx context.Context, tenantID string) error {
	if err := tenantkv.ValidateTenantID(tenantID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}

	s.logger.Info("deleted tenant", zap.String("tenant_id", tenantID))

	s.invalidate(ctx, tenantID)
	return nil
}

func (s *Service) cacheTenant(ctx context.Context, tenant *Tenant) {
	data, err := json.Marshal(tenant)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, tenantCacheKey(tenant.TenantID), data, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache tenant",
			zap.String("tenant_id", tenant.TenantID),
			zap.Error(err))
	}
}

func (s *Service) invalidate(ctx context.Context, tenantID string) {
	if err := s.cache.Delete(ctx, tenantCacheKey(tenantID)); err != nil {
		s.logger.Warn("failed to invalidate tenant cache",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}
}

func tenantCacheKey(tenantID string) string {
	return "tenant:config:" + tenantID
}
