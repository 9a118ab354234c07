// Package tenants keeps the registry of known tenants in PostgreSQL.
//
// The registry is administrative metadata. Key-value access is scoped by the
// tenant ID in the request and does not consult it.
package tenants

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a tenant.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusSuspended
}

var (
	// ErrTenantNotFound is returned when no tenant has the requested ID.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantExists is returned when creating a tenant whose ID is taken.
	ErrTenantExists = errors.New("tenant already exists")

	// ErrInvalidStatus is returned for a status other than active or suspended.
	ErrInvalidStatus = errors.New("invalid tenant status")
)

// Tenant is one registry row.
type Tenant struct {
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository persists tenants.
type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	Get(ctx context.Context, tenantID string) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
	UpdateStatus(ctx context.Context, tenantID string, status Status, updatedAt time.Time) error
	Delete(ctx context.Context, tenantID string) error
}
