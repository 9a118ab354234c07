package tenants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devrev/medadmin/internal/tenantkv"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL error codes
const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// PostgresRepository stores tenants in the tenants table created by the
// embedded migrations.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository on an open pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a new tenant.
func (r *PostgresRepository) Create(ctx context.Context, tenant *Tenant) error {
	query := `
		INSERT INTO tenants (tenant_id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		tenant.TenantID,
		tenant.Name,
		string(tenant.Status),
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return fmt.Errorf("%w: %q", ErrTenantExists, tenant.TenantID)
			case pgCheckViolation:
				return fmt.Errorf("%w: %s", tenantkv.ErrInvalidTenant, pgErr.ConstraintName)
			}
		}
		return err
	}
	return nil
}

// Get retrieves a tenant by ID.
func (r *PostgresRepository) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	query := `
		SELECT tenant_id, name, status, created_at, updated_at
		FROM tenants
		WHERE tenant_id = $1
	`

	var t Tenant
	var status string
	err := r.pool.QueryRow(ctx, query, tenantID).Scan(
		&t.TenantID,
		&t.Name,
		&status,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrTenantNotFound, tenantID)
		}
		return nil, err
	}
	t.Status = Status(status)

	return &t, nil
}

// List returns every tenant ordered by ID.
func (r *PostgresRepository) List(ctx context.Context) ([]*Tenant, error) {
	query := `
		SELECT tenant_id, name, status, created_at, updated_at
		FROM tenants
		ORDER BY tenant_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants := make([]*Tenant, 0)
	for rows.Next() {
		var t Tenant
		var status string
		if err := rows.Scan(&t.TenantID, &t.Name, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Status = Status(status)
		tenants = append(tenants, &t)
	}

	return tenants, rows.Err()
}

// UpdateStatus changes the status of a tenant.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, tenantID string, status Status, updatedAt time.Time) error {
	query := `
		UPDATE tenants
		SET status = $2, updated_at = $3
		WHERE tenant_id = $1
	`

	result, err := r.pool.Exec(ctx, query, tenantID, string(status), updatedAt)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrTenantNotFound, tenantID)
	}

	return nil
}

// Delete removes a tenant.
func (r *PostgresRepository) Delete(ctx context.Context, tenantID string) error {
	query := `DELETE FROM tenants WHERE tenant_id = $1`
	result, err := r.pool.Exec(ctx, query, tenantID)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrTenantNotFound, tenantID)
	}

	return nil
}
