// Package migrate applies the embedded PostgreSQL schema migrations.
//
// Migrations are files named NNNN_description.sql, applied in version order,
// each in its own transaction, and recorded in schema_migrations. A
// session-level advisory lock keeps concurrent instances from racing.
package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embedded embed.FS

// lockKey identifies the migration advisory lock.
const lockKey int64 = 0x6d6564_61646d // "medadm"

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// ID is the file stem, e.g. "0001_create_tenants".
func (m Migration) ID() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

// Status reports whether a migration has been applied.
type Status struct {
	Migration
	AppliedAt *time.Time
}

// Conn is the subset of a single database connection the runner needs.
// *pgxpool.Conn and *pgx.Conn satisfy it.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(fmt.Sprintf("migrate: embedded migrations: %v", err))
	}
	return sub
}

// Load reads every *.sql file at the root of fsys, sorted by version.
func Load(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	migrations := make([]Migration, 0, len(names))
	seen := make(map[int]string, len(names))
	for _, name := range names {
		version, desc, err := parseName(name)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, prev, name)
		}
		seen[version] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(body)) == "" {
			return nil, fmt.Errorf("migration %s is empty", name)
		}

		migrations = append(migrations, Migration{Version: version, Name: desc, SQL: string(body)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func parseName(name string) (int, string, error) {
	stem := strings.TrimSuffix(path.Base(name), ".sql")
	prefix, desc, ok := strings.Cut(stem, "_")
	if !ok || desc == "" {
		return 0, "", fmt.Errorf("migration %s: name must look like 0001_description.sql", name)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("migration %s: version %q must be a positive integer", name, prefix)
	}
	return version, desc, nil
}

// Runner applies migrations to a database.
type Runner struct {
	migrations []Migration
	logger     *zap.Logger
}

// NewRunner loads the migrations in fsys.
func NewRunner(fsys fs.FS, logger *zap.Logger) (*Runner, error) {
	migrations, err := Load(fsys)
	if err != nil {
		return nil, err
	}
	return &Runner{migrations: migrations, logger: logger}, nil
}

// Migrations returns the known migrations in apply order.
func (r *Runner) Migrations() []Migration {
	return r.migrations
}

// Up applies every pending migration and returns how many ran.
func (r *Runner) Up(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	return r.UpConn(ctx, conn)
}

// UpConn is Up on a connection the caller already holds.
func (r *Runner) UpConn(ctx context.Context, conn Conn) (applied int, err error) {
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", lockKey); err != nil {
		return 0, fmt.Errorf("failed to take migration lock: %w", err)
	}
	defer func() {
		// The lock is session scoped, so release it even if ctx is done
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, uerr := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock($1)", lockKey); uerr != nil {
			r.logger.Warn("failed to release migration lock", zap.Error(uerr))
		}
	}()

	if err := ensureTable(ctx, conn); err != nil {
		return 0, err
	}
	done, err := appliedVersions(ctx, conn)
	if err != nil {
		return 0, err
	}

	for _, m := range r.migrations {
		if _, ok := done[m.Version]; ok {
			continue
		}

		start := time.Now()
		if err := apply(ctx, conn, m); err != nil {
			return applied, err
		}
		applied++

		r.logger.Info("Applied migration",
			zap.String("migration", m.ID()),
			zap.Duration("duration", time.Since(start)))
	}

	if applied == 0 {
		r.logger.Info("Schema is up to date", zap.Int("migrations", len(r.migrations)))
	}
	return applied, nil
}

// Status lists every known migration with its apply time, if any.
func (r *Runner) Status(ctx context.Context, conn Conn) ([]Status, error) {
	if err := ensureTable(ctx, conn); err != nil {
		return nil, err
	}
	done, err := appliedVersions(ctx, conn)
	if err != nil {
		return nil, err
	}

	out := make([]Status, 0, len(r.migrations))
	for _, m := range r.migrations {
		s := Status{Migration: m}
		if at, ok := done[m.Version]; ok {
			s.AppliedAt = &at
		}
		out = append(out, s)
	}
	return out, nil
}

func ensureTable(ctx context.Context, conn Conn) error {
	const query = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    BIGINT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn Conn) (map[int]time.Time, error) {
	rows, err := conn.Query(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[int]time.Time)
	for rows.Next() {
		var (
			version   int64
			appliedAt time.Time
		)
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schema_migrations: %w", err)
		}
		done[int(version)] = appliedAt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	return done, nil
}

func apply(ctx context.Context, conn Conn, m Migration) (err error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("migration %s: failed to begin: %w", m.ID(), err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(context.Background())
		}
	}()

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return fmt.Errorf("migration %s failed: %w", m.ID(), err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
		int64(m.Version), m.Name,
	); err != nil {
		return fmt.Errorf("migration %s: failed to record: %w", m.ID(), err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("migration %s: failed to commit: %w", m.ID(), err)
	}
	return nil
}
