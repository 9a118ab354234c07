package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/devrev/medadmin/internal/apierrors"
	"github.com/devrev/medadmin/internal/config"
	"github.com/devrev/medadmin/internal/migrate"
	"github.com/devrev/medadmin/internal/store"
	"github.com/devrev/medadmin/internal/tenantkv"
	"github.com/devrev/medadmin/internal/tenants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// useMemoryBackend points the kv commands at one shared in-memory store.
func useMemoryBackend(t *testing.T) *store.MemoryStore {
	t.Helper()
	t.Setenv("MEDADMIN_KV_BACKEND", "memory")
	t.Setenv("MEDADMIN_LOGGING_LEVEL", "error")

	mem := store.NewMemoryStore(0, zap.NewNop())
	orig := openBackend
	openBackend = func(context.Context, *config.Config, *zap.Logger) (store.Backend, error) {
		return mem, nil
	}
	t.Cleanup(func() { openBackend = orig })
	return mem
}

func TestPagesCmd(t *testing.T) {
	tests := []struct {
		args     []string
		expected string
	}{
		{[]string{"pages", "--page", "1", "--total", "10"}, "1 2 3 ... 10\n"},
		{[]string{"pages", "--page", "5", "--total", "7"}, "1 2 3 4 5 6 7\n"},
		{[]string{"pages", "--page", "50", "--total", "100"}, "1 ... 48 49 50 51 52 ... 100\n"},
		{[]string{"pages", "--page", "1", "--total", "10", "--json"}, "[1,2,3,\"...\",10]\n"},
		{[]string{"pages", "--total", "0"}, "\n"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, err := execute(t, "", tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestKVCmd_RoundTrip(t *testing.T) {
	useMemoryBackend(t)

	_, err := execute(t, "", "kv", "set", "--tenant", "acme", "settings", `{"theme":"dark"}`)
	require.NoError(t, err)

	out, err := execute(t, "", "kv", "get", "--tenant", "acme", "settings")
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme":"dark"}`, out)

	_, err = execute(t, `["from","stdin"]`, "kv", "set", "--tenant", "acme", "list", "-")
	require.NoError(t, err)

	out, err = execute(t, "", "kv", "keys", "--tenant", "acme")
	require.NoError(t, err)
	assert.Equal(t, "list\nsettings\n", out)

	_, err = execute(t, "", "kv", "del", "--tenant", "acme", "settings")
	require.NoError(t, err)

	_, err = execute(t, "", "kv", "get", "--tenant", "acme", "settings")
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrKeyNotFound)
}

func TestKVCmd_KeysPaged(t *testing.T) {
	mem := useMemoryBackend(t)
	kv := tenantkv.New(mem, zap.NewNop())
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, kv.Set(context.Background(), "acme", k, 1, 0))
	}

	out, err := execute(t, "", "kv", "keys", "--tenant", "acme", "--per-page", "2", "--page", "2")
	require.NoError(t, err)
	assert.Equal(t, "c\nd\npage 2 of 3: 1 2 3\n", out)
}

func TestKVCmd_Errors(t *testing.T) {
	useMemoryBackend(t)

	_, err := execute(t, "", "kv", "get", "settings")
	assert.Error(t, err, "missing --tenant")

	_, err = execute(t, "", "kv", "set", "--tenant", "acme", "k", "not json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid JSON")

	_, err = execute(t, "", "kv", "get", "--tenant", "ac:me", "k")
	assert.ErrorIs(t, err, tenantkv.ErrInvalidTenant)
}

func TestWriteMigrationStatus(t *testing.T) {
	migrations, err := migrate.Load(migrate.Embedded())
	require.NoError(t, err)

	statuses := make([]migrate.Status, len(migrations))
	for i, m := range migrations {
		statuses[i] = migrate.Status{Migration: m}
	}

	var out bytes.Buffer
	require.NoError(t, writeMigrationStatus(&out, statuses))
	assert.Contains(t, out.String(), "MIGRATION")
	assert.Contains(t, out.String(), "0001_create_tenants")
	assert.Contains(t, out.String(), "pending")
}

// registry is a map-backed tenants.Repository shared across invocations.
type registry map[string]tenants.Tenant

func (r registry) Create(_ context.Context, t *tenants.Tenant) error {
	if _, ok := r[t.TenantID]; ok {
		return tenants.ErrTenantExists
	}
	r[t.TenantID] = *t
	return nil
}

func (r registry) Get(_ context.Context, id string) (*tenants.Tenant, error) {
	t, ok := r[id]
	if !ok {
		return nil, tenants.ErrTenantNotFound
	}
	return &t, nil
}

func (r registry) List(context.Context) ([]*tenants.Tenant, error) {
	out := make([]*tenants.Tenant, 0, len(r))
	for _, id := range []string{"acme", "globex"} {
		if t, ok := r[id]; ok {
			out = append(out, &t)
		}
	}
	return out, nil
}

func (r registry) UpdateStatus(_ context.Context, id string, status tenants.Status, at time.Time) error {
	t, ok := r[id]
	if !ok {
		return tenants.ErrTenantNotFound
	}
	t.Status, t.UpdatedAt = status, at
	r[id] = t
	return nil
}

func (r registry) Delete(_ context.Context, id string) error {
	if _, ok := r[id]; !ok {
		return tenants.ErrTenantNotFound
	}
	delete(r, id)
	return nil
}

func useRegistry(t *testing.T) registry {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://unused/medadmin")
	t.Setenv("MEDADMIN_LOGGING_LEVEL", "error")

	reg := registry{}
	orig := openTenantRepository
	openTenantRepository = func(context.Context, *config.Config) (tenants.Repository, func(), error) {
		return reg, func() {}, nil
	}
	t.Cleanup(func() { openTenantRepository = orig })
	return reg
}

func TestTenantsCmd(t *testing.T) {
	reg := useRegistry(t)

	out, err := execute(t, "", "tenants", "create", "acme", "--name", "Acme Clinic")
	require.NoError(t, err)
	var created tenants.Tenant
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, tenants.StatusActive, created.Status)

	_, err = execute(t, "", "tenants", "create", "globex")
	require.NoError(t, err)

	_, err = execute(t, "", "tenants", "create", "acme")
	assert.ErrorIs(t, err, tenants.ErrTenantExists)

	_, err = execute(t, "", "tenants", "suspend", "acme")
	require.NoError(t, err)
	assert.Equal(t, tenants.StatusSuspended, reg["acme"].Status)

	out, err = execute(t, "", "tenants", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "Acme Clinic")
	assert.Contains(t, lines[1], "suspended")

	_, err = execute(t, "", "tenants", "activate", "acme")
	require.NoError(t, err)
	assert.Equal(t, tenants.StatusActive, reg["acme"].Status)

	_, err = execute(t, "", "tenants", "delete", "globex")
	require.NoError(t, err)

	_, err = execute(t, "", "tenants", "get", "globex")
	assert.ErrorIs(t, err, tenants.ErrTenantNotFound)

	_, err = execute(t, "", "tenants", "create", "ac:me")
	assert.ErrorIs(t, err, tenantkv.ErrInvalidTenant)
}
