package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/devrev/medadmin/internal/apierrors"
	"github.com/devrev/medadmin/internal/store"
	"github.com/devrev/medadmin/internal/tenants"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memRepository is an in-memory tenants.Repository.
type memRepository struct {
	mu   sync.Mutex
	rows map[string]tenants.Tenant
}

func newMemRepository() *memRepository {
	return &memRepository{rows: make(map[string]tenants.Tenant)}
}

func (m *memRepository) Create(_ context.Context, t *tenants.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[t.TenantID]; ok {
		return fmt.Errorf("%w: %q", tenants.ErrTenantExists, t.TenantID)
	}
	m.rows[t.TenantID] = *t
	return nil
}

func (m *memRepository) Get(_ context.Context, id string) (*tenants.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", tenants.ErrTenantNotFound, id)
	}
	return &t, nil
}

func (m *memRepository) List(context.Context) ([]*tenants.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*tenants.Tenant, 0, len(m.rows))
	for _, t := range m.rows {
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

func (m *memRepository) UpdateStatus(_ context.Context, id string, status tenants.Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("%w: %q", tenants.ErrTenantNotFound, id)
	}
	t.Status = status
	t.UpdatedAt = at
	m.rows[id] = t
	return nil
}

func (m *memRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return fmt.Errorf("%w: %q", tenants.ErrTenantNotFound, id)
	}
	delete(m.rows, id)
	return nil
}

func newTenantRouter(t *testing.T) *mux.Router {
	t.Helper()
	logger := zap.NewNop()

	cache := store.NewMemoryStore(100, logger)
	t.Cleanup(func() { cache.Close() })
	svc := tenants.NewService(newMemRepository(), cache, time.Minute, logger)
	h := NewTenantHandlers(svc, apierrors.NewHandler(logger), logger, 5*time.Second)

	router := mux.NewRouter()
	router.HandleFunc("/v1/tenants", h.CreateTenant).Methods(http.MethodPost)
	router.HandleFunc("/v1/tenants", h.ListTenants).Methods(http.MethodGet)
	router.HandleFunc("/v1/tenants/{tenant_id}", h.GetTenant).Methods(http.MethodGet)
	router.HandleFunc("/v1/tenants/{tenant_id}", h.DeleteTenant).Methods(http.MethodDelete)
	router.HandleFunc("/v1/tenants/{tenant_id}/status", h.UpdateTenantStatus).Methods(http.MethodPut)
	return router
}

func decodeError(t *testing.T, body []byte) apierrors.ErrorResponse {
	t.Helper()
	var resp apierrors.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestTenantHandlers_Lifecycle(t *testing.T) {
	router := newTenantRouter(t)

	w := do(router, http.MethodPost, "/v1/tenants", `{"tenant_id":"acme","name":"Acme Clinic"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created tenants.Tenant
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "acme", created.TenantID)
	assert.Equal(t, tenants.StatusActive, created.Status)

	w = do(router, http.MethodPost, "/v1/tenants", `{"tenant_id":"acme"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apierrors.ErrorCodeTenantExists, decodeError(t, w.Body.Bytes()).ErrorCode)

	w = do(router, http.MethodPut, "/v1/tenants/acme/status", `{"status":"suspended"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(router, http.MethodGet, "/v1/tenants/acme", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got tenants.Tenant
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, tenants.StatusSuspended, got.Status)

	w = do(router, http.MethodGet, "/v1/tenants", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list ListTenantsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	w = do(router, http.MethodDelete, "/v1/tenants/acme", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(router, http.MethodGet, "/v1/tenants/acme", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apierrors.ErrorCodeTenantNotFound, decodeError(t, w.Body.Bytes()).ErrorCode)
}

func TestTenantHandlers_Validation(t *testing.T) {
	router := newTenantRouter(t)

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		expected int
		code     apierrors.ErrorCode
	}{
		{"malformed body", http.MethodPost, "/v1/tenants", `{"tenant_id":`, http.StatusBadRequest, apierrors.ErrorCodeInvalidRequest},
		{"unknown field", http.MethodPost, "/v1/tenants", `{"tenant_id":"a","plan":"gold"}`, http.StatusBadRequest, apierrors.ErrorCodeInvalidRequest},
		{"colon in tenant", http.MethodPost, "/v1/tenants", `{"tenant_id":"a:b"}`, http.StatusBadRequest, apierrors.ErrorCodeInvalidTenant},
		{"empty tenant", http.MethodPost, "/v1/tenants", `{"name":"x"}`, http.StatusBadRequest, apierrors.ErrorCodeInvalidTenant},
		{"bad status", http.MethodPut, "/v1/tenants/acme/status", `{"status":"archived"}`, http.StatusBadRequest, apierrors.ErrorCodeInvalidStatus},
		{"status of unknown tenant", http.MethodPut, "/v1/tenants/ghost/status", `{"status":"active"}`, http.StatusNotFound, apierrors.ErrorCodeTenantNotFound},
		{"delete unknown tenant", http.MethodDelete, "/v1/tenants/ghost", "", http.StatusNotFound, apierrors.ErrorCodeTenantNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.expected, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decodeError(t, w.Body.Bytes()).ErrorCode)
		})
	}
}
