package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/devrev/medadmin/internal/apierrors"
	"github.com/devrev/medadmin/internal/tenants"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxTenantBodyBytes = 64 << 10

// CreateTenantRequest is the body of CreateTenant.
type CreateTenantRequest struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}

// UpdateTenantStatusRequest is the body of UpdateTenantStatus.
type UpdateTenantStatusRequest struct {
	Status tenants.Status `json:"status"`
}

// ListTenantsResponse lists every registered tenant.
type ListTenantsResponse struct {
	Tenants []*tenants.Tenant `json:"tenants"`
	Total   int               `json:"total"`
}

// TenantHandlers serves the tenant registry.
type TenantHandlers struct {
	tenants      *tenants.Service
	errorHandler *apierrors.Handler
	logger       *zap.Logger
	timeout      time.Duration
}

// NewTenantHandlers creates tenant registry handlers.
func NewTenantHandlers(
	svc *tenants.Service,
	errorHandler *apierrors.Handler,
	logger *zap.Logger,
	timeout time.Duration,
) *TenantHandlers {
	return &TenantHandlers{
		tenants:      svc,
		errorHandler: errorHandler,
		logger:       logger,
		timeout:      timeout,
	}
}

// CreateTenant handles POST /v1/tenants requests.
func (h *TenantHandlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req CreateTenantRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	ctx, cancel := withTimeout(r, h.timeout)
	defer cancel()

	tenant, err := h.tenants.Create(ctx, req.TenantID, req.Name)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, tenant)
}

// ListTenants handles GET /v1/tenants requests.
func (h *TenantHandlers) ListTenants(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, h.timeout)
	defer cancel()

	all, err := h.tenants.List(ctx)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, ListTenantsResponse{Tenants: all, Total: len(all)})
}

// GetTenant handles GET /v1/tenants/{tenant_id} requests.
func (h *TenantHandlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, h.timeout)
	defer cancel()

	tenant, err := h.tenants.Get(ctx, mux.Vars(r)["tenant_id"])
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, tenant)
}

// UpdateTenantStatus handles PUT /v1/tenants/{tenant_id}/status requests.
func (h *TenantHandlers) UpdateTenantStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req UpdateTenantStatusRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	ctx, cancel := withTimeout(r, h.timeout)
	defer cancel()

	tenant, err := h.tenants.SetStatus(ctx, mux.Vars(r)["tenant_id"], req.Status)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, tenant)
}

// DeleteTenant handles DELETE /v1/tenants/{tenant_id} requests.
func (h *TenantHandlers) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, h.timeout)
	defer cancel()

	if err := h.tenants.Delete(ctx, mux.Vars(r)["tenant_id"]); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTenantBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
