// Package handler provides HTTP request handlers for the medadmin API.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/devrev/medadmin/internal/apierrors"
	"github.com/devrev/medadmin/internal/config"
	"github.com/devrev/medadmin/internal/pagination"
	"github.com/devrev/medadmin/internal/tenantkv"
	"go.uber.org/zap"
)

// KeyValueResponse is the body of a successful GetValue.
type KeyValueResponse struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// ListKeysResponse is one page of a tenant's keys.
type ListKeysResponse struct {
	Keys       []string           `json:"keys"`
	Page       int                `json:"page"`
	PerPage    int                `json:"per_page"`
	Total      int                `json:"total"`
	TotalPages int                `json:"total_pages"`
	Pages      []pagination.Label `json:"pages"`
}

// PaginationResponse is the body of the page-label helper.
type PaginationResponse struct {
	Page       int                `json:"page"`
	TotalPages int                `json:"total_pages"`
	Pages      []pagination.Label `json:"pages"`
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	kv             *tenantkv.Store
	errorHandler   *apierrors.Handler
	logger         *zap.Logger
	timeout        time.Duration
	defaultPerPage int
	maxPerPage     int
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	kv *tenantkv.Store,
	errorHandler *apierrors.Handler,
	logger *zap.Logger,
	cfg *config.Config,
) *Handlers {
	return &Handlers{
		kv:             kv,
		errorHandler:   errorHandler,
		logger:         logger,
		timeout:        cfg.Server.RequestTimeout,
		defaultPerPage: cfg.KV.DefaultPerPage,
		maxPerPage:     cfg.KV.MaxPerPage,
	}
}

func (h *Handlers) context(r *http.Request) (context.Context, context.CancelFunc) {
	return withTimeout(r, h.timeout)
}

func withTimeout(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), timeout)
}

// PutValue handles PUT /v1/tenants/{tenant_id}/kv/{key} requests.
func (h *Handlers) PutValue(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	path, err := parseKVPath(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}
	ttl, err := parseTTL(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}
	value, err := readValue(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	ctx, cancel := h.context(r)
	defer cancel()

	if err := h.kv.Set(ctx, path.TenantID, path.Key, value, ttl); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetValue handles GET /v1/tenants/{tenant_id}/kv/{key} requests.
func (h *Handlers) GetValue(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	path, err := parseKVPath(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	ctx, cancel := h.context(r)
	defer cancel()

	value, found, err := h.kv.GetRaw(ctx, path.TenantID, path.Key)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if !found {
		h.errorHandler.HandleError(w, r, fmt.Errorf("%w: %q", apierrors.ErrKeyNotFound, path.Key))
		return
	}

	h.writeJSONResponse(w, http.StatusOK, KeyValueResponse{Key: path.Key, Value: value})
}

// DeleteValue handles DELETE /v1/tenants/{tenant_id}/kv/{key} requests.
func (h *Handlers) DeleteValue(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	path, err := parseKVPath(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	ctx, cancel := h.context(r)
	defer cancel()

	if err := h.kv.Delete(ctx, path.TenantID, path.Key); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListKeys handles GET /v1/tenants/{tenant_id}/kv requests.
func (h *Handlers) ListKeys(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	req, err := parseListKeysRequest(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	ctx, cancel := h.context(r)
	defer cancel()

	keys, err := h.kv.ListKeys(ctx, req.TenantID, req.Pattern)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	window := pagination.NewWindow(req.Page, req.PerPage, len(keys), h.defaultPerPage, h.maxPerPage)

	h.writeJSONResponse(w, http.StatusOK, ListKeysResponse{
		Keys:       pagination.Slice(window, keys),
		Page:       window.Page,
		PerPage:    window.PerPage,
		Total:      window.Total,
		TotalPages: window.TotalPages(),
		Pages:      window.Labels(),
	})
}

// Pagination handles GET /v1/pagination requests.
func (h *Handlers) Pagination(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	page, err := intParam(r, "page", 1)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}
	totalPages, err := intParam(r, "total_pages", 0)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, PaginationResponse{
		Page:       page,
		TotalPages: totalPages,
		Pages:      pagination.PageNumbers(page, totalPages),
	})
}

// writeJSONResponse writes a JSON response to the HTTP response writer.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, h.logger, statusCode, data)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}
