// Package apierrors maps medadmin errors to HTTP status codes and the JSON
// error envelope returned by the API.
package apierrors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/devrev/medadmin/internal/tenantkv"
	"github.com/devrev/medadmin/internal/tenants"
	"go.uber.org/zap"
)

// ErrorCode represents application-specific error codes.
type ErrorCode string

const (
	// General errors
	ErrorCodeUnknown        ErrorCode = "UNKNOWN"
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrorCodeServiceDown    ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorCodeTimeout        ErrorCode = "TIMEOUT"
	ErrorCodeRateLimited    ErrorCode = "RATE_LIMITED"
	ErrorCodeNotFound       ErrorCode = "NOT_FOUND"

	// Key-value errors
	ErrorCodeInvalidTenant    ErrorCode = "INVALID_TENANT"
	ErrorCodeInvalidPattern   ErrorCode = "INVALID_PATTERN"
	ErrorCodeKeyNotFound      ErrorCode = "KEY_NOT_FOUND"
	ErrorCodeSerialization    ErrorCode = "SERIALIZATION_FAILED"
	ErrorCodeDeserialization  ErrorCode = "DESERIALIZATION_FAILED"
	ErrorCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// Tenant registry errors
	ErrorCodeTenantNotFound ErrorCode = "TENANT_NOT_FOUND"
	ErrorCodeTenantExists   ErrorCode = "TENANT_EXISTS"
	ErrorCodeInvalidStatus  ErrorCode = "INVALID_STATUS"

	// Auth errors
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden    ErrorCode = "FORBIDDEN"
)

var (
	// ErrKeyNotFound is reported when a tenant key is absent or expired.
	ErrKeyNotFound = errors.New("key not found")

	// ErrUnauthorized is reported for a missing or invalid bearer token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is reported when a valid token names another tenant.
	ErrForbidden = errors.New("forbidden")
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string    `json:"status"`
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

type mapping struct {
	target error
	status int
	code   ErrorCode
}

// Checked in order; the first match wins.
var mappings = []mapping{
	{tenantkv.ErrInvalidTenant, http.StatusBadRequest, ErrorCodeInvalidTenant},
	{tenantkv.ErrInvalidPattern, http.StatusBadRequest, ErrorCodeInvalidPattern},
	{tenantkv.ErrSerialization, http.StatusBadRequest, ErrorCodeSerialization},
	{tenantkv.ErrDeserialization, http.StatusInternalServerError, ErrorCodeDeserialization},
	{tenantkv.ErrStoreUnavailable, http.StatusServiceUnavailable, ErrorCodeStoreUnavailable},
	{ErrKeyNotFound, http.StatusNotFound, ErrorCodeKeyNotFound},
	{tenants.ErrTenantNotFound, http.StatusNotFound, ErrorCodeTenantNotFound},
	{tenants.ErrTenantExists, http.StatusConflict, ErrorCodeTenantExists},
	{tenants.ErrInvalidStatus, http.StatusBadRequest, ErrorCodeInvalidStatus},
	{ErrUnauthorized, http.StatusUnauthorized, ErrorCodeUnauthorized},
	{ErrForbidden, http.StatusForbidden, ErrorCodeForbidden},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, ErrorCodeTimeout},
}

// Handler provides error handling functionality.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new error handler.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

// Store failures carry the namespaced key and the driver error, so clients get
// a fixed message instead.
var publicMessages = map[ErrorCode]string{
	ErrorCodeStoreUnavailable: "key-value store unavailable",
	ErrorCodeDeserialization:  "stored value could not be decoded",
	ErrorCodeServiceDown:      "service unavailable",
	ErrorCodeInternalError:    "internal server error",
}

// HandleError processes an error and writes an appropriate HTTP response.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, errorCode := h.Classify(err)
	requestID := r.Header.Get("X-Request-ID")

	message, ok := publicMessages[errorCode]
	if !ok {
		h.WriteErrorResponse(w, statusCode, errorCode, err.Error(), requestID)
		return
	}

	h.logger.Warn("request failed",
		zap.String("error_code", string(errorCode)),
		zap.String("request_id", requestID),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	h.WriteErrorResponse(w, statusCode, errorCode, message, requestID)
}

// Classify returns the HTTP status and error code for err.
func (h *Handler) Classify(err error) (int, ErrorCode) {
	if err == nil {
		return http.StatusOK, ErrorCodeUnknown
	}

	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}

	// Errors from outside the package sentinels, e.g. a wrapped driver error
	msg := err.Error()
	switch {
	case containsAny(msg, "deadline exceeded", "timeout"):
		return http.StatusGatewayTimeout, ErrorCodeTimeout
	case containsAny(msg, "connection refused", "unavailable"):
		return http.StatusServiceUnavailable, ErrorCodeServiceDown
	case containsAny(msg, "not found"):
		return http.StatusNotFound, ErrorCodeNotFound
	default:
		return http.StatusInternalServerError, ErrorCodeInternalError
	}
}

// WriteErrorResponse writes a formatted error response to the HTTP response writer.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, errorCode ErrorCode, message string, requestID string) {
	h.logger.Warn("HTTP error response",
		zap.Int("status_code", statusCode),
		zap.String("error_code", string(errorCode)),
		zap.String("message", message),
		zap.String("request_id", requestID),
	)

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// WriteValidationError writes a validation error response.
func (h *Handler) WriteValidationError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, ErrorCodeInvalidRequest, message, requestID)
}

// WriteNotFound writes a not found response.
func (h *Handler) WriteNotFound(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusNotFound, ErrorCodeNotFound, message, requestID)
}

// WriteInternalError writes an internal error response.
func (h *Handler) WriteInternalError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusInternalServerError, ErrorCodeInternalError, message, requestID)
}

// WriteServiceUnavailable writes a service unavailable response.
func (h *Handler) WriteServiceUnavailable(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusServiceUnavailable, ErrorCodeServiceDown, message, requestID)
}

// WriteRateLimitedError writes a rate limit exceeded response.
func (h *Handler) WriteRateLimitedError(w http.ResponseWriter, requestID string) {
	h.WriteErrorResponse(w, http.StatusTooManyRequests, ErrorCodeRateLimited, "rate limit exceeded", requestID)
}

// WriteUnauthorized writes an unauthorized response.
func (h *Handler) WriteUnauthorized(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusUnauthorized, ErrorCodeUnauthorized, message, requestID)
}

// WriteForbidden writes a forbidden response.
func (h *Handler) WriteForbidden(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusForbidden, ErrorCodeForbidden, message, requestID)
}

// containsAny checks if the string contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	sLower := strings.ToLower(s)
	for _, substr := range substrs {
		if strings.Contains(sLower, strings.ToLower(substr)) {
			return true
		}
	}
	return false
}
