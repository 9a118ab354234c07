package apierrors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/devrev/medadmin/internal/tenantkv"
	"github.com/devrev/medadmin/internal/tenants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHandler_Classify(t *testing.T) {
	handler := NewHandler(zap.NewNop())

	tests := []struct {
		name         string
		err          error
		expectedHTTP int
		expectedCode ErrorCode
	}{
		{"invalid tenant", fmt.Errorf("%w: tenant id is empty", tenantkv.ErrInvalidTenant), http.StatusBadRequest, ErrorCodeInvalidTenant},
		{"invalid pattern", fmt.Errorf("%w %q", tenantkv.ErrInvalidPattern, "["), http.StatusBadRequest, ErrorCodeInvalidPattern},
		{"serialization", fmt.Errorf("%w: key %q", tenantkv.ErrSerialization, "k"), http.StatusBadRequest, ErrorCodeSerialization},
		{"deserialization", tenantkv.ErrDeserialization, http.StatusInternalServerError, ErrorCodeDeserialization},
		{"store unavailable", fmt.Errorf("%w: dial tcp: %w", tenantkv.ErrStoreUnavailable, errors.New("i/o timeout")), http.StatusServiceUnavailable, ErrorCodeStoreUnavailable},
		{"key not found", ErrKeyNotFound, http.StatusNotFound, ErrorCodeKeyNotFound},
		{"tenant not found", fmt.Errorf("failed to get tenant: %w", tenants.ErrTenantNotFound), http.StatusNotFound, ErrorCodeTenantNotFound},
		{"tenant exists", tenants.ErrTenantExists, http.StatusConflict, ErrorCodeTenantExists},
		{"invalid status", tenants.ErrInvalidStatus, http.StatusBadRequest, ErrorCodeInvalidStatus},
		{"unauthorized", fmt.Errorf("%w: token expired", ErrUnauthorized), http.StatusUnauthorized, ErrorCodeUnauthorized},
		{"forbidden", ErrForbidden, http.StatusForbidden, ErrorCodeForbidden},
		{"deadline", fmt.Errorf("list keys: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, ErrorCodeTimeout},
		{"timeout message", errors.New("read timeout"), http.StatusGatewayTimeout, ErrorCodeTimeout},
		{"refused message", errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable, ErrorCodeServiceDown},
		{"not found message", errors.New("route not found"), http.StatusNotFound, ErrorCodeNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ErrorCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := handler.Classify(tt.err)
			assert.Equal(t, tt.expectedHTTP, status)
			assert.Equal(t, tt.expectedCode, code)
		})
	}

	t.Run("nil error", func(t *testing.T) {
		status, _ := handler.Classify(nil)
		assert.Equal(t, http.StatusOK, status)
	})
}

func TestHandler_HandleError(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	handler := NewHandler(zap.New(core))

	tests := []struct {
		name         string
		err          error
		expectedHTTP int
		expectedCode ErrorCode
		message      string
		logged       bool
	}{
		{
			"store unavailable hides driver detail",
			fmt.Errorf("%w: get tenant:acme:a: %w", tenantkv.ErrStoreUnavailable, errors.New("dial tcp 10.0.0.7:6379: connect: connection refused")),
			http.StatusServiceUnavailable, ErrorCodeStoreUnavailable, "key-value store unavailable", true,
		},
		{
			"deserialization hides stored content",
			fmt.Errorf("%w: key %q: %w", tenantkv.ErrDeserialization, "a", errors.New("invalid character 'n'")),
			http.StatusInternalServerError, ErrorCodeDeserialization, "stored value could not be decoded", true,
		},
		{
			"unclassified error hides detail",
			errors.New("pq: password authentication failed for user \"admin\""),
			http.StatusInternalServerError, ErrorCodeInternalError, "internal server error", true,
		},
		{
			"client error keeps detail",
			fmt.Errorf("%w %q", tenantkv.ErrInvalidPattern, "["),
			http.StatusBadRequest, ErrorCodeInvalidPattern, `invalid key pattern "["`, false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs.TakeAll()
			req := httptest.NewRequest(http.MethodGet, "/v1/tenants/acme/kv/a", nil)
			req.Header.Set("X-Request-ID", "req-1")
			w := httptest.NewRecorder()

			handler.HandleError(w, req, tt.err)

			assert.Equal(t, tt.expectedHTTP, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.expectedCode, resp.ErrorCode)
			assert.Equal(t, tt.message, resp.Message)
			assert.Equal(t, "req-1", resp.RequestID)

			failed := logs.FilterMessage("request failed").All()
			if !tt.logged {
				assert.Empty(t, failed)
				return
			}
			require.Len(t, failed, 1)
			assert.Equal(t, tt.err.Error(), failed[0].ContextMap()["error"])
		})
	}
}

func TestHandler_WriteHelpers(t *testing.T) {
	handler := NewHandler(zap.NewNop())

	tests := []struct {
		name         string
		write        func(w http.ResponseWriter)
		expectedHTTP int
		expectedCode ErrorCode
	}{
		{"validation", func(w http.ResponseWriter) { handler.WriteValidationError(w, "bad ttl", "r") }, http.StatusBadRequest, ErrorCodeInvalidRequest},
		{"not found", func(w http.ResponseWriter) { handler.WriteNotFound(w, "missing", "r") }, http.StatusNotFound, ErrorCodeNotFound},
		{"internal", func(w http.ResponseWriter) { handler.WriteInternalError(w, "oops", "r") }, http.StatusInternalServerError, ErrorCodeInternalError},
		{"unavailable", func(w http.ResponseWriter) { handler.WriteServiceUnavailable(w, "down", "r") }, http.StatusServiceUnavailable, ErrorCodeServiceDown},
		{"rate limited", func(w http.ResponseWriter) { handler.WriteRateLimitedError(w, "r") }, http.StatusTooManyRequests, ErrorCodeRateLimited},
		{"unauthorized", func(w http.ResponseWriter) { handler.WriteUnauthorized(w, "no token", "r") }, http.StatusUnauthorized, ErrorCodeUnauthorized},
		{"forbidden", func(w http.ResponseWriter) { handler.WriteForbidden(w, "other tenant", "r") }, http.StatusForbidden, ErrorCodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.expectedHTTP, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedCode, resp.ErrorCode)
			assert.Equal(t, "r", resp.RequestID)
		})
	}
}
