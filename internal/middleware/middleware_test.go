package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/devrev/medadmin/internal/apierrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		assert.Equal(t, seen, r.Header.Get("X-Request-ID"))
	}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"absent", "", false},
		{"client supplied", "req-2026-abc", true},
		{"contains space", "bad id", false},
		{"too long", strings.Repeat("x", maxRequestIDLen+1), false},
		{"control character", "id\x01", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/pagination", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-ID", tt.incoming)
			}
			w := serve(handler, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
			if tt.keep {
				assert.Equal(t, tt.incoming, seen)
			} else {
				assert.NotEqual(t, tt.incoming, seen)
			}
		})
	}
}

func TestLogging_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	tests := []struct {
		path   string
		status int
		level  zapcore.Level
	}{
		{"/v1/tenants/acme/kv/a", http.StatusOK, zapcore.InfoLevel},
		{"/v1/tenants/acme/kv/a", http.StatusNotFound, zapcore.InfoLevel},
		{"/v1/tenants/acme/kv/a", http.StatusServiceUnavailable, zapcore.WarnLevel},
		{"/health", http.StatusOK, zapcore.DebugLevel},
		{"/ready", http.StatusServiceUnavailable, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		handler := Logging(logger, "/health", "/ready")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := r.Context().Value(StartTimeKey).(time.Time)
			assert.True(t, ok)
			w.WriteHeader(tt.status)
			w.Write([]byte("body"))
		}))
		serve(handler, httptest.NewRequest(http.MethodGet, tt.path, nil))

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, tt.level, entries[0].Level, "%s %d", tt.path, tt.status)
		fields := entries[0].ContextMap()
		assert.EqualValues(t, tt.status, fields["status"])
		assert.EqualValues(t, 4, fields["bytes"])
	}
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	logger := zap.New(core)
	errHandler := apierrors.NewHandler(zap.NewNop())

	t.Run("recovers from panic", func(t *testing.T) {
		handler := Recovery(errHandler, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("unexpected error")
		}))

		req := httptest.NewRequest(http.MethodGet, "/v1/tenants/acme/kv/a", nil)
		req.Header.Set("X-Request-ID", "req-1")
		w := serve(handler, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
		assert.Contains(t, w.Body.String(), "req-1")
		assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
	})

	t.Run("passes through normal requests", func(t *testing.T) {
		w := serve(Recovery(errHandler, logger)(statusHandler(http.StatusOK)), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("re-panics on abort", func(t *testing.T) {
		handler := Recovery(errHandler, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		}))
		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))
		})
	})
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name          string
		allowed       []string
		method        string
		origin        string
		preflight     bool
		expectedCode  int
		expectedAllow string
	}{
		{"allowed origin", []string{"https://admin.example.com"}, http.MethodGet, "https://admin.example.com", false, http.StatusTeapot, "https://admin.example.com"},
		{"origin case differs", []string{"https://Admin.Example.com"}, http.MethodGet, "https://admin.example.com", false, http.StatusTeapot, "https://admin.example.com"},
		{"disallowed origin", []string{"https://admin.example.com"}, http.MethodGet, "https://evil.example.com", false, http.StatusTeapot, ""},
		{"no origin", []string{"*"}, http.MethodGet, "", false, http.StatusTeapot, ""},
		{"preflight wildcard", []string{"*"}, http.MethodOptions, "https://x.example.com", true, http.StatusNoContent, "https://x.example.com"},
		{"preflight disallowed", []string{"https://admin.example.com"}, http.MethodOptions, "https://evil.example.com", true, http.StatusNoContent, ""},
		{"plain OPTIONS reaches router", []string{"*"}, http.MethodOptions, "https://x.example.com", false, http.StatusTeapot, "https://x.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/tenants/acme/kv/a", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPut)
			}

			w := serve(CORS(tt.allowed)(statusHandler(http.StatusTeapot)), req)

			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Equal(t, tt.expectedAllow, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.preflight && tt.expectedAllow != "" {
				assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
				assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
			}
			if tt.origin != "" {
				assert.Equal(t, "Origin", w.Header().Get("Vary"))
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	logger := zap.NewNop()
	errHandler := apierrors.NewHandler(logger)

	t.Run("allows burst", func(t *testing.T) {
		handler := NewRateLimiter(10, 5, errHandler, logger).Limit(statusHandler(http.StatusOK))

		for i := 0; i < 5; i++ {
			w := serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("rejects with retry after", func(t *testing.T) {
		handler := NewRateLimiter(0.1, 1, errHandler, logger).Limit(statusHandler(http.StatusOK))

		assert.Equal(t, http.StatusOK, serve(handler, httptest.NewRequest(http.MethodGet, "/", nil)).Code)

		w := serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "RATE_LIMITED")
		assert.Equal(t, "10", w.Header().Get("Retry-After"))

		// a rejected request does not consume the next token
		w = serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, "10", w.Header().Get("Retry-After"))
	})
}

func TestTimeout(t *testing.T) {
	hasDeadline := func(expected bool) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := r.Context().Deadline()
			assert.Equal(t, expected, ok)
		})
	}

	serve(Timeout(5*time.Second)(hasDeadline(true)), httptest.NewRequest(http.MethodGet, "/", nil))
	serve(Timeout(0)(hasDeadline(false)), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	n, err := rw.Write([]byte("ok"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rw.statusCode)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, rw.written)
	assert.Equal(t, rec, rw.Unwrap())
}

func TestChain(t *testing.T) {
	var order []string

	wrap := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+"-before")
				next.ServeHTTP(w, r)
				order = append(order, name+"-after")
			})
		}
	}

	handler := Chain(wrap("m1"), wrap("m2"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))

	serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"m1-before", "m2-before", "handler", "m2-after", "m1-after"}, order)
}
