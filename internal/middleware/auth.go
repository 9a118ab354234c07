package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/devrev/medadmin/internal/apierrors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// RoleAdmin may act on any tenant.
const RoleAdmin = "admin"

// Claims are the bearer token claims medadmin understands.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// CanAccess reports whether the token holder may act on tenantID.
func (c *Claims) CanAccess(tenantID string) bool {
	return c.Role == RoleAdmin || c.TenantID == tenantID
}

// ClaimsFromContext returns the claims verified by Authenticator, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// Authenticator verifies HS256 bearer tokens and scopes requests to the
// tenant named in the token.
type Authenticator struct {
	secret     []byte
	parser     *jwt.Parser
	errHandler *apierrors.Handler
	logger     *zap.Logger
}

// NewAuthenticator creates an Authenticator. An empty issuer disables the
// issuer check.
func NewAuthenticator(secret, issuer string, errHandler *apierrors.Handler, logger *zap.Logger) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	return &Authenticator{
		secret:     []byte(secret),
		parser:     jwt.NewParser(opts...),
		errHandler: errHandler,
		logger:     logger,
	}
}

// Verify parses and validates a raw token.
func (a *Authenticator) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apierrors.ErrUnauthorized, err)
	}
	if claims.TenantID == "" && claims.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: token has no tenant_id", apierrors.ErrUnauthorized)
	}
	return claims, nil
}

// Authenticate must run after route matching (router.Use) so the
// {tenant_id} path variable is available.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")

		raw, err := bearerToken(r)
		if err != nil {
			a.errHandler.WriteUnauthorized(w, err.Error(), requestID)
			return
		}

		claims, err := a.Verify(raw)
		if err != nil {
			a.logger.Debug("rejected bearer token",
				zap.String("request_id", requestID),
				zap.Error(err))
			a.errHandler.WriteUnauthorized(w, "invalid token", requestID)
			return
		}

		if tenantID, ok := mux.Vars(r)["tenant_id"]; ok && !claims.CanAccess(tenantID) {
			a.logger.Warn("tenant access denied",
				zap.String("request_id", requestID),
				zap.String("tenant_id", tenantID),
				zap.String("token_tenant_id", claims.TenantID))
			a.errHandler.WriteForbidden(w, "token does not grant access to this tenant", requestID)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("authorization header must be a bearer token")
	}
	return strings.TrimSpace(token), nil
}

// RequireAdmin rejects requests whose verified token lacks the admin role.
// It must be chained after Authenticate.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims.Role != RoleAdmin {
			a.errHandler.WriteForbidden(w, "admin role required", r.Header.Get("X-Request-ID"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
