// internal/auth/middleware.go
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"bookswap/internal/httpx"
)

type contextKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFrom returns the authenticated caller stored by Middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// TokenFromHeader accepts both "Bearer <token>" and a raw token.
func TokenFromHeader(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

type middlewareConfig struct {
	rejectStatus int
}

// Option tunes Middleware.
type Option func(*middlewareConfig)

// WithRejectStatus sets the status returned for a present but invalid
// token. The default is 401.
func WithRejectStatus(status int) Option {
	return func(c *middlewareConfig) { c.rejectStatus = status }
}

// Middleware authenticates requests with v. A missing credential yields 401,
// an invalid one the reject status, an unreachable verifier 503.
func Middleware(v Verifier, logger *zap.Logger, opts ...Option) func(http.Handler) http.Handler {
	cfg := middlewareConfig{rejectStatus: http.StatusUnauthorized}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromHeader(r.Header.Get("Authorization"))
			if token == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "no token provided")
				return
			}

			res, err := v.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, ErrVerifierUnavailable) {
					logger.Warn("credential verifier unavailable", zap.Error(err))
					httpx.WriteError(w, http.StatusServiceUnavailable, "authentication service unavailable")
					return
				}
				logger.Error("token verification failed", zap.Error(err))
				httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if !res.Valid || res.User == nil {
				httpx.WriteError(w, cfg.rejectStatus, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), *res.User)))
		})
	}
}
