package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kominfo-unma/canva-claim-api/internal/app/sessions"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/identity"
)

// TokenVerifier resolves a bearer token to the admin it belongs to.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (identity.User, error)
}

// VerifierFunc adapts a function such as sessions.Service.Current.
type VerifierFunc func(ctx context.Context, token string) (identity.User, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (identity.User, error) {
	return f(ctx, token)
}

// NewAuthMiddleware enforces Authorization: Bearer <token> on the routes it wraps.
//
// On success, it stores the user and the raw token in request context.
func NewAuthMiddleware(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if authz == "" {
				writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "missing Authorization header", nil)
				return
			}
			const prefix = "Bearer "
			if len(authz) < len(prefix) || !strings.EqualFold(authz[:len(prefix)], prefix) {
				writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "malformed Authorization header", nil)
				return
			}
			raw := strings.TrimSpace(authz[len(prefix):])
			if raw == "" {
				writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "missing bearer token", nil)
				return
			}

			u, err := v.Verify(r.Context(), raw)
			if se := (*sessions.Error)(nil); errors.As(err, &se) && se.Code == sessions.CodeConfiguration {
				writeError(w, r, se.Status, se.Code, se.Message, nil)
				return
			}
			if err != nil || u.ID == "" {
				writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "invalid token", nil)
				return
			}

			ctx := WithAccessToken(WithUser(r.Context(), u), raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
