package httpx

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/aussiebroadwan/atelier/pkg/jwtx"
	"github.com/aussiebroadwan/atelier/pkg/slogx"
)

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyRole   ctxKey = "role"
	CtxKeyToken  ctxKey = "token"
)

// UserID returns the authenticated subject stored by BearerAuth.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyUserID).(string)
	return v
}

// Role returns the authenticated role stored by BearerAuth.
func Role(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyRole).(string)
	return v
}

// Token returns the raw bearer token stored by BearerAuth.
func Token(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyToken).(string)
	return v
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))
	return raw, raw != ""
}

// BearerAuth verifies the bearer token and injects subject and role into the
// request context. accept lets the caller reject tokens that verify but were
// revoked (e.g. after logout).
func BearerAuth(v jwtx.Verifier, accept func(raw string, c jwtx.Claims) bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				log.Debug("jwt verify failed", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			if accept != nil && !accept(raw, claims) {
				writeBearerError(w, "token revoked")
				return
			}

			ctx = context.WithValue(ctx, CtxKeyUserID, claims.Subject)
			ctx = context.WithValue(ctx, CtxKeyRole, claims.Role)
			ctx = context.WithValue(ctx, CtxKeyToken, raw)
			ctx = slogx.With(ctx, "user_id", claims.Subject, "role", claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(roles, Role(r.Context())) {
				WriteError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, desc)
}
