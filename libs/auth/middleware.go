package auth

import (
	"context"
	"net/http"
	"strings"
)

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	UserID     string
	BusinessID string
	Role       Role
}

type ctxKey int

const ctxKeyPrincipal ctxKey = iota

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(v *Verifier) func(http.Handler) http.Handler {
	return authenticate(v, true)
}

// OptionalAuth attaches a principal when a bearer token is sent and lets
// anonymous requests through. A token that fails verification is still 401.
func OptionalAuth(v *Verifier) func(http.Handler) http.Handler {
	return authenticate(v, false)
}

func authenticate(v *Verifier, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" && !required {
				next.ServeHTTP(w, r)
				return
			}
			if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			claims, err := v.Verify(token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if claims.BusinessID == "" {
				http.Error(w, "token has no business", http.StatusForbidden)
				return
			}
			p := Principal{
				UserID:     claims.Subject,
				BusinessID: claims.BusinessID,
				Role:       ParseRole(claims.Role),
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || !p.Role.AtLeast(min) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
