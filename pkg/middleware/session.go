// pkg/middleware/session.go
package middleware

import (
	"context"
	"net/http"
	"strings"
)

// Principal is the authenticated caller, passed explicitly into services.
// A zero Principal means the request is anonymous.
type Principal struct {
	UserID        string
	Email         string
	Authenticated bool
}

type principalCtxKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFrom extracts the principal from context.
func PrincipalFrom(ctx context.Context) Principal {
	if v := ctx.Value(principalCtxKey{}); v != nil {
		if p, ok := v.(Principal); ok {
			return p
		}
	}
	return Principal{}
}

// SessionVerifier turns a bearer session token into a principal.
type SessionVerifier func(ctx context.Context, token string) (Principal, error)

// Session resolves the caller from an Authorization bearer token or the
// session cookie and populates the request context. Missing or invalid
// credentials leave an anonymous principal; handlers that require
// authentication use RequireAuth.
func Session(verify SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := ""
			if authz := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				raw = strings.TrimSpace(authz[len("Bearer "):])
			} else if c, err := r.Cookie(SessionCookie); err == nil {
				raw = c.Value
			}
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := verify(r.Context(), raw)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// SessionCookie is the cookie name carrying the interactive session token.
const SessionCookie = "gomsle_session"

// RequireAuth rejects anonymous requests.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !PrincipalFrom(r.Context()).Authenticated {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
