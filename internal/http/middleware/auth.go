package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ae-platform/account-management/pkg/auth"
)

type contextKey string

// LoginKey is the context key for the authenticated login.
const LoginKey contextKey = "login"

// Auth creates middleware that validates Bearer access tokens and places
// the authenticated login in the request context. Requests without a
// valid token are rejected; use OptionalAuth for endpoints that serve
// both states.
func Auth(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			login, ok := loginFromRequest(tokens, r)
			if !ok {
				http.Error(w, `{"error":"missing or invalid authorization"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), LoginKey, login)))
		})
	}
}

// OptionalAuth places the login in the context when a valid token is
// present and passes the request through either way.
func OptionalAuth(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if login, ok := loginFromRequest(tokens, r); ok {
				r = r.WithContext(context.WithValue(r.Context(), LoginKey, login))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func loginFromRequest(tokens *auth.TokenService, r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	claims, err := tokens.ValidateAccessToken(parts[1])
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

// GetLogin extracts the authenticated login from the request context.
func GetLogin(ctx context.Context) (string, bool) {
	login, ok := ctx.Value(LoginKey).(string)
	return login, ok && login != ""
}

// SecurityContext adapts a request context into the lifecycle's
// SecurityContext port.
type SecurityContext struct {
	ctx context.Context
}

// NewSecurityContext wraps a request context.
func NewSecurityContext(ctx context.Context) SecurityContext {
	return SecurityContext{ctx: ctx}
}

// CurrentLogin returns the authenticated login, if any.
func (s SecurityContext) CurrentLogin() (string, bool) {
	return GetLogin(s.ctx)
}
