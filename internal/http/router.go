// Package http assembles the HTTP surface: routing, middleware, and the
// feature handlers.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	accountapi "github.com/ae-platform/account-management/internal/http/features/account"
	"github.com/ae-platform/account-management/internal/http/middleware"
	"github.com/ae-platform/account-management/internal/httputil"
	"github.com/ae-platform/account-management/pkg/auth"
)

// RouterDeps holds the dependencies of the HTTP router.
type RouterDeps struct {
	Logger       *slog.Logger
	Account      *accountapi.Handler
	Tokens       *auth.TokenService
	RateLimiters map[string]func(http.Handler) http.Handler
}

// NewRouter wires middleware and routes into a chi router.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recover(deps.Logger))
	r.Use(middleware.Logging(deps.Logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	authLimit := deps.RateLimiters["auth"]
	resetLimit := deps.RateLimiters["reset"]

	r.Route("/v1", func(r chi.Router) {
		// Anonymous lifecycle entry points.
		r.With(authLimit).Post("/register", deps.Account.Register)
		r.Get("/activate", deps.Account.Activate)
		r.With(authLimit).Post("/authenticate", deps.Account.Login)
		r.With(middleware.OptionalAuth(deps.Tokens)).Get("/authenticate", deps.Account.IsAuthenticated)

		r.Route("/account", func(r chi.Router) {
			// Reset runs unauthenticated: the caller has lost their password.
			r.With(resetLimit).Post("/reset-password/init", deps.Account.RequestPasswordReset)
			r.With(resetLimit).Post("/reset-password/finish", deps.Account.FinishPasswordReset)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(deps.Tokens))
				r.Get("/", deps.Account.GetAccount)
				r.Post("/", deps.Account.SaveAccount)
				r.Post("/change-password", deps.Account.ChangePassword)
			})
		})
	})

	return r
}
