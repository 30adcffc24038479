package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/ae-platform/account-management/internal/config"
	"github.com/ae-platform/account-management/internal/httputil"
)

// RateLimitConfig holds rate limiting configuration for a specific
// endpoint group.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Logger   *slog.Logger
}

// RateLimit creates an IP-based rate limiter middleware with logging.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("rate limit exceeded",
					"ip", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded. please try again later")
		}),
	)
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// CreateRateLimiters creates the rate limiting middleware groups from
// configuration. The "reset" group is deliberately tighter than "auth":
// reset requests trigger outbound email.
func CreateRateLimiters(cfg *config.Config, logger *slog.Logger) map[string]func(http.Handler) http.Handler {
	if !cfg.RateLimitEnabled {
		noOp := NoRateLimit()
		return map[string]func(http.Handler) http.Handler{
			"auth":  noOp,
			"reset": noOp,
		}
	}

	return map[string]func(http.Handler) http.Handler{
		"auth": RateLimit(RateLimitConfig{
			Requests: cfg.AuthRequestsPerMinute,
			Window:   time.Minute,
			Logger:   logger,
		}),
		"reset": RateLimit(RateLimitConfig{
			Requests: cfg.ResetRequestsPerWindow,
			Window:   time.Duration(cfg.ResetWindowMinutes) * time.Minute,
			Logger:   logger,
		}),
	}
}
