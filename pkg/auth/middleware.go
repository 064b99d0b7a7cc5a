package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rhuss/umfrage/pkg/api"
	"github.com/rhuss/umfrage/pkg/observability"
)

// DefaultBypassPaths skip authentication.
var DefaultBypassPaths = []string{"/healthz", "/metrics"}

// Middleware authenticates every request outside bypass, applies the rate
// limiter if one is given and stores the identity in the request context.
func Middleware(chain *Chain, limiter RateLimiter, bypass []string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(bypass))
	for _, p := range bypass {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Decision != Yes || res.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", res.Err,
				)
				writeError(w, http.StatusUnauthorized, api.NewUnauthorizedError("authentication required"))
				return
			}
			if res.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				writeError(w, http.StatusInternalServerError, api.NewServerError("internal authentication error"))
				return
			}

			if limiter != nil && !limiter.Allow(res.Identity) {
				observability.RateLimitRejectedTotal.WithLabelValues(res.Identity.Tier()).Inc()
				slog.Warn("rate limit exceeded", "subject", res.Identity.Subject, "tier", res.Identity.Tier())
				writeError(w, http.StatusTooManyRequests, api.NewTooManyRequestsError(ErrTooManyRequests.Error()))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), res.Identity)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, apiErr *api.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}
