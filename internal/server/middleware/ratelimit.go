package middleware

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/safearb/internal/domain"
)

// RateLimit returns middleware that holds each client IP to limit requests
// per window, backed by the shared sliding-window limiter. Limiter errors
// fail open so a Redis outage does not take the read-only API down with it.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := limiter.Allow(r.Context(), "api:"+clientIP(r), limit, window)
			if err == nil && !ok {
				w.Header().Set("Retry-After", "1")
				reject(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
