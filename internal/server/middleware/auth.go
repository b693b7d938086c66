package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth returns middleware that guards the API with a static key. Requests
// present the key as "Authorization: Bearer <key>" or in X-API-Key. An empty
// configured key disables the check entirely.
func Auth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := presentedKey(r)
			if presented == "" {
				reject(w, http.StatusUnauthorized, "missing authentication token")
				return
			}
			// Constant-time comparison to prevent timing attacks.
			if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
				reject(w, http.StatusUnauthorized, "invalid authentication token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// presentedKey pulls the client's key from the Authorization header (Bearer
// scheme) or the X-API-Key header, in that order.
func presentedKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
