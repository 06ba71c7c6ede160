package httputil

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware rejects requests above the sustained rate with 429.
// One shared limiter covers the whole surface it wraps; detector bursts are
// absorbed up to the configured burst size.
func RateLimitMiddleware(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				Error(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
