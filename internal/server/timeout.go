package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds how long a proxied request may take.
// The deadline reaches the upstream call through the request context, and
// the reverse proxy answers 504 once it passes.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
