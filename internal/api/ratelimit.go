package api

import (
	"net/http"

	"github.com/go-chi/httprate"

	"github.com/hashicorp-forge/quill/internal/server"
)

// rateLimit throttles mutating requests per client IP and endpoint.
// Reads pass through unlimited.
func rateLimit(srv server.Server, next http.Handler) http.Handler {
	cfg := srv.Config.Server.RateLimit
	if !cfg.Enabled() {
		return next
	}

	limited := httprate.NewRateLimiter(
		cfg.Requests,
		cfg.WindowDuration(),
		httprate.WithKeyFuncs(
			httprate.KeyByIP,
			httprate.KeyByEndpoint,
		),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respond(w, http.StatusTooManyRequests, errorResponse{Message: "rate limit exceeded"})
		}),
	).Handler(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPatch, http.MethodDelete:
			limited.ServeHTTP(w, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}
