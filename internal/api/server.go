// Package api provides the REST API server for the sync job service.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v0 "github.com/regbridge/regbridge/internal/api/v0"
	"github.com/regbridge/regbridge/internal/config"
	"github.com/regbridge/regbridge/internal/identity"
	"github.com/regbridge/regbridge/internal/ratelimit"
)

// IdentityService signs users in and verifies bearer tokens.
type IdentityService interface {
	v0.SignInProvider
	identity.Verifier
}

// ServerConfig wires the dependencies consumed by the HTTP routes.
type ServerConfig struct {
	// Syncs serves the job endpoints.
	Syncs v0.SyncManager

	// Identity signs users in and verifies bearer tokens.
	Identity IdentityService

	// Limiter admits requests on the rate-limited endpoints.
	Limiter ratelimit.Limiter

	// RateLimits configures the per-endpoint admission windows.
	RateLimits config.RateLimitsConfig

	// Readiness reports whether the backing store is reachable.
	Readiness func(context.Context) error
}

// ServerOption configures the API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares []func(http.Handler) http.Handler
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// NewServer creates and configures the HTTP router with the given
// dependencies and options
func NewServer(deps ServerConfig, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		middlewares: []func(http.Handler) http.Handler{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()

	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	// Health check routes live at the root, outside authentication.
	r.Mount("/", v0.HealthRouter(deps.Readiness))

	r.Mount("/auth", v0.AuthRouter(deps.Identity, deps.Identity, deps.Limiter, deps.RateLimits))
	r.Mount("/syncs", v0.SyncsRouter(deps.Syncs, deps.Identity, deps.Limiter, deps.RateLimits))

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// CORSMiddleware allows the browser UI to call the API cross-origin.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
