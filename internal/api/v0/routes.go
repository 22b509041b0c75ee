// Package v0 provides the REST API handlers for the sync job service.
package v0

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/regbridge/regbridge/internal/api/common"
	"github.com/regbridge/regbridge/internal/config"
	"github.com/regbridge/regbridge/internal/identity"
	"github.com/regbridge/regbridge/internal/ratelimit"
	"github.com/regbridge/regbridge/internal/service"
	"github.com/regbridge/regbridge/internal/store"
	"github.com/regbridge/regbridge/pkg/versions"
)

const defaultListLimit = 50

// SyncManager is the slice of the sync service consumed by the handlers.
type SyncManager interface {
	Create(ctx context.Context, owner string, req service.CreateRequest) (*store.SyncJob, error)
	Get(ctx context.Context, owner string, id uuid.UUID) (*store.SyncJob, error)
	List(ctx context.Context, owner string, opts store.ListOptions) ([]*store.SyncJob, int64, error)
	Delete(ctx context.Context, owner string, id uuid.UUID) error
}

// SignInProvider exchanges credentials for a session.
type SignInProvider interface {
	SignIn(ctx context.Context, email, password string) (*identity.SignInResult, error)
}

// Routes defines the routes for the sync API with dependency injection.
type Routes struct {
	syncs    SyncManager
	provider SignInProvider
}

// AuthRouter creates a router for the authentication endpoints.
func AuthRouter(
	provider SignInProvider,
	verifier identity.Verifier,
	limiter ratelimit.Limiter,
	limits config.RateLimitsConfig,
) http.Handler {
	routes := &Routes{provider: provider}

	window, max := limits.GetLogin()

	r := chi.NewRouter()
	r.With(rateLimitMiddleware(limiter, "login", window, max)).Post("/login", routes.login)
	r.With(identity.Middleware(verifier)).Get("/me", routes.me)
	return r
}

// SyncsRouter creates a router for the sync job endpoints. Every route
// requires a valid bearer token.
func SyncsRouter(
	syncs SyncManager,
	verifier identity.Verifier,
	limiter ratelimit.Limiter,
	limits config.RateLimitsConfig,
) http.Handler {
	routes := &Routes{syncs: syncs}

	window, max := limits.GetCreateJob()

	r := chi.NewRouter()
	r.Use(identity.Middleware(verifier))
	r.With(rateLimitMiddleware(limiter, "create_sync", window, max)).Post("/", routes.createSync)
	r.Get("/", routes.listSyncs)
	r.Get("/{id}", routes.getSync)
	r.Delete("/{id}", routes.deleteSync)
	return r
}

// login handles POST /auth/login
func (rr *Routes) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteErrorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		common.WriteErrorResponse(w, "email and password are required", http.StatusBadRequest)
		return
	}

	result, err := rr.provider.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthorized) {
			common.WriteErrorResponse(w, err.Error(), http.StatusUnauthorized)
			return
		}
		slog.Error("sign-in failed", "error", err)
		common.WriteErrorResponse(w, "authentication service unavailable", http.StatusInternalServerError)
		return
	}

	common.WriteSuccessResponse(w, result, http.StatusOK)
}

// me handles GET /auth/me
func (*Routes) me(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		common.WriteErrorResponse(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	common.WriteSuccessResponse(w, map[string]*identity.User{"user": user}, http.StatusOK)
}

// createSync handles POST /syncs
func (rr *Routes) createSync(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		common.WriteErrorResponse(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	var req CreateSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteErrorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SourceImage == "" || req.DestinationImage == "" {
		common.WriteErrorResponse(w, "source_image and destination_image are required", http.StatusBadRequest)
		return
	}

	job, err := rr.syncs.Create(r.Context(), user.ID, service.CreateRequest{
		SourceImage:      req.SourceImage,
		DestinationImage: req.DestinationImage,
		RequestedKind:    req.WorkflowType,
	})
	if err != nil {
		writeServiceError(w, "failed to create sync job", err)
		return
	}

	common.WriteSuccessResponse(w, SyncJobData{Job: newSyncJob(job)}, http.StatusCreated)
}

// listSyncs handles GET /syncs
func (rr *Routes) listSyncs(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		common.WriteErrorResponse(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	opts, err := parseListOptions(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	jobs, total, err := rr.syncs.List(r.Context(), user.ID, opts)
	if err != nil {
		writeServiceError(w, "failed to list sync jobs", err)
		return
	}

	page := SyncJobListData{Jobs: make([]SyncJob, 0, len(jobs)), Total: total}
	for _, job := range jobs {
		page.Jobs = append(page.Jobs, newSyncJob(job))
	}
	common.WriteSuccessResponse(w, page, http.StatusOK)
}

// getSync handles GET /syncs/{id}
func (rr *Routes) getSync(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		common.WriteErrorResponse(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteErrorResponse(w, "invalid job id", http.StatusBadRequest)
		return
	}

	job, err := rr.syncs.Get(r.Context(), user.ID, id)
	if err != nil {
		writeServiceError(w, "failed to get sync job", err)
		return
	}

	common.WriteSuccessResponse(w, SyncJobData{Job: newSyncJob(job)}, http.StatusOK)
}

// deleteSync handles DELETE /syncs/{id}
func (rr *Routes) deleteSync(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		common.WriteErrorResponse(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteErrorResponse(w, "invalid job id", http.StatusBadRequest)
		return
	}

	if err := rr.syncs.Delete(r.Context(), user.ID, id); err != nil {
		writeServiceError(w, "failed to delete sync job", err)
		return
	}

	common.WriteSuccessResponse(w, map[string]bool{"deleted": true}, http.StatusOK)
}

func parseListOptions(r *http.Request) (store.ListOptions, error) {
	opts := store.ListOptions{
		Search: r.URL.Query().Get("search"),
		Limit:  defaultListLimit,
	}

	switch status := store.Status(r.URL.Query().Get("status")); status {
	case "", store.StatusPending, store.StatusRunning, store.StatusSuccess, store.StatusFailed:
		opts.Status = status
	default:
		return opts, errors.New("unknown status filter")
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return opts, errors.New("limit must be a non-negative integer")
		}
		opts.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return opts, errors.New("offset must be a non-negative integer")
		}
		opts.Offset = offset
	}
	return opts, nil
}

// writeServiceError maps service errors to HTTP responses. Internal errors
// are logged with detail and returned as a generic message.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrNotFound):
		common.WriteErrorResponse(w, "sync job not found", http.StatusNotFound)
	case errors.Is(err, service.ErrDispatch):
		common.WriteErrorResponse(w, err.Error(), http.StatusInternalServerError)
	default:
		slog.Error(op, "error", err)
		common.WriteErrorResponse(w, "internal server error", http.StatusInternalServerError)
	}
}

// HealthRouter creates a router for health check endpoints.
func HealthRouter(ready func(context.Context) error) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(ready))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessHandler reports whether the backing store is reachable.
func readinessHandler(ready func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ready(r.Context()); err != nil {
			slog.Warn("readiness check failed", "error", err)
			common.WriteErrorResponse(w, "service not ready", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(info); err != nil {
		slog.Error("failed to encode version info", "error", err)
	}
}
