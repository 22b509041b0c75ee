package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regbridge/regbridge/internal/identity"
	"github.com/regbridge/regbridge/internal/ratelimit"
	"github.com/regbridge/regbridge/internal/service"
	"github.com/regbridge/regbridge/internal/store"
)

type stubSyncs struct{}

func (stubSyncs) Create(context.Context, string, service.CreateRequest) (*store.SyncJob, error) {
	return &store.SyncJob{ID: uuid.New(), Status: store.StatusRunning, CreatedAt: time.Now().UTC()}, nil
}

func (stubSyncs) Get(context.Context, string, uuid.UUID) (*store.SyncJob, error) {
	return nil, store.ErrNotFound
}

func (stubSyncs) List(context.Context, string, store.ListOptions) ([]*store.SyncJob, int64, error) {
	return nil, 0, nil
}

func (stubSyncs) Delete(context.Context, string, uuid.UUID) error {
	return store.ErrNotFound
}

type stubIdentity struct{}

func (stubIdentity) SignIn(_ context.Context, email, _ string) (*identity.SignInResult, error) {
	return &identity.SignInResult{User: identity.User{ID: "user-1", Email: email}}, nil
}

func (stubIdentity) GetUser(_ context.Context, token string) (*identity.User, error) {
	if token != "valid-token" {
		return nil, fmt.Errorf("%w: bad token", identity.ErrUnauthorized)
	}
	return &identity.User{ID: "user-1"}, nil
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	limiter := ratelimit.NewMemoryLimiter(time.Minute)
	t.Cleanup(limiter.Close)

	return NewServer(ServerConfig{
		Syncs:     stubSyncs{},
		Identity:  stubIdentity{},
		Limiter:   limiter,
		Readiness: func(context.Context) error { return nil },
	}, WithMiddlewares(LoggingMiddleware, CORSMiddleware))
}

func TestServerRoutes(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		authorized bool
		wantStatus int
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "readiness", method: http.MethodGet, path: "/readiness", wantStatus: http.StatusOK},
		{name: "version", method: http.MethodGet, path: "/version", wantStatus: http.StatusOK},
		{name: "syncs without token", method: http.MethodGet, path: "/syncs", wantStatus: http.StatusUnauthorized},
		{name: "syncs with token", method: http.MethodGet, path: "/syncs", authorized: true, wantStatus: http.StatusOK},
		{name: "auth me without token", method: http.MethodGet, path: "/auth/me", wantStatus: http.StatusUnauthorized},
		{name: "unknown route", method: http.MethodGet, path: "/nope", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.authorized {
				req.Header.Set("Authorization", "Bearer valid-token")
			}
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestServerCORSPreflight(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/syncs", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}
