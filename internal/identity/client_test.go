package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer creates a new test server with keep-alives disabled.
// This prevents flaky tests when running in parallel, as closing a server
// with keep-alives enabled can affect other tests sharing the HTTP transport.
func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestClientSignIn(t *testing.T) {
	t.Parallel()

	t.Run("successful sign-in", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/auth/v1/token", r.URL.Path)
			assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
			assert.Equal(t, "anon-key", r.Header.Get("apikey"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"access_token": "token-123",
				"token_type": "bearer",
				"expires_in": 3600,
				"refresh_token": "refresh-456",
				"user": {"id": "user-1", "email": "a@example.com"}
			}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "anon-key")
		result, err := client.SignIn(context.Background(), "a@example.com", "hunter2")
		require.NoError(t, err)
		assert.Equal(t, "user-1", result.User.ID)
		assert.Equal(t, "a@example.com", result.User.Email)
		assert.Equal(t, "token-123", result.Session.AccessToken)
		assert.Equal(t, int64(3600), result.Session.ExpiresIn)
	})

	t.Run("rejected credentials", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error_description": "Invalid login credentials"}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "anon-key")
		_, err := client.SignIn(context.Background(), "a@example.com", "wrong")
		require.ErrorIs(t, err, ErrUnauthorized)
		assert.Contains(t, err.Error(), "Invalid login credentials")
	})
}

func TestClientGetUser(t *testing.T) {
	t.Parallel()

	t.Run("valid token", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/auth/v1/user", r.URL.Path)
			assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": "user-1", "email": "a@example.com"}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "anon-key")
		user, err := client.GetUser(context.Background(), "token-123")
		require.NoError(t, err)
		assert.Equal(t, &User{ID: "user-1", Email: "a@example.com"}, user)
	})

	t.Run("expired token", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg": "JWT expired"}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "anon-key")
		_, err := client.GetUser(context.Background(), "stale")
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("missing user id", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "anon-key")
		_, err := client.GetUser(context.Background(), "token")
		require.ErrorIs(t, err, ErrUnauthorized)
	})
}
