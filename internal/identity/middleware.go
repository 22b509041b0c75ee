package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey struct{}

// userKey stores the authenticated user in the request context.
var userKey = contextKey{}

// Verifier resolves a bearer token to a user.
type Verifier interface {
	GetUser(ctx context.Context, token string) (*User, error)
}

// WithUser returns a context carrying the given user. Exposed for handler
// tests.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// FromContext returns the authenticated user stored by Middleware.
func FromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userKey).(*User)
	return user, ok
}

// Middleware authenticates the Authorization bearer token against the
// identity provider and stores the resulting user in the request context.
func Middleware(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearerToken(r)
			if err != nil {
				slog.Warn("Token extraction failed",
					"error", err,
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path)
				writeUnauthorized(w, "missing or invalid authorization header")
				return
			}

			user, err := verifier.GetUser(r.Context(), token)
			if err != nil {
				if !errors.Is(err, ErrUnauthorized) {
					slog.Error("Identity provider lookup failed", "error", err, "path", r.URL.Path)
				} else {
					slog.Warn("Token validation failed",
						"error", err,
						"remote_addr", r.RemoteAddr,
						"path", r.URL.Path)
				}
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("authorization header missing")
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", errors.New("authorization header is not a bearer token")
	}
	return token, nil
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	resp := map[string]any{
		"success": false,
		"error":   message,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode unauthorized response", "error", err)
	}
}
