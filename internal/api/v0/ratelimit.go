package v0

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/regbridge/regbridge/internal/api/common"
	"github.com/regbridge/regbridge/internal/ratelimit"
)

// rateLimitMiddleware admits requests through a sliding window keyed by
// endpoint name and client address. Quota headers are set on every response,
// admitted or not.
func rateLimitMiddleware(
	limiter ratelimit.Limiter, name string, window time.Duration, max int,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := limiter.Check(name+":"+clientAddr(r), window, max)

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				common.WriteErrorResponse(w,
					"rate limit exceeded, retry after "+result.ResetAt.UTC().Format(time.RFC3339),
					http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr identifies the caller, honoring the first X-Forwarded-For hop
// when the server sits behind a proxy.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		addr, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(addr)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
