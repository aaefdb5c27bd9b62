// Package auth implements bearer-token authentication for the cache
// endpoints and carries the resolved tenant on the request context.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	cacheerr "github.com/nxcache/nxcache/internal/errors"
	"github.com/nxcache/nxcache/internal/tenant"
)

// bearerPrefix per RFC 6750; the scheme name is case-insensitive.
const bearerPrefix = "bearer "

// Middleware returns HTTP middleware that requires a valid bearer token on
// every request it wraps. The token is resolved through the registry's
// constant-time lookup; on success the tenant is set on the request
// context, on failure the response is a fixed 401 and the handler chain
// stops. The candidate token is never logged.
func Middleware(registry *tenant.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				slog.Warn("request rejected: missing or malformed Authorization header",
					"method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
				writeUnauthorized(w)
				return
			}

			t := registry.Lookup(token)
			if t == nil {
				slog.Warn("request rejected: unknown bearer token",
					"method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
				writeUnauthorized(w)
				return
			}

			slog.Debug("request authenticated",
				"tenant", t.Name, "backend", t.Backend, "prefix", t.Prefix)
			next.ServeHTTP(w, r.WithContext(contextWithTenant(r.Context(), t)))
		})
	}
}

// bearerToken extracts the bearer credential from the Authorization header.
// Returns false for a missing header, a non-Bearer scheme, or an empty
// credential.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) <= len(bearerPrefix) {
		return "", false
	}
	if !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := header[len(bearerPrefix):]
	if token == "" {
		return "", false
	}
	return token, true
}

// writeUnauthorized writes the canonical 401 response.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(cacheerr.ErrUnauthorized.HTTPStatus)
	_, _ = w.Write([]byte(cacheerr.ErrUnauthorized.Message))
}
