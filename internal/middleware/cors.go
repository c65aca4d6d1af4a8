// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// Defaults cover the API's surface: feed reads, post/viewer writes with
// idempotency keys, and request ID propagation.
var (
	defaultAllowedMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}
	defaultAllowedHeaders = []string{
		"Content-Type", "Authorization", RequestIDHeader, IdempotencyKeyHeader,
	}
)

// CORSConfig holds the configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins is the explicit origin allowlist. Wildcards are not
	// supported; an empty list disables CORS handling entirely.
	AllowedOrigins []string
	// AllowedMethods lists the HTTP methods advertised to browsers.
	// Empty means defaultAllowedMethods.
	AllowedMethods []string
	// AllowedHeaders lists the request headers advertised to browsers.
	// Empty means defaultAllowedHeaders.
	AllowedHeaders []string
	// AllowCredentials permits cookies and Authorization headers on
	// cross-origin requests.
	AllowCredentials bool
	// MaxAge is how long browsers may cache preflight responses, in seconds.
	MaxAge int
}

// CORS returns a middleware enforcing the cross-origin policy in cfg.
// Origins are matched exactly against the allowlist on every request, and
// preflight OPTIONS requests are answered without reaching the handler.
// Requests from origins not on the list are rejected with 403.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	allowedOrigins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowedOrigins[origin] = true
		}
	}

	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = defaultAllowedMethods
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = defaultAllowedHeaders
	}
	allowMethods := strings.Join(methods, ", ")
	allowHeaders := strings.Join(headers, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allowedOrigins) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			// No Origin header means a same-origin request.
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !allowedOrigins[origin] {
				http.Error(w, "Origin not allowed", http.StatusForbidden)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			// Methods and headers only matter on preflight responses.
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", allowMethods)
				w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				if cfg.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
