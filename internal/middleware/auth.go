// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/onda-social/onda/internal/auth"
)

// TokenValidator validates a bearer token, returning the claims it carries.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// writeAuthError writes a JSON 401 response and surfaces the code to the
// logging middleware.
func writeAuthError(w http.ResponseWriter, r *http.Request, message string) {
	UpdateResponseContext(w, SetErrorCode(r.Context(), "auth_failed"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="onda"`)
	w.WriteHeader(http.StatusUnauthorized)
	io.WriteString(w, `{"error":{"code":"auth_failed","message":"`+message+`"}}`)
}

// RequireAuth returns middleware that validates the Authorization bearer
// token and stores the authenticated viewer ID in the request context.
// Refresh tokens are rejected; only access tokens grant API access.
func RequireAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeAuthError(w, r, "Authorization header is required")
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeAuthError(w, r, "Authorization header must be a bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				message := "Invalid token"
				if errors.Is(err, auth.ErrExpiredToken) {
					message = "Token has expired"
				}
				writeAuthError(w, r, message)
				return
			}

			if claims.Type != auth.TokenTypeAccess {
				writeAuthError(w, r, "Access token required")
				return
			}

			ctx := SetViewerID(r.Context(), claims.ViewerID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
