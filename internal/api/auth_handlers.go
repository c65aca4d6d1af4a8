// Package api provides HTTP handlers for the Onda feed ranking API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onda-social/onda/internal/audit"
	"github.com/onda-social/onda/internal/auth"
	"github.com/onda-social/onda/internal/middleware"
	"github.com/onda-social/onda/internal/viewer"
)

// TokenRequest represents the request body for POST /auth/token.
// Exactly one of ViewerID or RefreshToken must be set: ViewerID exchanges
// an upstream-authenticated identity for a token pair, RefreshToken rotates
// an access token.
type TokenRequest struct {
	ViewerID     string `json:"viewer_id,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenResponse represents the JSON response for POST /auth/token.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// AuthHandlers holds dependencies for token issuance.
type AuthHandlers struct {
	jwt     *auth.JWTService
	viewers viewer.ViewerRepository
	audits  audit.Repository
}

// NewAuthHandlers creates a new AuthHandlers instance.
func NewAuthHandlers(jwt *auth.JWTService, viewers viewer.ViewerRepository) *AuthHandlers {
	return &AuthHandlers{
		jwt:     jwt,
		viewers: viewers,
	}
}

// SetAuditRepository enables audit logging of token issuance. Audit logging
// is off when no repository is set.
func (h *AuthHandlers) SetAuditRepository(repo audit.Repository) {
	h.audits = repo
}

// IssueToken handles POST /auth/token.
//
// Identity verification happens upstream at the gateway; this endpoint
// exchanges a verified viewer ID for a signed token pair, or rotates an
// access token from a refresh token.
func (h *AuthHandlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if req.RefreshToken != "" {
		h.refreshAccessToken(w, r, req.RefreshToken)
		return
	}

	viewerID := strings.TrimSpace(req.ViewerID)
	if viewerID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "viewer_id or refresh_token is required")
		return
	}

	v, err := h.viewers.Get(viewerID)
	if err != nil {
		if errors.Is(err, viewer.ErrViewerNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeViewerNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeViewerNotFound, "Viewer not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to load viewer", "error", err, "viewer_id", viewerID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to issue token")
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(v.ID, v.Handle)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to generate access token", "error", err, "viewer_id", viewerID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to issue token")
		return
	}

	refreshToken, err := h.jwt.GenerateRefreshToken(v.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to generate refresh token", "error", err, "viewer_id", viewerID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to issue token")
		return
	}

	// Token issuance runs before auth middleware, so the viewer ID goes
	// on the context here for the audit trail.
	recordAudit(r.WithContext(middleware.SetViewerID(r.Context(), v.ID)), h.audits, "token", v.ID, "issue_token")

	writeTokenResponse(w, r, TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(auth.AccessTokenExpiry.Seconds()),
	})
}

// refreshAccessToken validates a refresh token and issues a fresh access
// token for its subject.
func (h *AuthHandlers) refreshAccessToken(w http.ResponseWriter, r *http.Request, refreshToken string) {
	claims, err := h.jwt.ValidateToken(refreshToken)
	if err != nil || claims.Type != auth.TokenTypeRefresh {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid refresh token")
		return
	}

	// The handle is re-read so renamed viewers get fresh claims.
	v, err := h.viewers.Get(claims.ViewerID())
	if err != nil {
		if errors.Is(err, viewer.ErrViewerNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid refresh token")
			return
		}
		slog.ErrorContext(r.Context(), "failed to load viewer", "error", err, "viewer_id", claims.ViewerID())
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to issue token")
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(v.ID, v.Handle)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to generate access token", "error", err, "viewer_id", v.ID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to issue token")
		return
	}

	recordAudit(r.WithContext(middleware.SetViewerID(r.Context(), v.ID)), h.audits, "token", v.ID, "issue_token")

	writeTokenResponse(w, r, TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(auth.AccessTokenExpiry.Seconds()),
	})
}

func writeTokenResponse(w http.ResponseWriter, r *http.Request, resp TokenResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
