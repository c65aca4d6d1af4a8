// Package api provides HTTP handlers for the Onda feed ranking API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/onda-social/onda/internal/audit"
	"github.com/onda-social/onda/internal/middleware"
	"github.com/onda-social/onda/internal/ranking"
	"github.com/onda-social/onda/internal/validate"
	"github.com/onda-social/onda/internal/viewer"
)

// Viewer validation constraints.
const (
	MaxHandleLength   = 64
	MaxInterests      = 50
	MaxInterestLength = 100
)

// CreateViewerRequest represents the request body for creating a viewer.
type CreateViewerRequest struct {
	Handle      string   `json:"handle"`
	DisplayName string   `json:"display_name,omitempty"`
	Interests   []string `json:"interests,omitempty"`
}

// UpdateInterestsRequest represents the request body for replacing a
// viewer's interest tags.
type UpdateInterestsRequest struct {
	Interests []string `json:"interests"`
}

// FollowRequest represents the request body for following an author.
type FollowRequest struct {
	TargetID string `json:"target_id"`
}

// ViewerHandlers holds dependencies for viewer HTTP handlers.
type ViewerHandlers struct {
	repo   viewer.ViewerRepository
	prefs  ranking.PreferenceStore
	audits audit.Repository
}

// NewViewerHandlers creates a new ViewerHandlers instance.
func NewViewerHandlers(repo viewer.ViewerRepository, prefs ranking.PreferenceStore) *ViewerHandlers {
	return &ViewerHandlers{
		repo:  repo,
		prefs: prefs,
	}
}

// SetAuditRepository enables audit logging of preference and follow graph
// changes. Audit logging is off when no repository is set.
func (h *ViewerHandlers) SetAuditRepository(repo audit.Repository) {
	h.audits = repo
}

// extractViewerPath splits the URL path after /viewers/ into segments.
// Returns an error if the viewer ID segment is missing.
func extractViewerPath(r *http.Request) ([]string, error) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/viewers/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return nil, fmt.Errorf("viewer ID is required")
	}
	return parts, nil
}

// requireSelf enforces that the authenticated viewer matches the path
// viewer. Writes the error response and returns false on mismatch.
func requireSelf(w http.ResponseWriter, r *http.Request, viewerID string) bool {
	authID := middleware.GetViewerID(r.Context())
	if authID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return false
	}
	if authID != viewerID {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Viewers may only modify their own settings")
		return false
	}
	return true
}

// sanitizeInterests trims, escapes and bounds interest tags.
// Returns error message if validation fails.
func sanitizeInterests(interests []string) ([]string, string) {
	if len(interests) > MaxInterests {
		return nil, "at most 50 interests allowed"
	}
	out := make([]string, 0, len(interests))
	for _, tag := range interests {
		clean, err := validate.Tag(tag)
		if err != nil {
			return nil, "interests must not exceed 100 characters"
		}
		if clean == "" {
			continue
		}
		out = append(out, clean)
	}
	return out, ""
}

// CreateViewer handles POST /viewers - registers a new viewer.
func (h *ViewerHandlers) CreateViewer(w http.ResponseWriter, r *http.Request) {
	var req CreateViewerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	handle, err := validate.Handle(req.Handle)
	if err != nil {
		msg := "handle is required"
		switch {
		case errors.Is(err, validate.ErrStringTooLong):
			msg = "handle must not exceed 64 characters"
		case errors.Is(err, validate.ErrInvalidCharacters):
			msg = "handle may only contain letters, numbers, dot, dash and underscore"
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, msg)
		return
	}

	interests, errMsg := sanitizeInterests(req.Interests)
	if errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}

	v := &viewer.Viewer{
		ID:          uuid.New().String(),
		Handle:      handle,
		DisplayName: sanitizeText(req.DisplayName),
		Interests:   interests,
	}

	if err := h.repo.Put(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to create viewer", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create viewer")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
		return
	}
}

// GetViewer handles GET /viewers/{id} - retrieves a viewer profile.
func (h *ViewerHandlers) GetViewer(w http.ResponseWriter, r *http.Request) {
	parts, err := extractViewerPath(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Viewer ID is required")
		return
	}

	v, err := h.repo.Get(parts[0])
	if err != nil {
		if errors.Is(err, viewer.ErrViewerNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeViewerNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeViewerNotFound, "Viewer not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to retrieve viewer", "error", err, "viewer_id", parts[0])
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve viewer")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
		return
	}
}

// GetRankingPrefs handles GET /viewers/{id}/ranking-prefs - retrieves the
// viewer's personalization configuration. Defaults apply for viewers who
// never adjusted their settings.
func (h *ViewerHandlers) GetRankingPrefs(w http.ResponseWriter, r *http.Request) {
	parts, err := extractViewerPath(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Viewer ID is required")
		return
	}
	viewerID := parts[0]

	if !requireSelf(w, r, viewerID) {
		return
	}

	cfg := h.prefs.Get(viewerID)

	recordAudit(r, h.audits, "prefs", viewerID, "view_ranking_prefs")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(cfg); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
		return
	}
}

// PutRankingPrefs handles PUT /viewers/{id}/ranking-prefs - replaces the
// viewer's personalization configuration.
func (h *ViewerHandlers) PutRankingPrefs(w http.ResponseWriter, r *http.Request) {
	parts, err := extractViewerPath(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Viewer ID is required")
		return
	}
	viewerID := parts[0]

	if !requireSelf(w, r, viewerID) {
		return
	}

	if _, err := h.repo.Get(viewerID); err != nil {
		if errors.Is(err, viewer.ErrViewerNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeViewerNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeViewerNotFound, "Viewer not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to retrieve viewer", "error", err, "viewer_id", viewerID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve viewer")
		return
	}

	var cfg ranking.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if err := cfg.Validate(); err != nil {
		code := ErrCodeValidation
		if errors.Is(err, ranking.ErrInvalidFollowingWeight) {
			code = ErrCodeInvalidFollowingWeight
		}
		ctx := middleware.SetErrorCode(r.Context(), code)
		WriteError(w, ctx, http.StatusBadRequest, code, err.Error())
		return
	}

	h.prefs.Set(viewerID, &cfg)

	recordAudit(r, h.audits, "prefs", viewerID, "modify_ranking_prefs")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(&cfg); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
		return
	}
}

// PutInterests handles PUT /viewers/{id}/interests - replaces the viewer's
// interest tags.
func (h *ViewerHandlers) PutInterests(w http.ResponseWriter, r *http.Request) {
	parts, err := extractViewerPath(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Viewer ID is required")
		return
	}
	viewerID := parts[0]

	if !requireSelf(w, r, viewerID) {
		return
	}

	var req UpdateInterestsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	interests, errMsg := sanitizeInterests(req.Interests)
	if errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}

	if err := h.repo.SetInterests(viewerID, interests); err != nil {
		if errors.Is(err, viewer.ErrViewerNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeViewerNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeViewerNotFound, "Viewer not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to set interests", "error", err, "viewer_id", viewerID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update interests")
		return
	}

	recordAudit(r, h.audits, "viewer", viewerID, "modify_interests")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string][]string{"interests": interests}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
		return
	}
}

// Follow handles POST /viewers/{id}/follow - adds an author to the
// viewer's following set. Idempotent.
func (h *ViewerHandlers) Follow(w http.ResponseWriter, r *http.Request) {
	parts, err := extractViewerPath(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Viewer ID is required")
		return
	}
	viewerID := parts[0]

	if !requireSelf(w, r, viewerID) {
		return
	}

	var req FollowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	targetID := strings.TrimSpace(req.TargetID)
	if targetID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "target_id is required")
		return
	}
	if targetID == viewerID {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "viewers cannot follow themselves")
		return
	}

	if _, err := h.repo.Get(targetID); err != nil {
		if errors.Is(err, viewer.ErrViewerNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeViewerNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeViewerNotFound, "Follow target not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to retrieve follow target", "error", err, "target_id", targetID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to follow")
		return
	}

	if err := h.repo.Follow(viewerID, targetID); err != nil {
		if errors.Is(err, viewer.ErrViewerNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeViewerNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeViewerNotFound, "Viewer not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to follow", "error", err, "viewer_id", viewerID, "target_id", targetID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to follow")
		return
	}

	recordAudit(r, h.audits, "viewer", targetID, "follow_author")

	w.WriteHeader(http.StatusNoContent)
}

// Unfollow handles DELETE /viewers/{id}/follow/{target} - removes an author
// from the viewer's following set. Idempotent.
func (h *ViewerHandlers) Unfollow(w http.ResponseWriter, r *http.Request) {
	parts, err := extractViewerPath(r)
	if err != nil || len(parts) < 3 || parts[2] == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Viewer ID and follow target are required")
		return
	}
	viewerID, targetID := parts[0], parts[2]

	if !requireSelf(w, r, viewerID) {
		return
	}

	if err := h.repo.Unfollow(viewerID, targetID); err != nil {
		if errors.Is(err, viewer.ErrViewerNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeViewerNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeViewerNotFound, "Viewer not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to unfollow", "error", err, "viewer_id", viewerID, "target_id", targetID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to unfollow")
		return
	}

	recordAudit(r, h.audits, "viewer", targetID, "unfollow_author")

	w.WriteHeader(http.StatusNoContent)
}
