// Package api provides HTTP handlers for the Onda feed ranking API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onda-social/onda/internal/audit"
	"github.com/onda-social/onda/internal/middleware"
	"github.com/onda-social/onda/internal/post"
	"github.com/onda-social/onda/internal/validate"
)

// Post validation constraints.
const (
	MaxPostTextLength = 5000
	MaxSemanticTopics = 10
	MaxTopicLength    = 100
	MaxAudiencePrompt = 500
)

// CreatePostRequest represents the request body for creating a post.
type CreatePostRequest struct {
	Text           string              `json:"text"`
	Topic          string              `json:"topic,omitempty"`
	SemanticTopics []string            `json:"semantic_topics,omitempty"`
	ReachMode      post.ReachMode      `json:"reach_mode,omitempty"`
	TunedAudience  *post.TunedAudience `json:"tuned_audience,omitempty"`
}

// UpdatePostRequest represents the request body for updating a post.
// Nil fields are left unchanged.
type UpdatePostRequest struct {
	Text           *string             `json:"text,omitempty"`
	Topic          *string             `json:"topic,omitempty"`
	SemanticTopics *[]string           `json:"semantic_topics,omitempty"`
	ReachMode      *post.ReachMode     `json:"reach_mode,omitempty"`
	TunedAudience  *post.TunedAudience `json:"tuned_audience,omitempty"`
}

// PostHandlers holds dependencies for post HTTP handlers.
type PostHandlers struct {
	repo   post.PostRepository
	audits audit.Repository
}

// NewPostHandlers creates a new PostHandlers instance.
func NewPostHandlers(repo post.PostRepository) *PostHandlers {
	return &PostHandlers{
		repo: repo,
	}
}

// SetAuditRepository enables audit logging of post deletion. Audit logging
// is off when no repository is set.
func (h *PostHandlers) SetAuditRepository(repo audit.Repository) {
	h.audits = repo
}

// validatePostText validates post text.
// Returns error message if validation fails, empty string if valid.
func validatePostText(text string) string {
	_, err := validate.PostText(text)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, validate.ErrEmpty):
		return "post text is required"
	case errors.Is(err, validate.ErrStringTooLong):
		return "post text must not exceed 5000 characters"
	default:
		return "invalid post text"
	}
}

// sanitizeText escapes HTML entities to prevent stored XSS.
// Should be called after validation passes.
func sanitizeText(text string) string {
	return validate.SanitizeHTML(strings.TrimSpace(text))
}

// validateReach checks the reach mode and its tuned-audience configuration.
// Returns error message if invalid, empty string if valid.
func validateReach(mode post.ReachMode, audience *post.TunedAudience) string {
	switch mode {
	case post.ReachForAll:
		if audience != nil {
			return "tuned_audience is only valid with reach_mode tuned"
		}
	case post.ReachTuned:
		if audience == nil {
			return "reach_mode tuned requires a tuned_audience"
		}
		if !audience.AllowFollowers && !audience.AllowNonFollowers && len(audience.TargetAudienceEmbedding) == 0 {
			return "tuned_audience must open at least one audience avenue"
		}
		if _, err := validate.AudiencePrompt(audience.TargetAudienceDescription); err != nil {
			return "target_audience_description must not exceed 500 characters"
		}
	default:
		return fmt.Sprintf("unrecognized reach_mode %q", mode)
	}
	return ""
}

// sanitizeTopics trims, escapes and bounds the semantic topic tags.
// Returns error message if validation fails.
func sanitizeTopics(topics []string) ([]string, string) {
	if len(topics) > MaxSemanticTopics {
		return nil, "at most 10 semantic topics allowed"
	}
	out := make([]string, 0, len(topics))
	for _, topic := range topics {
		clean, err := validate.Tag(topic)
		if err != nil {
			return nil, "semantic topics must not exceed 100 characters"
		}
		if clean == "" {
			continue
		}
		out = append(out, clean)
	}
	return out, ""
}

// extractPostID extracts the post ID from the URL path.
// Returns the post ID and an error if the ID is missing.
func extractPostID(r *http.Request) (string, error) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/posts/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		return "", fmt.Errorf("post ID is required")
	}
	return pathParts[0], nil
}

// CreatePost handles POST /posts - creates a new post.
func (h *PostHandlers) CreatePost(w http.ResponseWriter, r *http.Request) {
	authorID := middleware.GetViewerID(r.Context())
	if authorID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if errMsg := validatePostText(req.Text); errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}

	// Unset reach mode defaults to for_all.
	if req.ReachMode == "" {
		req.ReachMode = post.ReachForAll
	}
	if errMsg := validateReach(req.ReachMode, req.TunedAudience); errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidReachMode)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidReachMode, errMsg)
		return
	}

	topics, errMsg := sanitizeTopics(req.SemanticTopics)
	if errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}

	newPost := &post.Post{
		AuthorID:       authorID,
		Text:           sanitizeText(req.Text),
		Topic:          sanitizeText(req.Topic),
		SemanticTopics: topics,
		ReachMode:      req.ReachMode,
		TunedAudience:  req.TunedAudience,
	}

	if err := h.repo.Create(newPost); err != nil {
		slog.ErrorContext(r.Context(), "failed to create post", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create post")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(newPost); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
		return
	}
}

// GetPost handles GET /posts/{id} - retrieves a single post.
func (h *PostHandlers) GetPost(w http.ResponseWriter, r *http.Request) {
	postID, err := extractPostID(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Post ID is required")
		return
	}

	p, err := h.repo.GetByID(postID)
	if err != nil {
		if errors.Is(err, post.ErrPostNotFound) || errors.Is(err, post.ErrPostDeleted) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodePostNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodePostNotFound, "Post not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to retrieve post", "error", err, "post_id", postID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve post")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
		return
	}
}

// UpdatePost handles PATCH /posts/{id} - updates an existing post.
// Only the author may update a post.
func (h *PostHandlers) UpdatePost(w http.ResponseWriter, r *http.Request) {
	postID, err := extractPostID(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Post ID is required")
		return
	}

	var req UpdatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	existing, err := h.repo.GetByID(postID)
	if err != nil {
		if errors.Is(err, post.ErrPostNotFound) || errors.Is(err, post.ErrPostDeleted) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodePostNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodePostNotFound, "Post not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to retrieve post", "error", err, "post_id", postID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve post")
		return
	}

	if viewerID := middleware.GetViewerID(r.Context()); viewerID != existing.AuthorID {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Only the author may update a post")
		return
	}

	if req.Text != nil {
		if errMsg := validatePostText(*req.Text); errMsg != "" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
			return
		}
		existing.Text = sanitizeText(*req.Text)
	}

	if req.Topic != nil {
		existing.Topic = sanitizeText(*req.Topic)
	}

	if req.SemanticTopics != nil {
		topics, errMsg := sanitizeTopics(*req.SemanticTopics)
		if errMsg != "" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
			return
		}
		existing.SemanticTopics = topics
	}

	if req.ReachMode != nil || req.TunedAudience != nil {
		mode := existing.ReachMode
		if req.ReachMode != nil {
			mode = *req.ReachMode
		}
		audience := existing.TunedAudience
		if req.TunedAudience != nil {
			audience = req.TunedAudience
		}
		// Switching back to for_all drops the stale audience.
		if req.ReachMode != nil && mode == post.ReachForAll && req.TunedAudience == nil {
			audience = nil
		}
		if errMsg := validateReach(mode, audience); errMsg != "" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidReachMode)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidReachMode, errMsg)
			return
		}
		existing.ReachMode = mode
		existing.TunedAudience = audience
	}

	if err := h.repo.Update(existing); err != nil {
		if errors.Is(err, post.ErrPostDeleted) || errors.Is(err, post.ErrPostNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodePostNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodePostNotFound, "Post not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to update post", "error", err, "post_id", postID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update post")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(existing); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
		return
	}
}

// DeletePost handles DELETE /posts/{id} - soft-deletes a post.
// Only the author may delete a post.
func (h *PostHandlers) DeletePost(w http.ResponseWriter, r *http.Request) {
	postID, err := extractPostID(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Post ID is required")
		return
	}

	existing, err := h.repo.GetByID(postID)
	if err != nil {
		if errors.Is(err, post.ErrPostNotFound) || errors.Is(err, post.ErrPostDeleted) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodePostNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodePostNotFound, "Post not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to retrieve post", "error", err, "post_id", postID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve post")
		return
	}

	if viewerID := middleware.GetViewerID(r.Context()); viewerID != existing.AuthorID {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Only the author may delete a post")
		return
	}

	if err := h.repo.Delete(postID); err != nil {
		if errors.Is(err, post.ErrPostNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodePostNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodePostNotFound, "Post not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to delete post", "error", err, "post_id", postID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to delete post")
		return
	}

	recordAudit(r, h.audits, "post", postID, "delete_post")

	w.WriteHeader(http.StatusNoContent)
}
