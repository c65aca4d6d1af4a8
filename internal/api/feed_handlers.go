// Package api provides HTTP handlers for the Onda feed ranking API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/onda-social/onda/internal/middleware"
	"github.com/onda-social/onda/internal/post"
	"github.com/onda-social/onda/internal/ranking"
	"github.com/onda-social/onda/internal/viewer"
)

// MaxFeedLimit caps the number of entries a single feed request may ask for.
const MaxFeedLimit = 100

// FeedEntry is one ranked item in a feed response.
type FeedEntry struct {
	Post        *post.Post `json:"post"`
	Score       float64    `json:"score"`
	Explanation string     `json:"explanation"`
}

// FeedResponse represents the JSON response for GET /feed.
type FeedResponse struct {
	ViewerID    string      `json:"viewer_id"`
	GeneratedAt time.Time   `json:"generated_at"`
	Entries     []FeedEntry `json:"entries"`
}

// FeedHandlers holds dependencies for the feed endpoint.
type FeedHandlers struct {
	posts   post.PostRepository
	viewers viewer.ViewerRepository
	prefs   ranking.PreferenceStore

	// control serves all traffic unless an experiment routes the request
	// to the candidate engine, which carries trial calibration weights.
	control   *ranking.Engine
	candidate *ranking.Engine
}

// NewFeedHandlers creates a new FeedHandlers instance.
func NewFeedHandlers(posts post.PostRepository, viewers viewer.ViewerRepository, prefs ranking.PreferenceStore, engine *ranking.Engine) *FeedHandlers {
	return &FeedHandlers{
		posts:   posts,
		viewers: viewers,
		prefs:   prefs,
		control: engine,
	}
}

// SetCandidateEngine installs the engine served to the candidate cohort of
// a ranking calibration experiment.
func (h *FeedHandlers) SetCandidateEngine(engine *ranking.Engine) {
	h.candidate = engine
}

// parseFeedLimit parses the limit query parameter. Returns the limit and an
// error message, empty if valid. Absent means the engine default.
func parseFeedLimit(r *http.Request) (int, string) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return ranking.DefaultFeedLimit, ""
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 {
		return 0, "Invalid limit parameter"
	}
	if limit > MaxFeedLimit {
		limit = MaxFeedLimit
	}
	return limit, ""
}

// GetFeed handles GET /feed - generates the personalized ranked feed for
// the authenticated viewer.
func (h *FeedHandlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	viewerID := middleware.GetViewerID(r.Context())
	if viewerID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	limit, errMsg := parseFeedLimit(r)
	if errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
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
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load viewer")
		return
	}

	cfg := h.prefs.Get(viewerID)

	// The engine never looks past the maximum window, so neither does the
	// repository scan.
	cutoff := time.Now().Add(-time.Duration(ranking.MaxWindowDays) * 24 * time.Hour)
	pool, err := h.posts.ListSince(cutoff)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list candidate posts", "error", err, "viewer_id", viewerID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load posts")
		return
	}
	candidates := post.VisibleCandidates(pool, viewerID)

	engine := h.control
	if middleware.GetRankingCohort(r.Context()) == middleware.CohortCandidate && h.candidate != nil {
		engine = h.candidate
	}

	ranked := engine.GenerateFeed(candidates, v, cfg, h.viewers.Lookup(), limit)

	entries := make([]FeedEntry, len(ranked))
	for i, sp := range ranked {
		entries[i] = FeedEntry{
			Post:        sp.Post,
			Score:       sp.Score,
			Explanation: sp.Explanation,
		}
	}

	response := FeedResponse{
		ViewerID:    viewerID,
		GeneratedAt: time.Now().UTC(),
		Entries:     entries,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
		return
	}
}
