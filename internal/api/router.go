// Package api provides HTTP handlers for the Onda feed ranking API.
package api

import (
	"log/slog"
	"net/http"

	"github.com/onda-social/onda/internal/middleware"
)

// ServiceName and ServiceVersion identify the server in the root endpoint.
const (
	ServiceName    = "onda-api"
	ServiceVersion = "0.1.0"
)

// RouterConfig carries the handler groups and the auth middleware used to
// guard viewer-scoped routes.
type RouterConfig struct {
	Feed    *FeedHandlers
	Posts   *PostHandlers
	Viewers *ViewerHandlers
	Auth    *AuthHandlers
	Health  *HealthHandlers

	// RequireAuth wraps routes that need an authenticated viewer. Nil
	// leaves those routes open, which is only appropriate in tests.
	RequireAuth func(http.Handler) http.Handler
}

// NewRouter builds the ServeMux with the full API route surface.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	authed := cfg.RequireAuth
	if authed == nil {
		authed = func(next http.Handler) http.Handler { return next }
	}

	mux := http.NewServeMux()

	// Feed
	mux.Handle("GET /feed", authed(http.HandlerFunc(cfg.Feed.GetFeed)))

	// Posts
	mux.Handle("POST /posts", authed(http.HandlerFunc(cfg.Posts.CreatePost)))
	mux.Handle("GET /posts/{id}", http.HandlerFunc(cfg.Posts.GetPost))
	mux.Handle("PATCH /posts/{id}", authed(http.HandlerFunc(cfg.Posts.UpdatePost)))
	mux.Handle("DELETE /posts/{id}", authed(http.HandlerFunc(cfg.Posts.DeletePost)))

	// Viewers
	mux.Handle("POST /viewers", http.HandlerFunc(cfg.Viewers.CreateViewer))
	mux.Handle("GET /viewers/{id}", http.HandlerFunc(cfg.Viewers.GetViewer))
	mux.Handle("GET /viewers/{id}/ranking-prefs", authed(http.HandlerFunc(cfg.Viewers.GetRankingPrefs)))
	mux.Handle("PUT /viewers/{id}/ranking-prefs", authed(http.HandlerFunc(cfg.Viewers.PutRankingPrefs)))
	mux.Handle("PUT /viewers/{id}/interests", authed(http.HandlerFunc(cfg.Viewers.PutInterests)))
	mux.Handle("POST /viewers/{id}/follow", authed(http.HandlerFunc(cfg.Viewers.Follow)))
	mux.Handle("DELETE /viewers/{id}/follow/{target}", authed(http.HandlerFunc(cfg.Viewers.Unfollow)))

	// Auth
	mux.Handle("POST /auth/token", http.HandlerFunc(cfg.Auth.IssueToken))

	// Probes
	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("GET /ready", cfg.Health.Ready)

	// Root: service info on exact /, structured 404 for everything else.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"` + ServiceName + `","version":"` + ServiceVersion + `"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	return mux
}
