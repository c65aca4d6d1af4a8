package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onda-social/onda/internal/auth"
	"github.com/onda-social/onda/internal/middleware"
	"github.com/onda-social/onda/internal/post"
	"github.com/onda-social/onda/internal/ranking"
	"github.com/onda-social/onda/internal/viewer"
)

// newTestServer wires the full router with real JWT auth, backed by
// in-memory repositories.
func newTestServer(t *testing.T) (*httptest.Server, *auth.JWTService, *viewer.InMemoryViewerRepository) {
	t.Helper()

	posts := post.NewInMemoryPostRepository()
	viewers := viewer.NewInMemoryViewerRepository()
	prefs := ranking.NewInMemoryPreferenceStore()
	engine := ranking.NewEngine()
	jwtSvc := auth.NewJWTService("router-test-secret")

	mux := NewRouter(RouterConfig{
		Feed:        NewFeedHandlers(posts, viewers, prefs, engine),
		Posts:       NewPostHandlers(posts),
		Viewers:     NewViewerHandlers(viewers, prefs),
		Auth:        NewAuthHandlers(jwtSvc, viewers),
		Health:      NewHealthHandlers(HealthHandlersConfig{}),
		RequireAuth: middleware.RequireAuth(jwtSvc),
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, jwtSvc, viewers
}

func TestRouter_FullFlow(t *testing.T) {
	srv, _, viewers := newTestServer(t)

	// Register two viewers directly so their IDs are known.
	if err := viewers.Put(&viewer.Viewer{ID: "author-1", Handle: "nico"}); err != nil {
		t.Fatalf("failed to seed author: %v", err)
	}
	if err := viewers.Put(&viewer.Viewer{ID: "reader-1", Handle: "luna"}); err != nil {
		t.Fatalf("failed to seed reader: %v", err)
	}

	authorToken := fetchToken(t, srv.URL, "author-1")
	readerToken := fetchToken(t, srv.URL, "reader-1")

	// Author publishes a post.
	postID := createPostViaAPI(t, srv.URL, authorToken, `{"text":"new release out now","topic":"music"}`)

	// Reader follows the author.
	followResp := doRequest(t, http.MethodPost, srv.URL+"/viewers/reader-1/follow", readerToken, `{"target_id":"author-1"}`)
	if followResp.StatusCode != http.StatusNoContent {
		t.Fatalf("follow: expected 204, got %d", followResp.StatusCode)
	}

	// Reader's feed contains the post, ranked with an explanation.
	feedResp := doRequest(t, http.MethodGet, srv.URL+"/feed", readerToken, "")
	if feedResp.StatusCode != http.StatusOK {
		t.Fatalf("feed: expected 200, got %d", feedResp.StatusCode)
	}
	var feed FeedResponse
	if err := json.NewDecoder(feedResp.Body).Decode(&feed); err != nil {
		t.Fatalf("failed to decode feed: %v", err)
	}
	feedResp.Body.Close()

	if len(feed.Entries) != 1 {
		t.Fatalf("expected 1 feed entry, got %d", len(feed.Entries))
	}
	if feed.Entries[0].Post.ID != postID {
		t.Errorf("expected post %s in feed, got %s", postID, feed.Entries[0].Post.ID)
	}
	if feed.Entries[0].Explanation == "" {
		t.Error("expected explanation on feed entry")
	}
	if feed.Entries[0].Score <= 0 {
		t.Errorf("expected positive score for followed author's fresh post, got %v", feed.Entries[0].Score)
	}
}

func TestRouter_AuthRequired(t *testing.T) {
	srv, _, _ := newTestServer(t)

	protected := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/feed"},
		{http.MethodPost, "/posts"},
		{http.MethodPatch, "/posts/abc"},
		{http.MethodDelete, "/posts/abc"},
		{http.MethodPut, "/viewers/v1/ranking-prefs"},
		{http.MethodPost, "/viewers/v1/follow"},
	}
	for _, tt := range protected {
		resp := doRequest(t, tt.method, srv.URL+tt.path, "", "{}")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", tt.method, tt.path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestRouter_PublicRoutes(t *testing.T) {
	srv, _, viewers := newTestServer(t)
	if err := viewers.Put(&viewer.Viewer{ID: "viewer-1", Handle: "luna"}); err != nil {
		t.Fatalf("failed to seed viewer: %v", err)
	}

	resp := doRequest(t, http.MethodGet, srv.URL+"/viewers/viewer-1", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /viewers/{id}: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, http.MethodGet, srv.URL+"/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, http.MethodGet, srv.URL+"/", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /: expected 200, got %d", resp.StatusCode)
	}
	var info map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("failed to decode root response: %v", err)
	}
	resp.Body.Close()
	if info["service"] != ServiceName {
		t.Errorf("expected service %s, got %s", ServiceName, info["service"])
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/nonexistent", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("expected structured error body: %v", err)
	}
	resp.Body.Close()
	if errResp.Error.Code != ErrCodeNotFound {
		t.Errorf("expected error code %s, got %s", ErrCodeNotFound, errResp.Error.Code)
	}
}

func doRequest(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func fetchToken(t *testing.T, baseURL, viewerID string) string {
	t.Helper()
	resp := doRequest(t, http.MethodPost, baseURL+"/auth/token", "", `{"viewer_id":"`+viewerID+`"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token issuance for %s: expected 200, got %d", viewerID, resp.StatusCode)
	}
	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatalf("failed to decode token response: %v", err)
	}
	return tr.AccessToken
}

func createPostViaAPI(t *testing.T, baseURL, token, body string) string {
	t.Helper()
	resp := doRequest(t, http.MethodPost, baseURL+"/posts", token, body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create post: expected 201, got %d", resp.StatusCode)
	}
	var created post.Post
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode created post: %v", err)
	}
	return created.ID
}
