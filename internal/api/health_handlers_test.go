package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeChecker struct {
	err error
}

func (f *fakeChecker) HealthCheck(ctx context.Context) error {
	return f.err
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse health response: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	h := NewHealthHandlers(HealthHandlersConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	h.Health(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	resp := decodeHealth(t, w)
	if resp.Status != "healthy" {
		t.Errorf("expected status healthy, got %s", resp.Status)
	}
	if resp.Checks["runtime"] != "ok" {
		t.Errorf("expected runtime ok, got %s", resp.Checks["runtime"])
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := NewHealthHandlers(HealthHandlersConfig{})

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()

	h.Health(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", w.Code)
	}
}

func TestReady_AllHealthy(t *testing.T) {
	h := NewHealthHandlers(HealthHandlersConfig{
		DBChecker:    &fakeChecker{},
		RedisChecker: &fakeChecker{},
	})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	h.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	resp := decodeHealth(t, w)
	if resp.Checks["database"] != "ok" || resp.Checks["redis"] != "ok" {
		t.Errorf("expected ok checks, got %v", resp.Checks)
	}
}

func TestReady_DatabaseDown(t *testing.T) {
	h := NewHealthHandlers(HealthHandlersConfig{
		DBChecker: &fakeChecker{err: errors.New("connection refused")},
	})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	h.Ready(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
	resp := decodeHealth(t, w)
	if resp.Status != "unhealthy" {
		t.Errorf("expected unhealthy, got %s", resp.Status)
	}
	if resp.Checks["database"] != "error" {
		t.Errorf("expected database error, got %s", resp.Checks["database"])
	}
}

func TestReady_IngestDownDoesNotFailReadiness(t *testing.T) {
	h := NewHealthHandlers(HealthHandlersConfig{
		IngestChecker: &fakeChecker{err: errors.New("websocket closed")},
	})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	h.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 despite ingest failure, got %d", w.Code)
	}
	resp := decodeHealth(t, w)
	if resp.Checks["ingest"] != "error" {
		t.Errorf("expected ingest error reported, got %s", resp.Checks["ingest"])
	}
}

func TestReady_NoCheckersConfigured(t *testing.T) {
	h := NewHealthHandlers(HealthHandlersConfig{})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	h.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 with in-memory setup, got %d", w.Code)
	}
}
