package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HubChecker implements health checking for the signal hub the ingest
// consumer subscribes to.
type HubChecker struct {
	url    string
	client *http.Client
}

// NewHubChecker creates a new signal hub health checker. The url should be
// the hub's base HTTP URL (e.g., "https://signals.example.com").
func NewHubChecker(url string) *HubChecker {
	return &HubChecker{
		url: url,
		client: &http.Client{
			Timeout: 3 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// HealthCheck probes the hub over HTTP. The hub exposes no dedicated health
// endpoint, so reachability with a 2xx response counts as healthy.
func (h *HubChecker) HealthCheck(ctx context.Context) error {
	if h.url == "" {
		return fmt.Errorf("signal hub url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach signal hub: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("signal hub unhealthy: unexpected status code %d", resp.StatusCode)
	}

	return nil
}
