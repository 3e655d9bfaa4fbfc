package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// EmbeddingChecker probes an Ollama-compatible embedding server.
// It hits the root path, which answers 200 without loading a model, so
// readiness probes do not spend embedding capacity.
type EmbeddingChecker struct {
	url    string
	client *http.Client
}

// NewEmbeddingChecker creates a checker for the server at baseURL.
func NewEmbeddingChecker(baseURL string) *EmbeddingChecker {
	return &EmbeddingChecker{
		url: strings.TrimRight(baseURL, "/") + "/",
		client: &http.Client{
			Timeout: 3 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// HealthCheck returns nil when the server answers with a 2xx status.
func (e *EmbeddingChecker) HealthCheck(ctx context.Context) error {
	if e.url == "/" {
		return fmt.Errorf("embedding url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach embedding server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("embedding server unhealthy: unexpected status code %d", resp.StatusCode)
	}
	return nil
}
