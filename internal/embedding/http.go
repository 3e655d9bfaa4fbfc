package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPConfig configures an HTTPEmbedder.
type HTTPConfig struct {
	// BaseURL of an Ollama-compatible server, e.g. http://localhost:11434.
	BaseURL string
	// Model name sent with every request.
	Model string
	// Dimension the model produces. It only names the vector space; 0 leaves it out.
	Dimension int
	// RequestsPerSecond caps outbound calls (0 = 20).
	RequestsPerSecond float64
	// Timeout per HTTP request (0 = 10s).
	Timeout time.Duration
	// Breaker settings; zero values use DefaultBreakerConfig.
	Breaker BreakerConfig
}

// HTTPEmbedder calls an Ollama-compatible /api/embeddings endpoint.
type HTTPEmbedder struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
	limiter *rate.Limiter
	breaker *Breaker
}

// NewHTTPEmbedder creates an HTTPEmbedder.
func NewHTTPEmbedder(cfg HTTPConfig) *HTTPEmbedder {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &HTTPEmbedder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		dim:     cfg.Dimension,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		breaker: NewBreaker(cfg.Breaker),
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the normalized embedding of text.
// Backend failures wrap ErrUnavailable.
func (c *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		v, err := c.embed(ctx, text)
		out = v
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return out, nil
}

// EmbedBatch embeds texts in order. The first failure aborts the batch.
func (c *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := c.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Identity names the model, and its dimension when configured.
func (c *HTTPEmbedder) Identity() string {
	if c.dim > 0 {
		return fmt.Sprintf("http-%s-%d", c.model, c.dim)
	}
	return "http-" + c.model
}

// HealthCheck reports whether the backend answers an embedding request.
func (c *HTTPEmbedder) HealthCheck(ctx context.Context) error {
	_, err := c.Embed(ctx, "health")
	return err
}

// BreakerState exposes the circuit breaker state for diagnostics.
func (c *HTTPEmbedder) BreakerState() BreakerState {
	return c.breaker.State()
}

func (c *HTTPEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		// Wait fails early when the deadline would pass before a token frees up.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, context.DeadlineExceeded
	}

	body, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed request: status %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding for model %q", c.model)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return Normalize(out), nil
}
