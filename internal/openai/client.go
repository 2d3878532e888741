// Package openai is the embedding-provider facade. It shares the retrying
// transport with the commerce client so both sides of the pipeline follow
// one backoff policy.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const defaultBaseURL = "https://api.openai.com"

// DefaultModel is used when OPENAI_EMBEDDING_MODEL is not set.
const DefaultModel = "text-embedding-3-small"

// emptyTextPlaceholder substitutes whitespace-only input; the provider
// rejects empty strings.
const emptyTextPlaceholder = "商品情報なし"

// Doer is the transport surface the client needs. Both httpclient.Client
// and httpclient.CircuitBreakerClient satisfy it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config holds provider credentials and the embedding model name.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Client calls the embeddings endpoint.
type Client struct {
	http Doer
	cfg  Config
}

// NewClient builds a Client over the given transport.
func NewClient(cfg Config, transport Doer) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Client{http: transport, cfg: cfg}
}

// Model returns the embedding model this client is configured for.
func (c *Client) Model() string {
	return c.cfg.Model
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for the given text. Whitespace-only
// text is replaced with a fixed placeholder before the call.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		text = emptyTextPlaceholder
	}

	body, err := json.Marshal(embeddingRequest{Model: c.cfg.Model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embeddings call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response carries no vector")
	}

	return parsed.Data[0].Embedding, nil
}
