// Package rerank calls a cross-encoder relevance scoring service over HTTP.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	// DefaultEndpoint is the DashScope text-rerank service URL
	DefaultEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/rerank/text-rerank/text-rerank"
	// DefaultModel is the rerank model name
	DefaultModel = "gte-rerank"

	defaultTimeout = 15 * time.Second
)

// Result is one scored candidate. Index refers to the position of the
// document in the request; RelevanceScore is in [0, 1].
type Result struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Reranker scores candidate texts against a query
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]Result, error)
}

// Client is an HTTP reranker client
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithModel overrides the rerank model name
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// NewClient creates a reranker client for the given endpoint
func NewClient(endpoint, apiKey string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rerankRequest is the JSON body for the rerank call
type rerankRequest struct {
	Model string      `json:"model"`
	Input rerankInput `json:"input"`
}

type rerankInput struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

// rerankResponse mirrors the service response:
// {"output": {"results": [{"index": 0, "relevance_score": 0.8}, ...]}}
type rerankResponse struct {
	Output struct {
		Results []Result `json:"results"`
	} `json:"output"`
}

// Rerank scores each document against the query. Results come back ordered
// by descending relevance, but callers should not rely on that ordering.
func (c *Client) Rerank(ctx context.Context, query string, documents []string) ([]Result, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{
		Model: c.model,
		Input: rerankInput{Query: query, Documents: documents},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank: unexpected status %d", resp.StatusCode)
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}

	for _, r := range result.Output.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("rerank: result index %d out of range", r.Index)
		}
	}

	return result.Output.Results, nil
}
