package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"rageval/internal/port"
)

// CrossEncoder reranks by scoring each (query, chunk-text) pair through
// a joint relevance model, one scorer call per candidate. Ties keep the
// prior similarity rank.
type CrossEncoder struct {
	scorer  port.RelevanceScorer
	timeout time.Duration
	workers int
}

// NewCrossEncoder creates a cross-encoder reranker on top of a scorer.
func NewCrossEncoder(scorer port.RelevanceScorer, timeout time.Duration, workers int) *CrossEncoder {
	return &CrossEncoder{
		scorer:  scorer,
		timeout: timeout,
		workers: workers,
	}
}

func (r *CrossEncoder) Rerank(ctx context.Context, query string, candidates []port.Candidate) (port.RerankResult, error) {
	if len(candidates) == 0 {
		return port.RerankResult{}, nil
	}

	scores, failed, calls, err := scoreCandidates(ctx, candidates, r.timeout, r.workers,
		func(cctx context.Context, c port.Candidate) (float64, error) {
			return r.scorer.Score(cctx, query, c.Text)
		})
	if err != nil {
		return port.RerankResult{}, fmt.Errorf("cross-encoder rerank failed: %w", err)
	}

	return port.RerankResult{
		Ranked:        assemble(candidates, scores, failed),
		ProviderCalls: calls,
		ScoreFailures: countFailures(failed),
	}, nil
}

func (r *CrossEncoder) Name() string {
	return "cross_encoder"
}

// HTTPScorer implements cross-encoder scoring against a Cohere-style
// rerank API, one document per request.
type HTTPScorer struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// NewHTTPScorer creates a scorer for an external rerank endpoint.
func NewHTTPScorer(apiKeyEnv, model, baseURL string) (*HTTPScorer, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}

	if model == "" {
		model = "rerank-english-v3.0"
	}
	if baseURL == "" {
		baseURL = "https://api.cohere.ai/v1"
	}

	return &HTTPScorer{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
	}, nil
}

// Score sends one (query, document) pair and returns its relevance.
func (s *HTTPScorer) Score(ctx context.Context, query, document string) (float64, error) {
	start := time.Now()

	reqBody := rerankRequest{
		Query:     query,
		Documents: []string{document},
		Model:     s.model,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/rerank", bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, timeoutError("cross_encoder", time.Since(start), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var rerankResp rerankResponse
	if err := json.Unmarshal(body, &rerankResp); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(rerankResp.Results) == 0 {
		return 0, fmt.Errorf("empty rerank response")
	}

	return rerankResp.Results[0].RelevanceScore, nil
}

// ModelName returns the model name.
func (s *HTTPScorer) ModelName() string {
	return s.model
}
