package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rageval/internal/adapter/simindex"
	"rageval/internal/domain"
	"rageval/internal/port"
)

// PipelineConfig fixes one retrieval configuration: how many candidates
// to return, which similarity metric to use, and how deep the reranker
// looks into the first-pass results.
type PipelineConfig struct {
	K          int
	Metric     simindex.Metric
	RerankTopN int
}

// Pipeline runs one query end to end: embed, similarity search, then a
// windowed rerank of the leading candidates. A Pipeline is stateless
// across calls and safe for concurrent use.
type Pipeline struct {
	index    *simindex.Index
	embedder port.Embedder
	reranker port.Reranker
	cfg      PipelineConfig
	logger   *zap.Logger
}

func NewPipeline(index *simindex.Index, embedder port.Embedder, reranker port.Reranker, cfg PipelineConfig, logger *zap.Logger) (*Pipeline, error) {
	if cfg.K <= 0 {
		return nil, fmt.Errorf("top-k must be positive, got %d", cfg.K)
	}
	if _, err := simindex.ParseMetric(string(cfg.Metric)); err != nil {
		return nil, err
	}
	if reranker == nil {
		return nil, fmt.Errorf("reranker is required; use the none variant to disable reranking")
	}
	if cfg.RerankTopN < 0 {
		return nil, fmt.Errorf("rerank window must not be negative, got %d", cfg.RerankTopN)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		index:    index,
		embedder: embedder,
		reranker: reranker,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Label names the configuration for reports: "cosine/k=10/cross_encoder".
func (p *Pipeline) Label() string {
	return fmt.Sprintf("%s/k=%d/%s", p.cfg.Metric, p.cfg.K, p.reranker.Name())
}

// Retrieve answers one query. The returned candidate list holds exactly
// min(K, corpus size) entries with no duplicate chunk IDs; ranks are
// 1-based and contiguous. An error from any stage aborts only this call.
func (p *Pipeline) Retrieve(ctx context.Context, query domain.Query) (domain.RetrievalResult, error) {
	start := time.Now()
	result := domain.RetrievalResult{
		TraceID: uuid.NewString(),
		Query:   query.Text,
	}

	vector := query.Vector
	if vector == nil {
		if p.embedder == nil {
			return result, fmt.Errorf("query has no vector and no embedder is configured")
		}
		vectors, err := p.embedder.Embed(ctx, []string{query.Text})
		if err != nil {
			return result, fmt.Errorf("failed to embed query: %w", err)
		}
		if len(vectors) != 1 {
			return result, fmt.Errorf("embedder returned %d vectors for one text", len(vectors))
		}
		vector = vectors[0]
		result.ProviderCalls++
	}

	candidates, err := p.index.Query(vector, p.cfg.K, p.cfg.Metric)
	if err != nil {
		return result, fmt.Errorf("similarity search failed: %w", err)
	}

	reranked, calls, failures, err := p.rerankWindow(ctx, query.Text, candidates)
	if err != nil {
		return result, fmt.Errorf("rerank failed: %w", err)
	}
	result.ProviderCalls += calls
	result.RerankFailures = failures

	result.Candidates = reranked
	result.Latency = time.Since(start)

	p.logger.Debug("retrieval complete",
		zap.String("trace_id", result.TraceID),
		zap.Int("candidates", len(result.Candidates)),
		zap.Int("provider_calls", result.ProviderCalls),
		zap.Int("rerank_failures", result.RerankFailures),
		zap.Duration("latency", result.Latency))

	return result, nil
}

// rerankWindow reranks the leading RerankTopN candidates and reattaches
// the tail unchanged. Candidates outside the window keep their
// similarity scores; candidates inside it carry the reranker's scores.
// Ranks are reassigned over the merged list.
func (p *Pipeline) rerankWindow(ctx context.Context, queryText string, candidates []domain.ScoredCandidate) ([]domain.ScoredCandidate, int, int, error) {
	window := p.cfg.RerankTopN
	if window > len(candidates) {
		window = len(candidates)
	}
	if window == 0 {
		return candidates, 0, 0, nil
	}

	input := make([]port.Candidate, window)
	for i, c := range candidates[:window] {
		chunk, ok := p.index.Chunk(c.ChunkID)
		if !ok {
			return nil, 0, 0, fmt.Errorf("candidate %s missing from index", c.ChunkID)
		}
		input[i] = port.Candidate{
			ID:    c.ChunkID,
			Text:  chunk.Text,
			Score: c.Score,
		}
	}

	rr, err := p.reranker.Rerank(ctx, queryText, input)
	if err != nil {
		return nil, 0, 0, err
	}
	if len(rr.Ranked) != window {
		return nil, 0, 0, fmt.Errorf("reranker returned %d candidates for a window of %d", len(rr.Ranked), window)
	}

	merged := make([]domain.ScoredCandidate, 0, len(candidates))
	for _, ranked := range rr.Ranked {
		if ranked.Index < 0 || ranked.Index >= window {
			return nil, 0, 0, fmt.Errorf("reranker referenced candidate index %d outside window", ranked.Index)
		}
		merged = append(merged, domain.ScoredCandidate{
			ChunkID: input[ranked.Index].ID,
			Score:   ranked.Score,
		})
	}
	merged = append(merged, candidates[window:]...)

	for i := range merged {
		merged[i].Rank = i + 1
	}

	return merged, rr.ProviderCalls, rr.ScoreFailures, nil
}
