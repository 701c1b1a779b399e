package cli

import (
	"fmt"
	"time"

	"rageval/config"
	"rageval/internal/adapter/embedding"
	"rageval/internal/adapter/llm"
	"rageval/internal/adapter/rerank"
	"rageval/internal/adapter/simindex"
	"rageval/internal/port"
	"rageval/internal/usecase"
)

// buildEmbedder constructs the configured embedding provider, wrapped
// in the embedding cache when one is configured.
func buildEmbedder(cfg *config.Config) (port.Embedder, error) {
	timeout := time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second

	var embedder port.Embedder
	var err error
	switch cfg.Embedding.Provider {
	case "openai":
		embedder, err = embedding.NewOpenAIEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, timeout)
	case "openai-compatible":
		embedder, err = embedding.NewOpenAICompatibleEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, cfg.Embedding.BaseURL, timeout)
	case "ollama":
		embedder, err = embedding.NewOllamaEmbedder(cfg.Embedding.Model, cfg.Embedding.BaseURL, timeout)
	case "mock":
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	if cfg.Embedding.CacheSize > 0 {
		cache := embedding.NewCache(cfg.Embedding.CacheSize, time.Duration(cfg.Embedding.CacheTTLMinutes)*time.Minute)
		embedder = embedding.NewCachedEmbedder(embedder, cache)
	}

	return embedder, nil
}

// buildReranker constructs a reranker variant by configuration name.
// The index supplies chunk vectors for the MMR variant.
func buildReranker(name string, cfg *config.Config, index *simindex.Index) (port.Reranker, error) {
	timeout := time.Duration(cfg.Rerank.TimeoutSeconds) * time.Second

	switch name {
	case "none":
		return rerank.NewNoop(), nil

	case "cross_encoder":
		scorer, err := rerank.NewHTTPScorer(cfg.Rerank.ScorerAPIKeyEnv, cfg.Rerank.ScorerModel, cfg.Rerank.ScorerBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create cross-encoder scorer: %w", err)
		}
		return rerank.NewCrossEncoder(scorer, timeout, cfg.Rerank.Workers), nil

	case "llm_judge":
		var judge port.LLM
		var err error
		switch cfg.Rerank.JudgeProvider {
		case "openai":
			judge, err = llm.NewOpenAIClient(cfg.Rerank.JudgeAPIKeyEnv, cfg.Rerank.JudgeModel, timeout)
		case "openai-compatible":
			judge, err = llm.NewOpenAICompatibleClient(cfg.Rerank.JudgeAPIKeyEnv, cfg.Rerank.JudgeModel, cfg.Rerank.JudgeBaseURL, timeout)
		case "ollama":
			judge, err = llm.NewOllamaClient(cfg.Rerank.JudgeModel, cfg.Rerank.JudgeBaseURL, timeout)
		default:
			return nil, fmt.Errorf("unsupported judge provider: %s", cfg.Rerank.JudgeProvider)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create judge: %w", err)
		}
		return rerank.NewLLMJudge(judge, timeout, cfg.Rerank.Workers), nil

	case "mmr":
		return rerank.NewMMR(cfg.Rerank.MMRLambda, index.Vector), nil

	default:
		return nil, fmt.Errorf("unknown reranker: %q (expected none, cross_encoder, llm_judge, or mmr)", name)
	}
}

// buildPipeline wires a full retrieval pipeline for one reranker name.
func buildPipeline(cfg *config.Config, index *simindex.Index, embedder port.Embedder, rerankerName string) (*usecase.Pipeline, error) {
	metric, err := simindex.ParseMetric(cfg.Retrieve.Metric)
	if err != nil {
		return nil, err
	}

	reranker, err := buildReranker(rerankerName, cfg, index)
	if err != nil {
		return nil, err
	}

	return usecase.NewPipeline(index, embedder, reranker, usecase.PipelineConfig{
		K:          cfg.Retrieve.TopK,
		Metric:     metric,
		RerankTopN: cfg.Retrieve.RerankTopN,
	}, GetLogger())
}
