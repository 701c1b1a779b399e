package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Retrieve.TopK != 10 {
		t.Errorf("expected TopK=10, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Retrieve.Metric != "cosine" {
		t.Errorf("expected Metric=cosine, got %s", cfg.Retrieve.Metric)
	}
	if cfg.Retrieve.Reranker != "none" {
		t.Errorf("expected Reranker=none, got %s", cfg.Retrieve.Reranker)
	}
	if len(cfg.Eval.RecallKs) != 3 {
		t.Errorf("expected 3 recall cutoffs, got %v", cfg.Eval.RecallKs)
	}
	if cfg.Eval.DriftQuantile != 0.75 {
		t.Errorf("expected DriftQuantile=0.75, got %f", cfg.Eval.DriftQuantile)
	}
	if cfg.Rerank.MMRLambda != 0.7 {
		t.Errorf("expected MMRLambda=0.7, got %f", cfg.Rerank.MMRLambda)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "rageval.yaml")

	content := `
retrieve:
  top_k: 25
  reranker: cross_encoder
  rerank_top_n: 15
eval:
  recall_ks: [3, 10]
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Retrieve.TopK != 25 {
		t.Errorf("expected TopK=25, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Retrieve.Reranker != "cross_encoder" {
		t.Errorf("expected Reranker=cross_encoder, got %s", cfg.Retrieve.Reranker)
	}
	if len(cfg.Eval.RecallKs) != 2 || cfg.Eval.RecallKs[0] != 3 {
		t.Errorf("expected recall cutoffs [3 10], got %v", cfg.Eval.RecallKs)
	}
	// Untouched sections keep their defaults.
	if cfg.Retrieve.Metric != "cosine" {
		t.Errorf("expected default metric preserved, got %s", cfg.Retrieve.Metric)
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "rageval.yaml")

	content := `
embedding:
  provider: mock
  dimension: 64
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Embedding.Provider != "mock" {
		t.Errorf("expected Provider=mock, got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimension != 64 {
		t.Errorf("expected Dimension=64, got %d", cfg.Embedding.Dimension)
	}
}

func TestSnapshotPath(t *testing.T) {
	path := SnapshotPath("/home/user/project")
	expected := filepath.Join("/home/user/project", ".rageval", "index.db")
	if path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}
}
