package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the retrieval evaluator.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Eval      EvalConfig      `yaml:"eval"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IndexConfig holds corpus indexing configuration.
type IndexConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK       int    `yaml:"top_k"`
	Metric     string `yaml:"metric"`       // "cosine" or "dot"
	Reranker   string `yaml:"reranker"`     // "none", "cross_encoder", "llm_judge", "mmr"
	RerankTopN int    `yaml:"rerank_top_n"` // rerank window; 0 disables reranking
}

// RerankConfig holds reranker provider configuration.
type RerankConfig struct {
	// Cross-encoder scoring endpoint.
	ScorerModel     string `yaml:"scorer_model"`
	ScorerAPIKeyEnv string `yaml:"scorer_api_key_env"`
	ScorerBaseURL   string `yaml:"scorer_base_url"`

	// LLM judge provider.
	JudgeProvider  string `yaml:"judge_provider"` // "openai", "ollama"
	JudgeModel     string `yaml:"judge_model"`
	JudgeAPIKeyEnv string `yaml:"judge_api_key_env"`
	JudgeBaseURL   string `yaml:"judge_base_url"`

	TimeoutSeconds int     `yaml:"timeout_seconds"` // per scoring call
	Workers        int     `yaml:"workers"`
	MMRLambda      float64 `yaml:"mmr_lambda"`
}

// EvalConfig holds evaluation harness configuration.
type EvalConfig struct {
	RecallKs      []int   `yaml:"recall_ks"`
	RankCutoff    int     `yaml:"rank_cutoff"`
	DriftQuantile float64 `yaml:"drift_quantile"`
	Workers       int     `yaml:"workers"`
	Repeats       int     `yaml:"repeats"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // "openai", "ollama", "mock"
	Model          string `yaml:"model"`
	APIKeyEnv      string `yaml:"api_key_env"`
	BaseURL        string `yaml:"base_url"`
	Dimension      int    `yaml:"dimension"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	CacheSize       int `yaml:"cache_size"`
	CacheTTLMinutes int `yaml:"cache_ttl_minutes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Includes: []string{"**/*.chunks.jsonl"},
			Excludes: []string{"**/node_modules/**", "**/.git/**"},
		},
		Retrieve: RetrieveConfig{
			TopK:       10,
			Metric:     "cosine",
			Reranker:   "none",
			RerankTopN: 10,
		},
		Rerank: RerankConfig{
			ScorerModel:    "rerank-english-v3.0",
			JudgeProvider:  "openai",
			JudgeModel:     "gpt-4o-mini",
			JudgeAPIKeyEnv: "OPENAI_API_KEY",
			TimeoutSeconds: 15,
			Workers:        4,
			MMRLambda:      0.7,
		},
		Eval: EvalConfig{
			RecallKs:      []int{1, 5, 10},
			RankCutoff:    5,
			DriftQuantile: 0.75,
			Workers:       4,
			Repeats:       1,
		},
		Embedding: EmbeddingConfig{
			Provider:        "openai",
			Model:           "text-embedding-3-small",
			APIKeyEnv:       "OPENAI_API_KEY",
			Dimension:       1536,
			TimeoutSeconds:  30,
			CacheSize:       4096,
			CacheTTLMinutes: 60,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for rageval.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "rageval.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".rageval", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SnapshotPath returns the path to the index snapshot database.
func SnapshotPath(dir string) string {
	return filepath.Join(dir, ".rageval", "index.db")
}

// EnsureDir ensures the .rageval directory exists.
func EnsureDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".rageval"), 0755)
}
