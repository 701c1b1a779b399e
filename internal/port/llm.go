package port

import "context"

// LLM represents a generative model used for relevance judgments.
type LLM interface {
	// Generate generates text based on the prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}

// RelevanceScorer computes a joint relevance score for one
// (query, document) pair, cross-encoder style.
type RelevanceScorer interface {
	// Score returns a relevance score for the pair (higher is better).
	Score(ctx context.Context, query, document string) (float64, error)

	// ModelName returns the name of the scoring model.
	ModelName() string
}
