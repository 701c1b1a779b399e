package port

import "context"

// Candidate is one rerank input: a chunk's identity and text plus its
// first-pass similarity score. Candidates arrive in similarity order.
type Candidate struct {
	ID    string
	Text  string
	Score float64
}

// RankedCandidate references an input candidate by position, with the
// score the reranker assigned to it.
type RankedCandidate struct {
	Index int     // position in the input slice
	Score float64 // relevance score (higher is better)
}

// RerankResult is a full reordering of the input candidate set together
// with cost accounting. Ranked is always a permutation of the input
// indices: rerankers never invent or drop candidates.
type RerankResult struct {
	Ranked []RankedCandidate

	// ProviderCalls counts external scoring calls made during this
	// invocation, for cost/latency accounting.
	ProviderCalls int

	// ScoreFailures counts candidates whose scoring call failed. Those
	// candidates keep their input score and original position.
	ScoreFailures int
}

// Reranker re-scores and reorders a candidate set for one query.
// An error aborts only the single retrieval call in progress;
// per-candidate scoring failures must be absorbed, not returned.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate) (RerankResult, error)

	// Name returns the configuration name of this reranker variant.
	Name() string
}
