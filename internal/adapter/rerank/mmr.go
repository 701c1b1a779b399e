package rerank

import (
	"context"
	"math"

	"rageval/internal/port"
)

// VectorLookup resolves a chunk ID to its stored embedding. The
// similarity index provides this.
type VectorLookup func(id string) ([]float32, bool)

// MMR reorders candidates by Maximal Marginal Relevance over their
// embeddings, trading relevance against redundancy. Fully deterministic
// and free of provider calls.
type MMR struct {
	lambda float64
	lookup VectorLookup
}

// NewMMR creates an MMR reranker. lambda weighs relevance against
// diversity: 1.0 keeps the similarity order, 0.0 maximizes diversity.
func NewMMR(lambda float64, lookup VectorLookup) *MMR {
	if lambda <= 0 || lambda > 1 {
		lambda = 0.7
	}
	return &MMR{
		lambda: lambda,
		lookup: lookup,
	}
}

// Rerank applies greedy MMR selection.
// MMR(c) = λ * relevance(c) - (1-λ) * max_similarity(c, selected)
func (r *MMR) Rerank(_ context.Context, _ string, candidates []port.Candidate) (port.RerankResult, error) {
	if len(candidates) == 0 {
		return port.RerankResult{}, nil
	}

	vectors := make([][]float32, len(candidates))
	for i, c := range candidates {
		if vec, ok := r.lookup(c.ID); ok {
			vectors[i] = vec
		}
	}

	// Normalize relevance to [0, 1] for fair comparison with the
	// pairwise similarity term.
	maxScore := candidates[0].Score
	for _, c := range candidates {
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}
	if maxScore == 0 {
		maxScore = 1
	}

	selected := make([]int, 0, len(candidates))
	ranked := make([]port.RankedCandidate, 0, len(candidates))
	remaining := make(map[int]struct{}, len(candidates))
	for i := range candidates {
		remaining[i] = struct{}{}
	}

	for len(remaining) > 0 {
		bestIdx := -1
		bestMMR := math.Inf(-1)

		// Scan in input order so equal MMR values resolve to the
		// earlier (higher similarity rank) candidate.
		for i := range candidates {
			if _, ok := remaining[i]; !ok {
				continue
			}

			relevance := candidates[i].Score / maxScore

			maxSim := 0.0
			for _, sel := range selected {
				sim := cosine32(vectors[i], vectors[sel])
				if sim > maxSim {
					maxSim = sim
				}
			}

			mmr := r.lambda*relevance - (1-r.lambda)*maxSim
			if mmr > bestMMR {
				bestMMR = mmr
				bestIdx = i
			}
		}

		selected = append(selected, bestIdx)
		ranked = append(ranked, port.RankedCandidate{Index: bestIdx, Score: bestMMR})
		delete(remaining, bestIdx)
	}

	return port.RerankResult{Ranked: ranked}, nil
}

func (r *MMR) Name() string {
	return "mmr"
}

func cosine32(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
