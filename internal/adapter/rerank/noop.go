package rerank

import (
	"context"

	"rageval/internal/port"
)

// Noop returns candidates unchanged. It is the control arm in
// experiment comparisons.
type Noop struct{}

// NewNoop creates the identity reranker.
func NewNoop() *Noop {
	return &Noop{}
}

func (r *Noop) Rerank(_ context.Context, _ string, candidates []port.Candidate) (port.RerankResult, error) {
	ranked := make([]port.RankedCandidate, len(candidates))
	for i, c := range candidates {
		ranked[i] = port.RankedCandidate{Index: i, Score: c.Score}
	}
	return port.RerankResult{Ranked: ranked}, nil
}

func (r *Noop) Name() string {
	return "none"
}
