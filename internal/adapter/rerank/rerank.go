// Package rerank provides the second-pass relevance scorers applied to a
// top-k candidate set. Variants are selected by configuration name; all
// of them return a permutation of the input candidates, never a subset.
package rerank

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"rageval/internal/domain"
	"rageval/internal/port"
)

// scoreCandidates runs scoreFn once per candidate with a per-call
// timeout, in parallel. A failed call marks the candidate failed and
// keeps its input score; it never fails the batch. Results are merged
// by candidate index, so the outcome is independent of call ordering.
func scoreCandidates(
	ctx context.Context,
	candidates []port.Candidate,
	timeout time.Duration,
	workers int,
	scoreFn func(ctx context.Context, c port.Candidate) (float64, error),
) (scores []float64, failed []bool, calls int, err error) {
	scores = make([]float64, len(candidates))
	failed = make([]bool, len(candidates))

	if workers <= 0 {
		workers = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range candidates {
		i := i
		g.Go(func() error {
			cctx := gctx
			cancel := context.CancelFunc(func() {})
			if timeout > 0 {
				cctx, cancel = context.WithTimeout(gctx, timeout)
			}
			defer cancel()

			score, serr := scoreFn(cctx, candidates[i])
			if serr != nil {
				// Batch-level cancellation is not a per-candidate event.
				if gctx.Err() != nil && errors.Is(serr, gctx.Err()) {
					return serr
				}
				failed[i] = true
				scores[i] = candidates[i].Score
				return nil
			}
			scores[i] = score
			return nil
		})
	}

	if werr := g.Wait(); werr != nil {
		return nil, nil, len(candidates), werr
	}

	return scores, failed, len(candidates), nil
}

// assemble orders successfully scored candidates by score descending
// (stable, so equal scores keep their prior similarity rank) while
// failed candidates stay pinned at their original positions.
func assemble(candidates []port.Candidate, scores []float64, failed []bool) []port.RankedCandidate {
	n := len(candidates)
	out := make([]port.RankedCandidate, n)

	scored := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if failed[i] {
			out[i] = port.RankedCandidate{Index: i, Score: scores[i]}
		} else {
			scored = append(scored, i)
		}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scores[scored[a]] > scores[scored[b]]
	})

	next := 0
	for slot := 0; slot < n; slot++ {
		if failed[slot] {
			continue
		}
		out[slot] = port.RankedCandidate{Index: scored[next], Score: scores[scored[next]]}
		next++
	}

	return out
}

func countFailures(failed []bool) int {
	n := 0
	for _, f := range failed {
		if f {
			n++
		}
	}
	return n
}

// timeoutError normalizes a context deadline hit into the domain's
// per-call timeout error so callers can attribute it to one candidate.
func timeoutError(provider string, elapsed time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ProviderTimeoutError{Provider: provider, Elapsed: elapsed}
	}
	return &domain.ProviderError{Provider: provider, Err: err}
}
