package usecase

import (
	"fmt"
	"math"
	"sort"

	"rageval/internal/domain"
)

// ChunkLookup resolves a chunk ID to its stored chunk, normally backed
// by the similarity index.
type ChunkLookup func(id string) (domain.Chunk, bool)

// AnalyzerConfig tunes failure classification.
type AnalyzerConfig struct {
	// RankCutoff is the deepest rank downstream consumers are assumed to
	// read. Relevant chunks found only below it are classified as
	// insufficient context.
	RankCutoff int

	// DriftQuantile picks the top-1 score threshold for semantic drift
	// from the observed score distribution. A top-1 miss only counts as
	// drift when its score is at or above this quantile.
	DriftQuantile float64
}

// Analyzer assigns each evaluated query at most one failure category.
// Categories are checked in a fixed order; the first match wins:
// retrieval miss, semantic drift, insufficient context, ambiguous
// query, then none.
type Analyzer struct {
	cfg    AnalyzerConfig
	lookup ChunkLookup
}

func NewAnalyzer(cfg AnalyzerConfig, lookup ChunkLookup) (*Analyzer, error) {
	if cfg.RankCutoff <= 0 {
		cfg.RankCutoff = 5
	}
	if cfg.DriftQuantile == 0 {
		cfg.DriftQuantile = 0.75
	}
	if cfg.DriftQuantile < 0 || cfg.DriftQuantile > 1 {
		return nil, fmt.Errorf("drift quantile must be in [0, 1], got %g", cfg.DriftQuantile)
	}
	if lookup == nil {
		return nil, fmt.Errorf("chunk lookup is required")
	}
	return &Analyzer{cfg: cfg, lookup: lookup}, nil
}

// Analyze classifies every outcome and returns a record for each one
// that failed. The semantic drift threshold is taken from the top-1
// score distribution of the outcomes under analysis, so "scored high"
// means high relative to this run, not an absolute scale.
func (a *Analyzer) Analyze(outcomes []domain.QueryOutcome) []domain.FailureRecord {
	var topScores []float64
	for _, o := range outcomes {
		if o.Err == nil && len(o.Result.Candidates) > 0 {
			topScores = append(topScores, o.Result.Candidates[0].Score)
		}
	}
	threshold := ScoreQuantile(topScores, a.cfg.DriftQuantile)

	var records []domain.FailureRecord
	for _, o := range outcomes {
		category := a.Classify(o, threshold)
		if category == domain.CategoryNone {
			continue
		}
		records = append(records, domain.FailureRecord{
			QueryID:  o.Query.ID,
			Category: category,
			Result:   o.Result,
			Truth:    o.Query,
		})
	}
	return records
}

// Classify assigns one category to an outcome. driftThreshold is the
// minimum top-1 score at which a top-1 miss counts as semantic drift.
func (a *Analyzer) Classify(o domain.QueryOutcome, driftThreshold float64) domain.FailureCategory {
	// A query with no labeled relevant chunks cannot fail.
	if o.EmptyTruth || len(o.Query.RelevantIDs) == 0 {
		return domain.CategoryNone
	}

	truth := o.Query.RelevantSet()
	candidates := o.Result.Candidates

	firstRelevant := 0
	found := 0
	for _, c := range candidates {
		if _, ok := truth[c.ChunkID]; ok {
			found++
			if firstRelevant == 0 {
				firstRelevant = c.Rank
			}
		}
	}

	if found == 0 {
		return domain.CategoryRetrievalMiss
	}

	if len(candidates) > 0 {
		top := candidates[0]
		_, topRelevant := truth[top.ChunkID]
		if !topRelevant && top.Score >= driftThreshold {
			return domain.CategorySemanticDrift
		}
	}

	if firstRelevant > a.cfg.RankCutoff {
		return domain.CategoryInsufficientContext
	}

	// Relevant chunks ranked well, but the truth itself names chunks
	// from several documents. A signal about the query, not the
	// pipeline.
	if a.truthSpansDocs(o.Query) {
		return domain.CategoryAmbiguousQuery
	}

	return domain.CategoryNone
}

// truthSpansDocs reports whether the relevant set covers more than one
// source document. Unknown chunk IDs are ignored.
func (a *Analyzer) truthSpansDocs(query domain.GroundTruthQuery) bool {
	docs := make(map[string]struct{})
	for _, id := range query.RelevantIDs {
		chunk, ok := a.lookup(id)
		if !ok {
			continue
		}
		docs[chunk.DocID] = struct{}{}
		if len(docs) > 1 {
			return true
		}
	}
	return false
}

// ScoreQuantile returns the q-quantile of the scores using the nearest
// rank method. An empty input returns a threshold no score can reach,
// so callers with no scores get no drift classifications.
func ScoreQuantile(scores []float64, q float64) float64 {
	if len(scores) == 0 {
		return math.MaxFloat64
	}
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)

	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}
