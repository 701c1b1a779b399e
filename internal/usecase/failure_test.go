package usecase

import (
	"fmt"
	"testing"

	"rageval/internal/domain"
)

func testLookup() ChunkLookup {
	chunks := map[string]domain.Chunk{
		"chunk_1": {ID: "chunk_1", DocID: "doc_a"},
		"chunk_2": {ID: "chunk_2", DocID: "doc_a"},
		"chunk_3": {ID: "chunk_3", DocID: "doc_b"},
		"chunk_7": {ID: "chunk_7", DocID: "doc_c"},
	}
	return func(id string) (domain.Chunk, bool) {
		c, ok := chunks[id]
		return c, ok
	}
}

func newTestAnalyzer(t *testing.T, cfg AnalyzerConfig) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(cfg, testLookup())
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func outcomeWith(qid string, relevant []string, retrieved []string, scores []float64) domain.QueryOutcome {
	candidates := make([]domain.ScoredCandidate, len(retrieved))
	for i, id := range retrieved {
		score := 0.5
		if i < len(scores) {
			score = scores[i]
		}
		candidates[i] = domain.ScoredCandidate{ChunkID: id, Score: score, Rank: i + 1}
	}
	return domain.QueryOutcome{
		Query:  domain.GroundTruthQuery{ID: qid, Text: qid, RelevantIDs: relevant},
		Result: domain.RetrievalResult{Candidates: candidates},
	}
}

func TestClassifyRetrievalMiss(t *testing.T) {
	a := newTestAnalyzer(t, AnalyzerConfig{})

	// chunk_7 is relevant but nowhere in the result.
	o := outcomeWith("q1", []string{"chunk_7"}, []string{"chunk_1", "chunk_2", "chunk_3"}, nil)
	if got := a.Classify(o, 0.9); got != domain.CategoryRetrievalMiss {
		t.Errorf("expected retrieval_miss, got %s", got)
	}
}

func TestClassifySemanticDrift(t *testing.T) {
	a := newTestAnalyzer(t, AnalyzerConfig{})

	// Relevant chunk retrieved at rank 2, but an irrelevant top-1 scored
	// above the drift threshold.
	o := outcomeWith("q1", []string{"chunk_2"}, []string{"chunk_1", "chunk_2"}, []float64{0.95, 0.60})
	if got := a.Classify(o, 0.9); got != domain.CategorySemanticDrift {
		t.Errorf("expected semantic_drift, got %s", got)
	}

	// Same shape, but the top-1 score is below the threshold: rank 2 is
	// within the cutoff, so this is not a failure.
	o = outcomeWith("q2", []string{"chunk_2"}, []string{"chunk_1", "chunk_2"}, []float64{0.50, 0.45})
	if got := a.Classify(o, 0.9); got != domain.CategoryNone {
		t.Errorf("expected none, got %s", got)
	}
}

func TestClassifyInsufficientContext(t *testing.T) {
	a := newTestAnalyzer(t, AnalyzerConfig{RankCutoff: 3})

	// First relevant hit at rank 4, past the cutoff.
	o := outcomeWith("q1", []string{"chunk_7"},
		[]string{"chunk_1", "chunk_2", "chunk_3", "chunk_7"},
		[]float64{0.4, 0.4, 0.4, 0.3})
	if got := a.Classify(o, 0.9); got != domain.CategoryInsufficientContext {
		t.Errorf("expected insufficient_context, got %s", got)
	}
}

func TestClassifyAmbiguousQuery(t *testing.T) {
	a := newTestAnalyzer(t, AnalyzerConfig{})

	// Truth spans doc_a and doc_b; only the doc_a chunk was retrieved.
	o := outcomeWith("q1", []string{"chunk_1", "chunk_3"}, []string{"chunk_1", "chunk_2"}, []float64{0.5, 0.4})
	if got := a.Classify(o, 0.9); got != domain.CategoryAmbiguousQuery {
		t.Errorf("expected ambiguous_query, got %s", got)
	}

	// Same miss pattern within a single document is not ambiguity.
	o = outcomeWith("q2", []string{"chunk_1", "chunk_2"}, []string{"chunk_1", "chunk_3"}, []float64{0.5, 0.4})
	if got := a.Classify(o, 0.9); got != domain.CategoryNone {
		t.Errorf("expected none, got %s", got)
	}
}

func TestClassifyPrecedence(t *testing.T) {
	a := newTestAnalyzer(t, AnalyzerConfig{RankCutoff: 2})

	// Qualifies as drift (irrelevant high-scoring top-1) AND
	// insufficient context (first relevant at rank 3) AND ambiguity
	// (truth spans docs, incomplete recall). Drift wins.
	o := outcomeWith("q1", []string{"chunk_2", "chunk_3"},
		[]string{"chunk_1", "chunk_7", "chunk_2"},
		[]float64{0.95, 0.9, 0.2})
	if got := a.Classify(o, 0.9); got != domain.CategorySemanticDrift {
		t.Errorf("expected semantic_drift to take precedence, got %s", got)
	}
}

func TestClassifyEmptyTruthIsNone(t *testing.T) {
	a := newTestAnalyzer(t, AnalyzerConfig{})

	o := outcomeWith("q1", nil, []string{"chunk_1"}, []float64{0.99})
	o.EmptyTruth = true
	if got := a.Classify(o, 0.5); got != domain.CategoryNone {
		t.Errorf("expected none for empty truth, got %s", got)
	}
}

func TestClassifyFailedQueryIsMiss(t *testing.T) {
	a := newTestAnalyzer(t, AnalyzerConfig{})

	o := domain.QueryOutcome{
		Query: domain.GroundTruthQuery{ID: "q1", RelevantIDs: []string{"chunk_1"}},
		Err:   fmt.Errorf("provider down"),
	}
	if got := a.Classify(o, 0.9); got != domain.CategoryRetrievalMiss {
		t.Errorf("expected retrieval_miss for failed query, got %s", got)
	}
}

func TestAnalyzeCollectsFailuresOnly(t *testing.T) {
	a := newTestAnalyzer(t, AnalyzerConfig{DriftQuantile: 0.75})

	outcomes := []domain.QueryOutcome{
		outcomeWith("ok", []string{"chunk_1"}, []string{"chunk_1"}, []float64{0.9}),
		outcomeWith("miss", []string{"chunk_7"}, []string{"chunk_1"}, []float64{0.8}),
	}

	records := a.Analyze(outcomes)
	if len(records) != 1 {
		t.Fatalf("expected 1 failure record, got %d", len(records))
	}
	if records[0].QueryID != "miss" || records[0].Category != domain.CategoryRetrievalMiss {
		t.Errorf("unexpected record: %+v", records[0])
	}
}

func TestScoreQuantile(t *testing.T) {
	scores := []float64{0.1, 0.9, 0.5, 0.3, 0.7}

	cases := []struct {
		q    float64
		want float64
	}{
		{0, 0.1},
		{0.5, 0.5},
		{0.75, 0.7},
		{1, 0.9},
	}
	for _, tc := range cases {
		if got := ScoreQuantile(scores, tc.q); got != tc.want {
			t.Errorf("quantile %g: expected %g, got %g", tc.q, tc.want, got)
		}
	}

	// No observed scores means nothing can qualify as drift.
	if got := ScoreQuantile(nil, 0.75); got < 1e300 {
		t.Errorf("expected unreachable threshold for empty input, got %g", got)
	}
}

func TestNewAnalyzerRejectsBadConfig(t *testing.T) {
	if _, err := NewAnalyzer(AnalyzerConfig{DriftQuantile: 1.5}, testLookup()); err == nil {
		t.Error("expected error for quantile above 1")
	}
	if _, err := NewAnalyzer(AnalyzerConfig{}, nil); err == nil {
		t.Error("expected error for nil lookup")
	}
}
