package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"rageval/internal/domain"
)

// scriptedRunner returns canned candidate lists by query text.
type scriptedRunner struct {
	label   string
	results map[string][]string
	fail    map[string]bool

	mu    sync.Mutex
	calls int
}

func (r *scriptedRunner) Retrieve(_ context.Context, query domain.Query) (domain.RetrievalResult, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	if r.fail[query.Text] {
		return domain.RetrievalResult{}, fmt.Errorf("provider unavailable")
	}

	ids := r.results[query.Text]
	candidates := make([]domain.ScoredCandidate, len(ids))
	for i, id := range ids {
		candidates[i] = domain.ScoredCandidate{
			ChunkID: id,
			Score:   1.0 - float64(i)*0.1,
			Rank:    i + 1,
		}
	}
	return domain.RetrievalResult{Query: query.Text, Candidates: candidates}, nil
}

func (r *scriptedRunner) Label() string {
	if r.label == "" {
		return "scripted"
	}
	return r.label
}

func newTestHarness(t *testing.T, cfg HarnessConfig) *Harness {
	t.Helper()
	h, err := NewHarness(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEvaluateRecallAndMRR(t *testing.T) {
	runner := &scriptedRunner{
		results: map[string][]string{
			"q one": {"c1", "c9", "c2"}, // both relevant in top 3, first at rank 1
			"q two": {"c9", "c8", "c3"}, // relevant only at rank 3
		},
	}
	queries := []domain.GroundTruthQuery{
		{ID: "q1", Text: "q one", RelevantIDs: []string{"c1", "c2"}},
		{ID: "q2", Text: "q two", RelevantIDs: []string{"c3"}},
	}

	h := newTestHarness(t, HarnessConfig{RecallKs: []int{1, 3}})
	report, outcomes, err := h.Evaluate(context.Background(), runner, queries)
	if err != nil {
		t.Fatal(err)
	}

	if report.Queries != 2 || report.Failed != 0 {
		t.Fatalf("unexpected counts: %+v", report)
	}

	// Recall@1: q1 finds 1 of 2 (0.5), q2 finds 0 of 1. Mean 0.25.
	if !almostEqual(report.RecallAt[1], 0.25) {
		t.Errorf("expected recall@1 0.25, got %g", report.RecallAt[1])
	}
	// Recall@3: q1 finds 2 of 2, q2 finds 1 of 1. Mean 1.0.
	if !almostEqual(report.RecallAt[3], 1.0) {
		t.Errorf("expected recall@3 1.0, got %g", report.RecallAt[3])
	}
	// MRR: q1 first relevant at rank 1, q2 at rank 3. Mean of 1 and 1/3.
	if !almostEqual(report.MRR, (1.0+1.0/3.0)/2) {
		t.Errorf("expected MRR %g, got %g", (1.0+1.0/3.0)/2, report.MRR)
	}

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if !almostEqual(outcomes[1].ReciprocalRank, 1.0/3.0) {
		t.Errorf("expected RR 1/3 for q2, got %g", outcomes[1].ReciprocalRank)
	}
}

func TestEvaluateRecallMonotonicInK(t *testing.T) {
	runner := &scriptedRunner{
		results: map[string][]string{
			"q": {"x", "c1", "y", "c2", "z"},
		},
	}
	queries := []domain.GroundTruthQuery{
		{ID: "q1", Text: "q", RelevantIDs: []string{"c1", "c2"}},
	}

	h := newTestHarness(t, HarnessConfig{RecallKs: []int{1, 2, 4, 5}})
	report, _, err := h.Evaluate(context.Background(), runner, queries)
	if err != nil {
		t.Fatal(err)
	}

	prev := -1.0
	for _, k := range []int{1, 2, 4, 5} {
		if report.RecallAt[k] < prev {
			t.Errorf("recall@%d = %g dropped below recall at smaller k (%g)", k, report.RecallAt[k], prev)
		}
		prev = report.RecallAt[k]
	}
}

func TestEvaluateFailedQueryStaysInDenominator(t *testing.T) {
	runner := &scriptedRunner{
		results: map[string][]string{"good": {"c1"}},
		fail:    map[string]bool{"bad": true},
	}
	queries := []domain.GroundTruthQuery{
		{ID: "q1", Text: "good", RelevantIDs: []string{"c1"}},
		{ID: "q2", Text: "bad", RelevantIDs: []string{"c2"}},
	}

	h := newTestHarness(t, HarnessConfig{RecallKs: []int{1}})
	report, outcomes, err := h.Evaluate(context.Background(), runner, queries)
	if err != nil {
		t.Fatal(err)
	}

	if report.Failed != 1 {
		t.Fatalf("expected 1 failed query, got %d", report.Failed)
	}
	// The failure halves the aggregates instead of disappearing.
	if !almostEqual(report.RecallAt[1], 0.5) {
		t.Errorf("expected recall@1 0.5, got %g", report.RecallAt[1])
	}
	if !almostEqual(report.MRR, 0.5) {
		t.Errorf("expected MRR 0.5, got %g", report.MRR)
	}

	var failed *domain.QueryOutcome
	for i := range outcomes {
		if outcomes[i].Err != nil {
			failed = &outcomes[i]
		}
	}
	if failed == nil || failed.ErrText == "" {
		t.Error("expected failed outcome with recorded error text")
	}
}

func TestEvaluateEmptyTruthIsVacuous(t *testing.T) {
	runner := &scriptedRunner{
		results: map[string][]string{"q": {"c1", "c2"}},
	}
	queries := []domain.GroundTruthQuery{
		{ID: "q1", Text: "q", RelevantIDs: nil},
	}

	h := newTestHarness(t, HarnessConfig{RecallKs: []int{1}})
	report, outcomes, err := h.Evaluate(context.Background(), runner, queries)
	if err != nil {
		t.Fatal(err)
	}

	if report.EmptyTruth != 1 {
		t.Errorf("expected 1 empty-truth query, got %d", report.EmptyTruth)
	}
	if !almostEqual(report.RecallAt[1], 1.0) {
		t.Errorf("expected vacuous recall 1.0, got %g", report.RecallAt[1])
	}
	if !almostEqual(report.MRR, 0) {
		t.Errorf("expected MRR 0 for empty truth, got %g", report.MRR)
	}
	if !outcomes[0].EmptyTruth {
		t.Error("expected outcome flagged as empty truth")
	}
}

func TestEvaluateDeterministicAcrossRuns(t *testing.T) {
	runner := &scriptedRunner{
		results: map[string][]string{
			"a": {"c1", "c2"},
			"b": {"c3"},
			"c": {"c9"},
		},
	}
	queries := []domain.GroundTruthQuery{
		{ID: "q1", Text: "a", RelevantIDs: []string{"c2"}},
		{ID: "q2", Text: "b", RelevantIDs: []string{"c3"}},
		{ID: "q3", Text: "c", RelevantIDs: []string{"c4"}},
	}

	h := newTestHarness(t, HarnessConfig{RecallKs: []int{1, 2}, Workers: 4})

	first, _, err := h.Evaluate(context.Background(), runner, queries)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		report, _, err := h.Evaluate(context.Background(), runner, queries)
		if err != nil {
			t.Fatal(err)
		}
		if report.MRR != first.MRR || report.RecallAt[1] != first.RecallAt[1] || report.RecallAt[2] != first.RecallAt[2] {
			t.Fatalf("run %d diverged: %+v vs %+v", i, report, first)
		}
	}
}

func TestEvaluateCancellationMarksIncomplete(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &scriptedRunner{results: map[string][]string{}}
	queries := []domain.GroundTruthQuery{
		{ID: "q1", Text: "a", RelevantIDs: []string{"c1"}},
		{ID: "q2", Text: "b", RelevantIDs: []string{"c2"}},
	}

	h := newTestHarness(t, HarnessConfig{RecallKs: []int{1}})
	report, _, err := h.Evaluate(ctx, runner, queries)
	if err != nil {
		t.Fatal(err)
	}

	if !report.Incomplete {
		t.Error("expected report marked incomplete after cancellation")
	}
	if report.Queries != 0 {
		t.Errorf("expected 0 attempted queries, got %d", report.Queries)
	}
}

func TestCompareKeysReportsByConfig(t *testing.T) {
	baseline := &scriptedRunner{
		label:   "cosine/k=5/none",
		results: map[string][]string{"q": {"c9", "c1"}},
	}
	reranked := &scriptedRunner{
		label:   "cosine/k=5/cross_encoder",
		results: map[string][]string{"q": {"c1", "c9"}},
	}
	queries := []domain.GroundTruthQuery{
		{ID: "q1", Text: "q", RelevantIDs: []string{"c1"}},
	}

	h := newTestHarness(t, HarnessConfig{RecallKs: []int{1}})
	comparison, outcomes, err := h.Compare(context.Background(), []QueryRunner{baseline, reranked}, queries)
	if err != nil {
		t.Fatal(err)
	}

	if len(comparison.Reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(comparison.Reports))
	}

	base, ok := comparison.ByConfig("cosine/k=5/none")
	if !ok {
		t.Fatal("baseline report missing")
	}
	rr, ok := comparison.ByConfig("cosine/k=5/cross_encoder")
	if !ok {
		t.Fatal("reranked report missing")
	}

	if !almostEqual(base.RecallAt[1], 0) || !almostEqual(rr.RecallAt[1], 1.0) {
		t.Errorf("expected rerank to lift recall@1 from 0 to 1, got %g and %g", base.RecallAt[1], rr.RecallAt[1])
	}
	if len(outcomes["cosine/k=5/none"]) != 1 {
		t.Error("expected outcomes recorded per config")
	}
}

func TestCompareRejectsDuplicateLabels(t *testing.T) {
	a := &scriptedRunner{label: "same"}
	b := &scriptedRunner{label: "same"}

	h := newTestHarness(t, HarnessConfig{RecallKs: []int{1}})
	if _, _, err := h.Compare(context.Background(), []QueryRunner{a, b}, nil); err == nil {
		t.Error("expected error for duplicate config labels")
	}
}

func TestEvaluateRepeatsReportSpread(t *testing.T) {
	runner := &scriptedRunner{
		results: map[string][]string{"q": {"c1"}},
	}
	queries := []domain.GroundTruthQuery{
		{ID: "q1", Text: "q", RelevantIDs: []string{"c1"}},
	}

	h := newTestHarness(t, HarnessConfig{RecallKs: []int{1}, Repeats: 3})
	report, _, err := h.Evaluate(context.Background(), runner, queries)
	if err != nil {
		t.Fatal(err)
	}

	if report.Runs != 3 {
		t.Errorf("expected 3 runs recorded, got %d", report.Runs)
	}
	// A deterministic runner has zero spread.
	if !almostEqual(report.MRRSpread, 0) {
		t.Errorf("expected zero MRR spread, got %g", report.MRRSpread)
	}
	if !almostEqual(report.MRR, 1.0) {
		t.Errorf("expected MRR 1.0, got %g", report.MRR)
	}
	if runner.calls != 3 {
		t.Errorf("expected the query set run 3 times, got %d calls", runner.calls)
	}
}

func TestNewHarnessRejectsBadConfig(t *testing.T) {
	if _, err := NewHarness(HarnessConfig{}, nil); err == nil {
		t.Error("expected error for missing recall cutoffs")
	}
	if _, err := NewHarness(HarnessConfig{RecallKs: []int{0}}, nil); err == nil {
		t.Error("expected error for non-positive cutoff")
	}
	if _, err := NewHarness(HarnessConfig{RecallKs: []int{5}, Workers: -1}, nil); err == nil {
		t.Error("expected error for negative workers")
	}
}
