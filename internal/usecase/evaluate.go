package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rageval/internal/domain"
)

// QueryRunner is the slice of the pipeline the harness needs. It is an
// interface so evaluation logic can be tested against scripted results.
type QueryRunner interface {
	Retrieve(ctx context.Context, query domain.Query) (domain.RetrievalResult, error)
	Label() string
}

// HarnessConfig controls one evaluation run.
type HarnessConfig struct {
	// RecallKs lists the cutoffs to report Recall@k at.
	RecallKs []int

	// Workers bounds concurrent queries. Zero means serial.
	Workers int

	// Repeats re-runs the whole query set and reports the spread of the
	// aggregates. Useful for nondeterministic rerankers; 0 and 1 both
	// mean a single run.
	Repeats int

	// Progress, when set, is called after every attempted query.
	Progress func(done, total int)
}

// Harness evaluates retrieval configurations against a labeled query
// set using Recall@k and MRR.
type Harness struct {
	cfg    HarnessConfig
	logger *zap.Logger
}

func NewHarness(cfg HarnessConfig, logger *zap.Logger) (*Harness, error) {
	if len(cfg.RecallKs) == 0 {
		return nil, fmt.Errorf("at least one recall cutoff is required")
	}
	for _, k := range cfg.RecallKs {
		if k <= 0 {
			return nil, fmt.Errorf("recall cutoff must be positive, got %d", k)
		}
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harness{cfg: cfg, logger: logger}, nil
}

// Evaluate runs every query through the runner and aggregates metrics.
// A failing query stays in the denominator with zero contribution; the
// returned outcomes record each failure's error text. Cancellation via
// ctx stops launching new queries and marks the report Incomplete.
//
// With Repeats > 1 the whole set is run repeatedly: the report carries
// the mean of each aggregate plus its max-min spread, and the returned
// outcomes are those of the first run.
func (h *Harness) Evaluate(ctx context.Context, runner QueryRunner, queries []domain.GroundTruthQuery) (domain.MetricReport, []domain.QueryOutcome, error) {
	runs := h.cfg.Repeats
	if runs < 1 {
		runs = 1
	}

	reports := make([]domain.MetricReport, 0, runs)
	var firstOutcomes []domain.QueryOutcome

	for run := 0; run < runs; run++ {
		report, outcomes, err := h.evaluateOnce(ctx, runner, queries)
		if err != nil {
			return domain.MetricReport{}, nil, err
		}
		reports = append(reports, report)
		if run == 0 {
			firstOutcomes = outcomes
		}
		if report.Incomplete {
			break
		}
	}

	if len(reports) == 1 {
		return reports[0], firstOutcomes, nil
	}

	merged := h.mergeRuns(reports)
	return merged, firstOutcomes, nil
}

func (h *Harness) evaluateOnce(ctx context.Context, runner QueryRunner, queries []domain.GroundTruthQuery) (domain.MetricReport, []domain.QueryOutcome, error) {
	outcomes := make([]domain.QueryOutcome, len(queries))
	attempted := make([]bool, len(queries))
	var done atomic.Int64
	var progressMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	workers := h.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, query := range queries {
		if gctx.Err() != nil {
			break
		}
		i, query := i, query
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			outcome := h.evaluateQuery(gctx, runner, query)
			if outcome.Err != nil && errors.Is(outcome.Err, context.Canceled) {
				// Aborted mid-flight by cancellation, not a real failure.
				return nil
			}
			attempted[i] = true
			outcomes[i] = outcome
			n := done.Add(1)
			if h.cfg.Progress != nil {
				progressMu.Lock()
				h.cfg.Progress(int(n), len(queries))
				progressMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.MetricReport{}, nil, err
	}

	// Keep only attempted queries, in input order.
	kept := outcomes[:0:0]
	for i := range outcomes {
		if attempted[i] {
			kept = append(kept, outcomes[i])
		}
	}

	report := h.aggregate(runner.Label(), kept)
	report.Incomplete = len(kept) < len(queries)
	if report.Incomplete {
		h.logger.Warn("evaluation cancelled before completion",
			zap.String("config", report.Config),
			zap.Int("attempted", len(kept)),
			zap.Int("total", len(queries)))
	}

	return report, kept, nil
}

func (h *Harness) evaluateQuery(ctx context.Context, runner QueryRunner, query domain.GroundTruthQuery) domain.QueryOutcome {
	outcome := domain.QueryOutcome{Query: query}

	result, err := runner.Retrieve(ctx, domain.Query{Text: query.Text})
	if err != nil {
		outcome.Err = err
		outcome.ErrText = err.Error()
		outcome.RecallAt = zeroRecall(h.cfg.RecallKs)
		h.logger.Warn("query failed",
			zap.String("qid", query.ID),
			zap.Error(err))
		return outcome
	}
	outcome.Result = result

	if len(query.RelevantIDs) == 0 {
		// Vacuous truth: recall is trivially perfect, but the query says
		// nothing about ranking quality.
		outcome.EmptyTruth = true
		outcome.RecallAt = make(map[int]float64, len(h.cfg.RecallKs))
		for _, k := range h.cfg.RecallKs {
			outcome.RecallAt[k] = 1.0
		}
		h.logger.Warn("query has empty relevant set",
			zap.String("qid", query.ID))
		return outcome
	}

	truth := query.RelevantSet()
	outcome.RecallAt = make(map[int]float64, len(h.cfg.RecallKs))
	for _, k := range h.cfg.RecallKs {
		outcome.RecallAt[k] = recallAtK(result.Candidates, truth, k)
	}
	outcome.ReciprocalRank = reciprocalRank(result.Candidates, truth)

	return outcome
}

// aggregate folds per-query outcomes into a report, iterating in query
// order so the same outcomes always produce the same report.
func (h *Harness) aggregate(label string, outcomes []domain.QueryOutcome) domain.MetricReport {
	report := domain.MetricReport{
		Config:   label,
		Queries:  len(outcomes),
		RecallAt: zeroRecall(h.cfg.RecallKs),
	}
	if len(outcomes) == 0 {
		return report
	}

	for _, o := range outcomes {
		if o.Err != nil {
			report.Failed++
			continue
		}
		if o.EmptyTruth {
			report.EmptyTruth++
		}
		for _, k := range h.cfg.RecallKs {
			report.RecallAt[k] += o.RecallAt[k]
		}
		report.MRR += o.ReciprocalRank
	}

	n := float64(len(outcomes))
	for _, k := range h.cfg.RecallKs {
		report.RecallAt[k] /= n
	}
	report.MRR /= n

	return report
}

// mergeRuns averages repeated runs and records the max-min spread of
// each aggregate.
func (h *Harness) mergeRuns(reports []domain.MetricReport) domain.MetricReport {
	merged := reports[0]
	merged.Runs = len(reports)
	merged.RecallAt = zeroRecall(h.cfg.RecallKs)
	merged.RecallAtSpread = zeroRecall(h.cfg.RecallKs)
	merged.MRR = 0

	minMRR, maxMRR := reports[0].MRR, reports[0].MRR
	minRecall := make(map[int]float64, len(h.cfg.RecallKs))
	maxRecall := make(map[int]float64, len(h.cfg.RecallKs))
	for _, k := range h.cfg.RecallKs {
		minRecall[k] = reports[0].RecallAt[k]
		maxRecall[k] = reports[0].RecallAt[k]
	}

	for _, r := range reports {
		merged.MRR += r.MRR
		if r.MRR < minMRR {
			minMRR = r.MRR
		}
		if r.MRR > maxMRR {
			maxMRR = r.MRR
		}
		for _, k := range h.cfg.RecallKs {
			merged.RecallAt[k] += r.RecallAt[k]
			if r.RecallAt[k] < minRecall[k] {
				minRecall[k] = r.RecallAt[k]
			}
			if r.RecallAt[k] > maxRecall[k] {
				maxRecall[k] = r.RecallAt[k]
			}
		}
	}

	n := float64(len(reports))
	merged.MRR /= n
	merged.MRRSpread = maxMRR - minMRR
	for _, k := range h.cfg.RecallKs {
		merged.RecallAt[k] /= n
		merged.RecallAtSpread[k] = maxRecall[k] - minRecall[k]
	}

	return merged
}

// Compare evaluates every runner against the same query set and
// collects the reports. Runners are evaluated in order; a cancelled
// context leaves later configurations unreported.
func (h *Harness) Compare(ctx context.Context, runners []QueryRunner, queries []domain.GroundTruthQuery) (domain.Comparison, map[string][]domain.QueryOutcome, error) {
	var comparison domain.Comparison
	outcomesByConfig := make(map[string][]domain.QueryOutcome, len(runners))

	for _, runner := range runners {
		if _, dup := outcomesByConfig[runner.Label()]; dup {
			return domain.Comparison{}, nil, fmt.Errorf("duplicate configuration label: %s", runner.Label())
		}

		report, outcomes, err := h.Evaluate(ctx, runner, queries)
		if err != nil {
			return domain.Comparison{}, nil, fmt.Errorf("evaluating %s: %w", runner.Label(), err)
		}
		comparison.Add(report)
		outcomesByConfig[runner.Label()] = outcomes

		if ctx.Err() != nil {
			break
		}
	}

	return comparison, outcomesByConfig, nil
}

// recallAtK is the fraction of the relevant set found in the top k
// candidates.
func recallAtK(candidates []domain.ScoredCandidate, truth map[string]struct{}, k int) float64 {
	if k > len(candidates) {
		k = len(candidates)
	}
	found := 0
	for _, c := range candidates[:k] {
		if _, ok := truth[c.ChunkID]; ok {
			found++
		}
	}
	return float64(found) / float64(len(truth))
}

// reciprocalRank is 1/rank of the first relevant candidate, zero when
// no relevant candidate was retrieved.
func reciprocalRank(candidates []domain.ScoredCandidate, truth map[string]struct{}) float64 {
	for _, c := range candidates {
		if _, ok := truth[c.ChunkID]; ok {
			return 1.0 / float64(c.Rank)
		}
	}
	return 0
}

func zeroRecall(ks []int) map[int]float64 {
	m := make(map[int]float64, len(ks))
	for _, k := range ks {
		m[k] = 0
	}
	return m
}
