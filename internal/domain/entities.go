package domain

import "time"

// Chunk is a retrievable unit of corpus text. Chunks are immutable after
// creation; the similarity index that holds them is the source of truth
// for chunk existence.
type Chunk struct {
	ID          string    `json:"id"`
	DocID       string    `json:"doc_id"`
	Text        string    `json:"text"`
	Vector      []float32 `json:"vector,omitempty"`
	HeaderPath  string    `json:"header_path,omitempty"`
	StartOffset int       `json:"start_offset,omitempty"`
	EndOffset   int       `json:"end_offset,omitempty"`
}

// Query is one retrieval request. Vector, when non-nil, is used as-is and
// the embedding provider is not called.
type Query struct {
	Text   string
	Vector []float32
}

// GroundTruthQuery is a labeled evaluation query. RelevantIDs is an
// unordered set of chunk IDs considered relevant.
type GroundTruthQuery struct {
	ID          string   `json:"qid"`
	Text        string   `json:"query"`
	RelevantIDs []string `json:"relevant_chunk_ids"`
}

// RelevantSet returns the relevant IDs as a set for membership tests.
func (q GroundTruthQuery) RelevantSet() map[string]struct{} {
	set := make(map[string]struct{}, len(q.RelevantIDs))
	for _, id := range q.RelevantIDs {
		set[id] = struct{}{}
	}
	return set
}

// ScoredCandidate is one ranked retrieval hit. Rank is 1-based.
type ScoredCandidate struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// RetrievalResult is the ordered output of one pipeline run plus its
// cost accounting. A fresh result is allocated per call; results are
// never shared across runs.
type RetrievalResult struct {
	TraceID        string            `json:"trace_id"`
	Query          string            `json:"query"`
	Candidates     []ScoredCandidate `json:"candidates"`
	Latency        time.Duration     `json:"latency_ns"`
	ProviderCalls  int               `json:"provider_calls"`
	RerankFailures int               `json:"rerank_failures"`
}

// MetricReport is the per-configuration aggregate over a query set.
// RecallAt and MRR are arithmetic means over every attempted query:
// failed queries contribute zero rather than shrinking the denominator.
type MetricReport struct {
	Config     string          `json:"config"`
	Queries    int             `json:"queries"`
	Failed     int             `json:"failed"`
	EmptyTruth int             `json:"empty_truth"`
	RecallAt   map[int]float64 `json:"recall_at"`
	MRR        float64         `json:"mrr"`

	// Incomplete marks a report whose run was cancelled before every
	// query was attempted; Queries then counts attempted queries only.
	Incomplete bool `json:"incomplete,omitempty"`

	// Runs and the spread fields are populated when a nondeterministic
	// configuration was evaluated more than once.
	Runs           int             `json:"runs,omitempty"`
	MRRSpread      float64         `json:"mrr_spread,omitempty"`
	RecallAtSpread map[int]float64 `json:"recall_at_spread,omitempty"`
}

// Comparison accumulates MetricReports across configurations, keyed by
// config label. It is passed through explicitly rather than kept as
// shared state.
type Comparison struct {
	Reports []MetricReport `json:"reports"`
}

// Add appends a report to the comparison.
func (c *Comparison) Add(report MetricReport) {
	c.Reports = append(c.Reports, report)
}

// ByConfig returns the report for the given config label.
func (c *Comparison) ByConfig(label string) (MetricReport, bool) {
	for _, r := range c.Reports {
		if r.Config == label {
			return r, true
		}
	}
	return MetricReport{}, false
}

// FailureCategory classifies an evaluated query's outcome.
type FailureCategory string

const (
	// CategoryRetrievalMiss: no relevant chunk anywhere in the result.
	CategoryRetrievalMiss FailureCategory = "retrieval_miss"
	// CategorySemanticDrift: the top-1 hit scored high yet is not relevant.
	CategorySemanticDrift FailureCategory = "semantic_drift"
	// CategoryInsufficientContext: relevant chunks present only below the
	// rank cutoff used by downstream consumption.
	CategoryInsufficientContext FailureCategory = "insufficient_context"
	// CategoryAmbiguousQuery: relevant chunks ranked well but the truth
	// set spans more than one source document.
	CategoryAmbiguousQuery FailureCategory = "ambiguous_query"
	// CategoryNone: none of the above; a success.
	CategoryNone FailureCategory = "none"
)

// FailureRecord ties a classified category to its evidence.
type FailureRecord struct {
	QueryID  string           `json:"qid"`
	Category FailureCategory  `json:"category"`
	Result   RetrievalResult  `json:"result"`
	Truth    GroundTruthQuery `json:"truth"`
}

// QueryOutcome is the per-query record the harness hands to the failure
// analyzer and to reporting.
type QueryOutcome struct {
	Query          GroundTruthQuery `json:"query"`
	Result         RetrievalResult  `json:"result"`
	Err            error            `json:"-"`
	ErrText        string           `json:"error,omitempty"`
	RecallAt       map[int]float64  `json:"recall_at"`
	ReciprocalRank float64          `json:"reciprocal_rank"`
	EmptyTruth     bool             `json:"empty_truth,omitempty"`
}
