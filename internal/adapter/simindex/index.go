package simindex

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"rageval/internal/domain"
)

// Metric selects the similarity function used by a query.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricDot    Metric = "dot"
)

// ParseMetric validates a metric name from configuration.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricDot:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unknown similarity metric: %q", s)
	}
}

// parallelThreshold is the corpus size above which query scoring is
// split across goroutines. Below it the goroutine overhead dominates.
const parallelThreshold = 2048

// Index is a brute-force similarity index over a fixed chunk set.
// It is read-only after Build and safe for concurrent queries; rebuilds
// produce a new Index rather than mutating an existing one.
type Index struct {
	chunks []domain.Chunk // sorted by ascending chunk ID
	byID   map[string]int
	dim    int
}

// Build constructs an index over the given chunks. Every chunk vector
// must have the same length; the first chunk fixes the dimension.
func Build(chunks []domain.Chunk) (*Index, error) {
	ix := &Index{
		chunks: make([]domain.Chunk, len(chunks)),
		byID:   make(map[string]int, len(chunks)),
	}
	copy(ix.chunks, chunks)

	// Ascending ID order makes tie-breaking deterministic: a stable
	// sort by score over this slice keeps equal scores in ID order.
	sort.Slice(ix.chunks, func(i, j int) bool {
		return ix.chunks[i].ID < ix.chunks[j].ID
	})

	for i, c := range ix.chunks {
		if i == 0 {
			ix.dim = len(c.Vector)
		}
		if len(c.Vector) != ix.dim {
			return nil, &domain.DimensionMismatchError{Expected: ix.dim, Got: len(c.Vector), ChunkID: c.ID}
		}
		if _, dup := ix.byID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate chunk ID: %s", c.ID)
		}
		ix.byID[c.ID] = i
	}

	return ix, nil
}

// Query scores every stored chunk against the query vector and returns
// the k best candidates, scores descending, ties broken by ascending
// chunk ID. k above the corpus size clamps; k below one is an error.
func (ix *Index) Query(vector []float32, k int, metric Metric) ([]domain.ScoredCandidate, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(ix.chunks) == 0 {
		return nil, nil
	}
	if len(vector) != ix.dim {
		return nil, &domain.DimensionMismatchError{Expected: ix.dim, Got: len(vector)}
	}

	var sim func(a, b []float32) float64
	switch metric {
	case MetricCosine:
		sim = cosineSimilarity
	case MetricDot:
		sim = dotProduct
	default:
		return nil, fmt.Errorf("unknown similarity metric: %q", metric)
	}

	scores := ix.scoreAll(vector, sim)

	order := make([]int, len(ix.chunks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if k > len(order) {
		k = len(order)
	}

	results := make([]domain.ScoredCandidate, k)
	for rank := 0; rank < k; rank++ {
		i := order[rank]
		results[rank] = domain.ScoredCandidate{
			ChunkID: ix.chunks[i].ID,
			Score:   scores[i],
			Rank:    rank + 1,
		}
	}
	return results, nil
}

// scoreAll computes the similarity of the query against every chunk.
// Each worker writes a disjoint range of the output slice, so the
// result is independent of scheduling order.
func (ix *Index) scoreAll(vector []float32, sim func(a, b []float32) float64) []float64 {
	scores := make([]float64, len(ix.chunks))

	if len(ix.chunks) < parallelThreshold {
		for i, c := range ix.chunks {
			scores[i] = sim(vector, c.Vector)
		}
		return scores
	}

	workers := runtime.NumCPU()
	stride := (len(ix.chunks) + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < len(ix.chunks); start += stride {
		end := start + stride
		if end > len(ix.chunks) {
			end = len(ix.chunks)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				scores[i] = sim(vector, ix.chunks[i].Vector)
			}
		}(start, end)
	}
	wg.Wait()

	return scores
}

// Chunk looks up a stored chunk by ID.
func (ix *Index) Chunk(id string) (domain.Chunk, bool) {
	i, ok := ix.byID[id]
	if !ok {
		return domain.Chunk{}, false
	}
	return ix.chunks[i], true
}

// Vector looks up a stored chunk vector by ID.
func (ix *Index) Vector(id string) ([]float32, bool) {
	i, ok := ix.byID[id]
	if !ok {
		return nil, false
	}
	return ix.chunks[i].Vector, true
}

// Count returns the number of indexed chunks.
func (ix *Index) Count() int {
	return len(ix.chunks)
}

// Dimension returns the vector dimension the index was built with.
func (ix *Index) Dimension() int {
	return ix.dim
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// dotProduct calculates the inner product of two vectors.
func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
