package domain

import (
	"fmt"
	"time"
)

// DimensionMismatchError reports malformed index input or a query vector
// whose length disagrees with the indexed chunks. Fatal to the operation
// that produced it.
type DimensionMismatchError struct {
	Expected int
	Got      int
	ChunkID  string
}

func (e *DimensionMismatchError) Error() string {
	if e.ChunkID != "" {
		return fmt.Sprintf("vector dimension mismatch: expected %d, got %d (chunk %s)", e.Expected, e.Got, e.ChunkID)
	}
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// EmbeddingError wraps a failure of the embedding provider. Propagated
// per-call; never retried by this core.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// ProviderError wraps a failure of an external scoring provider,
// attributable to a single query/candidate call.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ProviderTimeoutError reports a provider call that exceeded its per-call
// timeout. Isolated to the one call that triggered it.
type ProviderTimeoutError struct {
	Provider string
	Elapsed  time.Duration
}

func (e *ProviderTimeoutError) Error() string {
	return fmt.Sprintf("provider %s timed out after %s", e.Provider, e.Elapsed)
}
