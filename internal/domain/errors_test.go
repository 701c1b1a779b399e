package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestEmbeddingErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("retrieve failed: %w", &EmbeddingError{Err: cause})

	var embErr *EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatal("expected errors.As to find EmbeddingError")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("status 500")
	err := fmt.Errorf("rerank failed: %w", &ProviderError{Provider: "cross_encoder", Err: cause})

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatal("expected errors.As to find ProviderError")
	}
	if provErr.Provider != "cross_encoder" {
		t.Errorf("expected provider cross_encoder, got %s", provErr.Provider)
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestDimensionMismatchErrorMessage(t *testing.T) {
	err := &DimensionMismatchError{Expected: 4, Got: 3, ChunkID: "c2"}
	want := "vector dimension mismatch: expected 4, got 3 (chunk c2)"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestProviderTimeoutErrorMessage(t *testing.T) {
	err := &ProviderTimeoutError{Provider: "llm_judge", Elapsed: 2 * time.Second}
	if err.Error() != "provider llm_judge timed out after 2s" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
