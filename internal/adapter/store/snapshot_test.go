package store

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"rageval/internal/domain"
)

func openTestSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openTestSnapshot(t)

	chunks := []domain.Chunk{
		{ID: "a1", DocID: "doc1", Text: "alpha", Vector: []float32{1, 0}, HeaderPath: "Intro"},
		{ID: "b2", DocID: "doc2", Text: "beta", Vector: []float32{0, 1}, StartOffset: 10, EndOffset: 42},
	}
	if err := s.Replace(chunks); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(chunks, loaded) {
		t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", chunks, loaded)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}

	dim, err := s.Dimension()
	if err != nil {
		t.Fatal(err)
	}
	if dim != 2 {
		t.Errorf("expected dimension 2, got %d", dim)
	}
}

func TestSnapshotReplaceOverwrites(t *testing.T) {
	s := openTestSnapshot(t)

	if err := s.Replace([]domain.Chunk{
		{ID: "old1", Vector: []float32{1}},
		{ID: "old2", Vector: []float32{2}},
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.Replace([]domain.Chunk{
		{ID: "new1", Vector: []float32{3, 4}},
	}); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || loaded[0].ID != "new1" {
		t.Errorf("expected only new1 after replace, got %+v", loaded)
	}
}

func TestSnapshotRejectsMixedDimensions(t *testing.T) {
	s := openTestSnapshot(t)

	err := s.Replace([]domain.Chunk{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{1, 0, 0}},
	})

	var dimErr *domain.DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
}

func TestSnapshotEmpty(t *testing.T) {
	s := openTestSnapshot(t)

	loaded, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty snapshot, got %d chunks", len(loaded))
	}

	count, err := s.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}
}
