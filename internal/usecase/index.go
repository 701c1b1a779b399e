package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"rageval/internal/adapter/simindex"
	"rageval/internal/adapter/store"
	"rageval/internal/port"
)

// IndexUseCase builds the similarity index from a chunk corpus and
// persists it as a snapshot.
type IndexUseCase struct {
	source   port.ChunkSource
	embedder port.Embedder
	snapshot *store.Snapshot
	logger   *zap.Logger
}

func NewIndexUseCase(source port.ChunkSource, embedder port.Embedder, snapshot *store.Snapshot, logger *zap.Logger) *IndexUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexUseCase{
		source:   source,
		embedder: embedder,
		snapshot: snapshot,
		logger:   logger,
	}
}

// IndexResult summarizes one indexing run.
type IndexResult struct {
	Chunks        int
	Embedded      int
	ProviderCalls int
	Dimension     int
}

// Index loads the corpus, embeds chunks that arrived without vectors,
// and replaces the snapshot. Progress, when non-nil, is called once per
// chunk as its vector becomes available.
func (u *IndexUseCase) Index(ctx context.Context, progress func(done, total int)) (*IndexResult, error) {
	chunks, err := u.source.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("corpus is empty")
	}

	result := &IndexResult{Chunks: len(chunks)}

	var missing []int
	done := 0
	for i, c := range chunks {
		if len(c.Vector) == 0 {
			missing = append(missing, i)
			continue
		}
		done++
		if progress != nil {
			progress(done, len(chunks))
		}
	}

	if len(missing) > 0 {
		if u.embedder == nil {
			return nil, fmt.Errorf("%d chunks have no vector and no embedder is configured", len(missing))
		}

		// Embed in corpus order so retries hit the same batches.
		const batchSize = 64
		for start := 0; start < len(missing); start += batchSize {
			end := start + batchSize
			if end > len(missing) {
				end = len(missing)
			}
			batch := missing[start:end]

			texts := make([]string, len(batch))
			for j, i := range batch {
				texts[j] = chunks[i].Text
			}

			vectors, err := u.embedder.Embed(ctx, texts)
			if err != nil {
				return nil, fmt.Errorf("failed to embed chunks: %w", err)
			}
			if len(vectors) != len(batch) {
				return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
			}
			result.ProviderCalls++

			for j, i := range batch {
				chunks[i].Vector = vectors[j]
				done++
				if progress != nil {
					progress(done, len(chunks))
				}
			}
		}
		result.Embedded = len(missing)
	}

	// Build validates dimensions and duplicate IDs before anything is
	// written, so a broken corpus never replaces a good snapshot.
	index, err := simindex.Build(chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}
	result.Dimension = index.Dimension()

	if u.snapshot != nil {
		if err := u.snapshot.Replace(chunks); err != nil {
			return nil, fmt.Errorf("failed to write snapshot: %w", err)
		}
	}

	u.logger.Info("index built",
		zap.Int("chunks", result.Chunks),
		zap.Int("embedded", result.Embedded),
		zap.Int("dimension", result.Dimension))

	return result, nil
}

// LoadIndex rebuilds the in-memory index from the snapshot.
func LoadIndex(snapshot *store.Snapshot) (*simindex.Index, error) {
	chunks, err := snapshot.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("snapshot is empty; run index first")
	}
	return simindex.Build(chunks)
}
