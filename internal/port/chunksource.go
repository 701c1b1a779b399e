package port

import "rageval/internal/domain"

// ChunkSource yields pre-chunked corpus units from an ingestion
// collaborator. Chunk IDs are assumed unique and stable.
type ChunkSource interface {
	Load() ([]domain.Chunk, error)
}
