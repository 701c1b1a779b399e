package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"rageval/internal/domain"
)

var (
	bucketChunks = []byte("chunks")
	bucketMeta   = []byte("meta")

	keyDimension = []byte("dimension")
	keyBuiltAt   = []byte("built_at")
)

// Snapshot persists an indexed corpus (chunks plus their vectors) in
// BoltDB so evaluation runs can reload it without re-embedding.
// Writing a snapshot is an exclusive phase; evaluation only reads.
type Snapshot struct {
	db *bbolt.DB
}

// Open opens (creating if needed) a snapshot file.
func Open(path string) (*Snapshot, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketChunks); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Snapshot{db: db}, nil
}

// Replace overwrites the stored corpus with the given chunks. All chunk
// vectors must share one dimension; the check mirrors index build so a
// bad snapshot is caught at write time, not at evaluation time.
func (s *Snapshot) Replace(chunks []domain.Chunk) error {
	dim := -1
	for _, c := range chunks {
		if dim == -1 {
			dim = len(c.Vector)
		}
		if len(c.Vector) != dim {
			return &domain.DimensionMismatchError{Expected: dim, Got: len(c.Vector), ChunkID: c.ID}
		}
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketChunks); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketChunks)
		if err != nil {
			return err
		}

		for _, chunk := range chunks {
			data, err := json.Marshal(chunk)
			if err != nil {
				return fmt.Errorf("failed to marshal chunk %s: %w", chunk.ID, err)
			}
			if err := b.Put([]byte(chunk.ID), data); err != nil {
				return err
			}
		}

		meta := tx.Bucket(bucketMeta)
		dimBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(dimBuf, uint64(dim))
		if err := meta.Put(keyDimension, dimBuf); err != nil {
			return err
		}
		return meta.Put(keyBuiltAt, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// Load reads every stored chunk, in key (chunk ID) order.
func (s *Snapshot) Load() ([]domain.Chunk, error) {
	var chunks []domain.Chunk

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var chunk domain.Chunk
			if err := json.Unmarshal(v, &chunk); err != nil {
				return fmt.Errorf("corrupt chunk entry %s: %w", string(k), err)
			}
			chunks = append(chunks, chunk)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

// Dimension returns the stored vector dimension, or 0 for an empty
// snapshot.
func (s *Snapshot) Dimension() (int, error) {
	var dim int
	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return nil
		}
		if v := meta.Get(keyDimension); len(v) == 8 {
			dim = int(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	return dim, err
}

// Count returns the number of stored chunks.
func (s *Snapshot) Count() (int, error) {
	var count int
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		if b == nil {
			return nil
		}
		count = b.Stats().KeyN
		return nil
	})
	return count, err
}

// Close closes the underlying database.
func (s *Snapshot) Close() error {
	return s.db.Close()
}
