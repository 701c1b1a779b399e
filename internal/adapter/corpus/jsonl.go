// Package corpus loads pre-chunked corpora and labeled query sets from
// JSONL files. Chunking itself belongs to the ingestion collaborator;
// this package only consumes its output.
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"rageval/internal/domain"
)

// maxLineBytes caps a single JSONL line. Chunk texts plus a
// high-dimension vector can exceed bufio's default.
const maxLineBytes = 16 * 1024 * 1024

// LoadChunks reads a chunk corpus from a JSONL file, one chunk object
// per line. Blank lines are skipped. Duplicate IDs are an error: the
// loader is the last place a broken corpus is cheap to detect.
func LoadChunks(path string) ([]domain.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer f.Close()

	var chunks []domain.Chunk
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk domain.Chunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("%s:%d: invalid chunk: %w", path, lineNo, err)
		}
		if chunk.ID == "" {
			return nil, fmt.Errorf("%s:%d: chunk missing id", path, lineNo)
		}
		if _, dup := seen[chunk.ID]; dup {
			return nil, fmt.Errorf("%s:%d: duplicate chunk id %s", path, lineNo, chunk.ID)
		}
		seen[chunk.ID] = struct{}{}
		chunks = append(chunks, chunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}

	return chunks, nil
}

// LoadQuerySet reads labeled evaluation queries from a JSONL file, one
// {qid, query, relevant_chunk_ids} object per line.
func LoadQuerySet(path string) ([]domain.GroundTruthQuery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open query set: %w", err)
	}
	defer f.Close()

	var queries []domain.GroundTruthQuery
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var q domain.GroundTruthQuery
		if err := json.Unmarshal(line, &q); err != nil {
			return nil, fmt.Errorf("%s:%d: invalid query: %w", path, lineNo, err)
		}
		if q.ID == "" {
			return nil, fmt.Errorf("%s:%d: query missing qid", path, lineNo)
		}
		if q.Text == "" {
			return nil, fmt.Errorf("%s:%d: query %s missing text", path, lineNo, q.ID)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("%s:%d: duplicate qid %s", path, lineNo, q.ID)
		}
		seen[q.ID] = struct{}{}
		queries = append(queries, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query set: %w", err)
	}

	return queries, nil
}

// Source loads a corpus from every chunk file found under a root
// directory, matched by include/exclude globs.
type Source struct {
	root   string
	walker *Walker
}

// NewSource creates a corpus source over a directory tree.
func NewSource(root string, includes, excludes []string) *Source {
	if len(includes) == 0 {
		includes = []string{"**/*.chunks.jsonl"}
	}
	return &Source{
		root:   root,
		walker: NewWalker(includes, excludes),
	}
}

// Load merges the chunks of every matched file, in path order so two
// loads of the same tree agree.
func (s *Source) Load() ([]domain.Chunk, error) {
	files, err := s.walker.Walk(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to scan corpus dir: %w", err)
	}
	sort.Strings(files)

	var all []domain.Chunk
	seen := make(map[string]string)
	for _, file := range files {
		chunks, err := LoadChunks(file)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			if prev, dup := seen[c.ID]; dup {
				return nil, fmt.Errorf("chunk id %s in both %s and %s", c.ID, prev, file)
			}
			seen[c.ID] = file
		}
		all = append(all, chunks...)
	}

	return all, nil
}
