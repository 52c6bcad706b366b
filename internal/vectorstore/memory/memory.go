package memory

import (
	"context"
	"errors"
	"sync"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// Storage is a process-local backend using brute-force cosine similarity.
// Publishing swaps a pointer, so nothing survives a restart.
type Storage struct {
	mu      sync.RWMutex
	current *Index
}

// NewStorage creates an empty in-memory backend.
func NewStorage() *Storage { return &Storage{} }

// Name returns the identifier of this backend.
func (s *Storage) Name() string { return "memory" }

// Publish copies the snapshot into a new immutable index and makes it current.
func (s *Storage) Publish(ctx context.Context, snap vectorstore.Snapshot) error {
	if len(snap.Chunks) != len(snap.Vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	for _, v := range snap.Vectors {
		if len(v) != snap.Manifest.Dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	idx := &Index{
		manifest: snap.Manifest,
		chunks:   append([]domain.Chunk(nil), snap.Chunks...),
		vectors:  append([][]float32(nil), snap.Vectors...),
	}
	s.mu.Lock()
	s.current = idx
	s.mu.Unlock()
	return nil
}

// Open returns the current index.
func (s *Storage) Open(_ context.Context) (vectorstore.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, domain.ErrIndexNotFound
	}
	return s.current, nil
}

// Index is an immutable in-memory generation.
type Index struct {
	manifest vectorstore.Manifest
	vectors  [][]float32
	chunks   []domain.Chunk
}

// Search scores every chunk against vector.
func (i *Index) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if k <= 0 || len(i.chunks) == 0 {
		return nil, nil
	}
	results := make([]domain.SearchResult, len(i.vectors))
	for j := range i.vectors {
		if j%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		results[j] = domain.SearchResult{Chunk: i.chunks[j], Score: vectorstore.Cosine(i.vectors[j], vector)}
	}
	return vectorstore.Rank(results, k), nil
}

// Len returns the number of indexed chunks.
func (i *Index) Len() int { return len(i.chunks) }

// Manifest describes the generation.
func (i *Index) Manifest() vectorstore.Manifest { return i.manifest }

// Close is a no-op.
func (i *Index) Close() error { return nil }
