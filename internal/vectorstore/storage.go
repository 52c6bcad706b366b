// Package vectorstore owns the searchable index: it builds it from chunks,
// publishes it atomically through a swappable backend, and hands out
// read-only handles for search.
package vectorstore

import (
	"context"
	"time"

	"docqa/internal/domain"
)

// Manifest describes one published index generation.
type Manifest struct {
	BuildID   string    `json:"build_id"`
	Embedder  string    `json:"embedder"`
	Dimension int       `json:"dimension"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is a complete index ready to be published. Vectors[i] embeds Chunks[i]
// and Chunks[i].Ordinal == i.
type Snapshot struct {
	Manifest Manifest
	Chunks   []domain.Chunk
	Vectors  [][]float32
}

// Index is a read-only handle on one published generation.
type Index interface {
	// Search returns up to k chunks by descending cosine similarity, ties
	// broken by chunk ordinal.
	Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error)
	Len() int
	Manifest() Manifest
	Close() error
}

// Backend is the nearest-neighbour engine behind the Store.
type Backend interface {
	Name() string
	// Publish writes snap to a staging location and then makes it current in
	// one atomic step. On error the previously published generation stays current.
	Publish(ctx context.Context, snap Snapshot) error
	// Open returns the current generation, or domain.ErrIndexNotFound.
	Open(ctx context.Context) (Index, error)
}
