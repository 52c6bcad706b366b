// Package chromem provides an index backend on the embedded chromem-go vector database.
package chromem

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

const (
	collectionName = "chunks"
	dbDir          = "chromem"
)

// Config holds configuration for the chromem backend.
type Config struct {
	// Root is the directory holding index generations.
	Root string

	// Compress enables gzip compression of persisted documents.
	Compress bool
}

// Backend persists each build as a separate chromem-go database inside its
// own generation directory.
type Backend struct {
	gens     *vectorstore.Generations
	compress bool
	logger   *zap.Logger
}

// NewBackend creates a chromem backend rooted at c.Root.
func NewBackend(c Config, logger *zap.Logger) (*Backend, error) {
	if c.Root == "" {
		return nil, fmt.Errorf("chromem root directory is required")
	}
	return &Backend{gens: vectorstore.NewGenerations(c.Root), compress: c.Compress, logger: logger}, nil
}

// Name returns the identifier of this backend.
func (b *Backend) Name() string { return "chromem" }

// Publish writes the snapshot into a staged generation and then points
// CURRENT at it.
func (b *Backend) Publish(ctx context.Context, snap vectorstore.Snapshot) error {
	id := snap.Manifest.BuildID
	dir, err := b.gens.Stage(id)
	if err != nil {
		return err
	}

	if err := b.write(ctx, dir, snap); err != nil {
		b.gens.Discard(id)
		return err
	}
	if err := b.gens.Publish(snap.Manifest); err != nil {
		b.gens.Discard(id)
		return err
	}
	b.logger.Debug("chromem generation published",
		zap.String("build_id", id),
		zap.Int("count", len(snap.Chunks)),
	)
	return nil
}

func (b *Backend) write(ctx context.Context, dir string, snap vectorstore.Snapshot) error {
	db, err := chromem.NewPersistentDB(filepath.Join(dir, dbDir), b.compress)
	if err != nil {
		return fmt.Errorf("creating chromem db: %w", err)
	}
	col, err := db.GetOrCreateCollection(collectionName, map[string]string{"hnsw:space": "cosine"}, nil)
	if err != nil {
		return fmt.Errorf("creating chromem collection: %w", err)
	}

	ids := make([]string, len(snap.Chunks))
	metadatas := make([]map[string]string, len(snap.Chunks))
	contents := make([]string, len(snap.Chunks))
	for i, c := range snap.Chunks {
		ids[i] = strconv.Itoa(c.Ordinal)
		metadatas[i] = map[string]string{
			"source":  c.Source,
			"index":   strconv.Itoa(c.Index),
			"ordinal": strconv.Itoa(c.Ordinal),
		}
		contents[i] = c.Text
	}
	if err := col.Add(ctx, ids, snap.Vectors, metadatas, contents); err != nil {
		return fmt.Errorf("adding chunks to chromem: %w", err)
	}
	return nil
}

// Open loads the current generation into memory.
func (b *Backend) Open(_ context.Context) (vectorstore.Index, error) {
	dir, m, err := b.gens.Current()
	if err != nil {
		return nil, err
	}
	db, err := chromem.NewPersistentDB(filepath.Join(dir, dbDir), b.compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem db: %w", err)
	}
	col := db.GetCollection(collectionName, nil)
	if col == nil {
		return nil, fmt.Errorf("chromem generation %s has no %q collection", m.BuildID, collectionName)
	}
	return &Index{col: col, manifest: m}, nil
}

// Index is a loaded chromem generation.
type Index struct {
	col      *chromem.Collection
	manifest vectorstore.Manifest
}

// Search queries the collection. chromem rejects n above the document
// count and picks arbitrarily among equal similarities, so ties at the k-th
// place are resolved by TopK.
func (i *Index) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	return vectorstore.TopK(ctx, k, i.col.Count(), func(ctx context.Context, n int) ([]domain.SearchResult, error) {
		res, err := i.col.QueryEmbedding(ctx, vector, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("querying chromem: %w", err)
		}
		out := make([]domain.SearchResult, 0, len(res))
		for _, r := range res {
			chunk := domain.Chunk{Text: r.Content, Source: r.Metadata["source"]}
			chunk.Index, _ = strconv.Atoi(r.Metadata["index"])
			chunk.Ordinal, _ = strconv.Atoi(r.Metadata["ordinal"])
			score := float64(r.Similarity)
			if math.IsNaN(score) {
				// zero vectors normalise to NaN
				score = 0
			}
			out = append(out, domain.SearchResult{Chunk: chunk, Score: score})
		}
		return out, nil
	})
}

// Len returns the number of indexed chunks.
func (i *Index) Len() int { return i.col.Count() }

// Manifest describes the generation.
func (i *Index) Manifest() vectorstore.Manifest { return i.manifest }

// Close is a no-op; chromem keeps no open files between writes.
func (i *Index) Close() error { return nil }
