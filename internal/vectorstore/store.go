package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docqa/internal/domain"
)

// DefaultBatchSize is the number of chunks embedded per request.
const DefaultBatchSize = 32

// Config holds configuration for the Store.
type Config struct {
	// BatchSize is the number of chunks sent to the embedder per call.
	// Defaults to DefaultBatchSize if zero.
	BatchSize int
}

// Store builds, publishes and loads the index. Builds are serialised; loads
// and searches run concurrently with a build and observe either the
// previous generation or the new one.
type Store struct {
	backend   Backend
	embedder  domain.Embedder
	batchSize int
	logger    *zap.Logger

	buildMu sync.Mutex

	mu      sync.RWMutex
	current Index
	retired []Index
}

// NewStore creates a Store. The embedder should already carry its call
// deadline (see embedding.WithTimeout).
func NewStore(c Config, backend Backend, embedder domain.Embedder, logger *zap.Logger) *Store {
	batch := c.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Store{
		backend:   backend,
		embedder:  embedder,
		batchSize: batch,
		logger:    logger,
	}
}

// Build embeds every chunk and publishes a fresh index that replaces the
// current one wholesale. On any error the previous index stays published.
// Once published the new index is what later loads see, even if opening it
// right away fails.
func (s *Store) Build(ctx context.Context, chunks []domain.Chunk) (Manifest, error) {
	if len(chunks) == 0 {
		return Manifest{}, domain.ErrEmptyChunkSet
	}

	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	start := time.Now()
	owned := make([]domain.Chunk, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		c.Ordinal = i
		owned[i] = c
		texts[i] = c.Text
	}

	vectors := make([][]float32, 0, len(chunks))
	for lo := 0; lo < len(texts); lo += s.batchSize {
		hi := min(lo+s.batchSize, len(texts))
		batch, err := s.embedder.EmbedBatch(ctx, texts[lo:hi])
		if err != nil {
			return Manifest{}, domain.UpstreamError(err, domain.ErrEmbeddingService)
		}
		if len(batch) != hi-lo {
			return Manifest{}, fmt.Errorf("%w: expected %d vectors, got %d", domain.ErrEmbeddingService, hi-lo, len(batch))
		}
		vectors = append(vectors, batch...)
		s.logger.Debug("embedded chunk batch",
			zap.Int("from", lo),
			zap.Int("count", hi-lo),
		)
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return Manifest{}, fmt.Errorf("%w: vector %d has dimension %d, want %d", domain.ErrEmbeddingService, i, len(v), dim)
		}
	}

	m := Manifest{
		BuildID:   uuid.NewString(),
		Embedder:  s.embedder.Name(),
		Dimension: dim,
		Chunks:    len(owned),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.backend.Publish(ctx, Snapshot{Manifest: m, Chunks: owned, Vectors: vectors}); err != nil {
		return Manifest{}, fmt.Errorf("publishing index: %w", err)
	}

	// The build is durable once published. If it cannot be opened here the
	// stale handle is retired and the next Load opens it from the backend.
	idx, err := s.backend.Open(ctx)
	if err != nil {
		s.logger.Warn("opening published index, deferring to next load",
			zap.String("build_id", m.BuildID),
			zap.Error(err),
		)
		idx = nil
	}
	s.swap(idx)

	s.logger.Info("index published",
		zap.String("backend", s.backend.Name()),
		zap.String("build_id", m.BuildID),
		zap.Int("chunks", m.Chunks),
		zap.Int("dimension", dim),
		zap.Duration("took", time.Since(start)),
	)
	return m, nil
}

// Load returns the current index, opening it from the backend on first use.
// It fails with domain.ErrIndexNotFound if nothing was ever built and with
// domain.ErrEmbedderMismatch if the index was built by another embedder.
func (s *Store) Load(ctx context.Context) (Index, error) {
	s.mu.RLock()
	idx := s.current
	s.mu.RUnlock()
	if idx == nil {
		var err error
		if idx, err = s.open(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.checkEmbedder(idx.Manifest()); err != nil {
		return nil, err
	}
	return idx, nil
}

// Close releases every handle the store opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, idx := range append(s.retired, s.current) {
		if idx == nil {
			continue
		}
		if err := idx.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.current, s.retired = nil, nil
	return errors.Join(errs...)
}

func (s *Store) open(ctx context.Context) (Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return s.current, nil
	}
	idx, err := s.backend.Open(ctx)
	if err != nil {
		return nil, err
	}
	s.current = idx
	return idx, nil
}

// swap publishes idx in-process. A replaced handle may still serve a search
// that loaded it just before the swap, so it stays open until the next
// build replaces its successor. A nil idx leaves the store to reopen the
// backend on the next Load.
func (s *Store) swap(idx Index) {
	s.mu.Lock()
	old := s.retired
	s.retired = nil
	if s.current != nil {
		s.retired = append(s.retired, s.current)
	}
	s.current = idx
	s.mu.Unlock()

	for _, r := range old {
		if err := r.Close(); err != nil {
			s.logger.Warn("closing retired index", zap.Error(err))
		}
	}
}

func (s *Store) checkEmbedder(m Manifest) error {
	if m.Embedder != s.embedder.Name() {
		return fmt.Errorf("%w: index %s uses %q, configured embedder is %q",
			domain.ErrEmbedderMismatch, m.BuildID, m.Embedder, s.embedder.Name())
	}
	if d := s.embedder.Dimension(); d > 0 && m.Dimension != d {
		return fmt.Errorf("%w: index %s has dimension %d, embedder produces %d",
			domain.ErrEmbedderMismatch, m.BuildID, m.Dimension, d)
	}
	return nil
}
