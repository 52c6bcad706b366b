// Package retriever finds the chunks most similar to a question.
package retriever

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// DefaultTopK is used when neither the caller nor the config sets k.
const DefaultTopK = 3

// Config holds configuration for the Retriever.
type Config struct {
	// TopK is the number of chunks returned when the caller passes k <= 0.
	TopK int

	// MinScore drops results with a lower similarity. Zero disables the floor.
	MinScore float64
}

// Retriever embeds questions with the same embedder the index was built
// with and asks the index for the nearest chunks.
type Retriever struct {
	embedder domain.Embedder
	topK     int
	minScore float64
	logger   *zap.Logger
}

// New creates a Retriever.
func New(c Config, embedder domain.Embedder, logger *zap.Logger) *Retriever {
	topK := c.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{
		embedder: embedder,
		topK:     topK,
		minScore: c.MinScore,
		logger:   logger,
	}
}

// Search returns up to k chunks of idx ordered by descending similarity to
// query. An empty index, a query without content terms, or nothing above
// the score floor all yield an empty result and no error.
func (r *Retriever) Search(ctx context.Context, idx vectorstore.Index, query string, k int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyInput
	}
	if k <= 0 {
		k = r.topK
	}
	if idx.Len() == 0 {
		return []domain.SearchResult{}, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, domain.UpstreamError(err, domain.ErrEmbeddingService)
	}
	if vectorstore.IsZero(vec) {
		r.logger.Debug("query has no content terms", zap.String("query", query))
		return []domain.SearchResult{}, nil
	}

	results, err := idx.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SearchResult, 0, len(results))
	for _, res := range results {
		if r.minScore > 0 && res.Score < r.minScore {
			continue
		}
		out = append(out, res)
	}

	r.logger.Debug("retrieved chunks",
		zap.Int("k", k),
		zap.Int("hits", len(results)),
		zap.Int("kept", len(out)),
	)
	return out, nil
}
