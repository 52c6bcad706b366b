// Package gemini implements domain.Embedder with the Gemini embedding API.
package gemini

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"docqa/internal/domain"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-004"

// maxBatch is the per-request limit of BatchEmbedContents.
const maxBatch = 100

// Embedder turns text into Gemini embedding vectors. EmbedBatch embeds
// documents and Embed embeds queries, using the matching retrieval task types.
type Embedder struct {
	client    *genai.Client
	docs      *genai.EmbeddingModel
	queries   *genai.EmbeddingModel
	name      string
	dimension atomic.Int64
}

// NewEmbedder creates a Gemini embedder authenticated with apiKey.
func NewEmbedder(ctx context.Context, apiKey, model string) (*Embedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is empty")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	docs := client.EmbeddingModel(model)
	docs.TaskType = genai.TaskTypeRetrievalDocument
	queries := client.EmbeddingModel(model)
	queries.TaskType = genai.TaskTypeRetrievalQuery
	return &Embedder{client: client, docs: docs, queries: queries, name: model}, nil
}

// Name returns the identifier of the embedding model.
func (e *Embedder) Name() string { return "gemini:" + e.name }

// Dimension is known after the first successful call.
func (e *Embedder) Dimension() int { return int(e.dimension.Load()) }

// Embed converts a query into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.queries.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, domain.UpstreamError(err, domain.ErrEmbeddingService)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", domain.ErrEmbeddingService)
	}
	e.dimension.CompareAndSwap(0, int64(len(resp.Embedding.Values)))
	return resp.Embedding.Values, nil
}

// EmbedBatch embeds texts with BatchEmbedContents, splitting at the API limit.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		batch := e.docs.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}
		resp, err := e.docs.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, domain.UpstreamError(err, domain.ErrEmbeddingService)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("%w: expected %d embeddings, got %d", domain.ErrEmbeddingService, end-start, len(resp.Embeddings))
		}
		for _, emb := range resp.Embeddings {
			out = append(out, emb.Values)
		}
	}
	if len(out) > 0 {
		e.dimension.CompareAndSwap(0, int64(len(out[0])))
	}
	return out, nil
}

// Close releases the underlying client.
func (e *Embedder) Close() error {
	return e.client.Close()
}
