// Package embedding holds the embedder adapters and the deadline wrapper
// every external embedding call goes through.
package embedding

import (
	"context"
	"time"

	"docqa/internal/domain"
)

// timeoutEmbedder bounds every call to the wrapped embedder.
type timeoutEmbedder struct {
	next    domain.Embedder
	timeout time.Duration
}

// WithTimeout gives each call to e its own deadline. A call that hits it fails
// with domain.ErrUpstreamTimeout, any other failure with domain.ErrEmbeddingService.
func WithTimeout(e domain.Embedder, timeout time.Duration) domain.Embedder {
	if timeout <= 0 {
		return e
	}
	return &timeoutEmbedder{next: e, timeout: timeout}
}

func (t *timeoutEmbedder) Name() string   { return t.next.Name() }
func (t *timeoutEmbedder) Dimension() int { return t.next.Dimension() }

func (t *timeoutEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	v, err := t.next.Embed(ctx, text)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return v, nil
}

func (t *timeoutEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	vs, err := t.next.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return vs, nil
}

// classify also catches clients that swallow the context error into their own message.
func classify(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return domain.UpstreamError(context.DeadlineExceeded, domain.ErrEmbeddingService)
	}
	return domain.UpstreamError(err, domain.ErrEmbeddingService)
}
