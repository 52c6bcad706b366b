package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoExtractableText is returned when a batch of documents yields no text.
	ErrNoExtractableText = errors.New("no text was extracted from the documents")

	// ErrEmptyInput is returned when there is nothing to chunk.
	ErrEmptyInput = errors.New("empty input text")

	// ErrInvalidChunkParams is returned for a chunk size or overlap outside 0 <= overlap < size.
	ErrInvalidChunkParams = errors.New("invalid chunk parameters")

	// ErrEmptyChunkSet is returned when an index build receives no chunks.
	ErrEmptyChunkSet = errors.New("no chunks provided for index build")

	// ErrEmbeddingService is returned when the embedding service fails.
	ErrEmbeddingService = errors.New("embedding service failed")

	// ErrGenerationService is returned when the generation service fails.
	ErrGenerationService = errors.New("generation service failed")

	// ErrUpstreamTimeout is returned when an external service call exceeds its deadline.
	ErrUpstreamTimeout = errors.New("upstream service timed out")

	// ErrIndexNotFound is returned when no index has been built yet.
	ErrIndexNotFound = errors.New("index not found")

	// ErrEmbedderMismatch is returned when an index was built with a different embedding model.
	ErrEmbedderMismatch = errors.New("index was built with a different embedder")
)

// ExtractError reports a document that could not be read.
type ExtractError struct {
	Document string
	Err      error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("Error processing %s: %v", e.Document, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient upstream failure worth retrying.
// Input errors and a missing index are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUpstreamTimeout) ||
		errors.Is(err, ErrEmbeddingService) ||
		errors.Is(err, ErrGenerationService)
}

// UpstreamError classifies a failed external call. Deadline errors become
// ErrUpstreamTimeout, everything else is wrapped with kind unless it
// already carries it.
func UpstreamError(err error, kind error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUpstreamTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %v", kind, err)
}
