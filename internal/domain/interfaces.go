package domain

import "context"

// Document is a source file handed to ingestion plus the display name used
// as its citation key.
type Document struct {
	Name string
	Path string
}

// Chunk is a bounded span of extracted text tagged with the document it came from.
type Chunk struct {
	Text   string
	Source string
	// Index is the position of the chunk within its source document.
	Index int
	// Ordinal is the position of the chunk within the whole indexed chunk set.
	// Search ties are broken by it.
	Ordinal int
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Turn is one completed question/answer exchange.
type Turn struct {
	Question string `json:"user"`
	Answer   string `json:"bot"`
}

// IngestReport describes the outcome of a successful ingestion.
type IngestReport struct {
	BuildID   string
	Documents int
	Failed    []string
	Chunks    int
	Summary   string
}

// Embedder converts free text into a numeric vector representation.
// The same embedder must be used to build an index and to query it.
type Embedder interface {
	// Name identifies the embedding model, e.g. "openai:text-embedding-3-small".
	Name() string
	// Dimension returns the vector length, or 0 if unknown until the first call.
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator turns a fully rendered prompt into answer text.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
