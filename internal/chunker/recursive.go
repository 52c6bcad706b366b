package chunker

import (
	"fmt"
	"strings"

	"docqa/internal/domain"
)

// boundary levels, strongest first. A cut lands right after the separator.
var boundaries = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? ", ".\t", "!\t", "?\t"},
	{" ", "\t"},
}

// RecursiveChunker splits text into windows of at most size runes. Each chunk
// after the first starts with exactly the last overlap runes of its predecessor,
// and chunk ends prefer paragraph, then line, then sentence, then word boundaries.
type RecursiveChunker struct {
	size    int
	overlap int
}

// NewRecursiveChunker validates 0 <= overlap < size.
func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", domain.ErrInvalidChunkParams, size, overlap)
	}
	return &RecursiveChunker{size: size, overlap: overlap}, nil
}

// Size returns the maximum chunk length in runes.
func (c *RecursiveChunker) Size() int { return c.size }

// Overlap returns the number of runes shared by consecutive chunks.
func (c *RecursiveChunker) Overlap() int { return c.overlap }

// Chunk splits the text of one document and tags every chunk with source.
func (c *RecursiveChunker) Chunk(source, text string) ([]domain.Chunk, error) {
	parts, err := Split(text, c.size, c.overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = domain.Chunk{Text: p, Source: source, Index: i}
	}
	return chunks, nil
}

// Split cuts the trimmed text into overlapping windows. Dropping the first
// overlap runes of every chunk but the first and concatenating the rest
// yields the trimmed text back.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", domain.ErrInvalidChunkParams, size, overlap)
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, domain.ErrEmptyInput
	}

	runes := []rune(trimmed)
	var chunks []string
	start := 0
	for {
		if len(runes)-start <= size {
			chunks = append(chunks, string(runes[start:]))
			return chunks, nil
		}
		end := cutPoint(runes, start, size, overlap)
		chunks = append(chunks, string(runes[start:end]))
		start = end - overlap
	}
}

// cutPoint picks the end of the window beginning at start. The result is in
// (start+overlap, start+size] so every chunk contributes new text.
func cutPoint(runes []rune, start, size, overlap int) int {
	hi := start + size
	floors := []int{start + max(overlap, size/2), start + overlap}
	for _, lo := range floors {
		for _, level := range boundaries {
			if end := lastBoundary(runes, lo, hi, level); end > 0 {
				return end
			}
		}
	}
	return hi
}

// lastBoundary returns the largest position p in (lo, hi] that directly follows
// one of the separators, or -1.
func lastBoundary(runes []rune, lo, hi int, seps []string) int {
	for p := hi; p > lo; p-- {
		for _, sep := range seps {
			sr := []rune(sep)
			if p-len(sr) < 0 {
				continue
			}
			if string(runes[p-len(sr):p]) == sep {
				return p
			}
		}
	}
	return -1
}
