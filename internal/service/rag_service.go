// Package service wires extraction, chunking, indexing, retrieval and
// generation into the question answering workflow.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/assembler"
	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/extractor"
	"docqa/internal/generation"
	"docqa/internal/history"
	"docqa/internal/retriever"
	"docqa/internal/vectorstore"
)

// NoResultsAnswer is returned when retrieval finds nothing to answer from.
const NoResultsAnswer = "No relevant examples found."

// Components are the collaborators of a RAGService.
type Components struct {
	Extractor  *extractor.Extractor
	Chunker    *chunker.RecursiveChunker
	Store      *vectorstore.Store
	Retriever  *retriever.Retriever
	Assembler  *assembler.Assembler
	Generator  domain.Generator
	Summarizer domain.Summarizer
	History    *history.Session
}

// Answer is the reply to a question together with the chunks it was
// generated from.
type Answer struct {
	Text    string
	Sources []domain.SearchResult
	// Trimmed is set when the context had to be cut down to fit the budget.
	Trimmed bool
}

// RAGService answers questions about the most recently ingested documents.
type RAGService struct {
	extractor           *extractor.Extractor
	chunker             *chunker.RecursiveChunker
	store               *vectorstore.Store
	retriever           *retriever.Retriever
	assembler           *assembler.Assembler
	generator           domain.Generator
	summarizer          domain.Summarizer
	history             *history.Session
	summaryMaxSentences int
	logger              *zap.Logger
}

// NewRAGService creates a service. A nil History gets a fresh session; a nil
// Summarizer disables the ingest summary.
func NewRAGService(c Components, summaryMaxSentences int, logger *zap.Logger) *RAGService {
	h := c.History
	if h == nil {
		h = history.New()
	}
	return &RAGService{
		extractor:           c.Extractor,
		chunker:             c.Chunker,
		store:               c.Store,
		retriever:           c.Retriever,
		assembler:           c.Assembler,
		generator:           c.Generator,
		summarizer:          c.Summarizer,
		history:             h,
		summaryMaxSentences: summaryMaxSentences,
		logger:              logger,
	}
}

// Ingest extracts, chunks and indexes docs. The new index replaces whatever
// was ingested before; on error the previous index stays in service.
func (s *RAGService) Ingest(ctx context.Context, docs []domain.Document) (domain.IngestReport, error) {
	if len(docs) == 0 {
		return domain.IngestReport{}, fmt.Errorf("%w: no documents", domain.ErrEmptyInput)
	}

	batch, err := s.extractor.ExtractAll(ctx, docs)
	if err != nil {
		return domain.IngestReport{}, err
	}

	var chunks []domain.Chunk
	for _, part := range batch.Parts {
		if strings.TrimSpace(part.Text) == "" {
			continue
		}
		cs, err := s.chunker.Chunk(part.Document.Name, part.Text)
		if err != nil {
			return domain.IngestReport{}, err
		}
		chunks = append(chunks, cs...)
	}
	if len(chunks) == 0 {
		return domain.IngestReport{}, domain.ErrNoExtractableText
	}

	m, err := s.store.Build(ctx, chunks)
	if err != nil {
		return domain.IngestReport{}, err
	}

	report := domain.IngestReport{
		BuildID:   m.BuildID,
		Documents: len(docs),
		Failed:    batch.Failed(),
		Chunks:    m.Chunks,
	}
	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(batch.Text, s.summaryMaxSentences)
		if err != nil {
			s.logger.Warn("summarizing corpus", zap.Error(err))
		}
		report.Summary = summary
	}

	s.logger.Info("ingested documents",
		zap.String("build_id", report.BuildID),
		zap.Int("documents", report.Documents),
		zap.Int("failed", len(report.Failed)),
		zap.Int("chunks", report.Chunks),
	)
	return report, nil
}

// IngestPaths expands globs and directories into supported documents and
// ingests them. Each document is cited by its base name.
func (s *RAGService) IngestPaths(ctx context.Context, paths []string) (domain.IngestReport, error) {
	docs, err := CollectDocuments(paths)
	if err != nil {
		return domain.IngestReport{}, err
	}
	return s.Ingest(ctx, docs)
}

// CollectDocuments resolves paths, globs and directories into the supported
// documents they name, sorted by path.
func CollectDocuments(paths []string) ([]domain.Document, error) {
	seen := map[string]bool{}
	var docs []domain.Document
	add := func(p string) {
		if seen[p] || !extractor.Supported(p) {
			return
		}
		seen[p] = true
		docs = append(docs, domain.Document{Name: filepath.Base(p), Path: p})
	}

	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, err
		}
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			err := filepath.WalkDir(m, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					add(path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no supported documents found", domain.ErrEmptyInput)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// Search returns up to k chunks relevant to question. It fails with
// domain.ErrIndexNotFound until something has been ingested.
func (s *RAGService) Search(ctx context.Context, question string, k int) ([]domain.SearchResult, error) {
	idx, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.retriever.Search(ctx, idx, question, k)
}

// Ask answers question from the indexed documents and the session so far,
// then records the exchange. Without a relevant chunk it answers
// NoResultsAnswer and records nothing.
func (s *RAGService) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, domain.ErrEmptyInput
	}

	results, err := s.Search(ctx, question, 0)
	if err != nil {
		return Answer{}, err
	}
	if len(results) == 0 {
		return Answer{Text: NoResultsAnswer}, nil
	}

	c := s.assembler.Assemble(results, s.history.All(), question)
	prompt, err := generation.RenderAnswerPrompt(c.Text, c.Question)
	if err != nil {
		return Answer{}, err
	}
	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return Answer{}, domain.UpstreamError(err, domain.ErrGenerationService)
	}

	s.history.Append(domain.Turn{Question: question, Answer: text})
	s.logger.Debug("answered question",
		zap.Int("sources", len(c.Results)),
		zap.Int("context_tokens", c.Tokens),
		zap.Bool("trimmed", c.Trimmed()),
	)
	return Answer{Text: text, Sources: c.Results, Trimmed: c.Trimmed()}, nil
}

// Manifest describes the index currently in service.
func (s *RAGService) Manifest(ctx context.Context) (vectorstore.Manifest, error) {
	idx, err := s.store.Load(ctx)
	if err != nil {
		return vectorstore.Manifest{}, err
	}
	return idx.Manifest(), nil
}

// Ready reports whether an index is available for questions.
func (s *RAGService) Ready(ctx context.Context) bool {
	_, err := s.store.Load(ctx)
	return err == nil
}

// History returns the turns of the current session.
func (s *RAGService) History() []domain.Turn { return s.history.All() }

// ClearHistory forgets the current session.
func (s *RAGService) ClearHistory() { s.history.Clear() }

// IsNotReady reports whether err means no usable index exists yet.
func IsNotReady(err error) bool {
	return errors.Is(err, domain.ErrIndexNotFound) || errors.Is(err, domain.ErrEmbedderMismatch)
}
