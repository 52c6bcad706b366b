package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"docqa/internal/assembler"
	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/embedding"
	geminiembed "docqa/internal/embedding/gemini"
	"docqa/internal/embedding/hashing"
	ollamaembed "docqa/internal/embedding/ollama"
	"docqa/internal/embedding/openai"
	"docqa/internal/extractor"
	"docqa/internal/generation"
	geminigen "docqa/internal/generation/gemini"
	ollamagen "docqa/internal/generation/ollama"
	"docqa/internal/retriever"
	"docqa/internal/service"
	"docqa/internal/summarizer"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/chromem"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/qdrant"
	"docqa/internal/vectorstore/sqlitevec"
)

// app is a fully wired service plus the resources to release on exit.
type app struct {
	cfg     *config.AppConfig
	service *service.RAGService
	logger  *zap.Logger
	closers []func() error
}

// Close releases every resource in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// build assembles the service described by cfg. The generator is only
// constructed when withGenerator is set, so ingest-only commands work
// without generation credentials.
func build(ctx context.Context, cfg *config.AppConfig, withGenerator bool, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	fail := func(err error) (*app, error) {
		_ = a.Close()
		return nil, err
	}

	ext, err := extractor.New(extractor.Config{
		Workers: cfg.Extractor.Workers,
		Policy:  extractor.Policy(cfg.Extractor.Policy),
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("extractor: %w", err))
	}

	ch, err := chunker.NewRecursiveChunker(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		return fail(fmt.Errorf("chunker: %w", err))
	}

	emb, closeEmb, err := newEmbedder(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("embedder: %w", err))
	}
	if closeEmb != nil {
		a.closers = append(a.closers, closeEmb)
	}
	emb = embedding.WithTimeout(emb, cfg.EmbedderTimeout())

	backend, err := newBackend(cfg, logger)
	if err != nil {
		return fail(fmt.Errorf("vector store: %w", err))
	}
	store := vectorstore.NewStore(vectorstore.Config{BatchSize: cfg.Embedder.BatchSize}, backend, emb, logger)
	a.closers = append(a.closers, store.Close)

	sum, err := newSummarizer(cfg)
	if err != nil {
		return fail(err)
	}

	var gen domain.Generator
	if withGenerator {
		var closeGen func() error
		gen, closeGen, err = newGenerator(ctx, cfg, logger)
		if err != nil {
			return fail(fmt.Errorf("generator: %w", err))
		}
		if closeGen != nil {
			a.closers = append(a.closers, closeGen)
		}
		gen = generation.WithTimeout(gen, cfg.GeneratorTimeout())
	}

	a.service = service.NewRAGService(service.Components{
		Extractor: ext,
		Chunker:   ch,
		Store:     store,
		Retriever: retriever.New(retriever.Config{
			TopK:     cfg.Retriever.TopK,
			MinScore: cfg.Retriever.MinScore,
		}, emb, logger),
		Assembler: assembler.New(assembler.Config{
			MaxTokens:        cfg.Assembler.MaxTokens,
			KeepTurns:        cfg.Assembler.KeepTurns,
			SummarySentences: cfg.Summarizer.MaxSentences,
			Render:           generation.RenderAnswerPrompt,
		}, sum, logger),
		Generator:  gen,
		Summarizer: sum,
	}, cfg.Summarizer.MaxSentences, logger)

	logger.Debug("components assembled",
		zap.String("embedder", emb.Name()),
		zap.String("vector_store", backend.Name()),
		zap.Bool("generator", gen != nil),
	)
	return a, nil
}

func newEmbedder(ctx context.Context, cfg *config.AppConfig) (domain.Embedder, func() error, error) {
	switch cfg.Embedder.Type {
	case "hashing", "":
		dim := 0
		if cfg.Embedder.Hashing != nil {
			dim = cfg.Embedder.Hashing.Dimension
		}
		return hashing.NewEmbedder(dim), nil, nil
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, nil, errors.New("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			return nil, nil, errors.New("ollama embedder config missing")
		}
		return ollamaembed.NewEmbedder(ollamaembed.EmbedderConfig{
			BaseURL: cfg.Embedder.Ollama.BaseURL,
			Model:   cfg.Embedder.Ollama.Model,
		}), nil, nil
	case "gemini":
		if cfg.Embedder.Gemini == nil {
			return nil, nil, errors.New("gemini embedder config missing")
		}
		e, err := geminiembed.NewEmbedder(ctx, os.Getenv(cfg.Embedder.Gemini.APIKeyEnv), cfg.Embedder.Gemini.Model)
		if err != nil {
			return nil, nil, err
		}
		return e, e.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func newGenerator(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (domain.Generator, func() error, error) {
	switch cfg.Generator.Type {
	case "gemini", "":
		if cfg.Generator.Gemini == nil {
			return nil, nil, errors.New("gemini generator config missing")
		}
		g, err := geminigen.NewGenerator(ctx, geminigen.Config{
			APIKey:      os.Getenv(cfg.Generator.Gemini.APIKeyEnv),
			Model:       cfg.Generator.Gemini.Model,
			Temperature: cfg.Generator.Gemini.Temperature,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	case "ollama":
		if cfg.Generator.Ollama == nil {
			return nil, nil, errors.New("ollama generator config missing")
		}
		return ollamagen.NewGenerator(ollamagen.Config{
			BaseURL: cfg.Generator.Ollama.BaseURL,
			Model:   cfg.Generator.Ollama.Model,
		}), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown generator: %s", cfg.Generator.Type)
	}
}

func newBackend(cfg *config.AppConfig, logger *zap.Logger) (vectorstore.Backend, error) {
	switch cfg.VectorStore.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "chromem", "":
		return chromem.NewBackend(chromem.Config{Root: cfg.VectorStore.Path}, logger)
	case "sqlitevec":
		return sqlitevec.NewBackend(sqlitevec.Config{Root: cfg.VectorStore.Path}, logger)
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		if q == nil {
			return nil, errors.New("qdrant config missing")
		}
		apiKey := q.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("QDRANT_API_KEY")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     apiKey,
			Collection: q.Collection,
			Timeout:    cfg.QdrantTimeout(),
		}, logger)
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

func newSummarizer(cfg *config.AppConfig) (domain.Summarizer, error) {
	switch cfg.Summarizer.Type {
	case "frequency", "":
		return summarizer.NewFrequencySummarizer(), nil
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}
}
