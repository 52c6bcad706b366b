package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"docqa/internal/assembler"
	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/embedding/hashing"
	"docqa/internal/extractor"
	"docqa/internal/history"
	"docqa/internal/retriever"
	"docqa/internal/service"
	"docqa/internal/summarizer"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
)

type stubGenerator struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (g *stubGenerator) Name() string { return "stub" }

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return "It is blue [A].", nil
}

func (g *stubGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

var _ = Describe("RAGService", func() {
	var (
		ctx       context.Context
		dir       string
		generator *stubGenerator
		svc       *service.RAGService
	)

	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		Expect(os.WriteFile(p, []byte(content), 0o644)).To(Succeed())
		return p
	}

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		generator = &stubGenerator{}

		ext, err := extractor.New(extractor.Config{Workers: 2}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		chk, err := chunker.NewRecursiveChunker(200, 20)
		Expect(err).NotTo(HaveOccurred())
		embedder := hashing.NewEmbedder(4096)
		store := vectorstore.NewStore(vectorstore.Config{}, memory.NewStorage(), embedder, zap.NewNop())
		sum := summarizer.NewFrequencySummarizer()

		svc = service.NewRAGService(service.Components{
			Extractor:  ext,
			Chunker:    chk,
			Store:      store,
			Retriever:  retriever.New(retriever.Config{TopK: 1}, embedder, zap.NewNop()),
			Assembler:  assembler.New(assembler.Config{MaxTokens: 4000}, sum, zap.NewNop()),
			Generator:  generator,
			Summarizer: sum,
			History:    history.New(),
		}, 2, zap.NewNop())
	})

	Describe("Ingest", func() {
		It("indexes every document and reports the build", func() {
			report, err := svc.Ingest(ctx, []domain.Document{
				{Name: "A", Path: write("a.txt", "The sky is blue.")},
				{Name: "B", Path: write("b.txt", "Grass is green.")},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(report.BuildID).NotTo(BeEmpty())
			Expect(report.Documents).To(Equal(2))
			Expect(report.Chunks).To(Equal(2))
			Expect(report.Failed).To(BeEmpty())
			Expect(report.Summary).To(Equal("The sky is blue. Grass is green."))
			Expect(svc.Ready(ctx)).To(BeTrue())
		})

		It("reports unreadable documents without failing the batch", func() {
			report, err := svc.Ingest(ctx, []domain.Document{
				{Name: "A", Path: write("a.txt", "The sky is blue.")},
				{Name: "broken.pdf", Path: filepath.Join(dir, "missing.pdf")},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Failed).To(Equal([]string{"broken.pdf"}))
		})

		It("rejects an empty document set", func() {
			_, err := svc.Ingest(ctx, nil)
			Expect(err).To(MatchError(domain.ErrEmptyInput))
		})

		It("fails on documents without text", func() {
			_, err := svc.Ingest(ctx, []domain.Document{{Name: "E", Path: write("e.txt", "   \n")}})
			Expect(err).To(MatchError(domain.ErrNoExtractableText))
		})

		It("replaces the previous corpus", func() {
			_, err := svc.Ingest(ctx, []domain.Document{{Name: "A", Path: write("a.txt", "The sky is blue.")}})
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Ingest(ctx, []domain.Document{{Name: "B", Path: write("b.txt", "Grass is green.")}})
			Expect(err).NotTo(HaveOccurred())

			res, err := svc.Search(ctx, "sky", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(HaveLen(1))
			Expect(res[0].Chunk.Source).To(Equal("B"))
		})
	})

	Describe("IngestPaths", func() {
		It("expands directories and globs into named documents", func() {
			write("a.txt", "The sky is blue.")
			write("b.md", "Grass is green.")
			write("skip.bin", "binary")

			docs, err := service.CollectDocuments([]string{dir, filepath.Join(dir, "*.txt")})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(2))
			Expect(docs[0].Name).To(Equal("a.txt"))
			Expect(docs[1].Name).To(Equal("b.md"))

			report, err := svc.IngestPaths(ctx, []string{dir})
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Documents).To(Equal(2))
		})

		It("fails when nothing supported is found", func() {
			write("skip.bin", "binary")
			_, err := svc.IngestPaths(ctx, []string{dir})
			Expect(err).To(MatchError(domain.ErrEmptyInput))
		})
	})

	Describe("Ask", func() {
		It("is not ready before anything was ingested", func() {
			_, err := svc.Ask(ctx, "What color is the sky?")
			Expect(err).To(MatchError(domain.ErrIndexNotFound))
			Expect(service.IsNotReady(err)).To(BeTrue())
		})

		Context("with an index", func() {
			BeforeEach(func() {
				_, err := svc.Ingest(ctx, []domain.Document{
					{Name: "A", Path: write("a.txt", "The sky is blue.")},
					{Name: "B", Path: write("b.txt", "Grass is green.")},
				})
				Expect(err).NotTo(HaveOccurred())
			})

			It("answers from the most relevant document and records the turn", func() {
				answer, err := svc.Ask(ctx, "What color is the sky?")
				Expect(err).NotTo(HaveOccurred())
				Expect(answer.Text).To(Equal("It is blue [A]."))
				Expect(answer.Sources).To(HaveLen(1))
				Expect(answer.Sources[0].Chunk.Source).To(Equal("A"))

				Expect(generator.prompts[0]).To(ContainSubstring("Document: A\nContent: The sky is blue."))
				Expect(generator.prompts[0]).To(ContainSubstring("What color is the sky?"))
				Expect(svc.History()).To(Equal([]domain.Turn{{Question: "What color is the sky?", Answer: "It is blue [A]."}}))
			})

			It("feeds earlier turns into the next prompt", func() {
				_, err := svc.Ask(ctx, "What color is the sky?")
				Expect(err).NotTo(HaveOccurred())
				_, err = svc.Ask(ctx, "And the grass?")
				Expect(err).NotTo(HaveOccurred())

				Expect(generator.prompts[1]).To(ContainSubstring("User: What color is the sky?\nBot: It is blue [A]."))
				Expect(svc.History()).To(HaveLen(2))
			})

			It("answers without the generator when nothing is relevant", func() {
				answer, err := svc.Ask(ctx, "Is it so?")
				Expect(err).NotTo(HaveOccurred())
				Expect(answer.Text).To(Equal(service.NoResultsAnswer))
				Expect(generator.calls()).To(BeZero())
				Expect(svc.History()).To(BeEmpty())
			})

			It("keeps history untouched when generation fails", func() {
				generator.err = errors.New("quota exceeded")
				_, err := svc.Ask(ctx, "What color is the sky?")
				Expect(err).To(MatchError(domain.ErrGenerationService))
				Expect(svc.History()).To(BeEmpty())
			})

			It("records every turn of concurrent questions", func() {
				var wg sync.WaitGroup
				for range 8 {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						_, err := svc.Ask(ctx, "What color is the sky?")
						Expect(err).NotTo(HaveOccurred())
					}()
				}
				wg.Wait()
				Expect(svc.History()).To(HaveLen(8))
			})

			It("rejects a blank question", func() {
				_, err := svc.Ask(ctx, "  ")
				Expect(err).To(MatchError(domain.ErrEmptyInput))
			})

			It("clears the session", func() {
				_, err := svc.Ask(ctx, "What color is the sky?")
				Expect(err).NotTo(HaveOccurred())
				svc.ClearHistory()
				Expect(svc.History()).To(BeEmpty())
			})

			It("describes the index in service", func() {
				m, err := svc.Manifest(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(m.Chunks).To(Equal(2))
				Expect(m.Embedder).To(Equal("hashing:4096"))
			})
		})
	})
})
