package vectorstore_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/embedding/hashing"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
)

// flakyEmbedder wraps the hashing embedder and fails on demand.
type flakyEmbedder struct {
	*hashing.Embedder
	fail  atomic.Bool
	calls atomic.Int32
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, errors.New("connection refused")
	}
	return f.Embedder.EmbedBatch(ctx, texts)
}

// unopenable fails the next n opens of the wrapped backend.
type unopenable struct {
	*memory.Storage
	n atomic.Int32
}

func (u *unopenable) Open(ctx context.Context) (vectorstore.Index, error) {
	if u.n.Add(-1) >= 0 {
		return nil, errors.New("database is locked")
	}
	return u.Storage.Open(ctx)
}

func chunks(texts ...string) []domain.Chunk {
	out := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		out[i] = domain.Chunk{Text: t, Source: "doc.txt", Index: i}
	}
	return out
}

var _ = Describe("Store", func() {
	var (
		ctx      context.Context
		backend  *memory.Storage
		embedder *flakyEmbedder
		store    *vectorstore.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		backend = memory.NewStorage()
		embedder = &flakyEmbedder{Embedder: hashing.NewEmbedder(256)}
		store = vectorstore.NewStore(vectorstore.Config{BatchSize: 2}, backend, embedder, zap.NewNop())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	Describe("Build", func() {
		It("rejects an empty chunk set", func() {
			_, err := store.Build(ctx, nil)
			Expect(err).To(MatchError(domain.ErrEmptyChunkSet))
		})

		It("embeds in batches and records the manifest", func() {
			m, err := store.Build(ctx, chunks("alpha beta", "gamma delta", "epsilon zeta"))
			Expect(err).NotTo(HaveOccurred())
			Expect(m.BuildID).NotTo(BeEmpty())
			Expect(m.Embedder).To(Equal("hashing:256"))
			Expect(m.Dimension).To(Equal(256))
			Expect(m.Chunks).To(Equal(3))
			Expect(embedder.calls.Load()).To(BeEquivalentTo(2))
		})

		It("assigns ordinals in corpus order", func() {
			_, err := store.Build(ctx, chunks("one apple", "two bananas", "three cherries"))
			Expect(err).NotTo(HaveOccurred())

			idx, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			v, _ := embedder.Embed(ctx, "two bananas")
			res, err := idx.Search(ctx, v, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(HaveLen(1))
			Expect(res[0].Chunk.Ordinal).To(Equal(1))
			Expect(res[0].Chunk.Text).To(Equal("two bananas"))
			Expect(res[0].Score).To(BeNumerically("~", 1, 1e-6))
		})

		It("keeps the previous index when a rebuild fails", func() {
			first, err := store.Build(ctx, chunks("the sky is blue"))
			Expect(err).NotTo(HaveOccurred())

			embedder.fail.Store(true)
			_, err = store.Build(ctx, chunks("grass is green"))
			Expect(err).To(MatchError(domain.ErrEmbeddingService))

			idx, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(idx.Manifest().BuildID).To(Equal(first.BuildID))
			Expect(idx.Len()).To(Equal(1))
		})

		It("replaces the corpus wholesale", func() {
			_, err := store.Build(ctx, chunks("first corpus", "more of the first"))
			Expect(err).NotTo(HaveOccurred())
			second, err := store.Build(ctx, chunks("second corpus"))
			Expect(err).NotTo(HaveOccurred())

			idx, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(idx.Len()).To(Equal(1))
			Expect(idx.Manifest().BuildID).To(Equal(second.BuildID))
		})

		It("serves a published build on the next load when opening it fails", func() {
			flaky := &unopenable{Storage: backend}
			s := vectorstore.NewStore(vectorstore.Config{}, flaky, embedder, zap.NewNop())
			defer s.Close()

			_, err := s.Build(ctx, chunks("old corpus"))
			Expect(err).NotTo(HaveOccurred())

			flaky.n.Store(1)
			second, err := s.Build(ctx, chunks("new corpus", "more of the new"))
			Expect(err).NotTo(HaveOccurred())

			idx, err := s.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(idx.Manifest().BuildID).To(Equal(second.BuildID))
			Expect(idx.Len()).To(Equal(2))
		})
	})

	Describe("Load", func() {
		It("fails before anything was built", func() {
			_, err := store.Load(ctx)
			Expect(err).To(MatchError(domain.ErrIndexNotFound))
		})

		It("opens an index published by another store", func() {
			_, err := store.Build(ctx, chunks("shared index"))
			Expect(err).NotTo(HaveOccurred())

			other := vectorstore.NewStore(vectorstore.Config{}, backend, hashing.NewEmbedder(256), zap.NewNop())
			defer other.Close()
			idx, err := other.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(idx.Len()).To(Equal(1))
		})

		It("refuses an index built by a different embedder", func() {
			_, err := store.Build(ctx, chunks("shared index"))
			Expect(err).NotTo(HaveOccurred())

			other := vectorstore.NewStore(vectorstore.Config{}, backend, hashing.NewEmbedder(128), zap.NewNop())
			defer other.Close()
			_, err = other.Load(ctx)
			Expect(err).To(MatchError(domain.ErrEmbedderMismatch))
		})
	})

	It("serves the old or the new generation during a rebuild", func() {
		first, err := store.Build(ctx, chunks("red apples", "green pears"))
		Expect(err).NotTo(HaveOccurred())

		query, _ := embedder.Embed(ctx, "apples")
		var (
			wg   sync.WaitGroup
			seen sync.Map
			stop atomic.Bool
		)
		for range 4 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				for !stop.Load() {
					idx, err := store.Load(ctx)
					Expect(err).NotTo(HaveOccurred())
					res, err := idx.Search(ctx, query, 2)
					Expect(err).NotTo(HaveOccurred())
					Expect(res).NotTo(BeEmpty())
					seen.Store(idx.Manifest().BuildID, true)
				}
			}()
		}

		built := []string{first.BuildID}
		for range 5 {
			m, err := store.Build(ctx, chunks("yellow bananas", "red apples", "purple plums"))
			Expect(err).NotTo(HaveOccurred())
			built = append(built, m.BuildID)
		}
		stop.Store(true)
		wg.Wait()

		idx, err := store.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(idx.Manifest().BuildID).To(Equal(built[len(built)-1]))
		seen.Range(func(k, _ any) bool {
			Expect(built).To(ContainElement(k))
			return true
		})
	})
})
