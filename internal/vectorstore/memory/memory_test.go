package memory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
)

var _ = Describe("Storage", func() {
	ctx := context.Background()

	snapshot := func(id string) vectorstore.Snapshot {
		return vectorstore.Snapshot{
			Manifest: vectorstore.Manifest{BuildID: id, Embedder: "test", Dimension: 2, Chunks: 3},
			Chunks: []domain.Chunk{
				{Text: "east", Source: "a", Ordinal: 0},
				{Text: "north", Source: "a", Index: 1, Ordinal: 1},
				{Text: "also east", Source: "b", Ordinal: 2},
			},
			Vectors: [][]float32{{1, 0}, {0, 1}, {1, 0}},
		}
	}

	It("has nothing to open before a publish", func() {
		_, err := memory.NewStorage().Open(ctx)
		Expect(err).To(MatchError(domain.ErrIndexNotFound))
	})

	It("searches the published snapshot", func() {
		s := memory.NewStorage()
		Expect(s.Publish(ctx, snapshot("one"))).To(Succeed())

		idx, err := s.Open(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(idx.Len()).To(Equal(3))
		Expect(idx.Manifest().BuildID).To(Equal("one"))

		res, err := idx.Search(ctx, []float32{1, 0}, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(HaveLen(2))
		Expect(res[0].Chunk.Text).To(Equal("east"))
		Expect(res[1].Chunk.Text).To(Equal("also east"))
	})

	It("keeps handing out an opened index after a new publish", func() {
		s := memory.NewStorage()
		Expect(s.Publish(ctx, snapshot("one"))).To(Succeed())
		old, err := s.Open(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Publish(ctx, snapshot("two"))).To(Succeed())
		Expect(old.Manifest().BuildID).To(Equal("one"))
		cur, err := s.Open(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(cur.Manifest().BuildID).To(Equal("two"))
	})

	It("rejects vectors of the wrong dimension", func() {
		snap := snapshot("bad")
		snap.Vectors[1] = []float32{1, 2, 3}
		Expect(memory.NewStorage().Publish(ctx, snap)).NotTo(Succeed())
	})
})
