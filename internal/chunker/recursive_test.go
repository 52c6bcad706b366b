package chunker_test

import (
	"strings"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"docqa/internal/chunker"
	"docqa/internal/domain"
)

// rejoin drops the shared prefix of every chunk after the first.
func rejoin(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		b.WriteString(string([]rune(c)[overlap:]))
	}
	return b.String()
}

const corpus = `Retrieval augmented generation pairs a search index with a language model.

The index is built from chunks. Each chunk is embedded once! Queries are embedded the same way?
Overlap keeps sentences that straddle a cut visible to both neighbours.

Ünïcödé text such as naïve café façade must survive chunking intact, and so must long words like Donaudampfschifffahrtsgesellschaftskapitän.`

var _ = Describe("Split", func() {
	It("fails with ErrEmptyInput on empty text", func() {
		_, err := chunker.Split("", 2000, 200)
		Expect(err).To(MatchError(domain.ErrEmptyInput))
	})

	It("fails with ErrEmptyInput on whitespace-only text", func() {
		_, err := chunker.Split(" \n\t ", 2000, 200)
		Expect(err).To(MatchError(domain.ErrEmptyInput))
	})

	DescribeTable("rejects invalid parameters",
		func(size, overlap int) {
			_, err := chunker.Split("some text", size, overlap)
			Expect(err).To(MatchError(domain.ErrInvalidChunkParams))
		},
		Entry("zero size", 0, 0),
		Entry("negative overlap", 10, -1),
		Entry("overlap equal to size", 10, 10),
		Entry("overlap larger than size", 10, 20),
	)

	It("returns short text as a single trimmed chunk", func() {
		chunks, err := chunker.Split("  The sky is blue.  ", 2000, 200)
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(Equal([]string{"The sky is blue."}))
	})

	DescribeTable("reconstructs the trimmed text by dropping overlaps",
		func(text string, size, overlap int) {
			chunks, err := chunker.Split(text, size, overlap)
			Expect(err).NotTo(HaveOccurred())
			Expect(rejoin(chunks, overlap)).To(Equal(strings.TrimSpace(text)))
			for _, c := range chunks {
				Expect(utf8.RuneCountInString(c)).To(BeNumerically("<=", size))
			}
		},
		Entry("prose with paragraphs", corpus, 80, 20),
		Entry("no overlap", corpus, 64, 0),
		Entry("overlap close to size", corpus, 40, 39),
		Entry("tiny windows", corpus, 3, 1),
		Entry("no boundaries at all", strings.Repeat("x", 1000), 100, 10),
		Entry("original defaults", strings.Repeat(corpus+"\n\n", 30), 2000, 200),
	)

	It("starts each chunk with the last overlap runes of the previous one", func() {
		chunks, err := chunker.Split(corpus, 60, 15)
		Expect(err).NotTo(HaveOccurred())
		Expect(len(chunks)).To(BeNumerically(">", 2))
		for i := 1; i < len(chunks); i++ {
			prev := []rune(chunks[i-1])
			Expect(string([]rune(chunks[i])[:15])).To(Equal(string(prev[len(prev)-15:])))
		}
	})

	It("prefers paragraph boundaries over mid-sentence cuts", func() {
		text := strings.Repeat("a", 70) + "\n\n" + strings.Repeat("b", 70)
		chunks, err := chunker.Split(text, 100, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks[0]).To(Equal(strings.Repeat("a", 70) + "\n\n"))
	})

	It("falls back to word boundaries before hard cuts", func() {
		text := strings.Repeat("word ", 40)
		chunks, err := chunker.Split(text, 23, 0)
		Expect(err).NotTo(HaveOccurred())
		for _, c := range chunks[:len(chunks)-1] {
			Expect(c).To(HaveSuffix(" "))
		}
	})

	It("hard cuts when no boundary exists in the window", func() {
		chunks, err := chunker.Split(strings.Repeat("x", 250), 100, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(HaveLen(3))
		Expect(chunks[0]).To(HaveLen(100))
	})
})

var _ = Describe("RecursiveChunker", func() {
	It("validates its parameters", func() {
		_, err := chunker.NewRecursiveChunker(200, 200)
		Expect(err).To(MatchError(domain.ErrInvalidChunkParams))
	})

	It("tags chunks with their source and position", func() {
		c, err := chunker.NewRecursiveChunker(40, 5)
		Expect(err).NotTo(HaveOccurred())
		chunks, err := c.Chunk("A", corpus)
		Expect(err).NotTo(HaveOccurred())
		Expect(len(chunks)).To(BeNumerically(">", 1))
		for i, ch := range chunks {
			Expect(ch.Source).To(Equal("A"))
			Expect(ch.Index).To(Equal(i))
		}
	})

	It("propagates ErrEmptyInput", func() {
		c, err := chunker.NewRecursiveChunker(2000, 200)
		Expect(err).NotTo(HaveOccurred())
		_, err = c.Chunk("empty.pdf", "   ")
		Expect(err).To(MatchError(domain.ErrEmptyInput))
	})
})
