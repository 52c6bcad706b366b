package gemini_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"docqa/internal/embedding/gemini"
)

var _ = Describe("Embedder", func() {
	It("requires an API key", func() {
		_, err := gemini.NewEmbedder(context.Background(), "", "")
		Expect(err).To(MatchError(ContainSubstring("API key is empty")))
	})
})
