package gemini

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

var _ = Describe("Generator", func() {
	It("requires an API key", func() {
		_, err := NewGenerator(context.Background(), Config{}, zap.NewNop())
		Expect(err).To(MatchError(ContainSubstring("API key is empty")))
	})

	DescribeTable("isRateLimit",
		func(msg string, want bool) {
			Expect(isRateLimit(errors.New(msg))).To(Equal(want))
		},
		Entry("http status", "googleapi: Error 429: too many requests", true),
		Entry("quota", "Quota exceeded for metric", true),
		Entry("grpc code", "rpc error: code = ResourceExhausted desc = Resource exhausted", true),
		Entry("bad request", "googleapi: Error 400: invalid argument", false),
	)
})
