package domain_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"docqa/internal/domain"
)

var _ = Describe("Errors", func() {
	Describe("IsRetryable", func() {
		It("treats upstream failures as retryable", func() {
			Expect(domain.IsRetryable(fmt.Errorf("%w: 503", domain.ErrEmbeddingService))).To(BeTrue())
			Expect(domain.IsRetryable(fmt.Errorf("%w: 429", domain.ErrGenerationService))).To(BeTrue())
			Expect(domain.IsRetryable(domain.ErrUpstreamTimeout)).To(BeTrue())
		})

		It("never retries input errors or a missing index", func() {
			Expect(domain.IsRetryable(nil)).To(BeFalse())
			Expect(domain.IsRetryable(domain.ErrEmptyInput)).To(BeFalse())
			Expect(domain.IsRetryable(domain.ErrEmptyChunkSet)).To(BeFalse())
			Expect(domain.IsRetryable(domain.ErrIndexNotFound)).To(BeFalse())
			Expect(domain.IsRetryable(&domain.ExtractError{Document: "a.pdf", Err: errors.New("bad xref")})).To(BeFalse())
		})
	})

	Describe("UpstreamError", func() {
		It("maps deadline errors to ErrUpstreamTimeout", func() {
			err := domain.UpstreamError(fmt.Errorf("post: %w", context.DeadlineExceeded), domain.ErrEmbeddingService)
			Expect(err).To(MatchError(domain.ErrUpstreamTimeout))
			Expect(errors.Is(err, domain.ErrEmbeddingService)).To(BeFalse())
		})

		It("wraps other failures with the given kind", func() {
			err := domain.UpstreamError(errors.New("connection refused"), domain.ErrGenerationService)
			Expect(err).To(MatchError(domain.ErrGenerationService))
			Expect(err.Error()).To(ContainSubstring("connection refused"))
		})

		It("does not double wrap", func() {
			orig := fmt.Errorf("%w: boom", domain.ErrEmbeddingService)
			Expect(domain.UpstreamError(orig, domain.ErrEmbeddingService)).To(BeIdenticalTo(orig))
			Expect(domain.UpstreamError(nil, domain.ErrEmbeddingService)).To(BeNil())
		})
	})

	Describe("ExtractError", func() {
		It("names the document and unwraps the cause", func() {
			cause := errors.New("malformed PDF")
			err := &domain.ExtractError{Document: "report.pdf", Err: cause}
			Expect(err.Error()).To(Equal("Error processing report.pdf: malformed PDF"))
			Expect(errors.Is(err, cause)).To(BeTrue())
		})
	})
})
