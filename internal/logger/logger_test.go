package logger_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"docqa/internal/logger"
)

var _ = Describe("Logger", func() {
	It("writes info messages with fields", func() {
		var buf bytes.Buffer
		l := logger.NewWithWriters(false, &buf)
		l.Info("index published", zap.Int("chunks", 12))
		_ = l.Sync()

		Expect(buf.String()).To(ContainSubstring("INFO"))
		Expect(buf.String()).To(ContainSubstring("index published"))
		Expect(buf.String()).To(ContainSubstring("12"))
	})

	It("suppresses debug messages unless debug is on", func() {
		var quiet, loud bytes.Buffer
		logger.NewWithWriters(false, &quiet).Debug("batch embedded")
		logger.NewWithWriters(true, &loud).Debug("batch embedded")

		Expect(quiet.String()).To(BeEmpty())
		Expect(loud.String()).To(ContainSubstring("batch embedded"))
	})

	It("fans out to every writer", func() {
		var a, b bytes.Buffer
		logger.NewWithWriters(false, &a, &b).Warn("extraction failed")

		Expect(a.String()).To(ContainSubstring("extraction failed"))
		Expect(b.String()).To(ContainSubstring("extraction failed"))
	})
})
