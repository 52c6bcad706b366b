// Package extractor pulls plain text out of source documents on a bounded worker pool.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docqa/internal/domain"
)

// Policy decides what a failed document contributes to a batch.
type Policy string

const (
	// PolicyDegrade substitutes the error message for the document text.
	PolicyDegrade Policy = "degrade"
	// PolicyStrict skips failed documents and fails only if none succeeded.
	PolicyStrict Policy = "strict"
)

// separator joins the text of consecutive documents.
const separator = " "

// Config holds configuration for the Extractor.
type Config struct {
	// Workers bounds concurrent extractions. Defaults to GOMAXPROCS if zero.
	Workers int

	// Policy defaults to PolicyDegrade if empty.
	Policy Policy
}

// Extractor reads documents page by page.
type Extractor struct {
	workers int
	policy  Policy
	logger  *zap.Logger
}

// Part is the outcome of extracting one document.
type Part struct {
	Document domain.Document
	// Text is the extracted text, or the error message under PolicyDegrade.
	Text string
	Err  error
}

// Batch is the outcome of ExtractAll, in submission order.
type Batch struct {
	Parts []Part
	Text  string
}

// Failed lists the names of documents that could not be read.
func (b *Batch) Failed() []string {
	var names []string
	for _, p := range b.Parts {
		if p.Err != nil {
			names = append(names, p.Document.Name)
		}
	}
	return names
}

// New creates an Extractor.
func New(c Config, logger *zap.Logger) (*Extractor, error) {
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	policy := c.Policy
	if policy == "" {
		policy = PolicyDegrade
	}
	if policy != PolicyDegrade && policy != PolicyStrict {
		return nil, fmt.Errorf("unknown extraction policy: %s", policy)
	}
	return &Extractor{workers: workers, policy: policy, logger: logger}, nil
}

// Extract returns the text of a single document with its pages in order.
// Any failure is reported as a *domain.ExtractError.
func (e *Extractor) Extract(ctx context.Context, doc domain.Document) (text string, err error) {
	defer func() {
		// the PDF reader panics on some malformed files
		if r := recover(); r != nil {
			err = &domain.ExtractError{Document: doc.Name, Err: fmt.Errorf("malformed document: %v", r)}
		}
	}()

	start := time.Now()
	pages, err := load(ctx, doc.Path)
	if err != nil {
		return "", &domain.ExtractError{Document: doc.Name, Err: err}
	}

	var b strings.Builder
	for _, p := range pages {
		b.WriteString(p.PageContent)
	}

	e.logger.Debug("extracted document",
		zap.String("document", doc.Name),
		zap.Int("pages", len(pages)),
		zap.Duration("took", time.Since(start)),
	)
	return b.String(), nil
}

// ExtractAll extracts every document concurrently and joins the results in
// submission order. A failing document never cancels its siblings.
func (e *Extractor) ExtractAll(ctx context.Context, docs []domain.Document) (*Batch, error) {
	parts := make([]Part, len(docs))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, doc := range docs {
		g.Go(func() error {
			parts[i].Document = doc
			if err := ctx.Err(); err != nil {
				parts[i].Err = err
				return nil
			}
			text, err := e.Extract(ctx, doc)
			parts[i].Text = text
			parts[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		texts []string
		errs  []error
	)
	for i := range parts {
		p := &parts[i]
		if p.Err == nil {
			texts = append(texts, p.Text)
			continue
		}
		errs = append(errs, p.Err)
		e.logger.Warn("document extraction failed",
			zap.String("document", p.Document.Name),
			zap.Error(p.Err),
		)
		if e.policy == PolicyDegrade {
			p.Text = p.Err.Error()
			texts = append(texts, p.Text)
		}
	}

	joined := strings.Join(texts, separator)
	if strings.TrimSpace(joined) == "" {
		if len(errs) > 0 {
			return nil, fmt.Errorf("%w: %w", domain.ErrNoExtractableText, errors.Join(errs...))
		}
		return nil, domain.ErrNoExtractableText
	}

	e.logger.Info("extracted documents",
		zap.Int("documents", len(docs)),
		zap.Int("failed", len(errs)),
	)
	return &Batch{Parts: parts, Text: joined}, nil
}

// Supported reports whether path has an extension the extractor can read.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md", ".markdown":
		return true
	}
	return false
}

func load(ctx context.Context, path string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		return documentloaders.NewPDF(f, info.Size()).Load(ctx)
	case ".txt", ".md", ".markdown":
		return documentloaders.NewText(f).Load(ctx)
	default:
		return nil, fmt.Errorf("unsupported document format %q", filepath.Ext(path))
	}
}
