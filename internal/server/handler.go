// Package server exposes the question answering service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/extractor"
	"docqa/internal/service"
	"docqa/internal/vectorstore"
)

// uploadField is the multipart field carrying uploaded documents.
const uploadField = "pdfs"

// excerptRunes bounds the chunk text echoed back with an answer.
const excerptRunes = 500

// Service is the subset of the RAG service the handlers call.
type Service interface {
	Ingest(ctx context.Context, docs []domain.Document) (domain.IngestReport, error)
	Ask(ctx context.Context, question string) (service.Answer, error)
	Manifest(ctx context.Context) (vectorstore.Manifest, error)
	History() []domain.Turn
	ClearHistory()
}

// Handler serves the HTTP API.
type Handler struct {
	svc        Service
	uploadsDir string
	logger     *zap.Logger
}

// NewHandler creates a Handler. Uploaded documents are kept in uploadsDir
// after a successful ingest so they can be listed and downloaded.
func NewHandler(svc Service, uploadsDir string, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, uploadsDir: uploadsDir, logger: logger}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Health)
	r.GET("/index", h.Index)

	r.POST("/upload", h.Upload)
	r.POST("/ask", h.Ask)

	r.GET("/history", h.GetHistory)
	r.DELETE("/history", h.ClearHistory)

	r.GET("/documents", h.ListDocuments)
	r.GET("/documents/:name", h.GetDocument)
	r.DELETE("/documents/:name", h.DeleteDocument)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func sendError(c *gin.Context, err error) {
	var (
		code   string
		status int
	)
	switch {
	case errors.Is(err, domain.ErrEmptyInput),
		errors.Is(err, domain.ErrNoExtractableText),
		errors.Is(err, domain.ErrInvalidChunkParams),
		errors.Is(err, domain.ErrEmptyChunkSet):
		code, status = "BAD_REQUEST", http.StatusBadRequest
	case errors.Is(err, domain.ErrIndexNotFound),
		errors.Is(err, domain.ErrEmbedderMismatch):
		code, status = "NOT_READY", http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUpstreamTimeout):
		code, status = "UPSTREAM_TIMEOUT", http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrEmbeddingService),
		errors.Is(err, domain.ErrGenerationService):
		code, status = "UPSTREAM_ERROR", http.StatusBadGateway
	case errors.Is(err, os.ErrNotExist):
		code, status = "NOT_FOUND", http.StatusNotFound
	default:
		code, status = "INTERNAL_ERROR", http.StatusInternalServerError
	}
	c.JSON(status, ErrorResponse{Code: code, Error: err.Error()})
}

// Health reports liveness and whether an index is loaded.
func (h *Handler) Health(c *gin.Context) {
	_, err := h.svc.Manifest(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "ok", "index_ready": err == nil})
}

// Index describes the index in service.
func (h *Handler) Index(c *gin.Context) {
	m, err := h.svc.Manifest(c.Request.Context())
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Upload ingests the uploaded documents, replacing the current corpus.
func (h *Handler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File[uploadField]) == 0 {
		sendError(c, fmt.Errorf("%w: no files uploaded", domain.ErrEmptyInput))
		return
	}
	files := form.File[uploadField]

	tmp, err := os.MkdirTemp("", "docqa-upload-*")
	if err != nil {
		sendError(c, err)
		return
	}
	defer os.RemoveAll(tmp)

	docs := make([]domain.Document, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if name == "." || name == string(filepath.Separator) {
			sendError(c, fmt.Errorf("%w: invalid file name %q", domain.ErrEmptyInput, fh.Filename))
			return
		}
		// documents are cited by base name, so two uploads cannot share one
		if seen[name] {
			sendError(c, fmt.Errorf("%w: duplicate file name %q", domain.ErrEmptyInput, name))
			return
		}
		seen[name] = true
		path := filepath.Join(tmp, name)
		if err := c.SaveUploadedFile(fh, path); err != nil {
			sendError(c, fmt.Errorf("saving %s: %w", name, err))
			return
		}
		docs = append(docs, domain.Document{Name: name, Path: path})
	}

	report, err := h.svc.Ingest(c.Request.Context(), docs)
	if err != nil {
		h.logger.Warn("upload ingest failed", zap.Error(err))
		sendError(c, err)
		return
	}
	h.keep(docs)

	c.JSON(http.StatusOK, gin.H{
		"message":   "PDFs uploaded successfully!",
		"build_id":  report.BuildID,
		"documents": report.Documents,
		"chunks":    report.Chunks,
		"failed":    report.Failed,
		"summary":   report.Summary,
	})
}

// keep copies ingested uploads into the uploads directory.
func (h *Handler) keep(docs []domain.Document) {
	if h.uploadsDir == "" {
		return
	}
	if err := os.MkdirAll(h.uploadsDir, 0o755); err != nil {
		h.logger.Warn("creating uploads dir", zap.Error(err))
		return
	}
	for _, d := range docs {
		if err := copyFile(d.Path, filepath.Join(h.uploadsDir, d.Name)); err != nil {
			h.logger.Warn("keeping upload", zap.String("document", d.Name), zap.Error(err))
		}
	}
}

type askRequest struct {
	Question string `json:"question"`
}

type example struct {
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Ask answers a question from the indexed documents.
func (h *Handler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Question == "" {
		sendError(c, fmt.Errorf("%w: question is required", domain.ErrEmptyInput))
		return
	}

	answer, err := h.svc.Ask(c.Request.Context(), req.Question)
	if err != nil {
		sendError(c, err)
		return
	}

	examples := make([]example, 0, len(answer.Sources))
	for _, s := range answer.Sources {
		examples = append(examples, example{
			Source:  s.Chunk.Source,
			Content: excerpt(s.Chunk.Text, excerptRunes),
			Score:   s.Score,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"response": answer.Text,
		"examples": examples,
		"trimmed":  answer.Trimmed,
	})
}

// GetHistory returns the session turns.
func (h *Handler) GetHistory(c *gin.Context) {
	turns := h.svc.History()
	if turns == nil {
		turns = []domain.Turn{}
	}
	c.JSON(http.StatusOK, gin.H{"chat_history": turns})
}

// ClearHistory forgets the session.
func (h *Handler) ClearHistory(c *gin.Context) {
	h.svc.ClearHistory()
	c.JSON(http.StatusOK, gin.H{"message": "Chat history cleared"})
}

type uploadedDocument struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// ListDocuments lists the documents kept from earlier uploads.
func (h *Handler) ListDocuments(c *gin.Context) {
	entries, err := os.ReadDir(h.uploadsDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		sendError(c, err)
		return
	}
	docs := []uploadedDocument{}
	for _, e := range entries {
		if e.IsDir() || !extractor.Supported(e.Name()) {
			continue
		}
		docs = append(docs, uploadedDocument{Text: e.Name(), URL: "/documents/" + e.Name()})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Text < docs[j].Text })
	c.JSON(http.StatusOK, gin.H{"uploaded_pdfs": docs})
}

// GetDocument serves one kept upload.
func (h *Handler) GetDocument(c *gin.Context) {
	path, err := h.documentPath(c.Param("name"))
	if err != nil {
		sendError(c, err)
		return
	}
	c.File(path)
}

// DeleteDocument removes one kept upload. The index is not rebuilt.
func (h *Handler) DeleteDocument(c *gin.Context) {
	name := c.Param("name")
	path, err := h.documentPath(name)
	if err != nil {
		sendError(c, err)
		return
	}
	if err := os.Remove(path); err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Document %s deleted successfully!", name)})
}

// documentPath resolves name inside the uploads directory and checks that
// the file exists.
func (h *Handler) documentPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == ".." {
		return "", fmt.Errorf("%w: invalid document name %q", domain.ErrEmptyInput, name)
	}
	path := filepath.Join(h.uploadsDir, name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("document %s: %w", name, os.ErrNotExist)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("document %s: %w", name, os.ErrNotExist)
	}
	return path, nil
}

func excerpt(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
