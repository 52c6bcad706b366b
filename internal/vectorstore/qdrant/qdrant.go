// Package qdrant provides an index backend on a Qdrant server over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

const upsertBatch = 256

// Config holds configuration for the Qdrant backend.
type Config struct {
	URL    string
	APIKey string
	// Collection is the alias searches go through. Every build lives in its
	// own collection named <Collection>_<build id>.
	Collection string
	Timeout    time.Duration
}

// Storage is a minimal REST client to Qdrant. Builds are published by
// moving an alias, which Qdrant applies atomically.
type Storage struct {
	url    string
	apiKey string
	alias  string
	client *http.Client
	logger *zap.Logger
}

// NewStorage creates a Qdrant backend.
func NewStorage(cfg Config, logger *zap.Logger) (*Storage, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant url is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		alias:  cfg.Collection,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// Name returns the identifier of this backend.
func (s *Storage) Name() string { return "qdrant" }

// Publish uploads the snapshot into a new collection and moves the alias to
// it. The collection the alias pointed at before is kept until the next
// publish so in-flight searches on it can finish.
func (s *Storage) Publish(ctx context.Context, snap vectorstore.Snapshot) error {
	if len(snap.Chunks) != len(snap.Vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	target := s.alias + "_" + snap.Manifest.BuildID

	body := map[string]any{
		"vectors": map[string]any{
			"size":     snap.Manifest.Dimension,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, "/collections/"+target, body, nil); err != nil {
		return fmt.Errorf("creating collection %s: %w", target, err)
	}
	if err := s.upsert(ctx, target, snap); err != nil {
		s.drop(ctx, target)
		return err
	}

	previous, err := s.aliasTarget(ctx)
	if err != nil && !errors.Is(err, domain.ErrIndexNotFound) {
		s.drop(ctx, target)
		return err
	}
	var actions []map[string]any
	if previous != "" {
		actions = append(actions, map[string]any{
			"delete_alias": map[string]any{"alias_name": s.alias},
		})
	}
	actions = append(actions, map[string]any{
		"create_alias": map[string]any{"collection_name": target, "alias_name": s.alias},
	})
	if err := s.do(ctx, http.MethodPost, "/collections/aliases", map[string]any{"actions": actions}, nil); err != nil {
		s.drop(ctx, target)
		return fmt.Errorf("switching alias %s: %w", s.alias, err)
	}

	s.prune(ctx, target, previous)
	s.logger.Debug("qdrant collection published",
		zap.String("collection", target),
		zap.String("alias", s.alias),
		zap.Int("count", len(snap.Chunks)),
	)
	return nil
}

func (s *Storage) upsert(ctx context.Context, collection string, snap vectorstore.Snapshot) error {
	m := snap.Manifest
	for lo := 0; lo < len(snap.Chunks); lo += upsertBatch {
		hi := min(lo+upsertBatch, len(snap.Chunks))
		points := make([]map[string]any, 0, hi-lo)
		for i := lo; i < hi; i++ {
			c := snap.Chunks[i]
			points = append(points, map[string]any{
				"id":     c.Ordinal,
				"vector": snap.Vectors[i],
				"payload": map[string]any{
					"text":       c.Text,
					"source":     c.Source,
					"index":      c.Index,
					"ordinal":    c.Ordinal,
					"build_id":   m.BuildID,
					"embedder":   m.Embedder,
					"created_at": m.CreatedAt.Format(time.RFC3339Nano),
				},
			})
		}
		path := "/collections/" + collection + "/points?wait=true"
		if err := s.do(ctx, http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
			return fmt.Errorf("upserting points into %s: %w", collection, err)
		}
	}
	return nil
}

// Open resolves the alias and pins the returned index to the collection it
// currently points at.
func (s *Storage) Open(ctx context.Context) (vectorstore.Index, error) {
	target, err := s.aliasTarget(ctx)
	if err != nil {
		return nil, err
	}

	var info struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, "/collections/"+target, nil, &info); err != nil {
		return nil, fmt.Errorf("reading collection %s: %w", target, err)
	}

	var scroll struct {
		Result struct {
			Points []struct {
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	req := map[string]any{"limit": 1, "with_payload": true, "with_vector": false}
	if err := s.do(ctx, http.MethodPost, "/collections/"+target+"/points/scroll", req, &scroll); err != nil {
		return nil, fmt.Errorf("reading collection %s: %w", target, err)
	}
	if len(scroll.Result.Points) == 0 {
		return nil, fmt.Errorf("collection %s is empty", target)
	}
	payload := scroll.Result.Points[0].Payload

	m := vectorstore.Manifest{
		Dimension: info.Result.Config.Params.Vectors.Size,
		Chunks:    info.Result.PointsCount,
	}
	m.BuildID, _ = payload["build_id"].(string)
	m.Embedder, _ = payload["embedder"].(string)
	if v, ok := payload["created_at"].(string); ok {
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	return &Index{storage: s, collection: target, manifest: m}, nil
}

// aliasTarget returns the collection the alias points at.
func (s *Storage) aliasTarget(ctx context.Context) (string, error) {
	var resp struct {
		Result struct {
			Aliases []struct {
				AliasName      string `json:"alias_name"`
				CollectionName string `json:"collection_name"`
			} `json:"aliases"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, "/aliases", nil, &resp); err != nil {
		return "", fmt.Errorf("listing aliases: %w", err)
	}
	for _, a := range resp.Result.Aliases {
		if a.AliasName == s.alias {
			return a.CollectionName, nil
		}
	}
	return "", domain.ErrIndexNotFound
}

// prune drops every build collection except the ones named.
func (s *Storage) prune(ctx context.Context, keep ...string) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		s.logger.Warn("listing qdrant collections", zap.Error(err))
		return
	}
	for _, c := range resp.Result.Collections {
		if !strings.HasPrefix(c.Name, s.alias+"_") || contains(keep, c.Name) {
			continue
		}
		s.drop(ctx, c.Name)
	}
}

func (s *Storage) drop(ctx context.Context, collection string) {
	if err := s.do(ctx, http.MethodDelete, "/collections/"+collection, nil, nil); err != nil {
		s.logger.Warn("dropping qdrant collection",
			zap.String("collection", collection),
			zap.Error(err),
		)
	}
}

func (s *Storage) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, path, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v != "" && v == s {
			return true
		}
	}
	return false
}

// Index is one published Qdrant collection.
type Index struct {
	storage    *Storage
	collection string
	manifest   vectorstore.Manifest
}

// Search runs a nearest-neighbour query against the pinned collection.
func (i *Index) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	return vectorstore.TopK(ctx, k, i.manifest.Chunks, func(ctx context.Context, n int) ([]domain.SearchResult, error) {
		return i.search(ctx, vector, n)
	})
}

func (i *Index) search(ctx context.Context, vector []float32, limit int) ([]domain.SearchResult, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := i.storage.do(ctx, http.MethodPost, "/collections/"+i.collection+"/points/search", req, &resp); err != nil {
		return nil, fmt.Errorf("searching %s: %w", i.collection, err)
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		chunk := domain.Chunk{}
		if v, ok := r.Payload["text"].(string); ok {
			chunk.Text = v
		}
		if v, ok := r.Payload["source"].(string); ok {
			chunk.Source = v
		}
		if v, ok := r.Payload["index"].(float64); ok {
			chunk.Index = int(v)
		}
		if v, ok := r.Payload["ordinal"].(float64); ok {
			chunk.Ordinal = int(v)
		}
		results = append(results, domain.SearchResult{Chunk: chunk, Score: r.Score})
	}
	return results, nil
}

// Len returns the number of points in the collection.
func (i *Index) Len() int { return i.manifest.Chunks }

// Manifest describes the collection.
func (i *Index) Manifest() vectorstore.Manifest { return i.manifest }

// Close is a no-op; the HTTP client is shared with the backend.
func (i *Index) Close() error { return nil }
