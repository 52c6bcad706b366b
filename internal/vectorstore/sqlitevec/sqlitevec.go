// Package sqlitevec provides an index backend on SQLite with the sqlite-vec extension.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

const dbFile = "index.db"

// maxKNN is the largest k sqlite-vec accepts in a vec0 KNN query.
const maxKNN = 4096

// Config holds configuration for the sqlite-vec backend.
type Config struct {
	// Root is the directory holding index generations.
	Root string
}

// Backend writes each build into a fresh SQLite database inside its own
// generation directory.
type Backend struct {
	gens   *vectorstore.Generations
	logger *zap.Logger
}

// NewBackend creates a sqlite-vec backend rooted at c.Root.
func NewBackend(c Config, logger *zap.Logger) (*Backend, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.Root == "" {
		return nil, fmt.Errorf("sqlite-vec root directory is required")
	}
	return &Backend{gens: vectorstore.NewGenerations(c.Root), logger: logger}, nil
}

// Name returns the identifier of this backend.
func (b *Backend) Name() string { return "sqlitevec" }

// Publish writes the snapshot into a staged generation and then points
// CURRENT at it.
func (b *Backend) Publish(ctx context.Context, snap vectorstore.Snapshot) error {
	if snap.Manifest.Dimension <= 0 {
		return fmt.Errorf("sqlite-vec embedding dimensions cannot be 0")
	}
	id := snap.Manifest.BuildID
	dir, err := b.gens.Stage(id)
	if err != nil {
		return err
	}
	if err := b.write(ctx, filepath.Join(dir, dbFile), snap); err != nil {
		b.gens.Discard(id)
		return err
	}
	if err := b.gens.Publish(snap.Manifest); err != nil {
		b.gens.Discard(id)
		return err
	}
	b.logger.Debug("sqlite-vec generation published",
		zap.String("build_id", id),
		zap.Int("count", len(snap.Chunks)),
	)
	return nil
}

func (b *Backend) write(ctx context.Context, path string, snap vectorstore.Snapshot) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	var vecVersion string
	if err := db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&vecVersion); err != nil {
		return fmt.Errorf("sqlite-vec not available: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE chunks (
			rowid INTEGER PRIMARY KEY,
			source TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating chunks table: %w", err)
	}
	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE chunk_embeddings USING vec0(embedding float[%d] distance_metric=cosine)`,
		snap.Manifest.Dimension,
	)
	if _, err := db.ExecContext(ctx, createVec); err != nil {
		return fmt.Errorf("creating vec0 table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for i, c := range snap.Chunks {
		// vec0 rowids start at 1
		rowID := int64(c.Ordinal) + 1
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks(rowid, source, chunk_index, text) VALUES (?, ?, ?, ?)`,
			rowID, c.Source, c.Index, c.Text,
		); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Ordinal, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunk_embeddings(rowid, embedding) VALUES (?, ?)`,
			rowID, serializeFloat32(snap.Vectors[i]),
		); err != nil {
			return fmt.Errorf("inserting embedding %d: %w", c.Ordinal, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	b.logger.Debug("wrote sqlite-vec database",
		zap.String("path", path),
		zap.String("vec_version", vecVersion),
	)
	return nil
}

// Open opens the current generation read-only.
func (b *Backend) Open(ctx context.Context) (vectorstore.Index, error) {
	dir, m, err := b.gens.Current()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(dir, dbFile)+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		db.Close()
		return nil, fmt.Errorf("reading generation %s: %w", m.BuildID, err)
	}
	return &Index{db: db, manifest: m, count: count}, nil
}

// Index is an open sqlite-vec generation.
type Index struct {
	db       *sql.DB
	manifest vectorstore.Manifest
	count    int
}

// Search runs a KNN query and converts cosine distance into similarity.
func (i *Index) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	blob := serializeFloat32(vector)
	return vectorstore.TopK(ctx, k, min(i.count, maxKNN), func(ctx context.Context, n int) ([]domain.SearchResult, error) {
		return i.knn(ctx, blob, n)
	})
}

func (i *Index) knn(ctx context.Context, blob []byte, n int) ([]domain.SearchResult, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT
			c.rowid,
			c.source,
			c.chunk_index,
			c.text,
			ce.distance
		FROM chunk_embeddings ce
		INNER JOIN chunks c ON c.rowid = ce.rowid
		WHERE ce.embedding MATCH ?
			AND ce.k = ?
		ORDER BY ce.distance
	`, blob, n)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var (
			rowID    int64
			chunk    domain.Chunk
			distance sql.NullFloat64
		)
		if err := rows.Scan(&rowID, &chunk.Source, &chunk.Index, &chunk.Text, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}
		chunk.Ordinal = int(rowID - 1)
		score := 0.0
		// zero vectors have no cosine distance and come back as NULL
		if distance.Valid && !math.IsNaN(distance.Float64) {
			score = 1 - distance.Float64
		}
		results = append(results, domain.SearchResult{Chunk: chunk, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}
	return results, nil
}

// Len returns the number of indexed chunks.
func (i *Index) Len() int { return i.count }

// Manifest describes the generation.
func (i *Index) Manifest() vectorstore.Manifest { return i.manifest }

// Close releases the database handle.
func (i *Index) Close() error { return i.db.Close() }

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
