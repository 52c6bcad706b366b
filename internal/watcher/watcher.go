// Package watcher re-ingests a document folder whenever its contents change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/extractor"
)

// DefaultDebounce is the quiet period after the last change before a rebuild.
const DefaultDebounce = 2 * time.Second

// Ingester rebuilds the index from a set of paths.
type Ingester interface {
	IngestPaths(ctx context.Context, paths []string) (domain.IngestReport, error)
}

// Config holds configuration for the Watcher.
type Config struct {
	// Dir is the folder to watch. Subdirectories are not watched.
	Dir string

	// Debounce defaults to DefaultDebounce if zero.
	Debounce time.Duration

	// InitialIngest ingests the folder once before waiting for changes.
	InitialIngest bool
}

// Watcher turns bursts of file events into whole-folder rebuilds.
type Watcher struct {
	dir      string
	debounce time.Duration
	initial  bool
	ingester Ingester
	logger   *zap.Logger
}

// New creates a Watcher.
func New(c Config, ingester Ingester, logger *zap.Logger) (*Watcher, error) {
	if c.Dir == "" {
		return nil, errors.New("watch directory is required")
	}
	debounce := c.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      c.Dir,
		debounce: debounce,
		initial:  c.InitialIngest,
		ingester: ingester,
		logger:   logger,
	}, nil
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching folder", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))

	if w.initial {
		w.rebuild(ctx)
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("folder changed",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()),
			)
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			w.rebuild(ctx)
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if !extractor.Supported(event.Name) {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

// rebuild ingests the whole folder. Failures are logged and the previous
// index stays in service.
func (w *Watcher) rebuild(ctx context.Context) {
	report, err := w.ingester.IngestPaths(ctx, []string{w.dir})
	switch {
	case errors.Is(err, domain.ErrEmptyInput):
		w.logger.Info("folder has no documents, keeping the current index", zap.String("dir", w.dir))
	case err != nil:
		w.logger.Error("re-ingesting folder", zap.String("dir", w.dir), zap.Error(err))
	default:
		w.logger.Info("folder re-ingested",
			zap.String("build_id", report.BuildID),
			zap.Int("documents", report.Documents),
			zap.Int("chunks", report.Chunks),
		)
	}
}
