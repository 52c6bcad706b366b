package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"docqa/internal/logger"
	"docqa/internal/watcher"
)

const watchLongDesc string = `Rebuild the index whenever a folder changes.

The folder is ingested once at start-up and again after every burst of
changes. Other docqa processes sharing the same persistent vector store pick
up each new build on their next start.

Example:
  docqa watch docs/
  docqa watch docs/ --debounce 10s`

const watchShortDesc string = "Rebuild the index whenever a folder changes"

func newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: watchShortDesc,
		Long:  watchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGlobals(cmd)
			if err != nil {
				return err
			}
			log := logger.New(g.debug)
			defer func() { _ = log.Sync() }()

			if g.cfg.VectorStore.Type == "memory" {
				log.Warn("memory vector store is not shared between processes; builds are only visible to this one")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := build(ctx, g.cfg, false, log)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			w, err := watcher.New(watcher.Config{
				Dir:           args[0],
				Debounce:      debounce,
				InitialIngest: true,
			}, a.service, log)
			if err != nil {
				return fmt.Errorf("watcher: %w", err)
			}
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce, "Quiet period after the last change before re-ingesting")

	return cmd
}
