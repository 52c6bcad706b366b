package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docqa/internal/logger"
	"docqa/internal/server"
	"docqa/internal/watcher"
)

const serveLongDesc string = `Run the HTTP API.

Endpoints:
  GET    /healthz              liveness and index status
  GET    /index                manifest of the index in service
  POST   /upload               multipart "pdfs" files, rebuilds the index
  POST   /ask                  {"question": "..."} answered from the index
  GET    /history              conversation so far
  DELETE /history              forget the conversation
  GET    /documents            documents kept from the last upload
  GET    /documents/:name      download a kept document
  DELETE /documents/:name      remove a kept document

With --watch, the given folder is also re-ingested whenever it changes.

Example:
  docqa serve
  docqa serve --listen :8080 --watch uploads/pdfs`

const serveShortDesc string = "Run the HTTP API"

type serveCommander struct {
	listen   string
	watchDir string
	debounce time.Duration
}

func newServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := loadGlobals(cmd)
			if err != nil {
				return err
			}
			if cmder.listen == "" {
				cmder.listen = g.cfg.Server.Listen
			}

			log := logger.New(g.debug)
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := build(ctx, g.cfg, true, log)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			handler := server.NewHandler(a.service, g.cfg.Server.UploadsDir, log)
			engine := server.NewEngine(handler, log)

			var w *watcher.Watcher
			if cmder.watchDir != "" {
				w, err = watcher.New(watcher.Config{
					Dir:           cmder.watchDir,
					Debounce:      cmder.debounce,
					InitialIngest: true,
				}, a.service, log)
				if err != nil {
					return fmt.Errorf("watcher: %w", err)
				}
			}

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return server.Run(ctx, cmder.listen, engine, log)
			})
			if w != nil {
				eg.Go(func() error {
					if err := w.Run(ctx); err != nil && ctx.Err() == nil {
						return err
					}
					return nil
				})
			}
			return eg.Wait()
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (default from config, :5000)")
	cmd.Flags().StringVarP(&cmder.watchDir, "watch", "w", "", "Folder to re-ingest whenever it changes")
	cmd.Flags().DurationVar(&cmder.debounce, "debounce", watcher.DefaultDebounce, "Quiet period after the last change before re-ingesting")

	return cmd
}
