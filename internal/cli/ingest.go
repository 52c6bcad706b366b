package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"docqa/internal/domain"
	"docqa/internal/logger"
)

const ingestLongDesc string = `Build the index from documents.

Paths may be files, directories or glob patterns. PDF, text and markdown files
are extracted, chunked and embedded, and the resulting index replaces the
previous one wholesale. If anything fails the previous index stays in use.

Example:
  docqa ingest report.pdf notes.txt
  docqa ingest "docs/*.pdf"
  docqa ingest docs/`

const ingestShortDesc string = "Build the index from documents"

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <paths...>",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGlobals(cmd)
			if err != nil {
				return err
			}
			log := logger.New(g.debug)
			defer func() { _ = log.Sync() }()

			a, err := build(cmd.Context(), g.cfg, false, log)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report, err := a.service.IngestPaths(cmd.Context(), args)
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func printReport(w io.Writer, r domain.IngestReport) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Indexed"), labelStyle.Render(r.BuildID))
	fmt.Fprintf(w, "  documents: %d\n", r.Documents)
	fmt.Fprintf(w, "  chunks:    %d\n", r.Chunks)
	if len(r.Failed) > 0 {
		fmt.Fprintf(w, "  %s %s\n", warnStyle.Render("failed:"), strings.Join(r.Failed, ", "))
	}
	if r.Summary != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", headerStyle.Render("Summary"), r.Summary)
	}
}
