package cli

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docqa/internal/logger"
	"docqa/internal/service"
	"docqa/internal/tui"
)

const chatLongDesc string = `Chat with your documents in the terminal.

With paths, the documents are ingested first and their summary is shown
above the conversation. Without paths the current index is used.

Keys:
  enter        ask the question
  up/down      cycle through the sources of the last answer
  pgup/pgdown  scroll the answer
  ctrl+l       forget the conversation
  ctrl+c       quit

Logs would corrupt the screen, so they are discarded unless --log-file is set.

Example:
  docqa chat docs/
  docqa chat --log-file docqa.log`

const chatShortDesc string = "Chat with your documents in the terminal"

type chatCommander struct {
	logFile string
}

func newChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat [paths...]",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGlobals(cmd)
			if err != nil {
				return err
			}

			var out io.Writer = io.Discard
			if cmder.logFile != "" {
				f, err := os.OpenFile(cmder.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("opening log file: %w", err)
				}
				defer f.Close()
				out = f
			}
			log := logger.NewWithWriters(g.debug, out)
			defer func() { _ = log.Sync() }()

			a, err := build(cmd.Context(), g.cfg, true, log)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			summary := ""
			if len(args) > 0 {
				report, err := a.service.IngestPaths(cmd.Context(), args)
				if err != nil {
					return fmt.Errorf("ingest failed: %w", err)
				}
				summary = report.Summary
			} else if _, err := a.service.Manifest(cmd.Context()); err != nil {
				if service.IsNotReady(err) {
					return fmt.Errorf("%w (pass documents to ingest or run docqa ingest first)", err)
				}
				return err
			}

			m := tui.New(cmd.Context(), a.service, summary)
			if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run(); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Append logs to this file")

	return cmd
}
