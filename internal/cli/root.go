// Package cli provides the docqa command tree.
package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"docqa/internal/config"
)

const rootLongDesc string = `docqa answers questions about your documents.

PDF and text files are split into chunks, embedded and indexed. Questions are
answered by a language model from the most similar chunks and the
conversation so far.

Run it using:
  docqa ingest docs/*.pdf          Build the index from documents
  docqa ask "what is X?"           Answer one question from the index
  docqa chat docs/                 Ingest, then chat in the terminal
  docqa serve --watch uploads/     Run the HTTP API
  docqa watch docs/                Rebuild the index when a folder changes`

const rootShortDesc string = "docqa - question answering over documents"

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// NewRootCmd builds the docqa command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "docqa",
		Short:        rootShortDesc,
		Long:         rootLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to YAML config file (default ./config.yaml or ~/.config/docqa/config.yaml)")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

// globals are the persistent flags every subcommand reads.
type globals struct {
	debug bool
	cfg   *config.AppConfig
}

func loadGlobals(cmd *cobra.Command) (globals, error) {
	debug, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return globals{}, fmt.Errorf("could not get debug flag: %w", err)
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return globals{}, fmt.Errorf("could not get config flag: %w", err)
	}

	var cfg *config.AppConfig
	if path == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return globals{}, fmt.Errorf("loading config: %w", err)
	}
	return globals{debug: debug, cfg: cfg}, nil
}
