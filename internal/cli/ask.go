package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"docqa/internal/logger"
	"docqa/internal/service"
)

const askLongDesc string = `Answer one question from the current index.

The index is the one built by the last ingest, which requires a persistent
vector store (chromem, sqlitevec or qdrant). Use --file to ingest documents
first in the same run.

Example:
  docqa ask "what does the contract say about termination?"
  docqa ask "who wrote it?" --file paper.pdf
  docqa ask "summarise chapter 2" --quiet`

const askShortDesc string = "Answer one question"

type askCommander struct {
	files []string
	quiet bool
}

func newAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: askShortDesc,
		Long:  askLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGlobals(cmd)
			if err != nil {
				return err
			}
			log := logger.New(g.debug)
			defer func() { _ = log.Sync() }()

			a, err := build(cmd.Context(), g.cfg, true, log)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if len(cmder.files) > 0 {
				if _, err := a.service.IngestPaths(cmd.Context(), cmder.files); err != nil {
					return fmt.Errorf("ingest failed: %w", err)
				}
			}

			answer, err := a.service.Ask(cmd.Context(), args[0])
			if err != nil {
				if service.IsNotReady(err) {
					return fmt.Errorf("%w (run docqa ingest first)", err)
				}
				return err
			}
			printAnswer(cmd.OutOrStdout(), answer, cmder.quiet)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&cmder.files, "file", "f", nil, "Documents to ingest before answering")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Print only the answer")

	return cmd
}

func printAnswer(w io.Writer, a service.Answer, quiet bool) {
	fmt.Fprintln(w, strings.TrimSpace(a.Text))
	if quiet {
		return
	}
	if len(a.Sources) > 0 {
		fmt.Fprintf(w, "\n%s\n", headerStyle.Render("Sources"))
		for i, s := range a.Sources {
			fmt.Fprintf(w, "  %d. %s %s\n", i+1, labelStyle.Render(s.Chunk.Source), scoreStyle.Render(fmt.Sprintf("(score %.3f)", s.Score)))
		}
	}
	if a.Trimmed {
		fmt.Fprintf(w, "\n%s\n", dimStyle.Render("Context was trimmed to fit the model budget."))
	}
}
