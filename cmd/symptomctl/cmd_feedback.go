package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/symptom-likelihood-server/internal/feedback"
	"github.com/symptom-likelihood-server/internal/service"
)

type feedbackFlags struct {
	dbPath string
}

func newFeedbackCmd(g *globalFlags) *cobra.Command {
	ff := &feedbackFlags{}
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Inspect and transfer the local feedback database",
	}
	cmd.PersistentFlags().StringVar(&ff.dbPath, "db", liteConfig().FeedbackDBPath(), "Path to the feedback SQLite database")

	cmd.AddCommand(newFeedbackListCmd(g, ff))
	cmd.AddCommand(newFeedbackExportCmd(g, ff))
	cmd.AddCommand(newFeedbackImportCmd(g, ff))
	return cmd
}

func (ff *feedbackFlags) open(cmd *cobra.Command, g *globalFlags) (*service.FeedbackService, func(), error) {
	ds, err := g.loadDataset(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(ff.dbPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}
	store, err := feedback.NewSQLiteStore(ff.dbPath)
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewFeedbackService(g.logger(cmd.ErrOrStderr()), ds, store)
	return svc, func() { store.Close() }, nil
}

func newFeedbackListCmd(g *globalFlags, ff *feedbackFlags) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored feedback, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := ff.open(cmd, g)
			if err != nil {
				return err
			}
			defer closeFn()

			page, err := svc.List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSELECTION\tSUGGESTED\tCONFIRMED\tAGREED")
			for _, fb := range page.Feedback {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\n",
					fb.ID, fb.SelectionKey, fb.SuggestedCondition, fb.ConfirmedCondition, fb.UserAgreed)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d entries\n", len(page.Feedback), page.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries to show (default 50)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Entries to skip")
	return cmd
}

func newFeedbackExportCmd(g *globalFlags, ff *feedbackFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all feedback as a JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := ff.open(cmd, g)
			if err != nil {
				return err
			}
			defer closeFn()

			if output != "" && output != "-" {
				return svc.ExportFile(cmd.Context(), output)
			}
			return svc.Export(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func newFeedbackImportCmd(g *globalFlags, ff *feedbackFlags) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load feedback from a JSON export, skipping existing and invalid entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := ff.open(cmd, g)
			if err != nil {
				return err
			}
			defer closeFn()

			var r io.Reader = cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("open import file: %w", err)
				}
				defer f.Close()
				r = f
			}

			summary, err := svc.Import(cmd.Context(), r)
			if err != nil {
				return err
			}
			for _, rej := range summary.Rejected {
				fmt.Fprintf(cmd.ErrOrStderr(), "rejected entry %d: %s\n", rej.Index, rej.Reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries (%d skipped, %d rejected)\n",
				summary.Imported, summary.Skipped, len(summary.Rejected))
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "file", "f", "", "Read from file instead of stdin")
	return cmd
}
