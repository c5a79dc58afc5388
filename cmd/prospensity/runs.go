package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/letstravel/prospensity/journal"
	perrors "github.com/letstravel/prospensity/pkg/errors"
)

func (c *cli) newRunsCommand() *cobra.Command {
	var limit int
	var best string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded training runs",
		Args:  cobra.NoArgs,
		Example: `  prospensity runs --limit 5
  prospensity runs --best f1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.JournalPath == "" {
				return perrors.NewValidationError("journal_path", "run journal is disabled", "")
			}
			j, err := journal.Open(c.cfg.JournalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			var runs []*journal.Run
			if best != "" {
				r, ok, err := j.Best(cmd.Context(), best)
				if err != nil {
					return err
				}
				if ok {
					runs = append(runs, r)
				}
			} else {
				runs, err = j.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
			}
			writeRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list, newest first")
	cmd.Flags().StringVar(&best, "best", "", "Show only the best successful run by metric (accuracy, f1, auc)")
	return cmd
}

func writeRuns(w io.Writer, runs []*journal.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tROWS\tACCURACY\tF1\tAUC\tDETAIL")
	for _, r := range runs {
		acc, f1, auc := "-", "-", "-"
		if r.Metrics != nil {
			acc = fmt.Sprintf("%.4f", r.Metrics.Accuracy)
			f1 = fmt.Sprintf("%.4f", r.Metrics.F1)
			auc = fmt.Sprintf("%.4f", r.Metrics.AUC)
		}
		detail := r.Artifact
		if r.Status == journal.StatusFailed {
			detail = r.Stage + ": " + r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Status, r.CleanRows, acc, f1, auc, detail)
	}
	tw.Flush()
}
