package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/qml/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Model   string
	Limit   int
	Lineage string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history --db <path>",
		Short: "Show recorded models, runs and calibrations",
		Long: `List the audit store in the order entries were recorded.

Every compiled model, run and calibration recorded with --db gets a
sequence number shared across all three, so the listing interleaves them
exactly as they happened.

With --lineage the command instead follows a model back through the
calibrations it was derived from.

Examples:
  qml history --db audit.db
  qml history --db audit.db --model Saas --limit 20
  qml history --db audit.db --lineage 3fa2b9`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Model, "model", "", "only entries of this model name or hash")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "show only the most recent entries")
	cmd.Flags().StringVar(&opts.Lineage, "lineage", "", "show the calibration lineage of a model reference")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.Database == "" {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, "missing database",
			errors.New("history requires --db"))
	}
	st, err := openStore(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer closeStore(st)

	ctx := cmd.Context()
	if opts.Lineage != "" {
		rec, err := st.FindModel(ctx, opts.Lineage)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, "model not found", err)
		}
		chain, err := st.Lineage(ctx, rec.Hash)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "reading lineage", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(chain)
		}
		for i, m := range chain {
			fmt.Fprintf(formatter.Writer, "%*s%s %s (seq %d, %s)\n",
				2*i, "", shortHash(m.Hash), m.Name, m.Seq, m.CreatedAt.Format(time.RFC3339))
		}
		return nil
	}

	entries, err := st.History(ctx, store.HistoryFilter{Model: opts.Model, Limit: opts.Limit})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "reading history", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(formatter.Writer, "No history recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tKIND\tID\tMODEL\tDETAIL\tRECORDED")
	for _, e := range entries {
		id := e.ID
		if e.Kind == store.KindModel {
			id = shortHash(id)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Seq, e.Kind, id, e.ModelName, e.Detail, e.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
