package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/qml/internal/calibrate"
)

// DriftOptions holds flags for the drift command.
type DriftOptions struct {
	*RootOptions
	Observed      string
	Predicted     string
	K             float64
	H             float64
	MAPEThreshold float64
	Baseline      int
	MinSamples    int
}

// NewDriftCommand creates the drift command.
func NewDriftCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DriftOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "drift <data.csv> --observed <col> --predicted <col>",
		Short: "Detect drift between observations and predictions",
		Long: `Compare an observed column with a predicted column.

Reports the mean absolute percentage error against a threshold and runs a
two-sided CUSUM over the residuals, scaled by the standard deviation of
the baseline window, to locate the first change point. Rows with a
missing value in either column are skipped.

Exit codes:
  0 - No drift detected
  1 - MAPE threshold exceeded or a change point was found
  2 - Command error (missing file, unknown column, too few rows)

Example:
  qml drift actuals.csv --observed revenue --predicted forecast`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrift(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Observed, "observed", "", "observed column (required)")
	cmd.Flags().StringVar(&opts.Predicted, "predicted", "", "predicted column (required)")
	cmd.Flags().Float64Var(&opts.K, "cusum-k", calibrate.DefaultCUSUMK, "CUSUM allowance in baseline standard deviations")
	cmd.Flags().Float64Var(&opts.H, "cusum-h", calibrate.DefaultCUSUMH, "CUSUM decision threshold")
	cmd.Flags().Float64Var(&opts.MAPEThreshold, "mape-threshold", calibrate.DefaultMAPEThreshold, "MAPE threshold as a fraction")
	cmd.Flags().IntVar(&opts.Baseline, "baseline", 0, "rows used to estimate the residual scale (default half)")
	cmd.Flags().IntVar(&opts.MinSamples, "min-samples", calibrate.DefaultMinSamples, "minimum usable rows")
	_ = cmd.MarkFlagRequired("observed")
	_ = cmd.MarkFlagRequired("predicted")

	return cmd
}

func runDrift(opts *DriftOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	data, err := calibrate.ReadCSVFile(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "failed to read data", err)
	}
	dc := &calibrate.DriftConfig{
		Observed:      opts.Observed,
		Predicted:     opts.Predicted,
		CUSUMK:        opts.K,
		CUSUMH:        opts.H,
		MAPEThreshold: opts.MAPEThreshold,
		Baseline:      opts.Baseline,
	}
	rep, err := calibrate.DriftFromTable(data, dc, opts.MinSamples)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "drift check failed", err)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(rep); err != nil {
			return err
		}
	} else {
		writeDriftText(formatter, rep, opts)
	}

	if rep.Drifted() {
		return NewExitError(ExitFailure, "drift detected")
	}
	return nil
}

func writeDriftText(f *OutputFormatter, rep *calibrate.DriftReport, opts *DriftOptions) {
	w := f.Writer
	mark := "✓"
	if rep.Drifted() {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s vs %s over %d rows\n", mark, opts.Observed, opts.Predicted, rep.N)
	fmt.Fprintf(w, "  MAPE: %.2f%% (threshold %.2f%%)", rep.MAPE*100, opts.MAPEThreshold*100)
	if rep.MAPEExceeded {
		fmt.Fprint(w, " exceeded")
	}
	fmt.Fprintln(w)
	if rep.ChangePoint >= 0 {
		fmt.Fprintf(w, "  change point: row %d, drifting %s\n", rep.ChangePoint, rep.Direction)
	} else {
		fmt.Fprintln(w, "  change point: none")
	}
	f.VerboseLog("residual scale %s", num(rep.Scale))
}
