package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/qml/internal/calibrate"
	"github.com/roach88/qml/internal/engine"
	"github.com/roach88/qml/internal/ir"
)

// CalibrateOptions holds flags for the calibrate command.
type CalibrateOptions struct {
	*RootOptions
	Config  string // calibration config YAML
	Data    string // CSV path overriding the config's csv_path
	Output  string // calibrated IR path
	Report  string // Markdown report path
	Workers int

	// RunIDs allows overriding the run id generator (for testing).
	RunIDs engine.RunIDGenerator
}

// NewCalibrateCommand creates the calibrate command.
func NewCalibrateCommand(rootOpts *RootOptions) *cobra.Command {
	return newCalibrateCommand(&CalibrateOptions{RootOptions: rootOpts})
}

func newCalibrateCommand(opts *CalibrateOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate <model> --config <config.yaml>",
		Short: "Fit parameters to observed data",
		Long: `Fit model parameters to observed data by maximum likelihood.

Each configured parameter is cleaned, fitted to its distribution family,
given bootstrap confidence intervals and a goodness-of-fit assessment.
A parameter that cannot be fitted keeps its prior definition and is
reported with its error; the others are still calibrated. The calibrated
model is new IR with its own hash, derived from the source model.

With --db the source model, the calibrated model and the calibration
report are recorded in the audit store.

Exit codes:
  0 - Every parameter was fitted
  1 - At least one parameter could not be fitted
  2 - Command error (bad model, config or data)

Examples:
  qml calibrate saas.qml --config calibration.yaml -o saas.calibrated.json
  qml calibrate saas.qml --config calibration.yaml --report report.md`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalibrate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "calibration config YAML (required)")
	cmd.Flags().StringVar(&opts.Data, "data", "", "CSV file overriding csv_path")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the calibrated IR to a file")
	cmd.Flags().StringVar(&opts.Report, "report", "", "write a Markdown report to a file")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "parameters fitted concurrently (default GOMAXPROCS)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runCalibrate(opts *CalibrateOptions, ref string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ctx, cancel := signalContext(cmd)
	defer cancel()

	cfg, err := calibrate.LoadConfig(opts.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid calibration config", err)
	}
	csvPath := cfg.CSVFile()
	if opts.Data != "" {
		csvPath = opts.Data
	}
	formatter.VerboseLog("Reading data from %s", csvPath)
	data, err := calibrate.ReadCSVFile(csvPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "failed to read data", err)
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer closeStore(st)

	m, err := loadModel(ctx, ref, st)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "failed to load model", err)
	}

	calOpts := []calibrate.Option{calibrate.WithWorkers(opts.Workers)}
	if opts.RunIDs != nil {
		calOpts = append(calOpts, calibrate.WithRunIDGenerator(opts.RunIDs))
	}
	rep, err := calibrate.New(calOpts...).Calibrate(ctx, m, data, cfg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "calibration failed", err)
	}

	if st != nil {
		if _, err := st.SaveCalibration(ctx, m, rep); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "recording calibration", err)
		}
	}

	if opts.Output != "" {
		irData, err := ir.Marshal(rep.Model)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "marshal IR", err)
		}
		if err := writeFile(opts.Output, irData); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "writing output file", err)
		}
	}
	if opts.Report != "" {
		if err := writeFile(opts.Report, []byte(rep.Markdown())); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "writing report", err)
		}
	}

	if formatter.Format == "json" {
		if err := formatter.Success(rep); err != nil {
			return err
		}
	} else {
		fmt.Fprint(formatter.Writer, rep.Markdown())
	}

	if failed := rep.Failed(); len(failed) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d parameter(s) not fitted: %s", len(failed), strings.Join(failed, ", ")))
	}
	return nil
}
