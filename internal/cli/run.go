package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/qml/internal/engine"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Mode          string
	Samples       int
	Seed          uint64
	Workers       int
	MaxViolations int
	Output        string

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// maxListedViolations bounds the violations printed in text mode.
const maxListedViolations = 10

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <model>",
		Short: "Execute a model",
		Long: `Execute a model deterministically or by Monte Carlo sampling.

The model is a .qml source, a compiled .json IR document, or, with --db,
a hash prefix or model name recorded in the audit store.

Deterministic mode collapses every distribution to its central value and
runs once. Monte Carlo mode runs --samples independently seeded samples;
results depend only on the model, --seed and --samples, never on --workers.
Without --seed a random seed is drawn and reported in the result.

Exit codes:
  0 - Run succeeded
  1 - A fatal constraint halted at least one sample
  2 - Command error (bad model, runtime error, etc.)

Examples:
  qml run saas.qml
  qml run saas.qml --mode monte_carlo --samples 10000 --seed 42
  qml run --db audit.db Saas --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModel(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", string(engine.Deterministic), "execution mode (deterministic|monte_carlo)")
	cmd.Flags().IntVar(&opts.Samples, "samples", engine.DefaultSamples, "Monte Carlo sample count")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "Monte Carlo master seed (random when unset)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent samples (default GOMAXPROCS)")
	cmd.Flags().IntVar(&opts.MaxViolations, "max-violations", engine.DefaultMaxViolations, "violations listed individually in the result")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the result JSON to a file")

	return cmd
}

func runModel(opts *RunOptions, ref string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	mode := engine.Mode(opts.Mode)
	if mode != engine.Deterministic && mode != engine.MonteCarlo {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, "invalid mode",
			fmt.Errorf("unknown mode %q: must be deterministic or monte_carlo", opts.Mode))
	}
	seed := opts.Seed
	if mode == engine.MonteCarlo && !cmd.Flags().Changed("seed") {
		seed = rand.Uint64()
		slog.Info("no seed given, drew one", "seed", seed)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer closeStore(st)

	m, err := loadModel(ctx, ref, st)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "failed to load model", err)
	}

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	eng, err := engine.New(m,
		engine.WithSamples(opts.Samples),
		engine.WithSeed(seed),
		engine.WithWorkers(opts.Workers),
		engine.WithMaxViolations(opts.MaxViolations),
		engine.WithRunIDGenerator(runIDs),
	)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to prepare model", err)
	}

	res, err := eng.Run(ctx, mode)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "run failed", err)
	}

	if st != nil {
		rec, err := st.SaveRun(ctx, m, res)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "recording run", err)
		}
		slog.Debug("run recorded", "run_id", rec.ID, "seq", rec.Seq)
	}

	if opts.Output != "" {
		var buf bytes.Buffer
		if err := encode(&buf, res); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "marshal result", err)
		}
		if err := writeFile(opts.Output, buf.Bytes()); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "writing output file", err)
		}
	}

	if formatter.Format == "json" {
		if err := formatter.Success(res); err != nil {
			return err
		}
	} else {
		writeRunText(formatter.Writer, res)
	}

	if res.Status == engine.StatusConstraintViolation {
		return NewExitError(ExitFailure, fmt.Sprintf("%d sample(s) halted by a fatal constraint", res.HaltedSamples))
	}
	return nil
}

// signalContext derives a context cancelled by SIGINT or SIGTERM. The
// engine checks it between samples.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// writeRunText prints a run summary: final values for deterministic runs,
// final-step statistics for Monte Carlo runs.
func writeRunText(w io.Writer, res *engine.Result) {
	mark := "✓"
	if res.Status != engine.StatusSuccess {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s: %s (%s", mark, res.ModelName, res.Status, res.Mode)
	if res.Seed != nil {
		fmt.Fprintf(w, ", %d samples, seed %d", res.Samples, *res.Seed)
	}
	fmt.Fprintln(w, ")")
	fmt.Fprintf(w, "run %s, model %s\n", res.RunID, shortHash(res.ModelHash))

	fmt.Fprintln(w, "\nVariables:")
	for _, v := range res.Variables {
		fmt.Fprintf(w, "  %s\n", describeVariable(v))
	}

	if len(res.ConstraintSummary) > 0 {
		fmt.Fprintln(w, "\nConstraints:")
		for _, s := range res.ConstraintSummary {
			fmt.Fprintf(w, "  %s (%s): %d violation(s), %d sample(s), rate %s\n",
				s.Constraint, s.Severity, s.Violations, s.ViolatingSamples, num(s.ViolationRate))
		}
	}

	for i, v := range res.ConstraintViolations {
		if i == maxListedViolations {
			fmt.Fprintf(w, "  ... %d more\n", len(res.ConstraintViolations)-i+res.ViolationsTruncated)
			break
		}
		fmt.Fprintf(w, "  t=%d sample=%d %s: %s\n", v.T, v.Sample, v.Constraint, v.Message)
	}
}

func describeVariable(v engine.Variable) string {
	switch {
	case v.Value != nil:
		return fmt.Sprintf("%s = %s", v.Name, num(*v.Value))
	case len(v.TimeSeries) > 0:
		last := len(v.TimeSeries) - 1
		return fmt.Sprintf("%s[%d] = %s", v.Name, last, num(v.TimeSeries[last]))
	case v.Summary != nil:
		return fmt.Sprintf("%s: %s", v.Name, describeStats(v.Summary))
	}
	for t := len(v.Statistics) - 1; t >= 0; t-- {
		if s := v.Statistics[t]; s != nil {
			return fmt.Sprintf("%s[%d]: %s", v.Name, t, describeStats(s))
		}
	}
	return v.Name + ": no values"
}

func describeStats(s *engine.Stats) string {
	return fmt.Sprintf("median %s, p5 %s, p95 %s, mean %s, n %d",
		num(s.Median), num(s.P5), num(s.P95), num(s.Mean), s.N)
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}
