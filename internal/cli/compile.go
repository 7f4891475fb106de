package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/qml/internal/compiler"
	"github.com/roach88/qml/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult is the JSON payload of compile.
type CompilationResult struct {
	Model  modelSummary    `json:"model"`
	Output string          `json:"output,omitempty"`
	IR     json.RawMessage `json:"ir,omitempty"` // set when no output file is given
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <model.qml>",
		Short: "Compile a model to canonical IR",
		Long: `Compile a model source file to its IR document.

The compiler lexes, parses and type-checks the model, validates the
provenance of every parameter and emits IR stamped with its content hash.
Any error aborts compilation; no partial IR is written.

With --db the compiled model is recorded in the audit store.

Examples:
  qml compile saas.qml -o saas.json
  qml compile saas.qml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	formatter.VerboseLog("Compiling %s", path)
	m, err := compiler.New().CompileFile(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "compilation failed", err)
	}

	data, err := ir.Marshal(m)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "marshal IR", err)
	}

	if opts.Output != "" {
		if err := writeFile(opts.Output, data); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "writing output file", err)
		}
	}

	if err := recordModel(cmd, opts.RootOptions, m); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "recording model", err)
	}

	result := CompilationResult{Model: summarize(m), Output: opts.Output}
	if formatter.Format == "json" {
		if opts.Output == "" {
			result.IR = json.RawMessage(data)
		}
		return formatter.Success(result)
	}

	// Human-readable text output
	fmt.Fprintf(formatter.Writer, "✓ Compiled %s\n", result.Model)
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote canonical IR to %s\n", opts.Output)
	}
	return nil
}

// recordModel saves m when --db is set.
func recordModel(cmd *cobra.Command, opts *RootOptions, m *ir.Model) error {
	st, err := openStore(opts)
	if err != nil || st == nil {
		return err
	}
	defer closeStore(st)
	_, err = st.SaveModel(cmd.Context(), m)
	return err
}
