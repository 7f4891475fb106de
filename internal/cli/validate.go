package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool          `json:"valid"`
	Model *modelSummary `json:"model,omitempty"`
	Error *CLIError     `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <model.qml|model.json>",
		Short: "Check a model without writing IR",
		Long: `Validate a model source or a compiled IR document.

Sources run through the whole compiler without writing output. IR
documents are checked against the IR schema, the model invariants and
their content hash, so an edited IR file is rejected.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	formatter.VerboseLog("Validating %s", path)
	m, err := loadModelFile(path)
	if err != nil {
		e := describe(err, ErrCodeGeneric)
		if formatter.Format == "json" {
			if encErr := encode(formatter.Writer, CLIResponse{
				Status: "error",
				Data:   ValidationResult{Valid: false, Error: e},
				Error:  e,
			}); encErr != nil {
				return encErr
			}
		} else {
			fmt.Fprintln(formatter.Writer, "✗ Validation failed")
			_ = formatter.Error(e)
		}
		return WrapExitError(ExitFailure, "validation failed", err)
	}

	summary := summarize(m)
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Model: &summary})
	}
	fmt.Fprintf(formatter.Writer, "✓ Valid: %s\n", summary)
	return nil
}
