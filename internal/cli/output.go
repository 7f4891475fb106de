package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The command ran but its subject failed (constraint violation, drift, failed scenarios, failed fits)
	ExitCommandError = 2 // Command error (bad model, missing file, database error, etc.)
)

// CLI error codes for failures that carry no toolchain code.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E005" // Path or store reference not found
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeStore       = "E008" // Audit store error
	ErrCodeUsage       = "E009" // Invalid flag combination
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the machine-readable form of every toolchain error.
type CLIError struct {
	Kind     string `json:"kind"`
	Code     string `json:"code"`
	Location string `json:"location,omitempty"`
	Message  string `json:"message"`
}

// codedError is implemented by every error kind the toolchain reports.
type codedError interface {
	error
	Kind() string
	ErrorCode() string
}

type locatedError interface {
	Location() string
}

// describe converts err into a CLIError. Uncoded errors get the fallback
// code.
func describe(err error, fallback string) *CLIError {
	var ce codedError
	if errors.As(err, &ce) {
		out := &CLIError{Kind: ce.Kind(), Code: ce.ErrorCode(), Message: ce.Error()}
		var le locatedError
		if errors.As(err, &le) {
			out.Location = le.Location()
		}
		return out
	}
	return &CLIError{Kind: "Error", Code: fallback, Message: err.Error()}
}

// newFormatter builds the formatter of a command invocation.
func newFormatter(opts *RootOptions, stdout, stderr io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    stdout,
		ErrWriter: stderr, // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// encode writes v as indented JSON without HTML escaping.
func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Success outputs a successful result in the configured format. Text mode
// prints data with fmt.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return encode(f.Writer, CLIResponse{Status: "ok", Data: data})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(e *CLIError) error {
	if f.Format == "json" {
		return encode(f.Writer, CLIResponse{Status: "error", Error: e})
	}

	// Human-readable error
	if e.Location != "" {
		fmt.Fprintf(f.Writer, "%s\n", e.Location)
	}
	fmt.Fprintf(f.Writer, "Error [%s %s]: %s\n", e.Code, e.Kind, e.Message)
	return nil
}

// Fail reports err and returns the ExitError the command should end with.
func (f *OutputFormatter) Fail(exitCode int, fallback, message string, err error) error {
	_ = f.Error(describe(err, fallback))
	return WrapExitError(exitCode, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// writeFile writes data to path.
func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
