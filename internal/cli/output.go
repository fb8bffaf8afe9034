package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario assertions failed, golden mismatch
	ExitCommandError = 2 // Command error (bad identifier, unreadable config, store unavailable)
)

// Error codes reported in structured output.
const (
	ErrCodeConfig       = "E001" // Config file unreadable or invalid
	ErrCodeStore        = "E002" // Record store could not be opened or read
	ErrCodeIdentifier   = "E003" // Identifier argument malformed
	ErrCodeArgument     = "E004" // Other bad argument
	ErrCodeScenario     = "E005" // Scenario unreadable or invalid
	ErrCodeExecution    = "E006" // Scenario could not be executed
	ErrCodeAssertion    = "E007" // Scenario assertions failed
	ErrCodeMetricsWrite = "E008" // Metrics textfile not written
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// Reported is set once the error has been written to the command output.
	Reported bool
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
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// IsReported reports whether err was already written to the command output,
// so the caller should not print it again.
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format. In text mode
// data is printed with its String method or %v.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Fail reports an error in the configured format and returns an ExitError
// carrying exitCode, so commands can `return f.Fail(...)`.
func (f *OutputFormatter) Fail(exitCode int, code, message string, err error, details any) error {
	full := message
	if err != nil {
		full = fmt.Sprintf("%s: %v", message, err)
	}
	if f.Format == "json" {
		if encErr := f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: full, Details: details},
		}); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, full)
		if f.Verbose && details != nil {
			fmt.Fprintf(f.Writer, "Details: %v\n", details)
		}
	}
	exitErr := WrapExitError(exitCode, message, err)
	exitErr.Reported = true
	return exitErr
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
