package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // mod errors, failed cycles, failed scenarios, faults
	ExitCommandError = 2 // bad flags or config, missing paths
)

// Error codes of CLI failures. Mod source errors carry the compiler's own
// E1xx-E3xx codes instead.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeSchema      = "E003" // mod API did not load
	ErrCodeNotFound    = "E005"
	ErrCodeWriteFailed = "E007"
	ErrCodeEngine      = "E008" // engine could not start
)

// ExitError ends a command with a specific process exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error

	reported bool // already written by an OutputFormatter
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors that are not an
// ExitError exit with ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	default:
		return ExitFailure
	}
}

// CLIResponse is the envelope of every --format json output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as text or JSON. Results go to
// Writer; progress and debug lines go to ErrWriter so JSON stays
// parseable.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// Success writes data. In text mode data is printed with its String
// method when it has one.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.respond(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a failure. Details are shown in text mode only with
// --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.respond(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

func (f *OutputFormatter) respond(r CLIResponse) error {
	return json.NewEncoder(f.Writer).Encode(r)
}

// VerboseLog prints a progress line when --verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
	}
}

// GetErrWriter returns ErrWriter, or Writer when it is unset.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter == nil {
		return f.Writer
	}
	return f.ErrWriter
}

// fail writes the error and returns an ExitError carrying exit.
func (f *OutputFormatter) fail(exit int, code, message string, details any) error {
	if err := f.Error(code, message, details); err != nil {
		return err
	}
	return &ExitError{Code: exit, Message: message, reported: true}
}
