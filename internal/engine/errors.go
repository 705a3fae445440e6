package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/lemonlambda/grug-sys/internal/compiler"
)

// Kind separates errors in mod source from errors in the engine itself.
type Kind int

const (
	// ModSource errors are caused by a mod file: syntax, types, naming.
	// They carry the mod file path and, when known, a line number.
	ModSource Kind = iota + 1

	// Internal errors come from the engine or its collaborators: the mod
	// API, the toolchain, loading or symbol resolution. They carry the
	// engine source location that raised them and no mod path.
	Internal
)

func (k Kind) String() string {
	switch k {
	case ModSource:
		return "mod"
	case Internal:
		return "internal"
	}
	return "unknown"
}

// EngineError is the error reported by a failed reload cycle.
type EngineError struct {
	Kind Kind
	Code string // compile error code, mod-source errors only
	Msg  string

	// Mod-source location.
	Path string
	Line int

	// Engine location that raised an Internal error.
	EngineFile string
	EngineLine int

	// HasChanged is set by the Reporter: true only when this error differs
	// from the one reported before it.
	HasChanged bool

	Err error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	switch {
	case e.Kind == ModSource && e.Line > 0:
		return fmt.Sprintf("%s:%d: [%s] %s", e.Path, e.Line, e.Code, e.Msg)
	case e.Kind == ModSource:
		return fmt.Sprintf("%s: [%s] %s", e.Path, e.Code, e.Msg)
	case e.EngineFile != "":
		return fmt.Sprintf("engine error (%s:%d): %s", e.EngineFile, e.EngineLine, e.Msg)
	}
	return "engine error: " + e.Msg
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error { return e.Err }

// same reports whether e and other describe the same failure. HasChanged
// and the wrapped error are ignored.
func (e *EngineError) same(other *EngineError) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.Kind == other.Kind &&
		e.Code == other.Code &&
		e.Msg == other.Msg &&
		e.Path == other.Path &&
		e.Line == other.Line
}

// AsEngineError unwraps err to an *EngineError.
func AsEngineError(err error) (*EngineError, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// IsModSourceError returns true if err is a mod-source EngineError.
func IsModSourceError(err error) bool {
	ee, ok := AsEngineError(err)
	return ok && ee.Kind == ModSource
}

// modError wraps a compile error.
func modError(ce *compiler.CompileError) *EngineError {
	return &EngineError{
		Kind: ModSource,
		Code: ce.Code,
		Msg:  ce.Message,
		Path: ce.Path,
		Line: ce.Line,
		Err:  ce,
	}
}

// classify turns any pipeline error into an EngineError. Compile errors
// are mod-source errors; everything else is internal.
func classify(err error, format string, args ...any) *EngineError {
	if ee, ok := AsEngineError(err); ok {
		return ee
	}
	if ce, ok := compiler.AsCompileError(err); ok {
		return modError(ce)
	}
	ee := &EngineError{
		Kind: Internal,
		Msg:  fmt.Sprintf(format, args...) + ": " + err.Error(),
		Err:  err,
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		ee.EngineFile = filepath.Base(file)
		ee.EngineLine = line
	}
	return ee
}

// internalError reports an engine failure that has no underlying error.
func internalError(format string, args ...any) *EngineError {
	ee := &EngineError{Kind: Internal, Msg: fmt.Sprintf(format, args...)}
	if _, file, line, ok := runtime.Caller(1); ok {
		ee.EngineFile = filepath.Base(file)
		ee.EngineLine = line
	}
	return ee
}
