package compiler

import (
	"errors"
	"fmt"
)

// Compile error codes. E1xx are syntax errors, E2xx semantic errors found
// by the checker, E3xx problems with the file itself.
const (
	ErrLex   = "E101" // invalid token
	ErrParse = "E102" // unexpected token

	ErrUnknownIdentifier = "E201" // name not in scope
	ErrTypeMismatch      = "E202" // operand or value of the wrong type
	ErrRedeclared        = "E203" // duplicate definition or shadowing
	ErrUnknownFunction   = "E204" // call to an undefined function
	ErrArgumentCount     = "E205" // wrong number of call arguments
	ErrUndeclaredOnFn    = "E206" // on-function not declared for the entity type
	ErrOnFnSignature     = "E207" // on-function parameters differ from the mod API
	ErrOnFnOrder         = "E208" // on-functions out of mod API order
	ErrReturn            = "E209" // missing or misplaced return
	ErrOutsideLoop       = "E210" // break or continue outside a loop
	ErrAssignMe          = "E211" // assignment to me
	ErrGlobalHelperCall  = "E212" // helper call in a global initializer
	ErrUnknownType       = "E213" // type name not recognised
	ErrFunctionName      = "E214" // function name lacks on_ or helper_ prefix
	ErrNumberLiteral     = "E215" // literal out of range
	ErrResource          = "E216" // bad resource literal
	ErrEntityLiteral     = "E217" // bad entity literal
	ErrVoidValue         = "E218" // void call used as a value

	ErrFileName          = "E301" // file name or location invalid
	ErrUnknownEntityType = "E302" // entity type not in the mod API
	ErrTooLarge          = "E303" // file exceeds the arena capacity
	ErrDuplicateEntity   = "E304" // another file already defines the entity
)

// CompileError is a mod-source error located in one file. Line is 0 for
// errors about the file as a whole.
type CompileError struct {
	Code    string
	Path    string
	Line    int
	Col     int
	Message string
}

func (e *CompileError) Error() string {
	switch {
	case e.Line > 0 && e.Col > 0:
		return fmt.Sprintf("%s:%d:%d: [%s] %s", e.Path, e.Line, e.Col, e.Code, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: [%s] %s", e.Path, e.Line, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: [%s] %s", e.Path, e.Code, e.Message)
}

// FileError builds a CompileError about path as a whole.
func FileError(code, path, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Path: path, Message: fmt.Sprintf(format, args...)}
}

// AsCompileError unwraps err to a *CompileError.
func AsCompileError(err error) (*CompileError, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
