// Package safecall is the fault-isolating boundary around on-function
// calls. In safe mode a panic raised inside mod code (a trap from generated
// code, a nil dereference, a fault reported by a host function) is
// recovered, classified and reported once to a handler; the call is
// abandoned and the host keeps running. In unsafe mode calls go straight
// through and a fault takes the process down.
//
// This contains accidental faults only. It is not a sandbox.
package safecall

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync/atomic"
)

// Category classifies a runtime fault.
type Category string

const (
	DivisionByZero      Category = "division_by_zero"
	Overflow            Category = "overflow"
	StackOverflow       Category = "stack_overflow"
	InvalidMemoryAccess Category = "invalid_memory_access"
	GameFunctionError   Category = "game_fn_error"
	Panic               Category = "panic"
)

// Fault is one trapped failure inside an on-function.
type Fault struct {
	Reason   string
	Category Category
	FnName   string
	Path     string
	Value    any // the recovered panic value
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s in %s (%s): %s", f.Category, f.FnName, f.Path, f.Reason)
}

// AsFault unwraps err to a *Fault.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Handler receives every fault trapped in safe mode.
type Handler func(Fault)

// Mode selects how calls cross the boundary.
type Mode int32

const (
	Safe Mode = iota
	Unsafe
)

func (m Mode) String() string {
	if m == Unsafe {
		return "unsafe"
	}
	return "safe"
}

// Boundary invokes on-functions. The mode may be switched at any time; it
// applies to calls that start afterwards.
type Boundary struct {
	mode    atomic.Int32
	handler Handler
}

// NewBoundary returns a Boundary in safe mode.
func NewBoundary(handler Handler) *Boundary {
	return &Boundary{handler: handler}
}

// SetMode switches between safe and unsafe calls.
func (b *Boundary) SetMode(m Mode) { b.mode.Store(int32(m)) }

// Mode returns the current mode.
func (b *Boundary) Mode() Mode { return Mode(b.mode.Load()) }

// Invoke runs fn on behalf of on-function fnName from path. In safe mode a
// panic inside fn is returned as a *Fault after being passed to the
// handler.
func (b *Boundary) Invoke(fnName, path string, fn func()) error {
	if b.Mode() == Unsafe {
		fn()
		return nil
	}
	return b.invokeSafely(fnName, path, fn)
}

func (b *Boundary) invokeSafely(fnName, path string, fn func()) (err error) {
	prev := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(prev)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		f := Classify(r)
		f.FnName = fnName
		f.Path = path
		if b.handler != nil {
			b.handler(f)
		}
		err = &f
	}()

	fn()
	return nil
}

// faulter is implemented by panic values raised by generated code.
type faulter interface {
	GrugFault() (kind, message string)
}

type gameFnPanic struct {
	msg string
}

// GameFnError aborts the current on-function with a game-function error.
// Host functions call it to report misuse by mod code; it never returns.
func GameFnError(format string, args ...any) {
	panic(gameFnPanic{msg: fmt.Sprintf(format, args...)})
}

var memoryFaults = []string{
	"invalid memory address",
	"nil pointer dereference",
	"unexpected fault address",
	"index out of range",
	"slice bounds out of range",
}

// Classify maps a recovered panic value to a Fault without location.
func Classify(r any) Fault {
	switch v := r.(type) {
	case faulter:
		kind, msg := v.GrugFault()
		return Fault{Reason: msg, Category: Category(kind), Value: r}
	case gameFnPanic:
		return Fault{Reason: v.msg, Category: GameFunctionError, Value: r}
	case runtime.Error:
		msg := v.Error()
		cat := Panic
		switch {
		case strings.Contains(msg, "integer divide by zero"):
			cat = DivisionByZero
		case strings.Contains(msg, "integer overflow"):
			cat = Overflow
		default:
			for _, s := range memoryFaults {
				if strings.Contains(msg, s) {
					cat = InvalidMemoryAccess
					break
				}
			}
		}
		return Fault{Reason: msg, Category: cat, Value: r}
	case error:
		return Fault{Reason: v.Error(), Category: Panic, Value: r}
	}
	return Fault{Reason: fmt.Sprint(r), Category: Panic, Value: r}
}
