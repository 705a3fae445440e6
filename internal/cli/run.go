package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lemonlambda/grug-sys/internal/engine"
	"github.com/lemonlambda/grug-sys/internal/ir"
	"github.com/lemonlambda/grug-sys/internal/safecall"
	"github.com/lemonlambda/grug-sys/internal/schema"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Me     uint64
	Count  int
	Unsafe bool
}

// RunResult reports the calls made by run.
type RunResult struct {
	Entity string   `json:"entity"`
	Path   string   `json:"path"`
	OnFn   string   `json:"on_fn"`
	Me     uint64   `json:"me"`
	Calls  int      `json:"calls"`
	Faults []string `json:"faults"`
}

func (r RunResult) String() string {
	var b strings.Builder
	mark := "✓"
	if len(r.Faults) > 0 {
		mark = "✗"
	}
	fmt.Fprintf(&b, "%s %s.%s (me=%d): %d call(s), %d fault(s)", mark, r.Entity, r.OnFn, r.Me, r.Calls, len(r.Faults))
	for _, f := range r.Faults {
		fmt.Fprintf(&b, "\n  %s", f)
	}
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <entity> <on_fn> [args...]",
		Short: "Load the mods and call one on-function",
		Long: `Run a reload cycle, create the entity's globals and call an on-function.

Arguments are parsed according to the on-function's parameter types in the
mod API. Game functions are stubs that log their calls at debug level (-v).

Examples:
  grug run animals:dog on_bark 3
  grug run dog on_bark 3 --count 10 --me 42
  grug run dog on_bark 3 --unsafe`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnFunction(opts, args[0], args[1], args[2:], cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.Me, "me", 0, "entity instance id passed to init_globals")
	cmd.Flags().IntVar(&opts.Count, "count", 1, "number of calls")
	cmd.Flags().BoolVar(&opts.Unsafe, "unsafe", false, "call without the fault boundary; a fault crashes the process")

	return cmd
}

func runOnFunction(opts *RunOptions, entity, onFn string, rawArgs []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())
	if opts.Count < 1 {
		return f.fail(ExitCommandError, ErrCodeGeneric, "--count must be at least 1", nil)
	}

	e, err := startEngine(opts.RootOptions, logger)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeEngine, err.Error(), nil)
	}
	defer e.Close()
	if opts.Unsafe {
		e.SetOnFunctionsToUnsafeMode()
	}

	if report, err := e.Regenerate(cmd.Context()); err != nil {
		if report == nil {
			return f.fail(ExitCommandError, ErrCodeEngine, err.Error(), nil)
		}
		logger.Warn("reload failed; calling the last good version", "error", err)
	}

	file, ok := e.GetEntityFile(entity)
	if !ok {
		return f.fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("entity %s not found", entity), nil)
	}
	args, err := parseArgs(e.Schema(), file.EntityType, onFn, rawArgs)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	globals, err := e.NewGlobals(file, opts.Me)
	if err != nil {
		return f.fail(ExitFailure, ErrCodeEngine, err.Error(), nil)
	}

	result := RunResult{Entity: file.Entity, Path: file.RelPath, OnFn: onFn, Me: opts.Me, Faults: []string{}}
	for range opts.Count {
		err := e.Call(file, onFn, globals, args...)
		result.Calls++
		if err == nil {
			continue
		}
		fault, ok := safecall.AsFault(err)
		if !ok {
			return f.fail(ExitFailure, ErrCodeEngine, err.Error(), nil)
		}
		result.Faults = append(result.Faults, fault.Error())
	}

	if err := f.Success(result); err != nil {
		return err
	}
	if len(result.Faults) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d call(s) faulted", len(result.Faults)))
	}
	return nil
}

// parseArgs converts command-line strings to the Go values of the
// on-function's parameter types.
func parseArgs(s *schema.ApiSchema, entityType, onFn string, raw []string) ([]any, error) {
	et, ok := s.Entity(entityType)
	if !ok {
		return nil, fmt.Errorf("entity type %s is not in the mod API", entityType)
	}
	decl, _, ok := et.OnFunction(onFn)
	if !ok {
		return nil, fmt.Errorf("%s: %w", onFn, engine.ErrUndefinedOnFunction)
	}
	if len(raw) != len(decl.Arguments) {
		return nil, fmt.Errorf("%s.%s takes %d argument(s), got %d", entityType, onFn, len(decl.Arguments), len(raw))
	}

	args := make([]any, len(raw))
	for i, a := range decl.Arguments {
		v, err := parseArg(a.Type, raw[i])
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", a.Name, err)
		}
		args[i] = v
	}
	return args, nil
}

func parseArg(t ir.Type, s string) (any, error) {
	switch t {
	case ir.Bool:
		return strconv.ParseBool(s)
	case ir.I32:
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err
	case ir.F32:
		n, err := strconv.ParseFloat(s, 32)
		return float32(n), err
	case ir.ID:
		return strconv.ParseUint(s, 10, 64)
	case ir.String, ir.Resource, ir.Entity:
		return s, nil
	}
	return nil, errors.New("unsupported type " + string(t))
}
