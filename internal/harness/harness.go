package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/lemonlambda/grug-sys/internal/engine"
	"github.com/lemonlambda/grug-sys/internal/ir"
	"github.com/lemonlambda/grug-sys/internal/library"
	"github.com/lemonlambda/grug-sys/internal/registry"
	"github.com/lemonlambda/grug-sys/internal/safecall"
	"github.com/lemonlambda/grug-sys/internal/schema"
	"github.com/lemonlambda/grug-sys/internal/testutil"
)

// epoch is the first reading of every scenario's clock.
var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness is one scenario execution.
type Harness struct {
	mods      string
	engine    *engine.Engine
	schema    *schema.ApiSchema
	toolchain *testutil.FakeToolchain
	loader    *testutil.FakeLoader
	logger    *slog.Logger

	globals map[instanceKey]instance

	mu     sync.Mutex
	faults []safecall.Fault
}

type instanceKey struct {
	entity string
	me     uint64
}

// instance is an entity's globals and the file that allocated them.
type instance struct {
	file    *registry.ModFile
	globals any
}

// Run executes a scenario in a fresh scratch directory and returns the
// result. An error is returned only when the scenario cannot be executed
// at all; failed expectations are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	root, err := os.MkdirTemp("", "grug-harness-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(root)

	h, err := newHarness(root, scenario)
	if err != nil {
		return nil, err
	}
	defer h.engine.Close()

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	for _, msg := range EvaluateAssertions(h, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(root string, scenario *Scenario) (*Harness, error) {
	apiPath := filepath.Join(root, "mod_api.json")
	apiData := []byte(testutil.ModAPI)
	if scenario.ModAPI != "" {
		data, err := os.ReadFile(scenario.ModAPI)
		if err != nil {
			return nil, fmt.Errorf("failed to read mod api: %w", err)
		}
		apiData = data
		apiPath = filepath.Join(root, "mod_api"+filepath.Ext(scenario.ModAPI))
	}
	if err := os.WriteFile(apiPath, apiData, 0o644); err != nil {
		return nil, err
	}
	s, err := schema.Load(apiPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load mod api: %w", err)
	}

	mods := filepath.Join(root, "mods")
	if err := os.MkdirAll(mods, 0o755); err != nil {
		return nil, err
	}

	h := &Harness{
		schema:    s,
		toolchain: testutil.NewFakeToolchain(),
		loader:    testutil.NewFakeLoader(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		globals:   make(map[instanceKey]instance),
	}

	clock := testutil.NewStepClock(epoch, time.Millisecond)
	eng, err := engine.New(engine.Config{
		SchemaPath:    apiPath,
		ModsDir:       mods,
		BuildDir:      filepath.Join(root, "build"),
		ArenaCapacity: scenario.ArenaCapacity,
	},
		engine.WithToolchain(h.toolchain),
		engine.WithLoader(h.loader),
		engine.WithHostFunctions(engine.StubHostFunctions(s, nil)),
		engine.WithCycleIDGenerator(testutil.NewSequentialIDs("")),
		engine.WithNow(clock.Now),
		engine.WithWorkers(1),
		engine.WithLogger(h.logger),
		engine.WithFaultHandler(h.recordFault),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	h.engine = eng
	h.mods = eng.ModsDir()
	return h, nil
}

func (h *Harness) recordFault(f safecall.Fault) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults = append(h.faults, f)
}

func (h *Harness) faultCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.faults)
}

func (h *Harness) execute(ctx context.Context, n int, step Step, result *Result) error {
	switch {
	case step.Write != nil:
		path := filepath.Join(h.mods, filepath.FromSlash(step.Write.Path))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(step.Write.Content), 0o644); err != nil {
			return err
		}
		result.addEvent(TraceEvent{Step: n, Type: EventWrite, Path: step.Write.Path})

	case step.Remove != "":
		if err := os.Remove(filepath.Join(h.mods, filepath.FromSlash(step.Remove))); err != nil {
			return err
		}
		result.addEvent(TraceEvent{Step: n, Type: EventRemove, Path: step.Remove})

	case step.FailBuild != nil:
		h.toolchain.Fail(step.FailBuild.Path, step.FailBuild.Output)
		result.addEvent(TraceEvent{Step: n, Type: EventFailBuild, Path: step.FailBuild.Path})

	case step.Script != nil:
		sc := step.Script
		h.loader.On(sc.Path, sc.OnFn, scriptedFault(sc.Fault, sc.Message))
		result.addEvent(TraceEvent{Step: n, Type: EventScript, Path: sc.Path, OnFn: sc.OnFn, Fault: sc.Fault})

	case step.Regenerate != nil:
		h.regenerate(ctx, n, step.Regenerate, result)

	case step.Call != nil:
		h.call(n, step.Call, result)
	}
	return nil
}

func (h *Harness) regenerate(ctx context.Context, n int, step *RegenerateStep, result *Result) {
	report, err := h.engine.Regenerate(ctx)
	if report == nil {
		result.AddError(fmt.Sprintf("step %d (regenerate): %v", n, err))
		return
	}

	ev := result.addEvent(TraceEvent{
		Step:       n,
		Type:       EventRegenerate,
		Seq:        report.Seq,
		Generation: report.Generation,
		Swapped:    report.Swapped,
		Compiled:   report.Compiled,
		Cached:     report.Cached,
		Removed:    report.Removed,
		Resources:  report.ResourceReloads,
		Failed:     len(report.Errors),
	})
	if ee, ok := engine.AsEngineError(err); ok {
		ev.Error = &TraceError{
			Kind:       ee.Kind.String(),
			Code:       ee.Code,
			Path:       h.rel(ee.Path),
			Line:       ee.Line,
			HasChanged: ee.HasChanged,
		}
	}

	if step.Expect != nil {
		for _, msg := range checkCycle(*ev, step.Expect) {
			result.AddError(fmt.Sprintf("step %d (regenerate): %s", n, msg))
		}
	}
}

func checkCycle(ev TraceEvent, want *CycleExpect) []string {
	var errs []string
	mismatch := func(field string, got, want any) {
		errs = append(errs, fmt.Sprintf("%s = %v, want %v", field, got, want))
	}

	failed := ev.Failed > 0
	if want.Failed != nil && *want.Failed != failed {
		mismatch("failed", failed, *want.Failed)
	}
	if want.Swapped != nil && *want.Swapped != ev.Swapped {
		mismatch("swapped", ev.Swapped, *want.Swapped)
	}
	lists := []struct {
		name      string
		got, want []string
	}{
		{"compiled", ev.Compiled, want.Compiled},
		{"cached", ev.Cached, want.Cached},
		{"removed", ev.Removed, want.Removed},
		{"resources", ev.Resources, want.Resources},
	}
	for _, l := range lists {
		if l.want != nil && !slices.Equal(l.got, l.want) {
			mismatch(l.name, l.got, l.want)
		}
	}

	if want.Kind == "" && want.Code == "" && want.Line == 0 && want.HasChanged == nil {
		return errs
	}
	if ev.Error == nil {
		return append(errs, "no error reported")
	}
	if want.Kind != "" && want.Kind != ev.Error.Kind {
		mismatch("kind", ev.Error.Kind, want.Kind)
	}
	if want.Code != "" && want.Code != ev.Error.Code {
		mismatch("code", ev.Error.Code, want.Code)
	}
	if want.Line != 0 && want.Line != ev.Error.Line {
		mismatch("line", ev.Error.Line, want.Line)
	}
	if want.HasChanged != nil && *want.HasChanged != ev.Error.HasChanged {
		mismatch("has_changed", ev.Error.HasChanged, *want.HasChanged)
	}
	return errs
}

func (h *Harness) call(n int, step *CallStep, result *Result) {
	ev := result.addEvent(TraceEvent{
		Step:   n,
		Type:   EventCall,
		Entity: step.Entity,
		OnFn:   step.OnFn,
		Me:     step.Me,
	})
	ev.Result, ev.Fault = h.invoke(step)

	if want := step.Expect; want != nil {
		if want.Result != ev.Result {
			result.AddError(fmt.Sprintf("step %d (call %s.%s): result = %s, want %s",
				n, step.Entity, step.OnFn, ev.Result, want.Result))
		}
		if want.Fault != "" && want.Fault != ev.Fault {
			result.AddError(fmt.Sprintf("step %d (call %s.%s): fault = %s, want %s",
				n, step.Entity, step.OnFn, ev.Fault, want.Fault))
		}
	}
}

// invoke returns the call result and, for faults, the category.
func (h *Harness) invoke(step *CallStep) (string, string) {
	file, ok := h.engine.GetEntityFile(step.Entity)
	if !ok {
		return CallNotFound, ""
	}

	key := instanceKey{entity: step.Entity, me: step.Me}
	inst, ok := h.globals[key]
	if !ok || inst.file != file {
		g, err := h.engine.NewGlobals(file, step.Me)
		if err != nil {
			return classifyCall(err)
		}
		inst = instance{file: file, globals: g}
		h.globals[key] = inst
	}

	args := convertArgs(h.schema, file.EntityType, step.OnFn, step.Args)
	return classifyCall(h.engine.Call(file, step.OnFn, inst.globals, args...))
}

func classifyCall(err error) (string, string) {
	if err == nil {
		return CallOK, ""
	}
	if f, ok := safecall.AsFault(err); ok {
		return CallFault, string(f.Category)
	}
	switch {
	case errors.Is(err, engine.ErrUndefinedOnFunction):
		return CallUndefinedOnFunction, ""
	case errors.Is(err, engine.ErrBadArguments):
		return CallBadArguments, ""
	case errors.Is(err, library.ErrRetired), errors.Is(err, library.ErrStale):
		return CallRetired, ""
	}
	return CallError, ""
}

// convertArgs converts YAML scalars to the Go types of the on-function's
// declared parameters. Values that do not convert are passed unchanged so
// the engine reports the mismatch.
func convertArgs(s *schema.ApiSchema, entityType, onFn string, raw []any) []any {
	out := slices.Clone(raw)
	et, ok := s.Entity(entityType)
	if !ok {
		return out
	}
	decl, _, ok := et.OnFunction(onFn)
	if !ok {
		return out
	}
	for i, a := range decl.Arguments {
		if i >= len(out) {
			break
		}
		switch v := out[i].(type) {
		case int:
			switch a.Type {
			case ir.I32:
				out[i] = int32(v)
			case ir.F32:
				out[i] = float32(v)
			case ir.ID:
				out[i] = uint64(v)
			}
		case float64:
			if a.Type == ir.F32 {
				out[i] = float32(v)
			}
		}
	}
	return out
}

func (h *Harness) rel(path string) string {
	if path == "" {
		return ""
	}
	r, err := filepath.Rel(h.mods, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(r)
}

// grugFault mimics the panic value generated code raises for arithmetic
// and recursion traps.
type grugFault struct {
	kind, msg string
}

func (f grugFault) GrugFault() (string, string) { return f.kind, f.msg }

// scriptedFault returns an on-function body that raises a fault of
// category, or nil for the default body.
func scriptedFault(category, message string) testutil.OnFunc {
	if message == "" {
		message = category
	}
	switch safecall.Category(category) {
	case "":
		return nil
	case safecall.InvalidMemoryAccess:
		return func(g *testutil.FakeGlobals, args []any) {
			var p *testutil.FakeGlobals
			g.Me = p.Me
		}
	case safecall.GameFunctionError:
		return func(g *testutil.FakeGlobals, args []any) {
			safecall.GameFnError("%s", message)
		}
	case safecall.Panic:
		return func(g *testutil.FakeGlobals, args []any) {
			panic(message)
		}
	}
	return func(g *testutil.FakeGlobals, args []any) {
		panic(grugFault{kind: category, msg: message})
	}
}
