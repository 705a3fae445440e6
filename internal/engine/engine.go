package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/lemonlambda/grug-sys/internal/compiler"
	"github.com/lemonlambda/grug-sys/internal/ir"
	"github.com/lemonlambda/grug-sys/internal/library"
	"github.com/lemonlambda/grug-sys/internal/metrics"
	"github.com/lemonlambda/grug-sys/internal/registry"
	"github.com/lemonlambda/grug-sys/internal/safecall"
	"github.com/lemonlambda/grug-sys/internal/scan"
	"github.com/lemonlambda/grug-sys/internal/schema"
	"github.com/lemonlambda/grug-sys/internal/store"
	"github.com/lemonlambda/grug-sys/internal/toolchain"
)

// Errors returned by Call and NewGlobals. Library lifecycle errors
// (library.ErrStale, library.ErrRetired) are passed through wrapped.
var (
	ErrClosed              = errors.New("engine is closed")
	ErrUndefinedOnFunction = errors.New("on-function not defined by mod file")
	ErrBadArguments        = errors.New("on-function arguments do not match the mod API")
)

// Engine owns one mods tree: its compiled files, their loaded libraries
// and the registry the host reads.
//
// Thread-safety model:
//   - Regenerate: serialized; concurrent calls run one after another
//   - Snapshot, GetEntityFile, LookupByEntityType: lock-free, safe from any goroutine
//   - Call, NewGlobals: safe from any goroutine, concurrently with Regenerate
type Engine struct {
	cfg      Config
	modsDir  string
	buildDir string

	schema    *schema.ApiSchema
	compiler  *compiler.Compiler
	toolchain toolchain.Toolchain
	loader    library.Loader
	libs      *library.Manager
	registry  *registry.Registry
	boundary  *safecall.Boundary
	budget    *arenaBudget
	reporter  Reporter

	store        *store.Store
	ownStore     bool
	historyLimit int
	metrics      *metrics.Collector
	logger       *slog.Logger
	ids          CycleIDGenerator
	clock        Clock
	now          func() time.Time
	host         map[string]any
	workers      int
	onFault      safecall.Handler

	mu           sync.Mutex // held for a whole reload cycle
	fingerprints map[string]scan.Fingerprint
	resources    map[string]scan.Fingerprint
	closed       bool
}

// New loads the mod API and prepares the engine. It does not scan the
// mods tree; the first Regenerate compiles every file.
//
// New fails only when the engine cannot run at all: the mod API is
// malformed, the mods root is missing or the build directory or cache
// cannot be created. Such failures are returned as Internal EngineErrors.
func New(cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:          cfg,
		host:         make(map[string]any),
		workers:      defaultWorkers(),
		ids:          UUIDv7Generator{},
		now:          time.Now,
		logger:       slog.Default(),
		fingerprints: make(map[string]scan.Fingerprint),
		resources:    make(map[string]scan.Fingerprint),
	}
	for _, opt := range opts {
		opt(e)
	}

	s, err := schema.Load(cfg.SchemaPath)
	if err != nil {
		return nil, classify(err, "load mod api %s", cfg.SchemaPath)
	}
	e.schema = s
	e.compiler = compiler.New(s)

	modsDir, err := scan.CanonicalRoot(cfg.ModsDir)
	if err != nil {
		return nil, classify(err, "mods root")
	}
	info, err := os.Stat(modsDir)
	if err != nil {
		return nil, classify(err, "mods root")
	}
	if !info.IsDir() {
		return nil, internalError("mods root %s is not a directory", modsDir)
	}
	e.modsDir = modsDir

	if cfg.BuildDir == "" {
		return nil, internalError("build directory not set")
	}
	if err := os.MkdirAll(cfg.BuildDir, 0o755); err != nil {
		return nil, classify(err, "create build directory")
	}
	buildDir, err := scan.CanonicalRoot(cfg.BuildDir)
	if err != nil {
		return nil, classify(err, "build directory")
	}
	e.buildDir = buildDir

	if e.toolchain == nil {
		e.toolchain = toolchain.NewGoPlugin(filepath.Join(buildDir, ".work"),
			toolchain.WithBuildLogger(e.logger))
	}
	if e.loader == nil {
		e.loader = toolchain.PluginLoader{}
	}

	if e.store == nil && cfg.CachePath != "" {
		st, err := store.Open(cfg.CachePath)
		if err != nil {
			return nil, classify(err, "open build cache %s", cfg.CachePath)
		}
		e.store = st
		e.ownStore = true
	}
	if e.store != nil {
		seq, err := e.store.LastCycleSeq(context.Background())
		if err != nil {
			e.logger.Warn("build cache history unreadable, numbering cycles from 1", "error", err)
		} else {
			e.clock.Resume(seq)
			if r, ok := e.ids.(resumableIDs); ok {
				r.Resume(seq)
			}
		}
	}

	e.budget = newArenaBudget(cfg.ArenaCapacity)
	e.libs = library.NewManager(e.loader, e.logger)
	e.registry = registry.New()
	e.boundary = safecall.NewBoundary(e.handleFault)

	e.checkHostFunctions()
	return e, nil
}

// checkHostFunctions warns about game functions the host did not provide
// or provided with the wrong type. Files calling them fail to bind.
func (e *Engine) checkHostFunctions() {
	for _, fn := range e.schema.HostFunctions() {
		impl, ok := e.host[fn.Name]
		if !ok || impl == nil {
			e.logger.Warn("game function not provided", "name", fn.Name, "want", fn.GoSignature())
			continue
		}
		if got := reflect.TypeOf(impl).String(); got != fn.GoSignature() {
			e.logger.Warn("game function has the wrong type", "name", fn.Name, "got", got, "want", fn.GoSignature())
		}
	}
}

func (e *Engine) handleFault(f safecall.Fault) {
	e.metrics.RecordFault(string(f.Category))
	e.logger.Warn("runtime fault",
		"category", string(f.Category),
		"fn", f.FnName,
		"path", f.Path,
		"reason", f.Reason)
	if e.onFault != nil {
		e.onFault(f)
	}
}

// Schema returns the loaded mod API.
func (e *Engine) Schema() *schema.ApiSchema { return e.schema }

// ModsDir returns the canonical mods root.
func (e *Engine) ModsDir() string { return e.modsDir }

// BuildDir returns the canonical build directory.
func (e *Engine) BuildDir() string { return e.buildDir }

// Snapshot returns the current registry snapshot. It stays valid and
// unchanged for as long as the caller holds it.
func (e *Engine) Snapshot() *registry.Snapshot { return e.registry.Current() }

// GetEntityFile looks up a file by entity name, "mod:name" or "name".
func (e *Engine) GetEntityFile(name string) (*registry.ModFile, bool) {
	return e.registry.Current().Entity(name)
}

// LookupByEntityType returns every file of an entity type in traversal
// order.
func (e *Engine) LookupByEntityType(name string) []*registry.ModFile {
	return e.registry.Current().EntityType(name)
}

// Error returns the error of the last failed cycle, or nil after a
// successful one.
func (e *Engine) Error() *EngineError { return e.reporter.Current() }

// Libraries returns the library arena counters.
func (e *Engine) Libraries() library.Stats { return e.libs.Stats() }

// SetOnFunctionsToSafeMode routes subsequent calls through the fault
// boundary. This is the default.
func (e *Engine) SetOnFunctionsToSafeMode() { e.boundary.SetMode(safecall.Safe) }

// SetOnFunctionsToUnsafeMode calls on-functions directly. A fault in mod
// code then propagates into the caller.
func (e *Engine) SetOnFunctionsToUnsafeMode() { e.boundary.SetMode(safecall.Unsafe) }

// Mode returns the current call mode.
func (e *Engine) Mode() safecall.Mode { return e.boundary.Mode() }

// NewGlobals allocates the globals of one entity instance of file. Global
// initializers run inside the fault boundary. Globals must be recreated
// whenever a reload replaces file.
func (e *Engine) NewGlobals(file *registry.ModFile, me uint64) (any, error) {
	release, err := e.libs.Acquire(file.Lib)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file.RelPath, err)
	}
	defer release()

	var g any
	err = e.boundary.Invoke("init_globals", file.Path, func() {
		g = file.InitGlobals(me)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Call invokes on-function onFn of file with globals from NewGlobals. The
// library behind file stays loaded until the call returns even if a
// concurrent reload supersedes it. In safe mode a fault is reported to the
// fault handler and returned as a *safecall.Fault.
func (e *Engine) Call(file *registry.ModFile, onFn string, globals any, args ...any) error {
	fn, ok := file.OnFunction(onFn)
	if !ok {
		return fmt.Errorf("%s: %s: %w", file.RelPath, onFn, ErrUndefinedOnFunction)
	}
	if err := e.checkArgs(file.EntityType, onFn, args); err != nil {
		return err
	}

	release, err := e.libs.Acquire(fn.Lib)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", file.RelPath, onFn, err)
	}
	defer release()

	return e.boundary.Invoke(onFn, fn.Path, func() {
		fn.Fn(globals, args)
	})
}

func (e *Engine) checkArgs(entityType, onFn string, args []any) error {
	et, ok := e.schema.Entity(entityType)
	if !ok {
		return fmt.Errorf("entity type %s: %w", entityType, ErrBadArguments)
	}
	decl, _, ok := et.OnFunction(onFn)
	if !ok {
		return fmt.Errorf("%s.%s: %w", entityType, onFn, ErrUndefinedOnFunction)
	}
	if len(args) != len(decl.Arguments) {
		return fmt.Errorf("%s.%s takes %d arguments, got %d: %w",
			entityType, onFn, len(decl.Arguments), len(args), ErrBadArguments)
	}
	for i, a := range decl.Arguments {
		if !argMatches(a.Type, args[i]) {
			return fmt.Errorf("%s.%s argument %s must be %s, got %T: %w",
				entityType, onFn, a.Name, a.Type.GoType(), args[i], ErrBadArguments)
		}
	}
	return nil
}

func argMatches(t ir.Type, v any) bool {
	switch v.(type) {
	case bool:
		return t == ir.Bool
	case int32:
		return t == ir.I32
	case float32:
		return t == ir.F32
	case string:
		return t == ir.String || t == ir.Resource || t == ir.Entity
	case uint64:
		return t == ir.ID
	}
	return false
}

// Close retires every library and closes a build cache opened by New.
// Libraries with calls in flight are finalized when those calls return.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	err := e.libs.Close()
	if e.ownStore {
		if cerr := e.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
