package engine

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/lemonlambda/grug-sys/internal/library"
	"github.com/lemonlambda/grug-sys/internal/metrics"
	"github.com/lemonlambda/grug-sys/internal/safecall"
	"github.com/lemonlambda/grug-sys/internal/scan"
	"github.com/lemonlambda/grug-sys/internal/store"
	"github.com/lemonlambda/grug-sys/internal/toolchain"
)

// Config locates the engine's inputs and outputs.
type Config struct {
	// SchemaPath is the mod API file (mod_api.json, .cue or .yaml).
	SchemaPath string
	// ModsDir is the mods root; every top-level directory is one mod.
	ModsDir string
	// BuildDir receives one artifact per mod file. It may live inside
	// ModsDir; it is never scanned.
	BuildDir string
	// ArenaCapacity bounds, in bytes, the mod source compiled concurrently
	// in one cycle. 0 means unbounded.
	ArenaCapacity int64
	// Verify selects how file changes are detected.
	Verify scan.VerifyMode
	// CachePath is the SQLite build cache. Empty disables the cache unless
	// WithStore is given.
	CachePath string
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithToolchain sets the build service. Default: toolchain.GoPlugin
// building in a scratch directory under BuildDir.
func WithToolchain(tc toolchain.Toolchain) Option {
	return func(e *Engine) { e.toolchain = tc }
}

// WithLoader sets how artifacts are opened. Default: toolchain.PluginLoader.
func WithLoader(l library.Loader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithStore uses an already open build cache. The engine does not close it.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithMetrics records cycle and fault metrics.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithHostFunctions registers the Go implementations of the mod API's
// game functions, keyed by name. Each value must have the function type
// given by schema.HostFunction.GoSignature.
func WithHostFunctions(fns map[string]any) Option {
	return func(e *Engine) {
		for name, fn := range fns {
			e.host[name] = fn
		}
	}
}

// WithWorkers sets the number of parallel compile workers.
// Default: runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithCycleIDGenerator sets how reload cycles are named.
func WithCycleIDGenerator(g CycleIDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithFaultHandler receives every runtime fault trapped in safe mode.
func WithFaultHandler(h safecall.Handler) Option {
	return func(e *Engine) { e.onFault = h }
}

// WithNow sets the wall clock used for cycle timestamps and durations.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithHistoryLimit keeps at most n cycles in the build cache history.
// 0 keeps everything.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) { e.historyLimit = n }
}

func defaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}
