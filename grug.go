// Package grug embeds the grug mod engine in a host program.
//
// A host initializes the engine once, calls RegenerateModifiedMods every
// frame (or on a timer) and calls on-functions of the entity files it
// looks up:
//
//	mods, err := grug.Init(onFault, "mod_api.json", "mods", "mod_build", 0)
//	if mods == nil {
//		log.Fatal(err)
//	}
//	for range frames {
//		if mods.RegenerateModifiedMods() {
//			if e := mods.Error(); e.HasChanged {
//				log.Print(e)
//			}
//		}
//		for _, f := range mods.LookupByEntityType("World") {
//			mods.Call(f, "on_tick", globals[f.Entity], float32(dt))
//		}
//	}
package grug

import (
	"context"
	"path/filepath"

	"github.com/lemonlambda/grug-sys/internal/engine"
	"github.com/lemonlambda/grug-sys/internal/registry"
	"github.com/lemonlambda/grug-sys/internal/safecall"
	"github.com/lemonlambda/grug-sys/internal/scan"
)

type (
	// ModFile is one loaded mod file.
	ModFile = registry.ModFile
	// EngineError is a mod-source or engine-internal reload error.
	EngineError = engine.EngineError
	// Fault is a runtime failure trapped inside a safe-mode call.
	Fault = safecall.Fault
	// FaultCategory classifies a Fault.
	FaultCategory = safecall.Category
	// Option configures optional engine collaborators.
	Option = engine.Option
	// CycleReport describes one reload cycle.
	CycleReport = engine.CycleReport
)

// RuntimeErrorHandler receives every fault trapped in safe mode.
type RuntimeErrorHandler func(reason string, category FaultCategory, fnName, path string)

// Engine options re-exported for hosts.
var (
	WithLogger        = engine.WithLogger
	WithHostFunctions = engine.WithHostFunctions
	WithWorkers       = engine.WithWorkers
	WithMetrics       = engine.WithMetrics
	WithToolchain     = engine.WithToolchain
	WithLoader        = engine.WithLoader
)

// Mods is an initialized engine.
type Mods struct {
	*engine.Engine
}

// Init loads the mod API, compiles every mod under modsDir into buildDir
// and loads the results. The build cache lives at buildDir/grug.db.
//
// A nil *Mods means the engine could not start at all: the mod API was
// malformed, or the mods root, build directory or cache was unusable. The
// error is then an *EngineError, the same value Error would have held, and
// onError is never called. A non-nil *Mods with an error means the first
// reload cycle failed: files that did load are usable and the failing ones
// are retried by RegenerateModifiedMods. The error is also available from
// Error.
func Init(onError RuntimeErrorHandler, schemaPath, modsDir, buildDir string, arenaCapacity int64, opts ...Option) (*Mods, error) {
	cfg := engine.Config{
		SchemaPath:    schemaPath,
		ModsDir:       modsDir,
		BuildDir:      buildDir,
		ArenaCapacity: arenaCapacity,
		Verify:        scan.VerifyContent,
		CachePath:     filepath.Join(buildDir, "grug.db"),
	}
	if onError != nil {
		opts = append([]Option{engine.WithFaultHandler(func(f safecall.Fault) {
			onError(f.Reason, f.Category, f.FnName, f.Path)
		})}, opts...)
	}
	e, err := engine.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	m := &Mods{Engine: e}
	if _, err := e.Regenerate(context.Background()); err != nil {
		return m, err
	}
	return m, nil
}
