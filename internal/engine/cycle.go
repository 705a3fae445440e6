package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lemonlambda/grug-sys/internal/compiler"
	"github.com/lemonlambda/grug-sys/internal/ir"
	"github.com/lemonlambda/grug-sys/internal/library"
	"github.com/lemonlambda/grug-sys/internal/metrics"
	"github.com/lemonlambda/grug-sys/internal/registry"
	"github.com/lemonlambda/grug-sys/internal/scan"
	"github.com/lemonlambda/grug-sys/internal/store"
	"github.com/lemonlambda/grug-sys/internal/toolchain"
)

// CycleReport summarizes one reload cycle. Paths are relative to the
// mods root.
type CycleReport struct {
	ID        string
	Seq       int64
	StartedAt time.Time
	Duration  time.Duration

	// Generation is the registry generation after the cycle. Swapped is
	// true when the cycle published a new snapshot.
	Generation uint64
	Swapped    bool

	Compiled        []string // files loaded this cycle, traversal order
	Cached          []string // subset of Compiled whose build was skipped
	Removed         []string // files dropped from the registry
	Unchanged       int
	ResourceReloads []string // resources modified since the last cycle

	// Errors holds one error per file that failed, in traversal order,
	// or a single error when the tree could not be scanned.
	Errors []*EngineError
}

// Failed reports whether any file failed to reload.
func (r *CycleReport) Failed() bool { return len(r.Errors) > 0 }

// build is the outcome of compiling and building one changed file.
type build struct {
	unit     *compiler.Unit
	artifact string
	cached   bool
	builtSeq int64
	err      *EngineError
}

// conflict is a freshly built file whose entity name another file
// already owns.
type conflict struct {
	file  *registry.ModFile
	owner string
}

// RegenerateModifiedMods runs one reload cycle and reports whether it
// failed. The error itself is available from Error.
func (e *Engine) RegenerateModifiedMods() bool {
	_, err := e.Regenerate(context.Background())
	return err != nil
}

// Regenerate runs one reload cycle: scan the mods tree, rebuild added and
// modified files in parallel, load them, and publish a new registry
// snapshot if anything changed.
//
// A file that fails keeps its last good registry entry and is retried
// every cycle until it compiles or is deleted. The returned error is the
// first file's EngineError; the report lists all of them.
func (e *Engine) Regenerate(ctx context.Context) (*CycleReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	start := e.now()
	report := &CycleReport{
		ID:        e.ids.Generate(),
		Seq:       e.clock.Next(),
		StartedAt: start,
	}
	logger := e.logger.With("cycle", report.ID, "seq", report.Seq)

	e.runCycle(ctx, logger, report)

	report.Duration = e.now().Sub(start)
	report.Generation = e.registry.Current().Generation
	e.recordCycle(ctx, logger, report)

	if !report.Failed() {
		e.reporter.Clear()
		return report, nil
	}
	first := report.Errors[0]
	e.reporter.Report(first)
	if first.HasChanged {
		logger.Error("reload failed", "error", first.Error(), "failed_files", len(report.Errors))
	} else {
		logger.Debug("reload still failing", "error", first.Error())
	}
	return report, first
}

func (e *Engine) runCycle(ctx context.Context, logger *slog.Logger, report *CycleReport) {
	tree, err := scan.Walk(e.modsDir, scan.Options{
		Verify: e.cfg.Verify,
		Skip:   []string{e.buildDir},
	})
	if err != nil {
		report.Errors = append(report.Errors, classify(err, "scan mods"))
		return
	}

	changedRes, nextRes := scan.CompareResources(e.resources, tree.Resources)
	e.resources = nextRes
	for _, p := range changedRes {
		report.ResourceReloads = append(report.ResourceReloads, e.rel(p))
	}

	diff := scan.Compare(e.fingerprints, tree, e.cfg.Verify)
	report.Unchanged = len(diff.Unchanged)
	if diff.Empty() {
		return
	}
	logger.Debug("changes detected", "compile", len(diff.Compile), "removed", len(diff.Removed))

	builds := e.buildAll(ctx, report.Seq, diff.Compile)

	// Loading binds host functions and resolves symbols; keep it serial.
	prev := e.registry.Current()
	fresh := make(map[string]*registry.ModFile, len(diff.Compile))
	seqs := make(map[string]int64, len(diff.Compile))
	for i, ch := range diff.Compile {
		b := builds[i]
		if b.err == nil {
			var mf *registry.ModFile
			if mf, b.err = e.load(ch, b); b.err == nil {
				fresh[ch.Path] = mf
				seqs[ch.Path] = b.builtSeq
				if b.cached {
					report.Cached = append(report.Cached, ch.Rel)
				}
				continue
			}
		}
		logger.Warn("mod file failed", "path", ch.Rel, "status", ch.Status.String(), "error", b.err.Error())
		report.Errors = append(report.Errors, b.err)
	}

	files, conflicts := assemble(tree, prev, fresh)
	for _, c := range conflicts {
		ce := compiler.FileError(compiler.ErrDuplicateEntity, c.file.Path,
			"entity %q is already defined by %s", c.file.Entity, e.rel(c.owner))
		report.Errors = append(report.Errors, modError(ce))
		e.retire(logger, c.file.Lib)
		delete(fresh, c.file.Path)
	}

	for _, ch := range diff.Compile {
		if _, ok := fresh[ch.Path]; ok {
			report.Compiled = append(report.Compiled, ch.Rel)
		}
	}
	for _, p := range diff.Removed {
		delete(e.fingerprints, p)
		if f, ok := prev.File(p); ok {
			report.Removed = append(report.Removed, f.RelPath)
		}
	}

	// Without fresh files the next snapshot is a subset of prev, so equal
	// length means nothing was dropped.
	if len(fresh) == 0 && len(files) == prev.Len() {
		return
	}

	next := registry.Build(prev.Generation+1, files)
	e.registry.Swap(next)
	report.Swapped = true

	// No new call can reach a superseded library once next is published;
	// calls already inside one keep it alive until they return.
	live := next.Handles()
	artifacts := make(map[string]bool, next.Len())
	for _, f := range next.Files() {
		artifacts[f.Artifact] = true
	}
	for _, f := range prev.Files() {
		if live[f.Lib] {
			continue
		}
		e.retire(logger, f.Lib)
		if !artifacts[f.Artifact] {
			if err := os.Remove(f.Artifact); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Debug("stale artifact not removed", "artifact", f.Artifact, "error", err)
			}
		}
	}

	for path, mf := range fresh {
		e.fingerprints[path] = mf.Fingerprint
	}
	e.recordArtifacts(ctx, logger, fresh, seqs, diff.Removed)

	logger.Debug("registry swapped",
		"generation", next.Generation,
		"files", next.Len(),
		"compiled", len(report.Compiled),
		"removed", len(report.Removed))
}

// buildAll compiles and builds every change on a bounded worker pool.
// Results are positional; one file's failure never stops the others.
func (e *Engine) buildAll(ctx context.Context, seq int64, changes []scan.Change) []build {
	out := make([]build, len(changes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, ch := range changes {
		g.Go(func() error {
			out[i] = e.buildOne(gctx, seq, ch)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) buildOne(ctx context.Context, seq int64, ch scan.Change) build {
	data, err := os.ReadFile(ch.Path)
	if err != nil {
		return build{err: classify(err, "read %s", ch.Rel)}
	}

	release, err := e.budget.Acquire(ctx, ch.Path, int64(len(data)))
	if err != nil {
		return build{err: classify(err, "admit %s", ch.Rel)}
	}
	defer release()

	unit, err := e.compiler.Compile(compiler.Source{
		Path:    ch.Path,
		RelPath: ch.Rel,
		Mod:     ch.Mod,
		ModDir:  ch.ModDir,
		Data:    data,
	})
	if err != nil {
		return build{err: classify(err, "compile %s", ch.Rel)}
	}

	artifact := toolchain.ArtifactPath(e.buildDir, ch.Rel, unit.CodegenHash)
	if builtSeq, ok := e.cachedArtifact(ctx, ch.Path, unit, artifact); ok {
		return build{unit: unit, artifact: artifact, cached: true, builtSeq: builtSeq}
	}

	start := time.Now()
	err = e.toolchain.Build(ctx, toolchain.BuildRequest{
		Key:    ch.Rel,
		Source: unit.Generated,
		Output: artifact,
	})
	e.metrics.RecordBuild(time.Since(start))
	if err != nil {
		return build{err: classify(err, "build %s", ch.Rel)}
	}
	return build{unit: unit, artifact: artifact, builtSeq: seq}
}

// cachedArtifact reports whether the build cache already holds an
// artifact generated from identical Go source by this engine version.
func (e *Engine) cachedArtifact(ctx context.Context, path string, unit *compiler.Unit, artifact string) (int64, bool) {
	if e.store == nil {
		return 0, false
	}
	a, ok, err := e.store.LookupArtifact(ctx, path)
	if err != nil || !ok {
		return 0, false
	}
	if a.CodegenHash != unit.CodegenHash || a.ArtifactPath != artifact || a.EngineVersion != ir.EngineVersion {
		return 0, false
	}
	if _, err := os.Stat(artifact); err != nil {
		return 0, false
	}
	return a.BuiltSeq, true
}

// load opens a built artifact and resolves everything the registry needs.
// A library that cannot be bound is retired before returning.
func (e *Engine) load(ch scan.Change, b build) (*registry.ModFile, *EngineError) {
	h, err := e.libs.Load(b.artifact, ch.Path)
	if err != nil {
		return nil, classify(err, "load %s", ch.Rel)
	}
	mf, ee := e.bind(h, ch, b)
	if ee != nil {
		if err := e.libs.Retire(h); err != nil {
			e.logger.Warn("retire unbound library", "handle", h.String(), "error", err)
		}
		return nil, ee
	}
	return mf, nil
}

func (e *Engine) bind(h library.Handle, ch scan.Change, b build) (*registry.ModFile, *EngineError) {
	sym, err := e.libs.Resolve(h, compiler.BindSymbol)
	if err != nil {
		return nil, classify(err, "resolve %s", ch.Rel)
	}
	bindHost, ok := sym.(func(map[string]any) string)
	if !ok {
		return nil, internalError("%s: %s has type %T", ch.Rel, compiler.BindSymbol, sym)
	}
	if name := bindHost(e.host); name != "" {
		want := "function"
		if fn, ok := e.schema.HostFunction(name); ok {
			want = fn.GoSignature()
		}
		return nil, internalError("%s: game function %s is not provided as a %s", ch.Rel, name, want)
	}

	sym, err = e.libs.Resolve(h, compiler.InitGlobalsSymbol)
	if err != nil {
		return nil, classify(err, "resolve %s", ch.Rel)
	}
	initGlobals, ok := sym.(func(uint64) any)
	if !ok {
		return nil, internalError("%s: %s has type %T", ch.Rel, compiler.InitGlobalsSymbol, sym)
	}

	file := b.unit.File
	mf := &registry.ModFile{
		Path:        ch.Path,
		RelPath:     ch.Rel,
		Mod:         file.Mod,
		Name:        file.Name,
		Entity:      file.Entity,
		EntityType:  file.EntityType,
		InitGlobals: initGlobals,
		Lib:         h,
		Fingerprint: ch.Fingerprint,
		SourceHash:  b.unit.SourceHash,
		CodegenHash: b.unit.CodegenHash,
		Artifact:    b.artifact,
		Resources:   file.Resources,
	}
	for _, fn := range file.OnFns {
		sym, err := e.libs.Resolve(h, compiler.OnFnSymbol(fn.Name))
		if err != nil {
			return nil, classify(err, "resolve %s", ch.Rel)
		}
		call, ok := sym.(func(any, []any))
		if !ok {
			return nil, internalError("%s: %s has type %T", ch.Rel, compiler.OnFnSymbol(fn.Name), sym)
		}
		mf.OnFunctions = append(mf.OnFunctions, &registry.OnFunction{
			Name: fn.Name,
			Path: ch.Path,
			Lib:  h,
			Fn:   call,
		})
	}
	return mf, nil
}

// assemble lists the files of the next snapshot in traversal order. A
// fresh build replaces a file's previous entry; a file with neither is
// absent. Entity names stay unique: entries carried over from prev keep
// their claim, and a fresh file colliding with a claimed name is returned
// as a conflict instead.
func assemble(tree *scan.Tree, prev *registry.Snapshot, fresh map[string]*registry.ModFile) ([]*registry.ModFile, []conflict) {
	owner := make(map[string]string)
	for _, entry := range tree.Files {
		if _, ok := fresh[entry.Path]; ok {
			continue
		}
		if old, ok := prev.File(entry.Path); ok {
			owner[old.Entity] = old.Path
		}
	}

	var conflicts []conflict
	rejected := make(map[string]bool)
	for _, entry := range tree.Files {
		mf, ok := fresh[entry.Path]
		if !ok {
			continue
		}
		if p, taken := owner[mf.Entity]; taken && p != mf.Path {
			conflicts = append(conflicts, conflict{file: mf, owner: p})
			rejected[mf.Path] = true
			continue
		}
		owner[mf.Entity] = mf.Path
	}

	var files []*registry.ModFile
	for _, entry := range tree.Files {
		if mf, ok := fresh[entry.Path]; ok && !rejected[entry.Path] {
			files = append(files, mf)
			continue
		}
		if old, ok := prev.File(entry.Path); ok && owner[old.Entity] == old.Path {
			files = append(files, old)
		}
	}
	return files, conflicts
}

func (e *Engine) retire(logger *slog.Logger, h library.Handle) {
	if err := e.libs.Retire(h); err != nil {
		logger.Warn("retire library", "handle", h.String(), "error", err)
	}
}

func (e *Engine) rel(path string) string {
	r, err := filepath.Rel(e.modsDir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(r)
}

// recordArtifacts updates the build cache. Cache failures are logged and
// never fail the cycle.
func (e *Engine) recordArtifacts(ctx context.Context, logger *slog.Logger, fresh map[string]*registry.ModFile, seqs map[string]int64, removed []string) {
	if e.store == nil {
		return
	}
	for path, mf := range fresh {
		err := e.store.RecordArtifact(ctx, store.Artifact{
			SourcePath:    path,
			RelPath:       mf.RelPath,
			SourceHash:    mf.SourceHash,
			CodegenHash:   mf.CodegenHash,
			ArtifactPath:  mf.Artifact,
			Entity:        mf.Entity,
			EntityType:    mf.EntityType,
			EngineVersion: ir.EngineVersion,
			BuiltSeq:      seqs[path],
		})
		if err != nil {
			logger.Warn("build cache write failed", "path", mf.RelPath, "error", err)
		}
	}
	for _, path := range removed {
		if err := e.store.ForgetArtifact(ctx, path); err != nil {
			logger.Warn("build cache delete failed", "path", e.rel(path), "error", err)
		}
	}
}

// recordCycle appends the cycle to the history and updates metrics.
func (e *Engine) recordCycle(ctx context.Context, logger *slog.Logger, r *CycleReport) {
	var failures []string
	for _, ee := range r.Errors {
		code := ee.Code
		if ee.Kind == Internal {
			code = "internal"
		}
		failures = append(failures, code)
	}
	stats := e.libs.Stats()
	e.metrics.RecordCycle(metrics.CycleResult{
		Failed:          r.Failed(),
		Duration:        r.Duration,
		Compiled:        len(r.Compiled),
		Cached:          len(r.Cached),
		Failures:        failures,
		ResourceReloads: len(r.ResourceReloads),
		RegistryFiles:   e.registry.Current().Len(),
		LibrariesLive:   stats.Live,
		LibrariesRetire: stats.Retiring,
	})

	if len(r.Compiled) > 0 || len(r.Removed) > 0 || len(r.ResourceReloads) > 0 {
		logger.Info("mods reloaded",
			"compiled", len(r.Compiled),
			"cached", len(r.Cached),
			"removed", len(r.Removed),
			"resources", len(r.ResourceReloads),
			"failed", len(r.Errors),
			"generation", r.Generation,
			"duration", r.Duration)
	}

	if e.store == nil {
		return
	}
	c := store.Cycle{
		ID:        r.ID,
		Seq:       r.Seq,
		StartedAt: r.StartedAt,
		Duration:  r.Duration,
		Compiled:  len(r.Compiled),
		Cached:    len(r.Cached),
		Removed:   len(r.Removed),
		Failed:    len(r.Errors),
	}
	if r.Failed() {
		c.Error = r.Errors[0].Error()
	}
	if err := e.store.WriteCycle(ctx, c); err != nil {
		logger.Warn("cycle history write failed", "error", err)
		return
	}
	if e.historyLimit > 0 {
		if _, err := e.store.PruneCycles(ctx, e.historyLimit); err != nil {
			logger.Warn("cycle history prune failed", "error", err)
		}
	}
}
