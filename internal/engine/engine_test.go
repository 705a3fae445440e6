package engine

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonlambda/grug-sys/internal/compiler"
	"github.com/lemonlambda/grug-sys/internal/library"
	"github.com/lemonlambda/grug-sys/internal/metrics"
	"github.com/lemonlambda/grug-sys/internal/safecall"
	"github.com/lemonlambda/grug-sys/internal/testutil"
)

const (
	worldRel = "example/world-World.grug"
	dogRel   = "example/dog-Dog.grug"

	worldSrc = "on_tick(dt: f32) {\n    println(\"tick\")\n}\n"
	dogSrc   = "volume_boost: i32 = 2\n\non_bark(volume: i32) {\n    println(\"woof\")\n}\n"
)

// fixture wires an engine to the fake toolchain and loader.
type fixture struct {
	layout *testutil.Layout
	tc     *testutil.FakeToolchain
	loader *testutil.FakeLoader
	engine *Engine

	mu     sync.Mutex
	faults []safecall.Fault
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		layout: testutil.NewLayout(t),
		tc:     testutil.NewFakeToolchain(),
		loader: testutil.NewFakeLoader(),
	}
}

func hostFunctions() map[string]any {
	return map[string]any{
		"println":    func(string) {},
		"get_health": func(uint64) int32 { return 100 },
	}
}

func (f *fixture) start(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	cfg.SchemaPath = f.layout.ModAPI
	cfg.ModsDir = f.layout.Mods
	cfg.BuildDir = f.layout.Build

	all := []Option{
		WithToolchain(f.tc),
		WithLoader(f.loader),
		WithCycleIDGenerator(testutil.NewSequentialIDs("")),
		WithHostFunctions(hostFunctions()),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithFaultHandler(func(fault safecall.Fault) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.faults = append(f.faults, fault)
		}),
	}
	e, err := New(cfg, append(all, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	f.engine = e
	return e
}

func (f *fixture) faultCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.faults)
}

func regenerate(t *testing.T, e *Engine) *CycleReport {
	t.Helper()
	report, err := e.Regenerate(context.Background())
	require.NoError(t, err)
	return report
}

func regenerateFails(t *testing.T, e *Engine) (*CycleReport, *EngineError) {
	t.Helper()
	report, err := e.Regenerate(context.Background())
	require.Error(t, err)
	ee, ok := AsEngineError(err)
	require.True(t, ok, "want *EngineError, got %T", err)
	return report, ee
}

func TestInitialCycleCompilesEverything(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	f.layout.Write(t, dogRel, dogSrc)
	e := f.start(t, Config{})

	report := regenerate(t, e)
	assert.Equal(t, "cycle-1", report.ID)
	assert.Equal(t, int64(1), report.Seq)
	assert.Equal(t, []string{dogRel, worldRel}, report.Compiled)
	assert.True(t, report.Swapped)
	assert.Equal(t, uint64(1), report.Generation)
	assert.Nil(t, e.Error())

	world, ok := e.GetEntityFile("example:world")
	require.True(t, ok)
	assert.Equal(t, "World", world.EntityType)
	assert.Equal(t, worldRel, world.RelPath)
	require.Len(t, world.OnFunctions, 1)
	assert.Equal(t, "on_tick", world.OnFunctions[0].Name)
	assert.Equal(t, world.Path, world.OnFunctions[0].Path)

	bare, ok := e.GetEntityFile("world")
	require.True(t, ok)
	assert.Same(t, world, bare)

	assert.Len(t, e.LookupByEntityType("World"), 1)
	assert.Len(t, e.LookupByEntityType("Dog"), 1)
	assert.Empty(t, e.LookupByEntityType("Cat"))

	snap := e.Snapshot()
	require.Len(t, snap.Dirs, 1)
	assert.Equal(t, "example", snap.Dirs[0].Name)
	assert.Equal(t, 2, e.Libraries().Live)
}

func TestRegenerateWithoutChangesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	f.layout.Write(t, dogRel, dogSrc)
	e := f.start(t, Config{})
	regenerate(t, e)
	before := e.Snapshot()
	builds := f.tc.Total()

	report := regenerate(t, e)
	assert.False(t, report.Swapped)
	assert.Empty(t, report.Compiled)
	assert.Equal(t, 2, report.Unchanged)
	assert.Same(t, before, e.Snapshot())
	assert.Equal(t, builds, f.tc.Total())

	assert.False(t, e.RegenerateModifiedMods())
	assert.Same(t, before, e.Snapshot())
}

func TestModifyingOneFileRecompilesOnlyThatFile(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	f.layout.Write(t, dogRel, dogSrc)
	e := f.start(t, Config{})
	regenerate(t, e)

	oldWorld, _ := e.GetEntityFile("example:world")
	oldDog, _ := e.GetEntityFile("example:dog")

	f.layout.Write(t, worldRel, "on_tick(dt: f32) {\n    println(\"tock\")\n}\n")
	report := regenerate(t, e)

	assert.Equal(t, []string{worldRel}, report.Compiled)
	assert.Equal(t, uint64(2), report.Generation)
	assert.Equal(t, 2, f.tc.Builds(worldRel))
	assert.Equal(t, 1, f.tc.Builds(dogRel))

	newWorld, _ := e.GetEntityFile("example:world")
	newDog, _ := e.GetEntityFile("example:dog")
	assert.Same(t, oldDog, newDog)
	assert.NotSame(t, oldWorld, newWorld)
	assert.NotEqual(t, oldWorld.CodegenHash, newWorld.CodegenHash)

	// The superseded library is retired and its artifact removed.
	assert.False(t, e.libs.Live(oldWorld.Lib))
	assert.True(t, e.libs.Live(newWorld.Lib))
	assert.NoFileExists(t, oldWorld.Artifact)
	assert.FileExists(t, newWorld.Artifact)
}

func TestDeletingFileRemovesEntry(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	f.layout.Write(t, dogRel, dogSrc)
	e := f.start(t, Config{})
	regenerate(t, e)
	dog, _ := e.GetEntityFile("example:dog")

	f.layout.Remove(t, dogRel)
	report := regenerate(t, e)

	assert.Equal(t, []string{dogRel}, report.Removed)
	_, ok := e.GetEntityFile("example:dog")
	assert.False(t, ok)
	assert.Empty(t, e.LookupByEntityType("Dog"))
	assert.False(t, e.libs.Live(dog.Lib))
	assert.Equal(t, 1, e.Snapshot().Len())
}

func TestSyntaxErrorKeepsLastKnownGood(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	e := f.start(t, Config{})
	regenerate(t, e)
	good, _ := e.GetEntityFile("example:world")

	f.layout.Write(t, worldRel, "on_tick(dt: f32) {\n    1 + 2\n}\n")
	report, ee := regenerateFails(t, e)

	assert.Equal(t, ModSource, ee.Kind)
	assert.Equal(t, compiler.ErrParse, ee.Code)
	assert.Equal(t, good.Path, ee.Path)
	assert.Equal(t, 2, ee.Line)
	assert.True(t, ee.HasChanged)
	assert.True(t, report.Failed())
	assert.False(t, report.Swapped)

	cur, ok := e.GetEntityFile("example:world")
	require.True(t, ok)
	assert.Same(t, good, cur)
	assert.True(t, e.libs.Live(good.Lib))

	// Same broken file, same error: reported, but not as a change.
	_, again := regenerateFails(t, e)
	assert.False(t, again.HasChanged)
	assert.True(t, e.RegenerateModifiedMods())
	require.NotNil(t, e.Error())
	assert.False(t, e.Error().HasChanged)

	// Fixing the file clears the error.
	f.layout.Write(t, worldRel, "on_tick(dt: f32) {\n    println(\"fixed\")\n}\n")
	report = regenerate(t, e)
	assert.Equal(t, []string{worldRel}, report.Compiled)
	assert.Nil(t, e.Error())
}

func TestDistinctErrorIsReportedAsChanged(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, "on_tick(dt: f32) {\n    1 + 2\n}\n")
	e := f.start(t, Config{})

	_, first := regenerateFails(t, e)
	assert.True(t, first.HasChanged)

	f.layout.Write(t, worldRel, "on_tick(dt: f32) {\n    println(missing)\n}\n")
	_, second := regenerateFails(t, e)
	assert.Equal(t, compiler.ErrUnknownIdentifier, second.Code)
	assert.True(t, second.HasChanged)
}

func TestFailingFileDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	f.layout.Write(t, "example/cat-Cat.grug", "on_meow() {\n}\n")
	e := f.start(t, Config{})

	report, ee := regenerateFails(t, e)
	assert.Equal(t, compiler.ErrUnknownEntityType, ee.Code)
	assert.Equal(t, 0, ee.Line)
	assert.Equal(t, []string{worldRel}, report.Compiled)

	_, ok := e.GetEntityFile("example:world")
	assert.True(t, ok)
	_, ok = e.GetEntityFile("example:cat")
	assert.False(t, ok)
}

func TestToolchainFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	f.tc.Fail(worldRel, "mod.go:12: undefined: host_println")
	e := f.start(t, Config{})

	_, ee := regenerateFails(t, e)
	assert.Equal(t, Internal, ee.Kind)
	assert.Empty(t, ee.Path)
	assert.Equal(t, "cycle.go", ee.EngineFile)
	assert.Greater(t, ee.EngineLine, 0)
	assert.Contains(t, ee.Msg, "build "+worldRel)
	assert.Contains(t, ee.Error(), "undefined: host_println")
	assert.False(t, IsModSourceError(ee))
}

func TestMissingSymbolIsInternal(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	f.loader.HideSymbol(compiler.OnFnSymbol("on_tick"))
	e := f.start(t, Config{})

	_, ee := regenerateFails(t, e)
	assert.Equal(t, Internal, ee.Kind)
	assert.ErrorIs(t, ee, library.ErrSymbolNotFound)
	assert.Equal(t, 0, e.Libraries().Live)
}

func TestMissingHostFunctionFailsBinding(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	e := f.start(t, Config{})
	delete(e.host, "println")

	_, ee := regenerateFails(t, e)
	assert.Equal(t, Internal, ee.Kind)
	assert.Contains(t, ee.Msg, "game function println is not provided as a func(string)")
}

func TestSafeModeContainsFault(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	f.loader.On(worldRel, "on_tick", func(g *testutil.FakeGlobals, args []any) {
		var p *testutil.FakeGlobals
		g.Me = p.Me
	})
	e := f.start(t, Config{})
	regenerate(t, e)
	assert.Equal(t, safecall.Safe, e.Mode())

	world, _ := e.GetEntityFile("example:world")
	g, err := e.NewGlobals(world, 1)
	require.NoError(t, err)

	err = e.Call(world, "on_tick", g, float32(0.016))
	require.Error(t, err)
	fault, ok := safecall.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, safecall.InvalidMemoryAccess, fault.Category)

	require.Equal(t, 1, f.faultCount())
	assert.Equal(t, "on_tick", f.faults[0].FnName)
	assert.Equal(t, world.Path, f.faults[0].Path)

	// The host keeps running and the library is not leaked.
	assert.Equal(t, 0, e.Libraries().Inflight)
	assert.True(t, e.libs.Live(world.Lib))

	e.SetOnFunctionsToUnsafeMode()
	assert.Panics(t, func() {
		_ = e.Call(world, "on_tick", g, float32(0.016))
	})
	assert.Equal(t, 1, f.faultCount())
	assert.Equal(t, 0, e.Libraries().Inflight)

	e.SetOnFunctionsToSafeMode()
	assert.Equal(t, safecall.Safe, e.Mode())
}

func TestGameFunctionErrorIsReported(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	f.loader.On(worldRel, "on_tick", func(g *testutil.FakeGlobals, args []any) {
		safecall.GameFnError("println called with %d bytes", 0)
	})
	e := f.start(t, Config{})
	regenerate(t, e)

	world, _ := e.GetEntityFile("world")
	g, err := e.NewGlobals(world, 1)
	require.NoError(t, err)

	err = e.Call(world, "on_tick", g, float32(1))
	fault, ok := safecall.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, safecall.GameFunctionError, fault.Category)
	assert.Equal(t, "println called with 0 bytes", fault.Reason)
}

func TestCallValidatesArguments(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	e := f.start(t, Config{})
	regenerate(t, e)

	world, _ := e.GetEntityFile("world")
	g, err := e.NewGlobals(world, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), g.(*testutil.FakeGlobals).Me)

	assert.ErrorIs(t, e.Call(world, "on_spawn", g), ErrUndefinedOnFunction)
	assert.ErrorIs(t, e.Call(world, "on_tick", g), ErrBadArguments)
	assert.ErrorIs(t, e.Call(world, "on_tick", g, 0.5), ErrBadArguments)

	require.NoError(t, e.Call(world, "on_tick", g, float32(0.5)))
	assert.Equal(t, []string{"on_tick"}, g.(*testutil.FakeGlobals).Calls)
}

func TestInFlightCallDefersRetire(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)

	started := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	f.loader.On(worldRel, "on_tick", func(g *testutil.FakeGlobals, args []any) {
		first := false
		once.Do(func() { first = true })
		if first {
			close(started)
			<-unblock
		}
	})
	e := f.start(t, Config{})
	regenerate(t, e)

	old, _ := e.GetEntityFile("world")
	g, err := e.NewGlobals(old, 1)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Call(old, "on_tick", g, float32(1)) }()
	<-started

	f.layout.Write(t, worldRel, "on_tick(dt: f32) {\n    println(\"v2\")\n}\n")
	regenerate(t, e)

	stats := e.Libraries()
	assert.Equal(t, 1, stats.Retiring)
	assert.Equal(t, 1, stats.Inflight)
	assert.False(t, e.libs.Live(old.Lib))

	// No new call may start in the superseded library.
	assert.ErrorIs(t, e.Call(old, "on_tick", g, float32(1)), library.ErrRetired)

	close(unblock)
	require.NoError(t, <-done)

	stats = e.Libraries()
	assert.Equal(t, 0, stats.Retiring)
	assert.Equal(t, 0, stats.Inflight)
	assert.ErrorIs(t, e.Call(old, "on_tick", g, float32(1)), library.ErrStale)

	cur, _ := e.GetEntityFile("world")
	g2, err := e.NewGlobals(cur, 1)
	require.NoError(t, err)
	assert.NoError(t, e.Call(cur, "on_tick", g2, float32(1)))
}

func TestDuplicateEntityName(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	e := f.start(t, Config{})
	regenerate(t, e)
	world, _ := e.GetEntityFile("example:world")

	// Earlier in traversal order, but the existing entry keeps its name.
	f.layout.Write(t, "example/pets/world-Dog.grug", dogSrc)
	report, ee := regenerateFails(t, e)

	assert.Equal(t, compiler.ErrDuplicateEntity, ee.Code)
	assert.True(t, strings.HasSuffix(ee.Path, filepath.FromSlash("pets/world-Dog.grug")))
	assert.Contains(t, ee.Msg, worldRel)
	assert.Empty(t, report.Compiled)

	cur, _ := e.GetEntityFile("example:world")
	assert.Same(t, world, cur)
	assert.Equal(t, 1, e.Libraries().Live)
}

func TestDuplicateEntityNameOnFirstScan(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	f.layout.Write(t, "example/pets/world-Dog.grug", dogSrc)
	e := f.start(t, Config{})

	report, ee := regenerateFails(t, e)
	assert.Equal(t, compiler.ErrDuplicateEntity, ee.Code)
	assert.Equal(t, []string{"example/pets/world-Dog.grug"}, report.Compiled)

	cur, ok := e.GetEntityFile("example:world")
	require.True(t, ok)
	assert.Equal(t, "Dog", cur.EntityType)
}

func TestResourceReloads(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	f.layout.Write(t, "example/sounds/bark.wav", "RIFF")
	e := f.start(t, Config{})

	report := regenerate(t, e)
	assert.Empty(t, report.ResourceReloads)

	f.layout.Write(t, "example/sounds/bark.wav", "RIFF-longer")
	report = regenerate(t, e)
	assert.Equal(t, []string{"example/sounds/bark.wav"}, report.ResourceReloads)
	assert.False(t, report.Swapped)
}

func TestArenaCapacityRejectsOversizedFile(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	f.layout.Write(t, "example/tiny-Dog.grug", "on_bark(volume: i32) {\n}\n")
	e := f.start(t, Config{ArenaCapacity: 30})

	report, ee := regenerateFails(t, e)
	assert.Equal(t, compiler.ErrTooLarge, ee.Code)
	assert.True(t, strings.HasSuffix(ee.Path, "world-World.grug"))
	assert.Equal(t, []string{"example/tiny-Dog.grug"}, report.Compiled)
}

func TestBuildCacheSkipsToolchainAcrossRestarts(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	f.layout.Write(t, dogRel, dogSrc)

	first := f.start(t, Config{CachePath: f.layout.Cache})
	regenerate(t, first)
	require.NoError(t, first.Close())
	require.Equal(t, 2, f.tc.Total())

	f.tc = testutil.NewFakeToolchain()
	second := f.start(t, Config{CachePath: f.layout.Cache})
	report := regenerate(t, second)

	assert.Equal(t, int64(2), report.Seq)
	assert.Equal(t, "cycle-2", report.ID)
	assert.Equal(t, []string{dogRel, worldRel}, report.Cached)
	assert.Equal(t, 0, f.tc.Total())

	cycles, err := second.store.RecentCycles(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	assert.Equal(t, 2, cycles[0].Cached)
	assert.Equal(t, 2, cycles[1].Compiled)
}

func TestBuildDirectoryInsideModsIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.layout.Build = filepath.Join(f.layout.Mods, "example", "build")
	f.layout.Write(t, worldRel, worldSrc)
	e := f.start(t, Config{})

	regenerate(t, e)
	report := regenerate(t, e)
	assert.Empty(t, report.ResourceReloads)
	assert.Equal(t, 1, report.Unchanged)
}

func TestNewRejectsBadInputs(t *testing.T) {
	f := newFixture(t)
	testutil.WriteFile(t, f.layout.ModAPI, `{"entities": {"World": {"on_functions": {"tick": {}}}}}`)

	_, err := New(Config{SchemaPath: f.layout.ModAPI, ModsDir: f.layout.Mods, BuildDir: f.layout.Build})
	require.Error(t, err)
	ee, ok := AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, Internal, ee.Kind)

	f = newFixture(t)
	_, err = New(Config{SchemaPath: f.layout.ModAPI, ModsDir: filepath.Join(f.layout.Root, "missing"), BuildDir: f.layout.Build})
	assert.Error(t, err)
}

func TestClosedEngineRejectsRegenerate(t *testing.T) {
	f := newFixture(t)
	e := f.start(t, Config{})
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err := e.Regenerate(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentReadersNeverSeeRetiredLibraries(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)
	e := f.start(t, Config{})
	regenerate(t, e)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var bad error
	var badOnce sync.Once
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, file := range e.LookupByEntityType("World") {
					g, err := e.NewGlobals(file, 1)
					if err == nil {
						err = e.Call(file, "on_tick", g, float32(1))
					}
					// A reader may race a swap and hold a just-retired file.
					if err != nil && !errors.Is(err, library.ErrRetired) && !errors.Is(err, library.ErrStale) {
						badOnce.Do(func() { bad = err })
					}
				}
			}
		}()
	}

	for i := 0; i < 10; i++ {
		src := "on_tick(dt: f32) {\n    println(\"v" + strings.Repeat("i", i) + "\")\n}\n"
		f.layout.Write(t, worldRel, src)
		regenerate(t, e)
	}
	close(stop)
	wg.Wait()

	assert.NoError(t, bad)
	assert.Equal(t, 1, e.Libraries().Live)
	assert.Equal(t, 0, e.Libraries().Retiring)
}

func TestCycleHistoryAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.layout.Write(t, worldRel, worldSrc)

	reg := prometheus.NewRegistry()
	collector := metrics.NewWithRegistry(reg)
	clock := testutil.NewStepClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), 250*time.Millisecond)
	e := f.start(t, Config{CachePath: f.layout.Cache},
		WithMetrics(collector),
		WithNow(clock.Now),
		WithHistoryLimit(2))

	first := regenerate(t, e)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), first.StartedAt)
	assert.Equal(t, 250*time.Millisecond, first.Duration)

	f.layout.Write(t, worldRel, "on_tick(dt: f32) {\n    1 + 2\n}\n")
	regenerateFails(t, e)
	f.layout.Write(t, worldRel, worldSrc)
	regenerate(t, e)

	cycles, err := e.store.RecentCycles(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	assert.Equal(t, int64(3), cycles[0].Seq)
	assert.Equal(t, int64(2), cycles[1].Seq)
	assert.Equal(t, 1, cycles[1].Failed)
	assert.Contains(t, cycles[1].Error, "[E102]")

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "grug_reload_cycles_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			counts[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"ok": 2, "failed": 1}, counts)
}
