package grug_test

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	grug "github.com/lemonlambda/grug-sys"
	"github.com/lemonlambda/grug-sys/internal/safecall"
	"github.com/lemonlambda/grug-sys/internal/testutil"
)

const (
	worldRel = "example/world-World.grug"
	dogRel   = "example/dog-Dog.grug"
	worldSrc = "on_tick(dt: f32) {\n    println(\"tick\")\n}\n"
	dogSrc   = "on_bark(volume: i32) {\n    println(\"woof\")\n}\n"
)

type fault struct {
	reason   string
	category grug.FaultCategory
	fn, path string
}

func initMods(t *testing.T, l *testutil.Layout, loader *testutil.FakeLoader, faults *[]fault) (*grug.Mods, error) {
	t.Helper()
	onError := func(reason string, category grug.FaultCategory, fn, path string) {
		*faults = append(*faults, fault{reason, category, fn, path})
	}
	mods, err := grug.Init(onError, l.ModAPI, l.Mods, l.Build, 0,
		grug.WithToolchain(testutil.NewFakeToolchain()),
		grug.WithLoader(loader),
		grug.WithLogger(slog.New(slog.DiscardHandler)),
		grug.WithHostFunctions(map[string]any{
			"println":    func(string) {},
			"get_health": func(uint64) int32 { return 100 },
		}),
	)
	if mods != nil {
		t.Cleanup(func() { mods.Close() })
	}
	return mods, err
}

func TestInit_LoadsEveryMod(t *testing.T) {
	l := testutil.NewLayout(t)
	l.Write(t, worldRel, worldSrc)
	l.Write(t, dogRel, dogSrc)

	var faults []fault
	mods, err := initMods(t, l, testutil.NewFakeLoader(), &faults)
	require.NoError(t, err)
	require.NotNil(t, mods)

	worlds := mods.LookupByEntityType("World")
	require.Len(t, worlds, 1)
	assert.Equal(t, "example:world", worlds[0].Entity)

	dog, ok := mods.GetEntityFile("example:dog")
	require.True(t, ok)
	assert.Equal(t, "Dog", dog.EntityType)

	assert.False(t, mods.RegenerateModifiedMods(), "no changes")
	assert.Nil(t, mods.Error())
	assert.FileExists(t, filepath.Join(l.Build, "grug.db"))
}

func TestInit_FirstCycleFails(t *testing.T) {
	l := testutil.NewLayout(t)
	l.Write(t, worldRel, "on_tick(dt: f32) {\n    1 + 2\n}\n")
	l.Write(t, dogRel, dogSrc)

	var faults []fault
	mods, err := initMods(t, l, testutil.NewFakeLoader(), &faults)
	require.Error(t, err)
	require.NotNil(t, mods, "files that compiled are usable")

	_, ok := mods.GetEntityFile("example:dog")
	assert.True(t, ok)
	_, ok = mods.GetEntityFile("example:world")
	assert.False(t, ok)

	require.NotNil(t, mods.Error())
	assert.True(t, mods.Error().HasChanged)

	assert.True(t, mods.RegenerateModifiedMods())
	assert.False(t, mods.Error().HasChanged, "same error is reported once")

	l.Write(t, worldRel, worldSrc)
	assert.False(t, mods.RegenerateModifiedMods())
	_, ok = mods.GetEntityFile("example:world")
	assert.True(t, ok)
}

func TestInit_MissingModsRoot(t *testing.T) {
	l := testutil.NewLayout(t)
	mods, err := grug.Init(nil, l.ModAPI, filepath.Join(l.Root, "none"), l.Build, 0,
		grug.WithLogger(slog.New(slog.DiscardHandler)))
	require.Error(t, err)
	assert.Nil(t, mods)

	var ee *grug.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, ee.Msg, "mods root")
}

func TestRuntimeErrorHandler(t *testing.T) {
	l := testutil.NewLayout(t)
	l.Write(t, worldRel, worldSrc)
	loader := testutil.NewFakeLoader()
	loader.On(worldRel, "on_tick", func(g *testutil.FakeGlobals, args []any) {
		safecall.GameFnError("world %d is on fire", g.Me)
	})

	var faults []fault
	mods, err := initMods(t, l, loader, &faults)
	require.NoError(t, err)

	world, ok := mods.GetEntityFile("example:world")
	require.True(t, ok)
	g, err := mods.NewGlobals(world, 7)
	require.NoError(t, err)

	err = mods.Call(world, "on_tick", g, float32(0.5))
	require.Error(t, err)

	require.Len(t, faults, 1)
	assert.Equal(t, "world 7 is on fire", faults[0].reason)
	assert.Equal(t, safecall.GameFunctionError, faults[0].category)
	assert.Equal(t, "on_tick", faults[0].fn)
	assert.Equal(t, world.Path, faults[0].path)
}
