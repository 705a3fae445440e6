package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonlambda/grug-sys/internal/ir"
	"github.com/lemonlambda/grug-sys/internal/schema"
	"github.com/lemonlambda/grug-sys/internal/testutil"
)

func TestRun_CallsOnFunction(t *testing.T) {
	p := newProject(t)
	p.Write(t, worldRel, worldSrc)

	out, err := execute(t, p.options(), p.flags("run", "example:world", "on_tick", "0.5", "--count", "3", "--me", "9")...)
	require.NoError(t, err)
	assert.Equal(t, "✓ example:world.on_tick (me=9): 3 call(s), 0 fault(s)\n", out)
	assert.Equal(t, []string{
		worldRel + ":on_tick",
		worldRel + ":on_tick",
		worldRel + ":on_tick",
	}, p.loader.Calls())
}

func TestRun_BareEntityName(t *testing.T) {
	p := newProject(t)
	p.Write(t, dogRel, dogSrc)

	out, err := execute(t, p.options(), p.flags("run", "dog", "on_bark", "3")...)
	require.NoError(t, err)
	assert.Contains(t, out, "example:dog.on_bark")
}

func TestRun_FaultsAreReported(t *testing.T) {
	p := newProject(t)
	p.Write(t, worldRel, worldSrc)
	p.loader.On(worldRel, "on_tick", func(g *testutil.FakeGlobals, args []any) {
		panic("boom")
	})

	out, err := execute(t, p.options(), p.flags("run", "example:world", "on_tick", "1", "--count", "2")...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "2 call(s), 2 fault(s)")
	assert.Contains(t, out, "panic in on_tick")
}

func TestRun_Errors(t *testing.T) {
	p := newProject(t)
	p.Write(t, worldRel, worldSrc)

	tests := []struct {
		name     string
		args     []string
		exit     int
		contains string
	}{
		{"unknown entity", []string{"run", "example:cat", "on_tick"}, ExitFailure, "entity example:cat not found"},
		{"wrong argument count", []string{"run", "example:world", "on_tick"}, ExitCommandError, "takes 1 argument(s), got 0"},
		{"unparsable argument", []string{"run", "example:world", "on_tick", "fast"}, ExitCommandError, "argument dt"},
		{"undeclared on-function", []string{"run", "example:world", "on_jump"}, ExitCommandError, "on-function not defined by mod file"},
		{"bad count", []string{"run", "example:world", "on_tick", "1", "--count", "0"}, ExitCommandError, "--count must be at least 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, p.options(), p.flags(tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.exit, GetExitCode(err))
			assert.Contains(t, out, tt.contains)
		})
	}
}

func TestParseArg(t *testing.T) {
	tests := []struct {
		typ  ir.Type
		in   string
		want any
	}{
		{ir.Bool, "true", true},
		{ir.I32, "-7", int32(-7)},
		{ir.F32, "0.25", float32(0.25)},
		{ir.ID, "42", uint64(42)},
		{ir.String, "hi", "hi"},
		{ir.Resource, "sounds/bark.wav", "sounds/bark.wav"},
		{ir.Entity, "example:dog", "example:dog"},
	}
	for _, tt := range tests {
		got, err := parseArg(tt.typ, tt.in)
		require.NoError(t, err, tt.typ)
		assert.Equal(t, tt.want, got, tt.typ)
	}

	_, err := parseArg(ir.I32, "3000000000")
	assert.Error(t, err)
	_, err = parseArg(ir.ID, "-1")
	assert.Error(t, err)
}

func TestParseArgs(t *testing.T) {
	s, err := schema.Parse("mod_api.json", []byte(testutil.ModAPI))
	require.NoError(t, err)

	args, err := parseArgs(s, "Dog", "on_bark", []string{"5"})
	require.NoError(t, err)
	assert.Equal(t, []any{int32(5)}, args)

	_, err = parseArgs(s, "Cat", "on_bark", nil)
	assert.ErrorContains(t, err, "entity type Cat")
}
