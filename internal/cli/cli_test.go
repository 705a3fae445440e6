package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/lemonlambda/grug-sys/internal/engine"
	"github.com/lemonlambda/grug-sys/internal/testutil"
)

const (
	worldRel = "example/world-World.grug"
	dogRel   = "example/dog-Dog.grug"

	worldSrc = "on_tick(dt: f32) {\n    println(\"tick\")\n}\n"
	dogSrc   = "volume_boost: i32 = 2\n\non_bark(volume: i32) {\n    println(\"woof\")\n}\n"
)

// project is a mods tree with fake build and load services.
type project struct {
	*testutil.Layout
	tc     *testutil.FakeToolchain
	loader *testutil.FakeLoader
}

func newProject(t *testing.T) *project {
	t.Helper()
	return &project{
		Layout: testutil.NewLayout(t),
		tc:     testutil.NewFakeToolchain(),
		loader: testutil.NewFakeLoader(),
	}
}

// options returns root options that start engines with the fakes.
func (p *project) options() *RootOptions {
	return &RootOptions{
		EngineOptions: []engine.Option{
			engine.WithToolchain(p.tc),
			engine.WithLoader(p.loader),
			engine.WithCycleIDGenerator(testutil.NewSequentialIDs("")),
		},
	}
}

// flags builds a command line for subcommand args[0] locating the project.
// Flags in args[1:] come last and so override the defaults.
func (p *project) flags(args ...string) []string {
	out := []string{args[0],
		"--schema", p.ModAPI,
		"--mods", p.Mods,
		"--build", p.Build,
		"--cache", p.Cache,
	}
	return append(out, args[1:]...)
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), opts, args...)
}

func executeContext(t *testing.T, ctx context.Context, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand(opts)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if testing.Verbose() && errOut.Len() > 0 {
		t.Logf("stderr:\n%s", errOut.String())
	}
	return out.String(), err
}
