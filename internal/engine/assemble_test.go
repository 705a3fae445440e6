package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonlambda/grug-sys/internal/registry"
	"github.com/lemonlambda/grug-sys/internal/scan"
)

func treeOf(paths ...string) *scan.Tree {
	tree := &scan.Tree{Root: "/mods"}
	for _, p := range paths {
		tree.Files = append(tree.Files, scan.Entry{Path: "/mods/" + p, Rel: p})
	}
	return tree
}

func modFile(path, entity string) *registry.ModFile {
	return &registry.ModFile{Path: "/mods/" + path, RelPath: path, Entity: entity, Mod: "m"}
}

func TestAssembleKeepsTraversalOrder(t *testing.T) {
	a := modFile("m/a-World.grug", "m:a")
	b := modFile("m/b-World.grug", "m:b")
	prev := registry.Build(1, []*registry.ModFile{a, b})

	b2 := modFile("m/b-World.grug", "m:b")
	c := modFile("m/c-Dog.grug", "m:c")
	fresh := map[string]*registry.ModFile{b2.Path: b2, c.Path: c}

	files, conflicts := assemble(treeOf("m/a-World.grug", "m/b-World.grug", "m/c-Dog.grug"), prev, fresh)
	assert.Empty(t, conflicts)
	require.Len(t, files, 3)
	assert.Same(t, a, files[0])
	assert.Same(t, b2, files[1])
	assert.Same(t, c, files[2])
}

func TestAssembleDropsDeletedFiles(t *testing.T) {
	a := modFile("m/a-World.grug", "m:a")
	b := modFile("m/b-World.grug", "m:b")
	prev := registry.Build(1, []*registry.ModFile{a, b})

	files, conflicts := assemble(treeOf("m/b-World.grug"), prev, nil)
	assert.Empty(t, conflicts)
	assert.Equal(t, []*registry.ModFile{b}, files)
}

func TestAssembleKeptEntryWinsEntityName(t *testing.T) {
	kept := modFile("m/x-World.grug", "m:x")
	prev := registry.Build(1, []*registry.ModFile{kept})

	// Sorts before the kept file but arrives later.
	dup := modFile("m/sub/x-Dog.grug", "m:x")
	fresh := map[string]*registry.ModFile{dup.Path: dup}

	files, conflicts := assemble(treeOf("m/sub/x-Dog.grug", "m/x-World.grug"), prev, fresh)
	require.Len(t, conflicts, 1)
	assert.Same(t, dup, conflicts[0].file)
	assert.Equal(t, kept.Path, conflicts[0].owner)
	assert.Equal(t, []*registry.ModFile{kept}, files)
}

func TestAssembleFreshFilesClaimInTraversalOrder(t *testing.T) {
	prev := registry.Build(0, nil)
	first := modFile("m/sub/x-Dog.grug", "m:x")
	second := modFile("m/x-World.grug", "m:x")
	fresh := map[string]*registry.ModFile{first.Path: first, second.Path: second}

	files, conflicts := assemble(treeOf("m/sub/x-Dog.grug", "m/x-World.grug"), prev, fresh)
	require.Len(t, conflicts, 1)
	assert.Same(t, second, conflicts[0].file)
	assert.Equal(t, []*registry.ModFile{first}, files)
}

func TestAssembleFreeingANameLetsAnotherFileClaimIt(t *testing.T) {
	old := modFile("m/x-World.grug", "m:x")
	prev := registry.Build(1, []*registry.ModFile{old})

	// The old owner was renamed in the same cycle.
	renamed := modFile("m/y-World.grug", "m:y")
	newcomer := modFile("m/sub/x-Dog.grug", "m:x")
	fresh := map[string]*registry.ModFile{renamed.Path: renamed, newcomer.Path: newcomer}

	files, conflicts := assemble(treeOf("m/sub/x-Dog.grug", "m/y-World.grug"), prev, fresh)
	assert.Empty(t, conflicts)
	assert.Equal(t, []*registry.ModFile{newcomer, renamed}, files)
}
