// Package registry is the process-wide table of loaded mod files.
//
// The table is an immutable Snapshot. The reload cycle builds a new one
// and swaps it in atomically; readers load the current pointer once and
// see a consistent view for as long as they hold it.
package registry

import (
	"strings"
	"sync/atomic"

	"github.com/lemonlambda/grug-sys/internal/library"
	"github.com/lemonlambda/grug-sys/internal/scan"
)

// OnFunction is one exported callback of a mod file.
type OnFunction struct {
	Name string
	Path string // originating mod file
	Lib  library.Handle
	Fn   func(globals any, args []any)
}

// ModFile is one successfully compiled and loaded mod file. Values are
// never mutated after publication; an unchanged file keeps the same
// pointer across snapshots.
type ModFile struct {
	Path       string // canonical source path, the file's identity
	RelPath    string
	Mod        string
	Name       string
	Entity     string // "<mod>:<name>"
	EntityType string

	OnFunctions []*OnFunction // mod API declaration order, defined ones only
	InitGlobals func(me uint64) any
	Lib         library.Handle

	Fingerprint scan.Fingerprint
	SourceHash  string
	CodegenHash string
	Artifact    string
	Resources   []string
}

// OnFunction returns the named callback, if the file defines it.
func (f *ModFile) OnFunction(name string) (*OnFunction, bool) {
	for _, fn := range f.OnFunctions {
		if fn.Name == name {
			return fn, true
		}
	}
	return nil, false
}

// ModDir groups the files of one mod in traversal order.
type ModDir struct {
	Name  string
	Files []*ModFile
}

// Snapshot is one immutable version of the registry.
type Snapshot struct {
	Generation uint64
	Dirs       []*ModDir

	files    []*ModFile
	byPath   map[string]*ModFile
	byEntity map[string]*ModFile
	byName   map[string]*ModFile
	byType   map[string][]*ModFile
}

// Build assembles a snapshot from files in traversal order. Callers
// guarantee at most one file per path and per entity.
func Build(generation uint64, files []*ModFile) *Snapshot {
	s := &Snapshot{
		Generation: generation,
		files:      files,
		byPath:     make(map[string]*ModFile, len(files)),
		byEntity:   make(map[string]*ModFile, len(files)),
		byName:     make(map[string]*ModFile, len(files)),
		byType:     make(map[string][]*ModFile),
	}

	dirs := make(map[string]*ModDir)
	for _, f := range files {
		d, ok := dirs[f.Mod]
		if !ok {
			d = &ModDir{Name: f.Mod}
			dirs[f.Mod] = d
			s.Dirs = append(s.Dirs, d)
		}
		d.Files = append(d.Files, f)

		s.byPath[f.Path] = f
		s.byEntity[f.Entity] = f
		if _, taken := s.byName[f.Name]; !taken {
			s.byName[f.Name] = f
		}
		s.byType[f.EntityType] = append(s.byType[f.EntityType], f)
	}
	return s
}

// Files returns every file in traversal order. The slice must not be
// modified.
func (s *Snapshot) Files() []*ModFile { return s.files }

// Len is the number of registered files.
func (s *Snapshot) Len() int { return len(s.files) }

// File looks a file up by canonical path.
func (s *Snapshot) File(path string) (*ModFile, bool) {
	f, ok := s.byPath[path]
	return f, ok
}

// Entity looks a file up by entity name. A qualified "mod:name" matches
// exactly; a bare "name" matches the first file with that name in
// traversal order.
func (s *Snapshot) Entity(name string) (*ModFile, bool) {
	if strings.Contains(name, ":") {
		f, ok := s.byEntity[name]
		return f, ok
	}
	f, ok := s.byName[name]
	return f, ok
}

// EntityType returns every file of the given entity type in traversal
// order, for broadcasting an event.
func (s *Snapshot) EntityType(name string) []*ModFile {
	return s.byType[name]
}

// Handles returns the library handle of every file.
func (s *Snapshot) Handles() map[library.Handle]bool {
	out := make(map[library.Handle]bool, len(s.files))
	for _, f := range s.files {
		out[f.Lib] = true
	}
	return out
}

// Registry holds the current snapshot.
type Registry struct {
	cur atomic.Pointer[Snapshot]
}

// New returns a registry holding an empty generation-0 snapshot.
func New() *Registry {
	r := &Registry{}
	r.cur.Store(Build(0, nil))
	return r
}

// Current returns the live snapshot.
func (r *Registry) Current() *Snapshot { return r.cur.Load() }

// Swap publishes next and returns the snapshot it replaced.
func (r *Registry) Swap(next *Snapshot) *Snapshot { return r.cur.Swap(next) }
