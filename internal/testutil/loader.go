package testutil

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"strings"
	"sync"

	"github.com/lemonlambda/grug-sys/internal/library"
)

// OnFunc is a scripted on-function body for FakeLoader.
type OnFunc func(g *FakeGlobals, args []any)

// FakeGlobals is what a FakeLoader library's Grug_init_globals returns.
type FakeGlobals struct {
	Me     uint64
	Source string // mod file relative path
	Calls  []string
}

// FakeLoader opens artifacts written by FakeToolchain. It reads the
// generated Go source, finds the exported Grug_* functions and serves Go
// closures for them. On-function bodies do nothing unless scripted with On.
//
// Thread-safety: FakeLoader is safe for concurrent use.
type FakeLoader struct {
	mu        sync.Mutex
	behaviors map[string]OnFunc
	hidden    map[string]bool
	opened    []string
	calls     []string
}

// NewFakeLoader returns an empty loader.
func NewFakeLoader() *FakeLoader {
	return &FakeLoader{
		behaviors: make(map[string]OnFunc),
		hidden:    make(map[string]bool),
	}
}

// On scripts the body of onFn for the mod file at rel (e.g.
// "example/world-World.grug").
func (l *FakeLoader) On(rel, onFn string, fn OnFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.behaviors[rel+":"+onFn] = fn
}

// HideSymbol makes Lookup of symbol fail in every library opened afterwards.
func (l *FakeLoader) HideSymbol(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hidden[symbol] = true
}

// Opened returns every artifact path opened so far, in order.
func (l *FakeLoader) Opened() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.opened...)
}

// Calls returns every on-function invocation as "<rel>:<on_fn>", in order.
func (l *FakeLoader) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// Open implements library.Loader.
func (l *FakeLoader) Open(path string) (library.Library, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := parser.ParseFile(token.NewFileSet(), path, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("fake loader: %w", err)
	}

	lib := &fakeLibrary{
		loader:  l,
		source:  sourceHeader(src),
		symbols: make(map[string]any),
	}
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if strings.HasPrefix(d.Name.Name, "Grug_") {
				lib.funcs = append(lib.funcs, d.Name.Name)
			}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				if vs, ok := spec.(*ast.ValueSpec); ok {
					for _, n := range vs.Names {
						if name, ok := strings.CutPrefix(n.Name, "host_"); ok {
							lib.hostFns = append(lib.hostFns, name)
						}
					}
				}
			}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.opened = append(l.opened, path)
	for _, name := range lib.funcs {
		if !l.hidden[name] {
			lib.symbols[name] = lib.symbol(name)
		}
	}
	return lib, nil
}

func sourceHeader(src []byte) string {
	for _, line := range strings.Split(string(src), "\n") {
		if rel, ok := strings.CutPrefix(line, "// Source: "); ok {
			return rel
		}
	}
	return ""
}

type fakeLibrary struct {
	loader  *FakeLoader
	source  string
	funcs   []string
	hostFns []string
	symbols map[string]any
}

func (lib *fakeLibrary) symbol(name string) any {
	switch name {
	case "Grug_bind":
		return func(host map[string]any) string {
			for _, fn := range lib.hostFns {
				if _, ok := host[fn]; !ok {
					return fn
				}
			}
			return ""
		}
	case "Grug_init_globals":
		return func(me uint64) any {
			return &FakeGlobals{Me: me, Source: lib.source}
		}
	}

	onFn := strings.TrimPrefix(name, "Grug_")
	key := lib.source + ":" + onFn
	return func(gp any, args []any) {
		g := gp.(*FakeGlobals)
		g.Calls = append(g.Calls, onFn)

		lib.loader.mu.Lock()
		lib.loader.calls = append(lib.loader.calls, key)
		fn := lib.loader.behaviors[key]
		lib.loader.mu.Unlock()

		if fn != nil {
			fn(g, args)
		}
	}
}

func (lib *fakeLibrary) Lookup(symbol string) (any, error) {
	s, ok := lib.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("symbol %s not found in %s", symbol, lib.source)
	}
	return s, nil
}

func (lib *fakeLibrary) Close() error { return nil }
