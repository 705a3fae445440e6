package toolchain

import (
	"fmt"
	"plugin"

	"github.com/lemonlambda/grug-sys/internal/library"
)

// PluginLoader opens artifacts with the standard plugin package.
type PluginLoader struct{}

// Open implements library.Loader.
func (PluginLoader) Open(path string) (library.Library, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin: %w", err)
	}
	return &pluginLibrary{p: p}, nil
}

type pluginLibrary struct {
	p *plugin.Plugin
}

func (l *pluginLibrary) Lookup(symbol string) (any, error) {
	return l.p.Lookup(symbol)
}

// Close is a no-op: the Go runtime cannot unload a plugin. Retirement
// still matters because it is what stops new calls from reaching the old
// code.
func (l *pluginLibrary) Close() error { return nil }
