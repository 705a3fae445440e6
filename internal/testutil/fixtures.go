package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// ModAPI is a small mod API used across engine, harness and CLI tests.
const ModAPI = `{
	"entities": {
		"World": {
			"description": "The one world entity",
			"on_functions": {
				"on_spawn": {},
				"on_tick": {
					"arguments": [{"name": "dt", "type": "f32"}]
				}
			}
		},
		"Dog": {
			"on_functions": {
				"on_bark": {
					"arguments": [{"name": "volume", "type": "i32"}]
				}
			}
		}
	},
	"game_functions": {
		"println": {"arguments": [{"name": "message", "type": "string"}]},
		"get_health": {"return_type": "i32", "arguments": [{"name": "who", "type": "id"}]}
	}
}`

// Layout is a temp directory holding a mod API file, a mods root and a
// build directory.
type Layout struct {
	Root   string
	ModAPI string
	Mods   string
	Build  string
	Cache  string
}

// NewLayout creates a Layout under t.TempDir() with ModAPI written and the
// mods and build directories created.
func NewLayout(t *testing.T) *Layout {
	t.Helper()
	root := t.TempDir()
	l := &Layout{
		Root:   root,
		ModAPI: filepath.Join(root, "mod_api.json"),
		Mods:   filepath.Join(root, "mods"),
		Build:  filepath.Join(root, "mods_build"),
		Cache:  filepath.Join(root, "cache.db"),
	}
	WriteFile(t, l.ModAPI, ModAPI)
	if err := os.MkdirAll(l.Mods, 0o755); err != nil {
		t.Fatalf("mkdir mods: %v", err)
	}
	return l
}

// Write writes a file relative to the mods root and returns its path.
func (l *Layout) Write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(l.Mods, filepath.FromSlash(rel))
	WriteFile(t, path, content)
	return path
}

// Remove deletes a file relative to the mods root.
func (l *Layout) Remove(t *testing.T, rel string) {
	t.Helper()
	if err := os.Remove(filepath.Join(l.Mods, filepath.FromSlash(rel))); err != nil {
		t.Fatalf("remove %s: %v", rel, err)
	}
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
