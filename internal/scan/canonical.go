package scan

import (
	"fmt"
	"path/filepath"

	"golang.org/x/text/unicode/norm"
)

// Canonical returns the identity of a source path: absolute, cleaned and
// NFC-normalised. Two spellings of the same file (relative vs absolute,
// NFD names as produced by some filesystems) map to one canonical path,
// which is what keeps the registry at one entry per file.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("canonical path %q: %w", path, err)
	}
	return norm.NFC.String(filepath.Clean(abs)), nil
}

// CanonicalRoot is like Canonical but also resolves symlinks, so a mods
// root reached through a link still yields stable paths for the files
// beneath it.
func CanonicalRoot(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	return Canonical(resolved)
}
