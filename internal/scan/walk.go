// Package scan is the change detector. It walks the mods tree, fingerprints
// every mod source file and resource, and diffs the result against the
// fingerprints recorded for the last successful compile of each file.
package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/lemonlambda/grug-sys/internal/ir"
)

// DefaultExtension is the mod source file extension.
const DefaultExtension = ".grug"

// Entry is one file found by Walk.
type Entry struct {
	Path   string // canonical absolute path
	Rel    string // slash-separated, relative to the mods root
	Mod    string // top-level directory under the root
	ModDir string // canonical path of the mod directory
	Fingerprint
}

// Tree is the result of one walk, in lexical traversal order.
type Tree struct {
	Root      string
	Mods      []string
	Files     []Entry // mod source files
	Resources []Entry // every other regular file inside a mod
}

// Options configures Walk.
type Options struct {
	Extension string     // defaults to DefaultExtension
	Verify    VerifyMode // how source files are fingerprinted
	Skip      []string   // canonical directories to ignore, e.g. a build dir inside the root
}

// Walk scans root. Only files inside a top-level mod directory are
// considered; hidden files and directories are ignored. Resources are
// always fingerprinted by metadata.
func Walk(root string, opts Options) (*Tree, error) {
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}

	canonRoot, err := CanonicalRoot(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(canonRoot)
	if err != nil {
		return nil, fmt.Errorf("scan mods root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan mods root: %s is not a directory", canonRoot)
	}

	skip := make(map[string]bool, len(opts.Skip))
	for _, s := range opts.Skip {
		skip[s] = true
	}

	tree := &Tree{Root: canonRoot}
	err = filepath.WalkDir(canonRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if path == canonRoot {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		path = norm.NFC.String(path)
		rel, err := filepath.Rel(canonRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		mod, _, nested := strings.Cut(rel, "/")

		if d.IsDir() {
			if skip[path] {
				return filepath.SkipDir
			}
			if !nested {
				tree.Mods = append(tree.Mods, mod)
			}
			return nil
		}
		if !nested || !d.Type().IsRegular() {
			return nil
		}

		entry := Entry{
			Path:   path,
			Rel:    rel,
			Mod:    mod,
			ModDir: filepath.Join(canonRoot, mod),
		}
		isSource := strings.HasSuffix(d.Name(), opts.Extension)
		mode := opts.Verify
		if !isSource {
			mode = VerifyMetadata
		}

		fp, err := fingerprintFile(path, mode)
		if errors.Is(err, fs.ErrNotExist) {
			return nil // removed mid-walk
		}
		if err != nil {
			return err
		}
		entry.Fingerprint = fp

		if isSource {
			tree.Files = append(tree.Files, entry)
		} else {
			tree.Resources = append(tree.Resources, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan mods root: %w", err)
	}
	return tree, nil
}

func fingerprintFile(path string, mode VerifyMode) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	fp := Fingerprint{ModTime: info.ModTime(), Size: info.Size()}
	if mode == VerifyContent {
		data, err := os.ReadFile(path)
		if err != nil {
			return Fingerprint{}, err
		}
		// Size from the bytes actually hashed, so the pair is consistent
		// even when the file is rewritten between Stat and ReadFile.
		fp.Size = int64(len(data))
		fp.Hash = ir.SourceHash(data)
	}
	return fp, nil
}
