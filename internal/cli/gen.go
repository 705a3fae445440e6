package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lemonlambda/grug-sys/internal/compiler"
	"github.com/lemonlambda/grug-sys/internal/scan"
)

// GenOptions holds flags for the gen command.
type GenOptions struct {
	*RootOptions
	OutputDir string
}

// GenFile describes one generated plugin source.
type GenFile struct {
	Path        string `json:"path"`
	Output      string `json:"output,omitempty"`
	SourceHash  string `json:"source_hash"`
	CodegenHash string `json:"codegen_hash"`
}

// GenResult lists the generated sources.
type GenResult struct {
	Files []GenFile `json:"files"`
}

func (r GenResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Generated %d plugin source(s)", len(r.Files))
	for _, f := range r.Files {
		fmt.Fprintf(&b, "\n  %s -> %s", f.Path, f.Output)
	}
	return b.String()
}

// NewGenCommand creates the gen command.
func NewGenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "gen <mod-file>...",
		Short: "Print or write the Go plugin source for mod files",
		Long: `Compile mod files to the Go plugin source the engine builds.

With a single file and no --out, the source is printed to stdout. With --out,
each file is written to <out>/<path relative to the mods root>.go.

Examples:
  grug gen mods/animals/dog-Dog.grug
  grug gen mods/animals/*.grug --out ./gen`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGen(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.OutputDir, "out", "o", "", "directory for generated sources")

	return cmd
}

func runGen(opts *GenOptions, paths []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if opts.OutputDir == "" && len(paths) > 1 {
		return f.fail(ExitCommandError, ErrCodeGeneric, "--out is required for more than one file", nil)
	}

	s, err := loadSchema(opts.Project.Schema)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeSchema, err.Error(), nil)
	}
	root, err := scan.CanonicalRoot(opts.Project.Mods)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}

	c := compiler.New(s)
	result := GenResult{Files: []GenFile{}}
	for _, p := range paths {
		entry, err := entryFor(root, p)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
		}
		unit, err := compileEntry(c, entry)
		if err != nil {
			code := ErrCodeGeneric
			if ce, ok := compiler.AsCompileError(err); ok {
				code = ce.Code
			}
			return f.fail(ExitFailure, code, err.Error(), nil)
		}

		if opts.OutputDir == "" {
			_, err := cmd.OutOrStdout().Write(unit.Generated)
			return err
		}

		out := filepath.Join(opts.OutputDir, filepath.FromSlash(entry.Rel)+".go")
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return f.fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
		}
		if err := os.WriteFile(out, unit.Generated, 0o644); err != nil {
			return f.fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
		}
		f.VerboseLog("Wrote %s", out)
		result.Files = append(result.Files, GenFile{
			Path:        entry.Rel,
			Output:      out,
			SourceHash:  unit.SourceHash,
			CodegenHash: unit.CodegenHash,
		})
	}
	return f.Success(result)
}

// entryFor locates a mod file given on the command line inside root.
func entryFor(root, path string) (scan.Entry, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return scan.Entry{}, fmt.Errorf("mod file not found: %s", path)
	}
	canon, err := scan.Canonical(resolved)
	if err != nil {
		return scan.Entry{}, err
	}
	rel, err := filepath.Rel(root, canon)
	if err != nil || !filepath.IsLocal(rel) {
		return scan.Entry{}, fmt.Errorf("%s is not inside the mods root %s", path, root)
	}
	rel = filepath.ToSlash(rel)
	mod, _, _ := strings.Cut(rel, "/")
	return scan.Entry{
		Path:   canon,
		Rel:    rel,
		Mod:    mod,
		ModDir: filepath.Join(root, mod),
	}, nil
}
