package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lemonlambda/grug-sys/internal/compiler"
	"github.com/lemonlambda/grug-sys/internal/scan"
	"github.com/lemonlambda/grug-sys/internal/schema"
)

// CheckError is one mod source error found by check.
type CheckError struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// CheckResult holds the outcome of checking a mods tree.
type CheckResult struct {
	Valid  bool         `json:"valid"`
	Files  int          `json:"files"`
	Errors []CheckError `json:"errors,omitempty"`
}

func (r CheckResult) String() string {
	if r.Valid {
		return fmt.Sprintf("✓ %d mod file(s) OK", r.Files)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✗ %d error(s) in %d mod file(s):", len(r.Errors), r.Files)
	for _, e := range r.Errors {
		if e.Line > 0 {
			fmt.Fprintf(&b, "\n  %s:%d: [%s] %s", e.Path, e.Line, e.Code, e.Message)
		} else {
			fmt.Fprintf(&b, "\n  %s: [%s] %s", e.Path, e.Code, e.Message)
		}
	}
	return b.String()
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check every mod file without building",
		Long: `Parse and type-check every mod file under the mods root against the
mod API. Unlike a reload cycle, check reports every failing file, not just
the first one. Nothing is built or loaded.

Examples:
  grug check
  grug check --mods ./mods --schema ./mod_api.json --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd)
		},
	}
}

func runCheck(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	s, err := loadSchema(opts.Project.Schema)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeSchema, err.Error(), nil)
	}

	tree, err := walkMods(opts.Project)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	f.VerboseLog("Found %d mod file(s) in %d mod(s)", len(tree.Files), len(tree.Mods))

	result := CheckResult{Valid: true, Files: len(tree.Files), Errors: []CheckError{}}
	c := compiler.New(s)
	owners := make(map[string]string)
	for _, entry := range tree.Files {
		f.VerboseLog("Checking %s", entry.Rel)
		unit, err := compileEntry(c, entry)
		if err != nil {
			result.add(entry.Rel, err)
			continue
		}
		if prev, taken := owners[unit.File.Entity]; taken {
			result.add(entry.Rel, compiler.FileError(compiler.ErrDuplicateEntity, entry.Path,
				"entity %s is already defined by %s", unit.File.Entity, prev))
			continue
		}
		owners[unit.File.Entity] = entry.Rel
	}

	if err := f.Success(result); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d mod file(s) failed to check", len(result.Errors)))
	}
	return nil
}

func (r *CheckResult) add(rel string, err error) {
	r.Valid = false
	ce, ok := compiler.AsCompileError(err)
	if !ok {
		r.Errors = append(r.Errors, CheckError{Code: ErrCodeGeneric, Path: rel, Message: err.Error()})
		return
	}
	r.Errors = append(r.Errors, CheckError{Code: ce.Code, Path: rel, Line: ce.Line, Message: ce.Message})
}

func loadSchema(path string) (*schema.ApiSchema, error) {
	s, err := schema.Load(path)
	if err != nil {
		var le *schema.LoadError
		if errors.As(err, &le) {
			return nil, fmt.Errorf("invalid mod api: %w", le)
		}
		return nil, err
	}
	return s, nil
}

// walkMods scans the configured mods root, skipping the build directory.
func walkMods(p ProjectConfig) (*scan.Tree, error) {
	var skip []string
	if build, err := scan.CanonicalRoot(p.Build); err == nil {
		skip = append(skip, build)
	}
	verify, _ := scan.ParseVerifyMode(p.Verify)
	return scan.Walk(p.Mods, scan.Options{Verify: verify, Skip: skip})
}

func compileEntry(c *compiler.Compiler, entry scan.Entry) (*compiler.Unit, error) {
	data, err := os.ReadFile(entry.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.ToSlash(entry.Rel), err)
	}
	return c.Compile(compiler.Source{
		Path:    entry.Path,
		RelPath: entry.Rel,
		Mod:     entry.Mod,
		ModDir:  entry.ModDir,
		Data:    data,
	})
}
