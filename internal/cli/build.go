package cli

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lemonlambda/grug-sys/internal/engine"
)

// CycleSummary is the CLI view of one reload cycle.
type CycleSummary struct {
	ID         string       `json:"id"`
	Seq        int64        `json:"seq"`
	Generation uint64       `json:"generation"`
	Swapped    bool         `json:"swapped"`
	DurationMS int64        `json:"duration_ms"`
	Compiled   []string     `json:"compiled"`
	Cached     []string     `json:"cached"`
	Removed    []string     `json:"removed"`
	Unchanged  int          `json:"unchanged"`
	Resources  []string     `json:"resources"`
	Errors     []CycleError `json:"errors,omitempty"`
}

// CycleError is one failed file of a cycle.
type CycleError struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Path    string `json:"path,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

func summarize(r *engine.CycleReport) CycleSummary {
	s := CycleSummary{
		ID:         r.ID,
		Seq:        r.Seq,
		Generation: r.Generation,
		Swapped:    r.Swapped,
		DurationMS: r.Duration.Milliseconds(),
		Compiled:   orEmpty(r.Compiled),
		Cached:     orEmpty(r.Cached),
		Removed:    orEmpty(r.Removed),
		Unchanged:  r.Unchanged,
		Resources:  orEmpty(r.ResourceReloads),
	}
	for _, ee := range r.Errors {
		s.Errors = append(s.Errors, CycleError{
			Kind:    ee.Kind.String(),
			Code:    ee.Code,
			Path:    ee.Path,
			Line:    ee.Line,
			Message: ee.Error(),
		})
	}
	return s
}

func (s CycleSummary) String() string {
	var b strings.Builder
	mark := "✓"
	if len(s.Errors) > 0 {
		mark = "✗"
	}
	fmt.Fprintf(&b, "%s cycle %d (generation %d): %d compiled, %d cached, %d removed, %d unchanged",
		mark, s.Seq, s.Generation, len(s.Compiled), len(s.Cached), len(s.Removed), s.Unchanged)
	for _, p := range s.Compiled {
		fmt.Fprintf(&b, "\n  compiled %s", p)
	}
	for _, p := range s.Removed {
		fmt.Fprintf(&b, "\n  removed  %s", p)
	}
	for _, p := range s.Resources {
		fmt.Fprintf(&b, "\n  resource %s", p)
	}
	for _, e := range s.Errors {
		fmt.Fprintf(&b, "\n  error    %s", e.Message)
	}
	return b.String()
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Run one reload cycle: compile, build and load every changed mod",
		Long: `Run a single reload cycle. Mod files that changed since the build cache
last saw them are compiled to Go plugins and loaded; unchanged files are
served from the cache.

Exit codes:
  0 - every file reloaded
  1 - at least one file failed
  2 - command error (missing mod API, mods root, etc.)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(rootOpts, cmd)
		},
	}
}

func runBuild(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())

	e, err := startEngine(opts, logger)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeEngine, err.Error(), nil)
	}
	defer e.Close()

	report, err := e.Regenerate(cmd.Context())
	if report == nil {
		return f.fail(ExitCommandError, ErrCodeEngine, err.Error(), nil)
	}
	if err := f.Success(summarize(report)); err != nil {
		return err
	}
	if report.Failed() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d mod file(s) failed to reload", len(report.Errors)))
	}
	return nil
}

// startEngine creates an engine from the project configuration with stub
// game functions that log their calls.
func startEngine(opts *RootOptions, logger *slog.Logger, extra ...engine.Option) (*engine.Engine, error) {
	s, err := loadSchema(opts.Project.Schema)
	if err != nil {
		return nil, err
	}
	host := engine.StubHostFunctions(s, func(name string, args []any) {
		logger.Debug("game function", "name", name, "args", args)
	})

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithHostFunctions(host),
		engine.WithWorkers(opts.Project.Workers),
	}
	engineOpts = append(engineOpts, extra...)
	engineOpts = append(engineOpts, opts.EngineOptions...)

	start := time.Now()
	e, err := engine.New(opts.Project.EngineConfig(), engineOpts...)
	if err != nil {
		return nil, err
	}
	logger.Debug("engine ready", "mods", e.ModsDir(), "build", e.BuildDir(), "elapsed", time.Since(start))
	return e, nil
}
