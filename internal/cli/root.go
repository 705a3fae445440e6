package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/lemonlambda/grug-sys/internal/engine"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Project is the merged grug.yaml and flag configuration, resolved
	// before any subcommand runs.
	Project ProjectConfig

	// flags bound to the persistent flag set; merged into Project.
	flags ProjectConfig

	// EngineOptions are appended to every engine the CLI starts. Tests use
	// them to swap in fake toolchains.
	EngineOptions []engine.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the grug CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

// Execute runs the CLI with os.Args and returns the process exit code.
// Errors not already written by a command go to stderr.
func Execute(ctx context.Context) int {
	err := NewRootCommand().ExecuteContext(ctx)
	var exitErr *ExitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.reported) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return GetExitCode(err)
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grug",
		Short: "grug - hot-reloading mod engine",
		Long: `Compile grug mod files into Go plugins and hot-reload them.

Settings come from grug.yaml in the working directory (or --config) and
may be overridden by flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			project, err := resolveProject(opts.ConfigPath, cmd.Flags().Changed("config"), opts.flags, cmd.Flags().Changed)
			if err != nil {
				return err
			}
			opts.Project = project
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigPath, "config", DefaultConfigFile, "project configuration file")
	pf.StringVar(&opts.flags.Schema, "schema", "", "mod API file (mod_api.json, .cue or .yaml)")
	pf.StringVar(&opts.flags.Mods, "mods", "", "mods root directory")
	pf.StringVar(&opts.flags.Build, "build", "", "build directory for plugin artifacts")
	pf.StringVar(&opts.flags.Cache, "cache", "", "SQLite build cache and cycle history")
	pf.Int64Var(&opts.flags.ArenaCapacity, "arena-capacity", 0, "bytes of mod source compiled concurrently (0 = unbounded)")
	pf.StringVar(&opts.flags.Verify, "verify", "", "change detection: metadata or content")
	pf.IntVar(&opts.flags.Workers, "workers", 0, "parallel compile workers (0 = GOMAXPROCS)")

	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewGenCommand(opts))
	cmd.AddCommand(NewBuildCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// logger returns a text logger on w; Debug when verbose.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
