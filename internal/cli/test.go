package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lemonlambda/grug-sys/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern)
	GoldenDir string
}

// TestResult holds the overall test result.
type TestResult struct {
	*harness.SuiteResult
}

func (r TestResult) String() string {
	var b strings.Builder
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "✗ %s\n", f.Scenario)
		for _, e := range f.Errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	fmt.Fprintf(&b, "\nTest Summary: %d passed, %d failed, %d total", r.Passed, r.Failed, r.Total)
	if r.Failed == 0 {
		b.WriteString("\n✓ All scenarios passed")
	}
	return b.String()
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run reload scenarios",
		Long: `Run YAML reload scenarios against the engine with a fake toolchain.

Each scenario's trace is compared with <golden-dir>/<name>.golden when that
file exists. The golden directory defaults to "golden" next to the
scenarios directory.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  grug test ./testdata/scenarios
  grug test ./testdata/scenarios --filter "hot_*"
  grug test ./testdata/scenarios --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "golden trace directory")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if info, err := os.Stat(scenariosDir); err != nil || !info.IsDir() {
		return f.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenarios directory not found: %s", scenariosDir), nil)
	}

	paths, err := harness.FindScenarios(scenariosDir)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	paths, err = filterScenarios(paths, opts.Filter)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	if len(paths) == 0 {
		return f.Success(TestResult{&harness.SuiteResult{}})
	}

	golden := opts.GoldenDir
	if golden == "" {
		golden = filepath.Join(filepath.Dir(filepath.Clean(scenariosDir)), "golden")
	}
	f.VerboseLog("Running %d scenario(s), golden traces in %s", len(paths), golden)

	result := TestResult{harness.RunSuite(paths, harness.SuiteOptions{GoldenDir: golden, Update: opts.Update})}
	if err := f.Success(result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// filterScenarios keeps paths whose base name, without extension,
// matches the glob pattern.
func filterScenarios(paths []string, pattern string) ([]string, error) {
	if pattern == "" {
		return paths, nil
	}
	var out []string
	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}
