package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one scenario that did not pass.
type ScenarioFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// FindScenarios returns every .yaml and .yml file under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find scenarios: %w", err)
	}
	slices.Sort(paths)
	return paths, nil
}

// SuiteOptions configures RunSuite.
type SuiteOptions struct {
	// GoldenDir holds {scenario}.golden trace files. Empty skips golden
	// comparison; a scenario without a golden file is checked by its
	// expectations and assertions only.
	GoldenDir string

	// Update rewrites the golden files instead of comparing them.
	Update bool
}

// RunSuite loads and runs the given scenario files in order. A scenario
// that cannot be loaded or executed counts as failed; the suite keeps
// going.
func RunSuite(paths []string, opts SuiteOptions) *SuiteResult {
	result := &SuiteResult{}
	for _, path := range paths {
		result.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail(filepath.Base(path), path, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		run, err := Run(scenario)
		if err != nil {
			result.fail(scenario.Name, path, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}
		errs := run.Errors
		if opts.GoldenDir != "" {
			if err := checkGolden(opts, scenario.Name, run); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			result.fail(scenario.Name, path, errs...)
			continue
		}
		result.Passed++
	}
	return result
}

func checkGolden(opts SuiteOptions, name string, run *Result) error {
	data, err := (&TraceSnapshot{ScenarioName: name, Trace: run.Trace}).Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}
	path := filepath.Join(opts.GoldenDir, name+".golden")

	if opts.Update {
		if err := os.MkdirAll(opts.GoldenDir, 0o755); err != nil {
			return fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write golden file: %w", err)
		}
		return nil
	}

	want, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read golden file: %w", err)
	}
	if !bytes.Equal(want, data) {
		return fmt.Errorf("trace does not match %s (run with --update to regenerate)", path)
	}
	return nil
}

func (r *SuiteResult) fail(name, path string, errs ...string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{Scenario: name, Path: path, Errors: errs})
}
