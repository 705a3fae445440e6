package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/lemonlambda/grug-sys/internal/safecall"
)

// Scenario is a scripted sequence of edits to a mods tree, reload cycles
// and on-function calls, with expectations on each.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// ModAPI is the mod API file, relative to the scenario file. If empty
	// the small API from testutil.ModAPI is used.
	ModAPI string `yaml:"mod_api,omitempty"`

	// ArenaCapacity is passed to the engine. 0 means unbounded.
	ArenaCapacity int64 `yaml:"arena_capacity,omitempty"`

	// Steps run in order. Each step sets exactly one action.
	Steps []Step `yaml:"steps"`

	// Assertions are checked against the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one scenario action.
type Step struct {
	Write      *WriteStep      `yaml:"write,omitempty"`
	Remove     string          `yaml:"remove,omitempty"`
	FailBuild  *FailBuildStep  `yaml:"fail_build,omitempty"`
	Script     *ScriptStep     `yaml:"script,omitempty"`
	Regenerate *RegenerateStep `yaml:"regenerate,omitempty"`
	Call       *CallStep       `yaml:"call,omitempty"`
}

// WriteStep creates or overwrites a file under the mods root.
type WriteStep struct {
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
}

// FailBuildStep makes the toolchain fail every later build of Path with
// Output. An empty Output lets builds succeed again.
type FailBuildStep struct {
	Path   string `yaml:"path"`
	Output string `yaml:"output"`
}

// ScriptStep makes on-function OnFn of the file at Path raise a runtime
// fault of category Fault when called. An empty Fault restores the default
// body, which does nothing.
type ScriptStep struct {
	Path    string `yaml:"path"`
	OnFn    string `yaml:"on_fn"`
	Fault   string `yaml:"fault"`
	Message string `yaml:"message,omitempty"`
}

// RegenerateStep runs one reload cycle.
type RegenerateStep struct {
	Expect *CycleExpect `yaml:"expect,omitempty"`
}

// CycleExpect checks a reload cycle. Nil fields are not checked; lists are
// compared exactly, so an empty list asserts that nothing happened.
type CycleExpect struct {
	Failed     *bool    `yaml:"failed,omitempty"`
	Swapped    *bool    `yaml:"swapped,omitempty"`
	Kind       string   `yaml:"kind,omitempty"`
	Code       string   `yaml:"code,omitempty"`
	Line       int      `yaml:"line,omitempty"`
	HasChanged *bool    `yaml:"has_changed,omitempty"`
	Compiled   []string `yaml:"compiled,omitempty"`
	Cached     []string `yaml:"cached,omitempty"`
	Removed    []string `yaml:"removed,omitempty"`
	Resources  []string `yaml:"resources,omitempty"`
}

// CallStep calls an on-function of an entity file through the fault
// boundary. Globals are created per (entity, me) and recreated after the
// file reloads.
type CallStep struct {
	Entity string      `yaml:"entity"`
	OnFn   string      `yaml:"on_fn"`
	Me     uint64      `yaml:"me,omitempty"`
	Args   []any       `yaml:"args,omitempty"`
	Expect *CallExpect `yaml:"expect,omitempty"`
}

// CallExpect checks the outcome of a call.
type CallExpect struct {
	Result string `yaml:"result"`
	Fault  string `yaml:"fault,omitempty"`
}

// Assertion validates the final state of a scenario.
type Assertion struct {
	// Type selects the check; see the Assert* constants.
	Type string `yaml:"type"`

	Entity     string   `yaml:"entity,omitempty"`
	EntityType string   `yaml:"entity_type,omitempty"`
	Path       string   `yaml:"path,omitempty"`
	Count      int      `yaml:"count,omitempty"`
	Code       string   `yaml:"code,omitempty"`
	Calls      []string `yaml:"calls,omitempty"`
}

// Assertion type constants.
const (
	AssertRegistryContains = "registry_contains" // entity present, optionally of entity_type
	AssertRegistryAbsent   = "registry_absent"   // entity not found
	AssertEntityTypeCount  = "entity_type_count" // files of entity_type == count
	AssertBuildCount       = "build_count"       // toolchain builds of path == count
	AssertCalls            = "calls"             // on-function calls, "<path>:<on_fn>", in order
	AssertFaults           = "faults"            // faults delivered to the handler == count
	AssertLibrariesLive    = "libraries_live"    // live libraries == count
	AssertNoError          = "no_error"          // the engine holds no error
	AssertErrorCode        = "error_code"        // the engine's current error has code
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos surface as errors. A relative mod_api is resolved
// against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving mod_api relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.ModAPI != "" && !filepath.IsAbs(scenario.ModAPI) && basePath != "" {
		scenario.ModAPI = filepath.Join(basePath, scenario.ModAPI)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.ModAPI != "" {
		if _, err := os.Stat(s.ModAPI); err != nil {
			return fmt.Errorf("mod api not found: %s", s.ModAPI)
		}
	}
	if s.ArenaCapacity < 0 {
		return fmt.Errorf("arena_capacity must be non-negative")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	set := 0
	for _, ok := range []bool{
		st.Write != nil, st.Remove != "", st.FailBuild != nil,
		st.Script != nil, st.Regenerate != nil, st.Call != nil,
	} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, set)
	}

	switch {
	case st.Write != nil:
		if err := validateRel(st.Write.Path); err != nil {
			return fmt.Errorf("steps[%d].write: %w", index, err)
		}
	case st.Remove != "":
		if err := validateRel(st.Remove); err != nil {
			return fmt.Errorf("steps[%d].remove: %w", index, err)
		}
	case st.FailBuild != nil:
		if st.FailBuild.Path == "" {
			return fmt.Errorf("steps[%d].fail_build: path is required", index)
		}
	case st.Script != nil:
		if st.Script.Path == "" || st.Script.OnFn == "" {
			return fmt.Errorf("steps[%d].script: path and on_fn are required", index)
		}
		if st.Script.Fault != "" && !knownFault(st.Script.Fault) {
			return fmt.Errorf("steps[%d].script: unknown fault %q", index, st.Script.Fault)
		}
	case st.Call != nil:
		if st.Call.Entity == "" || st.Call.OnFn == "" {
			return fmt.Errorf("steps[%d].call: entity and on_fn are required", index)
		}
		if st.Call.Expect != nil && st.Call.Expect.Result == "" {
			return fmt.Errorf("steps[%d].call.expect: result is required", index)
		}
	}
	return nil
}

func validateRel(p string) error {
	if p == "" {
		return fmt.Errorf("path is required")
	}
	if filepath.IsAbs(p) || !filepath.IsLocal(filepath.FromSlash(p)) {
		return fmt.Errorf("path %q must be relative to the mods root", p)
	}
	return nil
}

func knownFault(f string) bool {
	switch safecall.Category(f) {
	case safecall.DivisionByZero, safecall.Overflow, safecall.StackOverflow,
		safecall.InvalidMemoryAccess, safecall.GameFunctionError, safecall.Panic:
		return true
	}
	return false
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRegistryContains, AssertRegistryAbsent:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for %s", index, a.Type)
		}
	case AssertEntityTypeCount:
		if a.EntityType == "" {
			return fmt.Errorf("assertions[%d]: entity_type is required for %s", index, a.Type)
		}
	case AssertBuildCount:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for %s", index, a.Type)
		}
	case AssertErrorCode:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for %s", index, a.Type)
		}
	case AssertCalls, AssertFaults, AssertLibrariesLive, AssertNoError:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
