package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/lemonlambda/grug-sys/internal/ir"
)

// TraceSnapshot is the golden form of a scenario run: a header line naming
// the scenario followed by one canonical JSON line per trace event.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
}

// Marshal renders the snapshot. The output is byte-stable across runs.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	header, err := ir.MarshalCanonical(map[string]any{"scenario": s.ScenarioName})
	if err != nil {
		return nil, err
	}
	buf.Write(header)
	buf.WriteByte('\n')
	for i, ev := range s.Trace {
		line, err := ir.MarshalCanonical(ev.canonical())
		if err != nil {
			return nil, fmt.Errorf("trace[%d]: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario, fails t for unmet expectations and
// compares the trace against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already computed result's trace against the
// golden file for scenarioName.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
