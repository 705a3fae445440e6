package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against the final state of h
// and returns the failure messages.
func EvaluateAssertions(h *Harness, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(h, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(h *Harness, a Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual}
	}

	switch a.Type {
	case AssertRegistryContains:
		file, ok := h.engine.GetEntityFile(a.Entity)
		if !ok {
			return fail("entity "+a.Entity+" registered", "not found")
		}
		if a.EntityType != "" && file.EntityType != a.EntityType {
			return fail("entity "+a.Entity+" of type "+a.EntityType, "type "+file.EntityType)
		}

	case AssertRegistryAbsent:
		if file, ok := h.engine.GetEntityFile(a.Entity); ok {
			return fail("entity "+a.Entity+" not registered", "registered by "+file.RelPath)
		}

	case AssertEntityTypeCount:
		if got := len(h.engine.LookupByEntityType(a.EntityType)); got != a.Count {
			return fail(fmt.Sprintf("%d files of type %s", a.Count, a.EntityType), fmt.Sprintf("%d", got))
		}

	case AssertBuildCount:
		if got := h.toolchain.Builds(a.Path); got != a.Count {
			return fail(fmt.Sprintf("%d builds of %s", a.Count, a.Path), fmt.Sprintf("%d", got))
		}

	case AssertCalls:
		got := h.loader.Calls()
		if !slices.Equal(got, a.Calls) && !(len(got) == 0 && len(a.Calls) == 0) {
			return fail(fmt.Sprintf("calls %v", a.Calls), fmt.Sprintf("%v", got))
		}

	case AssertFaults:
		if got := h.faultCount(); got != a.Count {
			return fail(fmt.Sprintf("%d faults", a.Count), fmt.Sprintf("%d", got))
		}

	case AssertLibrariesLive:
		if got := h.engine.Libraries().Live; got != a.Count {
			return fail(fmt.Sprintf("%d live libraries", a.Count), fmt.Sprintf("%d", got))
		}

	case AssertNoError:
		if ee := h.engine.Error(); ee != nil {
			return fail("no engine error", ee.Error())
		}

	case AssertErrorCode:
		ee := h.engine.Error()
		if ee == nil {
			return fail("engine error "+a.Code, "no error")
		}
		if ee.Code != a.Code {
			return fail("engine error "+a.Code, ee.Error())
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
