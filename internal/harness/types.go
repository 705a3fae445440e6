package harness

// Trace event types, one per step kind.
const (
	EventWrite      = "write"
	EventRemove     = "remove"
	EventFailBuild  = "fail_build"
	EventScript     = "script"
	EventRegenerate = "regenerate"
	EventCall       = "call"
)

// Call results recorded in the trace.
const (
	CallOK                  = "ok"
	CallFault               = "fault"
	CallNotFound            = "not_found"
	CallUndefinedOnFunction = "undefined_on_function"
	CallBadArguments        = "bad_arguments"
	CallRetired             = "retired"
	CallError               = "error"
)

// TraceEvent records what one scenario step did. Paths are relative to the
// mods root so traces are stable across machines.
type TraceEvent struct {
	Step int    `json:"step"`
	Type string `json:"type"`

	// write, remove, fail_build, script
	Path string `json:"path,omitempty"`

	// script, call
	OnFn  string `json:"on_fn,omitempty"`
	Fault string `json:"fault,omitempty"`

	// regenerate
	Seq        int64       `json:"seq,omitempty"`
	Generation uint64      `json:"generation,omitempty"`
	Swapped    bool        `json:"swapped,omitempty"`
	Compiled   []string    `json:"compiled,omitempty"`
	Cached     []string    `json:"cached,omitempty"`
	Removed    []string    `json:"removed,omitempty"`
	Resources  []string    `json:"resources,omitempty"`
	Failed     int         `json:"failed,omitempty"`
	Error      *TraceError `json:"error,omitempty"`

	// call
	Entity string `json:"entity,omitempty"`
	Me     uint64 `json:"me,omitempty"`
	Result string `json:"result,omitempty"`
}

// TraceError is the first error of a failed cycle.
type TraceError struct {
	Kind       string `json:"kind"`
	Code       string `json:"code,omitempty"`
	Path       string `json:"path,omitempty"`
	Line       int    `json:"line,omitempty"`
	HasChanged bool   `json:"has_changed"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(ev TraceEvent) *TraceEvent {
	r.Trace = append(r.Trace, ev)
	return &r.Trace[len(r.Trace)-1]
}

// canonical renders ev as a map for ir.MarshalCanonical. Type-specific
// fields are emitted for the event types that own them.
func (ev TraceEvent) canonical() map[string]any {
	m := map[string]any{
		"step": ev.Step,
		"type": ev.Type,
	}
	switch ev.Type {
	case EventWrite, EventRemove, EventFailBuild:
		m["path"] = ev.Path
	case EventScript:
		m["path"] = ev.Path
		m["on_fn"] = ev.OnFn
		m["fault"] = ev.Fault
	case EventRegenerate:
		m["seq"] = ev.Seq
		m["generation"] = ev.Generation
		m["swapped"] = ev.Swapped
		putList(m, "compiled", ev.Compiled)
		putList(m, "cached", ev.Cached)
		putList(m, "removed", ev.Removed)
		putList(m, "resources", ev.Resources)
		if ev.Failed > 0 {
			m["failed"] = ev.Failed
		}
		if e := ev.Error; e != nil {
			em := map[string]any{"kind": e.Kind, "has_changed": e.HasChanged}
			if e.Kind == "mod" {
				em["code"] = e.Code
				em["path"] = e.Path
				em["line"] = e.Line
			}
			m["error"] = em
		}
	case EventCall:
		m["entity"] = ev.Entity
		m["on_fn"] = ev.OnFn
		m["me"] = ev.Me
		m["result"] = ev.Result
		if ev.Fault != "" {
			m["fault"] = ev.Fault
		}
	}
	return m
}

func putList(m map[string]any, key string, list []string) {
	if len(list) > 0 {
		m[key] = list
	}
}
