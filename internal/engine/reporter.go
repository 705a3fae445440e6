package engine

import "sync"

// Reporter holds the most recent reload error.
//
// A polling host calls RegenerateModifiedMods every frame. While a broken
// file stays broken every cycle fails with the same error; HasChanged is
// true only for the first of them so the host logs once per distinct
// failure.
type Reporter struct {
	mu      sync.Mutex
	current *EngineError
}

// Report records err as the current error and sets err.HasChanged.
func (r *Reporter) Report(err *EngineError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	err.HasChanged = !err.same(r.current)
	r.current = err
}

// Clear forgets the current error after a successful cycle. The next
// failure is reported as changed even if it repeats an earlier one.
func (r *Reporter) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
}

// Current returns a copy of the current error, or nil.
func (r *Reporter) Current() *EngineError {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	cp := *r.current
	return &cp
}
