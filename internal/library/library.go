// Package library owns every loaded mod artifact.
//
// Loaded libraries live in an arena of slots. Callers never hold a library
// directly; they hold a Handle (slot index + generation). Retiring a slot
// bumps its generation once the last in-flight call has returned, so a
// stale Handle is detected and rejected instead of reaching code that is no
// longer current.
package library

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Library is one opened artifact.
type Library interface {
	// Lookup returns the exported symbol, or an error if it is absent.
	Lookup(symbol string) (any, error)
	// Close releases the artifact. Implementations that cannot unload
	// (Go plugins) return nil.
	Close() error
}

// Loader opens artifacts.
type Loader interface {
	Open(path string) (Library, error)
}

// Sentinel errors. Resolve and Acquire wrap them with the handle.
var (
	ErrStale          = errors.New("stale library handle")
	ErrRetired        = errors.New("library is retired")
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrClosed         = errors.New("library manager is closed")
)

// Handle refers to one generation of one slot. The zero Handle is invalid.
type Handle struct {
	slot uint32
	gen  uint32
}

// IsZero reports whether h was never issued by a Manager.
func (h Handle) IsZero() bool { return h.gen == 0 }

func (h Handle) String() string {
	return fmt.Sprintf("lib#%d.%d", h.slot, h.gen)
}

type slot struct {
	gen      uint32
	lib      Library
	artifact string
	source   string
	loadedAt time.Time

	inflight int
	retiring bool
	occupied bool
}

// Stats is a point-in-time view of the arena.
type Stats struct {
	Live     int    // loaded, not retiring
	Retiring int    // retired but waiting for in-flight calls
	Inflight int    // calls currently executing
	Loaded   uint64 // total loads since start
	Retired  uint64 // total slots finalized since start
}

// Manager is the library lifecycle manager. It is safe for concurrent use.
type Manager struct {
	loader Loader
	logger *slog.Logger

	mu      sync.Mutex
	slots   []slot
	free    []uint32
	loaded  uint64
	retired uint64
	closed  bool
}

// NewManager returns a Manager that opens artifacts with loader.
func NewManager(loader Loader, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{loader: loader, logger: logger}
}

// Load opens artifact and places it in a fresh slot. source is the mod
// file the artifact was built from and is kept for diagnostics.
func (m *Manager) Load(artifact, source string) (Handle, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return Handle{}, ErrClosed
	}

	// Opening may run plugin init code; keep it outside the lock.
	lib, err := m.loader.Open(artifact)
	if err != nil {
		return Handle{}, fmt.Errorf("load %s: %w", artifact, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var idx uint32
	if n := len(m.free); n > 0 {
		idx = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		m.slots = append(m.slots, slot{})
		idx = uint32(len(m.slots) - 1)
	}

	s := &m.slots[idx]
	if s.gen == 0 {
		s.gen = 1
	}
	s.lib = lib
	s.artifact = artifact
	s.source = source
	s.loadedAt = time.Now()
	s.inflight = 0
	s.retiring = false
	s.occupied = true
	m.loaded++

	h := Handle{slot: idx, gen: s.gen}
	m.logger.Debug("library loaded", "handle", h.String(), "artifact", artifact, "source", source)
	return h, nil
}

// lookup returns the slot for h. Caller holds m.mu.
func (m *Manager) lookup(h Handle) (*slot, error) {
	if h.IsZero() || int(h.slot) >= len(m.slots) {
		return nil, fmt.Errorf("%s: %w", h, ErrStale)
	}
	s := &m.slots[h.slot]
	if !s.occupied || s.gen != h.gen {
		return nil, fmt.Errorf("%s: %w", h, ErrStale)
	}
	return s, nil
}

// Resolve looks up an exported symbol in the library behind h.
func (m *Manager) Resolve(h Handle, symbol string) (any, error) {
	m.mu.Lock()
	s, err := m.lookup(h)
	if err == nil && s.retiring {
		err = fmt.Errorf("%s: %w", h, ErrRetired)
	}
	var lib Library
	if err == nil {
		lib = s.lib
	}
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	sym, err := lib.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w: %v", h, symbol, ErrSymbolNotFound, err)
	}
	return sym, nil
}

// Acquire marks a call into h as in flight. The returned release must be
// called exactly once when the call returns. A retiring or stale handle is
// rejected so no new call starts in superseded code.
func (m *Manager) Acquire(h Handle) (release func(), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(h)
	if err != nil {
		return nil, err
	}
	if s.retiring {
		return nil, fmt.Errorf("%s: %w", h, ErrRetired)
	}
	s.inflight++

	var once sync.Once
	return func() {
		once.Do(func() { m.release(h) })
	}, nil
}

func (m *Manager) release(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &m.slots[h.slot]
	if s.gen != h.gen || s.inflight == 0 {
		return
	}
	s.inflight--
	if s.retiring && s.inflight == 0 {
		m.finalize(h.slot)
	}
}

// Retire schedules h for removal. The slot is finalized immediately when
// no call is in flight, otherwise when the last one returns. Retiring an
// already retiring handle is a no-op.
func (m *Manager) Retire(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(h)
	if err != nil {
		return err
	}
	if s.retiring {
		return nil
	}
	s.retiring = true
	if s.inflight == 0 {
		m.finalize(h.slot)
	} else {
		m.logger.Debug("library retire deferred", "handle", h.String(), "inflight", s.inflight)
	}
	return nil
}

// finalize closes the library in slot idx and frees the slot. Caller
// holds m.mu.
func (m *Manager) finalize(idx uint32) {
	s := &m.slots[idx]
	if err := s.lib.Close(); err != nil {
		m.logger.Warn("library close failed", "artifact", s.artifact, "error", err)
	}
	m.logger.Debug("library retired",
		"handle", Handle{slot: idx, gen: s.gen}.String(),
		"source", s.source,
		"lifetime", time.Since(s.loadedAt))

	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.lib = nil
	s.artifact = ""
	s.source = ""
	s.retiring = false
	s.occupied = false
	m.free = append(m.free, idx)
	m.retired++
}

// Live reports whether h is loaded and not retiring.
func (m *Manager) Live(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup(h)
	return err == nil && !s.retiring
}

// Artifact returns the artifact path behind h.
func (m *Manager) Artifact(h Handle) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup(h)
	if err != nil {
		return "", false
	}
	return s.artifact, true
}

// Stats returns current arena counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{Loaded: m.loaded, Retired: m.retired}
	for i := range m.slots {
		s := &m.slots[i]
		if !s.occupied {
			continue
		}
		if s.retiring {
			st.Retiring++
		} else {
			st.Live++
		}
		st.Inflight += s.inflight
	}
	return st
}

// Close retires every slot and rejects further loads. Slots with calls in
// flight are finalized when those calls return.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for i := range m.slots {
		s := &m.slots[i]
		if !s.occupied || s.retiring {
			continue
		}
		s.retiring = true
		if s.inflight == 0 {
			m.finalize(uint32(i))
		}
	}
	return nil
}
