package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates reload cycle ids "<prefix>-1", "<prefix>-2", ...
//
// This enables deterministic test execution and golden trace comparison.
// Implements engine.CycleIDGenerator.
//
// Thread-safety: SequentialIDs is safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. If prefix is empty, "cycle" is used.
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "cycle"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Resume continues after n: the next id is "<prefix>-<n+1>".
func (g *SequentialIDs) Resume(n int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = int(n)
}
