package engine

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// CycleIDGenerator names reload cycles in logs and the cycle history.
type CycleIDGenerator interface {
	Generate() string
}

// resumableIDs is implemented by generators whose ids derive from a
// counter. They continue after the last cycle the build cache recorded so
// a restarted engine never reissues an id.
type resumableIDs interface {
	Resume(n int64)
}

// UUIDv7Generator names cycles with UUIDv7s, which sort by creation time.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Clock numbers reload cycles 1, 2, 3... The history is ordered by these
// numbers, never by wall-clock time. Safe for concurrent use.
type Clock struct {
	last atomic.Int64
}

// Resume continues numbering after n, the last number the build cache
// recorded.
func (c *Clock) Resume(n int64) { c.last.Store(n) }

// Next issues the next number.
func (c *Clock) Next() int64 { return c.last.Add(1) }

// Last returns the most recently issued number, 0 before the first.
func (c *Clock) Last() int64 { return c.last.Load() }
