package testutil

import (
	"sync"
	"time"
)

// StepClock is a wall clock for tests that advances by a fixed step on
// every reading, so recorded timestamps and durations are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStepClock returns a clock whose first reading is start.
// A zero step defaults to one millisecond.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	if step == 0 {
		step = time.Millisecond
	}
	return &StepClock{now: start, step: step}
}

// Now returns the current reading and advances the clock by one step.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the next reading without advancing.
func (c *StepClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
