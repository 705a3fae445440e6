package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock(t *testing.T) {
	var c Clock
	assert.Equal(t, int64(0), c.Last())
	assert.Equal(t, int64(1), c.Next())

	c.Resume(41)
	assert.Equal(t, int64(42), c.Next())
	assert.Equal(t, int64(42), c.Last())
}

func TestClock_ConcurrentNextIsUnique(t *testing.T) {
	var c Clock
	const goroutines, calls = 20, 50

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range calls {
				n := c.Next()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*calls)
	assert.Equal(t, int64(goroutines*calls), c.Last())
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.NotEqual(t, a, b)

	id, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}
