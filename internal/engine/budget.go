package engine

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/lemonlambda/grug-sys/internal/compiler"
)

// arenaBudget bounds the mod source held by compile workers at once.
//
// Each worker acquires the byte size of the file it compiles and releases
// it after the build. With a capacity of 0 the budget is unbounded. A file
// larger than the whole capacity can never be admitted and fails with
// compiler.ErrTooLarge.
type arenaBudget struct {
	capacity int64
	sem      *semaphore.Weighted
}

func newArenaBudget(capacity int64) *arenaBudget {
	b := &arenaBudget{capacity: capacity}
	if capacity > 0 {
		b.sem = semaphore.NewWeighted(capacity)
	}
	return b
}

// Acquire blocks until size bytes fit in the budget or ctx is done.
func (b *arenaBudget) Acquire(ctx context.Context, path string, size int64) (release func(), err error) {
	if b.sem == nil {
		return func() {}, nil
	}
	if size > b.capacity {
		return nil, compiler.FileError(compiler.ErrTooLarge, path,
			"file is %d bytes, more than the arena capacity of %d bytes", size, b.capacity)
	}
	if err := b.sem.Acquire(ctx, size); err != nil {
		return nil, err
	}
	return func() { b.sem.Release(size) }, nil
}
