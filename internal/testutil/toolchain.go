package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lemonlambda/grug-sys/internal/toolchain"
)

// FakeToolchain stands in for the Go toolchain. Build writes the generated
// source itself to the artifact path, where FakeLoader picks it up.
//
// Thread-safety: FakeToolchain is safe for concurrent use; the engine
// builds from several workers.
type FakeToolchain struct {
	mu       sync.Mutex
	builds   map[string]int
	order    []string
	failures map[string]string
}

// NewFakeToolchain returns a toolchain that succeeds for every key.
func NewFakeToolchain() *FakeToolchain {
	return &FakeToolchain{
		builds:   make(map[string]int),
		failures: make(map[string]string),
	}
}

// Fail makes every build of key fail with output. An empty output
// clears the failure.
func (f *FakeToolchain) Fail(key, output string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if output == "" {
		delete(f.failures, key)
		return
	}
	f.failures[key] = output
}

// Builds returns how many times key was built.
func (f *FakeToolchain) Builds(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds[key]
}

// Total returns the number of builds across all keys.
func (f *FakeToolchain) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

// Build implements toolchain.Toolchain.
func (f *FakeToolchain) Build(ctx context.Context, req toolchain.BuildRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.builds[req.Key]++
	f.order = append(f.order, req.Key)
	output, fail := f.failures[req.Key]
	f.mu.Unlock()

	if fail {
		return &toolchain.BuildError{Key: req.Key, Output: output, Err: fmt.Errorf("exit status 1")}
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return err
	}
	return os.WriteFile(req.Output, req.Source, 0o644)
}
