// Package engine implements the grug hot-reload engine.
//
// The engine owns one mods tree. Each reload cycle finds added, modified
// and deleted mod files, compiles and builds the changed ones in parallel,
// loads the resulting libraries and publishes a new registry snapshot.
// Hosts look entity files up in the snapshot and call their on-functions
// through the fault boundary.
//
// ARCHITECTURE:
//
// Reload Cycle (Regenerate):
//  1. Walk the mods root and fingerprint every file (scan.Walk)
//  2. Diff against the fingerprints of the last good compile (scan.Compare)
//  3. Compile, generate Go and build each changed file on a worker pool,
//     bounded by the arena budget; the build cache skips unchanged Go
//  4. Load libraries serially, bind host functions, resolve symbols
//  5. Assemble the next snapshot in traversal order and swap it in
//  6. Retire superseded libraries; calls in flight keep them alive
//  7. Record artifacts and the cycle in the build cache
//
// Failure Isolation:
// A file that fails at any step keeps its previous registry entry. Other
// files in the same cycle still reload. The first failure is returned and
// held by the Reporter, which flags it HasChanged only when it differs
// from the previous failure.
//
// Concurrency:
// Regenerate is serialized. Readers use the lock-free registry snapshot and
// may call on-functions from any goroutine while a cycle runs.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Cycles are numbered by Clock.Next(), resumed from the build cache.
// Wall-clock time is recorded for display only.
//
// Deterministic Order:
// Files are processed, reported and registered in lexical traversal order
// regardless of which build finishes first.
package engine
