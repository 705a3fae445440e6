// Package store provides the SQLite-backed build cache and reload history.
//
// Two tables:
//   - artifacts: the last successfully built artifact per mod source path,
//     keyed by canonical path and tagged with the source and codegen hashes.
//     A cycle that regenerates byte-identical Go source for a file finds it
//     here and skips the toolchain.
//   - cycles: one row per reload cycle with counts and the first error,
//     ordered by a logical sequence number.
//
// # Database Configuration
//
// Set through the driver DSN so every connection gets them:
//
//   - WAL mode: history reads from "grug history" while a watcher writes
//   - synchronous=NORMAL: a lost cache only costs a rebuild
//   - busy_timeout=5000: wait for the other process's write lock
//   - foreign_keys=ON
//
// Schema upgrades are numbered migrations tracked in PRAGMA user_version,
// each applied in its own transaction.
//
// All queries order by seq (then a stable key) so results are
// deterministic; wall-clock time is recorded but never used for ordering.
package store
