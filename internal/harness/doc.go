// Package harness runs reload scenarios against the real engine.
//
// A scenario edits files in a scratch mods tree, runs reload cycles and
// calls on-functions, checking each step and the final state. The engine
// runs with the fake toolchain and loader from testutil, so scenarios
// exercise scanning, compiling, code generation, library lifecycles, the
// registry and the fault boundary without invoking the Go toolchain.
//
// # Scenario Format
//
//	name: last_known_good
//	description: "A syntax error keeps the previous entry"
//	steps:
//	  - write:
//	      path: example/world-World.grug
//	      content: |
//	        on_tick(dt: f32) {
//	            println("tick")
//	        }
//	  - regenerate:
//	      expect: { failed: false, compiled: [example/world-World.grug] }
//	  - script: { path: example/world-World.grug, on_fn: on_tick, fault: division_by_zero }
//	  - call:
//	      entity: example:world
//	      on_fn: on_tick
//	      args: [0.5]
//	      expect: { result: fault, fault: division_by_zero }
//	assertions:
//	  - type: registry_contains
//	    entity: example:world
//
// # Step Types
//
//   - write: create or overwrite a file under the mods root
//   - remove: delete a file
//   - fail_build: make the toolchain fail for a file
//   - script: make an on-function raise a fault of a given category
//   - regenerate: run one reload cycle, optionally checking the report
//   - call: call an on-function through the fault boundary
//
// # Deterministic Testing
//
// Cycle ids come from testutil.SequentialIDs and timestamps from a
// testutil.StepClock, and the trace records only paths relative to the
// mods root, so two runs of a scenario produce byte-identical traces for
// golden comparison.
package harness
