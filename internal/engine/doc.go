// Package engine instantiates builders into a tree of nodes and drives the
// configuration loop over it.
//
// # Configuration
//
// Configure repeats passes until the root reports itself configured. A pass
// runs two phases over the tree, top-down:
//
//   - build: couplings instantiate their sub-builders once, drivers create or
//     tear down the sub-trees their mode and scenario table ask for.
//   - configure: every node whose structuring inputs (or namespaces) changed
//     since its last setup declares its grammar again; drivers then run their
//     post-configuration step (possible values, use case import, reference
//     propagation, trade variables).
//
// A node is configured when its own setup is current, its post-configuration
// step has nothing left to do and all its children are configured. The loop
// stops early when a pass changes nothing, and gives up after the pass
// ceiling with a NonConvergenceError naming the structuring variables that
// kept moving.
//
// # Execution
//
// Execute turns the configured tree into mda executables: disciplines read
// and write the data manager, couplings become chains solved by fixed-point
// iteration, and drivers either sample their sub-process over a table of
// points or run every scenario and gather the selected outputs.
package engine
