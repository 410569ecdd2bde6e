// Package datamanager is the single shared store of namespaced study
// variables.
//
// # Purpose
//
// Every variable a discipline declares is registered here under its full,
// namespace-resolved name together with its metadata (type, default,
// editability, visibility, structuring flag). User input, reference
// propagation and solver iterations all read and write values through this
// store.
//
// # Versions
//
// Each variable carries a version counter that increases only when its
// current value actually changes. The configuration loop snapshots the
// versions of structuring inputs and compares them on the next pass, which
// is how a node knows its dynamic inputs and outputs are stale. Writing an
// equal value is therefore free: it never bumps the version and never
// invalidates anything.
//
// # Ownership
//
// A variable can be declared by several nodes (a shared-namespace coupling
// variable is an output of one discipline and an input of another). The
// store counts owners and drops the record when the last owner releases it.
// A variable any owner declares as an output reports io type "out".
//
// # Concurrency
//
// Configuration is single-threaded, but mono-instance sampling reads the
// store from several goroutines, so all access goes through an RWMutex.
package datamanager
