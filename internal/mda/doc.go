// Package mda executes a coupled set of disciplines.
//
// A Chain orders its executables by data dependency, runs the independent
// ones once in order, and solves every strongly coupled group by
// Gauss-Seidel fixed-point iteration until the normalized change of the
// coupling outputs drops below the tolerance or the iteration ceiling is
// hit. Chains are themselves executables, so couplings nest.
//
// RunSamples evaluates one executable over many independent input points,
// each on its own overlay of the shared store, optionally in parallel.
package mda
