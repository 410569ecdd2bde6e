// Package dag holds the data-dependency graph between the executable
// children of a coupling. An edge a -> b means b reads something a writes.
//
// Components splits the graph into strongly connected components in
// execution order. A component with more than one member is a strong
// coupling that the MDA layer solves by fixed-point iteration.
package dag
