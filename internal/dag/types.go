package dag

import "sync"

// Graph is the data-flow graph of one coupling. Safe for concurrent use.
type Graph struct {
	mutex sync.RWMutex
	nodes map[string]*node
	// order is insertion order; ties in every traversal are broken by it.
	order []*node
}

type node struct {
	id    string
	index int
	// dependents are the nodes reading one of this node's outputs.
	dependents map[string]*node
}
