package dag

import (
	"fmt"
	"sort"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// AddNode adds a new node with the given ID to the graph. If a node with
// the same ID already exists, the function does nothing.
func (g *Graph) AddNode(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}

	n := &node{
		id:         id,
		index:      len(g.order),
		dependents: make(map[string]*node),
	}
	g.nodes[id] = n
	g.order = append(g.order, n)
}

// AddEdge records that toID reads something fromID writes. Both nodes must
// exist; self-coupling is tracked by the caller, not as an edge.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}

	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	fromNode.dependents[toID] = toNode

	return nil
}

func ids(set map[string]*node) []string {
	nodes := make([]*node, 0, len(set))
	for _, n := range set {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].index < nodes[j].index })
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.id
	}
	return out
}

// Components returns the strongly connected components of the graph in an
// order where every component comes after the components it depends on.
// Members of a component keep insertion order.
func (g *Graph) Components() [][]string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []*node
	var comps [][]*node

	var strongconnect func(n *node)
	strongconnect = func(n *node) {
		indices[n.id] = index
		lowlink[n.id] = index
		index++
		stack = append(stack, n)
		onStack[n.id] = true

		for _, id := range ids(n.dependents) {
			m := g.nodes[id]
			if _, seen := indices[m.id]; !seen {
				strongconnect(m)
				lowlink[n.id] = min(lowlink[n.id], lowlink[m.id])
			} else if onStack[m.id] {
				lowlink[n.id] = min(lowlink[n.id], indices[m.id])
			}
		}

		if lowlink[n.id] == indices[n.id] {
			var comp []*node
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top.id] = false
				comp = append(comp, top)
				if top == n {
					break
				}
			}
			comps = append(comps, comp)
		}
	}

	for _, n := range g.order {
		if _, seen := indices[n.id]; !seen {
			strongconnect(n)
		}
	}

	return g.orderComponents(comps)
}

// orderComponents sorts the condensed graph topologically, breaking ties by
// the insertion index of each component's first member.
func (g *Graph) orderComponents(comps [][]*node) [][]string {
	owner := make(map[string]int)
	for i, comp := range comps {
		sort.Slice(comp, func(a, b int) bool { return comp[a].index < comp[b].index })
		for _, n := range comp {
			owner[n.id] = i
		}
	}

	indegree := make([]int, len(comps))
	succ := make([]map[int]bool, len(comps))
	for i, comp := range comps {
		succ[i] = make(map[int]bool)
		for _, n := range comp {
			for id := range n.dependents {
				j := owner[id]
				if j != i && !succ[i][j] {
					succ[i][j] = true
					indegree[j]++
				}
			}
		}
	}

	var ready []int
	for i := range comps {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	out := make([][]string, 0, len(comps))
	for len(ready) > 0 {
		sort.Slice(ready, func(a, b int) bool { return comps[ready[a]][0].index < comps[ready[b]][0].index })
		i := ready[0]
		ready = ready[1:]

		members := make([]string, len(comps[i]))
		for j, n := range comps[i] {
			members[j] = n.id
		}
		out = append(out, members)

		for j := range succ[i] {
			indegree[j]--
			if indegree[j] == 0 {
				ready = append(ready, j)
			}
		}
	}
	return out
}

// Len is the number of nodes.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.order)
}
