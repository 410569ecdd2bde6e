package engine

import (
	"strconv"

	"github.com/specialistvlad/studygrid/internal/builder"
	"github.com/specialistvlad/studygrid/internal/discipline"
)

// NodeID indexes a node in its tree.
type NodeID int

const noParent NodeID = -1

// Node is one instantiated builder.
type Node struct {
	ID       NodeID
	Parent   NodeID
	Children []NodeID
	Name     string
	// FullName is the dotted path of the node. Hidden nodes share the path
	// of their parent.
	FullName string
	Builder  *builder.Builder

	// namespaces are the bindings associated through the builder, by name.
	namespaces map[string]string
	proxy      proxy

	inputs  discipline.Grammar
	outputs discipline.Grammar
	inFull  map[string]string
	outFull map[string]string

	structuring map[string]uint64
	nsVersions  map[string]uint64
	configured  bool
	buildErr    error
	configErr   error
}

// Kind is the builder kind of the node.
func (n *Node) Kind() builder.Kind { return n.Builder.Kind() }

// Hidden reports whether tree views skip the node.
func (n *Node) Hidden() bool { return n.Builder.Hidden() }

// Err is the last build or configuration error of the node.
func (n *Node) Err() error {
	if n.buildErr != nil {
		return n.buildErr
	}
	return n.configErr
}

// InputFullName resolves a declared input short name.
func (n *Node) InputFullName(short string) (string, bool) {
	full, ok := n.inFull[short]
	return full, ok
}

// OutputFullName resolves a declared output short name.
func (n *Node) OutputFullName(short string) (string, bool) {
	full, ok := n.outFull[short]
	return full, ok
}

// InputNames lists the full names of the declared inputs.
func (n *Node) InputNames() []string { return sortedValues(n.inFull) }

// OutputNames lists the full names of the declared outputs.
func (n *Node) OutputNames() []string { return sortedValues(n.outFull) }

func (n *Node) owner() string {
	return n.FullName + "#" + strconv.Itoa(int(n.ID))
}

// Tree is an arena of nodes. Removed slots stay nil so IDs remain stable.
type Tree struct {
	nodes []*Node
	rev   uint64
}

func (t *Tree) add(n *Node) NodeID {
	n.ID = NodeID(len(t.nodes))
	t.nodes = append(t.nodes, n)
	if n.Parent != noParent {
		p := t.nodes[n.Parent]
		p.Children = append(p.Children, n.ID)
	}
	t.rev++
	return n.ID
}

// Get returns the node with id, nil if it was removed.
func (t *Tree) Get(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Walk visits the sub-tree rooted at id in pre-order. Returning false from
// fn skips the children of that node.
func (t *Tree) Walk(id NodeID, fn func(*Node) bool) {
	n := t.Get(id)
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range append([]NodeID(nil), n.Children...) {
		t.Walk(c, fn)
	}
}

// Find returns the first visible node with the given full name.
func (t *Tree) Find(fullName string) (*Node, bool) {
	for _, n := range t.nodes {
		if n != nil && n.FullName == fullName && !n.Hidden() {
			return n, true
		}
	}
	return nil, false
}

// Len is the number of live nodes.
func (t *Tree) Len() int {
	count := 0
	for _, n := range t.nodes {
		if n != nil {
			count++
		}
	}
	return count
}

// detach removes the sub-tree rooted at id and returns its nodes, children
// first.
func (t *Tree) detach(id NodeID) []*Node {
	n := t.Get(id)
	if n == nil {
		return nil
	}
	var removed []*Node
	for _, c := range append([]NodeID(nil), n.Children...) {
		removed = append(removed, t.detach(c)...)
	}
	if p := t.Get(n.Parent); p != nil {
		kept := p.Children[:0]
		for _, c := range p.Children {
			if c != id {
				kept = append(kept, c)
			}
		}
		p.Children = kept
	}
	t.nodes[id] = nil
	t.rev++
	return append(removed, n)
}
