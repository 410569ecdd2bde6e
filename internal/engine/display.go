package engine

import (
	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/namespace"
)

// DisplayNode is one line of a tree view.
type DisplayNode struct {
	Name       string
	FullName   string
	Kind       string
	Depth      int
	Configured bool
	Error      string
	// Namespaces maps the builder-associated namespaces to their display
	// path.
	Namespaces map[string]string
	// Messages are the integrity messages of the node inputs.
	Messages []string
}

// Display flattens the tree in pre-order. Hidden nodes are skipped and
// their children shown one level up.
func (e *Engine) Display() []DisplayNode {
	var out []DisplayNode
	var walk func(id NodeID, depth int)
	walk = func(id NodeID, depth int) {
		n := e.tree.Get(id)
		if n == nil {
			return
		}
		childDepth := depth + 1
		if n.Hidden() {
			childDepth = depth
		} else {
			d := DisplayNode{
				Name:       n.Name,
				FullName:   n.FullName,
				Kind:       n.Kind().String(),
				Depth:      depth,
				Configured: e.isConfigured(id),
				Namespaces: make(map[string]string),
			}
			if err := n.Err(); err != nil {
				d.Error = err.Error()
			}
			for name, value := range n.namespaces {
				d.Namespaces[name] = value
				for _, ns := range e.ns.List() {
					if ns.Name == name && ns.Value == value {
						d.Namespaces[name] = ns.DisplayValue()
					}
				}
			}
			for _, full := range n.InputNames() {
				raw, _ := e.dm.GetData(full, datamanager.AttrCheckIntegrityMsg)
				if msg, _ := raw.(string); msg != "" {
					d.Messages = append(d.Messages, namespace.ShortName(full)+": "+msg)
				}
			}
			out = append(out, d)
		}
		for _, c := range n.Children {
			walk(c, childDepth)
		}
	}
	if e.root != noParent {
		walk(e.root, 0)
	}
	return out
}
