package engine

import (
	"context"

	"github.com/specialistvlad/studygrid/internal/builder"
	"github.com/specialistvlad/studygrid/internal/ctxlog"
	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/namespace"
)

// referenceState remembers what was propagated from ReferenceScenario.
type referenceState struct {
	// last holds the reference values, relative to the scenario root, as of
	// the last propagation.
	last map[string]any
	// seeded records, per scenario, the keys that already received a copy.
	seeded map[string]map[string]bool
	// editable snapshots the editability of sibling variables before the
	// driver first touched it.
	editable map[string]bool
}

func newReferenceState() referenceState {
	return referenceState{
		seeded:   make(map[string]map[string]bool),
		editable: make(map[string]bool),
	}
}

func (r *referenceState) forget(sc string) {
	delete(r.seeded, sc)
}

// referenceValues collects the non-trade, non-numerical inputs held by the
// ReferenceScenario sub-tree, keyed relative to the scenario root.
func (p *driverProxy) referenceValues(e *Engine, n *Node) map[string]any {
	id, ok := p.scenarios[ReferenceScenario]
	if !ok {
		return nil
	}
	root := namespace.Compose(n.FullName, ReferenceScenario)
	trade := make(map[string]bool)
	if table := e.tableValue(namespace.Compose(n.FullName, VarScenarioDF)); table != nil {
		for _, c := range p.tradeColumns(table) {
			trade[c] = true
		}
	}

	values := make(map[string]any)
	e.tree.Walk(id, func(m *Node) bool {
		for _, full := range m.inFull {
			rel, ok := namespace.Relative(root, full)
			if !ok || rel == "" || trade[rel] || trade[namespace.ShortName(rel)] {
				continue
			}
			v, ok := e.dm.Get(full)
			if !ok || v.IOType != datamanager.In || v.Numerical {
				continue
			}
			values[rel] = v.Current()
		}
		return true
	})
	return values
}

func (p *driverProxy) siblings() []string {
	var out []string
	for _, sc := range p.order {
		if sc != ReferenceScenario {
			out = append(out, sc)
		}
	}
	return out
}

// propagateReference pushes reference values into the sibling scenarios.
// Linked mode rewrites every value and locks it, copy mode only copies what
// a sibling never received or what changed in the reference since the last
// pass.
func (p *driverProxy) propagateReference(ctx context.Context, e *Engine, n *Node) {
	current := p.referenceValues(e, n)
	if current == nil {
		return
	}
	mode := p.referenceMode(e, n)
	linked := mode == LinkedMode

	changed := make(map[string]bool)
	for rel, v := range current {
		prev, ok := p.ref.last[rel]
		if !ok || !datamanager.Equal(prev, v) {
			changed[rel] = true
		}
	}

	writes := make(map[string]any)
	for _, sc := range p.siblings() {
		seeded := p.ref.seeded[sc]
		if seeded == nil {
			seeded = make(map[string]bool)
			p.ref.seeded[sc] = seeded
		}
		nested := e.nestedDriverScopes(p.scenarios[sc], n)
		for _, rel := range sortedKeys(current) {
			full := namespace.Compose(n.FullName, sc, rel)
			v, ok := e.dm.Get(full)
			if !ok {
				continue
			}
			if linked || !seeded[rel] || changed[rel] {
				writes[full] = current[rel]
			}
			seeded[rel] = true

			if _, known := p.ref.editable[full]; !known {
				p.ref.editable[full] = v.Editable
			}
			switch {
			case linked:
				_ = e.dm.SetData(full, datamanager.AttrEditable, false)
			case !nested.contains(full):
				_ = e.dm.SetData(full, datamanager.AttrEditable, p.ref.editable[full])
			}
		}
	}

	count, err := e.dm.SetValuesFromDict(writes)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("⚠️ Reference values could not be propagated.", "driver", n.FullName, "error", err)
	}
	if count > 0 {
		ctxlog.FromContext(ctx).Debug("Reference values propagated.",
			"driver", n.FullName, "mode", mode, "changed", count)
	}
	p.ref.last = current

	if linked {
		e.forceNestedLinked(p.scenarios[ReferenceScenario], n)
	}
}

// referenceDirty reports whether a propagation pass would change anything.
func (p *driverProxy) referenceDirty(e *Engine, n *Node) bool {
	if !p.instanceReference(e, n) {
		return false
	}
	current := p.referenceValues(e, n)
	if current == nil {
		return true
	}
	if len(current) != len(p.ref.last) {
		return true
	}
	for rel, v := range current {
		prev, ok := p.ref.last[rel]
		if !ok || !datamanager.Equal(prev, v) {
			return true
		}
	}
	linked := p.referenceMode(e, n) == LinkedMode
	for _, sc := range p.siblings() {
		for rel, v := range current {
			full := namespace.Compose(n.FullName, sc, rel)
			sib, ok := e.dm.Get(full)
			if !ok {
				continue
			}
			if !p.ref.seeded[sc][rel] {
				return true
			}
			if linked && (sib.Editable || !datamanager.Equal(sib.Current(), v)) {
				return true
			}
		}
	}
	return false
}

// restoreEditability gives sibling variables back the editability they had
// before propagation locked them.
func (p *driverProxy) restoreEditability(e *Engine) {
	for full, editable := range p.ref.editable {
		if e.dm.CheckDataInDM(full) {
			_ = e.dm.SetData(full, datamanager.AttrEditable, editable)
		}
	}
	p.ref.editable = make(map[string]bool)
}

type scopes []string

func (s scopes) contains(full string) bool {
	for _, root := range s {
		if namespace.IsUnder(full, root) {
			return true
		}
	}
	return false
}

// nestedDriverScopes lists the scenario roots of drivers nested below id,
// excluding self.
func (e *Engine) nestedDriverScopes(id NodeID, self *Node) scopes {
	var out scopes
	e.tree.Walk(id, func(m *Node) bool {
		if m.ID == self.ID || m.Kind() != builder.KindDriver {
			return true
		}
		for _, c := range m.Children {
			if child := e.tree.Get(c); child != nil {
				out = append(out, child.FullName)
			}
		}
		return true
	})
	return out
}

// forceNestedLinked sets reference_mode to linked on every referencing
// driver nested in the sub-tree of id.
func (e *Engine) forceNestedLinked(id NodeID, self *Node) {
	e.tree.Walk(id, func(m *Node) bool {
		if m.ID == self.ID || m.Kind() != builder.KindDriver {
			return true
		}
		full, ok := m.InputFullName(VarReferenceMode)
		if !ok {
			return true
		}
		if on, _ := e.dm.Value(namespace.Compose(m.FullName, VarInstanceReference)).(bool); on {
			_, _ = e.dm.SetValue(full, LinkedMode)
		}
		return true
	})
}
