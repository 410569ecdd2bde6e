package engine

import (
	"context"
	"fmt"

	"github.com/specialistvlad/studygrid/internal/discipline"
	"github.com/specialistvlad/studygrid/internal/mda"
	"github.com/specialistvlad/studygrid/internal/vartype"
)

// proxy is the kind-specific behavior of a node.
type proxy interface {
	// grammar is the static part of the node grammar.
	grammar(e *Engine, n *Node) (in, out discipline.Grammar)
	// setup returns the dynamic part given the current input values.
	setup(ctx context.Context, e *Engine, n *Node, in discipline.Values) (discipline.Grammar, discipline.Grammar, error)
	// build creates or removes children.
	build(ctx context.Context, e *Engine, n *Node) error
	// afterConfigure runs once the children were configured in a pass.
	afterConfigure(ctx context.Context, e *Engine, n *Node) error
	// ready reports whether afterConfigure has work left.
	ready(e *Engine, n *Node) bool
	executable(e *Engine, n *Node) (mda.Executable, error)
}

type disciplineProxy struct {
	model discipline.Model
}

func (p *disciplineProxy) grammar(*Engine, *Node) (discipline.Grammar, discipline.Grammar) {
	return p.model.InputGrammar(), p.model.OutputGrammar()
}

func (p *disciplineProxy) setup(_ context.Context, _ *Engine, _ *Node, in discipline.Values) (discipline.Grammar, discipline.Grammar, error) {
	c, ok := p.model.(discipline.Configurable)
	if !ok {
		return nil, nil, nil
	}
	dynIn, dynOut := c.Setup(in)
	if err := dynIn.Validate(); err != nil {
		return nil, nil, err
	}
	if err := dynOut.Validate(); err != nil {
		return nil, nil, err
	}
	return dynIn, dynOut, nil
}

func (p *disciplineProxy) build(context.Context, *Engine, *Node) error          { return nil }
func (p *disciplineProxy) afterConfigure(context.Context, *Engine, *Node) error { return nil }
func (p *disciplineProxy) ready(*Engine, *Node) bool                            { return true }

func (p *disciplineProxy) executable(_ *Engine, n *Node) (mda.Executable, error) {
	optional := make(map[string]bool)
	for short, spec := range n.inputs {
		if spec.Optional {
			optional[short] = true
		}
	}
	return &disciplineExec{
		name:     n.FullName,
		model:    p.model,
		inputs:   copyNames(n.inFull),
		outputs:  copyNames(n.outFull),
		optional: optional,
	}, nil
}

// disciplineExec runs one model against a store.
type disciplineExec struct {
	name     string
	model    discipline.Model
	inputs   map[string]string
	outputs  map[string]string
	optional map[string]bool
}

func (d *disciplineExec) Name() string      { return d.name }
func (d *disciplineExec) Inputs() []string  { return sortedValues(d.inputs) }
func (d *disciplineExec) Outputs() []string { return sortedValues(d.outputs) }

func (d *disciplineExec) Run(ctx context.Context, store mda.Store) error {
	in := make(discipline.Values, len(d.inputs))
	for _, short := range sortedKeys(d.inputs) {
		v := store.Value(d.inputs[short])
		if v == nil && !d.optional[short] {
			return fmt.Errorf("input '%s' is not set", d.inputs[short])
		}
		in[short] = v
	}
	out, err := d.model.Compute(ctx, in)
	if err != nil {
		return err
	}
	for _, short := range sortedKeys(d.outputs) {
		v, ok := out[short]
		if !ok {
			return fmt.Errorf("output '%s' was not computed", short)
		}
		if _, err := store.SetValue(d.outputs[short], v); err != nil {
			return err
		}
	}
	return nil
}

const (
	varMaxMDAIter = "max_mda_iter"
	varTolerance  = "tolerance"
)

type couplingProxy struct {
	built bool
}

func (p *couplingProxy) grammar(*Engine, *Node) (discipline.Grammar, discipline.Grammar) {
	return discipline.Grammar{
		varMaxMDAIter: {Type: vartype.Int, Default: mda.DefaultMaxIter, Numerical: true},
		varTolerance:  {Type: vartype.Float, Default: mda.DefaultTolerance, Numerical: true},
	}, nil
}

func (p *couplingProxy) setup(context.Context, *Engine, *Node, discipline.Values) (discipline.Grammar, discipline.Grammar, error) {
	return nil, nil, nil
}

func (p *couplingProxy) build(ctx context.Context, e *Engine, n *Node) error {
	if p.built {
		return nil
	}
	for _, sub := range n.Builder.SubBuilders() {
		if _, err := e.instantiate(ctx, n.ID, sub); err != nil {
			return err
		}
	}
	p.built = true
	return nil
}

func (p *couplingProxy) afterConfigure(context.Context, *Engine, *Node) error { return nil }
func (p *couplingProxy) ready(*Engine, *Node) bool                            { return true }

func (p *couplingProxy) executable(e *Engine, n *Node) (mda.Executable, error) {
	return e.chain(n, n.Children)
}

// chain wraps the executables of children into an mda chain using the
// numerical inputs of n.
func (e *Engine) chain(n *Node, children []NodeID) (*mda.Chain, error) {
	execs := make([]mda.Executable, 0, len(children))
	for _, c := range children {
		exec, err := e.executable(c)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	opts := mda.Options{}
	if full, ok := n.inFull[varMaxMDAIter]; ok {
		if v, ok := e.dm.Value(full).(int); ok {
			opts.MaxIter = v
		}
	}
	if full, ok := n.inFull[varTolerance]; ok {
		if v, ok := e.dm.Value(full).(float64); ok {
			opts.Tolerance = v
		}
	}
	return mda.NewChain(n.FullName, execs, opts)
}

func (e *Engine) executable(id NodeID) (mda.Executable, error) {
	n := e.tree.Get(id)
	return n.proxy.executable(e, n)
}

func copyNames(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
