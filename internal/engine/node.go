package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/studygrid/internal/builder"
	"github.com/specialistvlad/studygrid/internal/ctxlog"
	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/discipline"
	"github.com/specialistvlad/studygrid/internal/namespace"
)

// configureSelf runs the setup of n when it was never configured or one of
// its structuring inputs or namespaces moved since the last setup.
func (e *Engine) configureSelf(ctx context.Context, n *Node) {
	if n.configured && !e.needsSetup(n) {
		return
	}
	logger := ctxlog.FromContext(ctx)
	n.configErr = nil
	n.nsVersions = make(map[string]uint64)

	staticIn, staticOut := n.proxy.grammar(e, n)
	if err := e.syncGrammar(n, staticIn, staticOut, false); err != nil {
		e.failSetup(ctx, n, err)
		return
	}
	dynIn, dynOut, err := n.proxy.setup(ctx, e, n, e.inputValues(n))
	if err != nil {
		e.failSetup(ctx, n, err)
		return
	}
	if err := e.syncGrammar(n, staticIn.Merge(dynIn), staticOut.Merge(dynOut), true); err != nil {
		e.failSetup(ctx, n, err)
		return
	}

	n.structuring = make(map[string]uint64)
	for _, full := range n.inFull {
		if v, ok := e.dm.Get(full); ok && v.Structuring {
			n.structuring[full] = v.Version
		}
	}
	if !n.configured {
		e.flips++
	}
	n.configured = true
	logger.Debug("Node set up.", "node", n.FullName, "inputs", len(n.inFull), "outputs", len(n.outFull))
}

func (e *Engine) failSetup(ctx context.Context, n *Node, err error) {
	if n.configured {
		e.flips++
	}
	n.configured = false
	if n.configErr == nil || n.configErr.Error() != err.Error() {
		ctxlog.FromContext(ctx).Warn("⚠️ Node configuration failed.", "node", n.FullName, "error", err)
	}
	n.configErr = err
}

func (e *Engine) needsSetup(n *Node) bool {
	for full, v := range n.structuring {
		if e.dm.Version(full) != v {
			return true
		}
	}
	for name, v := range n.nsVersions {
		if e.ns.Version(name) != v {
			return true
		}
	}
	return false
}

// inputValues reads the current value of every declared input by short name.
func (e *Engine) inputValues(n *Node) discipline.Values {
	in := make(discipline.Values, len(n.inFull))
	for short, full := range n.inFull {
		in[short] = e.dm.Value(full)
	}
	return in
}

// syncGrammar declares the variables of in and out on behalf of n. With
// release set, variables n declared before and no longer lists are released.
func (e *Engine) syncGrammar(n *Node, in, out discipline.Grammar, release bool) error {
	var errs []error
	newIn := make(map[string]string, len(in))
	newOut := make(map[string]string, len(out))

	declare := func(short string, spec discipline.VarSpec, io datamanager.IOType, prev, next map[string]string) {
		full, err := e.resolve(n, short, spec)
		if err != nil {
			errs = append(errs, err)
			return
		}
		next[short] = full
		if prev[short] == full {
			return
		}
		if err := e.dm.Declare(n.owner(), variableFromSpec(full, spec, io)); err != nil {
			errs = append(errs, err)
			delete(next, short)
		}
	}
	for _, short := range sortedKeys(in) {
		declare(short, in[short], datamanager.In, n.inFull, newIn)
	}
	for _, short := range sortedKeys(out) {
		declare(short, out[short], datamanager.Out, n.outFull, newOut)
	}

	if release {
		for short, full := range n.inFull {
			if newIn[short] != full {
				e.dm.Release(n.owner(), full)
			}
		}
		for short, full := range n.outFull {
			if newOut[short] != full {
				e.dm.Release(n.owner(), full)
			}
		}
		n.inputs, n.outputs = in, out
		n.inFull, n.outFull = newIn, newOut
	} else {
		n.inputs = n.inputs.Merge(in)
		n.outputs = n.outputs.Merge(out)
		for short, full := range newIn {
			n.inFull[short] = full
		}
		for short, full := range newOut {
			n.outFull[short] = full
		}
	}
	return errors.Join(errs...)
}

func variableFromSpec(full string, spec discipline.VarSpec, io datamanager.IOType) datamanager.Variable {
	vis := spec.Visibility
	if vis == "" {
		vis = datamanager.Local
	}
	return datamanager.Variable{
		FullName:       full,
		Type:           spec.Type,
		Default:        spec.Default,
		Editable:       io == datamanager.In && !spec.ReadOnly,
		Visibility:     vis,
		Namespace:      spec.Namespace,
		Structuring:    spec.Structuring,
		Numerical:      spec.Numerical,
		Optional:       spec.Optional,
		IOType:         io,
		Unit:           spec.Unit,
		PossibleValues: spec.PossibleValues,
	}
}

// resolve turns a short name into a full name: local and internal
// variables live under the node path, shared ones under their namespace.
func (e *Engine) resolve(n *Node, short string, spec discipline.VarSpec) (string, error) {
	if spec.Visibility != datamanager.Shared {
		return namespace.Compose(n.FullName, short), nil
	}
	value, ok := e.namespaceValue(n, spec.Namespace)
	if !ok {
		return "", fmt.Errorf("variable '%s': namespace '%s' is not defined", short, spec.Namespace)
	}
	return namespace.Compose(value, short), nil
}

// namespaceValue looks name up in the builder bindings of n and its
// ancestors, then in the shared dictionary. Shared lookups are recorded so a
// rebinding triggers a new setup.
func (e *Engine) namespaceValue(n *Node, name string) (string, bool) {
	for cur := n; cur != nil; cur = e.tree.Get(cur.Parent) {
		if v, ok := cur.namespaces[name]; ok {
			return v, true
		}
	}
	if n.nsVersions != nil {
		n.nsVersions[name] = e.ns.Version(name)
	}
	if ns, ok := e.ns.Shared(name); ok {
		return ns.Value, true
	}
	if name == NSEval && n.Kind() == builder.KindDriver {
		return n.FullName, true
	}
	return "", false
}
