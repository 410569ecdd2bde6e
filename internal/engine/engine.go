package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/specialistvlad/studygrid/internal/builder"
	"github.com/specialistvlad/studygrid/internal/ctxlog"
	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/namespace"
	"github.com/specialistvlad/studygrid/internal/registry"
)

// DefaultMaxPasses bounds the configuration loop.
const DefaultMaxPasses = 100

// Engine owns the namespace manager, the data manager and the node tree of
// one study.
type Engine struct {
	study     string
	reg       *registry.Registry
	ns        *namespace.Manager
	dm        *datamanager.Store
	tree      *Tree
	root      NodeID
	maxPasses int

	pending map[string]any
	flips   uint64
}

// Option tunes New.
type Option func(*Engine)

// WithMaxPasses overrides the configuration pass ceiling.
func WithMaxPasses(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPasses = n
		}
	}
}

// New creates an engine for the study root name.
func New(study string, reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		study:     study,
		reg:       reg,
		ns:        namespace.NewManager(study),
		dm:        datamanager.New(),
		tree:      &Tree{},
		root:      noParent,
		maxPasses: DefaultMaxPasses,
		pending:   make(map[string]any),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Study returns the study root name.
func (e *Engine) Study() string { return e.study }

// Namespaces returns the namespace manager.
func (e *Engine) Namespaces() *namespace.Manager { return e.ns }

// DataManager returns the data manager.
func (e *Engine) DataManager() *datamanager.Store { return e.dm }

// Tree returns the node arena.
func (e *Engine) Tree() *Tree { return e.tree }

// Root returns the root coupling, nil before Load.
func (e *Engine) Root() *Node { return e.tree.Get(e.root) }

// Node returns the visible node at fullName.
func (e *Engine) Node(fullName string) (*Node, bool) { return e.tree.Find(fullName) }

// AddNamespace binds a shared namespace on behalf of the study and returns
// its ID for builder association.
func (e *Engine) AddNamespace(name, value string, opts ...namespace.Option) (string, error) {
	opts = append([]namespace.Option{namespace.WithOwner(e.study)}, opts...)
	return e.ns.Add(name, value, opts...)
}

// Load instantiates the root coupling over builders. Children are built by
// the first Configure pass.
func (e *Engine) Load(ctx context.Context, builders ...*builder.Builder) error {
	if e.root != noParent {
		return errors.New("a process is already loaded")
	}
	id, err := e.instantiate(ctx, noParent, builder.Coupling(e.study, builders...))
	if err != nil {
		return err
	}
	e.root = id
	return nil
}

// SetValues writes full-name keyed values straight into the data manager.
func (e *Engine) SetValues(values map[string]any) error {
	_, err := e.dm.SetValuesFromDict(values)
	return err
}

// LoadStudy queues values and configures until every key found its
// variable. Keys appear as the tree grows, so each pass applies the keys
// that exist at that point.
func (e *Engine) LoadStudy(ctx context.Context, values map[string]any) (*ConfigReport, error) {
	for k, v := range values {
		e.pending[k] = v
	}
	return e.Configure(ctx)
}

// ConfigReport summarizes a successful configuration.
type ConfigReport struct {
	Passes    int
	Nodes     int
	Variables int
}

// Configure runs configuration passes until the tree reaches a fixed point.
func (e *Engine) Configure(ctx context.Context) (*ConfigReport, error) {
	if e.root == noParent {
		return nil, errors.New("no process loaded")
	}
	logger := ctxlog.FromContext(ctx)

	var changing []string
	for pass := 1; pass <= e.maxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		before := e.fingerprint()
		versions := e.structuringVersions()

		applied := e.applyPending()
		if err := e.build(ctx, e.root); err != nil {
			return nil, err
		}
		if err := e.configure(ctx, e.root); err != nil {
			return nil, err
		}
		changing = e.changedSince(versions)
		logger.Debug("Configuration pass finished.",
			"pass", pass, "nodes", e.tree.Len(), "variables", e.dm.Len(),
			"applied", applied, "changing", len(changing))

		configured := e.IsConfigured()
		if configured && len(e.pending) == 0 {
			return &ConfigReport{Passes: pass, Nodes: e.tree.Len(), Variables: e.dm.Len()}, nil
		}
		if e.fingerprint() != before {
			continue
		}
		if configured {
			keys := e.dropPending()
			logger.Warn("⚠️ Study values did not match any variable.", "count", len(keys))
			return &ConfigReport{Passes: pass, Nodes: e.tree.Len(), Variables: e.dm.Len()},
				fmt.Errorf("%w: %v", datamanager.ErrUnknownVariable, keys)
		}
		return nil, e.nonConvergence(pass, true, changing)
	}
	return nil, e.nonConvergence(e.maxPasses, false, changing)
}

// IsConfigured reports whether the whole tree reached its fixed point.
func (e *Engine) IsConfigured() bool {
	if e.root == noParent {
		return false
	}
	return e.isConfigured(e.root)
}

func (e *Engine) isConfigured(id NodeID) bool {
	n := e.tree.Get(id)
	if !n.configured || n.Err() != nil || e.needsSetup(n) || !n.proxy.ready(e, n) {
		return false
	}
	for _, c := range n.Children {
		if !e.isConfigured(c) {
			return false
		}
	}
	return true
}

func (e *Engine) build(ctx context.Context, id NodeID) error {
	n := e.tree.Get(id)
	if n == nil {
		return nil
	}
	if err := n.proxy.build(ctx, e, n); err != nil {
		return err
	}
	for _, c := range append([]NodeID(nil), n.Children...) {
		if err := e.build(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) configure(ctx context.Context, id NodeID) error {
	n := e.tree.Get(id)
	if n == nil {
		return nil
	}
	e.configureSelf(ctx, n)
	for _, c := range append([]NodeID(nil), n.Children...) {
		if err := e.configure(ctx, c); err != nil {
			return err
		}
	}
	return n.proxy.afterConfigure(ctx, e, n)
}

func (e *Engine) instantiate(ctx context.Context, parent NodeID, b *builder.Builder) (NodeID, error) {
	n := &Node{
		Parent:     parent,
		Name:       b.Name(),
		FullName:   b.Name(),
		Builder:    b,
		namespaces: make(map[string]string),
		inFull:     make(map[string]string),
		outFull:    make(map[string]string),
	}
	if p := e.tree.Get(parent); p != nil {
		n.FullName = namespace.Compose(p.FullName, b.Name())
		if b.Hidden() {
			n.FullName = p.FullName
		}
		for _, c := range p.Children {
			if sib := e.tree.Get(c); sib.FullName == n.FullName && !sib.Hidden() && !b.Hidden() {
				return 0, fmt.Errorf("node '%s' already exists", n.FullName)
			}
		}
	}
	for _, id := range b.Namespaces() {
		ns, ok := e.ns.Get(id)
		if !ok {
			return 0, fmt.Errorf("builder '%s': unknown namespace id '%s'", b.Name(), id)
		}
		n.namespaces[ns.Name] = ns.Value
	}

	switch b.Kind() {
	case builder.KindDiscipline:
		model, err := e.reg.Instantiate(b.Module())
		if err != nil {
			return 0, fmt.Errorf("builder '%s': %w", b.Name(), err)
		}
		n.proxy = &disciplineProxy{model: model}
	case builder.KindCoupling:
		n.proxy = &couplingProxy{}
	case builder.KindDriver:
		n.proxy = newDriverProxy()
	default:
		return 0, fmt.Errorf("builder '%s': unsupported kind %s", b.Name(), b.Kind())
	}

	id := e.tree.add(n)
	ctxlog.FromContext(ctx).Debug("Node instantiated.", "node", n.FullName, "kind", b.Kind().String())
	return id, nil
}

// removeSubtree tears down the nodes below and including id: their
// variables are released and namespaces claimed by their paths forgotten.
func (e *Engine) removeSubtree(ctx context.Context, id NodeID) {
	for _, n := range e.tree.detach(id) {
		for _, full := range n.inFull {
			e.dm.Release(n.owner(), full)
		}
		for _, full := range n.outFull {
			e.dm.Release(n.owner(), full)
		}
		if !n.Hidden() {
			e.ns.RemoveOwner(n.FullName)
		}
		ctxlog.FromContext(ctx).Debug("Node removed.", "node", n.FullName)
	}
}

func (e *Engine) applyPending() int {
	applied := 0
	for _, key := range sortedKeys(e.pending) {
		if !e.dm.CheckDataInDM(key) {
			continue
		}
		if _, err := e.dm.SetValue(key, e.pending[key]); err == nil {
			applied++
		}
		delete(e.pending, key)
	}
	return applied
}

func (e *Engine) dropPending() []string {
	keys := sortedKeys(e.pending)
	e.pending = make(map[string]any)
	return keys
}

type fingerprint struct {
	dm, tree, ns, flips uint64
	pending             int
}

func (e *Engine) fingerprint() fingerprint {
	fp := fingerprint{dm: e.dm.Revision(), tree: e.tree.rev, flips: e.flips, pending: len(e.pending)}
	for _, ns := range e.ns.List() {
		fp.ns += e.ns.Version(ns.Name) + 1
	}
	return fp
}

func (e *Engine) structuringVersions() map[string]uint64 {
	out := make(map[string]uint64)
	for _, v := range e.dm.Snapshot("") {
		if v.Structuring {
			out[v.FullName] = v.Version
		}
	}
	return out
}

func (e *Engine) changedSince(before map[string]uint64) []string {
	var changed []string
	for full, v := range e.structuringVersions() {
		if before[full] != v {
			changed = append(changed, full)
		}
	}
	sort.Strings(changed)
	return changed
}

func (e *Engine) nonConvergence(passes int, stalled bool, changing []string) error {
	err := &NonConvergenceError{
		Passes:      passes,
		Stalled:     stalled,
		Changing:    changing,
		PendingKeys: sortedKeys(e.pending),
	}
	e.tree.Walk(e.root, func(n *Node) bool {
		if e.isConfigured(n.ID) {
			return false
		}
		line := n.FullName
		if n.Hidden() {
			line += " (hidden)"
		}
		if nerr := n.Err(); nerr != nil {
			line += ": " + nerr.Error()
		} else if p, ok := n.proxy.(*driverProxy); ok && p.waiting != "" {
			line += ": " + p.waiting
		}
		if p, ok := n.proxy.(*driverProxy); ok {
			err.PendingKeys = append(err.PendingKeys, p.imp.unmatched...)
		}
		err.Unconfigured = append(err.Unconfigured, line)
		return true
	})
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedValues(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
