package engine

import (
	"context"
	"fmt"

	"github.com/specialistvlad/studygrid/internal/builder"
	"github.com/specialistvlad/studygrid/internal/ctxlog"
	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/discipline"
	"github.com/specialistvlad/studygrid/internal/mda"
	"github.com/specialistvlad/studygrid/internal/namespace"
	"github.com/specialistvlad/studygrid/internal/vartype"
)

// Builder modes.
const (
	ModeMonoInstance  = "mono_instance"
	ModeMultiInstance = "multi_instance"
	ModeRegularBuild  = "regular_build"
)

// Reference propagation modes.
const (
	LinkedMode = "linked_mode"
	CopyMode   = "copy_mode"
)

const (
	// ReferenceScenario is the scenario whose inputs are propagated to its
	// siblings when instance_reference is on.
	ReferenceScenario = "ReferenceScenario"
	// NSEval is the namespace holding gather outputs.
	NSEval = "ns_eval"
	// MaxGeneratedScenarios bounds the scenario table built from
	// generated_samples.
	MaxGeneratedScenarios = 1024
	// SubprocessName names the hidden coupling of a mono-instance driver
	// with several builders.
	SubprocessName = "subprocess"
)

// Driver input and output names.
const (
	VarBuilderMode       = "builder_mode"
	VarScenarioDF        = "scenario_df"
	VarInstanceReference = "instance_reference"
	VarReferenceMode     = "reference_mode"
	VarGeneratedSamples  = "generated_samples"
	VarEvalInputs        = "eval_inputs"
	VarEvalOutputs       = "eval_outputs"
	VarSamplesDF         = "samples_df"
	VarNProcesses        = "n_processes"
	VarWaitTime          = "wait_time_between_fork"
	VarUsecaseData       = "usecase_data"
	VarSamplesInputsDF   = "samples_inputs_df"
	VarSamplesOutputsDF  = "samples_outputs_df"
)

// Selection and scenario table columns.
const (
	ColSelectedScenario = "selected_scenario"
	ColScenarioName     = "scenario_name"
	ColSelectedInput    = "selected_input"
	ColSelectedOutput   = "selected_output"
	ColFullName         = "full_name"
	ColOutputName       = "output_name"
)

// GatherSuffix is appended to an output short name to name its gather
// output when no alias is given.
const GatherSuffix = "_dict"

type evalOutput struct {
	rel  string
	name string
}

type driverProxy struct {
	// mode is the builder mode the current children were built for.
	mode    string
	waiting string
	warned  map[string]bool

	built bool

	// mono-instance
	evalInputs  []string
	evalOutputs []evalOutput
	possibleIn  map[string]bool

	// multi-instance
	scenarios        map[string]NodeID
	order            []string
	generatedVersion uint64
	ref              referenceState
	// tradeErr holds the scenario table cells that could not be pushed.
	tradeErr         error

	imp importState
}

func newDriverProxy() *driverProxy {
	p := &driverProxy{}
	p.reset()
	return p
}

func (p *driverProxy) reset() {
	p.built = false
	p.evalInputs = nil
	p.evalOutputs = nil
	p.possibleIn = nil
	p.scenarios = make(map[string]NodeID)
	p.order = nil
	p.generatedVersion = 0
	p.ref = newReferenceState()
	p.tradeErr = nil
	p.warned = make(map[string]bool)
}

func (p *driverProxy) grammar(*Engine, *Node) (discipline.Grammar, discipline.Grammar) {
	return discipline.Grammar{
		VarBuilderMode: {
			Type:           vartype.String,
			Structuring:    true,
			Optional:       true,
			PossibleValues: []any{ModeMonoInstance, ModeMultiInstance, ModeRegularBuild},
		},
	}, nil
}

func (p *driverProxy) setup(ctx context.Context, e *Engine, n *Node, in discipline.Values) (discipline.Grammar, discipline.Grammar, error) {
	mode := in.String(VarBuilderMode)
	modeVar := namespace.Compose(n.FullName, VarBuilderMode)
	switch mode {
	case "", ModeRegularBuild:
		_ = e.dm.SetData(modeVar, datamanager.AttrCheckIntegrityMsg, "")
		return nil, nil, nil
	case ModeMonoInstance:
		_ = e.dm.SetData(modeVar, datamanager.AttrCheckIntegrityMsg, "")
		return p.setupMono(ctx, e, n)
	case ModeMultiInstance:
		_ = e.dm.SetData(modeVar, datamanager.AttrCheckIntegrityMsg, "")
		return p.setupMulti(ctx, e, n)
	}
	err := fmt.Errorf("unknown builder mode '%s'", mode)
	_ = e.dm.SetData(modeVar, datamanager.AttrCheckIntegrityMsg, err.Error())
	return nil, nil, err
}

// build tears the children down when the mode changed, then builds what
// the current mode needs.
func (p *driverProxy) build(ctx context.Context, e *Engine, n *Node) error {
	mode, _ := e.dm.Value(namespace.Compose(n.FullName, VarBuilderMode)).(string)
	switch mode {
	case "", ModeMonoInstance, ModeMultiInstance, ModeRegularBuild:
	default:
		return nil
	}
	if mode != p.mode {
		if p.mode != "" {
			ctxlog.FromContext(ctx).Info("Driver mode changed, tearing down sub-process.",
				"driver", n.FullName, "from", p.mode, "to", mode)
			for _, c := range append([]NodeID(nil), n.Children...) {
				e.removeSubtree(ctx, c)
			}
			e.ns.RemoveOwner(p.subprocessOwner(n))
			p.restoreEditability(e)
		}
		p.reset()
		p.mode = mode
	}

	switch mode {
	case ModeRegularBuild:
		if p.built {
			return nil
		}
		for _, sub := range n.Builder.SubBuilders() {
			if _, err := e.instantiate(ctx, n.ID, sub); err != nil {
				return err
			}
		}
		p.built = true
	case ModeMonoInstance:
		return p.buildMono(ctx, e, n)
	case ModeMultiInstance:
		return p.buildMulti(ctx, e, n)
	}
	return nil
}

func (p *driverProxy) afterConfigure(ctx context.Context, e *Engine, n *Node) error {
	p.waiting = ""
	switch p.mode {
	case ModeMonoInstance:
		p.configureMono(ctx, e, n)
	case ModeMultiInstance:
		p.configureMulti(ctx, e, n)
	}
	return nil
}

func (p *driverProxy) ready(e *Engine, n *Node) bool {
	if p.waiting != "" || p.imp.pending {
		return false
	}
	if p.mode == ModeMultiInstance && n.buildErr == nil {
		return !p.referenceDirty(e, n) && !p.tradeDirty(e, n)
	}
	return true
}

func (p *driverProxy) executable(e *Engine, n *Node) (mda.Executable, error) {
	switch p.mode {
	case ModeMonoInstance:
		return p.monoExecutable(e, n)
	case ModeMultiInstance:
		return p.multiExecutable(e, n)
	}
	return e.chain(n, n.Children)
}

func (p *driverProxy) subprocessOwner(n *Node) string {
	return n.FullName + "#" + SubprocessName
}

// rebaseBuilders copies subs with every associated namespace moved by
// mapValue. The new bindings are local and claimed by owner.
func (e *Engine) rebaseBuilders(subs []*builder.Builder, mapValue func(string) string, owner string) ([]*builder.Builder, error) {
	mapID := func(id string) (string, error) {
		ns, ok := e.ns.Get(id)
		if !ok {
			return "", fmt.Errorf("unknown namespace id '%s'", id)
		}
		opts := []namespace.Option{namespace.Local(), namespace.WithOwner(owner)}
		if ns.Display != "" {
			opts = append(opts, namespace.WithDisplay(ns.Display))
		}
		return e.ns.Add(ns.Name, mapValue(ns.Value), opts...)
	}
	out := make([]*builder.Builder, 0, len(subs))
	for _, sub := range subs {
		rebased, err := sub.Rebase(mapID)
		if err != nil {
			return nil, err
		}
		out = append(out, rebased)
	}
	return out, nil
}

func (e *Engine) parentPath(n *Node) string {
	if p := e.tree.Get(n.Parent); p != nil {
		return p.FullName
	}
	return ""
}

func (p *driverProxy) warnOnce(ctx context.Context, key, msg string, args ...any) {
	if p.warned[key] {
		return
	}
	p.warned[key] = true
	ctxlog.FromContext(ctx).Warn(msg, args...)
}

func (e *Engine) tableValue(full string) *vartype.Table {
	t, err := vartype.ToTable(e.dm.Value(full))
	if err != nil || t == nil {
		return nil
	}
	return t
}

func truthy(v any) bool {
	switch tv := v.(type) {
	case bool:
		return tv
	case float64:
		return tv != 0 && !vartype.IsMissing(tv)
	case int:
		return tv != 0
	case string:
		return tv == "true" || tv == "True"
	}
	return false
}

func cellString(v any) string {
	s, _ := v.(string)
	return s
}

// selectedRows returns the full_name of the rows whose selection column is
// set, in table order, with the output_name alias when the table has one.
func selectedRows(t *vartype.Table, selCol string) []evalOutput {
	if t == nil || !t.Has(selCol) || !t.Has(ColFullName) {
		return nil
	}
	var out []evalOutput
	seen := make(map[string]bool)
	for r := 0; r < t.Len(); r++ {
		if !truthy(t.Value(r, selCol)) {
			continue
		}
		name := cellString(t.Value(r, ColFullName))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		alias := ""
		if t.Has(ColOutputName) {
			alias = cellString(t.Value(r, ColOutputName))
		}
		out = append(out, evalOutput{rel: name, name: alias})
	}
	return out
}

func gatherName(o evalOutput) string {
	if o.name != "" {
		return o.name
	}
	return namespace.ShortName(o.rel) + GatherSuffix
}

// syncSelection rewrites a selection table so it lists every possible name,
// keeping the flags and aliases already entered. Selected names that are
// not possible are kept at the end and reported.
func (e *Engine) syncSelection(full, selCol string, possible []string, withAlias bool) []string {
	current := e.tableValue(full)
	selected := make(map[string]bool)
	aliases := make(map[string]any)
	var order []string
	if current != nil && current.Has(ColFullName) {
		for r := 0; r < current.Len(); r++ {
			name := cellString(current.Value(r, ColFullName))
			if name == "" {
				continue
			}
			if _, dup := selected[name]; !dup {
				order = append(order, name)
			}
			selected[name] = selected[name] || truthy(current.Value(r, selCol))
			if withAlias && current.Has(ColOutputName) {
				if a := cellString(current.Value(r, ColOutputName)); a != "" {
					aliases[name] = a
				}
			}
		}
	}

	columns := []string{selCol, ColFullName}
	if withAlias {
		columns = append(columns, ColOutputName)
	}
	next := vartype.NewTable(columns...)
	row := func(name string) []any {
		cells := []any{selected[name], name}
		if withAlias {
			alias, ok := aliases[name]
			if !ok {
				alias = ""
			}
			cells = append(cells, alias)
		}
		return cells
	}
	isPossible := make(map[string]bool, len(possible))
	for _, name := range possible {
		isPossible[name] = true
		_ = next.AddRow(row(name)...)
	}
	var unknown []string
	for _, name := range order {
		if !isPossible[name] && selected[name] {
			unknown = append(unknown, name)
			_ = next.AddRow(row(name)...)
		}
	}
	if current == nil || !datamanager.Equal(current, next) {
		_, _ = e.dm.SetValue(full, next)
	}
	return unknown
}
