package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/studygrid/internal/builder"
	"github.com/specialistvlad/studygrid/internal/ctxlog"
	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/discipline"
	"github.com/specialistvlad/studygrid/internal/mda"
	"github.com/specialistvlad/studygrid/internal/namespace"
	"github.com/specialistvlad/studygrid/internal/vartype"
)

func (p *driverProxy) setupMulti(ctx context.Context, e *Engine, n *Node) (discipline.Grammar, discipline.Grammar, error) {
	in := discipline.Grammar{
		VarScenarioDF: {
			Type:        vartype.Dataframe,
			Structuring: true,
			Default:     vartype.NewTable(ColSelectedScenario, ColScenarioName),
		},
		VarInstanceReference: {Type: vartype.Bool, Default: false, Structuring: true},
		VarGeneratedSamples:  {Type: vartype.Dataframe, Structuring: true, Optional: true},
		VarEvalOutputs: {
			Type:        vartype.Dataframe,
			Structuring: true,
			Default:     vartype.NewTable(ColSelectedOutput, ColFullName, ColOutputName),
		},
		VarUsecaseData: {Type: vartype.Dict, Structuring: true, Optional: true},
	}
	if p.instanceReference(e, n) {
		in[VarReferenceMode] = discipline.VarSpec{
			Type:           vartype.String,
			Default:        LinkedMode,
			Structuring:    true,
			PossibleValues: []any{LinkedMode, CopyMode},
		}
	}

	p.applyGeneratedSamples(ctx, e, n)

	out := discipline.Grammar{}
	p.evalOutputs = selectedRows(e.tableValue(namespace.Compose(n.FullName, VarEvalOutputs)), ColSelectedOutput)
	for _, o := range p.evalOutputs {
		out[gatherName(o)] = discipline.VarSpec{
			Type:       vartype.Dict,
			Visibility: datamanager.Shared,
			Namespace:  NSEval,
		}
	}

	p.observeImport(e, n)
	return in, out, nil
}

func (p *driverProxy) instanceReference(e *Engine, n *Node) bool {
	on, _ := e.dm.Value(namespace.Compose(n.FullName, VarInstanceReference)).(bool)
	return on
}

func (p *driverProxy) referenceMode(e *Engine, n *Node) string {
	mode, _ := e.dm.Value(namespace.Compose(n.FullName, VarReferenceMode)).(string)
	if mode == "" {
		return LinkedMode
	}
	return mode
}

// applyGeneratedSamples rewrites scenario_df from generated_samples each
// time the latter changes: one selected scenario per sample row.
func (p *driverProxy) applyGeneratedSamples(ctx context.Context, e *Engine, n *Node) {
	full := namespace.Compose(n.FullName, VarGeneratedSamples)
	version := e.dm.Version(full)
	if version == 0 || version == p.generatedVersion {
		return
	}
	p.generatedVersion = version
	samples := e.tableValue(full)
	if samples == nil || samples.Len() == 0 {
		return
	}
	if samples.Len() > MaxGeneratedScenarios {
		ctxlog.FromContext(ctx).Warn("⚠️ Too many generated samples, scenarios are not built.",
			"driver", n.FullName, "samples", samples.Len(), "max", MaxGeneratedScenarios)
		return
	}

	var trade []string
	for _, c := range samples.Columns {
		if c != ColSelectedScenario && c != ColScenarioName {
			trade = append(trade, c)
		}
	}
	table := vartype.NewTable(append([]string{ColSelectedScenario, ColScenarioName}, trade...)...)
	for r := 0; r < samples.Len(); r++ {
		selected := true
		if samples.Has(ColSelectedScenario) {
			selected = truthy(samples.Value(r, ColSelectedScenario))
		}
		row := []any{selected, fmt.Sprintf("scenario_%d", r+1)}
		for _, c := range trade {
			row = append(row, samples.Value(r, c))
		}
		_ = table.AddRow(row...)
	}
	_, _ = e.dm.SetValue(namespace.Compose(n.FullName, VarScenarioDF), table)
	ctxlog.FromContext(ctx).Info("Scenario table generated from samples.", "driver", n.FullName, "scenarios", table.Len())
}

// selectedScenarios validates scenario_df and returns the scenarios to
// build, ReferenceScenario last when enabled.
func (p *driverProxy) selectedScenarios(e *Engine, n *Node) ([]string, error) {
	table := e.tableValue(namespace.Compose(n.FullName, VarScenarioDF))
	if table == nil {
		table = vartype.NewTable(ColSelectedScenario, ColScenarioName)
	}
	if !table.Has(ColSelectedScenario) || !table.Has(ColScenarioName) {
		return nil, fmt.Errorf("scenario table needs the columns %s and %s", ColSelectedScenario, ColScenarioName)
	}

	reference := p.instanceReference(e, n)
	seen := make(map[string]bool)
	dupSeen := make(map[string]bool)
	var names, dups []string
	for r := 0; r < table.Len(); r++ {
		if !truthy(table.Value(r, ColSelectedScenario)) {
			continue
		}
		name := cellString(table.Value(r, ColScenarioName))
		if name == "" {
			return nil, errors.New("selected scenarios must have a name")
		}
		if strings.Contains(name, namespace.Separator) {
			return nil, fmt.Errorf("scenario name '%s' must not contain '%s'", name, namespace.Separator)
		}
		if seen[name] || (reference && name == ReferenceScenario) {
			if !dupSeen[name] {
				dupSeen[name] = true
				dups = append(dups, name)
			}
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(dups) > 0 {
		return nil, fmt.Errorf("Cannot activate several scenarios with the same name (%s).", strings.Join(dups, ", "))
	}
	if reference {
		names = append(names, ReferenceScenario)
	}
	return names, nil
}

func (p *driverProxy) buildMulti(ctx context.Context, e *Engine, n *Node) error {
	tableVar := namespace.Compose(n.FullName, VarScenarioDF)
	if !e.dm.CheckDataInDM(tableVar) {
		return nil
	}
	logger := ctxlog.FromContext(ctx)

	names, err := p.selectedScenarios(e, n)
	if err != nil {
		if n.buildErr == nil || n.buildErr.Error() != err.Error() {
			logger.Warn("⚠️ Scenario table is invalid.", "driver", n.FullName, "error", err)
		}
		n.buildErr = err
		_ = e.dm.SetData(tableVar, datamanager.AttrCheckIntegrityMsg, err.Error())
		return nil
	}
	n.buildErr = nil
	msg := ""
	if p.tradeErr != nil {
		msg = p.tradeErr.Error()
	}
	_ = e.dm.SetData(tableVar, datamanager.AttrCheckIntegrityMsg, msg)

	wanted := make(map[string]bool, len(names))
	for _, sc := range names {
		wanted[sc] = true
	}
	for _, sc := range p.order {
		if wanted[sc] {
			continue
		}
		e.removeSubtree(ctx, p.scenarios[sc])
		delete(p.scenarios, sc)
		p.ref.forget(sc)
		logger.Info("Scenario removed.", "driver", n.FullName, "scenario", sc)
	}

	father := e.parentPath(n)
	for _, sc := range names {
		if _, ok := p.scenarios[sc]; ok {
			continue
		}
		scenarioPath := namespace.Compose(n.FullName, sc)
		moved := func(value string) string {
			if namespace.IsUnder(value, n.FullName) {
				return namespace.InsertAfter(value, sc, n.FullName)
			}
			return namespace.InsertAfter(value, namespace.Compose(n.Name, sc), father)
		}
		rebased, err := e.rebaseBuilders(n.Builder.SubBuilders(), moved, scenarioPath)
		if err != nil {
			return fmt.Errorf("driver '%s', scenario '%s': %w", n.FullName, sc, err)
		}
		id, err := e.instantiate(ctx, n.ID, builder.Coupling(sc, rebased...))
		if err != nil {
			return err
		}
		p.scenarios[sc] = id
		logger.Info("Scenario built.", "driver", n.FullName, "scenario", sc)
	}
	p.order = names
	return nil
}

func (p *driverProxy) configureMulti(ctx context.Context, e *Engine, n *Node) {
	if n.buildErr != nil {
		return
	}
	if !p.instanceReference(e, n) && len(p.ref.editable) > 0 {
		p.restoreEditability(e)
		p.ref = newReferenceState()
	}
	if len(p.order) == 0 {
		return
	}

	if err := p.pushTrade(ctx, e, n); err != nil {
		p.failTrade(ctx, e, n, err)
		return
	}
	p.failTrade(ctx, e, n, nil)

	roots := make([]string, 0, len(p.order))
	if p.instanceReference(e, n) {
		roots = append(roots, namespace.Compose(n.FullName, ReferenceScenario))
	} else {
		for _, sc := range p.order {
			roots = append(roots, namespace.Compose(n.FullName, sc))
		}
	}
	p.applyImport(ctx, e, n, roots)

	for _, sc := range p.order {
		if !e.isConfigured(p.scenarios[sc]) {
			p.waiting = fmt.Sprintf("scenario '%s' is not configured yet", sc)
			return
		}
	}

	if p.instanceReference(e, n) {
		p.propagateReference(ctx, e, n)
	}

	first := p.scenarios[p.order[0]]
	_, possibleOut := e.discover(n, []NodeID{first}, namespace.Compose(n.FullName, p.order[0]))
	unknown := e.syncSelection(namespace.Compose(n.FullName, VarEvalOutputs), ColSelectedOutput, possibleOut, true)
	for _, name := range unknown {
		p.warnOnce(ctx, "out:"+name, "⚠️ Selected output is not a possible output, it will be ignored.",
			"driver", n.FullName, "output", name)
	}
}

// tradeColumns lists the free columns of the scenario table.
func (p *driverProxy) tradeColumns(table *vartype.Table) []string {
	var cols []string
	for _, c := range table.Columns {
		if c != ColSelectedScenario && c != ColScenarioName {
			cols = append(cols, c)
		}
	}
	return cols
}

// tradeWrites maps every trade variable location to its coerced table
// value. A column names a path relative to the scenario; when no variable
// sits exactly there, every scenario input with that short name matches.
// Cells that do not fit their variable, and columns matching no input of a
// configured scenario, come back as problems.
func (p *driverProxy) tradeWrites(e *Engine, n *Node) (map[string]any, []string) {
	table := e.tableValue(namespace.Compose(n.FullName, VarScenarioDF))
	if table == nil {
		return nil, nil
	}
	cols := p.tradeColumns(table)
	writes := make(map[string]any)
	var problems []string
	for r := 0; r < table.Len(); r++ {
		if !truthy(table.Value(r, ColSelectedScenario)) {
			continue
		}
		sc := cellString(table.Value(r, ColScenarioName))
		id, built := p.scenarios[sc]
		if !built || sc == ReferenceScenario {
			continue
		}
		settled := e.isConfigured(id)
		for _, col := range cols {
			raw := table.Value(r, col)
			if vartype.IsMissing(raw) {
				continue
			}
			targets := e.tradeTargets(n, sc, col)
			if len(targets) == 0 && settled {
				problems = append(problems, fmt.Sprintf("scenario '%s': column '%s' matches no input", sc, col))
			}
			for _, target := range targets {
				v, _ := e.dm.Get(target)
				coerced, err := vartype.Coerce(v.Type, raw)
				if err != nil {
					problems = append(problems, fmt.Sprintf("scenario '%s', column '%s': %v", sc, col, err))
					break
				}
				writes[target] = coerced
			}
		}
	}
	return writes, problems
}

func (e *Engine) tradeTargets(n *Node, sc, col string) []string {
	root := namespace.Compose(n.FullName, sc)
	exact := namespace.Compose(root, col)
	if e.dm.CheckDataInDM(exact) {
		return []string{exact}
	}
	if strings.Contains(col, namespace.Separator) {
		return nil
	}
	var out []string
	for _, key := range e.dm.Keys(root) {
		if namespace.ShortName(key) != col {
			continue
		}
		if v, ok := e.dm.Get(key); ok && v.IOType == datamanager.In {
			out = append(out, key)
		}
	}
	return out
}

// pushTrade writes the valid trade values and reports the invalid ones.
func (p *driverProxy) pushTrade(ctx context.Context, e *Engine, n *Node) error {
	writes, problems := p.tradeWrites(e, n)
	if len(writes) > 0 {
		changed, err := e.dm.SetValuesFromDict(writes)
		if err != nil {
			ctxlog.FromContext(ctx).Warn("⚠️ Trade variables could not be pushed.", "driver", n.FullName, "error", err)
		}
		if changed > 0 {
			ctxlog.FromContext(ctx).Debug("Trade variables pushed.", "driver", n.FullName, "changed", changed)
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid trade values:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// failTrade records err on the scenario table and on the driver, which
// stays unconfigured until the table is corrected. A nil err clears both.
func (p *driverProxy) failTrade(ctx context.Context, e *Engine, n *Node, err error) {
	if err != nil && (p.tradeErr == nil || p.tradeErr.Error() != err.Error()) {
		ctxlog.FromContext(ctx).Warn("⚠️ Scenario table is invalid.", "driver", n.FullName, "error", err)
	}
	p.tradeErr = err
	n.buildErr = err
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	_ = e.dm.SetData(namespace.Compose(n.FullName, VarScenarioDF), datamanager.AttrCheckIntegrityMsg, msg)
}

func (p *driverProxy) tradeDirty(e *Engine, n *Node) bool {
	writes, _ := p.tradeWrites(e, n)
	for full, v := range writes {
		if !datamanager.Equal(e.dm.Value(full), v) {
			return true
		}
	}
	return false
}

type gatherTarget struct {
	full    string
	sources map[string]string
}

// multiExec runs every scenario, then gathers the selected outputs keyed by
// scenario name.
type multiExec struct {
	name    string
	chain   *mda.Chain
	gathers []gatherTarget
	outputs []string
}

func (p *driverProxy) multiExecutable(e *Engine, n *Node) (mda.Executable, error) {
	children := make([]NodeID, 0, len(p.order))
	for _, sc := range p.order {
		children = append(children, p.scenarios[sc])
	}
	chain, err := e.chain(n, children)
	if err != nil {
		return nil, err
	}
	m := &multiExec{name: n.FullName, chain: chain, outputs: chain.Outputs()}
	for _, o := range p.evalOutputs {
		target, ok := n.OutputFullName(gatherName(o))
		if !ok {
			continue
		}
		g := gatherTarget{full: target, sources: make(map[string]string)}
		for _, sc := range p.order {
			src := namespace.Compose(n.FullName, sc, o.rel)
			if e.dm.CheckDataInDM(src) {
				g.sources[sc] = src
			}
		}
		m.gathers = append(m.gathers, g)
		m.outputs = append(m.outputs, target)
	}
	return m, nil
}

func (m *multiExec) Name() string      { return m.name }
func (m *multiExec) Inputs() []string  { return m.chain.Inputs() }
func (m *multiExec) Outputs() []string { return m.outputs }

func (m *multiExec) Run(ctx context.Context, store mda.Store) error {
	if err := m.chain.Run(ctx, store); err != nil {
		return err
	}
	for _, g := range m.gathers {
		gathered := make(map[string]any, len(g.sources))
		for sc, src := range g.sources {
			gathered[sc] = store.Value(src)
		}
		if _, err := store.SetValue(g.full, gathered); err != nil {
			return err
		}
	}
	return nil
}
