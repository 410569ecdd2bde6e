package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/studygrid/internal/builder"
	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/discipline"
	"github.com/specialistvlad/studygrid/internal/mda"
	"github.com/specialistvlad/studygrid/internal/namespace"
	"github.com/specialistvlad/studygrid/internal/vartype"
)

func (p *driverProxy) setupMono(ctx context.Context, e *Engine, n *Node) (discipline.Grammar, discipline.Grammar, error) {
	in := discipline.Grammar{
		VarEvalInputs: {
			Type:        vartype.Dataframe,
			Structuring: true,
			Default:     vartype.NewTable(ColSelectedInput, ColFullName),
		},
		VarEvalOutputs: {
			Type:        vartype.Dataframe,
			Structuring: true,
			Default:     vartype.NewTable(ColSelectedOutput, ColFullName, ColOutputName),
		},
		VarNProcesses: {Type: vartype.Int, Default: 1, Numerical: true},
		VarWaitTime:   {Type: vartype.Float, Default: 0.0, Numerical: true},
		VarUsecaseData: {
			Type:        vartype.Dict,
			Structuring: true,
			Optional:    true,
		},
	}
	out := discipline.Grammar{
		VarSamplesInputsDF: {Type: vartype.Dataframe},
	}

	p.evalInputs = nil
	for _, o := range selectedRows(e.tableValue(namespace.Compose(n.FullName, VarEvalInputs)), ColSelectedInput) {
		p.evalInputs = append(p.evalInputs, o.rel)
	}
	p.evalOutputs = selectedRows(e.tableValue(namespace.Compose(n.FullName, VarEvalOutputs)), ColSelectedOutput)

	if len(p.evalInputs) > 0 {
		in[VarSamplesDF] = discipline.VarSpec{
			Type:    vartype.Dataframe,
			Default: vartype.NewTable(p.evalInputs...),
		}
		p.reshapeSamples(e, n)
	}
	if len(p.evalOutputs) > 0 {
		for _, o := range p.evalOutputs {
			out[gatherName(o)] = discipline.VarSpec{
				Type:       vartype.Dict,
				Visibility: datamanager.Shared,
				Namespace:  NSEval,
			}
		}
		out[VarSamplesOutputsDF] = discipline.VarSpec{Type: vartype.Dataframe}
	}

	p.observeImport(e, n)
	return in, out, nil
}

// reshapeSamples keeps samples_df columns aligned with the selected inputs.
// Cells of columns that stay are kept, new columns are filled with Missing.
func (p *driverProxy) reshapeSamples(e *Engine, n *Node) {
	full := namespace.Compose(n.FullName, VarSamplesDF)
	if !e.dm.CheckDataInDM(full) {
		return
	}
	current := e.tableValue(full)
	if current == nil {
		current = vartype.NewTable()
	}
	if equalColumns(current.Columns, p.evalInputs) {
		return
	}
	_, _ = e.dm.SetValue(full, current.Reshape(p.evalInputs, vartype.Missing))
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (p *driverProxy) buildMono(ctx context.Context, e *Engine, n *Node) error {
	if p.built {
		return nil
	}
	subs := n.Builder.SubBuilders()
	father := e.parentPath(n)
	moved := func(value string) string {
		if namespace.IsUnder(value, n.FullName) {
			return value
		}
		return namespace.InsertAfter(value, n.Name, father)
	}
	rebased, err := e.rebaseBuilders(subs, moved, p.subprocessOwner(n))
	if err != nil {
		return fmt.Errorf("driver '%s': %w", n.FullName, err)
	}
	if len(rebased) > 1 && !n.Builder.Flatten() {
		rebased = []*builder.Builder{builder.Coupling(SubprocessName, rebased...).Hide()}
	}
	for _, b := range rebased {
		if _, err := e.instantiate(ctx, n.ID, b); err != nil {
			return err
		}
	}
	p.built = true
	return nil
}

func (p *driverProxy) configureMono(ctx context.Context, e *Engine, n *Node) {
	for _, c := range n.Children {
		if !e.isConfigured(c) {
			p.waiting = "sub-process is not configured yet"
			return
		}
	}

	possibleIn, possibleOut := e.discover(n, n.Children, n.FullName)
	p.possibleIn = make(map[string]bool, len(possibleIn))
	for _, name := range possibleIn {
		p.possibleIn[name] = true
	}

	unknown := e.syncSelection(namespace.Compose(n.FullName, VarEvalInputs), ColSelectedInput, possibleIn, false)
	for _, name := range unknown {
		p.warnOnce(ctx, "in:"+name, "⚠️ Selected input is not a possible input, it will be ignored.",
			"driver", n.FullName, "input", name)
	}
	unknown = e.syncSelection(namespace.Compose(n.FullName, VarEvalOutputs), ColSelectedOutput, possibleOut, true)
	for _, name := range unknown {
		p.warnOnce(ctx, "out:"+name, "⚠️ Selected output is not a possible output, it will be ignored.",
			"driver", n.FullName, "output", name)
	}

	p.applyImport(ctx, e, n, []string{n.FullName})
}

// discover lists the inputs that may be sampled and the outputs that may be
// gathered in the sub-trees of roots, relative to base.
func (e *Engine) discover(driver *Node, roots []NodeID, base string) (inputs, outputs []string) {
	inSet := make(map[string]bool)
	outSet := make(map[string]bool)
	for _, root := range roots {
		e.tree.Walk(root, func(m *Node) bool {
			for _, full := range m.inFull {
				v, ok := e.dm.Get(full)
				if !ok || v.IOType != datamanager.In || v.Numerical || v.Structuring || !v.Editable || !v.Type.Evaluable() {
					continue
				}
				if rel, ok := namespace.Relative(base, full); ok && rel != "" {
					inSet[rel] = true
				}
			}
			for _, full := range m.outFull {
				v, ok := e.dm.Get(full)
				if !ok || v.Numerical {
					continue
				}
				if rel, ok := namespace.Relative(base, full); ok && rel != "" {
					outSet[rel] = true
				}
			}
			return true
		})
	}
	return sortedKeys(inSet), sortedKeys(outSet)
}

// monoExec evaluates the sub-process once per samples_df row.
type monoExec struct {
	name    string
	sub     mda.Executable
	inputs  []string
	outputs []string

	columns    []string
	samples    []map[string]any
	collect    []string
	collectRel []string
	targets    []string
	samplesIn  string
	samplesOut string
	opts       mda.SampleOptions
}

func (p *driverProxy) monoExecutable(e *Engine, n *Node) (mda.Executable, error) {
	sub, err := e.chain(n, n.Children)
	if err != nil {
		return nil, err
	}
	m := &monoExec{
		name:      n.FullName,
		sub:       sub,
		samplesIn: namespace.Compose(n.FullName, VarSamplesInputsDF),
	}

	var columns, fulls []string
	for _, rel := range p.evalInputs {
		if !p.possibleIn[rel] {
			continue
		}
		columns = append(columns, rel)
		fulls = append(fulls, namespace.Compose(n.FullName, rel))
	}
	m.columns = columns

	if len(columns) > 0 {
		table := e.tableValue(namespace.Compose(n.FullName, VarSamplesDF))
		if table == nil {
			table = vartype.NewTable(columns...)
		}
		for r := 0; r < table.Len(); r++ {
			sample := make(map[string]any, len(columns))
			for i, col := range columns {
				raw := table.Value(r, col)
				if vartype.IsMissing(raw) {
					return nil, fmt.Errorf("driver '%s': sample %d has no value for '%s'", n.FullName, r, col)
				}
				v, _ := e.dm.Get(fulls[i])
				coerced, err := vartype.Coerce(v.Type, raw)
				if err != nil {
					return nil, fmt.Errorf("driver '%s': sample %d, '%s': %w", n.FullName, r, col, err)
				}
				sample[fulls[i]] = coerced
			}
			m.samples = append(m.samples, sample)
		}
	}

	for _, o := range p.evalOutputs {
		src := namespace.Compose(n.FullName, o.rel)
		target, ok := n.OutputFullName(gatherName(o))
		if !ok || !e.dm.CheckDataInDM(src) {
			continue
		}
		m.collect = append(m.collect, src)
		m.collectRel = append(m.collectRel, o.rel)
		m.targets = append(m.targets, target)
	}
	if len(m.targets) > 0 {
		m.samplesOut = namespace.Compose(n.FullName, VarSamplesOutputsDF)
	}

	if np, ok := e.dm.Value(namespace.Compose(n.FullName, VarNProcesses)).(int); ok {
		m.opts.Workers = np
	}
	if wait, ok := e.dm.Value(namespace.Compose(n.FullName, VarWaitTime)).(float64); ok && wait > 0 {
		m.opts.Delay = time.Duration(wait * float64(time.Second))
	}

	m.inputs = sub.Inputs()
	m.outputs = append([]string{m.samplesIn}, m.targets...)
	if m.samplesOut != "" {
		m.outputs = append(m.outputs, m.samplesOut)
	}
	return m, nil
}

func (m *monoExec) Name() string      { return m.name }
func (m *monoExec) Inputs() []string  { return m.inputs }
func (m *monoExec) Outputs() []string { return m.outputs }

func (m *monoExec) Run(ctx context.Context, store mda.Store) error {
	results, err := mda.RunSamples(ctx, m.sub, store, m.samples, m.collect, m.opts)
	if err != nil {
		return err
	}

	inTable := vartype.NewTable(m.columns...)
	for _, sample := range m.samples {
		row := make([]any, 0, len(m.columns))
		for _, col := range m.columns {
			row = append(row, sample[namespace.Compose(m.name, col)])
		}
		_ = inTable.AddRow(row...)
	}
	if _, err := store.SetValue(m.samplesIn, inTable); err != nil {
		return err
	}

	if m.samplesOut == "" {
		return nil
	}
	outTable := vartype.NewTable(m.collectRel...)
	for _, r := range results {
		row := make([]any, 0, len(m.collect))
		for _, src := range m.collect {
			row = append(row, r.Outputs[src])
		}
		_ = outTable.AddRow(row...)
	}
	for j, target := range m.targets {
		gathered := make(map[int]any, len(results))
		for _, r := range results {
			gathered[r.Index] = r.Outputs[m.collect[j]]
		}
		if _, err := store.SetValue(target, gathered); err != nil {
			return err
		}
	}
	_, err = store.SetValue(m.samplesOut, outTable)
	return err
}
