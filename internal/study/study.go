// Package study reads HCL study files into a Definition and loads that
// definition into an engine.
package study

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/specialistvlad/studygrid/internal/builder"
	"github.com/specialistvlad/studygrid/internal/ctxlog"
	"github.com/specialistvlad/studygrid/internal/engine"
	"github.com/specialistvlad/studygrid/internal/namespace"
	"github.com/specialistvlad/studygrid/internal/registry"
)

// Process kinds as written in study files.
const (
	KindDiscipline = "discipline"
	KindCoupling   = "coupling"
	KindDriver     = "driver"
)

// Namespace is a shared namespace declared by a study.
type Namespace struct {
	Name    string
	Value   string
	Display string
}

// Process is one discipline, coupling or driver block.
type Process struct {
	Kind       string
	Name       string
	Module     string
	Namespaces []string
	Flatten    bool
	Children   []*Process
}

// Import is a use case file loaded into the usecase_data of Target.
type Import struct {
	Target string
	File   string
	Data   map[string]any
}

// Definition is everything the study files declare.
type Definition struct {
	Name       string
	MaxPasses  int
	Namespaces []Namespace
	Process    []*Process
	// Values are keyed relative to the study root.
	Values  map[string]any
	Imports []Import
	Files   []string
}

// Engine creates an engine for the study backed by reg.
func (d *Definition) Engine(reg *registry.Registry) *engine.Engine {
	var opts []engine.Option
	if d.MaxPasses > 0 {
		opts = append(opts, engine.WithMaxPasses(d.MaxPasses))
	}
	return engine.New(d.Name, reg, opts...)
}

// Load registers the namespaces of the study on e and instantiates its
// process. Values are not applied, see Values.
func (d *Definition) Load(ctx context.Context, e *engine.Engine) error {
	logger := ctxlog.FromContext(ctx)

	ids := make(map[string]string, len(d.Namespaces))
	for _, ns := range d.Namespaces {
		var opts []namespace.Option
		if ns.Display != "" {
			opts = append(opts, namespace.WithDisplay(ns.Display))
		}
		id, err := e.AddNamespace(ns.Name, ns.Value, opts...)
		if err != nil {
			return fmt.Errorf("namespace '%s': %w", ns.Name, err)
		}
		ids[ns.Name] = id
	}

	builders := make([]*builder.Builder, 0, len(d.Process))
	for _, p := range d.Process {
		b, err := p.builder(ids)
		if err != nil {
			return err
		}
		builders = append(builders, b)
	}
	logger.Debug("Loading study process.", "study", d.Name, "namespaces", len(ids), "top_level", len(builders))
	return e.Load(ctx, builders...)
}

func (p *Process) builder(ids map[string]string) (*builder.Builder, error) {
	switch p.Kind {
	case KindDiscipline:
		var nsIDs []string
		for _, name := range p.Namespaces {
			id, ok := ids[name]
			if !ok {
				return nil, fmt.Errorf("discipline '%s' references undeclared namespace '%s'", p.Name, name)
			}
			nsIDs = append(nsIDs, id)
		}
		return builder.Discipline(p.Name, p.Module, nsIDs...), nil
	}

	subs := make([]*builder.Builder, 0, len(p.Children))
	for _, c := range p.Children {
		b, err := c.builder(ids)
		if err != nil {
			return nil, err
		}
		subs = append(subs, b)
	}
	if p.Kind == KindCoupling {
		return builder.Coupling(p.Name, subs...), nil
	}
	var opts []builder.DriverOption
	if p.Flatten {
		opts = append(opts, builder.FlattenSubprocess())
	}
	return builder.Driver(p.Name, subs, opts...), nil
}

// FullValues returns the study values keyed by full name, with every import
// placed under <target>.usecase_data.
func (d *Definition) FullValues() map[string]any {
	out := make(map[string]any, len(d.Values)+len(d.Imports))
	for k, v := range d.Values {
		out[namespace.Compose(d.Name, k)] = v
	}
	for _, imp := range d.Imports {
		out[namespace.Compose(d.Name, imp.Target, "usecase_data")] = imp.Data
	}
	return out
}

// Describe lists the process tree, one indented line per block.
func (d *Definition) Describe() []string {
	var lines []string
	var walk func(ps []*Process, depth int)
	walk = func(ps []*Process, depth int) {
		for _, p := range ps {
			line := strings.Repeat("  ", depth) + p.Kind + " " + p.Name
			if p.Module != "" {
				line += " (" + p.Module + ")"
			}
			lines = append(lines, line)
			walk(p.Children, depth+1)
		}
	}
	walk(d.Process, 0)
	return lines
}

// Modules returns the sorted distinct module names the study uses.
func (d *Definition) Modules() []string {
	seen := make(map[string]bool)
	var walk func(ps []*Process)
	walk = func(ps []*Process) {
		for _, p := range ps {
			if p.Module != "" {
				seen[p.Module] = true
			}
			walk(p.Children)
		}
	}
	walk(d.Process)
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
