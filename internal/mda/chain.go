package mda

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/specialistvlad/studygrid/internal/ctxlog"
	"github.com/specialistvlad/studygrid/internal/dag"
	"github.com/specialistvlad/studygrid/internal/datamanager"
)

const (
	DefaultMaxIter   = 200
	DefaultTolerance = 1e-6
)

// ErrNotConverged is wrapped when a coupled group hits the iteration ceiling.
var ErrNotConverged = errors.New("mda did not converge")

// Store is what executables read and write during a run.
type Store interface {
	Value(fullName string) any
	SetValue(fullName string, v any) (bool, error)
}

// Executable is one runnable node of a chain.
type Executable interface {
	Name() string
	Inputs() []string
	Outputs() []string
	Run(ctx context.Context, store Store) error
}

// Options bound the fixed-point iterations.
type Options struct {
	MaxIter   int
	Tolerance float64
}

func (o Options) withDefaults() Options {
	if o.MaxIter <= 0 {
		o.MaxIter = DefaultMaxIter
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	return o
}

type step struct {
	members  []Executable
	coupled  bool
	couplers []string
}

// Report describes the last run of a chain.
type Report struct {
	Iterations int
	Residual   float64
}

// Chain runs executables in dependency order.
type Chain struct {
	name    string
	steps   []step
	inputs  []string
	outputs []string
	opts    Options

	mu   sync.Mutex
	last Report
}

// NewChain orders execs by their data dependencies.
func NewChain(name string, execs []Executable, opts Options) (*Chain, error) {
	g := dag.New()
	byName := make(map[string]Executable, len(execs))
	producers := make(map[string][]string)
	for _, e := range execs {
		if _, dup := byName[e.Name()]; dup {
			return nil, fmt.Errorf("chain '%s': duplicate executable '%s'", name, e.Name())
		}
		byName[e.Name()] = e
		g.AddNode(e.Name())
		for _, out := range e.Outputs() {
			producers[out] = append(producers[out], e.Name())
		}
	}

	selfCoupled := make(map[string]bool)
	for _, e := range execs {
		for _, in := range e.Inputs() {
			for _, p := range producers[in] {
				if p == e.Name() {
					selfCoupled[p] = true
					continue
				}
				if err := g.AddEdge(p, e.Name()); err != nil {
					return nil, fmt.Errorf("chain '%s': %w", name, err)
				}
			}
		}
	}

	c := &Chain{name: name, opts: opts.withDefaults()}
	for _, comp := range g.Components() {
		s := step{coupled: len(comp) > 1 || selfCoupled[comp[0]]}
		for _, id := range comp {
			s.members = append(s.members, byName[id])
		}
		if s.coupled {
			s.couplers = couplingVariables(s.members)
		}
		c.steps = append(c.steps, s)
	}

	produced := make(map[string]bool)
	inputs := make(map[string]bool)
	for _, e := range execs {
		for _, out := range e.Outputs() {
			produced[out] = true
		}
	}
	for _, e := range execs {
		for _, in := range e.Inputs() {
			if !produced[in] {
				inputs[in] = true
			}
		}
	}
	c.inputs = sortedSet(inputs)
	c.outputs = sortedSet(produced)
	return c, nil
}

// couplingVariables are outputs of a group that the group itself reads.
func couplingVariables(members []Executable) []string {
	outs := make(map[string]bool)
	for _, m := range members {
		for _, o := range m.Outputs() {
			outs[o] = true
		}
	}
	coupled := make(map[string]bool)
	for _, m := range members {
		for _, in := range m.Inputs() {
			if outs[in] {
				coupled[in] = true
			}
		}
	}
	return sortedSet(coupled)
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *Chain) Name() string      { return c.name }
func (c *Chain) Inputs() []string  { return c.inputs }
func (c *Chain) Outputs() []string { return c.outputs }

// Groups returns the member names of each step, coupled groups included.
func (c *Chain) Groups() [][]string {
	out := make([][]string, len(c.steps))
	for i, s := range c.steps {
		for _, m := range s.members {
			out[i] = append(out[i], m.Name())
		}
	}
	return out
}

// LastReport describes the most recent Run.
func (c *Chain) LastReport() Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Run executes every step in order.
func (c *Chain) Run(ctx context.Context, store Store) error {
	logger := ctxlog.FromContext(ctx).With("chain", c.name)
	var total Report
	defer func() {
		c.mu.Lock()
		c.last = total
		c.mu.Unlock()
	}()
	for _, s := range c.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.coupled {
			if err := s.members[0].Run(ctx, store); err != nil {
				return fmt.Errorf("%s: %w", s.members[0].Name(), err)
			}
			continue
		}
		report, err := c.solve(ctx, s, store)
		total.Iterations = max(total.Iterations, report.Iterations)
		total.Residual = math.Max(total.Residual, report.Residual)
		if err != nil {
			return err
		}
		logger.Debug("Coupled group converged.", "iterations", report.Iterations, "residual", report.Residual)
	}
	return nil
}

func (c *Chain) solve(ctx context.Context, s step, store Store) (Report, error) {
	var report Report
	for iter := 1; iter <= c.opts.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		previous := make(map[string]any, len(s.couplers))
		for _, name := range s.couplers {
			previous[name] = store.Value(name)
		}
		for _, m := range s.members {
			if err := m.Run(ctx, store); err != nil {
				return report, fmt.Errorf("%s (iteration %d): %w", m.Name(), iter, err)
			}
		}
		residual := 0.0
		for _, name := range s.couplers {
			residual = math.Max(residual, Residual(previous[name], store.Value(name)))
		}
		report = Report{Iterations: iter, Residual: residual}
		if residual < c.opts.Tolerance {
			return report, nil
		}
	}
	return report, fmt.Errorf("%w: chain '%s' residual %g after %d iterations", ErrNotConverged, c.name, report.Residual, report.Iterations)
}

// Residual is the normalized change between two values of a variable.
func Residual(previous, current any) float64 {
	a, okA := numeric(previous)
	b, okB := numeric(current)
	if okA && okB && len(a) == len(b) {
		r := 0.0
		for i := range a {
			r = math.Max(r, math.Abs(b[i]-a[i])/math.Max(1, math.Abs(b[i])))
		}
		return r
	}
	if previous == nil && current != nil {
		return math.Inf(1)
	}
	if datamanager.Equal(previous, current) {
		return 0
	}
	return math.Inf(1)
}

func numeric(v any) ([]float64, bool) {
	switch tv := v.(type) {
	case float64:
		return []float64{tv}, true
	case int:
		return []float64{float64(tv)}, true
	case []float64:
		return tv, true
	}
	return nil, false
}
