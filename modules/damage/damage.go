// Package damage provides the climate damage discipline: the share of gross
// output lost to atmospheric warming, with or without a tipping point.
package damage

import (
	"context"
	"fmt"
	"math"

	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/discipline"
	"github.com/specialistvlad/studygrid/internal/registry"
	"github.com/specialistvlad/studygrid/internal/vartype"
)

// Namespace is the shared namespace of the climate-economy variables.
const Namespace = "ns_witness"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the damage discipline.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterDiscipline("damage.model", &registry.RegisteredDiscipline{
		New:         func() discipline.Model { return &Model{} },
		Description: "fraction of gross output lost to warming, quadratic or with a tipping point",
	})
}

func shared(t vartype.Type, def any) discipline.VarSpec {
	return discipline.VarSpec{Type: t, Default: def, Visibility: datamanager.Shared, Namespace: Namespace}
}

func local(def float64) discipline.VarSpec {
	return discipline.VarSpec{Type: vartype.Float, Default: def}
}

func internal(def float64) discipline.VarSpec {
	return discipline.VarSpec{Type: vartype.Float, Default: def, Visibility: datamanager.Internal}
}

// Model computes damage_frac_output and damages per year from temp_atmo and
// gross_output.
type Model struct{}

func (*Model) InputGrammar() discipline.Grammar {
	return discipline.Grammar{
		"year_start":       shared(vartype.Int, 2020),
		"year_end":         shared(vartype.Int, 2100),
		"time_step":        shared(vartype.Int, 1),
		"damag_int":        local(0.0),
		"damag_quad":       local(0.0022),
		"damag_expo":       local(2.0),
		"tipping_point":    {Type: vartype.Bool, Default: true},
		"tp_a1":            internal(20.46),
		"tp_a2":            internal(2.0),
		"tp_a3":            internal(6.081),
		"tp_a4":            internal(6.754),
		"frac_damage_prod": shared(vartype.Float, 0.30),
		"temp_atmo":        shared(vartype.Array, nil),
		"gross_output":     shared(vartype.Array, nil),
	}
}

func (*Model) OutputGrammar() discipline.Grammar {
	return discipline.Grammar{
		"damage_frac_output": shared(vartype.Array, nil),
		"damages":            shared(vartype.Array, nil),
		"damages_on_production": {
			Type: vartype.Array, Visibility: datamanager.Shared, Namespace: Namespace, Unit: "T$",
		},
	}
}

type params struct {
	temp, gross          []float64
	damagInt, quad, expo float64
	tipping              bool
	a1, a2, a3, a4       float64
	fracProd             float64
}

func read(in discipline.Values) (*params, error) {
	p := &params{tipping: in.Bool("tipping_point")}
	var err error
	if p.temp, err = in.Array("temp_atmo"); err != nil {
		return nil, err
	}
	if p.gross, err = in.Array("gross_output"); err != nil {
		return nil, err
	}
	n, err := Years(in)
	if err != nil {
		return nil, err
	}
	if len(p.temp) != n || len(p.gross) != n {
		return nil, fmt.Errorf("temp_atmo and gross_output need %d yearly values, got %d and %d", n, len(p.temp), len(p.gross))
	}
	for name, dst := range map[string]*float64{
		"damag_int": &p.damagInt, "damag_quad": &p.quad, "damag_expo": &p.expo,
		"tp_a1": &p.a1, "tp_a2": &p.a2, "tp_a3": &p.a3, "tp_a4": &p.a4,
		"frac_damage_prod": &p.fracProd,
	} {
		if *dst, err = in.Float(name); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Years is the number of yearly values between year_start and year_end.
func Years(in discipline.Values) (int, error) {
	start, err := in.Int("year_start")
	if err != nil {
		return 0, err
	}
	end, err := in.Int("year_end")
	if err != nil {
		return 0, err
	}
	step, err := in.Int("time_step")
	if err != nil {
		return 0, err
	}
	if step <= 0 || end < start {
		return 0, fmt.Errorf("invalid year range %d..%d step %d", start, end, step)
	}
	return (end-start)/step + 1, nil
}

// frac returns the damage fraction at temperature t and its derivative.
func (p *params) frac(t float64) (float64, float64) {
	if !p.tipping {
		return p.damagInt*t + p.quad*math.Pow(t, p.expo),
			p.damagInt + p.quad*p.expo*math.Pow(t, p.expo-1)
	}
	d := math.Pow(t/p.a1, p.a2) + math.Pow(t/p.a3, p.a4)
	dd := p.a2/p.a1*math.Pow(t/p.a1, p.a2-1) + p.a4/p.a3*math.Pow(t/p.a3, p.a4-1)
	return d / (1 + d), dd / ((1 + d) * (1 + d))
}

func (*Model) Compute(_ context.Context, in discipline.Values) (discipline.Values, error) {
	p, err := read(in)
	if err != nil {
		return nil, err
	}
	n := len(p.temp)
	frac := make([]float64, n)
	damages := make([]float64, n)
	onProd := make([]float64, n)
	for i := range p.temp {
		frac[i], _ = p.frac(p.temp[i])
		damages[i] = frac[i] * p.gross[i]
		onProd[i] = damages[i] * p.fracProd
	}
	return discipline.Values{
		"damage_frac_output":    frac,
		"damages":               damages,
		"damages_on_production": onProd,
	}, nil
}

func diag(n int, f func(i int) float64) discipline.Jacobian {
	j := make(discipline.Jacobian, n)
	for i := range j {
		j[i] = make([]float64, n)
		j[i][i] = f(i)
	}
	return j
}

func (*Model) ComputeGradient(_ context.Context, in discipline.Values) (map[discipline.JacobianKey]discipline.Jacobian, error) {
	p, err := read(in)
	if err != nil {
		return nil, err
	}
	n := len(p.temp)
	frac := make([]float64, n)
	dfrac := make([]float64, n)
	for i, t := range p.temp {
		frac[i], dfrac[i] = p.frac(t)
	}
	jac := make(map[discipline.JacobianKey]discipline.Jacobian)
	jac[discipline.JacobianKey{Output: "damage_frac_output", Input: "temp_atmo"}] = diag(n, func(i int) float64 { return dfrac[i] })
	jac[discipline.JacobianKey{Output: "damages", Input: "temp_atmo"}] = diag(n, func(i int) float64 { return dfrac[i] * p.gross[i] })
	jac[discipline.JacobianKey{Output: "damages", Input: "gross_output"}] = diag(n, func(i int) float64 { return frac[i] })
	jac[discipline.JacobianKey{Output: "damages_on_production", Input: "temp_atmo"}] = diag(n, func(i int) float64 { return dfrac[i] * p.gross[i] * p.fracProd })
	jac[discipline.JacobianKey{Output: "damages_on_production", Input: "gross_output"}] = diag(n, func(i int) float64 { return frac[i] * p.fracProd })
	return jac, nil
}
