// Package carbonemissions provides the industrial carbon emissions
// discipline: emissions driven by gross output through a decarbonizing
// carbon intensity, plus energy and land emissions.
package carbonemissions

import (
	"context"
	"fmt"
	"math"

	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/discipline"
	"github.com/specialistvlad/studygrid/internal/registry"
	"github.com/specialistvlad/studygrid/internal/vartype"
	"github.com/specialistvlad/studygrid/modules/damage"
)

// carbonToCO2 converts GtC to GtCO2.
const carbonToCO2 = 3.666

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the carbon emissions discipline.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterDiscipline("carbonemissions.model", &registry.RegisteredDiscipline{
		New:         func() discipline.Model { return &Model{} },
		Description: "industrial, land and total CO2 emissions from gross output",
	})
}

func shared(t vartype.Type, def any, unit string) discipline.VarSpec {
	return discipline.VarSpec{Type: t, Default: def, Visibility: datamanager.Shared, Namespace: damage.Namespace, Unit: unit}
}

// Model computes yearly emissions.
type Model struct{}

func (*Model) InputGrammar() discipline.Grammar {
	return discipline.Grammar{
		"year_start":               shared(vartype.Int, 2020, "year"),
		"year_end":                 shared(vartype.Int, 2100, "year"),
		"time_step":                shared(vartype.Int, 1, "year"),
		"init_gr_sigma":            {Type: vartype.Float, Default: -0.0152},
		"decline_rate_decarbo":     {Type: vartype.Float, Default: -0.001},
		"init_indus_emissions":     {Type: vartype.Float, Default: 34.0, Unit: "GtCO2"},
		"init_gross_output":        {Type: vartype.Float, Default: 130.187, Unit: "T$"},
		"init_cum_indus_emissions": {Type: vartype.Float, Default: 577.31, Unit: "GtC"},
		"energy_emis_share":        {Type: vartype.Float, Default: 0.9},
		"land_emis_share":          {Type: vartype.Float, Default: 0.0636},
		"gross_output":             shared(vartype.Array, nil, "T$"),
		"energy_emissions":         shared(vartype.Array, nil, "GtCO2"),
		"land_emissions": {
			Type: vartype.Array, Visibility: datamanager.Shared, Namespace: damage.Namespace, Optional: true, Unit: "GtCO2",
		},
	}
}

func (*Model) OutputGrammar() discipline.Grammar {
	return discipline.Grammar{
		"sigma":               shared(vartype.Array, nil, "GtCO2/T$"),
		"indus_emissions":     shared(vartype.Array, nil, "GtCO2"),
		"cum_indus_emissions": shared(vartype.Array, nil, "GtC"),
		"total_emissions":     shared(vartype.Array, nil, "GtCO2"),
		"cum_total_emissions": shared(vartype.Array, nil, "GtC"),
	}
}

type state struct {
	n       int
	dt      float64
	share   float64
	initCum float64
	sigma   []float64
	gross   []float64
	energy  []float64
	land    []float64
	hasLand bool
}

func read(in discipline.Values) (*state, error) {
	n, err := damage.Years(in)
	if err != nil {
		return nil, err
	}
	step, _ := in.Int("time_step")
	s := &state{n: n, dt: float64(step)}

	if s.gross, err = arrayOfLen(in, "gross_output", n); err != nil {
		return nil, err
	}
	if s.energy, err = arrayOfLen(in, "energy_emissions", n); err != nil {
		return nil, err
	}
	s.land = make([]float64, n)
	if in["land_emissions"] != nil {
		if s.land, err = arrayOfLen(in, "land_emissions", n); err != nil {
			return nil, err
		}
		s.hasLand = true
	}

	f := make(map[string]float64)
	for _, name := range []string{
		"init_gr_sigma", "decline_rate_decarbo", "init_indus_emissions", "init_gross_output",
		"init_cum_indus_emissions", "energy_emis_share", "land_emis_share",
	} {
		if f[name], err = in.Float(name); err != nil {
			return nil, err
		}
	}
	s.share = 1 - f["energy_emis_share"] - f["land_emis_share"]
	s.initCum = f["init_cum_indus_emissions"]

	// sigma follows a growth rate that itself declines every step.
	s.sigma = make([]float64, n)
	s.sigma[0] = f["init_indus_emissions"] / f["init_gross_output"]
	gr := f["init_gr_sigma"]
	for i := 1; i < n; i++ {
		s.sigma[i] = s.sigma[i-1] * math.Exp(gr*s.dt)
		gr *= math.Pow(1+f["decline_rate_decarbo"], s.dt)
	}
	return s, nil
}

func arrayOfLen(in discipline.Values, name string, n int) ([]float64, error) {
	a, err := in.Array(name)
	if err != nil {
		return nil, err
	}
	if len(a) != n {
		return nil, fmt.Errorf("input '%s' needs %d yearly values, got %d", name, n, len(a))
	}
	return a, nil
}

func (*Model) Compute(_ context.Context, in discipline.Values) (discipline.Values, error) {
	s, err := read(in)
	if err != nil {
		return nil, err
	}
	indus := make([]float64, s.n)
	cumIndus := make([]float64, s.n)
	total := make([]float64, s.n)
	cumTotal := make([]float64, s.n)
	cumLand := 0.0
	for i := 0; i < s.n; i++ {
		indus[i] = s.sigma[i]*s.gross[i]*s.share + s.energy[i]
		if i == 0 {
			cumIndus[i] = s.initCum
		} else {
			cumIndus[i] = cumIndus[i-1] + indus[i]*s.dt/carbonToCO2
			cumLand += s.land[i] * s.dt / carbonToCO2
		}
		total[i] = indus[i] + s.land[i]
		cumTotal[i] = cumIndus[i] + cumLand
	}
	return discipline.Values{
		"sigma":               s.sigma,
		"indus_emissions":     indus,
		"cum_indus_emissions": cumIndus,
		"total_emissions":     total,
		"cum_total_emissions": cumTotal,
	}, nil
}

func square(n int) discipline.Jacobian {
	j := make(discipline.Jacobian, n)
	for i := range j {
		j[i] = make([]float64, n)
	}
	return j
}

// cumulative fills the lower triangle, past the first year, with the
// per-year contribution of column i.
func cumulative(n int, f func(i int) float64) discipline.Jacobian {
	j := square(n)
	for row := 1; row < n; row++ {
		for i := 1; i <= row; i++ {
			j[row][i] = f(i)
		}
	}
	return j
}

func diag(n int, f func(i int) float64) discipline.Jacobian {
	j := square(n)
	for i := range j {
		j[i][i] = f(i)
	}
	return j
}

func (*Model) ComputeGradient(_ context.Context, in discipline.Values) (map[discipline.JacobianKey]discipline.Jacobian, error) {
	s, err := read(in)
	if err != nil {
		return nil, err
	}
	one := func(int) float64 { return 1 }
	perGross := func(i int) float64 { return s.sigma[i] * s.share }
	cumPerGross := func(i int) float64 { return s.dt / carbonToCO2 * s.sigma[i] * s.share }
	cumPerEmission := func(int) float64 { return s.dt / carbonToCO2 }

	jac := make(map[discipline.JacobianKey]discipline.Jacobian)
	for _, out := range []string{"indus_emissions", "total_emissions"} {
		jac[discipline.JacobianKey{Output: out, Input: "gross_output"}] = diag(s.n, perGross)
		jac[discipline.JacobianKey{Output: out, Input: "energy_emissions"}] = diag(s.n, one)
	}
	for _, out := range []string{"cum_indus_emissions", "cum_total_emissions"} {
		jac[discipline.JacobianKey{Output: out, Input: "gross_output"}] = cumulative(s.n, cumPerGross)
		jac[discipline.JacobianKey{Output: out, Input: "energy_emissions"}] = cumulative(s.n, cumPerEmission)
	}
	if s.hasLand {
		jac[discipline.JacobianKey{Output: "total_emissions", Input: "land_emissions"}] = diag(s.n, one)
		jac[discipline.JacobianKey{Output: "cum_total_emissions", Input: "land_emissions"}] = cumulative(s.n, cumPerEmission)
	}
	return jac, nil
}
