package discipline

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Mismatch is one jacobian entry whose analytic and finite-difference values
// disagree.
type Mismatch struct {
	Key      JacobianKey
	Row, Col int
	Analytic float64
	Approx   float64
}

func (m Mismatch) String() string {
	return fmt.Sprintf("d%s/d%s[%d][%d]: analytic %g, finite difference %g",
		m.Key.Output, m.Key.Input, m.Row, m.Col, m.Analytic, m.Approx)
}

// GradientModel is a model that provides analytic jacobians.
type GradientModel interface {
	Model
	Differentiable
}

// CheckGradient compares the analytic jacobians of m at in against forward
// finite differences with the given step. Entries differing by more than
// tol (relative to the magnitude of the analytic value, absolute below one)
// are returned.
func CheckGradient(ctx context.Context, m GradientModel, in Values, step, tol float64) ([]Mismatch, error) {
	analytic, err := m.ComputeGradient(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("analytic gradient: %w", err)
	}
	base, err := m.Compute(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("base point: %w", err)
	}

	keys := make([]JacobianKey, 0, len(analytic))
	for k := range analytic {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Output != keys[j].Output {
			return keys[i].Output < keys[j].Output
		}
		return keys[i].Input < keys[j].Input
	})

	var mismatches []Mismatch
	for _, key := range keys {
		x, ok := flatten(in[key.Input])
		if !ok {
			return nil, fmt.Errorf("input '%s' is not numeric", key.Input)
		}
		y0, ok := flatten(base[key.Output])
		if !ok {
			return nil, fmt.Errorf("output '%s' is not numeric", key.Output)
		}
		jac := analytic[key]
		if len(jac) != len(y0) {
			return nil, fmt.Errorf("d%s/d%s has %d rows, output has %d elements", key.Output, key.Input, len(jac), len(y0))
		}

		for col := range x {
			shifted := in.Clone()
			xp := append([]float64(nil), x...)
			xp[col] += step
			shifted[key.Input] = unflatten(in[key.Input], xp)

			out, err := m.Compute(ctx, shifted)
			if err != nil {
				return nil, fmt.Errorf("perturbed point %s[%d]: %w", key.Input, col, err)
			}
			y1, _ := flatten(out[key.Output])
			for row := range y0 {
				if len(jac[row]) != len(x) {
					return nil, fmt.Errorf("d%s/d%s row %d has %d columns, input has %d elements", key.Output, key.Input, row, len(jac[row]), len(x))
				}
				approx := (y1[row] - y0[row]) / step
				scale := math.Max(1, math.Abs(jac[row][col]))
				if math.Abs(approx-jac[row][col]) > tol*scale {
					mismatches = append(mismatches, Mismatch{Key: key, Row: row, Col: col, Analytic: jac[row][col], Approx: approx})
				}
			}
		}
	}
	return mismatches, nil
}

func flatten(v any) ([]float64, bool) {
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

func unflatten(like any, xs []float64) any {
	switch like.(type) {
	case float64, int:
		return xs[0]
	}
	return xs
}
