package discipline

import (
	"context"
	"testing"

	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/vartype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// square computes y = x^2 elementwise and s = sum(x); broken flips the sign
// of the analytic derivative of s.
type square struct{ broken bool }

func (square) InputGrammar() Grammar {
	return Grammar{"x": {Type: vartype.Array}}
}

func (square) OutputGrammar() Grammar {
	return Grammar{"y": {Type: vartype.Array}, "s": {Type: vartype.Float}}
}

func (square) Compute(_ context.Context, in Values) (Values, error) {
	x, err := in.Array("x")
	if err != nil {
		return nil, err
	}
	y := make([]float64, len(x))
	s := 0.0
	for i, v := range x {
		y[i] = v * v
		s += v
	}
	return Values{"y": y, "s": s}, nil
}

func (m square) ComputeGradient(_ context.Context, in Values) (map[JacobianKey]Jacobian, error) {
	x, err := in.Array("x")
	if err != nil {
		return nil, err
	}
	dy := make(Jacobian, len(x))
	ds := Jacobian{make([]float64, len(x))}
	for i, v := range x {
		dy[i] = make([]float64, len(x))
		dy[i][i] = 2 * v
		ds[0][i] = 1
		if m.broken {
			ds[0][i] = -1
		}
	}
	return map[JacobianKey]Jacobian{{"y", "x"}: dy, {"s", "x"}: ds}, nil
}

func TestCheckGradient(t *testing.T) {
	ctx := context.Background()
	in := Values{"x": []float64{1, 2, 3}}

	t.Run("correct jacobians pass", func(t *testing.T) {
		mismatches, err := CheckGradient(ctx, square{}, in, 1e-6, 1e-4)
		require.NoError(t, err)
		assert.Empty(t, mismatches)
	})

	t.Run("wrong jacobians are reported", func(t *testing.T) {
		mismatches, err := CheckGradient(ctx, square{broken: true}, in, 1e-6, 1e-4)
		require.NoError(t, err)
		require.Len(t, mismatches, 3)
		assert.Equal(t, JacobianKey{"s", "x"}, mismatches[0].Key)
		assert.Contains(t, mismatches[0].String(), "analytic -1")
	})
}

func TestGrammarValidate(t *testing.T) {
	good := Grammar{
		"x": {Type: vartype.Float, Default: 1.0},
		"y": {Type: vartype.Array, Visibility: datamanager.Shared, Namespace: "ns_ac"},
	}
	assert.NoError(t, good.Validate())

	bad := Grammar{
		"a": {Type: "matrix"},
		"b": {Type: vartype.Float, Default: "one"},
		"c": {Type: vartype.Float, Visibility: datamanager.Shared},
	}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'a': unknown type")
	assert.Contains(t, err.Error(), "'b': default does not match type")
	assert.Contains(t, err.Error(), "'c': shared variables need a namespace")
}

func TestValuesAccessors(t *testing.T) {
	v := Values{"f": 2, "n": 3.0, "s": "lin", "a": []any{1.0, 2.0}, "b": true}

	f, err := v.Float("f")
	require.NoError(t, err)
	assert.Equal(t, 2.0, f)

	n, err := v.Int("n")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	a, err := v.Array("a")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, a)

	assert.Equal(t, "lin", v.String("s"))
	assert.True(t, v.Bool("b"))

	_, err = v.Float("missing")
	assert.Error(t, err)
	_, err = v.Table("missing")
	assert.Error(t, err)

	merged := Grammar{"x": {Type: vartype.Float}}.Merge(Grammar{"x": {Type: vartype.Int}, "y": {Type: vartype.Bool}})
	assert.Equal(t, vartype.Int, merged["x"].Type)
	assert.Len(t, merged, 2)
}
