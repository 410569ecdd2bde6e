package mda

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mapStore struct {
	mu sync.RWMutex
	m  map[string]any
}

func newMapStore(values map[string]any) *mapStore {
	return &mapStore{m: values}
}

func (s *mapStore) Value(name string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[name]
}

func (s *mapStore) SetValue(name string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[name] = v
	return true, nil
}

type funcExec struct {
	name    string
	inputs  []string
	outputs []string
	fn      func(in []float64) []float64
}

func (f funcExec) Name() string      { return f.name }
func (f funcExec) Inputs() []string  { return f.inputs }
func (f funcExec) Outputs() []string { return f.outputs }

func (f funcExec) Run(_ context.Context, store Store) error {
	in := make([]float64, len(f.inputs))
	for i, name := range f.inputs {
		v, ok := store.Value(name).(float64)
		if !ok {
			return errors.New("missing input " + name)
		}
		in[i] = v
	}
	out := f.fn(in)
	for i, name := range f.outputs {
		if _, err := store.SetValue(name, out[i]); err != nil {
			return err
		}
	}
	return nil
}

func linear(name, in, out string, a, b float64) funcExec {
	return funcExec{name: name, inputs: []string{in}, outputs: []string{out}, fn: func(x []float64) []float64 {
		return []float64{a*x[0] + b}
	}}
}

func TestChainOrdersByDependency(t *testing.T) {
	ctx := context.Background()
	// --- Arrange ---
	second := linear("second", "y", "z", 1, 1)
	first := linear("first", "x", "y", 2, 0)
	chain, err := NewChain("root", []Executable{second, first}, Options{})
	require.NoError(t, err)

	// --- Act ---
	store := newMapStore(map[string]any{"x": 3.0})
	require.NoError(t, chain.Run(ctx, store))

	// --- Assert ---
	assert.Equal(t, [][]string{{"first"}, {"second"}}, chain.Groups())
	assert.Equal(t, []string{"x"}, chain.Inputs())
	assert.Equal(t, []string{"y", "z"}, chain.Outputs())
	assert.Equal(t, 7.0, store.Value("z"))
	assert.Equal(t, 0, chain.LastReport().Iterations)
}

func TestChainSolvesCoupling(t *testing.T) {
	ctx := context.Background()
	d1 := linear("d1", "y2", "y1", 0.5, 1)
	d2 := linear("d2", "y1", "y2", 0.5, 1)
	chain, err := NewChain("coupled", []Executable{d1, d2}, Options{Tolerance: 1e-10})
	require.NoError(t, err)

	store := newMapStore(map[string]any{"y1": 0.0, "y2": 0.0})
	require.NoError(t, chain.Run(ctx, store))

	assert.Equal(t, [][]string{{"d1", "d2"}}, chain.Groups())
	assert.InDelta(t, 2.0, store.Value("y1"), 1e-8)
	assert.InDelta(t, 2.0, store.Value("y2"), 1e-8)
	assert.Greater(t, chain.LastReport().Iterations, 1)
}

func TestChainReportsNonConvergence(t *testing.T) {
	d1 := linear("d1", "y2", "y1", 2, 1)
	d2 := linear("d2", "y1", "y2", 2, 1)
	chain, err := NewChain("divergent", []Executable{d1, d2}, Options{MaxIter: 5})
	require.NoError(t, err)

	err = chain.Run(context.Background(), newMapStore(map[string]any{"y1": 0.0, "y2": 0.0}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConverged))
	assert.Equal(t, 5, chain.LastReport().Iterations)
}

func TestChainRejectsDuplicates(t *testing.T) {
	_, err := NewChain("dup", []Executable{linear("a", "x", "y", 1, 0), linear("a", "x", "z", 1, 0)}, Options{})
	assert.ErrorContains(t, err, "duplicate executable 'a'")
}

func TestChainsNest(t *testing.T) {
	inner, err := NewChain("inner", []Executable{linear("d", "x", "y", 3, 4)}, Options{})
	require.NoError(t, err)
	outer, err := NewChain("outer", []Executable{inner, linear("post", "y", "z", 1, -1)}, Options{})
	require.NoError(t, err)

	store := newMapStore(map[string]any{"x": 2.0})
	require.NoError(t, outer.Run(context.Background(), store))
	assert.Equal(t, 9.0, store.Value("z"))
}

func TestResidual(t *testing.T) {
	assert.Equal(t, 0.0, Residual(2.0, 2.0))
	assert.InDelta(t, 0.5, Residual(1.0, 2.0), 1e-12)
	assert.InDelta(t, 0.1, Residual([]float64{0, 10}, []float64{0.1, 10}), 1e-12)
	assert.True(t, math.IsInf(Residual(nil, 1.0), 1))
	assert.Equal(t, 0.0, Residual("a", "a"))
	assert.True(t, math.IsInf(Residual("a", "b"), 1))
}

func TestOverlay(t *testing.T) {
	base := newMapStore(map[string]any{"a": 1.0, "b": 2.0})
	o := NewOverlay(base, map[string]any{"a": 10.0})

	assert.Equal(t, 10.0, o.Value("a"))
	assert.Equal(t, 2.0, o.Value("b"))

	changed, err := o.SetValue("b", 3.0)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, _ = o.SetValue("b", 3.0)
	assert.False(t, changed)

	assert.Equal(t, 2.0, base.Value("b"), "base is never written")
	assert.Equal(t, map[string]any{"a": 10.0, "b": 3.0}, o.Local())
}

func TestRunSamples(t *testing.T) {
	double := linear("double", "x", "y", 2, 0)
	base := newMapStore(map[string]any{})
	samples := []map[string]any{{"x": 1.0}, {"x": 2.0}, {"x": 3.0}}

	for _, workers := range []int{1, 3} {
		results, err := RunSamples(context.Background(), double, base, samples, []string{"y"}, SampleOptions{Workers: workers})
		require.NoError(t, err)
		require.Len(t, results, 3)
		for i, r := range results {
			assert.Equal(t, i, r.Index)
			assert.Equal(t, 2*float64(i+1), r.Outputs["y"])
		}
		assert.Nil(t, base.Value("y"))
	}
}

func TestRunSamplesPropagatesErrors(t *testing.T) {
	double := linear("double", "x", "y", 2, 0)
	samples := []map[string]any{{"x": 1.0}, {"nope": 2.0}}

	_, err := RunSamples(context.Background(), double, newMapStore(map[string]any{}), samples, []string{"y"}, SampleOptions{Workers: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample 1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = RunSamples(ctx, double, newMapStore(map[string]any{}), []map[string]any{{"x": 1.0}, {"x": 2.0}}, nil, SampleOptions{Delay: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
