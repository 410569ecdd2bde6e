package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/studygrid/internal/builder"
	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/vartype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadMultiScenario loads a driver "ms" around Disc1 with ns_ac bound to
// the study root.
func loadMultiScenario(t *testing.T) *Engine {
	t.Helper()
	e := newEngine(t)
	disc := disc1Builder(t, e, "usecase")
	require.NoError(t, e.Load(context.Background(), builder.Driver("ms", []*builder.Builder{disc})))
	return e
}

func scenarioTable(t *testing.T, trade []string, rows ...[]any) *vartype.Table {
	t.Helper()
	tbl := vartype.NewTable(append([]string{ColSelectedScenario, ColScenarioName}, trade...)...)
	for _, r := range rows {
		require.NoError(t, tbl.AddRow(r...))
	}
	return tbl
}

func outputSelection(t *testing.T, names ...string) *vartype.Table {
	t.Helper()
	tbl := vartype.NewTable(ColSelectedOutput, ColFullName, ColOutputName)
	for _, name := range names {
		require.NoError(t, tbl.AddRow(true, name, ""))
	}
	return tbl
}

func TestMultiScenarioTradeAndGather(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := context.Background()
	e := loadMultiScenario(t)

	// --- Act ---
	_, err := e.LoadStudy(ctx, map[string]any{
		"usecase.ms.builder_mode": ModeMultiInstance,
		"usecase.ms.scenario_df": scenarioTable(t, []string{"x"},
			[]any{true, "sc1", 2.0},
			[]any{true, "sc2", 4.0},
			[]any{false, "sc3", 6.0},
		),
		"usecase.ms.eval_outputs":    outputSelection(t, "y"),
		"usecase.ms.sc1.Disc1.a":     3.0,
		"usecase.ms.sc1.Disc1.b":     4.0,
		"usecase.ms.sc2.Disc1.a":     3.0,
		"usecase.ms.sc2.Disc1.b":     4.0,
	})

	// --- Assert ---
	require.NoError(t, err)
	dm := e.DataManager()
	_, ok := e.Node("usecase.ms.sc1.Disc1")
	assert.True(t, ok)
	_, ok = e.Node("usecase.ms.sc3")
	assert.False(t, ok, "unselected scenarios are not built")
	assert.Equal(t, 2.0, dm.Value("usecase.ms.sc1.x"))
	assert.Equal(t, 4.0, dm.Value("usecase.ms.sc2.x"))

	_, err = e.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10.0, dm.Value("usecase.ms.sc1.y"))
	assert.Equal(t, 16.0, dm.Value("usecase.ms.sc2.y"))
	assert.Equal(t, map[string]any{"sc1": 10.0, "sc2": 16.0}, dm.Value("usecase.ms.y_dict"))

	outputs := e.tableValue("usecase.ms.eval_outputs")
	require.NotNil(t, outputs)
	assert.Equal(t, []any{"Disc1.indicator", "y"}, outputs.Column(ColFullName))
}

func TestMultiScenarioDuplicateNames(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("same name twice", func(t *testing.T) {
		e := loadMultiScenario(t)
		_, err := e.LoadStudy(ctx, map[string]any{
			"usecase.ms.builder_mode": ModeMultiInstance,
			"usecase.ms.scenario_df": scenarioTable(t, nil,
				[]any{true, "sc1"},
				[]any{true, "sc1"},
			),
		})
		require.Error(t, err)
		var nc *NonConvergenceError
		require.True(t, errors.As(err, &nc))
		assert.True(t, nc.Stalled)

		msg, err := e.DataManager().GetData("usecase.ms.scenario_df", datamanager.AttrCheckIntegrityMsg)
		require.NoError(t, err)
		assert.Equal(t, "Cannot activate several scenarios with the same name (sc1).", msg)
		_, ok := e.Node("usecase.ms.sc1")
		assert.False(t, ok)

		require.NoError(t, e.SetValues(map[string]any{
			"usecase.ms.scenario_df": scenarioTable(t, nil, []any{true, "sc1"}, []any{true, "sc2"}),
		}))
		_, err = e.Configure(ctx)
		require.NoError(t, err)
		_, ok = e.Node("usecase.ms.sc1")
		assert.True(t, ok)
		msg, _ = e.DataManager().GetData("usecase.ms.scenario_df", datamanager.AttrCheckIntegrityMsg)
		assert.Equal(t, "", msg)
	})

	t.Run("reference scenario name is reserved", func(t *testing.T) {
		e := loadMultiScenario(t)
		_, err := e.LoadStudy(ctx, map[string]any{
			"usecase.ms.builder_mode":       ModeMultiInstance,
			"usecase.ms.instance_reference": true,
			"usecase.ms.scenario_df": scenarioTable(t, nil,
				[]any{true, "sc1"},
				[]any{true, ReferenceScenario},
			),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Cannot activate several scenarios with the same name (ReferenceScenario).")
	})

	t.Run("dotted names are rejected", func(t *testing.T) {
		e := loadMultiScenario(t)
		_, err := e.LoadStudy(ctx, map[string]any{
			"usecase.ms.builder_mode": ModeMultiInstance,
			"usecase.ms.scenario_df":  scenarioTable(t, nil, []any{true, "sc.1"}),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must not contain")
	})
}

func TestMultiScenarioRemoval(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := context.Background()
	e := loadMultiScenario(t)
	_, err := e.LoadStudy(ctx, map[string]any{
		"usecase.ms.builder_mode": ModeMultiInstance,
		"usecase.ms.scenario_df":  scenarioTable(t, nil, []any{true, "sc1"}, []any{true, "sc2"}),
	})
	require.NoError(t, err)
	dm := e.DataManager()
	require.True(t, dm.CheckDataInDM("usecase.ms.sc2.Disc1.a"))
	nodes := e.Tree().Len()

	// --- Act ---
	require.NoError(t, e.SetValues(map[string]any{
		"usecase.ms.scenario_df": scenarioTable(t, nil, []any{true, "sc1"}, []any{false, "sc2"}),
	}))
	_, err = e.Configure(ctx)

	// --- Assert ---
	require.NoError(t, err)
	_, ok := e.Node("usecase.ms.sc2")
	assert.False(t, ok)
	assert.Equal(t, nodes-2, e.Tree().Len())
	assert.Empty(t, dm.Keys("usecase.ms.sc2"), "variables of a removed scenario are released")
	assert.True(t, dm.CheckDataInDM("usecase.ms.sc1.Disc1.a"))
}

func TestGeneratedSamples(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := loadMultiScenario(t)

	samples := vartype.NewTable("x")
	require.NoError(t, samples.AddRow(1.0))
	require.NoError(t, samples.AddRow(2.0))

	_, err := e.LoadStudy(ctx, map[string]any{
		"usecase.ms.builder_mode":      ModeMultiInstance,
		"usecase.ms.generated_samples": samples,
	})
	require.NoError(t, err)

	table := e.tableValue("usecase.ms.scenario_df")
	require.NotNil(t, table)
	assert.Equal(t, []any{"scenario_1", "scenario_2"}, table.Column(ColScenarioName))
	assert.Equal(t, 1.0, e.DataManager().Value("usecase.ms.scenario_1.x"))
	assert.Equal(t, 2.0, e.DataManager().Value("usecase.ms.scenario_2.x"))
}

// referenceStudy configures ms with a reference scenario and one sibling
// whose x is a trade variable.
func referenceStudy(t *testing.T, mode string) *Engine {
	t.Helper()
	e := loadMultiScenario(t)
	_, err := e.LoadStudy(context.Background(), map[string]any{
		"usecase.ms.builder_mode":       ModeMultiInstance,
		"usecase.ms.instance_reference": true,
		"usecase.ms.reference_mode":     mode,
		"usecase.ms.scenario_df":        scenarioTable(t, []string{"x"}, []any{true, "sc1", 9.0}),
		"usecase.ms.ReferenceScenario.x":       2.0,
		"usecase.ms.ReferenceScenario.Disc1.a": 3.0,
		"usecase.ms.ReferenceScenario.Disc1.b": 4.0,
	})
	require.NoError(t, err)
	return e
}

func editable(t *testing.T, e *Engine, full string) bool {
	t.Helper()
	v, err := e.DataManager().GetData(full, datamanager.AttrEditable)
	require.NoError(t, err)
	return v.(bool)
}

func assertLinked(t *testing.T, e *Engine, sc string) {
	t.Helper()
	dm := e.DataManager()
	for _, rel := range []string{"Disc1.a", "Disc1.b"} {
		ref := dm.Value("usecase.ms." + ReferenceScenario + "." + rel)
		sib := "usecase.ms." + sc + "." + rel
		assert.Equal(t, ref, dm.Value(sib), sib)
		assert.False(t, editable(t, e, sib), sib)
	}
}

func TestReferenceLinkedMode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := referenceStudy(t, LinkedMode)
	dm := e.DataManager()

	assertLinked(t, e, "sc1")
	assert.Equal(t, 3.0, dm.Value("usecase.ms.sc1.Disc1.a"))
	assert.Equal(t, 9.0, dm.Value("usecase.ms.sc1.x"), "trade variables are not propagated")
	assert.True(t, editable(t, e, "usecase.ms.sc1.x"))
	assert.True(t, editable(t, e, "usecase.ms.ReferenceScenario.Disc1.a"))

	require.NoError(t, e.SetValues(map[string]any{"usecase.ms.ReferenceScenario.Disc1.a": 5.0}))
	_, err := e.Configure(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5.0, dm.Value("usecase.ms.sc1.Disc1.a"))
	assertLinked(t, e, "sc1")

	_, err = e.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5.0*9.0+4.0, dm.Value("usecase.ms.sc1.y"))
	assert.Equal(t, 5.0*2.0+4.0, dm.Value("usecase.ms.ReferenceScenario.y"))
}

func TestReferenceCopyMode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := referenceStudy(t, CopyMode)
	dm := e.DataManager()

	assert.Equal(t, 3.0, dm.Value("usecase.ms.sc1.Disc1.a"))
	assert.True(t, editable(t, e, "usecase.ms.sc1.Disc1.a"))

	require.NoError(t, e.SetValues(map[string]any{"usecase.ms.sc1.Disc1.a": 7.0}))
	_, err := e.Configure(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7.0, dm.Value("usecase.ms.sc1.Disc1.a"), "an unchanged reference leaves edits alone")

	require.NoError(t, e.SetValues(map[string]any{"usecase.ms.ReferenceScenario.Disc1.b": 1.0}))
	_, err = e.Configure(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, dm.Value("usecase.ms.sc1.Disc1.b"), "a reference change is copied once")
	assert.Equal(t, 7.0, dm.Value("usecase.ms.sc1.Disc1.a"))
}

func TestReferenceNewScenarioReceivesFullCopy(t *testing.T) {
	t.Parallel()
	for _, mode := range []string{LinkedMode, CopyMode} {
		t.Run(mode, func(t *testing.T) {
			ctx := context.Background()
			e := referenceStudy(t, mode)
			dm := e.DataManager()

			require.NoError(t, e.SetValues(map[string]any{
				"usecase.ms.scenario_df": scenarioTable(t, []string{"x"},
					[]any{true, "sc1", 9.0},
					[]any{true, "sc2", 8.0},
				),
			}))
			_, err := e.Configure(ctx)
			require.NoError(t, err)

			assert.Equal(t, 3.0, dm.Value("usecase.ms.sc2.Disc1.a"))
			assert.Equal(t, 4.0, dm.Value("usecase.ms.sc2.Disc1.b"))
			assert.Equal(t, 8.0, dm.Value("usecase.ms.sc2.x"))
			assert.Equal(t, mode == CopyMode, editable(t, e, "usecase.ms.sc2.Disc1.a"))
		})
	}
}

func TestReferenceModeSwitchRestoresEditability(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := referenceStudy(t, LinkedMode)
	require.False(t, editable(t, e, "usecase.ms.sc1.Disc1.a"))

	require.NoError(t, e.SetValues(map[string]any{"usecase.ms.reference_mode": CopyMode}))
	_, err := e.Configure(ctx)
	require.NoError(t, err)
	assert.True(t, editable(t, e, "usecase.ms.sc1.Disc1.a"))

	require.NoError(t, e.SetValues(map[string]any{"usecase.ms.reference_mode": LinkedMode}))
	_, err = e.Configure(ctx)
	require.NoError(t, err)
	assertLinked(t, e, "sc1")

	require.NoError(t, e.SetValues(map[string]any{"usecase.ms.instance_reference": false}))
	_, err = e.Configure(ctx)
	require.NoError(t, err)
	assert.True(t, editable(t, e, "usecase.ms.sc1.Disc1.a"))
	_, ok := e.Node("usecase.ms." + ReferenceScenario)
	assert.False(t, ok, "turning the reference off removes its scenario")
}

func TestMultiScenarioInvalidTradeValues(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name    string
		trade   string
		value   any
		wantMsg string
	}{
		{
			name:    "value does not fit the input type",
			trade:   "x",
			value:   "abc",
			wantMsg: "scenario 'sc1', column 'x'",
		},
		{
			name:    "column matches no input",
			trade:   "xx",
			value:   2.0,
			wantMsg: "scenario 'sc1': column 'xx' matches no input",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			// --- Arrange ---
			ctx := context.Background()
			e := loadMultiScenario(t)
			dm := e.DataManager()

			// --- Act ---
			_, err := e.LoadStudy(ctx, map[string]any{
				"usecase.ms.builder_mode": ModeMultiInstance,
				"usecase.ms.scenario_df":  scenarioTable(t, []string{tc.trade}, []any{true, "sc1", tc.value}),
				"usecase.ms.sc1.Disc1.a":  3.0,
				"usecase.ms.sc1.Disc1.b":  4.0,
			})

			// --- Assert ---
			require.Error(t, err)
			var nc *NonConvergenceError
			require.True(t, errors.As(err, &nc))
			assert.True(t, nc.Stalled)
			assert.ErrorIs(t, err, ErrNotConfigured)
			assert.Contains(t, err.Error(), tc.wantMsg)

			msg, err := dm.GetData("usecase.ms.scenario_df", datamanager.AttrCheckIntegrityMsg)
			require.NoError(t, err)
			assert.Contains(t, msg, tc.wantMsg)
			_, err = e.Execute(ctx)
			assert.ErrorIs(t, err, ErrNotConfigured)

			require.NoError(t, e.SetValues(map[string]any{
				"usecase.ms.scenario_df": scenarioTable(t, []string{"x"}, []any{true, "sc1", 2.0}),
			}))
			_, err = e.Configure(ctx)
			require.NoError(t, err)
			msg, _ = dm.GetData("usecase.ms.scenario_df", datamanager.AttrCheckIntegrityMsg)
			assert.Equal(t, "", msg)
			assert.Equal(t, 2.0, dm.Value("usecase.ms.sc1.x"))
		})
	}
}

func TestReferenceLinkedModeIsIdempotent(t *testing.T) {
	t.Parallel()
	e := referenceStudy(t, LinkedMode)
	rev := e.DataManager().Revision()
	nodes := e.Tree().Len()

	report, err := e.Configure(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Passes)
	assert.Equal(t, rev, e.DataManager().Revision(), "a settled study writes nothing")
	assert.Equal(t, nodes, e.Tree().Len(), "a settled study builds nothing")
	assertLinked(t, e, "sc1")
}

// nestedStudy configures a driver "outer" with one sibling A around a
// driver "inner" that has one sibling s, both with a reference scenario.
func nestedStudy(t *testing.T, outerMode, innerMode string) *Engine {
	t.Helper()
	e := newEngine(t)
	disc := disc1Builder(t, e, "usecase")
	inner := builder.Driver("inner", []*builder.Builder{disc})
	require.NoError(t, e.Load(context.Background(), builder.Driver("outer", []*builder.Builder{inner})))

	const ref = "usecase.outer." + ReferenceScenario + ".inner."
	_, err := e.LoadStudy(context.Background(), map[string]any{
		"usecase.outer.builder_mode":       ModeMultiInstance,
		"usecase.outer.instance_reference": true,
		"usecase.outer.reference_mode":     outerMode,
		"usecase.outer.scenario_df":        scenarioTable(t, nil, []any{true, "A"}),
		ref + "builder_mode":               ModeMultiInstance,
		ref + "instance_reference":         true,
		ref + "reference_mode":             innerMode,
		ref + "scenario_df":                scenarioTable(t, []string{"x"}, []any{true, "s", 2.0}),
		ref + ReferenceScenario + ".x":       1.0,
		ref + ReferenceScenario + ".Disc1.a": 3.0,
		ref + ReferenceScenario + ".Disc1.b": 4.0,
	})
	require.NoError(t, err)
	return e
}

func TestReferenceLinkedParentForcesNestedDrivers(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	e := nestedStudy(t, LinkedMode, CopyMode)
	dm := e.DataManager()

	// --- Assert ---
	for _, sc := range []string{ReferenceScenario, "A"} {
		mode := "usecase.outer." + sc + ".inner.reference_mode"
		assert.Equal(t, LinkedMode, dm.Value(mode), mode)
		leaf := "usecase.outer." + sc + ".inner.s.Disc1.a"
		assert.Equal(t, 3.0, dm.Value(leaf), leaf)
		assert.False(t, editable(t, e, leaf), leaf)
	}
	assert.False(t, editable(t, e, "usecase.outer.A.inner.reference_mode"))
	assert.Equal(t, 2.0, dm.Value("usecase.outer.A.inner.s.x"))

	// --- Act ---
	rev := dm.Revision()
	report, err := e.Configure(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 1, report.Passes)
	assert.Equal(t, rev, dm.Revision())
}

func TestReferenceCopyModeKeepsNestedDriverLocks(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	e := nestedStudy(t, CopyMode, LinkedMode)
	dm := e.DataManager()

	// --- Assert ---
	assert.Equal(t, 3.0, dm.Value("usecase.outer.A.inner.s.Disc1.a"))
	assert.False(t, editable(t, e, "usecase.outer.A.inner.s.Disc1.a"), "the nested driver still links its siblings")
	assert.True(t, editable(t, e, "usecase.outer.A.inner.reference_mode"))
	assert.True(t, editable(t, e, "usecase.outer.A.inner."+ReferenceScenario+".Disc1.a"))

	// --- Act ---
	require.NoError(t, e.SetValues(map[string]any{
		"usecase.outer." + ReferenceScenario + ".inner." + ReferenceScenario + ".Disc1.a": 5.0,
	}))
	_, err := e.Configure(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 5.0, dm.Value("usecase.outer.A.inner.s.Disc1.a"))
	assert.False(t, editable(t, e, "usecase.outer.A.inner.s.Disc1.a"))
}
