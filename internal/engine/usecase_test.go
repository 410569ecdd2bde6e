package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/studygrid/internal/builder"
	"github.com/specialistvlad/studygrid/modules/testdiscs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsecaseImportRetriesUntilComplete(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := context.Background()
	e := newEngine(t)
	id, err := e.AddNamespace("ns_ac", "usecase")
	require.NoError(t, err)
	disc := builder.Discipline("Disc", "testdiscs.disc10", id)
	require.NoError(t, e.Load(ctx, builder.Driver("Eval", []*builder.Builder{disc})))

	// --- Act ---
	_, err = e.LoadStudy(ctx, map[string]any{
		"usecase.Eval.builder_mode": ModeMonoInstance,
		"usecase.Eval.usecase_data": map[string]any{
			"<study_ph>.Disc.Model_Type": testdiscs.ModelAffine,
			"<study_ph>.Disc.a":          2.0,
			"<study_ph>.Disc.b":          1.0,
		},
	})

	// --- Assert ---
	require.NoError(t, err, "b only exists once Model_Type was applied")
	dm := e.DataManager()
	assert.Equal(t, testdiscs.ModelAffine, dm.Value("usecase.Eval.Disc.Model_Type"))
	assert.Equal(t, 2.0, dm.Value("usecase.Eval.Disc.a"))
	assert.Equal(t, 1.0, dm.Value("usecase.Eval.Disc.b"))
	assert.True(t, e.IsConfigured())
}

func TestUsecaseImportUnknownKeyStalls(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := loadDoubleEval(t)

	_, err := e.LoadStudy(ctx, map[string]any{
		"usecase.Eval.builder_mode": ModeMonoInstance,
		"usecase.Eval.usecase_data": map[string]any{
			"<study_ph>.Disc.x":    4.0,
			"<study_ph>.Disc.typo": 1.0,
		},
	})
	require.Error(t, err)
	var nc *NonConvergenceError
	require.True(t, errors.As(err, &nc))
	assert.True(t, nc.Stalled)
	assert.Equal(t, []string{"usecase.Eval.Disc.typo"}, nc.PendingKeys)
	assert.Contains(t, err.Error(), "use case import has 1 unmatched keys")
	assert.Equal(t, 4.0, e.DataManager().Value("usecase.Eval.Disc.x"), "known keys are applied anyway")

	require.NoError(t, e.SetValues(map[string]any{
		"usecase.Eval.usecase_data": map[string]any{"<study_ph>.Disc.x": 5.0},
	}))
	_, err = e.Configure(ctx)
	require.NoError(t, err, "a corrected import completes")
	assert.Equal(t, 5.0, e.DataManager().Value("usecase.Eval.Disc.x"))
}

func TestUsecaseImportIntoReferenceScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := loadMultiScenario(t)

	_, err := e.LoadStudy(ctx, map[string]any{
		"usecase.ms.builder_mode":       ModeMultiInstance,
		"usecase.ms.instance_reference": true,
		"usecase.ms.scenario_df":        scenarioTable(t, nil, []any{true, "sc1"}),
		"usecase.ms.usecase_data": map[string]any{
			"<study_ph>.Disc1.a": 3.0,
			"<study_ph>.Disc1.b": 4.0,
		},
	})
	require.NoError(t, err)

	dm := e.DataManager()
	assert.Equal(t, 3.0, dm.Value("usecase.ms.ReferenceScenario.Disc1.a"))
	assert.Equal(t, 3.0, dm.Value("usecase.ms.sc1.Disc1.a"), "the reference forwards imported values")
	assert.Equal(t, 4.0, dm.Value("usecase.ms.sc1.Disc1.b"))
}

func TestUsecaseDataShapes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, map[string]any{"a": 1.0}, usecaseData(map[string]any{"a": 1.0}))
	assert.Equal(t, map[string]any{"a": 1.0}, usecaseData(map[string]float64{"a": 1.0}))
	assert.Nil(t, usecaseData(map[int]any{1: 1.0}))
	assert.Nil(t, usecaseData(nil))
}
