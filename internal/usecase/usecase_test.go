package usecase

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/studygrid/internal/vartype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportAndRead(t *testing.T) {
	scenarios := vartype.NewTable("selected_scenario", "scenario_name", "x")
	require.NoError(t, scenarios.AddRow(true, "sc1", 2.0))
	require.NoError(t, scenarios.AddRow(false, "sc2", math.NaN()))

	data := Export("usecase.ms", map[string]any{
		"usecase.ms.scenario_df":  scenarios,
		"usecase.ms.sc1.Disc1.a":  3.0,
		"usecase.other.Disc1.a":   4.0,
		"usecase.ms":              "root itself is skipped",
	})
	assert.Equal(t, []string{"<study_ph>.sc1.Disc1.a", "<study_ph>.scenario_df"}, Keys(data))

	path := filepath.Join(t.TempDir(), "usecase.yaml")
	require.NoError(t, Write(path, data))

	loaded, err := Read(path)
	require.NoError(t, err)
	assert.EqualValues(t, 3, loaded["<study_ph>.sc1.Disc1.a"], "whole floats come back as ints and are coerced on import")

	tbl, err := vartype.ToTable(loaded["<study_ph>.scenario_df"])
	require.NoError(t, err)
	assert.Equal(t, []string{"selected_scenario", "scenario_name", "x"}, tbl.Columns)
	assert.Equal(t, "sc1", tbl.Value(0, "scenario_name"))
	assert.Nil(t, tbl.Value(1, "x"), "missing cells are written as null")
}

func TestParseRejectsStudyKeys(t *testing.T) {
	_, err := Parse([]byte("usecase.Disc1.a: 1\n<study_ph>.Disc1.b: 2\nother.c: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "use case validation failed:")
	assert.Contains(t, err.Error(), "key 'usecase.Disc1.a'")
	assert.Contains(t, err.Error(), "key 'other.c'")
}

func TestParseNormalizesMaps(t *testing.T) {
	data, err := Parse([]byte("<study_ph>.Eval.y_dict:\n  0: 2.5\n  1: 3.5\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"0": 2.5, "1": 3.5}, data["<study_ph>.Eval.y_dict"])
}
