package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/studygrid/internal/engine"
	"github.com/specialistvlad/studygrid/internal/usecase"
	"github.com/specialistvlad/studygrid/modules/testdiscs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const disc1Study = `
study "usecase" {}

namespace "ns_ac" {
  value = "usecase"
}

discipline "Disc1" {
  module     = "testdiscs.disc1"
  namespaces = ["ns_ac"]
}

values = {
  "x"       = %s
  "Disc1.a" = 3
  "Disc1.b" = 4
}
`

func writeStudy(t *testing.T, dir, x string) string {
	t.Helper()
	path := filepath.Join(dir, "study.hcl")
	content := []byte(fmt.Sprintf(disc1Study, x))
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func newTestApp(t *testing.T, cfg Config) (*App, *Config, *SafeBuffer) {
	t.Helper()
	valid, err := NewConfig(cfg)
	require.NoError(t, err)
	a, buf := SetupAppTest(t, valid, &testdiscs.Module{})
	return a, valid, buf
}

func TestRunStudy(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	out := filepath.Join(dir, "out.yaml")
	a, cfg, buf := newTestApp(t, Config{StudyPath: writeStudy(t, dir, "2"), OutputPath: out})

	// Act
	res, err := a.Run(context.Background(), cfg)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "usecase", res.Study)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 10.0, res.Outputs["usecase.y"])
	assert.Equal(t, 12.0, res.Outputs["usecase.Disc1.indicator"])
	assert.Contains(t, buf.String(), "🏁 Execution finished.")
	assert.Contains(t, buf.String(), "Outputs of usecase")
	assert.Contains(t, buf.String(), "Disc1.indicator")

	data, err := usecase.Read(out)
	require.NoError(t, err)
	assert.EqualValues(t, 10, data["<study_ph>.y"])
	assert.EqualValues(t, 3, data["<study_ph>.Disc1.a"])
}

func TestRunDryRun(t *testing.T) {
	dir := t.TempDir()
	a, cfg, buf := newTestApp(t, Config{StudyPath: writeStudy(t, dir, "2"), DryRun: true})

	res, err := a.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, res.Execute)
	assert.Nil(t, res.Outputs)
	assert.Contains(t, buf.String(), "Study usecase")
	assert.Contains(t, buf.String(), "✔ Disc1")
	assert.NotContains(t, buf.String(), "🏁")
}

func TestRunMissingStudy(t *testing.T) {
	a, cfg, _ := newTestApp(t, Config{StudyPath: filepath.Join(t.TempDir(), "nope.hcl")})
	_, err := a.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load study")

	a, cfg, _ = newTestApp(t, Config{})
	_, err = a.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a study path is required")
}

func TestRunUnconfiguredStudy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "study.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
study "usecase" {}

discipline "Disc1" {
  module = "testdiscs.disc1"
}
`), 0o644))
	a, cfg, buf := newTestApp(t, Config{StudyPath: path})

	_, err := a.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrNotConfigured))
	assert.Contains(t, buf.String(), "✘ Disc1", "the tree is printed to show what is missing")
}

func TestRunSnapshotsAndReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	study := writeStudy(t, dir, "2")

	a, cfg, _ := newTestApp(t, Config{StudyPath: study, DBPath: db})
	first, err := a.Run(ctx, cfg)
	require.NoError(t, err)

	writeStudy(t, dir, "5")
	second, err := a.Run(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 19.0, second.Outputs["usecase.y"])

	a, cfg, _ = newTestApp(t, Config{StudyPath: study, DBPath: db, FromRun: first.RunID})
	reloaded, err := a.Run(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 10.0, reloaded.Outputs["usecase.y"], "stored inputs override the study file")

	a, cfg, buf := newTestApp(t, Config{DBPath: db, Study: "usecase"})
	runs, err := a.History(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, reloaded.RunID, runs[0].ID)
	assert.Contains(t, buf.String(), first.RunID)

	a, cfg, _ = newTestApp(t, Config{StudyPath: study, DBPath: db, FromRun: "missing"})
	_, err = a.Run(ctx, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestHistoryRequiresDB(t *testing.T) {
	a, cfg, _ := newTestApp(t, Config{})
	_, err := a.History(context.Background(), cfg)
	assert.Error(t, err)
}

func TestTree(t *testing.T) {
	dir := t.TempDir()
	a, cfg, buf := newTestApp(t, Config{StudyPath: writeStudy(t, dir, "2")})
	require.NoError(t, a.Tree(context.Background(), cfg))
	assert.Contains(t, buf.String(), "✔ usecase")
	assert.Contains(t, buf.String(), "[ns_ac=usecase]")
}

func TestModules(t *testing.T) {
	a, _, buf := newTestApp(t, Config{})
	paths := a.Modules()
	assert.Contains(t, paths, "testdiscs.disc1")
	assert.Contains(t, buf.String(), "Discipline modules")
}

func TestCoreModulesRegister(t *testing.T) {
	cfg, err := NewConfig(Config{})
	require.NoError(t, err)
	a := NewApp(&SafeBuffer{}, cfg)
	assert.Contains(t, a.Registry().Paths(), "testdiscs.disc1")
	assert.Greater(t, len(a.Registry().Paths()), 5)
}
