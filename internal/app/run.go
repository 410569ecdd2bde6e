package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/studygrid/internal/ctxlog"
	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/engine"
	"github.com/specialistvlad/studygrid/internal/namespace"
	"github.com/specialistvlad/studygrid/internal/snapshot"
	"github.com/specialistvlad/studygrid/internal/usecase"
	"github.com/specialistvlad/studygrid/internal/vartype"
)

// Result is the outcome of one study run.
type Result struct {
	RunID     string
	Study     string
	Configure *engine.ConfigReport
	Execute   *engine.RunReport
	// Outputs holds the computed values by full name.
	Outputs map[string]any
}

// Run loads, configures and executes the study at cfg.StudyPath. With
// DryRun it stops after configuration and prints the tree.
func (a *App) Run(ctx context.Context, cfg *Config) (*Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	res := &Result{RunID: uuid.NewString()}
	ctx, logger := ctxlog.With(ctx, "run_id", res.RunID)
	logger.Debug("App.Run method started.", "study_path", cfg.StudyPath)

	var store *snapshot.Store
	if cfg.DBPath != "" {
		var err error
		if store, err = snapshot.Open(cfg.DBPath); err != nil {
			return nil, fmt.Errorf("failed to open snapshot store: %w", err)
		}
		defer store.Close()
	}

	def, e, err := a.load(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load study: %w", err)
	}
	res.Study = def.Name

	values := def.FullValues()
	if cfg.FromRun != "" {
		if err := a.mergeStoredRun(ctx, store, cfg.FromRun, def.Name, values); err != nil {
			return nil, err
		}
	}

	logger.Info("🚀 Configuring study.", "study", def.Name, "files", len(def.Files), "values", len(values))
	res.Configure, err = e.LoadStudy(ctx, values)
	if err != nil {
		if cfg.DryRun || errors.Is(err, engine.ErrNotConfigured) {
			fmt.Fprint(a.outW, renderTree(def.Name, e.Display()))
		}
		a.record(ctx, store, res, e, err)
		return res, fmt.Errorf("failed to configure study: %w", err)
	}
	logger.Info("✅ Study configured.", "passes", res.Configure.Passes, "nodes", res.Configure.Nodes)

	if cfg.DryRun {
		fmt.Fprint(a.outW, renderTree(def.Name, e.Display()))
		return res, nil
	}

	res.Execute, err = e.Execute(ctx)
	if err != nil {
		a.record(ctx, store, res, e, err)
		return res, err
	}
	logger.Info("🏁 Execution finished.", "duration", res.Execute.Duration, "iterations", res.Execute.Iterations)

	res.Outputs = outputs(e, def.Name)
	fmt.Fprint(a.outW, renderOutputs(def.Name, res.Outputs))

	if cfg.OutputPath != "" {
		data := usecase.Export(def.Name, e.DataManager().Values(def.Name))
		if err := usecase.Write(cfg.OutputPath, data); err != nil {
			return res, fmt.Errorf("failed to write output: %w", err)
		}
		logger.Info("✅ Values exported.", "path", cfg.OutputPath, "keys", len(data))
	}

	a.record(ctx, store, res, e, nil)
	logger.Debug("App.Run method finished.")
	return res, nil
}

// mergeStoredRun overlays the inputs of a stored run on values. Keys are
// moved to root when the run belongs to another study name.
func (a *App) mergeStoredRun(ctx context.Context, store *snapshot.Store, ref, root string, values map[string]any) error {
	logger := ctxlog.FromContext(ctx)
	var run snapshot.Run
	var err error
	if ref == LatestRun {
		run, err = store.Latest(ctx, root)
	} else {
		run, err = store.Get(ctx, ref)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve run '%s': %w", ref, err)
	}
	stored, err := store.Values(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to read run '%s': %w", run.ID, err)
	}
	inputs := snapshot.Inputs(stored)
	for k, v := range inputs {
		values[namespace.Unanonymize(namespace.Anonymize(run.Study, k), root)] = v
	}
	logger.Info("Reloaded stored run.", "from_run", run.ID, "inputs", len(inputs))
	return nil
}

// record saves the run when a store is configured. Failing to save is
// logged, never returned.
func (a *App) record(ctx context.Context, store *snapshot.Store, res *Result, e *engine.Engine, runErr error) {
	if store == nil {
		return
	}
	logger := ctxlog.FromContext(ctx)
	run := snapshot.Run{ID: res.RunID, Study: res.Study, Status: snapshot.StatusSucceeded, CreatedAt: time.Now().UTC()}
	if runErr != nil {
		run.Status = snapshot.StatusFailed
		run.Message = runErr.Error()
	}
	if res.Configure != nil {
		run.Passes = res.Configure.Passes
	}
	if res.Execute != nil {
		run.Iterations = res.Execute.Iterations
	}
	saved, err := store.Save(ctx, run, e.DataManager().Snapshot(res.Study))
	if err != nil {
		logger.Warn("⚠️ Could not save run snapshot.", "error", err)
		return
	}
	logger.Info("✅ Run snapshot saved.", "status", saved.Status, "variables", saved.Variables)
}

// outputs collects every output value under root.
func outputs(e *engine.Engine, root string) map[string]any {
	out := make(map[string]any)
	for _, v := range e.DataManager().Snapshot(root) {
		if v.IOType == datamanager.Out && v.Current() != nil {
			out[v.FullName] = v.Current()
		}
	}
	return out
}

func renderOutputs(root string, values map[string]any) string {
	rows := make([][]string, 0, len(values))
	for _, k := range vartype.SortedKeys(values) {
		rel, _ := namespace.Relative(root, k)
		rows = append(rows, []string{rel, formatValue(values[k])})
	}
	return renderTable("Outputs of "+root, []string{"variable", "value"}, rows)
}

// Tree configures the study and prints its tree. An incomplete
// configuration is reported in the tree, not as an error.
func (a *App) Tree(ctx context.Context, cfg *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	def, e, err := a.load(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load study: %w", err)
	}
	if _, err := e.LoadStudy(ctx, def.FullValues()); err != nil {
		if !errors.Is(err, engine.ErrNotConfigured) {
			return fmt.Errorf("failed to configure study: %w", err)
		}
		a.logger.Warn("⚠️ Study is not fully configured.", "error", err)
	}
	fmt.Fprint(a.outW, renderTree(def.Name, e.Display()))
	return nil
}
