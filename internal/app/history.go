package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/specialistvlad/studygrid/internal/ctxlog"
	"github.com/specialistvlad/studygrid/internal/snapshot"
)

// History prints the runs recorded in cfg.DBPath, newest first.
func (a *App) History(ctx context.Context, cfg *Config) ([]snapshot.Run, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	if cfg.DBPath == "" {
		return nil, errors.New("a snapshot database is required")
	}
	store, err := snapshot.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	defer store.Close()

	runs, err := store.Runs(ctx, cfg.Study)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Runs listed.", "count", len(runs), "study", cfg.Study)

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID, r.Study, r.Status,
			strconv.Itoa(r.Passes), strconv.Itoa(r.Iterations), strconv.Itoa(r.Variables),
			r.CreatedAt.Local().Format(time.DateTime),
		})
	}
	fmt.Fprint(a.outW, renderTable("Runs", []string{"id", "study", "status", "passes", "iterations", "variables", "created"}, rows))
	return runs, nil
}

// Modules prints the registered discipline modules.
func (a *App) Modules() []string {
	paths := a.registry.Paths()
	rows := make([][]string, 0, len(paths))
	for _, p := range paths {
		rows = append(rows, []string{p, a.registry.DisciplineRegistry[p].Description})
	}
	fmt.Fprint(a.outW, renderTable("Discipline modules", []string{"module", "description"}, rows))
	return paths
}
