package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/specialistvlad/studygrid/internal/ctxlog"
	"github.com/specialistvlad/studygrid/internal/engine"
	"github.com/specialistvlad/studygrid/internal/registry"
	"github.com/specialistvlad/studygrid/internal/study"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	loader   *study.Loader

	// onRun observes every watch iteration.
	onRun func(*Result, error)
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All discipline modules registered.", "count", len(modules), "disciplines", len(reg.DisciplineRegistry))

	if err := reg.ValidateRegistry(ctx); err != nil {
		// This is a programmer error (a discipline with a broken grammar), so we panic.
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		loader:   study.NewLoader(),
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// load reads the study at cfg.StudyPath and loads its process into a fresh
// engine. Values are not applied yet.
func (a *App) load(ctx context.Context, cfg *Config) (*study.Definition, *engine.Engine, error) {
	if err := cfg.requireStudy(); err != nil {
		return nil, nil, err
	}
	def, err := a.loader.Load(ctx, cfg.StudyPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.MaxPasses > 0 {
		def.MaxPasses = cfg.MaxPasses
	}
	e := def.Engine(a.registry)
	if err := def.Load(ctx, e); err != nil {
		return nil, nil, err
	}
	return def, e, nil
}
