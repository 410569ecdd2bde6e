package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/specialistvlad/studygrid/internal/ctxlog"
	"github.com/specialistvlad/studygrid/internal/fsutil"
)

// Watch runs the study once, then again every time a study or use case
// file changes, until ctx is done. Run failures are logged and watching
// goes on.
func (a *App) Watch(ctx context.Context, cfg *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	if err := cfg.requireStudy(); err != nil {
		return err
	}
	files, err := fsutil.ResolveStudyFiles(cfg.StudyPath)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	for _, dir := range fsutil.Dirs(files) {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	a.logger.Info("👀 Watching study files.", "dirs", len(fsutil.Dirs(files)))

	a.runOnce(ctx, cfg)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Watch stopped.")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			a.logger.Debug("Study file changed.", "file", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(cfg.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(cfg.Debounce)
			}
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("⚠️ Watcher error.", "error", err)

		case <-fire:
			fire = nil
			a.runOnce(ctx, cfg)
		}
	}
}

func (a *App) runOnce(ctx context.Context, cfg *Config) {
	res, err := a.Run(ctx, cfg)
	if err != nil {
		a.logger.Error("Study run failed.", "error", err)
	}
	if a.onRun != nil {
		a.onRun(res, err)
	}
}

func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	switch filepath.Ext(event.Name) {
	case fsutil.StudyExtension, ".yaml", ".yml":
		return true
	}
	return false
}
