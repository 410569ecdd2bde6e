package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/studygrid/internal/ctxlog"
	"github.com/specialistvlad/studygrid/internal/mda"
)

// RunReport summarizes one execution.
type RunReport struct {
	Duration time.Duration
	// Iterations is the largest iteration count of the root coupled groups.
	Iterations int
	Residual   float64
}

// Execute runs the configured tree against the data manager.
func (e *Engine) Execute(ctx context.Context) (*RunReport, error) {
	if !e.IsConfigured() {
		return nil, ErrNotConfigured
	}
	logger := ctxlog.FromContext(ctx)

	exec, err := e.executable(e.root)
	if err != nil {
		return nil, fmt.Errorf("preparing execution: %w", err)
	}
	logger.Info("🚀 Executing study.", "study", e.study, "nodes", e.tree.Len())

	start := time.Now()
	if err := exec.Run(ctx, e.dm); err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}
	report := &RunReport{Duration: time.Since(start)}
	if chain, ok := exec.(*mda.Chain); ok {
		last := chain.LastReport()
		report.Iterations = last.Iterations
		report.Residual = last.Residual
	}
	logger.Info("🏁 Study execution finished.", "duration", report.Duration)
	return report, nil
}
