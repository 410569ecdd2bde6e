package mda

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/studygrid/internal/ctxlog"
	"golang.org/x/sync/errgroup"
)

// SampleOptions tune RunSamples.
type SampleOptions struct {
	// Workers bounds concurrent evaluations. Values below 2 run sequentially.
	Workers int
	// Delay is waited between two evaluation launches.
	Delay time.Duration
}

// SampleResult holds the collected outputs of one sample.
type SampleResult struct {
	Index   int
	Outputs map[string]any
}

// RunSamples runs exec once per sample point. Every point gets its own
// Overlay over base, so base is only read. The outputs named in collect are
// returned in sample order.
func RunSamples(ctx context.Context, exec Executable, base Store, samples []map[string]any, collect []string, opts SampleOptions) ([]SampleResult, error) {
	logger := ctxlog.FromContext(ctx)
	results := make([]SampleResult, len(samples))

	eval := func(ctx context.Context, i int) error {
		overlay := NewOverlay(base, samples[i])
		if err := exec.Run(ctx, overlay); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		outputs := make(map[string]any, len(collect))
		for _, name := range collect {
			outputs[name] = overlay.Value(name)
		}
		results[i] = SampleResult{Index: i, Outputs: outputs}
		logger.Debug("Sample evaluated.", "index", i)
		return nil
	}

	wait := func(ctx context.Context) error {
		if opts.Delay <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.Delay):
			return nil
		}
	}

	if opts.Workers < 2 {
		for i := range samples {
			if i > 0 {
				if err := wait(ctx); err != nil {
					return nil, err
				}
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := eval(ctx, i); err != nil {
				return nil, err
			}
		}
		return results, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Workers)
	for i := range samples {
		if i > 0 {
			if err := wait(egCtx); err != nil {
				break
			}
		}
		eg.Go(func() error { return eval(egCtx, i) })
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
