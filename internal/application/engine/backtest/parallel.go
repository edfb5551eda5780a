package backtest

import (
	"context"
	"fmt"
	"runtime"

	"github.com/alejandrodnm/polybacktest/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Job es una corrida independiente: nombre + configuración.
type Job struct {
	Name   string
	Config domain.BacktestConfig
}

// RunAll ejecuta varias corridas en paralelo sobre el mismo Input.
// Cada corrida tiene su propio estado; el Input solo se lee.
// Los resultados respetan el orden de jobs. Si workers <= 0 usa runtime.NumCPU().
func RunAll(ctx context.Context, jobs []Job, in Input, workers int) ([]*domain.Result, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*domain.Result, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := New(job.Config, job.Name).Run(in)
			if err != nil {
				return fmt.Errorf("run %q: %w", job.Name, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("backtest.RunAll: %w", err)
	}
	return results, nil
}
