package dynamo

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Ensemble fans independent jobs out over a bounded number of goroutines.
// Each job must own its model and solver; only the coefficient table may be
// shared.
type Ensemble struct {
	limit int
}

// NewEnsemble returns an ensemble running at most limit jobs at once. A
// non-positive limit means one job per CPU.
func NewEnsemble(limit int) *Ensemble {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	return &Ensemble{limit: limit}
}

// Run calls job for every index in [0, n) and returns the first error. The
// context handed to the jobs is canceled as soon as one of them fails.
func (e *Ensemble) Run(ctx context.Context, n int, job func(ctx context.Context, idx int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)

	for i := 0; i < n; i++ {
		idx := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return job(gctx, idx)
		})
	}

	return g.Wait()
}
