package sim

import (
	"context"

	"github.com/san-kum/elsim/internal/dynamo"
)

// Factory builds an independent simulator for run idx. Simulators own
// mutable model state and must not be shared between runs.
type Factory func(idx int) (*Simulator, error)

// Batch runs independently built simulators concurrently.
type Batch struct {
	factory Factory
	numRuns int
	limit   int
}

func NewBatch(factory Factory, numRuns, limit int) *Batch {
	return &Batch{factory: factory, numRuns: numRuns, limit: limit}
}

func (b *Batch) Run(ctx context.Context, cfg Config) ([]*Result, error) {
	results := make([]*Result, b.numRuns)

	err := dynamo.NewEnsemble(b.limit).Run(ctx, b.numRuns, func(ctx context.Context, idx int) error {
		s, err := b.factory(idx)
		if err != nil {
			return err
		}
		results[idx], err = s.Run(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
