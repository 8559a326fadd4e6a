package optim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/elsim/internal/dynamo"
	"github.com/san-kum/elsim/internal/experiment"
)

var ErrNoCandidate = errors.New("optim: no candidate produced the metric")

// Candidate is one evaluated grid point.
type Candidate struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	limit      int
}

// NewGridSearch evaluates every combination of ranges. limit bounds the
// number of concurrent runs; zero uses GOMAXPROCS.
func NewGridSearch(params []string, ranges [][]float64, limit int) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges, limit: limit}
}

// Points enumerates the grid, varying the last parameter fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var points []map[string]float64
	g.enumerate(0, make(map[string]float64), &points)
	return points
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, points *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*points = append(*points, current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.enumerate(depth+1, newParams, points)
	}
}

// Search runs an experiment per grid point and returns the parameters with
// the smallest metric value. Candidates that fail to build or run, or whose
// metric is NaN, are skipped; all candidates are returned for inspection.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (map[string]float64, float64, []Candidate, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, nil, fmt.Errorf("optim: %d parameters with %d ranges", len(g.paramNames), len(g.ranges))
	}

	points := g.Points()
	candidates := make([]Candidate, len(points))

	err := dynamo.NewEnsemble(g.limit).Run(ctx, len(points), func(ctx context.Context, idx int) error {
		c := &candidates[idx]
		c.Params = points[idx]
		c.Value = math.NaN()

		exp, err := buildExperiment(c.Params)
		if err != nil {
			c.Err = err
			return nil
		}
		result, err := exp.Run(ctx)
		if err != nil {
			c.Err = err
			return ctx.Err()
		}
		val, ok := result.Metrics[metricName]
		if !ok {
			c.Err = fmt.Errorf("optim: metric %q not recorded", metricName)
			return nil
		}
		c.Value = val
		return nil
	})
	if err != nil {
		return nil, 0, candidates, err
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	for _, c := range candidates {
		if c.Err == nil && c.Value < best {
			best = c.Value
			bestParams = c.Params
		}
	}
	if bestParams == nil {
		return nil, 0, candidates, ErrNoCandidate
	}
	return bestParams, best, candidates, nil
}
