package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/elsim/internal/dynamo"
)

// RMSE compares a flux or state against an observed series indexed by the
// simulation index. Steps beyond the series are ignored.
type RMSE struct {
	name      string
	target    string
	observed  []float64
	simulated []float64
	matched   []float64
}

func NewRMSE(target string, observed []float64) *RMSE {
	return &RMSE{
		name:     "rmse_" + target,
		target:   target,
		observed: observed,
	}
}

func (r *RMSE) Name() string { return r.name }

func (r *RMSE) Observe(seqs *dynamo.Sequences, rep dynamo.Report, ctx *dynamo.Context) {
	if ctx.SimIndex < 0 || ctx.SimIndex >= len(r.observed) {
		return
	}
	v, ok := lookup(seqs, r.target)
	if !ok {
		return
	}
	r.simulated = append(r.simulated, v)
	r.matched = append(r.matched, r.observed[ctx.SimIndex])
}

func (r *RMSE) Value() float64 {
	n := len(r.simulated)
	if n == 0 {
		return math.NaN()
	}
	return floats.Distance(r.simulated, r.matched, 2) / math.Sqrt(float64(n))
}

func (r *RMSE) Reset() {
	r.simulated = r.simulated[:0]
	r.matched = r.matched[:0]
}

func lookup(seqs *dynamo.Sequences, name string) (float64, bool) {
	if f, err := seqs.Flux(name); err == nil {
		return f.Value, true
	}
	if s, err := seqs.State(name); err == nil {
		return s.Old, true
	}
	return 0, false
}
