package metrics

import (
	"math"

	"github.com/san-kum/elsim/internal/dynamo"
)

// Degraded counts outer steps in which the solver accepted a sub-interval
// at the minimum step without meeting the tolerance.
type Degraded struct {
	name  string
	count int
}

func NewDegraded() *Degraded {
	return &Degraded{name: "degraded"}
}

func (d *Degraded) Name() string { return d.name }

func (d *Degraded) Observe(seqs *dynamo.Sequences, rep dynamo.Report, ctx *dynamo.Context) {
	if rep.Degraded {
		d.count++
	}
}

func (d *Degraded) Value() float64 { return float64(d.count) }

func (d *Degraded) Reset() { d.count = 0 }

// MaxError tracks the largest error estimate of any accepted sub-interval.
type MaxError struct {
	name string
	max  float64
}

func NewMaxError() *MaxError {
	return &MaxError{name: "max_error"}
}

func (m *MaxError) Name() string { return m.name }

func (m *MaxError) Observe(seqs *dynamo.Sequences, rep dynamo.Report, ctx *dynamo.Context) {
	m.max = math.Max(m.max, rep.MaxError)
}

func (m *MaxError) Value() float64 { return m.max }

func (m *MaxError) Reset() { m.max = 0 }
