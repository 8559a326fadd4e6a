package metrics

import "github.com/san-kum/elsim/internal/dynamo"

// Calls sums the right-hand-side evaluations of all outer steps.
type Calls struct {
	name  string
	total int
}

func NewCalls() *Calls {
	return &Calls{name: "calls"}
}

func (c *Calls) Name() string { return c.name }

func (c *Calls) Observe(seqs *dynamo.Sequences, rep dynamo.Report, ctx *dynamo.Context) {
	c.total += rep.Calls
}

func (c *Calls) Value() float64 { return float64(c.total) }

func (c *Calls) Reset() { c.total = 0 }

// MeanOrder averages the method order of the last accepted sub-interval
// of every outer step.
type MeanOrder struct {
	name    string
	sum     float64
	samples int
}

func NewMeanOrder() *MeanOrder {
	return &MeanOrder{name: "mean_order"}
}

func (m *MeanOrder) Name() string { return m.name }

func (m *MeanOrder) Observe(seqs *dynamo.Sequences, rep dynamo.Report, ctx *dynamo.Context) {
	m.sum += float64(rep.Method)
	m.samples++
}

func (m *MeanOrder) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *MeanOrder) Reset() {
	m.sum = 0
	m.samples = 0
}
