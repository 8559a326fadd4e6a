package models

import "github.com/san-kum/elsim/internal/dynamo"

// Cascade routes inflow through two linear storages in series. Total is a
// diagnostic flux outside error control, computed after the storages so it
// matches the committed states once a step is solved.
type Cascade struct {
	unit
	K1, K2 float64

	S1, S2 *dynamo.State
	QIn    *dynamo.Flux
	Q1, Q2 *dynamo.Flux
	Total  *dynamo.Flux
}

func NewCascade(k1, k2, s1, s2 float64, inflow []float64) *Cascade {
	c := &Cascade{unit: newUnit(inflow), K1: k1, K2: k2}
	c.S1 = c.seqs.AddState("s1", s1)
	c.S2 = c.seqs.AddState("s2", s2)
	c.QIn = c.seqs.AddFlux("qin", true)
	c.Q1 = c.seqs.AddFlux("q1", true)
	c.Q2 = c.seqs.AddFlux("q2", true)
	c.Total = c.seqs.AddFlux("total", false)
	c.methods = dynamo.Methods{
		Partial: []dynamo.Term{
			{Name: "calc_qin", Fn: c.CalcQIn},
			{Name: "calc_q1", Fn: c.CalcQ1},
			{Name: "calc_q2", Fn: c.CalcQ2},
		},
		Full: []dynamo.Term{
			{Name: "calc_s1", Fn: c.CalcS1},
			{Name: "calc_s2", Fn: c.CalcS2},
			{Name: "calc_total", Fn: c.CalcTotal},
		},
	}
	return c
}

func (c *Cascade) CalcQIn(ctx *dynamo.Context) error {
	v, err := c.input(ctx)
	if err != nil {
		return err
	}
	c.QIn.Value = v
	return nil
}

func (c *Cascade) CalcQ1(ctx *dynamo.Context) error {
	c.Q1.Value = c.K1 * c.S1.New
	return nil
}

func (c *Cascade) CalcQ2(ctx *dynamo.Context) error {
	c.Q2.Value = c.K2 * c.S2.New
	return nil
}

func (c *Cascade) CalcTotal(ctx *dynamo.Context) error {
	c.Total.Value = c.S1.New + c.S2.New
	return nil
}

func (c *Cascade) CalcS1(ctx *dynamo.Context) error {
	c.S1.New = c.S1.Old + c.QIn.Value - c.Q1.Value
	return nil
}

func (c *Cascade) CalcS2(ctx *dynamo.Context) error {
	c.S2.New = c.S2.Old + c.Q1.Value - c.Q2.Value
	return nil
}

func (c *Cascade) StateDim() int { return 2 }

func (c *Cascade) Derive(ctx *dynamo.Context, x dynamo.Vector) dynamo.Vector {
	q1 := c.K1 * x[0]
	return dynamo.Vector{c.inputOrZero(ctx) - q1, q1 - c.K2*x[1]}
}
