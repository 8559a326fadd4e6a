package models

import "github.com/san-kum/elsim/internal/dynamo"

// Threshold drains a storage at the constant rate K as long as it holds
// water. The outflow law is discontinuous at S = 0.
type Threshold struct {
	unit
	K float64

	S   *dynamo.State
	QIn *dynamo.Flux
	Q   *dynamo.Flux
}

func NewThreshold(k, s0 float64, inflow []float64) *Threshold {
	m := &Threshold{unit: newUnit(inflow), K: k}
	m.S = m.seqs.AddState("s", s0)
	m.QIn = m.seqs.AddFlux("qin", true)
	m.Q = m.seqs.AddFlux("q", true)
	m.methods = dynamo.Methods{
		Partial: []dynamo.Term{
			{Name: "calc_qin", Fn: m.CalcQIn},
			{Name: "calc_q", Fn: m.CalcQ},
		},
		Full: []dynamo.Term{
			{Name: "calc_s", Fn: m.CalcS},
		},
	}
	return m
}

func (m *Threshold) CalcQIn(ctx *dynamo.Context) error {
	v, err := m.input(ctx)
	if err != nil {
		return err
	}
	m.QIn.Value = v
	return nil
}

func (m *Threshold) CalcQ(ctx *dynamo.Context) error {
	m.Q.Value = m.rate(m.S.New)
	return nil
}

func (m *Threshold) CalcS(ctx *dynamo.Context) error {
	m.S.New = m.S.Old + m.QIn.Value - m.Q.Value
	return nil
}

func (m *Threshold) rate(s float64) float64 {
	if s > 0 {
		return m.K
	}
	return 0
}

func (m *Threshold) StateDim() int { return 1 }

func (m *Threshold) Derive(ctx *dynamo.Context, x dynamo.Vector) dynamo.Vector {
	return dynamo.Vector{m.inputOrZero(ctx) - m.rate(x[0])}
}
