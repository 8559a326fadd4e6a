package models

import (
	"fmt"
	"math"

	"github.com/san-kum/elsim/internal/dynamo"
)

// Nonlinear is a storage with power-law outflow: Q = K*S^B for S > 0.
type Nonlinear struct {
	unit
	K, B float64

	S   *dynamo.State
	QIn *dynamo.Flux
	Q   *dynamo.Flux
}

func NewNonlinear(k, b, s0 float64, inflow []float64) (*Nonlinear, error) {
	if !(b > 0) {
		return nil, fmt.Errorf("models: exponent b must be positive, got %g", b)
	}
	m := &Nonlinear{unit: newUnit(inflow), K: k, B: b}
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
	return m, nil
}

func (m *Nonlinear) CalcQIn(ctx *dynamo.Context) error {
	v, err := m.input(ctx)
	if err != nil {
		return err
	}
	m.QIn.Value = v
	return nil
}

func (m *Nonlinear) CalcQ(ctx *dynamo.Context) error {
	m.Q.Value = m.rate(m.S.New)
	return nil
}

func (m *Nonlinear) CalcS(ctx *dynamo.Context) error {
	m.S.New = m.S.Old + m.QIn.Value - m.Q.Value
	return nil
}

func (m *Nonlinear) rate(s float64) float64 {
	if s <= 0 {
		return 0
	}
	return m.K * math.Pow(s, m.B)
}

func (m *Nonlinear) StateDim() int { return 1 }

func (m *Nonlinear) Derive(ctx *dynamo.Context, x dynamo.Vector) dynamo.Vector {
	return dynamo.Vector{m.inputOrZero(ctx) - m.rate(x[0])}
}
