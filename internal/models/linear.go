package models

import "github.com/san-kum/elsim/internal/dynamo"

// Linear is a single storage with outflow proportional to its content:
// dS/dt = I - K*S. The outflow law is continuous but stiff for large K.
type Linear struct {
	unit
	K float64

	S   *dynamo.State
	QIn *dynamo.Flux
	Q   *dynamo.Flux
}

func NewLinear(k, s0 float64, inflow []float64) *Linear {
	l := &Linear{unit: newUnit(inflow), K: k}
	l.S = l.seqs.AddState("s", s0)
	l.QIn = l.seqs.AddFlux("qin", true)
	l.Q = l.seqs.AddFlux("q", true)
	l.methods = dynamo.Methods{
		Partial: []dynamo.Term{
			{Name: "calc_qin", Fn: l.CalcQIn},
			{Name: "calc_q", Fn: l.CalcQ},
		},
		Full: []dynamo.Term{
			{Name: "calc_s", Fn: l.CalcS},
		},
	}
	return l
}

func (l *Linear) CalcQIn(ctx *dynamo.Context) error {
	v, err := l.input(ctx)
	if err != nil {
		return err
	}
	l.QIn.Value = v
	return nil
}

// CalcQ computes the outflow rate: Q = K*S.
func (l *Linear) CalcQ(ctx *dynamo.Context) error {
	l.Q.Value = l.K * l.S.New
	return nil
}

// CalcS updates the storage from the integrated fluxes: S = S_old + QIn - Q.
func (l *Linear) CalcS(ctx *dynamo.Context) error {
	l.S.New = l.S.Old + l.QIn.Value - l.Q.Value
	return nil
}

func (l *Linear) StateDim() int { return 1 }

func (l *Linear) Derive(ctx *dynamo.Context, x dynamo.Vector) dynamo.Vector {
	return dynamo.Vector{l.inputOrZero(ctx) - l.K*x[0]}
}
