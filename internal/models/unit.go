// Package models holds small lumped units used to exercise the solver:
// storages draining through linear, nonlinear or discontinuous outflow
// laws. Rates are expressed per outer time step.
package models

import (
	"errors"
	"fmt"

	"github.com/san-kum/elsim/internal/dynamo"
)

var ErrMissingInput = errors.New("models: no input for simulation index")

type unit struct {
	seqs    *dynamo.Sequences
	methods dynamo.Methods
	inflow  []float64
}

func newUnit(inflow []float64) unit {
	return unit{seqs: dynamo.NewSequences(), inflow: inflow}
}

func (u *unit) Sequences() *dynamo.Sequences { return u.seqs }
func (u *unit) Methods() dynamo.Methods      { return u.methods }

// input returns the inflow rate of the current outer step. Units without an
// inflow series receive none.
func (u *unit) input(ctx *dynamo.Context) (float64, error) {
	if len(u.inflow) == 0 {
		return 0, nil
	}
	if ctx.SimIndex < 0 || ctx.SimIndex >= len(u.inflow) {
		return 0, fmt.Errorf("%w: index %d, series length %d", ErrMissingInput, ctx.SimIndex, len(u.inflow))
	}
	return u.inflow[ctx.SimIndex], nil
}

// inputOrZero serves the analytic derivative, which has no error return.
func (u *unit) inputOrZero(ctx *dynamo.Context) float64 {
	v, err := u.input(ctx)
	if err != nil {
		return 0
	}
	return v
}
