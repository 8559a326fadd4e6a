package integrators

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// GetPointStates loads the stage values of the current stage into New.
func (e *ELS) GetPointStates() {
	s := e.Vars.StageIndex
	for _, st := range e.seqs.States {
		st.New = st.Points[s]
	}
}

// SetPointStates stores New as the value of the current stage.
func (e *ELS) SetPointStates() {
	s := e.Vars.StageIndex
	for _, st := range e.seqs.States {
		st.Points[s] = st.New
	}
}

// SetResultStates stores New as the result of the current method.
func (e *ELS) SetResultStates() {
	m := e.Vars.MethodIndex
	for _, st := range e.seqs.States {
		st.Results[m] = st.New
	}
}

// SetPointFluxes stores the current rates as the rates of the current stage.
func (e *ELS) SetPointFluxes() {
	s := e.Vars.StageIndex
	for _, f := range e.seqs.NumericFluxes() {
		f.Points[s] = f.Value
	}
}

// SetResultFluxes stores the current integrated fluxes as the result of the
// current method.
func (e *ELS) SetResultFluxes() {
	m := e.Vars.MethodIndex
	for _, f := range e.seqs.NumericFluxes() {
		f.Results[m] = f.Value
	}
}

// IntegrateFluxes replaces every numeric flux by its integral over the
// current sub-interval up to the current stage, weighing the stage rates
// with the table row of the current method.
func (e *ELS) IntegrateFluxes() {
	m, s := e.Vars.MethodIndex, e.Vars.StageIndex
	row := e.consts.Row(m-1, s)[:m]
	for _, f := range e.seqs.NumericFluxes() {
		f.Value = e.Vars.Step * floats.Dot(row, f.Points[:m])
	}
}

func (e *ELS) ResetSumFluxes() {
	for _, f := range e.seqs.NumericFluxes() {
		f.Sum = 0
	}
}

// GetSumFluxes publishes the totals accumulated over all sub-intervals.
func (e *ELS) GetSumFluxes() {
	for _, f := range e.seqs.NumericFluxes() {
		f.Value = f.Sum
	}
}

func (e *ELS) AddUpFluxes() {
	for _, f := range e.seqs.NumericFluxes() {
		f.Sum += f.Value
	}
}

// CalculateError sets Error to the largest absolute difference between the
// flux results of the current and the previous method. It needs a method
// index of at least one; for index one the "previous" result is the rate
// snapshot of the first stage and the value is informational only.
func (e *ELS) CalculateError() {
	m := e.Vars.MethodIndex
	e.Vars.Error = 0
	if m < 1 {
		return
	}
	for _, f := range e.seqs.NumericFluxes() {
		e.Vars.Error = math.Max(e.Vars.Error, math.Abs(f.Results[m]-f.Results[m-1]))
	}
}

// ExtrapolateError estimates the error of the highest method from the last
// two error estimates, assuming it decays geometrically with the order.
func (e *ELS) ExtrapolateError() {
	v := &e.Vars
	if v.MethodIndex <= 2 {
		v.ExtrapolatedError = noExtrapolation
		return
	}
	logErr := math.Log(v.Error)
	v.ExtrapolatedError = math.Exp(logErr + (logErr-math.Log(v.LastError))*float64(e.methods-v.MethodIndex))
}

// New2Old commits the new state values.
func (e *ELS) New2Old() {
	for _, st := range e.seqs.States {
		st.Old = st.New
	}
}
