package dynamo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Vector is a plain slice of state values, used where the old/new double
// buffer of [State] is not needed (reference integrators, recorded results).
type Vector []float64

func (v Vector) Clone() Vector {
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

func (v Vector) IsValid() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (v Vector) Norm() float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 2)
}

func (v Vector) Sub(other Vector) Vector {
	result := v.Clone()
	n := len(v)
	if len(other) < n {
		n = len(other)
	}
	floats.Sub(result[:n], other[:n])
	return result
}

// System is a unit that can also state its right-hand side as an analytic
// derivative dx/dt = f(x). Reference integrators work on this form.
type System interface {
	Derive(ctx *Context, x Vector) Vector
	StateDim() int
}

// Term is one right-hand-side callable of a unit.
type Term struct {
	Name string
	Fn   func(ctx *Context) error
}

// Methods groups the terms of a unit in registration order. Partial terms
// compute stage rates from the current states; full terms turn integrated
// fluxes into new state values.
type Methods struct {
	Partial []Term
	Full    []Term
}

// Model is a lumped simulation unit.
type Model interface {
	Sequences() *Sequences
	Methods() Methods
}

// Solver advances a bound model over one outer time step.
type Solver interface {
	Solve(ctx *Context) (Report, error)
}

type Metric interface {
	Name() string
	Observe(seqs *Sequences, rep Report, ctx *Context)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(seqs *Sequences, rep Report, ctx *Context)
}

// Context carries the solver parameters and the simulation index into
// Solve and into every term.
type Context struct {
	AbsErrorMax float64
	RelDtMin    float64
	SimIndex    int
}

func DefaultContext() *Context {
	return &Context{
		AbsErrorMax: 0.01,
		RelDtMin:    0.001,
	}
}

func (c *Context) Validate() error {
	if !(c.AbsErrorMax > 0) || math.IsInf(c.AbsErrorMax, 0) {
		return fmt.Errorf("%w: got %g", ErrInvalidTolerance, c.AbsErrorMax)
	}
	if !(c.RelDtMin > 0) || c.RelDtMin > 1 {
		return fmt.Errorf("%w: got %g", ErrInvalidMinStep, c.RelDtMin)
	}
	return nil
}

// Report summarises one call of Solve.
type Report struct {
	// Calls is the number of partial term evaluations.
	Calls int
	// Step is the size of the last accepted sub-interval.
	Step float64
	// Method is the method order of the last accepted sub-interval.
	Method int
	// SubSteps counts accepted sub-intervals.
	SubSteps int
	// Rejected counts sub-interval attempts that shrank the step.
	Rejected int
	// Degraded is set when at least one sub-interval was accepted at the
	// minimum step without meeting the tolerance.
	Degraded      bool
	DegradedSteps int
	// MaxError is the largest error estimate of an accepted sub-interval.
	MaxError float64
}
