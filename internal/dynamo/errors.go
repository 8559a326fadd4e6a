package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for solver configuration and simulation runs.
var (
	// ErrInvalidState indicates a state vector with NaN or Inf values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrInvalidTolerance indicates a non-positive absolute error tolerance.
	ErrInvalidTolerance = errors.New("dynamo: absolute error tolerance must be positive")

	// ErrInvalidMinStep indicates a minimum relative step outside (0, 1].
	ErrInvalidMinStep = errors.New("dynamo: minimum relative step must be in (0, 1]")

	// ErrTableauMismatch indicates a coefficient table with unexpected dimensions.
	ErrTableauMismatch = errors.New("dynamo: coefficient table does not match method count")

	// ErrMethodCount indicates a method count the table cannot serve.
	ErrMethodCount = errors.New("dynamo: method count out of range")

	// ErrNoTerms indicates a model without partial or full terms.
	ErrNoTerms = errors.New("dynamo: model registers no partial or full terms")

	// ErrNoStates indicates a model without ODE states.
	ErrNoStates = errors.New("dynamo: model declares no ODE states")

	// ErrNoNumericFlux indicates a model without fluxes under error control.
	ErrNoNumericFlux = errors.New("dynamo: model declares no numeric flux")

	// ErrUnknownSequence indicates a lookup of an undeclared state or flux.
	ErrUnknownSequence = errors.New("dynamo: unknown sequence")

	// ErrDimensionMismatch indicates a vector whose length differs from the state count.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between vector and states")
)

// SimulationError wraps an error with the outer step it occurred in.
type SimulationError struct {
	Step    int
	State   Vector
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d: %v", e.Step, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
