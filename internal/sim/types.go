package sim

import (
	"fmt"

	"github.com/san-kum/elsim/internal/dynamo"
)

// Config controls one simulation run of Steps outer time steps.
type Config struct {
	Steps         int
	AbsErrorMax   float64
	RelDtMin      float64
	ValidateState bool
}

func DefaultConfig() Config {
	ctx := dynamo.DefaultContext()
	return Config{
		Steps:         24,
		AbsErrorMax:   ctx.AbsErrorMax,
		RelDtMin:      ctx.RelDtMin,
		ValidateState: true,
	}
}

func (c Config) context() *dynamo.Context {
	return &dynamo.Context{AbsErrorMax: c.AbsErrorMax, RelDtMin: c.RelDtMin}
}

// Result holds the recorded trajectory. States has one more entry than
// Fluxes and Reports: the initial conditions.
type Result struct {
	StateNames []string
	FluxNames  []string
	States     []dynamo.Vector
	Fluxes     []dynamo.Vector
	Reports    []dynamo.Report
	Metrics    map[string]float64
	StepsTaken int
	Calls      int
}

func (r *Result) FinalState() dynamo.Vector {
	if len(r.States) == 0 {
		return nil
	}
	return r.States[len(r.States)-1]
}

// Series returns the recorded values of a state or flux by name. State
// series include the initial value.
func (r *Result) Series(name string) ([]float64, error) {
	for i, n := range r.StateNames {
		if n == name {
			return column(r.States, i), nil
		}
	}
	for i, n := range r.FluxNames {
		if n == name {
			return column(r.Fluxes, i), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", dynamo.ErrUnknownSequence, name)
}

// DegradedSteps counts the outer steps with at least one sub-interval
// accepted beyond the tolerance.
func (r *Result) DegradedSteps() int {
	n := 0
	for _, rep := range r.Reports {
		if rep.Degraded {
			n++
		}
	}
	return n
}

func column(rows []dynamo.Vector, i int) []float64 {
	out := make([]float64, len(rows))
	for j, row := range rows {
		out[j] = row[i]
	}
	return out
}
