package dynamo

import "fmt"

// State is an ODE state variable. Old holds the value at the start of the
// current sub-interval, New the value being computed.
type State struct {
	Name    string
	Old     float64
	New     float64
	Points  []float64
	Results []float64
}

// Flux is a rate variable. Numeric fluxes take part in integration and error
// control; the others are diagnostic values written by the terms only.
type Flux struct {
	Name    string
	Value   float64
	Numeric bool
	Points  []float64
	Results []float64
	Sum     float64
}

// Sequences holds the states and fluxes of one unit in declaration order.
type Sequences struct {
	States  []*State
	Fluxes  []*Flux
	numeric []*Flux
}

func NewSequences() *Sequences {
	return &Sequences{}
}

func (s *Sequences) AddState(name string, initial float64) *State {
	st := &State{Name: name, Old: initial, New: initial}
	s.States = append(s.States, st)
	return st
}

func (s *Sequences) AddFlux(name string, numeric bool) *Flux {
	f := &Flux{Name: name, Numeric: numeric}
	s.Fluxes = append(s.Fluxes, f)
	if numeric {
		s.numeric = append(s.numeric, f)
	}
	return f
}

// NumericFluxes returns the fluxes under error control.
func (s *Sequences) NumericFluxes() []*Flux {
	return s.numeric
}

// Allocate sizes the stage and method buffers. Results are indexed by the
// method order, so they hold methods+1 entries.
func (s *Sequences) Allocate(methods, stages int) {
	for _, st := range s.States {
		st.Points = make([]float64, stages)
		st.Results = make([]float64, methods+1)
	}
	for _, f := range s.numeric {
		f.Points = make([]float64, stages)
		f.Results = make([]float64, methods+1)
	}
}

func (s *Sequences) State(name string) (*State, error) {
	for _, st := range s.States {
		if st.Name == name {
			return st, nil
		}
	}
	return nil, fmt.Errorf("%w: state %q", ErrUnknownSequence, name)
}

func (s *Sequences) Flux(name string) (*Flux, error) {
	for _, f := range s.Fluxes {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: flux %q", ErrUnknownSequence, name)
}

// OldValues returns the committed state values.
func (s *Sequences) OldValues() Vector {
	v := make(Vector, len(s.States))
	for i, st := range s.States {
		v[i] = st.Old
	}
	return v
}

// SetValues overwrites both buffers of every state.
func (s *Sequences) SetValues(v Vector) error {
	if len(v) != len(s.States) {
		return fmt.Errorf("%w: got %d values for %d states", ErrDimensionMismatch, len(v), len(s.States))
	}
	for i, st := range s.States {
		st.Old = v[i]
		st.New = v[i]
	}
	return nil
}

// FluxValues returns the current value of every flux.
func (s *Sequences) FluxValues() Vector {
	v := make(Vector, len(s.Fluxes))
	for i, f := range s.Fluxes {
		v[i] = f.Value
	}
	return v
}

func (s *Sequences) StateNames() []string {
	names := make([]string, len(s.States))
	for i, st := range s.States {
		names[i] = st.Name
	}
	return names
}

func (s *Sequences) FluxNames() []string {
	names := make([]string, len(s.Fluxes))
	for i, f := range s.Fluxes {
		names[i] = f.Name
	}
	return names
}
