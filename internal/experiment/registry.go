package experiment

import (
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/elsim/internal/dynamo"
	"github.com/san-kum/elsim/internal/integrators"
	"github.com/san-kum/elsim/internal/metrics"
	"github.com/san-kum/elsim/internal/models"
)

var (
	ErrUnknownUnit      = errors.New("experiment: unknown unit")
	ErrUnknownParam     = errors.New("experiment: unknown parameter")
	ErrUnknownReference = errors.New("experiment: unknown reference integrator")
)

// Unit is a lumped model that also exposes its analytic derivative.
type Unit interface {
	dynamo.Model
	dynamo.System
}

// UnitSpec describes a registered unit: its default parameters and initial
// states and how to build it.
type UnitSpec struct {
	Description string
	Params      map[string]float64
	Initial     map[string]float64
	Build       func(params, initial map[string]float64, inflow []float64) (Unit, error)
}

type Registry struct {
	units      map[string]UnitSpec
	references map[string]func(tol float64) integrators.Reference
}

func NewRegistry() *Registry {
	r := &Registry{
		units:      make(map[string]UnitSpec),
		references: make(map[string]func(tol float64) integrators.Reference),
	}

	r.units["linear"] = UnitSpec{
		Description: "linear storage, q = k*s",
		Params:      map[string]float64{"k": 0.5},
		Initial:     map[string]float64{"s": 1.0},
		Build: func(p, x map[string]float64, inflow []float64) (Unit, error) {
			return models.NewLinear(p["k"], x["s"], inflow), nil
		},
	}
	r.units["threshold"] = UnitSpec{
		Description: "storage with constant outflow k while filled",
		Params:      map[string]float64{"k": 0.6},
		Initial:     map[string]float64{"s": 1.0},
		Build: func(p, x map[string]float64, inflow []float64) (Unit, error) {
			return models.NewThreshold(p["k"], x["s"], inflow), nil
		},
	}
	r.units["nonlinear"] = UnitSpec{
		Description: "power-law storage, q = k*s^b",
		Params:      map[string]float64{"k": 0.5, "b": 2.0},
		Initial:     map[string]float64{"s": 1.0},
		Build: func(p, x map[string]float64, inflow []float64) (Unit, error) {
			return models.NewNonlinear(p["k"], p["b"], x["s"], inflow)
		},
	}
	r.units["cascade"] = UnitSpec{
		Description: "two linear storages in series",
		Params:      map[string]float64{"k1": 0.4, "k2": 0.2},
		Initial:     map[string]float64{"s1": 1.0, "s2": 0.0},
		Build: func(p, x map[string]float64, inflow []float64) (Unit, error) {
			return models.NewCascade(p["k1"], p["k2"], x["s1"], x["s2"], inflow), nil
		},
	}

	r.references["rk4"] = func(tol float64) integrators.Reference { return integrators.NewRK4(10) }
	r.references["rk45"] = func(tol float64) integrators.Reference { return integrators.NewRK45(tol) }

	return r
}

func (r *Registry) Spec(name string) (UnitSpec, error) {
	spec, ok := r.units[name]
	if !ok {
		return UnitSpec{}, fmt.Errorf("%w: %s", ErrUnknownUnit, name)
	}
	return spec, nil
}

// GetUnit builds a unit, overriding its defaults with params and initial.
func (r *Registry) GetUnit(name string, params, initial map[string]float64, inflow []float64) (Unit, error) {
	spec, err := r.Spec(name)
	if err != nil {
		return nil, err
	}
	p, err := merge(name, spec.Params, params)
	if err != nil {
		return nil, err
	}
	x, err := merge(name, spec.Initial, initial)
	if err != nil {
		return nil, err
	}
	return spec.Build(p, x, inflow)
}

func (r *Registry) GetReference(name string, tol float64) (integrators.Reference, error) {
	fn, ok := r.references[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReference, name)
	}
	return fn(tol), nil
}

func (r *Registry) ListUnits() []string {
	return sortedKeys(r.units)
}

func (r *Registry) ListReferences() []string {
	return sortedKeys(r.references)
}

// DefaultMetrics returns the solver diagnostics every run records, plus an
// RMSE against observed when a target is given.
func (r *Registry) DefaultMetrics(target string, observed []float64) []dynamo.Metric {
	ms := []dynamo.Metric{
		metrics.NewCalls(),
		metrics.NewMeanOrder(),
		metrics.NewDegraded(),
		metrics.NewMaxError(),
	}
	if target != "" && len(observed) > 0 {
		ms = append(ms, metrics.NewRMSE(target, observed))
	}
	return ms
}

func merge(unit string, defaults, overrides map[string]float64) (map[string]float64, error) {
	out := make(map[string]float64, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		if _, ok := defaults[k]; !ok {
			return nil, fmt.Errorf("%w: %s has no %q", ErrUnknownParam, unit, k)
		}
		out[k] = v
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
