package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/elsim/internal/dynamo"
	"github.com/san-kum/elsim/internal/models"
)

type oscillator struct{}

func (o *oscillator) Derive(ctx *dynamo.Context, x dynamo.Vector) dynamo.Vector {
	return dynamo.Vector{x[1], -x[0]}
}

func (o *oscillator) StateDim() int { return 2 }

func TestRK4Accuracy(t *testing.T) {
	integ := NewRK4(100)
	ctx := dynamo.DefaultContext()

	x, calls := integ.Integrate(ctx, &oscillator{}, dynamo.Vector{1.0, 0.0})

	if calls != 400 {
		t.Errorf("expected 400 evaluations, got %d", calls)
	}
	if math.Abs(x[0]-math.Cos(1)) > 1e-8 {
		t.Errorf("position error too large: got %.10f, expected %.10f", x[0], math.Cos(1))
	}
	if math.Abs(x[1]+math.Sin(1)) > 1e-8 {
		t.Errorf("velocity error too large: got %.10f, expected %.10f", x[1], -math.Sin(1))
	}
}

func TestRK4LinearStorage(t *testing.T) {
	tests := []struct {
		name  string
		k     float64
		steps int
		tol   float64
	}{
		{"slow", 0.1, 1, 1e-6},
		{"medium", 0.5, 4, 1e-6},
		{"fast", 2.0, 10, 1e-5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := models.NewLinear(tt.k, 1.0, nil)
			x, _ := NewRK4(tt.steps).Integrate(dynamo.DefaultContext(), unit, dynamo.Vector{1.0})
			if math.Abs(x[0]-math.Exp(-tt.k)) > tt.tol {
				t.Errorf("got %.10f, expected %.10f", x[0], math.Exp(-tt.k))
			}
		})
	}
}

func TestRK4ClampsSteps(t *testing.T) {
	if NewRK4(0).Steps != 1 {
		t.Error("expected at least one step")
	}
}
