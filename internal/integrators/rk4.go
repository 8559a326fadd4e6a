package integrators

import "github.com/san-kum/elsim/internal/dynamo"

// Reference integrates the analytic derivative of a unit over one
// normalized outer step. It returns the final state and the number of
// derivative evaluations.
type Reference interface {
	Integrate(ctx *dynamo.Context, sys dynamo.System, x dynamo.Vector) (dynamo.Vector, int)
}

// RK4 is the classic fixed-step fourth order scheme with Steps equal
// sub-steps per outer step.
type RK4 struct {
	Steps int

	k1, k2, k3, k4 dynamo.Vector
	scratch        dynamo.Vector
}

func NewRK4(steps int) *RK4 {
	if steps < 1 {
		steps = 1
	}
	return &RK4{Steps: steps}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(dynamo.Vector, n)
		r.k2 = make(dynamo.Vector, n)
		r.k3 = make(dynamo.Vector, n)
		r.k4 = make(dynamo.Vector, n)
		r.scratch = make(dynamo.Vector, n)
	}
}

func (r *RK4) Integrate(ctx *dynamo.Context, sys dynamo.System, x dynamo.Vector) (dynamo.Vector, int) {
	dt := 1.0 / float64(r.Steps)
	for i := 0; i < r.Steps; i++ {
		x = r.Step(ctx, sys, x, dt)
	}
	return x, 4 * r.Steps
}

func (r *RK4) Step(ctx *dynamo.Context, sys dynamo.System, x dynamo.Vector, dt float64) dynamo.Vector {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k1, sys.Derive(ctx, x))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	copy(r.k2, sys.Derive(ctx, r.scratch))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	copy(r.k3, sys.Derive(ctx, r.scratch))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	copy(r.k4, sys.Derive(ctx, r.scratch))

	result := make(dynamo.Vector, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}

	return result
}
