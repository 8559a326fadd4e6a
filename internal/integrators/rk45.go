package integrators

import (
	"math"

	"github.com/san-kum/elsim/internal/dynamo"
)

// Dormand-Prince coefficients (RK45)
var (
	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

// RK45 is the adaptive Dormand-Prince 5(4) pair. The units are autonomous
// within an outer step, so stage times are not passed on.
type RK45 struct {
	Tolerance float64
	InitialDt float64
	MinDt     float64

	safety   float64
	minScale float64
	maxScale float64
}

func NewRK45(tol float64) *RK45 {
	return &RK45{
		Tolerance: tol,
		InitialDt: 0.1,
		MinDt:     1e-8,
		safety:    0.9,
		minScale:  0.2,
		maxScale:  10.0,
	}
}

func (r *RK45) Integrate(ctx *dynamo.Context, sys dynamo.System, x dynamo.Vector) (dynamo.Vector, int) {
	t, dt := 0.0, r.InitialDt
	calls := 0
	for t < 1-intervalEpsilon {
		dt = math.Min(dt, 1-t)
		xNew, dtNew, ratio := r.StepAdaptive(ctx, sys, x, dt)
		calls += 7
		if ratio <= 1 || dt <= r.MinDt {
			x = xNew
			t += dt
		}
		dt = math.Max(dtNew, r.MinDt)
	}
	return x, calls
}

// StepAdaptive performs one trial step and returns the fifth order result,
// the proposed next step size and the error ratio (accept when <= 1).
func (r *RK45) StepAdaptive(ctx *dynamo.Context, sys dynamo.System, x dynamo.Vector, dt float64) (dynamo.Vector, float64, float64) {
	n := len(x)

	k1 := sys.Derive(ctx, x)

	x2 := make(dynamo.Vector, n)
	for i := 0; i < n; i++ {
		x2[i] = x[i] + dt*b21*k1[i]
	}
	k2 := sys.Derive(ctx, x2)

	x3 := make(dynamo.Vector, n)
	for i := 0; i < n; i++ {
		x3[i] = x[i] + dt*(b31*k1[i]+b32*k2[i])
	}
	k3 := sys.Derive(ctx, x3)

	x4 := make(dynamo.Vector, n)
	for i := 0; i < n; i++ {
		x4[i] = x[i] + dt*(b41*k1[i]+b42*k2[i]+b43*k3[i])
	}
	k4 := sys.Derive(ctx, x4)

	x5 := make(dynamo.Vector, n)
	for i := 0; i < n; i++ {
		x5[i] = x[i] + dt*(b51*k1[i]+b52*k2[i]+b53*k3[i]+b54*k4[i])
	}
	k5 := sys.Derive(ctx, x5)

	x6 := make(dynamo.Vector, n)
	for i := 0; i < n; i++ {
		x6[i] = x[i] + dt*(b61*k1[i]+b62*k2[i]+b63*k3[i]+b64*k4[i]+b65*k5[i])
	}
	k6 := sys.Derive(ctx, x6)

	xNew := make(dynamo.Vector, n)
	for i := 0; i < n; i++ {
		xNew[i] = x[i] + dt*(c1*k1[i]+c3*k3[i]+c4*k4[i]+c5*k5[i]+c6*k6[i])
	}

	k7 := sys.Derive(ctx, xNew)

	errMax := 0.0
	for i := 0; i < n; i++ {
		errEst := dt * (dc1*k1[i] + dc3*k3[i] + dc4*k4[i] + dc5*k5[i] + dc6*k6[i] + dc7*k7[i])
		scale := math.Abs(x[i]) + math.Abs(dt*k1[i]) + 1e-10
		errMax = math.Max(errMax, math.Abs(errEst)/scale)
	}

	errRatio := errMax / r.Tolerance

	var dtNew float64
	if errRatio > 1 {
		scale := math.Max(r.minScale, r.safety*math.Pow(errRatio, -0.25))
		dtNew = dt * scale
	} else {
		if errRatio > 0 {
			scale := math.Min(r.maxScale, r.safety*math.Pow(errRatio, -0.2))
			dtNew = dt * scale
		} else {
			dtNew = dt * r.maxScale
		}
	}

	return xNew, dtNew, errRatio
}
