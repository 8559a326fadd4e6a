// Package tableau builds and stores the coefficient table of the Explicit
// Lobatto Sequence.
//
// Method m (1-based) interpolates the stage rates known at the m Lobatto
// nodes of [0, 1] and integrates that polynomial up to each of the m+1
// Lobatto nodes, yielding the stage values of the next method. Every method
// is therefore one fixed-point sweep of a Lobatto IIIA collocation scheme
// and gains one order over its predecessor.
package tableau

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/elsim/internal/dynamo"
)

const (
	DefaultMethods    = 10
	DefaultDtIncrease = 2.0
	DefaultDtDecrease = 10.0

	// MaxMethods bounds generated tables; beyond it the Lagrange basis on
	// Lobatto nodes loses too many digits to be useful.
	MaxMethods = 16
)

// Constants is the read-only coefficient table shared by every solver of a
// model type.
type Constants struct {
	Methods    int
	Stages     int
	DtIncrease float64
	DtDecrease float64

	coefs []float64
}

var (
	defaultOnce   sync.Once
	defaultConsts *Constants
)

// Default returns the process-wide table with DefaultMethods methods.
func Default() *Constants {
	defaultOnce.Do(func() {
		c, err := New(DefaultMethods)
		if err != nil {
			panic(err)
		}
		defaultConsts = c
	})
	return defaultConsts
}

// New generates the table for the given number of methods.
func New(methods int) (*Constants, error) {
	if methods < 2 || methods > MaxMethods {
		return nil, fmt.Errorf("%w: %d methods (want 2..%d)", dynamo.ErrMethodCount, methods, MaxMethods)
	}

	c := newConstants(methods)
	for m := 1; m <= methods; m++ {
		fluxNodes, err := LobattoNodes(m)
		if err != nil {
			return nil, err
		}
		stageNodes, err := LobattoNodes(m + 1)
		if err != nil {
			return nil, err
		}
		for s := 1; s <= m; s++ {
			row := c.Row(m-1, s)
			for k := 0; k < m; k++ {
				basis := lagrange(fluxNodes, k)
				row[k] = quad.Fixed(basis, 0, stageNodes[s], m+1, quad.Legendre{}, 0)
			}
		}
	}
	return c, nil
}

func newConstants(methods int) *Constants {
	stages := methods + 1
	return &Constants{
		Methods:    methods,
		Stages:     stages,
		DtIncrease: DefaultDtIncrease,
		DtDecrease: DefaultDtDecrease,
		coefs:      make([]float64, methods*(stages+1)*stages),
	}
}

// Row returns the weights of stage s of the method with zero-based index m.
// The returned slice aliases the table and must not be modified by callers
// other than the constructors of this package.
func (c *Constants) Row(m, s int) []float64 {
	off := (m*(c.Stages+1) + s) * c.Stages
	return c.coefs[off : off+c.Stages]
}

// At returns a single coefficient.
func (c *Constants) At(m, s, k int) float64 {
	return c.coefs[(m*(c.Stages+1)+s)*c.Stages+k]
}

// Validate checks the structural invariants of an explicit table: row 0 is
// zero, stage s of method m only weighs the first m rates and the final
// stage integrates over the whole interval.
func (c *Constants) Validate() error {
	if c.Stages != c.Methods+1 {
		return fmt.Errorf("%w: %d stages for %d methods", dynamo.ErrTableauMismatch, c.Stages, c.Methods)
	}
	for m := 0; m < c.Methods; m++ {
		for k, v := range c.Row(m, 0) {
			if v != 0 {
				return fmt.Errorf("%w: method %d row 0 weight %d is %g", dynamo.ErrTableauMismatch, m+1, k, v)
			}
		}
		last := c.Row(m, m+1)
		sum := 0.0
		for k, v := range last {
			if k > m && v != 0 {
				return fmt.Errorf("%w: method %d uses rate %d", dynamo.ErrTableauMismatch, m+1, k)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-8 {
			return fmt.Errorf("%w: method %d weights sum to %g", dynamo.ErrTableauMismatch, m+1, sum)
		}
	}
	return nil
}

// LobattoNodes returns the n Gauss-Lobatto nodes mapped to [0, 1] in
// ascending order. A single node degenerates to the left end point.
func LobattoNodes(n int) ([]float64, error) {
	switch {
	case n < 1:
		return nil, fmt.Errorf("%w: %d Lobatto nodes", dynamo.ErrMethodCount, n)
	case n == 1:
		return []float64{0}, nil
	case n == 2:
		return []float64{0, 1}, nil
	}

	// Interior nodes are the roots of P'_{n-1}, i.e. of the Jacobi(1,1)
	// polynomial of degree n-2: eigenvalues of its Jacobi matrix.
	dim := n - 2
	jac := mat.NewSymDense(dim, nil)
	for k := 1; k < dim; k++ {
		kf := float64(k)
		b := math.Sqrt(kf * (kf + 2) / ((2*kf + 1) * (2*kf + 3)))
		jac.SetSym(k-1, k, b)
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(jac, false); !ok {
		return nil, fmt.Errorf("tableau: eigen decomposition failed for %d Lobatto nodes", n)
	}
	roots := eig.Values(nil)

	nodes := make([]float64, 0, n)
	nodes = append(nodes, 0)
	for _, r := range roots {
		nodes = append(nodes, (r+1)/2)
	}
	nodes = append(nodes, 1)
	return nodes, nil
}

func lagrange(nodes []float64, k int) func(float64) float64 {
	return func(t float64) float64 {
		v := 1.0
		for j, x := range nodes {
			if j != k {
				v *= (t - x) / (nodes[k] - x)
			}
		}
		return v
	}
}
