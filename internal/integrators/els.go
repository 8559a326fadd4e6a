package integrators

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/san-kum/elsim/internal/dynamo"
	"github.com/san-kum/elsim/internal/tableau"
)

const (
	// intervalEpsilon guards the end of the normalized step against round-off.
	intervalEpsilon = 1e-14

	// noExtrapolation marks an extrapolated error that cannot be computed yet.
	noExtrapolation = -999.9
)

// Vars is the iteration state of one ELS solver.
type Vars struct {
	CallCount         int
	T0, T1            float64
	EstimatedStep     float64
	Step              float64
	MethodIndex       int
	StageIndex        int
	Error             float64
	LastError         float64
	ExtrapolatedError float64
	FirstStageReady   bool
}

// ELS integrates a lumped unit over one outer time step with the Explicit
// Lobatto Sequence: for every sub-interval it tries methods of increasing
// order, accepts the first whose result differs from its predecessor by
// less than the tolerance and adapts the sub-interval length.
//
// The scheme is explicit. On stiff or discontinuous units it may hit the
// minimum step and accept results beyond the tolerance; such steps are
// reported as degraded.
type ELS struct {
	Vars Vars

	seqs    *dynamo.Sequences
	terms   dynamo.Methods
	consts  *tableau.Constants
	methods int
	logger  *slog.Logger
}

type Option func(*ELS)

// WithLogger sets the logger for degraded-step warnings and debug traces.
func WithLogger(l *slog.Logger) Option {
	return func(e *ELS) { e.logger = l }
}

// WithMethods caps the highest method order below the table's.
func WithMethods(n int) Option {
	return func(e *ELS) { e.methods = n }
}

// NewELS binds a solver to a model and allocates the model's buffers.
func NewELS(model dynamo.Model, consts *tableau.Constants, opts ...Option) (*ELS, error) {
	e := &ELS{
		seqs:    model.Sequences(),
		terms:   model.Methods(),
		consts:  consts,
		methods: consts.Methods,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.methods < 2 || e.methods > consts.Methods {
		return nil, fmt.Errorf("%w: %d methods with a %d-method table", dynamo.ErrMethodCount, e.methods, consts.Methods)
	}
	if consts.Stages != consts.Methods+1 {
		return nil, fmt.Errorf("%w: %d stages", dynamo.ErrTableauMismatch, consts.Stages)
	}
	if len(e.terms.Partial) == 0 || len(e.terms.Full) == 0 {
		return nil, dynamo.ErrNoTerms
	}
	if len(e.seqs.States) == 0 {
		return nil, dynamo.ErrNoStates
	}
	if len(e.seqs.NumericFluxes()) == 0 {
		return nil, dynamo.ErrNoNumericFlux
	}

	e.seqs.Allocate(consts.Methods, consts.Stages)
	return e, nil
}

// Methods returns the highest method order the solver tries.
func (e *ELS) Methods() int { return e.methods }

// Solve advances the bound model over the normalized interval [0, 1].
// Errors of the model's terms are returned unchanged.
func (e *ELS) Solve(ctx *dynamo.Context) (dynamo.Report, error) {
	var rep dynamo.Report
	if !(ctx.RelDtMin > 0) {
		return rep, fmt.Errorf("%w: got %g", dynamo.ErrInvalidMinStep, ctx.RelDtMin)
	}

	v := &e.Vars
	v.CallCount = 0
	v.T0, v.T1 = 0, 1
	v.EstimatedStep = 1
	v.FirstStageReady = false
	e.ResetSumFluxes()

	for v.T0 < v.T1-intervalEpsilon {
		v.LastError = math.Inf(1)
		v.Step = math.Min(v.T1-v.T0, math.Max(v.EstimatedStep, ctx.RelDtMin))

		if !v.FirstStageReady {
			if err := e.evaluateSingleTerms(ctx); err != nil {
				return rep, err
			}
			v.MethodIndex = 0
			v.StageIndex = 0
			e.SetPointFluxes()
			e.SetPointStates()
			e.SetResultStates()
		}

		decided := false
		for v.MethodIndex = 1; v.MethodIndex <= e.methods; v.MethodIndex++ {
			for v.StageIndex = 1; v.StageIndex < v.MethodIndex; v.StageIndex++ {
				e.GetPointStates()
				if err := e.evaluateSingleTerms(ctx); err != nil {
					return rep, err
				}
				e.SetPointFluxes()
			}
			for v.StageIndex = 1; v.StageIndex <= v.MethodIndex; v.StageIndex++ {
				e.IntegrateFluxes()
				if err := e.evaluateFullTerms(ctx); err != nil {
					return rep, err
				}
				e.SetPointStates()
			}
			e.SetResultFluxes()
			e.SetResultStates()
			e.CalculateError()
			e.ExtrapolateError()

			if v.MethodIndex == 1 {
				continue
			}
			if v.Error <= ctx.AbsErrorMax {
				v.EstimatedStep = e.consts.DtIncrease * v.Step
				e.accept(&rep)
				decided = true
				break
			}
			if v.ExtrapolatedError > ctx.AbsErrorMax && v.Step > ctx.RelDtMin {
				e.shrink(&rep)
				decided = true
				break
			}
			v.LastError = v.Error
			v.FirstStageReady = true
		}

		if !decided {
			v.MethodIndex = e.methods
			if v.Step <= ctx.RelDtMin {
				rep.Degraded = true
				rep.DegradedSteps++
				e.logger.Warn("accepting sub-interval beyond tolerance at minimum step",
					slog.Int("simIndex", ctx.SimIndex),
					slog.Float64("t0", v.T0),
					slog.Float64("step", v.Step),
					slog.Float64("error", v.Error),
					slog.Float64("absErrorMax", ctx.AbsErrorMax),
				)
				e.accept(&rep)
			} else {
				e.shrink(&rep)
			}
		}
	}

	e.GetSumFluxes()

	rep.Calls = v.CallCount
	e.logger.Debug("solved outer step",
		slog.Int("simIndex", ctx.SimIndex),
		slog.Int("calls", rep.Calls),
		slog.Int("subSteps", rep.SubSteps),
		slog.Int("rejected", rep.Rejected),
		slog.Int("method", rep.Method),
		slog.Float64("step", rep.Step),
	)
	return rep, nil
}

func (e *ELS) accept(rep *dynamo.Report) {
	v := &e.Vars
	v.FirstStageReady = false
	e.AddUpFluxes()
	v.T0 += v.Step
	e.New2Old()

	rep.SubSteps++
	rep.Step = v.Step
	rep.Method = v.MethodIndex
	if v.Error > rep.MaxError {
		rep.MaxError = v.Error
	}
}

func (e *ELS) shrink(rep *dynamo.Report) {
	v := &e.Vars
	v.FirstStageReady = true
	v.EstimatedStep = v.Step / e.consts.DtDecrease
	rep.Rejected++
}

func (e *ELS) evaluateSingleTerms(ctx *dynamo.Context) error {
	e.Vars.CallCount++
	for _, term := range e.terms.Partial {
		if err := term.Fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *ELS) evaluateFullTerms(ctx *dynamo.Context) error {
	for _, term := range e.terms.Full {
		if err := term.Fn(ctx); err != nil {
			return err
		}
	}
	return nil
}
