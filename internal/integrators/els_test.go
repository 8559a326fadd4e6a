package integrators

import (
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/elsim/internal/dynamo"
	"github.com/san-kum/elsim/internal/models"
	"github.com/san-kum/elsim/internal/tableau"
)

func solveLinear(k, tol float64, opts ...Option) (*models.Linear, *ELS, dynamo.Report) {
	unit := models.NewLinear(k, 1.0, nil)
	solver, err := NewELS(unit, tableau.Default(), opts...)
	Expect(err).NotTo(HaveOccurred())

	ctx := &dynamo.Context{AbsErrorMax: tol, RelDtMin: 1e-4}
	rep, err := solver.Solve(ctx)
	Expect(err).NotTo(HaveOccurred())
	return unit, solver, rep
}

// failingUnit returns an error from its partial term on the n-th call.
type failingUnit struct {
	seqs    *dynamo.Sequences
	methods dynamo.Methods
	calls   int
	err     error
}

func newFailingUnit(n int, err error) *failingUnit {
	u := &failingUnit{seqs: dynamo.NewSequences(), err: err}
	s := u.seqs.AddState("s", 1)
	q := u.seqs.AddFlux("q", true)
	u.methods = dynamo.Methods{
		Partial: []dynamo.Term{{Name: "calc_q", Fn: func(ctx *dynamo.Context) error {
			u.calls++
			if u.calls == n {
				return u.err
			}
			q.Value = 3 * s.New
			return nil
		}}},
		Full: []dynamo.Term{{Name: "calc_s", Fn: func(ctx *dynamo.Context) error {
			s.New = s.Old - q.Value
			return nil
		}}},
	}
	return u
}

// tracedUnit records the solver variables at every partial evaluation.
type tracedUnit struct {
	*models.Linear
	solver *ELS
	trace  []Vars
}

func (u *tracedUnit) Methods() dynamo.Methods {
	m := u.Linear.Methods()
	record := dynamo.Term{Name: "record", Fn: func(ctx *dynamo.Context) error {
		u.trace = append(u.trace, u.solver.Vars)
		return nil
	}}
	return dynamo.Methods{Partial: append([]dynamo.Term{record}, m.Partial...), Full: m.Full}
}

func (u *failingUnit) Sequences() *dynamo.Sequences { return u.seqs }
func (u *failingUnit) Methods() dynamo.Methods      { return u.methods }

var _ = Describe("ELS", func() {
	Describe("construction", func() {
		It("rejects a model without terms", func() {
			u := newFailingUnit(0, nil)
			u.methods.Full = nil
			_, err := NewELS(u, tableau.Default())
			Expect(err).To(MatchError(dynamo.ErrNoTerms))
		})

		It("rejects a model without numeric fluxes", func() {
			seqs := dynamo.NewSequences()
			seqs.AddState("s", 1)
			seqs.AddFlux("diag", false)
			u := &failingUnit{seqs: seqs, methods: newFailingUnit(0, nil).methods}
			_, err := NewELS(u, tableau.Default())
			Expect(err).To(MatchError(dynamo.ErrNoNumericFlux))
		})

		It("rejects a model without states", func() {
			seqs := dynamo.NewSequences()
			seqs.AddFlux("q", true)
			u := &failingUnit{seqs: seqs, methods: newFailingUnit(0, nil).methods}
			_, err := NewELS(u, tableau.Default())
			Expect(err).To(MatchError(dynamo.ErrNoStates))
		})

		It("rejects more methods than the table holds", func() {
			_, err := NewELS(models.NewLinear(1, 1, nil), tableau.Default(), WithMethods(11))
			Expect(errors.Is(err, dynamo.ErrMethodCount)).To(BeTrue())

			_, err = NewELS(models.NewLinear(1, 1, nil), tableau.Default(), WithMethods(1))
			Expect(errors.Is(err, dynamo.ErrMethodCount)).To(BeTrue())
		})

		It("allocates the sequence buffers", func() {
			unit := models.NewLinear(1, 1, nil)
			_, err := NewELS(unit, tableau.Default())
			Expect(err).NotTo(HaveOccurred())
			Expect(unit.S.Points).To(HaveLen(11))
			Expect(unit.Q.Results).To(HaveLen(11))
		})

		It("refuses a non-positive minimum step when solving", func() {
			solver, err := NewELS(models.NewLinear(1, 1, nil), tableau.Default())
			Expect(err).NotTo(HaveOccurred())
			_, err = solver.Solve(&dynamo.Context{AbsErrorMax: 0.01, RelDtMin: 0})
			Expect(errors.Is(err, dynamo.ErrInvalidMinStep)).To(BeTrue())
		})
	})

	Describe("zero rates", func() {
		It("leaves the state unchanged with two evaluations", func() {
			unit, _, rep := solveLinear(0, 1e-2)
			Expect(unit.S.Old).To(Equal(1.0))
			Expect(unit.S.New).To(Equal(1.0))
			Expect(unit.Q.Value).To(Equal(0.0))
			Expect(unit.QIn.Value).To(Equal(0.0))
			Expect(rep.Calls).To(Equal(2))
			Expect(rep.Method).To(Equal(2))
			Expect(rep.Degraded).To(BeFalse())
		})
	})

	Describe("linear decay", func() {
		DescribeTable("matches exp(-k) within tolerance",
			func(k float64, calls, method, subSteps int) {
				unit, solver, rep := solveLinear(k, 1e-2)

				Expect(unit.S.Old).To(BeNumerically("~", math.Exp(-k), 1e-2))
				Expect(unit.Q.Value).To(BeNumerically("~", 1-unit.S.Old, 1e-12))
				Expect(rep.Calls).To(Equal(calls))
				Expect(solver.Vars.CallCount).To(Equal(calls))
				Expect(rep.Method).To(Equal(method))
				Expect(rep.SubSteps).To(Equal(subSteps))
				Expect(rep.Degraded).To(BeFalse())
			},
			Entry("k=0.1", 0.1, 2, 2, 1),
			Entry("k=0.5", 0.5, 7, 4, 1),
			Entry("k=2.0", 2.0, 22, 3, 4),
		)

		It("reproduces the known second and fourth order results", func() {
			unit, _, _ := solveLinear(0.1, 1e-2)
			Expect(unit.S.Old).To(BeNumerically("~", 0.905, 1e-12))

			unit, _, _ = solveLinear(0.5, 1e-2)
			Expect(unit.S.Old).To(BeNumerically("~", 0.6067708333333333, 1e-12))
		})

		It("shrinks the step once for a fast decay", func() {
			_, _, rep := solveLinear(2.0, 1e-2)
			Expect(rep.Rejected).To(Equal(1))
			Expect(rep.Step).To(BeNumerically("~", 0.3, 1e-12))
		})

		It("is reusable across outer steps", func() {
			unit := models.NewLinear(0.5, 1.0, nil)
			solver, err := NewELS(unit, tableau.Default())
			Expect(err).NotTo(HaveOccurred())

			ctx := &dynamo.Context{AbsErrorMax: 1e-6, RelDtMin: 1e-4}
			for i := 0; i < 4; i++ {
				ctx.SimIndex = i
				_, err := solver.Solve(ctx)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(unit.S.Old).To(BeNumerically("~", math.Exp(-2), 1e-5))
		})
	})

	Describe("tolerance and cost", func() {
		tolerances := []float64{1e-1, 1e-2, 1e-3, 1e-4, 1e-6}

		DescribeTable("tightening the tolerance never lowers the effort",
			func(k float64, checkMethod bool) {
				lastCalls, lastMethod := 0, 0
				for _, tol := range tolerances {
					_, solver, rep := solveLinear(k, tol)
					Expect(rep.Calls).To(BeNumerically(">=", lastCalls), "tol %g", tol)
					if checkMethod {
						Expect(solver.Vars.MethodIndex).To(BeNumerically(">=", lastMethod), "tol %g", tol)
					}
					lastCalls, lastMethod = rep.Calls, solver.Vars.MethodIndex
				}
			},
			Entry("k=0.1", 0.1, true),
			Entry("k=0.5", 0.5, true),
			Entry("k=2.0", 2.0, false),
		)
	})

	Describe("method cap", func() {
		It("gives the same answer when the cap is not reached", func() {
			_, _, rep := solveLinear(0.5, 1e-2, WithMethods(4))
			Expect(rep.Calls).To(Equal(7))
		})

		It("subdivides when the cap is too low", func() {
			unit, _, rep := solveLinear(0.5, 1e-2, WithMethods(3))
			Expect(rep.Rejected).To(Equal(1))
			Expect(rep.SubSteps).To(Equal(4))
			Expect(unit.S.Old).To(BeNumerically("~", math.Exp(-0.5), 1e-2))
		})
	})

	Describe("buffer operations", func() {
		var (
			unit   *models.Linear
			solver *ELS
		)

		BeforeEach(func() {
			unit = models.NewLinear(0.5, 1.0, nil)
			var err error
			solver, err = NewELS(unit, tableau.Default())
			Expect(err).NotTo(HaveOccurred())
		})

		It("resets the sums idempotently", func() {
			unit.Q.Sum = 3.5
			unit.QIn.Sum = -1
			solver.ResetSumFluxes()
			solver.GetSumFluxes()
			Expect(unit.Q.Value).To(BeZero())
			Expect(unit.QIn.Value).To(BeZero())
		})

		It("accumulates and publishes sums", func() {
			solver.ResetSumFluxes()
			unit.Q.Value = 0.25
			solver.AddUpFluxes()
			unit.Q.Value = 0.5
			solver.AddUpFluxes()
			unit.Q.Value = 99
			solver.GetSumFluxes()
			Expect(unit.Q.Value).To(Equal(0.75))
		})

		It("moves state values between stages and results", func() {
			solver.Vars.StageIndex = 3
			unit.S.New = 0.7
			solver.SetPointStates()
			unit.S.New = 0
			solver.GetPointStates()
			Expect(unit.S.New).To(Equal(0.7))

			solver.Vars.MethodIndex = 5
			solver.SetResultStates()
			Expect(unit.S.Results[5]).To(Equal(0.7))

			solver.New2Old()
			Expect(unit.S.Old).To(Equal(0.7))
		})

		It("integrates the stage rates with the table row", func() {
			solver.Vars.MethodIndex = 2
			solver.Vars.StageIndex = 1
			solver.Vars.Step = 0.5
			unit.Q.Points[0] = 1
			unit.Q.Points[1] = 2
			solver.IntegrateFluxes()
			Expect(unit.Q.Value).To(BeNumerically("~", 0.5*(0.375*1+0.125*2), 1e-14))
		})

		It("takes the sup norm over numeric fluxes as error", func() {
			solver.Vars.MethodIndex = 3
			unit.Q.Results[2], unit.Q.Results[3] = 1.0, 1.2
			unit.QIn.Results[2], unit.QIn.Results[3] = 0.5, 0.2
			solver.CalculateError()
			Expect(solver.Vars.Error).To(BeNumerically("~", 0.3, 1e-14))

			solver.Vars.MethodIndex = 0
			solver.CalculateError()
			Expect(solver.Vars.Error).To(BeZero())
		})

		DescribeTable("extrapolates the error log-linearly",
			func(method int, expected float64) {
				solver.Vars.Error = 1e-2
				solver.Vars.LastError = 1e-1
				solver.Vars.MethodIndex = method
				solver.ExtrapolateError()
				Expect(solver.Vars.ExtrapolatedError).To(BeNumerically("~", expected, 1e-15))
			},
			Entry("highest method", 10, 0.01),
			Entry("one order below", 9, 0.001),
			Entry("two orders below", 8, 0.0001),
			Entry("method two", 2, -999.9),
			Entry("method one", 1, -999.9),
		)
	})

	Describe("method sequence", func() {
		It("extends lower order work instead of recomputing it", func() {
			third, _, rep3 := solveLinear(0.5, 0.025)
			Expect(rep3.Method).To(Equal(3))

			fourth, _, rep4 := solveLinear(0.5, 1e-2)
			Expect(rep4.Method).To(Equal(4))

			Expect(fourth.Q.Results[3]).To(Equal(third.Q.Results[3]))
			Expect(fourth.S.Results[3]).To(Equal(third.S.Results[3]))
			Expect(third.Q.Value).To(Equal(third.Q.Results[3]))
		})
	})

	Describe("step size", func() {
		It("grows by the increase factor after acceptance", func() {
			_, solver, _ := solveLinear(2.0, 1e-2)
			Expect(solver.Vars.EstimatedStep).To(BeNumerically("~", 2*solver.Vars.Step, 1e-15))
			Expect(solver.Vars.FirstStageReady).To(BeFalse())
		})

		DescribeTable("divides the step by the decrease factor after a rejection",
			func(k float64, methods int) {
				unit := &tracedUnit{Linear: models.NewLinear(k, 1, nil)}
				solver, err := NewELS(unit, tableau.Default(), WithMethods(methods))
				Expect(err).NotTo(HaveOccurred())
				unit.solver = solver

				ctx := &dynamo.Context{AbsErrorMax: 1e-2, RelDtMin: 1e-4}
				rep, err := solver.Solve(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(rep.Rejected).To(BeNumerically(">", 0))

				shrinks := 0
				for i := 1; i < len(unit.trace); i++ {
					prev, cur := unit.trace[i-1], unit.trace[i]
					if cur.T0 != prev.T0 || cur.Step >= prev.Step {
						continue
					}
					shrinks++
					Expect(cur.FirstStageReady).To(BeTrue())
					Expect(cur.EstimatedStep).To(Equal(prev.Step / 10))
					Expect(cur.Step).To(Equal(math.Min(cur.T1-cur.T0, math.Max(cur.EstimatedStep, ctx.RelDtMin))))
				}
				Expect(shrinks).To(Equal(rep.Rejected))
			},
			Entry("fast decay", 2.0, 10),
			Entry("capped at method 3", 0.5, 3),
		)

		It("keeps shrinking a stiff decay down to the minimum step", func() {
			unit := models.NewLinear(20, 1, nil)
			solver, err := NewELS(unit, tableau.Default())
			Expect(err).NotTo(HaveOccurred())

			ctx := &dynamo.Context{AbsErrorMax: 1e-3, RelDtMin: 0.05}
			rep, err := solver.Solve(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Rejected).To(BeNumerically(">", 0))
			Expect(rep.SubSteps).To(BeNumerically("<=", 20))
			Expect(unit.S.Old).To(BeNumerically("~", 0, 1e-2))
		})
	})

	Describe("discontinuous rates", func() {
		It("flags sub-intervals accepted beyond the tolerance", func() {
			unit := models.NewThreshold(1.0, 0.5, nil)
			solver, err := NewELS(unit, tableau.Default())
			Expect(err).NotTo(HaveOccurred())

			rep, err := solver.Solve(&dynamo.Context{AbsErrorMax: 1e-6, RelDtMin: 0.01})
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Degraded).To(BeTrue())
			Expect(rep.DegradedSteps).To(BeNumerically(">=", 1))
			Expect(rep.MaxError).To(BeNumerically(">", 1e-6))
			Expect(unit.S.Old).To(BeNumerically("~", 0, 2e-2))
		})

		It("solves a storage that stays filled in one sub-interval", func() {
			unit := models.NewThreshold(0.5, 2.0, nil)
			solver, err := NewELS(unit, tableau.Default())
			Expect(err).NotTo(HaveOccurred())

			rep, err := solver.Solve(&dynamo.Context{AbsErrorMax: 1e-2, RelDtMin: 1e-4})
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Calls).To(Equal(2))
			Expect(unit.S.Old).To(BeNumerically("~", 1.5, 1e-12))
		})
	})

	Describe("term errors", func() {
		It("propagates them unchanged", func() {
			boom := errors.New("division by zero")
			u := newFailingUnit(3, boom)
			solver, err := NewELS(u, tableau.Default())
			Expect(err).NotTo(HaveOccurred())

			_, err = solver.Solve(&dynamo.Context{AbsErrorMax: 1e-8, RelDtMin: 1e-4})
			Expect(err).To(BeIdenticalTo(boom))
		})
	})

	Describe("multiple states", func() {
		It("keeps the water balance of a cascade", func() {
			unit := models.NewCascade(0.4, 0.2, 1.0, 0.5, []float64{0.3})
			solver, err := NewELS(unit, tableau.Default())
			Expect(err).NotTo(HaveOccurred())

			_, err = solver.Solve(&dynamo.Context{AbsErrorMax: 1e-6, RelDtMin: 1e-4})
			Expect(err).NotTo(HaveOccurred())

			before := 1.5
			after := unit.S1.Old + unit.S2.Old
			Expect(after).To(BeNumerically("~", before+unit.QIn.Value-unit.Q2.Value, 1e-12))
			Expect(unit.QIn.Value).To(BeNumerically("~", 0.3, 1e-12))
			Expect(unit.Total.Value).To(Equal(unit.S1.Old + unit.S2.Old))
		})
	})
})
