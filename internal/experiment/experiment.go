package experiment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/san-kum/elsim/internal/config"
	"github.com/san-kum/elsim/internal/dynamo"
	"github.com/san-kum/elsim/internal/integrators"
	"github.com/san-kum/elsim/internal/sim"
	"github.com/san-kum/elsim/internal/tableau"
)

// Experiment is a unit bound to an ELS solver and a simulator, built from
// a run configuration.
type Experiment struct {
	cfg       *config.Config
	registry  *Registry
	unit      Unit
	solver    *integrators.ELS
	simulator *sim.Simulator
	logger    *slog.Logger
}

type Option func(*Experiment)

func WithLogger(l *slog.Logger) Option {
	return func(e *Experiment) { e.logger = l }
}

func New(reg *Registry, cfg *config.Config, opts ...Option) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Experiment{
		cfg:      cfg,
		registry: reg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}

	unit, err := reg.GetUnit(cfg.Unit, cfg.Params, cfg.Initial, cfg.Inflow)
	if err != nil {
		return nil, err
	}
	if err := checkTarget(unit.Sequences(), cfg.Target); err != nil {
		return nil, fmt.Errorf("unit %s: %w", cfg.Unit, err)
	}
	consts, err := LoadTableau(cfg.Solver.Tableau, cfg.Solver.Methods)
	if err != nil {
		return nil, err
	}
	solver, err := integrators.NewELS(unit, consts,
		integrators.WithMethods(cfg.Solver.Methods),
		integrators.WithLogger(e.logger),
	)
	if err != nil {
		return nil, err
	}

	e.unit = unit
	e.solver = solver
	e.simulator = sim.New(unit, solver)
	e.simulator.SetLogger(e.logger)
	for _, m := range reg.DefaultMetrics(cfg.Target, cfg.Observed) {
		e.simulator.AddMetric(m)
	}
	return e, nil
}

// checkTarget makes sure an RMSE target names a flux or state of the unit.
func checkTarget(seqs *dynamo.Sequences, target string) error {
	if target == "" {
		return nil
	}
	if _, err := seqs.Flux(target); err == nil {
		return nil
	}
	_, err := seqs.State(target)
	return err
}

// LoadTableau returns the generated coefficient table, or reads the blob
// at path. Blobs are stored with at least the default number of methods.
func LoadTableau(path string, methods int) (*tableau.Constants, error) {
	n := max(methods, tableau.DefaultMethods)
	if path == "" {
		if n == tableau.DefaultMethods {
			return tableau.Default(), nil
		}
		return tableau.New(n)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	consts, err := tableau.Load(f, n)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return consts, nil
}

func (e *Experiment) Config() *config.Config   { return e.cfg }
func (e *Experiment) Unit() Unit               { return e.unit }
func (e *Experiment) Solver() *integrators.ELS { return e.solver }

// GetSimulator returns the underlying simulator for adding observers
func (e *Experiment) GetSimulator() *sim.Simulator {
	return e.simulator
}

func (e *Experiment) SimConfig() sim.Config {
	return sim.Config{
		Steps:         e.cfg.Steps,
		AbsErrorMax:   e.cfg.Solver.AbsErrorMax,
		RelDtMin:      e.cfg.Solver.RelDtMin,
		ValidateState: true,
	}
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	return e.simulator.Run(ctx, e.SimConfig())
}

// Comparison is the outcome of integrating the unit's analytic derivative
// with a reference scheme.
type Comparison struct {
	Name  string
	Final dynamo.Vector
	Calls int
}

// Compare integrates a fresh copy of the unit with each named reference
// integrator over the configured steps.
func (e *Experiment) Compare(ctx context.Context, names ...string) ([]Comparison, error) {
	out := make([]Comparison, 0, len(names))
	for _, name := range names {
		ref, err := e.registry.GetReference(name, e.cfg.Solver.AbsErrorMax)
		if err != nil {
			return nil, err
		}
		unit, err := e.registry.GetUnit(e.cfg.Unit, e.cfg.Params, e.cfg.Initial, e.cfg.Inflow)
		if err != nil {
			return nil, err
		}

		x := unit.Sequences().OldValues()
		dctx := e.cfg.Context()
		calls := 0
		for i := 0; i < e.cfg.Steps; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			dctx.SimIndex = i
			var n int
			x, n = ref.Integrate(dctx, unit, x)
			calls += n
		}
		out = append(out, Comparison{Name: name, Final: x, Calls: calls})
	}
	return out, nil
}
