package sim

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/san-kum/elsim/internal/dynamo"
)

// Simulator drives a solver over consecutive outer time steps of a model.
type Simulator struct {
	model     dynamo.Model
	solver    dynamo.Solver
	metrics   []dynamo.Metric
	observers []dynamo.Observer
	logger    *slog.Logger
}

func New(model dynamo.Model, solver dynamo.Solver) *Simulator {
	return &Simulator{
		model:     model,
		solver:    solver,
		metrics:   make([]dynamo.Metric, 0),
		observers: make([]dynamo.Observer, 0),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }
func (s *Simulator) SetLogger(l *slog.Logger)      { s.logger = l }

func (s *Simulator) Model() dynamo.Model { return s.model }

func (s *Simulator) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}

	seqs := s.model.Sequences()
	result := &Result{
		StateNames: seqs.StateNames(),
		FluxNames:  seqs.FluxNames(),
		States:     make([]dynamo.Vector, 0, cfg.Steps+1),
		Fluxes:     make([]dynamo.Vector, 0, cfg.Steps),
		Reports:    make([]dynamo.Report, 0, cfg.Steps),
		Metrics:    make(map[string]float64),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	result.States = append(result.States, seqs.OldValues())
	dctx := cfg.context()

	for i := 0; i < cfg.Steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		dctx.SimIndex = i
		rep, err := s.Step(dctx, cfg.ValidateState)
		if err != nil {
			s.logger.Error("simulation aborted", slog.Int("step", i), slog.Any("error", err))
			return result, err
		}

		result.States = append(result.States, seqs.OldValues())
		result.Fluxes = append(result.Fluxes, seqs.FluxValues())
		result.Reports = append(result.Reports, rep)
		result.StepsTaken++
		result.Calls += rep.Calls
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	s.logger.Info("simulation finished",
		slog.Int("steps", result.StepsTaken),
		slog.Int("calls", result.Calls),
		slog.Int("degraded", result.DegradedSteps()),
	)
	return result, nil
}

// Step solves the outer step dctx.SimIndex and notifies metrics and
// observers. Failures are returned as *dynamo.SimulationError.
func (s *Simulator) Step(dctx *dynamo.Context, validate bool) (dynamo.Report, error) {
	seqs := s.model.Sequences()
	before := seqs.OldValues()

	rep, err := s.solver.Solve(dctx)
	if err != nil {
		return rep, &dynamo.SimulationError{Step: dctx.SimIndex, State: before, Wrapped: err}
	}

	if validate {
		if x := seqs.OldValues(); !x.IsValid() {
			return rep, &dynamo.SimulationError{Step: dctx.SimIndex, State: x, Wrapped: dynamo.ErrInvalidState}
		}
	}

	for _, m := range s.metrics {
		m.Observe(seqs, rep, dctx)
	}
	for _, obs := range s.observers {
		obs.OnStep(seqs, rep, dctx)
	}
	return rep, nil
}

func (s *Simulator) validateConfig(cfg Config) error {
	if cfg.Steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", cfg.Steps)
	}
	return cfg.context().Validate()
}

// RunWithCallback steps until cfg.Steps is reached or the callback returns
// false.
func (s *Simulator) RunWithCallback(ctx context.Context, cfg Config, callback func(step int, seqs *dynamo.Sequences, rep dynamo.Report) bool) error {
	if err := s.validateConfig(cfg); err != nil {
		return err
	}

	dctx := cfg.context()
	for i := 0; i < cfg.Steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		dctx.SimIndex = i
		rep, err := s.Step(dctx, cfg.ValidateState)
		if err != nil {
			return err
		}
		if !callback(i, s.model.Sequences(), rep) {
			return nil
		}
	}
	return nil
}
