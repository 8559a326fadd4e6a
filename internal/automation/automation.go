package automation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/elsim/internal/config"
	"github.com/san-kum/elsim/internal/dynamo"
	"github.com/san-kum/elsim/internal/experiment"
	"github.com/san-kum/elsim/internal/sim"
)

// Scenario defines a scripted sequence of runs
type Scenario struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Runs        []*config.Config `yaml:"runs"`
}

// LoadScenario loads a scenario from a YAML file. Fields a run leaves out
// take the configuration defaults.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Name        string      `yaml:"name"`
		Description string      `yaml:"description"`
		Runs        []yaml.Node `yaml:"runs"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	scenario := &Scenario{Name: raw.Name, Description: raw.Description}
	for i := range raw.Runs {
		cfg := config.DefaultConfig()
		if err := raw.Runs[i].Decode(cfg); err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
		scenario.Runs = append(scenario.Runs, cfg)
	}
	return scenario, nil
}

// RunScenario executes all runs of a scenario in order
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry, logger *slog.Logger) ([]*sim.Result, error) {
	results := make([]*sim.Result, 0, len(scenario.Runs))

	for i, cfg := range scenario.Runs {
		logger.Info("scenario run", slog.String("scenario", scenario.Name), slog.Int("run", i+1), slog.String("unit", cfg.Unit))

		exp, err := experiment.New(registry, cfg, experiment.WithLogger(logger))
		if err != nil {
			return results, fmt.Errorf("run %d: %w", i+1, err)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("run %d: %w", i+1, err)
		}
		results = append(results, result)
	}

	return results, nil
}

// ToleranceSweep repeats one configuration over a list of tolerances.
type ToleranceSweep struct {
	Base       *config.Config
	Tolerances []float64
	// ReferenceTolerance controls the RK45 run the results are measured
	// against.
	ReferenceTolerance float64
	Limit              int
}

// SweepResult holds the cost and accuracy of one tolerance.
type SweepResult struct {
	Tolerance  float64
	Calls      int
	MeanOrder  float64
	Degraded   int
	FinalState dynamo.Vector
	// Error is the Euclidean distance of the final state to the reference.
	Error float64
}

// RunSweep executes a tolerance sweep concurrently.
func RunSweep(ctx context.Context, sweep *ToleranceSweep, registry *experiment.Registry) ([]SweepResult, error) {
	refCfg := sweep.Base.Clone()
	refCfg.Solver.AbsErrorMax = sweep.ReferenceTolerance
	if !(refCfg.Solver.AbsErrorMax > 0) {
		refCfg.Solver.AbsErrorMax = 1e-10
	}
	refExp, err := experiment.New(registry, refCfg)
	if err != nil {
		return nil, err
	}
	ref, err := refExp.Compare(ctx, "rk45")
	if err != nil {
		return nil, err
	}
	reference := ref[0].Final

	results := make([]SweepResult, len(sweep.Tolerances))
	err = dynamo.NewEnsemble(sweep.Limit).Run(ctx, len(sweep.Tolerances), func(ctx context.Context, idx int) error {
		cfg := sweep.Base.Clone()
		cfg.Solver.AbsErrorMax = sweep.Tolerances[idx]

		exp, err := experiment.New(registry, cfg)
		if err != nil {
			return err
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return err
		}

		final := result.FinalState()
		results[idx] = SweepResult{
			Tolerance:  cfg.Solver.AbsErrorMax,
			Calls:      result.Calls,
			MeanOrder:  result.Metrics["mean_order"],
			Degraded:   result.DegradedSteps(),
			FinalState: final,
			Error:      final.Sub(reference).Norm(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// MonteCarloConfig perturbs the initial states of a configuration
type MonteCarloConfig struct {
	Base         *config.Config
	Perturbation float64
	NumTrials    int
	Seed         int64
	Limit        int
}

// MonteCarloResult holds the outcome of one trial
type MonteCarloResult struct {
	TrialID    int
	Initial    map[string]float64
	FinalState dynamo.Vector
	Calls      int
	Degraded   int
	Err        error
}

// RunMonteCarlo executes trials with uniformly perturbed, non-negative
// initial storages.
func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, registry *experiment.Registry) ([]MonteCarloResult, error) {
	spec, err := registry.Spec(cfg.Base.Unit)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	// draw all initial states up front so results do not depend on scheduling
	initials := make([]map[string]float64, cfg.NumTrials)
	for trial := range initials {
		x := make(map[string]float64, len(spec.Initial))
		for name, v := range spec.Initial {
			if o, ok := cfg.Base.Initial[name]; ok {
				v = o
			}
			x[name] = math.Max(0, v+(rng.Float64()-0.5)*2*cfg.Perturbation)
		}
		initials[trial] = x
	}

	results := make([]MonteCarloResult, cfg.NumTrials)
	err = dynamo.NewEnsemble(cfg.Limit).Run(ctx, cfg.NumTrials, func(ctx context.Context, idx int) error {
		r := &results[idx]
		r.TrialID = idx
		r.Initial = initials[idx]

		c := cfg.Base.Clone()
		c.Initial = initials[idx]
		exp, err := experiment.New(registry, c)
		if err != nil {
			r.Err = err
			return nil
		}
		result, err := exp.Run(ctx)
		if err != nil {
			r.Err = err
			return ctx.Err()
		}
		r.FinalState = result.FinalState()
		r.Calls = result.Calls
		r.Degraded = result.DegradedSteps()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// MonteCarloStats counts trials that finished within tolerance, finished
// with degraded steps, or failed.
func MonteCarloStats(results []MonteCarloResult) (clean, degraded, failed int) {
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Degraded > 0:
			degraded++
		default:
			clean++
		}
	}
	return
}
