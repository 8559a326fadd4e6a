package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/elsim/internal/dynamo"
	"github.com/san-kum/elsim/internal/tableau"
)

const (
	DefaultUnit        = "linear"
	DefaultSteps       = 24
	DefaultAbsErrorMax = 0.01
	DefaultRelDtMin    = 0.001
)

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	Unit     string             `yaml:"unit"`
	Steps    int                `yaml:"steps"`
	Solver   SolverConfig       `yaml:"solver"`
	Params   map[string]float64 `yaml:"params,omitempty"`
	Initial  map[string]float64 `yaml:"initial,omitempty"`
	Inflow   []float64          `yaml:"inflow,omitempty"`
	Observed []float64          `yaml:"observed,omitempty"`
	// Target names the flux or state compared against Observed.
	Target string `yaml:"target,omitempty"`
}

type SolverConfig struct {
	AbsErrorMax float64 `yaml:"abserrormax"`
	RelDtMin    float64 `yaml:"reldtmin"`
	Methods     int     `yaml:"methods"`
	// Tableau is an optional path to a binary coefficient table. The
	// generated table is used when empty.
	Tableau string `yaml:"tableau,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Unit:  DefaultUnit,
		Steps: DefaultSteps,
		Solver: SolverConfig{
			AbsErrorMax: DefaultAbsErrorMax,
			RelDtMin:    DefaultRelDtMin,
			Methods:     tableau.DefaultMethods,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Unit == "" {
		return fmt.Errorf("%w: unit is empty", ErrInvalidConfig)
	}
	if c.Steps <= 0 {
		return fmt.Errorf("%w: steps must be positive, got %d", ErrInvalidConfig, c.Steps)
	}
	if err := c.Context().Validate(); err != nil {
		return err
	}
	if c.Solver.Methods < 2 || c.Solver.Methods > tableau.MaxMethods {
		return fmt.Errorf("%w: %d", dynamo.ErrMethodCount, c.Solver.Methods)
	}
	if len(c.Inflow) > 0 && len(c.Inflow) < c.Steps {
		return fmt.Errorf("%w: inflow has %d values for %d steps", ErrInvalidConfig, len(c.Inflow), c.Steps)
	}
	if len(c.Observed) > 0 && c.Target == "" {
		return fmt.Errorf("%w: observed series without target", ErrInvalidConfig)
	}
	return nil
}

// Context returns the solver parameters of the first outer step.
func (c *Config) Context() *dynamo.Context {
	return &dynamo.Context{
		AbsErrorMax: c.Solver.AbsErrorMax,
		RelDtMin:    c.Solver.RelDtMin,
	}
}

// Clone returns a deep copy, so presets can be modified safely.
func (c *Config) Clone() *Config {
	out := *c
	out.Params = cloneMap(c.Params)
	out.Initial = cloneMap(c.Initial)
	out.Inflow = append([]float64(nil), c.Inflow...)
	out.Observed = append([]float64(nil), c.Observed...)
	return &out
}

func cloneMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
