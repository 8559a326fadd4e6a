package config

import "sort"

var Presets = map[string]map[string]*Config{
	"linear": {
		"slow": {
			Unit: "linear", Steps: 24,
			Solver:  SolverConfig{AbsErrorMax: 0.01, RelDtMin: 0.001, Methods: 10},
			Params:  map[string]float64{"k": 0.1},
			Initial: map[string]float64{"s": 1.0},
		},
		"fast": {
			Unit: "linear", Steps: 12,
			Solver:  SolverConfig{AbsErrorMax: 0.001, RelDtMin: 0.001, Methods: 10},
			Params:  map[string]float64{"k": 2.0},
			Initial: map[string]float64{"s": 1.0},
		},
		"storm": {
			Unit: "linear", Steps: 12,
			Solver:  SolverConfig{AbsErrorMax: 0.0001, RelDtMin: 0.0001, Methods: 10},
			Params:  map[string]float64{"k": 0.3},
			Initial: map[string]float64{"s": 0.0},
			Inflow:  []float64{0, 0.5, 2.0, 4.0, 2.5, 1.0, 0.5, 0.2, 0, 0, 0, 0},
		},
	},
	"threshold": {
		"drain": {
			Unit: "threshold", Steps: 6,
			Solver:  SolverConfig{AbsErrorMax: 0.01, RelDtMin: 0.0001, Methods: 10},
			Params:  map[string]float64{"k": 0.6},
			Initial: map[string]float64{"s": 2.0},
		},
		"strict": {
			Unit: "threshold", Steps: 4,
			Solver:  SolverConfig{AbsErrorMax: 1e-6, RelDtMin: 0.001, Methods: 10},
			Params:  map[string]float64{"k": 0.6},
			Initial: map[string]float64{"s": 0.2},
		},
	},
	"nonlinear": {
		"quadratic": {
			Unit: "nonlinear", Steps: 24,
			Solver:  SolverConfig{AbsErrorMax: 0.001, RelDtMin: 0.001, Methods: 10},
			Params:  map[string]float64{"k": 0.5, "b": 2.0},
			Initial: map[string]float64{"s": 2.0},
		},
		"sqrt": {
			Unit: "nonlinear", Steps: 24,
			Solver:  SolverConfig{AbsErrorMax: 0.001, RelDtMin: 0.001, Methods: 10},
			Params:  map[string]float64{"k": 0.5, "b": 0.5},
			Initial: map[string]float64{"s": 2.0},
		},
	},
	"cascade": {
		"routing": {
			Unit: "cascade", Steps: 24,
			Solver:  SolverConfig{AbsErrorMax: 0.001, RelDtMin: 0.001, Methods: 10},
			Params:  map[string]float64{"k1": 0.4, "k2": 0.2},
			Initial: map[string]float64{"s1": 1.0, "s2": 0.0},
		},
	},
}

func GetPreset(unit, preset string) *Config {
	unitPresets, ok := Presets[unit]
	if !ok {
		return nil
	}
	cfg, ok := unitPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(unit string) []string {
	unitPresets, ok := Presets[unit]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(unitPresets))
	for name := range unitPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
