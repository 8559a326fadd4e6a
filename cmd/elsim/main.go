package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/elsim/internal/automation"
	"github.com/san-kum/elsim/internal/config"
	"github.com/san-kum/elsim/internal/experiment"
	"github.com/san-kum/elsim/internal/optim"
	"github.com/san-kum/elsim/internal/sim"
	"github.com/san-kum/elsim/internal/tableau"
	"github.com/san-kum/elsim/internal/viz"
)

var (
	verbose bool
	logger  *slog.Logger

	configFile  string
	preset      string
	steps       int
	absErrorMax float64
	relDtMin    float64
	methods     int
	tableauPath string
	params      map[string]string
	initial     map[string]string
	plotSeries  string
	csvOut      bool

	grid     map[string]string
	observed string
	target   string
	jobs     int

	methodIndex int
	outPath     string
	inPath      string

	tolerances   string
	trials       int
	perturbation float64
	seed         int64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "elsim",
		Short: "adaptive explicit Lobatto sequence solver for lumped units",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [unit]",
		Short: "simulate a unit",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().StringVar(&plotSeries, "plot", "", "sequence to plot (default: first state)")
	runCmd.Flags().BoolVar(&csvOut, "csv", false, "print the trajectory as CSV")

	unitsCmd := &cobra.Command{
		Use:   "units",
		Short: "list registered units",
		RunE:  listUnits,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [unit]",
		Short: "list available presets for a unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for unit: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	tableauCmd := &cobra.Command{
		Use:   "tableau",
		Short: "print, write or check the coefficient table",
		RunE:  showTableau,
	}
	tableauCmd.Flags().IntVar(&methods, "methods", tableau.DefaultMethods, "number of methods")
	tableauCmd.Flags().IntVar(&methodIndex, "method", 3, "method order to print")
	tableauCmd.Flags().StringVar(&outPath, "out", "", "write the table as binary blob")
	tableauCmd.Flags().StringVar(&inPath, "in", "", "load and validate a binary blob")

	compareCmd := &cobra.Command{
		Use:   "compare [unit]",
		Short: "compare ELS with reference integrators",
		Args:  cobra.MaximumNArgs(1),
		RunE:  compareSolvers,
	}
	addConfigFlags(compareCmd)

	calibrateCmd := &cobra.Command{
		Use:   "calibrate [unit]",
		Short: "grid search unit parameters against observations",
		Args:  cobra.MaximumNArgs(1),
		RunE:  calibrate,
	}
	addConfigFlags(calibrateCmd)
	calibrateCmd.Flags().StringToStringVar(&grid, "grid", nil, "parameter ranges, e.g. k=0.1:1:0.1 or k=0.2,0.4")
	calibrateCmd.Flags().StringVar(&observed, "observed", "", "comma separated observations")
	calibrateCmd.Flags().StringVar(&target, "target", "", "flux or state compared with the observations")
	calibrateCmd.Flags().IntVar(&jobs, "jobs", 0, "concurrent runs (0: all cores)")

	liveCmd := &cobra.Command{
		Use:   "live [unit]",
		Short: "step a unit interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addConfigFlags(liveCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep [unit]",
		Short: "cost and accuracy over a range of tolerances",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&tolerances, "tols", "1e-1,1e-2,1e-3,1e-4,1e-6", "tolerances to run")
	sweepCmd.Flags().IntVar(&jobs, "jobs", 0, "concurrent runs (0: all cores)")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run all configurations of a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	montecarloCmd := &cobra.Command{
		Use:   "montecarlo [unit]",
		Short: "run with randomly perturbed initial storages",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	addConfigFlags(montecarloCmd)
	montecarloCmd.Flags().IntVar(&trials, "trials", 50, "number of trials")
	montecarloCmd.Flags().Float64Var(&perturbation, "perturb", 0.5, "maximum perturbation of each initial storage")
	montecarloCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0: time based)")
	montecarloCmd.Flags().IntVar(&jobs, "jobs", 0, "concurrent runs (0: all cores)")

	rootCmd.AddCommand(runCmd, unitsCmd, presetsCmd, tableauCmd, compareCmd, calibrateCmd, liveCmd,
		sweepCmd, scenarioCmd, montecarloCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "outer time steps")
	cmd.Flags().Float64Var(&absErrorMax, "tol", config.DefaultAbsErrorMax, "absolute error tolerance")
	cmd.Flags().Float64Var(&relDtMin, "dtmin", config.DefaultRelDtMin, "minimum relative sub-step")
	cmd.Flags().IntVar(&methods, "methods", tableau.DefaultMethods, "highest method order")
	cmd.Flags().StringVar(&tableauPath, "tableau", "", "binary coefficient table")
	cmd.Flags().StringToStringVar(&params, "param", nil, "unit parameters, e.g. k=0.5")
	cmd.Flags().StringToStringVar(&initial, "init", nil, "initial states, e.g. s=1")
}

// resolveConfig layers preset, config file and explicitly set flags.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if len(args) > 0 {
		cfg.Unit = args[0]
	}

	if preset != "" {
		p := config.GetPreset(cfg.Unit, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(cfg.Unit))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if len(args) > 0 && loaded.Unit != args[0] {
			return nil, fmt.Errorf("config is for unit %s, not %s", loaded.Unit, args[0])
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("steps") {
		cfg.Steps = steps
	}
	if flags.Changed("tol") {
		cfg.Solver.AbsErrorMax = absErrorMax
	}
	if flags.Changed("dtmin") {
		cfg.Solver.RelDtMin = relDtMin
	}
	if flags.Changed("methods") {
		cfg.Solver.Methods = methods
	}
	if flags.Changed("tableau") {
		cfg.Solver.Tableau = tableauPath
	}

	p, err := parseFloats(params)
	if err != nil {
		return nil, fmt.Errorf("--param %w", err)
	}
	cfg.Params = overlay(cfg.Params, p)

	x, err := parseFloats(initial)
	if err != nil {
		return nil, fmt.Errorf("--init %w", err)
	}
	cfg.Initial = overlay(cfg.Initial, x)

	return cfg, cfg.Validate()
}

func overlay(base, over map[string]float64) map[string]float64 {
	if len(over) == 0 {
		return base
	}
	if base == nil {
		base = make(map[string]float64, len(over))
	}
	for k, v := range over {
		base[k] = v
	}
	return base
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	exp, err := experiment.New(experiment.NewRegistry(), cfg, experiment.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if csvOut {
		return writeCSV(result)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := append([]string{"STEP"}, upper(result.StateNames)...)
	header = append(header, upper(result.FluxNames)...)
	header = append(header, "CALLS", "METHOD", "SUB", "REJ", "DEGRADED")
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for i, rep := range result.Reports {
		row := []string{strconv.Itoa(i)}
		for _, v := range result.States[i+1] {
			row = append(row, fmt.Sprintf("%.6f", v))
		}
		for _, v := range result.Fluxes[i] {
			row = append(row, fmt.Sprintf("%.6f", v))
		}
		degraded := ""
		if rep.Degraded {
			degraded = fmt.Sprintf("yes (%d)", rep.DegradedSteps)
		}
		row = append(row,
			strconv.Itoa(rep.Calls), strconv.Itoa(rep.Method),
			strconv.Itoa(rep.SubSteps), strconv.Itoa(rep.Rejected), degraded)
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(viz.Title().Render(fmt.Sprintf("%s: %d steps in %v", cfg.Unit, result.StepsTaken, elapsed)))
	for _, name := range sortedMetricNames(result.Metrics) {
		fmt.Println(viz.Metric(name, fmt.Sprintf("%.6g", result.Metrics[name])))
	}
	if n := result.DegradedSteps(); n > 0 {
		fmt.Println(viz.StatusWarn().Render(fmt.Sprintf("%d steps accepted beyond tolerance", n)))
	}

	name := plotSeries
	if name == "" {
		name = result.StateNames[0]
	}
	series, err := result.Series(name)
	if err != nil {
		return err
	}
	if len(series) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(series,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(name),
		))
	}
	return nil
}

func writeCSV(result *sim.Result) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	header := append([]string{"step"}, result.StateNames...)
	header = append(header, result.FluxNames...)
	header = append(header, "calls", "method", "degraded")
	if err := w.Write(header); err != nil {
		return err
	}

	for i, rep := range result.Reports {
		row := []string{strconv.Itoa(i)}
		for _, v := range result.States[i+1] {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		for _, v := range result.Fluxes[i] {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		row = append(row, strconv.Itoa(rep.Calls), strconv.Itoa(rep.Method), strconv.FormatBool(rep.Degraded))
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func upper(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToUpper(n)
	}
	return out
}

func sortedMetricNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func listUnits(cmd *cobra.Command, args []string) error {
	registry := experiment.NewRegistry()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "UNIT\tPARAMS\tINITIAL\tPRESETS\tDESCRIPTION")
	for _, name := range registry.ListUnits() {
		spec, err := registry.Spec(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			name, formatMap(spec.Params), formatMap(spec.Initial),
			strings.Join(config.ListPresets(name), ","), spec.Description)
	}
	return w.Flush()
}

func formatMap(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, m[k])
	}
	return strings.Join(parts, " ")
}

func showTableau(cmd *cobra.Command, args []string) error {
	var consts *tableau.Constants
	if inPath != "" {
		f, err := os.Open(inPath)
		if err != nil {
			return err
		}
		defer f.Close()
		consts, err = tableau.Load(f, methods)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d methods, %d stages, valid\n", inPath, consts.Methods, consts.Stages)
	} else {
		var err error
		consts, err = tableau.New(methods)
		if err != nil {
			return err
		}
	}

	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := consts.Save(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("wrote %d methods to %s\n", consts.Methods, outPath)
		return nil
	}

	if methodIndex < 1 || methodIndex > consts.Methods {
		return fmt.Errorf("method must be in [1, %d], got %d", consts.Methods, methodIndex)
	}
	fmt.Println(viz.Title().Render(fmt.Sprintf("method %d", methodIndex)))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	head := []string{"STAGE"}
	for k := 0; k < methodIndex; k++ {
		head = append(head, fmt.Sprintf("k=%d", k))
	}
	fmt.Fprintln(w, strings.Join(head, "\t"))
	for s := 1; s <= methodIndex; s++ {
		row := []string{strconv.Itoa(s)}
		for _, c := range consts.Row(methodIndex-1, s)[:methodIndex] {
			row = append(row, fmt.Sprintf("%.10f", c))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

func compareSolvers(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	registry := experiment.NewRegistry()
	exp, err := experiment.New(registry, cfg, experiment.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	elsTime := time.Since(start)
	elsFinal := result.FinalState()

	fmt.Printf("comparing solvers for %s (steps=%d, tol=%g)\n\n", cfg.Unit, cfg.Steps, cfg.Solver.AbsErrorMax)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SOLVER\t%s\tCALLS\t|DIFF ELS|\tTIME\n", strings.Join(upper(result.StateNames), "\t"))
	fmt.Fprintf(w, "els\t%s\t%d\t-\t%v\n", formatVector(elsFinal), result.Calls, elsTime)

	for _, name := range registry.ListReferences() {
		start := time.Now()
		cmp, err := exp.Compare(ctx, name)
		if err != nil {
			return err
		}
		c := cmp[0]
		fmt.Fprintf(w, "%s\t%s\t%d\t%.3e\t%v\n",
			c.Name, formatVector(c.Final), c.Calls, c.Final.Sub(elsFinal).Norm(), time.Since(start))
	}
	return w.Flush()
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.8f", x)
	}
	return strings.Join(parts, "\t")
}

func calibrate(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	if observed != "" {
		obs, err := parseValues(observed)
		if err != nil {
			return fmt.Errorf("--observed: %w", err)
		}
		cfg.Observed = obs
	}
	if target != "" {
		cfg.Target = target
	}
	if len(cfg.Observed) == 0 || cfg.Target == "" {
		return fmt.Errorf("calibration needs observations and a target")
	}
	if len(grid) == 0 {
		return fmt.Errorf("calibration needs at least one --grid parameter")
	}
	cfg.Steps = min(cfg.Steps, len(cfg.Observed))

	names, ranges, err := parseGrid(grid)
	if err != nil {
		return err
	}

	registry := experiment.NewRegistry()
	build := func(p map[string]float64) (*experiment.Experiment, error) {
		c := cfg.Clone()
		c.Params = overlay(c.Params, p)
		return experiment.New(registry, c, experiment.WithLogger(logger))
	}

	ctx, cancel := signalContext()
	defer cancel()

	metric := "rmse_" + cfg.Target
	gs := optim.NewGridSearch(names, ranges, jobs)
	best, val, candidates, err := gs.Search(ctx, build, metric)
	if err != nil {
		return err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Err != nil || candidates[j].Err != nil {
			return candidates[j].Err != nil && candidates[i].Err == nil
		}
		return candidates[i].Value < candidates[j].Value
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.Join(upper(names), "\t"), strings.ToUpper(metric))
	for _, c := range candidates {
		row := make([]string, len(names))
		for i, n := range names {
			row[i] = fmt.Sprintf("%g", c.Params[n])
		}
		v := fmt.Sprintf("%.6g", c.Value)
		if c.Err != nil {
			v = "error: " + c.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\n", strings.Join(row, "\t"), v)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(viz.StatusOK().Render(fmt.Sprintf("best %s = %.6g", metric, val)))
	for _, n := range names {
		fmt.Println(viz.Metric(n, fmt.Sprintf("%g", best[n])))
	}
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	registry := experiment.NewRegistry()
	build := func() (*sim.Simulator, sim.Config, error) {
		exp, err := experiment.New(registry, cfg.Clone())
		if err != nil {
			return nil, sim.Config{}, err
		}
		return exp.GetSimulator(), exp.SimConfig(), nil
	}

	m, err := viz.NewModel(cfg.Unit, build)
	if err != nil {
		return err
	}
	return viz.Run(m)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	tols, err := parseValues(tolerances)
	if err != nil {
		return fmt.Errorf("--tols: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	sweep := &automation.ToleranceSweep{Base: cfg, Tolerances: tols, Limit: jobs}
	results, err := automation.RunSweep(ctx, sweep, experiment.NewRegistry())
	if err != nil {
		return err
	}

	fmt.Printf("tolerance sweep for %s (steps=%d, reference rk45)\n\n", cfg.Unit, cfg.Steps)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOL\tCALLS\tMEAN ORDER\tDEGRADED\tERROR")
	calls := make([]float64, len(results))
	for i, r := range results {
		fmt.Fprintf(w, "%.0e\t%d\t%.2f\t%d\t%.3e\n", r.Tolerance, r.Calls, r.MeanOrder, r.Degraded, r.Error)
		calls[i] = float64(r.Calls)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(calls) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(calls, asciigraph.Height(8), asciigraph.Caption("calls per tolerance")))
	}
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	results, err := automation.RunScenario(ctx, scenario, experiment.NewRegistry(), logger)
	if err != nil {
		return err
	}

	fmt.Println(viz.Title().Render(scenario.Name))
	if scenario.Description != "" {
		fmt.Println(viz.Subtle().Render(scenario.Description))
	}
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tUNIT\tSTEPS\tCALLS\tDEGRADED\tFINAL")
	for i, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\n",
			i+1, scenario.Runs[i].Unit, r.StepsTaken, r.Calls, r.DegradedSteps(), formatVector(r.FinalState()))
	}
	return w.Flush()
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	mc := &automation.MonteCarloConfig{
		Base:         cfg,
		Perturbation: perturbation,
		NumTrials:    trials,
		Seed:         seed,
		Limit:        jobs,
	}
	results, err := automation.RunMonteCarlo(ctx, mc, experiment.NewRegistry())
	if err != nil {
		return err
	}

	calls := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			logger.Warn("trial failed", slog.Int("trial", r.TrialID), slog.Any("error", r.Err))
			continue
		}
		calls = append(calls, float64(r.Calls))
	}

	clean, degraded, failed := automation.MonteCarloStats(results)
	fmt.Println(viz.Title().Render(fmt.Sprintf("%s: %d trials", cfg.Unit, len(results))))
	fmt.Println(viz.Metric("clean", strconv.Itoa(clean)))
	fmt.Println(viz.Metric("degraded", strconv.Itoa(degraded)))
	fmt.Println(viz.Metric("failed", strconv.Itoa(failed)))
	if len(calls) > 0 {
		fmt.Println(viz.MetricLabel().Render("calls") + viz.SparklineChart(calls, 50))
	}
	return nil
}
