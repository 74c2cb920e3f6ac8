package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alaweimm90/SpinCirc/internal/analysis"
	"github.com/alaweimm90/SpinCirc/internal/config"
	"github.com/alaweimm90/SpinCirc/internal/couple"
	"github.com/alaweimm90/SpinCirc/internal/device"
	"github.com/alaweimm90/SpinCirc/internal/dynamics"
	"github.com/alaweimm90/SpinCirc/internal/llg"
	"github.com/alaweimm90/SpinCirc/internal/material"
	"github.com/alaweimm90/SpinCirc/internal/metrics"
	"github.com/alaweimm90/SpinCirc/internal/spin"
	"github.com/alaweimm90/SpinCirc/internal/stack"
	"github.com/alaweimm90/SpinCirc/internal/storage"
	"github.com/alaweimm90/SpinCirc/internal/sweep"
	"github.com/alaweimm90/SpinCirc/internal/transport"
)

var (
	dataDir string
	verbose bool

	configFile string
	schemeFlag string
	modeFlag   string
	dtFlag     float64
	durFlag    float64
	biasFlag   float64
	tempFlag   float64
	seedFlag   int64
	recordFlag int
	thermFlag  bool

	spanFlags   []string
	runsFlag    int
	workersFlag int

	formatFlag    string
	momentFlag    string
	componentFlag string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "spincirc",
		Short: "spin transport and magnetization dynamics lab",
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".spincirc", "data directory")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [family/preset]",
		Short: "run one simulation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addConfigFlags(runCmd)

	mrCmd := &cobra.Command{
		Use:   "mr",
		Short: "magnetoresistance of the reference spin valve",
		RunE:  mrTable,
	}
	mrCmd.Flags().Float64Var(&biasFlag, "bias", 2e-3, "probe bias (V)")
	mrCmd.Flags().Float64Var(&tempFlag, "temp", 0, "temperature (K), 0 keeps 300 K parameters")

	sweepCmd := &cobra.Command{
		Use:   "sweep [family/preset]",
		Short: "sweep parameters or run a seed ensemble",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&spanFlags, "span", nil, "parameter span, name=min:max:steps or name=value")
	sweepCmd.Flags().IntVar(&runsFlag, "runs", 0, "ensemble size (instead of spans)")
	sweepCmd.Flags().IntVar(&workersFlag, "workers", 0, "parallel workers, 0 = all cpus")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored trajectory",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&momentFlag, "moment", "0", "moment label or index")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "precession spectrum of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().StringVar(&momentFlag, "moment", "0", "moment label or index")
	analyzeCmd.Flags().StringVar(&componentFlag, "component", "x", "component x, y or z")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&formatFlag, "format", "json", "output format, json or csv")

	materialsCmd := &cobra.Command{
		Use:   "materials",
		Short: "list built-in materials",
		RunE:  listMaterials,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [family]",
		Short: "list preset configurations",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	rootCmd.AddCommand(runCmd, mrCmd, sweepCmd, listCmd, plotCmd, analyzeCmd, exportCmd, materialsCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file (yaml), overrides the preset")
	cmd.Flags().StringVar(&schemeFlag, "scheme", config.DefaultScheme, "integration scheme")
	cmd.Flags().StringVar(&modeFlag, "mode", config.ModeQuasiStatic, "coupling mode: quasi-static, dynamic or open")
	cmd.Flags().Float64Var(&dtFlag, "dt", config.DefaultDt, "timestep (s)")
	cmd.Flags().Float64Var(&durFlag, "time", config.DefaultDuration, "duration (s)")
	cmd.Flags().Float64Var(&biasFlag, "bias", config.DefaultBias, "bias across the stack (V)")
	cmd.Flags().Float64Var(&tempFlag, "temp", 0, "temperature (K)")
	cmd.Flags().BoolVar(&thermFlag, "thermal", false, "add thermal field noise")
	cmd.Flags().Int64Var(&seedFlag, "seed", 0, "noise seed")
	cmd.Flags().IntVar(&recordFlag, "record", config.DefaultRecord, "keep every k-th sample")
}

func logger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// resolveConfig layers the preset, then the config file, then explicit flags.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if len(args) > 0 {
		family, name, ok := strings.Cut(args[0], "/")
		if !ok {
			return nil, fmt.Errorf("preset must be family/name, got %q", args[0])
		}
		cfg = config.GetPreset(family, name)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %s (families: %s)", args[0], strings.Join(config.Families(), ", "))
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	f := cmd.Flags()
	if f.Changed("scheme") {
		cfg.Run.Scheme = schemeFlag
	}
	if f.Changed("mode") {
		cfg.Run.CouplingMode = modeFlag
	}
	if f.Changed("dt") {
		cfg.Run.Dt = dtFlag
	}
	if f.Changed("time") {
		cfg.Run.Duration = durFlag
	}
	if f.Changed("bias") {
		cfg.Transport.Bias = biasFlag
	}
	if f.Changed("temp") {
		cfg.Run.Temperature = tempFlag
	}
	if f.Changed("thermal") {
		cfg.Run.ThermalNoise = thermFlag
	}
	if f.Changed("seed") {
		cfg.Run.Seed = seedFlag
	}
	if f.Changed("record") {
		cfg.Run.Record = recordFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// assembled is one run's fully resolved setup.
type assembled struct {
	cfg    *config.Config
	stk    *stack.Stack
	sys    *llg.System
	integ  spin.Integrator
	dyn    dynamics.Config
	labels []string
}

func assemble(cfg *config.Config) (*assembled, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	stk, err := cfg.Stack(reg)
	if err != nil {
		return nil, err
	}
	sys, err := cfg.System(stk)
	if err != nil {
		return nil, err
	}
	integ, err := cfg.Integrator()
	if err != nil {
		return nil, err
	}
	dyn, err := cfg.Dynamics()
	if err != nil {
		return nil, err
	}
	return &assembled{cfg: cfg, stk: stk, sys: sys, integ: integ, dyn: dyn, labels: momentLabels(stk)}, nil
}

func momentLabels(stk *stack.Stack) []string {
	idxs := stk.MagneticLayers()
	out := make([]string, len(idxs))
	for k, i := range idxs {
		out[k] = stk.Layers[i].Name
	}
	return out
}

// execute runs one assembled setup, coupled or open depending on the mode.
func execute(ctx context.Context, a *assembled, log *zap.Logger) (*dynamics.Result, *transport.Solution, int, error) {
	x0 := a.cfg.X0(a.stk)
	if a.cfg.Coupled() {
		opt, err := a.cfg.CoupleOptions()
		if err != nil {
			return nil, nil, 0, err
		}
		opt.Log = log
		orc, err := couple.New(a.stk, a.cfg.BoundaryConditions(a.stk), a.sys, a.integ, opt)
		if err != nil {
			return nil, nil, 0, err
		}
		res, err := orc.Run(ctx, x0, a.dyn)
		if res == nil {
			return nil, nil, 0, err
		}
		return res.Result, res.Operating, res.Solves, err
	}

	runner := dynamics.New(a.sys, a.integ)
	runner.SetLogger(log)
	runner.AddMetric(metrics.NewNormDrift())
	runner.AddMetric(metrics.NewEnergyDrift(a.sys))
	if idxs := a.stk.MagneticLayers(); len(idxs) > 0 {
		runner.AddMetric(metrics.NewAlignment(0, a.stk.Layers[idxs[0]].EasyAxis))
	}
	res, err := runner.Run(ctx, x0, a.dyn)
	return res, nil, 0, err
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	a, err := assemble(cfg)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	fmt.Printf("running %s (%s, %s)...\n", cfg.Name, cfg.Scheme(), cfg.Mode())
	start := time.Now()
	res, op, solves, runErr := execute(context.Background(), a, logger())
	if res == nil {
		return runErr
	}
	elapsed := time.Since(start)

	id, err := st.Save(storage.Run{Config: cfg, Moments: a.labels, Result: res, Operating: op, Solves: solves})
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", id)
	fmt.Printf("status: %s\n", res.Status)
	fmt.Printf("steps: %d (field evals: %d)\n", res.Info.Steps, res.Info.FieldEvals)
	if solves > 0 {
		fmt.Printf("transport solves: %d\n", solves)
	}
	if op != nil {
		if r, err := op.TotalResistance(); err == nil {
			fmt.Printf("resistance: %.6g ohm\n", r)
		}
	}
	if final := res.Final(); final != nil {
		for k, label := range a.labels {
			m := final.Vec(k)
			fmt.Printf("final %s: [%+.4f %+.4f %+.4f]\n", label, m.X, m.Y, m.Z)
		}
	}
	if len(res.Metrics) > 0 {
		fmt.Println("\nmetrics:")
		names := make([]string, 0, len(res.Metrics))
		for name := range res.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %s: %.6g\n", name, res.Metrics[name])
		}
	}
	return runErr
}

func mrTable(cmd *cobra.Command, args []string) error {
	valve := device.NewSpinValve()
	valve.Bias = biasFlag
	valve.Temperature = tempFlag

	rp, err := valve.Resistance(valve.FixedAxis)
	if err != nil {
		return err
	}
	rap, err := valve.Resistance(valve.FixedAxis.Scale(-1))
	if err != nil {
		return err
	}
	ratio, err := analysis.MRRatio(rp, rap)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tRESISTANCE")
	fmt.Fprintf(w, "parallel\t%.6g ohm\n", rp)
	fmt.Fprintf(w, "antiparallel\t%.6g ohm\n", rap)
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nmr ratio: %.2f%%\n", 100*ratio)
	return nil
}

// applyParam maps a sweep parameter name onto a config field.
func applyParam(cfg *config.Config, name string, v float64) error {
	switch name {
	case "bias":
		cfg.Transport.Bias = v
	case "dt":
		cfg.Run.Dt = v
	case "duration":
		cfg.Run.Duration = v
	case "temperature", "temp":
		cfg.Run.Temperature = v
	case "bx":
		cfg.Run.Field.X = v
	case "by":
		cfg.Run.Field.Y = v
	case "bz":
		cfg.Run.Field.Z = v
	default:
		return fmt.Errorf("unknown sweep parameter %q (have bias, dt, duration, temperature, bx, by, bz)", name)
	}
	return nil
}

// observables reduces one finished run to sweep metrics.
func observables(a *assembled, res *dynamics.Result, op *transport.Solution) map[string]float64 {
	out := map[string]float64{"steps": float64(res.Info.Steps)}
	for name, v := range res.Metrics {
		out[name] = v
	}
	if final := res.Final(); final != nil {
		for k, label := range a.labels {
			out["mz_"+label] = final.Vec(k).Z
		}
	}
	if op != nil {
		if r, err := op.TotalResistance(); err == nil {
			out["resistance"] = r
		}
	}
	return out
}

func runSweep(cmd *cobra.Command, args []string) error {
	base, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	if len(spanFlags) > 0 && runsFlag > 0 {
		return fmt.Errorf("use either --span or --runs, not both")
	}
	if len(spanFlags) == 0 && runsFlag <= 0 {
		return fmt.Errorf("need at least one --span, or --runs for an ensemble")
	}

	fn := func(ctx context.Context, idx int, pt sweep.Point, seed int64) (map[string]float64, error) {
		cfg := base.Clone()
		for name, v := range pt {
			if err := applyParam(cfg, name, v); err != nil {
				return nil, err
			}
		}
		cfg.Run.Seed = seed
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		a, err := assemble(cfg)
		if err != nil {
			return nil, err
		}
		res, op, _, err := execute(ctx, a, zap.NewNop())
		if err != nil {
			return nil, err
		}
		return observables(a, res, op), nil
	}

	runner := sweep.Runner{Workers: workersFlag, BaseSeed: base.Run.Seed, Log: logger()}
	ctx := context.Background()

	var spans []sweep.Span
	var results []sweep.Result
	if runsFlag > 0 {
		fmt.Printf("ensemble of %d runs (%s)...\n", runsFlag, base.Name)
		results, err = runner.Ensemble(ctx, runsFlag, sweep.Point{}, fn)
	} else {
		for _, arg := range spanFlags {
			sp, perr := sweep.ParseSpan(arg)
			if perr != nil {
				return perr
			}
			spans = append(spans, sp)
		}
		var points []sweep.Point
		points, err = sweep.Grid(spans...)
		if err != nil {
			return err
		}
		fmt.Printf("sweep over %d points (%s)...\n", len(points), base.Name)
		results, err = runner.Run(ctx, points, fn)
	}
	if err != nil {
		return err
	}

	metricNames := sweepMetricNames(results)
	if len(spans) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		header := "IDX"
		for _, sp := range spans {
			header += "\t" + strings.ToUpper(sp.Name)
		}
		for _, name := range metricNames {
			header += "\t" + strings.ToUpper(name)
		}
		fmt.Fprintln(w, header)
		for _, r := range results {
			row := strconv.Itoa(r.Index)
			for _, sp := range spans {
				row += fmt.Sprintf("\t%.6g", r.Point[sp.Name])
			}
			if r.Err != nil {
				row += "\terror: " + r.Err.Error()
			} else {
				for _, name := range metricNames {
					row += fmt.Sprintf("\t%.6g", r.Values[name])
				}
			}
			fmt.Fprintln(w, row)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if len(metricNames) > 0 {
		fmt.Println("\naggregates:")
		for _, name := range metricNames {
			sum, err := sweep.Aggregate(results, name)
			if err != nil {
				fmt.Printf("  %s: %v\n", name, err)
				continue
			}
			fmt.Printf("  %s: %.6g ± %.3g (%d runs, %d failed)\n", name, sum.Mean, sum.Std, sum.Runs, sum.Failed)
		}
	}
	return nil
}

func sweepMetricNames(results []sweep.Result) []string {
	for _, r := range results {
		if r.Err == nil && r.Values != nil {
			names := make([]string, 0, len(r.Values))
			for name := range r.Values {
				names = append(names, name)
			}
			sort.Strings(names)
			return names
		}
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tDURATION\tDT\tSCHEME\tMODE\tSTATUS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.3gs\t%.3gs\t%s\t%s\t%s\n",
			run.ID,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Scheme,
			run.Mode,
			run.Status,
		)
	}
	return w.Flush()
}

// momentIndex resolves a --moment flag against the stored labels, by label
// first and by index second.
func momentIndex(labels []string, sel string) (int, error) {
	for i, l := range labels {
		if l == sel {
			return i, nil
		}
	}
	idx, err := strconv.Atoi(sel)
	if err != nil || idx < 0 || idx >= len(labels) {
		return 0, fmt.Errorf("unknown moment %q (have %s)", sel, strings.Join(labels, ", "))
	}
	return idx, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	traj, err := st.LoadTrajectory(args[0])
	if err != nil {
		return err
	}
	if len(traj.Times) == 0 {
		return fmt.Errorf("no data to plot")
	}
	layer, err := momentIndex(traj.Labels, momentFlag)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("name: %s\n", meta.Name)
	fmt.Printf("samples: %d\n\n", len(traj.Times))

	for comp, axis := range []string{"x", "y", "z"} {
		data, err := analysis.Series(traj.States, layer, comp)
		if err != nil {
			return err
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("%s m%s", traj.Labels[layer], axis)),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	if len(traj.Energies) == len(traj.Times) {
		graph := asciigraph.Plot(traj.Energies,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("energy"),
		)
		fmt.Println(graph)
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	traj, err := st.LoadTrajectory(args[0])
	if err != nil {
		return err
	}
	layer, err := momentIndex(traj.Labels, momentFlag)
	if err != nil {
		return err
	}
	comp := strings.Index("xyz", componentFlag)
	if comp < 0 || len(componentFlag) != 1 {
		return fmt.Errorf("component must be x, y or z, got %q", componentFlag)
	}

	freqs, power, err := analysis.PrecessionSpectrum(traj.Times, traj.States, layer, comp)
	if err != nil {
		return err
	}

	fmt.Printf("precession spectrum: %s\n", meta.ID)
	fmt.Printf("moment: %s, component: m%s\n\n", traj.Labels[layer], componentFlag)

	plotData := power
	if len(power)/4 >= 2 {
		plotData = power[:len(power)/4]
	}
	graph := asciigraph.Plot(plotData,
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption("power spectrum"),
	)
	fmt.Println(graph)
	fmt.Println()

	f, p := analysis.DominantFrequency(freqs, power)
	fmt.Printf("dominant line: %.6g hz (power %.3g)\n", f, p)
	if f > 0 {
		fmt.Printf("period: %.6g s\n", 1/f)
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	switch formatFlag {
	case "json":
		return st.ExportJSON(os.Stdout, args[0])
	case "csv":
		return st.ExportCSV(os.Stdout, args[0])
	}
	return fmt.Errorf("unknown format %q (have json, csv)", formatFlag)
}

func listMaterials(cmd *cobra.Command, args []string) error {
	reg := material.BuiltIn()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tRHO (ohm·m)\tPOL\tLSF (m)\tMS (A/m)\tTC (K)\tALPHA")
	for _, name := range reg.Names() {
		m, err := reg.Get(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%.3g\t%.2f\t%.3g\t%.3g\t%.0f\t%.3g\n",
			m.Name, m.Resistivity, m.Polarization, m.SpinDiffusion, m.Ms, m.Tc, m.Damping)
	}
	return w.Flush()
}

func listPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		names := config.ListPresets(args[0])
		if names == nil {
			return fmt.Errorf("unknown preset family %q (have: %s)", args[0], strings.Join(config.Families(), ", "))
		}
		for _, n := range names {
			fmt.Printf("%s/%s\n", args[0], n)
		}
		return nil
	}
	for _, family := range config.Families() {
		for _, n := range config.ListPresets(family) {
			fmt.Printf("%s/%s\n", family, n)
		}
	}
	return nil
}
