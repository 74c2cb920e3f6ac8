// Package couple closes the loop between transport and magnetization
// dynamics: the conductance network is solved at the instantaneous layer
// magnetizations, and the absorbed transverse spin currents drive the
// magnetization as spin-transfer torques.
package couple

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/alaweimm90/SpinCirc/internal/dynamics"
	"github.com/alaweimm90/SpinCirc/internal/llg"
	"github.com/alaweimm90/SpinCirc/internal/spin"
	"github.com/alaweimm90/SpinCirc/internal/stack"
	"github.com/alaweimm90/SpinCirc/internal/transport"
)

// Mode selects how tightly transport follows the magnetization.
type Mode int

const (
	// QuasiStatic freezes the torque over each outer step and iterates
	// transport and dynamics to a fixed point before committing the step.
	QuasiStatic Mode = iota
	// Dynamic re-solves transport inside every derivative evaluation.
	Dynamic
)

func (m Mode) String() string {
	switch m {
	case QuasiStatic:
		return "quasi-static"
	case Dynamic:
		return "dynamic"
	}
	return "unknown"
}

// Options tunes the coupling. The mode is always caller-chosen.
type Options struct {
	Mode          Mode
	FixedPointTol float64 // quasi-static torque tolerance, default 1e-6
	MaxFixedPoint int     // iteration cap per outer step, default 50
	OuterDt       float64 // quasi-static outer step, default 10x the inner dt
	Transport     transport.Options
	Log           *zap.Logger
}

// Result extends a dynamics trajectory with the transport side of the run.
type Result struct {
	*dynamics.Result

	// Operating is the transport solution at the last committed
	// magnetization.
	Operating *transport.Solution
	// Solves counts conductance build+solve evaluations.
	Solves int
	// OuterIters records fixed-point iterations per outer step; nil in
	// dynamic mode.
	OuterIters []int
}

// Orchestrator owns one coupled stack: the transport network, its boundary
// conditions and the dynamical system whose layers mirror the stack's
// magnets. It is not safe for concurrent runs.
type Orchestrator struct {
	stk   *stack.Stack
	bcs   []transport.BoundaryCondition
	sys   *llg.System
	integ spin.Integrator
	opt   Options
	log   *zap.Logger
}

// New validates the wiring between stack and dynamics. sys must carry one
// layer per magnetic stack layer, in stack order, each with Ms and Volume
// set so absorbed spin currents convert to torque.
func New(stk *stack.Stack, bcs []transport.BoundaryCondition, sys *llg.System, integ spin.Integrator, opt Options) (*Orchestrator, error) {
	magnets := stk.MagneticLayers()
	if len(magnets) == 0 {
		return nil, spin.Invalid("couple.stack", "coupling needs at least one magnetic layer")
	}
	if len(sys.Layers) != len(magnets) {
		return nil, spin.Invalid("couple.system", "%d dynamic layers for %d magnetic stack layers", len(sys.Layers), len(magnets))
	}
	for i := range sys.Layers {
		if l := &sys.Layers[i]; l.Ms <= 0 || l.Volume <= 0 {
			return nil, spin.Invalid("couple.system", "layer %d: torque coupling needs Ms and Volume", i)
		}
	}
	switch opt.Mode {
	case QuasiStatic, Dynamic:
	default:
		return nil, spin.Invalid("couple.mode", "unknown mode %d", int(opt.Mode))
	}
	if opt.FixedPointTol <= 0 {
		opt.FixedPointTol = 1e-6
	}
	if opt.MaxFixedPoint <= 0 {
		opt.MaxFixedPoint = 50
	}
	log := opt.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{stk: stk, bcs: bcs, sys: sys, integ: integ, opt: opt, log: log}, nil
}

// Run integrates the coupled system over cfg.Duration. Transport failures
// are fatal and returned alongside the partial trajectory; budget exhaustion
// truncates without error, as in an uncoupled run. EnergyCheck is cleared:
// spin-transfer torques do work on the moments.
func (o *Orchestrator) Run(ctx context.Context, x0 spin.State, cfg dynamics.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(x0) != o.sys.Dim() {
		return nil, spin.Invalid("couple.state", "state size %d does not match system dimension %d", len(x0), o.sys.Dim())
	}
	if !x0.IsValid() {
		return nil, spin.Invalid("couple.state", "initial state contains NaN/Inf")
	}
	cfg.EnergyCheck = false
	if o.opt.Mode == Dynamic {
		return o.runDynamic(ctx, x0, cfg)
	}
	if cfg.Thermal != nil {
		return nil, spin.Invalid("couple.thermal", "thermal noise requires dynamic coupling")
	}
	return o.runQuasiStatic(ctx, x0, cfg)
}

// solveAt rebuilds the conductance network at the given magnetizations and
// solves the operating point.
func (o *Orchestrator) solveAt(ms []spin.Vec3, solves *int) (*transport.Solution, error) {
	ts, err := transport.Build(o.stk, ms, o.opt.Transport)
	if err != nil {
		return nil, err
	}
	*solves++
	return ts.Solve(o.bcs)
}

func (o *Orchestrator) runDynamic(ctx context.Context, x0 spin.State, cfg dynamics.Config) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	res := &Result{}
	zero := make([]spin.Vec3, len(o.sys.Layers))
	var latched error
	o.sys.Torque = func(t float64, m []spin.Vec3) []spin.Vec3 {
		if latched != nil {
			return zero
		}
		sol, err := o.solveAt(m, &res.Solves)
		if err != nil {
			latched = err
			cancel()
			return zero
		}
		return sol.Torques()
	}
	defer func() { o.sys.Torque = nil }()

	runner := dynamics.New(o.sys, o.integ)
	runner.SetLogger(o.log)
	inner, err := runner.Run(ctx, x0, cfg)
	if inner == nil {
		return nil, err
	}
	res.Result = inner
	if latched != nil {
		res.Status = dynamics.Diverged
		return res, latched
	}
	if err != nil {
		return res, err
	}

	op, err := o.solveAt(spin.Unpack(inner.Final()), &res.Solves)
	if err != nil {
		return res, err
	}
	res.Operating = op
	o.log.Debug("dynamic coupling finished",
		zap.Int("solves", res.Solves),
		zap.Int("steps", res.Info.Steps),
	)
	return res, nil
}

func (o *Orchestrator) runQuasiStatic(ctx context.Context, x0 spin.State, cfg dynamics.Config) (*Result, error) {
	outer := o.opt.OuterDt
	if outer <= 0 {
		outer = 10 * cfg.Dt
	}
	if outer < cfg.Dt {
		return nil, spin.Invalid("couple.outerDt", "outer step %g below inner step %g", outer, cfg.Dt)
	}

	res := &Result{Result: &dynamics.Result{
		Metrics: make(map[string]float64),
		Status:  dynamics.Completed,
	}}
	x := x0.Clone()
	normalize(x)
	res.Times = append(res.Times, 0)
	res.States = append(res.States, x.Clone())
	res.Energies = append(res.Energies, o.sys.Energy(x, 0))

	t := 0.0
	start := time.Now()
	var runErr error

loop:
	for t < cfg.Duration {
		select {
		case <-ctx.Done():
			res.Status = dynamics.Canceled
			runErr = ctx.Err()
			break loop
		default:
		}
		if cfg.MaxSteps > 0 && res.Info.Steps >= cfg.MaxSteps {
			res.Status = dynamics.Truncated
			res.Info.BudgetExceeded = true
			break
		}
		if cfg.MaxWall > 0 && time.Since(start) > cfg.MaxWall {
			res.Status = dynamics.Truncated
			res.Info.BudgetExceeded = true
			break
		}

		stepOuter := outer
		if t+1.4*outer >= cfg.Duration {
			stepOuter = cfg.Duration - t
		}

		oc := o.fixedPoint(ctx, x, t, stepOuter, cfg, res, start)
		res.OuterIters = append(res.OuterIters, oc.iters)
		if oc.inner != nil && len(oc.inner.States) > 0 && oc.err == nil {
			res.commit(oc.inner, t)
			x = oc.inner.Final()
			if oc.sol != nil {
				res.Operating = oc.sol
			}
		}
		if oc.err != nil {
			if errors.Is(oc.err, context.Canceled) || errors.Is(oc.err, context.DeadlineExceeded) {
				res.Status = dynamics.Canceled
			} else {
				res.Status = dynamics.Diverged
			}
			runErr = oc.err
			break
		}
		if oc.stop {
			res.Status = dynamics.Truncated
			res.Info.BudgetExceeded = true
			break
		}
		t += stepOuter
		o.log.Debug("outer step committed",
			zap.Float64("t", t),
			zap.Int("iterations", oc.iters),
		)
	}

	res.Info.Elapsed = time.Since(start)
	if n := len(res.Energies); n > 1 {
		drift := math.Abs(res.Energies[n-1] - res.Energies[0])
		if e0 := res.Energies[0]; e0 != 0 {
			drift /= math.Abs(e0)
		}
		res.Info.EnergyDrift = drift
	}
	return res, runErr
}

// outcome is one outer step's verdict.
type outcome struct {
	inner *dynamics.Result // sub-trajectory to commit, nil if none
	sol   *transport.Solution
	iters int
	stop  bool // stop the outer loop after committing (budget)
	err   error
}

// fixedPoint iterates transport and a frozen-torque trial advance until the
// recomputed torque agrees with the frozen one within tolerance.
func (o *Orchestrator) fixedPoint(ctx context.Context, x spin.State, t0, dt float64, cfg dynamics.Config, res *Result, start time.Time) outcome {
	sol, err := o.solveAt(spin.Unpack(x), &res.Solves)
	if err != nil {
		return outcome{err: err}
	}
	tau := sol.Torques()

	var resid, scale float64
	for k := 1; k <= o.opt.MaxFixedPoint; k++ {
		inner, err := o.trial(ctx, x, t0, dt, tau, cfg, res, start)
		if err != nil {
			return outcome{iters: k, err: err}
		}
		if inner.Info.BudgetExceeded {
			return outcome{inner: inner, sol: sol, iters: k, stop: true}
		}
		solNext, err := o.solveAt(spin.Unpack(inner.Final()), &res.Solves)
		if err != nil {
			return outcome{iters: k, err: err}
		}
		next := solNext.Torques()
		resid = maxDelta(next, tau)
		scale = 1 + maxNorm(tau)
		if resid <= o.opt.FixedPointTol*scale {
			return outcome{inner: inner, sol: solNext, iters: k}
		}
		tau = next
		sol = solNext
	}
	return outcome{iters: o.opt.MaxFixedPoint, err: &spin.ConvergenceError{
		Iterations: o.opt.MaxFixedPoint,
		Residual:   resid,
		Tolerance:  o.opt.FixedPointTol * scale,
	}}
}

// trial advances x over [t0, t0+dur] under a frozen torque. Counters
// accumulate into res whether or not the trial is later committed.
func (o *Orchestrator) trial(ctx context.Context, x spin.State, t0, dur float64, tau []spin.Vec3, cfg dynamics.Config, res *Result, start time.Time) (*dynamics.Result, error) {
	tcfg := cfg
	tcfg.Duration = dur
	if cfg.MaxSteps > 0 {
		remaining := cfg.MaxSteps - res.Info.Steps
		if remaining <= 0 {
			return &dynamics.Result{Status: dynamics.Truncated, Info: dynamics.Info{BudgetExceeded: true}}, nil
		}
		tcfg.MaxSteps = remaining
	}
	if cfg.MaxWall > 0 {
		remaining := cfg.MaxWall - time.Since(start)
		if remaining <= 0 {
			return &dynamics.Result{Status: dynamics.Truncated, Info: dynamics.Info{BudgetExceeded: true}}, nil
		}
		tcfg.MaxWall = remaining
	}

	frozen := make([]spin.Vec3, len(tau))
	copy(frozen, tau)
	o.sys.Torque = func(float64, []spin.Vec3) []spin.Vec3 { return frozen }
	defer func() { o.sys.Torque = nil }()

	inner, err := dynamics.New(&shifted{sys: o.sys, t0: t0}, o.integ).Run(ctx, x, tcfg)
	if inner != nil {
		res.absorb(inner.Info)
	}
	return inner, err
}

// shifted presents the coupled system on a local clock starting at t0, so
// inner runs integrate [0, dur] while drives see absolute time.
type shifted struct {
	sys *llg.System
	t0  float64
}

func (s *shifted) Dim() int { return s.sys.Dim() }
func (s *shifted) Derive(x spin.State, t float64) spin.State {
	return s.sys.Derive(x, s.t0+t)
}
func (s *shifted) Energy(x spin.State, t float64) float64 {
	return s.sys.Energy(x, s.t0+t)
}

// commit appends an inner trajectory, dropping its initial sample, which
// duplicates the committed head.
func (r *Result) commit(inner *dynamics.Result, t0 float64) {
	for i := 1; i < len(inner.Times); i++ {
		r.Times = append(r.Times, t0+inner.Times[i])
		r.States = append(r.States, inner.States[i])
	}
	if len(inner.Energies) > 1 {
		r.Energies = append(r.Energies, inner.Energies[1:]...)
	}
}

// absorb accumulates a trial's counters.
func (r *Result) absorb(info dynamics.Info) {
	r.Info.Steps += info.Steps
	r.Info.Accepted += info.Accepted
	r.Info.Rejected += info.Rejected
	r.Info.FieldEvals += info.FieldEvals
	r.Info.NormDriftEvents += info.NormDriftEvents
	r.Info.MaxNormDrift = math.Max(r.Info.MaxNormDrift, info.MaxNormDrift)
	if info.LastDt > 0 {
		r.Info.LastDt = info.LastDt
	}
}

func normalize(x spin.State) {
	for i := 0; i < len(x)/3; i++ {
		m := x.Vec(i)
		if n := m.Norm(); n != 0 {
			x.SetVec(i, m.Scale(1/n))
		}
	}
}

func maxNorm(v []spin.Vec3) float64 {
	out := 0.0
	for _, w := range v {
		out = math.Max(out, w.Norm())
	}
	return out
}

func maxDelta(a, b []spin.Vec3) float64 {
	out := 0.0
	for i := range a {
		out = math.Max(out, a[i].Sub(b[i]).Norm())
	}
	return out
}
