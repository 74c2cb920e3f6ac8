// Package dynamics drives magnetization integrations: it owns the stepping
// loop, renormalization, divergence detection, thermal overlays, budgets and
// trajectory recording, leaving the vector field to the system and the
// stepping mathematics to the integrator.
package dynamics

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/alaweimm90/SpinCirc/internal/llg"
	"github.com/alaweimm90/SpinCirc/internal/spin"
)

// Status is the terminal state of a run.
type Status int

const (
	// Completed means the full duration was integrated.
	Completed Status = iota
	// Truncated means a step or wall-clock budget stopped the run early.
	Truncated
	// Diverged means the state left the representable range (NaN/Inf).
	Diverged
	// Canceled means the context was canceled between steps.
	Canceled
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Truncated:
		return "truncated"
	case Diverged:
		return "diverged"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

// Config tunes one run. Zero values take the documented defaults.
type Config struct {
	Dt       float64 // initial (or fixed) step, s
	Duration float64 // s

	Adaptive bool    // use embedded error control; requires an adaptive scheme
	Tol      float64 // adaptive error tolerance, default 1e-8
	MinDt    float64 // adaptive step floor, default Dt*1e-12

	MaxSteps int           // attempt budget, 0 = unlimited
	MaxWall  time.Duration // wall-clock budget, 0 = unlimited

	NormDriftTol float64 // per-step norm drift warning level, default 1e-6

	EnergyCheck bool    // fail the run when energy drift exceeds EnergyTol
	EnergyTol   float64 // default 1e-8 relative

	Record int // keep every k-th sample, default 1

	Thermal *llg.Thermal // stochastic field; forces fixed stepping
}

func (c Config) withDefaults() Config {
	if c.Tol <= 0 {
		c.Tol = 1e-8
	}
	if c.MinDt <= 0 {
		c.MinDt = c.Dt * 1e-12
	}
	if c.NormDriftTol <= 0 {
		c.NormDriftTol = 1e-6
	}
	if c.EnergyTol <= 0 {
		c.EnergyTol = 1e-8
	}
	if c.Record <= 0 {
		c.Record = 1
	}
	return c
}

// Validate reports configuration errors without running.
func (c Config) Validate() error {
	if c.Dt <= 0 || math.IsNaN(c.Dt) || math.IsInf(c.Dt, 0) {
		return spin.Invalid("dynamics.dt", "must be positive and finite, got %g", c.Dt)
	}
	if c.Duration <= 0 || math.IsNaN(c.Duration) || math.IsInf(c.Duration, 0) {
		return spin.Invalid("dynamics.duration", "must be positive and finite, got %g", c.Duration)
	}
	if c.MaxSteps < 0 {
		return spin.Invalid("dynamics.maxSteps", "must be non-negative, got %d", c.MaxSteps)
	}
	if c.Adaptive && c.Thermal != nil {
		return spin.Invalid("dynamics.adaptive", "adaptive stepping is incompatible with thermal noise")
	}
	return nil
}

// Info summarizes the numerical bookkeeping of one run.
type Info struct {
	Steps           int // attempts, including rejections
	Accepted        int
	Rejected        int
	FieldEvals      int
	MaxNormDrift    float64
	NormDriftEvents int
	EnergyDrift     float64 // relative when the initial energy is nonzero
	BudgetExceeded  bool
	LastDt          float64
	Elapsed         time.Duration
}

// Result is one recorded trajectory.
type Result struct {
	Times    []float64
	States   []spin.State
	Energies []float64 // empty unless the system reports energy
	Metrics  map[string]float64
	Status   Status
	Info     Info
}

// Final returns the last recorded state.
func (r *Result) Final() spin.State {
	if len(r.States) == 0 {
		return nil
	}
	return r.States[len(r.States)-1]
}

// Runner integrates one system. It is not safe for concurrent runs; sweeps
// construct one runner per goroutine.
type Runner struct {
	sys     spin.System
	integ   spin.Integrator
	metrics []spin.Metric
	log     *zap.Logger
}

// New returns a runner for sys stepped by integ.
func New(sys spin.System, integ spin.Integrator) *Runner {
	return &Runner{sys: sys, integ: integ, log: zap.NewNop()}
}

// SetLogger replaces the no-op logger.
func (r *Runner) SetLogger(log *zap.Logger) {
	if log != nil {
		r.log = log
	}
}

// AddMetric registers an observer evaluated at the initial state and after
// every accepted step.
func (r *Runner) AddMetric(m spin.Metric) { r.metrics = append(r.metrics, m) }

// counted wraps a system to count derivative evaluations.
type counted struct {
	spin.System
	n *int
}

func (c counted) Derive(x spin.State, t float64) spin.State {
	*c.n++
	return c.System.Derive(x, t)
}

// Run integrates x0 over cfg.Duration. It returns the recorded trajectory
// together with any terminal error; on divergence or cancellation the
// partial trajectory is still returned. Budget exhaustion is not an error:
// the result is truncated and flagged in Info.
func (r *Runner) Run(ctx context.Context, x0 spin.State, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(x0) != r.sys.Dim() {
		return nil, spin.Invalid("dynamics.state", "state size %d does not match system dimension %d", len(x0), r.sys.Dim())
	}
	if !x0.IsValid() {
		return nil, spin.Invalid("dynamics.state", "initial state contains NaN/Inf")
	}

	var llgSys *llg.System
	if cfg.Thermal != nil {
		var ok bool
		if llgSys, ok = r.sys.(*llg.System); !ok {
			return nil, spin.Invalid("dynamics.thermal", "thermal noise needs a magnetization system")
		}
		if err := cfg.Thermal.Validate(llgSys); err != nil {
			return nil, err
		}
		defer llgSys.SetStepOverlay(nil)
	}
	var adaptive spin.AdaptiveIntegrator
	if cfg.Adaptive {
		var ok bool
		if adaptive, ok = r.integ.(spin.AdaptiveIntegrator); !ok {
			return nil, spin.Invalid("dynamics.adaptive", "integrator has no embedded error estimate")
		}
	}

	res := &Result{Metrics: make(map[string]float64), Status: Completed}
	sys := counted{System: r.sys, n: &res.Info.FieldEvals}
	ham, hasEnergy := r.sys.(spin.Hamiltonian)
	renorm := r.sys.Dim()%3 == 0

	for _, m := range r.metrics {
		m.Reset()
	}

	x := x0.Clone()
	if renorm {
		r.renormalize(x, &res.Info, cfg.NormDriftTol)
	}
	t, dt := 0.0, cfg.Dt
	start := time.Now()

	record := func(step int) {
		if step%cfg.Record != 0 && t < cfg.Duration {
			return
		}
		res.Times = append(res.Times, t)
		res.States = append(res.States, x.Clone())
		if hasEnergy {
			res.Energies = append(res.Energies, ham.Energy(x, t))
		}
	}

	initialEnergy := 0.0
	if hasEnergy {
		initialEnergy = ham.Energy(x, 0)
	}
	record(0)
	for _, m := range r.metrics {
		m.Observe(x, 0)
	}

	r.log.Debug("run starting",
		zap.Int("dim", r.sys.Dim()),
		zap.Float64("dt", cfg.Dt),
		zap.Float64("duration", cfg.Duration),
		zap.Bool("adaptive", cfg.Adaptive),
		zap.Bool("thermal", cfg.Thermal != nil),
	)

	var runErr error
	var frozen []spin.Vec3

loop:
	for t < cfg.Duration {
		select {
		case <-ctx.Done():
			res.Status = Canceled
			runErr = ctx.Err()
			break loop
		default:
		}
		if cfg.MaxSteps > 0 && res.Info.Steps >= cfg.MaxSteps {
			res.Status = Truncated
			res.Info.BudgetExceeded = true
			break
		}
		if cfg.MaxWall > 0 && time.Since(start) > cfg.MaxWall {
			res.Status = Truncated
			res.Info.BudgetExceeded = true
			break
		}

		// Absorb the remainder into the final step once it is within 1.4
		// steps of the end, so a run never finishes on a vanishing step.
		stepDt := dt
		if t+1.4*dt >= cfg.Duration {
			stepDt = cfg.Duration - t
		}

		if llgSys != nil {
			frozen = cfg.Thermal.Fields(llgSys, stepDt, frozen)
			llgSys.SetStepOverlay(frozen)
		}

		res.Info.Steps++
		var next spin.State
		if adaptive != nil {
			cand, dtNext, ratio := adaptive.StepAdaptive(sys, x, t, stepDt, cfg.Tol)
			if ratio > 1 {
				res.Info.Rejected++
				if dtNext < cfg.MinDt {
					res.Status = Diverged
					runErr = &spin.StepError{Step: res.Info.Steps, Time: t, Err: spin.ErrNumericalInstability}
					break
				}
				dt = dtNext
				continue
			}
			next = cand
			dt = dtNext
		} else {
			next = r.integ.Step(sys, x, t, stepDt)
		}

		if !next.IsValid() {
			res.Status = Diverged
			runErr = &spin.StepError{Step: res.Info.Steps, Time: t, Err: spin.ErrNumericalInstability}
			r.log.Warn("state diverged", zap.Int("step", res.Info.Steps), zap.Float64("t", t))
			break
		}

		x = next
		t += stepDt
		res.Info.Accepted++
		res.Info.LastDt = stepDt
		if renorm {
			r.renormalize(x, &res.Info, cfg.NormDriftTol)
		}
		for _, m := range r.metrics {
			m.Observe(x, t)
		}
		record(res.Info.Accepted)
	}

	if res.Times[len(res.Times)-1] < t {
		res.Times = append(res.Times, t)
		res.States = append(res.States, x.Clone())
		if hasEnergy {
			res.Energies = append(res.Energies, ham.Energy(x, t))
		}
	}
	res.Info.Elapsed = time.Since(start)

	if hasEnergy {
		final := ham.Energy(x, t)
		if initialEnergy != 0 {
			res.Info.EnergyDrift = math.Abs(final-initialEnergy) / math.Abs(initialEnergy)
		} else {
			res.Info.EnergyDrift = math.Abs(final - initialEnergy)
		}
		if cfg.EnergyCheck && runErr == nil && res.Info.EnergyDrift > cfg.EnergyTol {
			runErr = &spin.StepError{Step: res.Info.Steps, Time: t, Err: spin.ErrNumericalInstability}
			r.log.Warn("energy drift beyond tolerance",
				zap.Float64("drift", res.Info.EnergyDrift),
				zap.Float64("tol", cfg.EnergyTol),
			)
		}
	}
	for _, m := range r.metrics {
		res.Metrics[m.Name()] = m.Value()
	}

	r.log.Debug("run finished",
		zap.Stringer("status", res.Status),
		zap.Int("steps", res.Info.Steps),
		zap.Int("rejected", res.Info.Rejected),
		zap.Float64("maxNormDrift", res.Info.MaxNormDrift),
		zap.Duration("elapsed", res.Info.Elapsed),
	)
	return res, runErr
}

// renormalize projects every moment back to unit length and records how far
// the integrator let it drift.
func (r *Runner) renormalize(x spin.State, info *Info, tol float64) {
	for i := 0; i < len(x)/3; i++ {
		m := x.Vec(i)
		n := m.Norm()
		if n == 0 {
			continue
		}
		drift := math.Abs(n - 1)
		if drift > info.MaxNormDrift {
			info.MaxNormDrift = drift
		}
		if drift > tol {
			info.NormDriftEvents++
			if info.NormDriftEvents == 1 {
				r.log.Warn("norm drift beyond tolerance", zap.Float64("drift", drift), zap.Float64("tol", tol))
			}
		}
		x.SetVec(i, m.Scale(1/n))
	}
}
