package couple

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/alaweimm90/SpinCirc/internal/dynamics"
	"github.com/alaweimm90/SpinCirc/internal/integrators"
	"github.com/alaweimm90/SpinCirc/internal/llg"
	"github.com/alaweimm90/SpinCirc/internal/material"
	"github.com/alaweimm90/SpinCirc/internal/spin"
	"github.com/alaweimm90/SpinCirc/internal/stack"
	"github.com/alaweimm90/SpinCirc/internal/transport"
)

const (
	gammaE   = 1.76e11
	msCoFeB  = 1.2e6
	layerVol = 3e-9 * 100e-9 * 50e-9
)

var mats = material.BuiltIn()

func valveLayer(t *testing.T, name, mat string, lengthNm float64, m0 spin.Vec3) stack.Layer {
	t.Helper()
	m, err := mats.Get(mat)
	if err != nil {
		t.Fatalf("material %s: %v", mat, err)
	}
	return stack.Layer{
		Name:     name,
		Material: m,
		Geometry: stack.Geometry{Length: lengthNm * 1e-9, Width: 100e-9, Thickness: 50e-9},
		EasyAxis: spin.Vec3{Z: 1},
		M0:       m0,
	}
}

// valveParts builds a free/spacer/fixed spin valve and a matching two-moment
// dynamical system. terms apply to the free layer only.
func valveParts(t *testing.T, terms ...llg.Term) (*stack.Stack, *llg.System) {
	t.Helper()
	stk, err := stack.New(
		valveLayer(t, "free", "CoFeB", 3, spin.Vec3{X: 1}),
		valveLayer(t, "spacer", "Cu", 5, spin.Vec3{}),
		valveLayer(t, "fixed", "CoFeB", 3, spin.Vec3{Z: 1}),
	)
	if err != nil {
		t.Fatalf("stack: %v", err)
	}
	sys, err := llg.NewSystem(gammaE, 0.01,
		llg.Layer{Ms: msCoFeB, Volume: layerVol, Terms: terms},
		llg.Layer{Ms: msCoFeB, Volume: layerVol},
	)
	if err != nil {
		t.Fatalf("system: %v", err)
	}
	return stk, sys
}

func bias(v float64) []transport.BoundaryCondition {
	return []transport.BoundaryCondition{
		transport.ApplyVoltage(0, v),
		transport.GroundCharge(3),
	}
}

func x0() spin.State {
	return spin.Pack([]spin.Vec3{{X: 1}, {Z: 1}})
}

func TestQuasiStaticZeroBiasMatchesOpenLoop(t *testing.T) {
	cfg := dynamics.Config{Dt: 1e-12, Duration: 1e-10}
	field := llg.Uniform{B: spin.Vec3{Z: 0.05}}

	stk, sys := valveParts(t, field)
	orch, err := New(stk, bias(0), sys, integrators.NewRK4(), Options{
		Mode:    QuasiStatic,
		OuterDt: 1e-11,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	coupled, err := orch.Run(context.Background(), x0(), cfg)
	if err != nil {
		t.Fatalf("coupled run: %v", err)
	}

	_, open := valveParts(t, field)
	direct, err := dynamics.New(open, integrators.NewRK4()).Run(context.Background(), x0(), cfg)
	if err != nil {
		t.Fatalf("open-loop run: %v", err)
	}

	if len(coupled.Times) != len(direct.Times) {
		t.Fatalf("sample counts differ: %d vs %d", len(coupled.Times), len(direct.Times))
	}
	for k, s := range coupled.States {
		for i := range s {
			if d := math.Abs(s[i] - direct.States[k][i]); d > 1e-9 {
				t.Fatalf("sample %d component %d: coupled %g vs open %g", k, i, s[i], direct.States[k][i])
			}
		}
	}
	for i, n := range coupled.OuterIters {
		if n != 1 {
			t.Errorf("outer step %d took %d iterations, zero torque must converge at once", i, n)
		}
	}
	// One solve to seed the torque plus one to verify it, per outer step.
	if want := 2 * len(coupled.OuterIters); coupled.Solves != want {
		t.Errorf("solves = %d, want %d", coupled.Solves, want)
	}
	if coupled.Operating == nil {
		t.Error("operating point missing")
	}
}

func TestCoupledTorqueMovesFreeLayer(t *testing.T) {
	const biasV = 2e-3
	cfg := dynamics.Config{Dt: 1e-12, Duration: 1e-10}

	run := func(mode Mode) *Result {
		stk, sys := valveParts(t)
		orch, err := New(stk, bias(biasV), sys, integrators.NewRK4(), Options{
			Mode:    mode,
			OuterDt: 1e-11,
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		res, err := orch.Run(context.Background(), x0(), cfg)
		if err != nil {
			t.Fatalf("%v run: %v", mode, err)
		}
		return res
	}

	qs := run(QuasiStatic)
	dyn := run(Dynamic)

	free0 := spin.Vec3{X: 1}
	moved := qs.Final().Vec(0).Sub(free0).Norm()
	if moved < 1e-4 {
		t.Fatalf("free layer moved by only %.3e under bias", moved)
	}
	for _, res := range []*Result{qs, dyn} {
		for i := 0; i < 2; i++ {
			if d := math.Abs(res.Final().Vec(i).Norm() - 1); d > 1e-9 {
				t.Errorf("layer %d norm off unit by %.3e", i, d)
			}
		}
	}

	// The frozen-torque error is second order in the outer step, so both
	// modes land near the same trajectory at this drive strength.
	for i := range qs.Final() {
		if d := math.Abs(qs.Final()[i] - dyn.Final()[i]); d > 2e-2 {
			t.Errorf("component %d: quasi-static %g vs dynamic %g", i, qs.Final()[i], dyn.Final()[i])
		}
	}
	t.Logf("free layer displacement %.4f, quasi-static solves %d, dynamic solves %d",
		moved, qs.Solves, dyn.Solves)
}

func TestDynamicSolvesOncePerFieldEval(t *testing.T) {
	stk, sys := valveParts(t)
	orch, err := New(stk, bias(1e-3), sys, integrators.NewRK4(), Options{Mode: Dynamic})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := orch.Run(context.Background(), x0(), dynamics.Config{Dt: 1e-12, Duration: 1e-11})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Every derivative evaluation solves transport once, plus the final
	// operating-point solve.
	if res.Solves != res.Info.FieldEvals+1 {
		t.Errorf("solves = %d for %d field evals", res.Solves, res.Info.FieldEvals)
	}
	if res.Operating == nil {
		t.Error("operating point missing")
	}
}

func TestFixedPointDoesNotConverge(t *testing.T) {
	stk, sys := valveParts(t)
	orch, err := New(stk, bias(2e-3), sys, integrators.NewRK4(), Options{
		Mode:          QuasiStatic,
		OuterDt:       1e-11,
		FixedPointTol: 1e-30,
		MaxFixedPoint: 1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := orch.Run(context.Background(), x0(), dynamics.Config{Dt: 1e-12, Duration: 1e-10})
	if !errors.Is(err, spin.ErrConvergence) {
		t.Fatalf("error %v, want convergence failure", err)
	}
	var ce *spin.ConvergenceError
	if !errors.As(err, &ce) {
		t.Fatalf("error %T, want *spin.ConvergenceError", err)
	}
	if ce.Iterations != 1 {
		t.Errorf("iterations = %d, want the configured cap 1", ce.Iterations)
	}
	if ce.Residual <= 0 {
		t.Errorf("residual = %g, want positive", ce.Residual)
	}
	if res == nil || len(res.Times) != 1 {
		t.Fatalf("uncommitted outer step must leave only the initial sample, got %d", len(res.Times))
	}
	if res.Status != dynamics.Diverged {
		t.Errorf("status = %v, want diverged", res.Status)
	}
}

func TestTransportFailureIsFatal(t *testing.T) {
	// No voltage constraint leaves the charge gauge free; the first solve
	// must reject it and the run must surface that error.
	floating := []transport.BoundaryCondition{transport.InjectCurrent(0, 1e-6)}

	for _, mode := range []Mode{QuasiStatic, Dynamic} {
		t.Run(mode.String(), func(t *testing.T) {
			stk, sys := valveParts(t)
			orch, err := New(stk, floating, sys, integrators.NewRK4(), Options{Mode: mode, OuterDt: 1e-11})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			res, err := orch.Run(context.Background(), x0(), dynamics.Config{Dt: 1e-12, Duration: 1e-10})
			if !errors.Is(err, spin.ErrConfiguration) {
				t.Fatalf("error %v, want the gauge rejection", err)
			}
			if res == nil {
				t.Fatal("partial result missing")
			}
			if res.Status != dynamics.Diverged {
				t.Errorf("status = %v, want diverged", res.Status)
			}
		})
	}
}

func TestNewRejects(t *testing.T) {
	stk, sys := valveParts(t)

	t.Run("no magnets", func(t *testing.T) {
		wire, err := stack.New(valveLayer(t, "wire", "Cu", 5, spin.Vec3{}))
		if err != nil {
			t.Fatalf("stack: %v", err)
		}
		if _, err := New(wire, bias(0), sys, integrators.NewRK4(), Options{}); !errors.Is(err, spin.ErrConfiguration) {
			t.Errorf("error %v, want rejection", err)
		}
	})

	t.Run("layer count mismatch", func(t *testing.T) {
		one, err := llg.NewSystem(gammaE, 0.01, llg.Layer{Ms: msCoFeB, Volume: layerVol})
		if err != nil {
			t.Fatalf("system: %v", err)
		}
		if _, err := New(stk, bias(0), one, integrators.NewRK4(), Options{}); !errors.Is(err, spin.ErrConfiguration) {
			t.Errorf("error %v, want rejection", err)
		}
	})

	t.Run("missing moment", func(t *testing.T) {
		bare, err := llg.NewSystem(gammaE, 0.01, llg.Layer{}, llg.Layer{})
		if err != nil {
			t.Fatalf("system: %v", err)
		}
		if _, err := New(stk, bias(0), bare, integrators.NewRK4(), Options{}); !errors.Is(err, spin.ErrConfiguration) {
			t.Errorf("error %v, want rejection", err)
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		if _, err := New(stk, bias(0), sys, integrators.NewRK4(), Options{Mode: Mode(99)}); !errors.Is(err, spin.ErrConfiguration) {
			t.Errorf("error %v, want rejection", err)
		}
	})
}

func TestRunRejects(t *testing.T) {
	mk := func() *Orchestrator {
		stk, sys := valveParts(t)
		orch, err := New(stk, bias(0), sys, integrators.NewRK4(), Options{Mode: QuasiStatic})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return orch
	}

	t.Run("thermal needs dynamic mode", func(t *testing.T) {
		th, err := llg.NewThermal(300, 1)
		if err != nil {
			t.Fatalf("thermal: %v", err)
		}
		_, err = mk().Run(context.Background(), x0(), dynamics.Config{Dt: 1e-12, Duration: 1e-10, Thermal: th})
		if !errors.Is(err, spin.ErrConfiguration) {
			t.Errorf("error %v, want rejection", err)
		}
	})

	t.Run("zero dt", func(t *testing.T) {
		if _, err := mk().Run(context.Background(), x0(), dynamics.Config{Duration: 1e-10}); !errors.Is(err, spin.ErrConfiguration) {
			t.Errorf("error %v, want rejection", err)
		}
	})

	t.Run("outer below inner", func(t *testing.T) {
		stk, sys := valveParts(t)
		orch, err := New(stk, bias(0), sys, integrators.NewRK4(), Options{Mode: QuasiStatic, OuterDt: 1e-13})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, err := orch.Run(context.Background(), x0(), dynamics.Config{Dt: 1e-12, Duration: 1e-10}); !errors.Is(err, spin.ErrConfiguration) {
			t.Errorf("error %v, want rejection", err)
		}
	})

	t.Run("state size mismatch", func(t *testing.T) {
		if _, err := mk().Run(context.Background(), spin.State{1, 0, 0}, dynamics.Config{Dt: 1e-12, Duration: 1e-10}); !errors.Is(err, spin.ErrConfiguration) {
			t.Errorf("error %v, want rejection", err)
		}
	})
}

func TestQuasiStaticHonorsStepBudget(t *testing.T) {
	stk, sys := valveParts(t)
	orch, err := New(stk, bias(1e-3), sys, integrators.NewRK4(), Options{Mode: QuasiStatic, OuterDt: 1e-11})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := orch.Run(context.Background(), x0(), dynamics.Config{
		Dt: 1e-12, Duration: 1e-9, MaxSteps: 25,
	})
	if err != nil {
		t.Fatalf("budget exhaustion must not be an error, got %v", err)
	}
	if res.Status != dynamics.Truncated || !res.Info.BudgetExceeded {
		t.Errorf("status = %v, budget = %v, want truncated", res.Status, res.Info.BudgetExceeded)
	}
	if res.Info.Steps < 25 {
		t.Errorf("stopped after %d steps, the budget allows 25", res.Info.Steps)
	}
}

func TestQuasiStaticCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stk, sys := valveParts(t)
	orch, err := New(stk, bias(1e-3), sys, integrators.NewRK4(), Options{Mode: QuasiStatic, OuterDt: 1e-11})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := orch.Run(ctx, x0(), dynamics.Config{Dt: 1e-12, Duration: 1e-10})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error %v, want context.Canceled", err)
	}
	if res.Status != dynamics.Canceled {
		t.Errorf("status = %v, want canceled", res.Status)
	}
}
