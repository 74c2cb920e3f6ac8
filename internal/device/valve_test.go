package device

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/alaweimm90/SpinCirc/internal/couple"
	"github.com/alaweimm90/SpinCirc/internal/dynamics"
	"github.com/alaweimm90/SpinCirc/internal/integrators"
	"github.com/alaweimm90/SpinCirc/internal/spin"
)

func TestNewSpinValveBuilds(t *testing.T) {
	v := NewSpinValve()
	stk, err := v.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(stk.Layers) != 3 || stk.NodeCount() != 4 {
		t.Fatalf("got %d layers over %d nodes", len(stk.Layers), stk.NodeCount())
	}
	ms := stk.Magnetizations()
	if len(ms) != 2 {
		t.Fatalf("got %d moments, want 2", len(ms))
	}
	if math.Abs(ms[0].Norm()-1) > 1e-12 {
		t.Errorf("free moment norm %g", ms[0].Norm())
	}
	if ms[0].X <= 0 || ms[0].Z < 0.99 {
		t.Errorf("free moment %+v should start tilted off +z", ms[0])
	}
	if ms[1] != v.FixedAxis {
		t.Errorf("fixed moment %+v, want %+v", ms[1], v.FixedAxis)
	}
}

func TestSpinValveResistanceOrdering(t *testing.T) {
	v := NewSpinValve()
	rP, err := v.Resistance(v.FixedAxis)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	rX, err := v.Resistance(spin.Vec3{X: 1})
	if err != nil {
		t.Fatalf("orthogonal: %v", err)
	}
	rAP, err := v.Resistance(v.FixedAxis.Scale(-1))
	if err != nil {
		t.Fatalf("antiparallel: %v", err)
	}
	if rP <= 0 {
		t.Fatalf("parallel resistance %g must be positive", rP)
	}
	if !(rP < rX && rX < rAP) {
		t.Errorf("resistance ordering rP=%g rX=%g rAP=%g, want rP < rX < rAP", rP, rX, rAP)
	}
}

func TestSpinValveMR(t *testing.T) {
	v := NewSpinValve()
	mr, err := v.MR()
	if err != nil {
		t.Fatalf("MR: %v", err)
	}
	if mr <= 0 {
		t.Errorf("MR = %g, want a positive ratio", mr)
	}

	rP, _ := v.Resistance(v.FixedAxis)
	rAP, _ := v.Resistance(v.FixedAxis.Scale(-1))
	if want := (rAP - rP) / rP; math.Abs(mr-want) > 1e-12*math.Abs(want) {
		t.Errorf("MR = %g, want %g", mr, want)
	}
}

func TestSpinValveResistanceGrowsWithTemperature(t *testing.T) {
	v := NewSpinValve()
	cold, err := v.Resistance(v.FixedAxis)
	if err != nil {
		t.Fatalf("300 K: %v", err)
	}
	v.Temperature = 400
	hot, err := v.Resistance(v.FixedAxis)
	if err != nil {
		t.Fatalf("400 K: %v", err)
	}
	if hot <= cold {
		t.Errorf("R(400 K) = %g vs R(300 K) = %g, want metallic increase", hot, cold)
	}
}

func TestSpinValveSwitchMovesFreeMoment(t *testing.T) {
	v := NewSpinValve()
	res, err := v.Switch(context.Background(), integrators.NewRK4(),
		dynamics.Config{Dt: 1e-12, Duration: 2e-11},
		couple.Options{Mode: couple.QuasiStatic},
	)
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if res.Status != dynamics.Completed {
		t.Fatalf("status %v", res.Status)
	}
	if res.Operating == nil || res.Solves < 2 {
		t.Fatalf("transport side missing: operating %v after %d solves", res.Operating, res.Solves)
	}

	final := res.Final()
	free0 := v.FreeM0
	freeT := final.Vec(0)
	moved := math.Abs(freeT.X-free0.X) + math.Abs(freeT.Y-free0.Y) + math.Abs(freeT.Z-free0.Z)
	if moved < 1e-4 {
		t.Errorf("free moment moved %g, want visible torque response", moved)
	}
	if math.Abs(freeT.Norm()-1) > 1e-6 {
		t.Errorf("free moment norm %g", freeT.Norm())
	}
	if pin := final.Vec(1).Dot(v.FixedAxis); pin < 0.999 {
		t.Errorf("fixed moment alignment %g, want pinned", pin)
	}
}

func TestSpinValveRejectsBadGeometry(t *testing.T) {
	v := NewSpinValve()
	v.Width = 0
	if _, err := v.Resistance(v.FixedAxis); !errors.Is(err, spin.ErrConfiguration) {
		t.Errorf("error %v, want rejection", err)
	}
	if _, err := v.Switch(context.Background(), integrators.NewRK4(),
		dynamics.Config{Dt: 1e-12, Duration: 1e-11}, couple.Options{}); !errors.Is(err, spin.ErrConfiguration) {
		t.Errorf("switch error %v, want rejection", err)
	}
}
