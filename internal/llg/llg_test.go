package llg

import (
	"errors"
	"math"
	"testing"

	"github.com/alaweimm90/SpinCirc/internal/spin"
)

const gammaE = 1.76e11

func vecClose(t *testing.T, got, want spin.Vec3, tol float64) {
	t.Helper()
	if got.Sub(want).Norm() > tol*math.Max(want.Norm(), 1) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDerivePrecession(t *testing.T) {
	sys, err := NewSystem(gammaE, 0, Layer{Terms: []Term{Uniform{B: spin.Vec3{Z: 1}}}})
	if err != nil {
		t.Fatalf("system: %v", err)
	}

	x := spin.Pack([]spin.Vec3{{X: 1}})
	dm := sys.Derive(x, 0)

	// With m = x and B = z the moment precesses along +y at rate γB.
	vecClose(t, dm.Vec(0), spin.Vec3{Y: gammaE}, 1e-12)
}

func TestDeriveDamping(t *testing.T) {
	alpha := 0.01
	sys, err := NewSystem(gammaE, alpha, Layer{Terms: []Term{Uniform{B: spin.Vec3{Z: 1}}}})
	if err != nil {
		t.Fatalf("system: %v", err)
	}

	dm := sys.Derive(spin.Pack([]spin.Vec3{{X: 1}}), 0)
	want := spin.Vec3{
		Y: gammaE / (1 + alpha*alpha),
		Z: gammaE * alpha / (1 + alpha*alpha),
	}
	vecClose(t, dm.Vec(0), want, 1e-12)
}

func TestDeriveIsTangent(t *testing.T) {
	sys, err := NewSystem(gammaE, 0.05, Layer{
		Ms:     8e5,
		Volume: 1e-24,
		Terms: []Term{
			Uniform{B: spin.Vec3{X: 0.3, Y: -0.1, Z: 0.7}},
			Uniaxial{K: 4e4, Ms: 8e5, Axis: spin.Vec3{Z: 1}},
			Demag{N: spin.Vec3{Z: 1}, Ms: 8e5},
		},
		Torques: []TorqueSource{ConstantTorque{Is: spin.Vec3{Y: 1e-5}}},
	})
	if err != nil {
		t.Fatalf("system: %v", err)
	}

	ms := []spin.Vec3{
		{X: 1},
		{Z: 1},
		{X: 0.6, Y: 0.48, Z: 0.64},
	}
	for _, m := range ms {
		m = m.Normalized()
		dm := sys.Derive(spin.Pack([]spin.Vec3{m}), 0)
		if p := math.Abs(dm.Vec(0).Dot(m)); p > 1e-9*dm.Vec(0).Norm() {
			t.Errorf("m=%v: derivative has radial component %g", m, p)
		}
	}
}

func TestDeriveTorque(t *testing.T) {
	const (
		alpha = 0.02
		ms    = 1.2e6
		vol   = 1.5e-23
		is    = 2e-5
	)
	sys, err := NewSystem(gammaE, alpha, Layer{
		Ms:      ms,
		Volume:  vol,
		Torques: []TorqueSource{ConstantTorque{Is: spin.Vec3{Y: is}}},
	})
	if err != nil {
		t.Fatalf("system: %v", err)
	}

	dm := sys.Derive(spin.Pack([]spin.Vec3{{X: 1}}), 0)
	bst := hbar * is / (2 * qe * ms * vol)
	want := spin.Vec3{
		Y: gammaE / (1 + alpha*alpha) * bst,
		Z: gammaE * alpha / (1 + alpha*alpha) * bst,
	}
	vecClose(t, dm.Vec(0), want, 1e-12)
}

func TestFieldLikeFraction(t *testing.T) {
	const (
		ms  = 1.2e6
		vol = 1.5e-23
		is  = 2e-5
		chi = 0.3
	)
	pure, err := NewSystem(gammaE, 0, Layer{
		Ms: ms, Volume: vol,
		Terms: []Term{Uniform{B: spin.Vec3{Y: chi * hbar * is / (2 * qe * ms * vol)}}},
	})
	if err != nil {
		t.Fatalf("system: %v", err)
	}
	mixed, err := NewSystem(gammaE, 0, Layer{
		Ms: ms, Volume: vol,
		Torques:   []TorqueSource{ConstantTorque{Is: spin.Vec3{Y: is}}},
		FieldLike: chi,
	})
	if err != nil {
		t.Fatalf("system: %v", err)
	}

	x := spin.Pack([]spin.Vec3{{X: 1}})
	want := pure.Derive(x, 0).Vec(0)
	got := mixed.Derive(x, 0).Vec(0)

	// Subtract the damping-like channel to isolate the field-like part.
	bst := hbar * is / (2 * qe * ms * vol)
	got = got.Sub(spin.Vec3{Y: gammaE * bst})
	vecClose(t, got, want, 1e-9)
}

func TestDriveAndOverlay(t *testing.T) {
	mk := func() *System {
		s, err := NewSystem(gammaE, 0,
			Layer{Terms: nil},
			Layer{Terms: nil},
		)
		if err != nil {
			t.Fatalf("system: %v", err)
		}
		return s
	}
	x := spin.Pack([]spin.Vec3{{X: 1}, {X: 1}})

	t.Run("drive is per layer", func(t *testing.T) {
		sys := mk()
		sys.Drive = func(t float64, m []spin.Vec3) []spin.Vec3 {
			return []spin.Vec3{{}, {Z: 1}}
		}
		dm := sys.Derive(x, 0)
		vecClose(t, dm.Vec(0), spin.Vec3{}, 1e-15)
		vecClose(t, dm.Vec(1), spin.Vec3{Y: gammaE}, 1e-12)
	})

	t.Run("overlay matches uniform term", func(t *testing.T) {
		sys := mk()
		sys.SetStepOverlay([]spin.Vec3{{Z: 0.5}, {Z: 0.5}})
		dm := sys.Derive(x, 0)
		vecClose(t, dm.Vec(0), spin.Vec3{Y: gammaE * 0.5}, 1e-12)

		sys.SetStepOverlay(nil)
		dm = sys.Derive(x, 0)
		vecClose(t, dm.Vec(0), spin.Vec3{}, 1e-15)
	})
}

func TestTorqueHook(t *testing.T) {
	const (
		ms  = 1.2e6
		vol = 1.5e-23
		is  = 2e-5
	)

	t.Run("matches a layer-local source", func(t *testing.T) {
		local, err := NewSystem(gammaE, 0.02, Layer{
			Ms: ms, Volume: vol,
			Torques: []TorqueSource{ConstantTorque{Is: spin.Vec3{Y: is}}},
		})
		if err != nil {
			t.Fatalf("system: %v", err)
		}
		hooked, err := NewSystem(gammaE, 0.02, Layer{Ms: ms, Volume: vol})
		if err != nil {
			t.Fatalf("system: %v", err)
		}
		hooked.Torque = func(float64, []spin.Vec3) []spin.Vec3 {
			return []spin.Vec3{{Y: is}}
		}

		x := spin.Pack([]spin.Vec3{{X: 1}})
		vecClose(t, hooked.Derive(x, 0).Vec(0), local.Derive(x, 0).Vec(0), 1e-15)
	})

	t.Run("hook is per layer", func(t *testing.T) {
		sys, err := NewSystem(gammaE, 0,
			Layer{Ms: ms, Volume: vol},
			Layer{Ms: ms, Volume: vol},
		)
		if err != nil {
			t.Fatalf("system: %v", err)
		}
		sys.Torque = func(float64, []spin.Vec3) []spin.Vec3 {
			return []spin.Vec3{{}, {Y: is}}
		}
		dm := sys.Derive(spin.Pack([]spin.Vec3{{X: 1}, {X: 1}}), 0)
		vecClose(t, dm.Vec(0), spin.Vec3{}, 1e-15)
		if dm.Vec(1).Norm() == 0 {
			t.Fatal("layer 1 received no torque")
		}
	})
}

func TestEnergy(t *testing.T) {
	const (
		ms  = 8e5
		vol = 2e-24
	)
	sys, err := NewSystem(gammaE, 0, Layer{
		Ms: ms, Volume: vol,
		Terms: []Term{Uniform{B: spin.Vec3{Z: 0.4}}},
	})
	if err != nil {
		t.Fatalf("system: %v", err)
	}

	up := sys.Energy(spin.Pack([]spin.Vec3{{Z: 1}}), 0)
	down := sys.Energy(spin.Pack([]spin.Vec3{{Z: -1}}), 0)
	want := ms * vol * 0.4
	if d := math.Abs(up + want); d > 1e-12*want {
		t.Errorf("aligned energy: got %g want %g", up, -want)
	}
	if d := math.Abs(down - want); d > 1e-12*want {
		t.Errorf("anti-aligned energy: got %g want %g", down, want)
	}
}

func TestNewSystemRejects(t *testing.T) {
	tests := []struct {
		name   string
		gamma  float64
		alpha  float64
		layers []Layer
	}{
		{"no layers", gammaE, 0.01, nil},
		{"zero gamma", 0, 0.01, []Layer{{}}},
		{"negative alpha", gammaE, -0.1, []Layer{{}}},
		{"negative layer alpha", gammaE, 0.01, []Layer{{Alpha: -1}}},
		{"torque without moment", gammaE, 0.01, []Layer{
			{Torques: []TorqueSource{ConstantTorque{}}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSystem(tt.gamma, tt.alpha, tt.layers...); !errors.Is(err, spin.ErrConfiguration) {
				t.Fatalf("got %v, want configuration error", err)
			}
		})
	}
}
