package integrators

import (
	"errors"
	"testing"

	"github.com/alaweimm90/SpinCirc/internal/spin"
)

func TestNewKnownSchemes(t *testing.T) {
	for _, name := range Names() {
		integ, err := New(name)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if integ == nil {
			t.Errorf("%s: nil integrator", name)
		}
	}
}

func TestNewAliases(t *testing.T) {
	for _, name := range []string{"rk45", "dp54", "dormand-prince", "RK45", " rk4 "} {
		if _, err := New(name); err != nil {
			t.Errorf("%q not accepted: %v", name, err)
		}
	}
}

func TestNewAdaptiveCapability(t *testing.T) {
	adaptive := map[string]bool{
		"euler": false, "heun": false, "rk4": false,
		"rk45": true, "dp54": true, "dormand-prince": true,
	}
	for name, want := range adaptive {
		integ, err := New(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		_, ok := integ.(spin.AdaptiveIntegrator)
		if ok != want {
			t.Errorf("%s: adaptive=%v, want %v", name, ok, want)
		}
	}
}

func TestNewUnknown(t *testing.T) {
	_, err := New("verlet")
	if !errors.Is(err, spin.ErrConfiguration) {
		t.Fatalf("got %v, want configuration error", err)
	}
}

func TestNewReturnsFreshInstances(t *testing.T) {
	a, _ := New("rk4")
	b, _ := New("rk4")
	if a == b {
		t.Error("registry returned a shared integrator")
	}
}
