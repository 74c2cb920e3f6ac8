// Package integrators provides the time-stepping schemes for magnetization
// dynamics: a classic fixed-step RK4, an embedded Dormand-Prince 5(4) pair
// for adaptive runs, and Heun's predictor-corrector for stochastic systems.
// Schemes keep reusable scratch buffers, so one integrator must not be
// shared across goroutines.
package integrators

import "github.com/alaweimm90/SpinCirc/internal/spin"

// RK4 is the classic fourth-order Runge-Kutta scheme.
type RK4 struct {
	scratch spin.State
}

// NewRK4 returns a fixed-step RK4 integrator.
func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.scratch) != n {
		r.scratch = make(spin.State, n)
	}
}

// Step advances x by one step of length dt.
func (r *RK4) Step(sys spin.System, x spin.State, t, dt float64) spin.State {
	n := len(x)
	r.ensureScratch(n)

	k1 := sys.Derive(x, t)

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*k1[i]
	}
	k2 := sys.Derive(r.scratch, t+dt*0.5)

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*k2[i]
	}
	k3 := sys.Derive(r.scratch, t+dt*0.5)

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*k3[i]
	}
	k4 := sys.Derive(r.scratch, t+dt)

	result := make(spin.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
	return result
}
