package integrators

import "github.com/alaweimm90/SpinCirc/internal/spin"

// Heun is the explicit trapezoidal predictor-corrector. It is second order
// on deterministic systems and is the required scheme for thermal runs: with
// the stochastic field frozen over the step, evaluating the drift at both
// ends converges to the Stratonovich solution of the Langevin equation.
type Heun struct {
	scratch spin.State
}

// NewHeun returns a Heun integrator.
func NewHeun() *Heun {
	return &Heun{}
}

// Step advances x by one step of length dt.
func (h *Heun) Step(sys spin.System, x spin.State, t, dt float64) spin.State {
	n := len(x)
	if len(h.scratch) != n {
		h.scratch = make(spin.State, n)
	}

	k1 := sys.Derive(x, t)
	for i := 0; i < n; i++ {
		h.scratch[i] = x[i] + dt*k1[i]
	}
	k2 := sys.Derive(h.scratch, t+dt)

	result := make(spin.State, n)
	half := dt / 2
	for i := 0; i < n; i++ {
		result[i] = x[i] + half*(k1[i]+k2[i])
	}
	return result
}
