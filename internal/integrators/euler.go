package integrators

import "github.com/alaweimm90/SpinCirc/internal/spin"

// Euler is the explicit first-order scheme, kept as a reference baseline.
type Euler struct{}

// NewEuler returns a forward-Euler integrator.
func NewEuler() *Euler {
	return &Euler{}
}

// Step advances x by one step of length dt.
func (e *Euler) Step(sys spin.System, x spin.State, t, dt float64) spin.State {
	dx := sys.Derive(x, t)
	result := make(spin.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
