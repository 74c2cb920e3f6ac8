// Package metrics provides run observers that reduce a trajectory to a
// single diagnostic value.
package metrics

import (
	"math"

	"github.com/alaweimm90/SpinCirc/internal/spin"
)

// EnergyDrift tracks the maximum relative excursion of the system energy
// from its first observed value. Systems without an energy report zero.
type EnergyDrift struct {
	name     string
	sys      spin.System
	initial  float64
	maxDrift float64
	samples  int
}

func NewEnergyDrift(sys spin.System) *EnergyDrift {
	return &EnergyDrift{name: "energy_drift", sys: sys}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(x spin.State, t float64) {
	ham, ok := e.sys.(spin.Hamiltonian)
	if !ok {
		return
	}
	energy := ham.Energy(x, t)
	if e.samples == 0 {
		e.initial = energy
	}
	e.samples++
	drift := math.Abs(energy - e.initial)
	if e.initial != 0 {
		drift /= math.Abs(e.initial)
	}
	e.maxDrift = math.Max(e.maxDrift, drift)
}

func (e *EnergyDrift) Value() float64 { return e.maxDrift }

func (e *EnergyDrift) Reset() {
	e.initial = 0
	e.maxDrift = 0
	e.samples = 0
}

// NormDrift tracks the maximum deviation of any embedded moment from unit
// length. States whose size is not a multiple of three are ignored.
type NormDrift struct {
	name     string
	maxDrift float64
}

func NewNormDrift() *NormDrift {
	return &NormDrift{name: "norm_drift"}
}

func (n *NormDrift) Name() string { return n.name }

func (n *NormDrift) Observe(x spin.State, _ float64) {
	if len(x)%3 != 0 {
		return
	}
	for i := 0; i < len(x)/3; i++ {
		d := math.Abs(x.Vec(i).Norm() - 1)
		n.maxDrift = math.Max(n.maxDrift, d)
	}
}

func (n *NormDrift) Value() float64 { return n.maxDrift }

func (n *NormDrift) Reset() { n.maxDrift = 0 }

// TorqueMagnitude tracks the largest per-moment rate of change, the net
// torque per unit moment in rad/s. Each observation costs one derivative
// evaluation of the held system.
type TorqueMagnitude struct {
	name string
	sys  spin.System
	max  float64
}

func NewTorqueMagnitude(sys spin.System) *TorqueMagnitude {
	return &TorqueMagnitude{name: "torque", sys: sys}
}

func (m *TorqueMagnitude) Name() string { return m.name }

func (m *TorqueMagnitude) Observe(x spin.State, t float64) {
	d := m.sys.Derive(x, t)
	if len(d)%3 != 0 {
		for _, v := range d {
			m.max = math.Max(m.max, math.Abs(v))
		}
		return
	}
	for i := 0; i < len(d)/3; i++ {
		m.max = math.Max(m.max, d.Vec(i).Norm())
	}
}

func (m *TorqueMagnitude) Value() float64 { return m.max }

func (m *TorqueMagnitude) Reset() { m.max = 0 }

// Alignment reports the latest projection of one layer's moment onto an
// axis, the usual readout for switching studies.
type Alignment struct {
	name  string
	layer int
	axis  spin.Vec3
	last  float64
}

func NewAlignment(layer int, axis spin.Vec3) *Alignment {
	return &Alignment{name: "alignment", layer: layer, axis: axis}
}

func (a *Alignment) Name() string { return a.name }

func (a *Alignment) Observe(x spin.State, _ float64) {
	if 3*a.layer+2 >= len(x) {
		return
	}
	a.last = x.Vec(a.layer).Dot(a.axis)
}

func (a *Alignment) Value() float64 { return a.last }

func (a *Alignment) Reset() { a.last = 0 }
