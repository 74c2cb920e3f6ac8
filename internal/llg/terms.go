package llg

import (
	"math"

	"github.com/alaweimm90/SpinCirc/internal/spin"
)

// Uniform is a constant applied field.
type Uniform struct {
	B spin.Vec3 // T
}

// Field implements Term.
func (u Uniform) Field(float64, spin.Vec3) spin.Vec3 { return u.B }

// Energy implements Term: the Zeeman energy -m·B.
func (u Uniform) Energy(_ float64, m spin.Vec3) float64 { return -m.Dot(u.B) }

// Pulse applies a constant field inside the half-open window [Start, End).
type Pulse struct {
	B          spin.Vec3 // T
	Start, End float64   // s
}

// Field implements Term.
func (p Pulse) Field(t float64, _ spin.Vec3) spin.Vec3 {
	if t >= p.Start && t < p.End {
		return p.B
	}
	return spin.Vec3{}
}

// Energy implements Term.
func (p Pulse) Energy(t float64, m spin.Vec3) float64 {
	if t >= p.Start && t < p.End {
		return -m.Dot(p.B)
	}
	return 0
}

// Sine is a sinusoidal drive field, the standard excitation for
// ferromagnetic resonance.
type Sine struct {
	Amp   spin.Vec3 // T
	Freq  float64   // Hz
	Phase float64   // rad
}

// Field implements Term.
func (s Sine) Field(t float64, _ spin.Vec3) spin.Vec3 {
	return s.Amp.Scale(math.Sin(2*math.Pi*s.Freq*t + s.Phase))
}

// Energy implements Term.
func (s Sine) Energy(t float64, m spin.Vec3) float64 {
	return -m.Dot(s.Field(t, m))
}

// Uniaxial is a uniaxial anisotropy with constant K (J/m³) about a unit
// axis. Its field is (2K/Ms)(m·u)u.
type Uniaxial struct {
	K    float64   // J/m³
	Ms   float64   // A/m
	Axis spin.Vec3 // unit
}

// Field implements Term.
func (u Uniaxial) Field(_ float64, m spin.Vec3) spin.Vec3 {
	return u.Axis.Scale(2 * u.K / u.Ms * m.Dot(u.Axis))
}

// Energy implements Term: -(K/Ms)(m·u)², zero at the easy axis.
func (u Uniaxial) Energy(_ float64, m spin.Vec3) float64 {
	c := m.Dot(u.Axis)
	return -u.K / u.Ms * c * c
}

// Demag is the shape anisotropy of an ellipsoid with diagonal demagnetizing
// tensor N (components summing to 1). Its field is -μ₀ Ms N m.
type Demag struct {
	N  spin.Vec3 // demagnetizing factors
	Ms float64   // A/m
}

// Field implements Term.
func (d Demag) Field(_ float64, m spin.Vec3) spin.Vec3 {
	return spin.Vec3{
		X: -mu0 * d.Ms * d.N.X * m.X,
		Y: -mu0 * d.Ms * d.N.Y * m.Y,
		Z: -mu0 * d.Ms * d.N.Z * m.Z,
	}
}

// Energy implements Term: +μ₀ Ms/2 · m·Nm.
func (d Demag) Energy(_ float64, m spin.Vec3) float64 {
	return mu0 * d.Ms / 2 * (d.N.X*m.X*m.X + d.N.Y*m.Y*m.Y + d.N.Z*m.Z*m.Z)
}

// Sum composes terms by superposition.
type Sum []Term

// Field implements Term.
func (s Sum) Field(t float64, m spin.Vec3) spin.Vec3 {
	b := spin.Vec3{}
	for _, term := range s {
		b = b.Add(term.Field(t, m))
	}
	return b
}

// Energy implements Term.
func (s Sum) Energy(t float64, m spin.Vec3) float64 {
	e := 0.0
	for _, term := range s {
		e += term.Energy(t, m)
	}
	return e
}
