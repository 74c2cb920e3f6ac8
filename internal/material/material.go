// Package material holds transport and magnetic parameters for the metals a
// stack is built from. Materials are plain values: once registered they are
// only ever copied out, never mutated, so a single registry can be shared by
// any number of concurrent runs.
package material

import (
	"math"

	"github.com/alaweimm90/SpinCirc/internal/spin"
)

// RefTemp is the temperature (K) material parameters are tabulated at.
const RefTemp = 300.0

// GammaDefault is the free-electron gyromagnetic ratio in rad/s/T.
const GammaDefault = 1.76e11

// Material describes one metal. All quantities are SI at RefTemp.
type Material struct {
	Name string `yaml:"name"`

	Resistivity   float64 `yaml:"resistivity"`    // Ω·m
	TempCoeff     float64 `yaml:"temp_coeff"`     // 1/K, linear resistivity coefficient
	SpinDiffusion float64 `yaml:"spin_diffusion"` // m, spin-diffusion length λ_sf
	Polarization  float64 `yaml:"polarization"`   // β, bulk current polarization (0 for normal metals)
	SpinMixing    float64 `yaml:"spin_mixing"`    // S/m², Re g↑↓ per unit area at this metal's interfaces

	Ms          float64 `yaml:"ms"`           // A/m, saturation magnetization (0 for normal metals)
	Tc          float64 `yaml:"tc"`           // K, Curie temperature (0 disables Ms(T) scaling)
	Damping     float64 `yaml:"damping"`      // Gilbert α
	Gamma       float64 `yaml:"gamma"`        // rad/s/T
	AnisotropyK float64 `yaml:"anisotropy_k"` // J/m³, uniaxial anisotropy constant
}

// Magnetic reports whether the material carries a magnetic moment.
func (m Material) Magnetic() bool { return m.Ms > 0 }

// Validate checks parameter ranges. Violations are ConfigErrors naming the
// offending field.
func (m Material) Validate() error {
	switch {
	case m.Name == "":
		return spin.Invalid("material.name", "must not be empty")
	case m.Resistivity <= 0:
		return spin.Invalid("material.resistivity", "%s: must be positive, got %g", m.Name, m.Resistivity)
	case m.SpinDiffusion < 0:
		return spin.Invalid("material.spinDiffusion", "%s: must be non-negative, got %g", m.Name, m.SpinDiffusion)
	case m.Polarization < 0 || m.Polarization >= 1:
		return spin.Invalid("material.polarization", "%s: must be in [0,1), got %g", m.Name, m.Polarization)
	case m.SpinMixing < 0:
		return spin.Invalid("material.spinMixing", "%s: must be non-negative, got %g", m.Name, m.SpinMixing)
	case m.Ms < 0:
		return spin.Invalid("material.ms", "%s: must be non-negative, got %g", m.Name, m.Ms)
	case m.Damping < 0:
		return spin.Invalid("material.damping", "%s: must be non-negative, got %g", m.Name, m.Damping)
	}
	if m.Magnetic() {
		if m.Gamma <= 0 {
			return spin.Invalid("material.gamma", "%s: magnetic material needs a positive gyromagnetic ratio", m.Name)
		}
		if m.Polarization == 0 {
			return spin.Invalid("material.polarization", "%s: magnetic material needs a nonzero polarization", m.Name)
		}
	} else if m.Polarization > 0 {
		return spin.Invalid("material.polarization", "%s: normal metal cannot polarize current", m.Name)
	}
	return nil
}

// AtTemperature returns a copy with resistivity, spin-diffusion length and
// saturation magnetization rescaled to temperature t. Resistivity follows
// the linear coefficient, λ_sf scales inversely with resistivity (mean free
// path), and Ms follows Bloch's T^(3/2) law relative to RefTemp when a Curie
// temperature is set. Above Tc the moment vanishes.
func (m Material) AtTemperature(t float64) Material {
	out := m
	rho := m.Resistivity * (1 + m.TempCoeff*(t-RefTemp))
	if rho > 0 {
		out.Resistivity = rho
		out.SpinDiffusion = m.SpinDiffusion * m.Resistivity / rho
	}
	if m.Tc > 0 && m.Ms > 0 {
		ref := blochFactor(RefTemp, m.Tc)
		if ref > 0 {
			out.Ms = m.Ms * blochFactor(t, m.Tc) / ref
		}
	}
	return out
}

func blochFactor(t, tc float64) float64 {
	if t >= tc {
		return 0
	}
	return 1 - math.Pow(t/tc, 1.5)
}
