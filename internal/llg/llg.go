// Package llg implements Landau-Lifshitz-Gilbert magnetization dynamics with
// spin-transfer torques. Each magnetic layer carries a unit moment m evolving
// under
//
//	dm/dt = -γ/(1+α²) [ m×B + α m×(m×B) ]
//
// with the effective field B in tesla composed from field terms, plus
// explicit Slonczewski torque channels fed by absorbed transverse spin
// currents. A System flattens the layer moments into one state vector so the
// generic integrators can advance it.
package llg

import (
	"math"

	"github.com/alaweimm90/SpinCirc/internal/spin"
)

// Physical constants, SI.
const (
	hbar = 1.054571817e-34  // J s
	qe   = 1.602176634e-19  // C
	mu0  = 1.25663706212e-6 // T m/A
	kB   = 1.380649e-23     // J/K
)

// Term is one contribution to a layer's effective field. Energy returns the
// term's energy per unit moment (tesla units); non-conservative terms return
// zero.
type Term interface {
	Field(t float64, m spin.Vec3) spin.Vec3
	Energy(t float64, m spin.Vec3) float64
}

// TorqueSource supplies an absorbed spin current in amperes. The damping-like
// Slonczewski channel uses it at full strength; a layer's FieldLike fraction
// additionally mixes it into the effective field.
type TorqueSource interface {
	SpinCurrent(t float64, m spin.Vec3) spin.Vec3
}

// TorqueFunc adapts a closure to a TorqueSource, the hook used to couple
// transport solutions into the dynamics.
type TorqueFunc func(t float64, m spin.Vec3) spin.Vec3

// SpinCurrent implements TorqueSource.
func (f TorqueFunc) SpinCurrent(t float64, m spin.Vec3) spin.Vec3 { return f(t, m) }

// ConstantTorque is a fixed spin current, useful for open-loop torque
// studies.
type ConstantTorque struct{ Is spin.Vec3 }

// SpinCurrent implements TorqueSource.
func (c ConstantTorque) SpinCurrent(float64, spin.Vec3) spin.Vec3 { return c.Is }

// FieldFunc returns one vector per layer from the full set of moments,
// evaluated at every derivative call. It is the injection point for
// transport-coupled or other externally computed inputs. The m slice is
// only valid for the duration of the call and the result must not alias it.
type FieldFunc func(t float64, m []spin.Vec3) []spin.Vec3

// Layer holds one moment's material parameters and field composition. Alpha
// and Gamma fall back to the system-wide values when left zero. Ms and
// Volume are only required when torque sources are attached, because they
// set the torque-to-field conversion.
type Layer struct {
	Ms     float64 // A/m
	Volume float64 // m³
	Alpha  float64
	Gamma  float64 // rad/s/T

	Terms     []Term
	Torques   []TorqueSource
	FieldLike float64 // fraction of the torque entering as a field
}

// System evolves the flattened moments of all layers. It implements the
// generic dynamical-system and Hamiltonian interfaces; energy covers the
// conservative field terms only.
type System struct {
	Gamma  float64
	Alpha  float64
	Layers []Layer
	Drive  FieldFunc

	// Torque optionally supplies one absorbed spin current per layer from
	// the full state, the hook transport coupling uses. It adds to the
	// layer-local Torques sources; layers receiving a nonzero current need
	// Ms and Volume. The returned slice must not alias the input.
	Torque FieldFunc

	overlay []spin.Vec3
	scratch []spin.Vec3
}

// NewSystem validates the layers and returns a ready system. gamma and alpha
// are the defaults for layers that do not override them.
func NewSystem(gamma, alpha float64, layers ...Layer) (*System, error) {
	if len(layers) == 0 {
		return nil, spin.Invalid("llg.layers", "need at least one layer")
	}
	s := &System{Gamma: gamma, Alpha: alpha, Layers: layers}
	for i := range layers {
		g, a := s.gammaAlpha(i)
		if g <= 0 || math.IsNaN(g) || math.IsInf(g, 0) {
			return nil, spin.Invalid("llg.gamma", "layer %d: must be positive and finite, got %g", i, g)
		}
		if a < 0 || math.IsNaN(a) || math.IsInf(a, 0) {
			return nil, spin.Invalid("llg.alpha", "layer %d: must be non-negative and finite, got %g", i, a)
		}
		l := &layers[i]
		if (len(l.Torques) > 0 || l.FieldLike != 0) && (l.Ms <= 0 || l.Volume <= 0) {
			return nil, spin.Invalid("llg.layer", "layer %d: torque coupling needs Ms and Volume", i)
		}
	}
	s.scratch = make([]spin.Vec3, len(layers))
	return s, nil
}

func (s *System) gammaAlpha(i int) (gamma, alpha float64) {
	gamma, alpha = s.Gamma, s.Alpha
	if l := s.Layers[i]; l.Gamma != 0 {
		gamma = l.Gamma
	}
	if l := s.Layers[i]; l.Alpha != 0 {
		alpha = l.Alpha
	}
	return gamma, alpha
}

// Dim returns the flattened state size, three components per layer.
func (s *System) Dim() int { return 3 * len(s.Layers) }

// SetStepOverlay installs a per-layer field that is added verbatim to every
// derivative evaluation until replaced. The integration driver uses it to
// hold a thermal field frozen across the stages of one step. Pass nil to
// clear.
func (s *System) SetStepOverlay(b []spin.Vec3) { s.overlay = b }

// EffectiveField composes the full deterministic field on layer i, excluding
// torque channels.
func (s *System) EffectiveField(i int, t float64, m spin.Vec3, drive []spin.Vec3) spin.Vec3 {
	l := &s.Layers[i]
	b := spin.Vec3{}
	for _, term := range l.Terms {
		b = b.Add(term.Field(t, m))
	}
	if drive != nil {
		b = b.Add(drive[i])
	}
	if s.overlay != nil {
		b = b.Add(s.overlay[i])
	}
	if l.FieldLike != 0 {
		for _, src := range l.Torques {
			b = b.Add(s.torqueField(l, src.SpinCurrent(t, m)).Scale(l.FieldLike))
		}
	}
	return b
}

func (s *System) torqueField(l *Layer, is spin.Vec3) spin.Vec3 {
	return is.Scale(hbar / (2 * qe * l.Ms * l.Volume))
}

// Derive implements spin.System.
func (s *System) Derive(x spin.State, t float64) spin.State {
	drive := s.hook(s.Drive, t, x)
	torque := s.hook(s.Torque, t, x)
	out := make(spin.State, len(x))
	for i := range s.Layers {
		m := x.Vec(i)
		gamma, alpha := s.gammaAlpha(i)
		pre := -gamma / (1 + alpha*alpha)
		l := &s.Layers[i]

		b := s.EffectiveField(i, t, m, drive)
		if torque != nil && l.FieldLike != 0 {
			b = b.Add(s.torqueField(l, torque[i]).Scale(l.FieldLike))
		}
		mxB := m.Cross(b)
		dm := mxB.Add(m.Cross(mxB).Scale(alpha)).Scale(pre)

		// Damping-like Slonczewski channel: in Landau-Lifshitz form the
		// absorbed current enters as m×(m×B_st) − α m×B_st.
		for _, src := range l.Torques {
			bst := s.torqueField(l, src.SpinCurrent(t, m))
			mxBst := m.Cross(bst)
			dm = dm.Add(m.Cross(mxBst).Sub(mxBst.Scale(alpha)).Scale(pre))
		}
		if torque != nil {
			bst := s.torqueField(l, torque[i])
			mxBst := m.Cross(bst)
			dm = dm.Add(m.Cross(mxBst).Sub(mxBst.Scale(alpha)).Scale(pre))
		}
		out.SetVec(i, dm)
	}
	return out
}

func (s *System) hook(f FieldFunc, t float64, x spin.State) []spin.Vec3 {
	if f == nil {
		return nil
	}
	for i := range s.Layers {
		s.scratch[i] = x.Vec(i)
	}
	return f(t, s.scratch)
}

// Energy implements spin.Hamiltonian: the sum over layers of the moment
// Ms·V times the per-unit-moment term energies, in joules. Layers without
// Ms and Volume are weighted as unit moments. Drives, overlays and torques
// carry no energy.
func (s *System) Energy(x spin.State, t float64) float64 {
	e := 0.0
	for i := range s.Layers {
		l := &s.Layers[i]
		m := x.Vec(i)
		w := l.Ms * l.Volume
		if w == 0 {
			w = 1
		}
		for _, term := range l.Terms {
			e += w * term.Energy(t, m)
		}
	}
	return e
}
