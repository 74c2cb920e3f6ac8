package llg

import (
	"math"
	"math/rand"

	"github.com/alaweimm90/SpinCirc/internal/spin"
)

// Thermal samples the stochastic field of the Langevin-augmented LLG. The
// per-component variance over one step of length dt is
//
//	D = 2 α k_B T / (γ Ms V dt)
//
// so that the fluctuation-dissipation balance holds for the layer's damping.
// Every Thermal owns its generator; runs are reproducible from the seed and
// never touch the global rand state.
type Thermal struct {
	Temperature float64 // K
	rng         *rand.Rand
}

// NewThermal returns a sampler at the given temperature, seeded
// deterministically.
func NewThermal(tempK float64, seed int64) (*Thermal, error) {
	if tempK < 0 || math.IsNaN(tempK) || math.IsInf(tempK, 0) {
		return nil, spin.Invalid("thermal.temperature", "must be non-negative and finite, got %g", tempK)
	}
	return &Thermal{
		Temperature: tempK,
		rng:         rand.New(rand.NewSource(seed)),
	}, nil
}

// FieldFor draws one frozen thermal field for a layer with the given
// parameters, valid for a single step of length dt.
func (th *Thermal) FieldFor(gamma, alpha, ms, vol, dt float64) spin.Vec3 {
	if th.Temperature == 0 {
		return spin.Vec3{}
	}
	d := 2 * alpha * kB * th.Temperature / (gamma * ms * vol * dt)
	s := math.Sqrt(d)
	return spin.Vec3{
		X: s * th.rng.NormFloat64(),
		Y: s * th.rng.NormFloat64(),
		Z: s * th.rng.NormFloat64(),
	}
}

// Fields draws one frozen field per layer, valid for a single step of length
// dt. buf is reused when large enough.
func (th *Thermal) Fields(sys *System, dt float64, buf []spin.Vec3) []spin.Vec3 {
	if cap(buf) < len(sys.Layers) {
		buf = make([]spin.Vec3, len(sys.Layers))
	}
	buf = buf[:len(sys.Layers)]
	for i := range sys.Layers {
		l := &sys.Layers[i]
		gamma, alpha := sys.gammaAlpha(i)
		buf[i] = th.FieldFor(gamma, alpha, l.Ms, l.Volume, dt)
	}
	return buf
}

// Validate checks that a system is compatible with thermal sampling: every
// layer needs damping, Ms and Volume for the variance to be defined.
func (th *Thermal) Validate(sys *System) error {
	for i := range sys.Layers {
		l := &sys.Layers[i]
		_, alpha := sys.gammaAlpha(i)
		if alpha <= 0 {
			return spin.Invalid("thermal", "layer %d: thermal noise needs positive damping", i)
		}
		if l.Ms <= 0 || l.Volume <= 0 {
			return spin.Invalid("thermal", "layer %d: thermal noise needs Ms and Volume", i)
		}
	}
	return nil
}
