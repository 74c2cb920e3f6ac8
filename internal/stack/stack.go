// Package stack models a multilayer as an ordered list of layers along the
// transport axis. Node i sits at the junction of layer i-1 and layer i, so a
// stack of L layers spans L+1 circuit nodes.
package stack

import (
	"math"

	"github.com/alaweimm90/SpinCirc/internal/material"
	"github.com/alaweimm90/SpinCirc/internal/spin"
)

// UnitTol is the tolerance for accepting a magnetization as unit length.
// Vectors further off are still normalized but counted as corrections.
const UnitTol = 1e-6

// Geometry is one layer's dimensions in meters. Length runs along the
// transport axis; current crosses the Width x Thickness face.
type Geometry struct {
	Length    float64 `yaml:"length"`
	Width     float64 `yaml:"width"`
	Thickness float64 `yaml:"thickness"`
}

// Area returns the cross-section perpendicular to transport.
func (g Geometry) Area() float64 { return g.Width * g.Thickness }

// Volume returns the layer volume.
func (g Geometry) Volume() float64 { return g.Length * g.Area() }

// Validate rejects non-positive dimensions.
func (g Geometry) Validate() error {
	switch {
	case g.Length <= 0 || math.IsInf(g.Length, 0) || math.IsNaN(g.Length):
		return spin.Invalid("geometry.length", "must be positive and finite, got %g", g.Length)
	case g.Width <= 0 || math.IsInf(g.Width, 0) || math.IsNaN(g.Width):
		return spin.Invalid("geometry.width", "must be positive and finite, got %g", g.Width)
	case g.Thickness <= 0 || math.IsInf(g.Thickness, 0) || math.IsNaN(g.Thickness):
		return spin.Invalid("geometry.thickness", "must be positive and finite, got %g", g.Thickness)
	}
	return nil
}

// Layer is one metal film in the stack. EasyAxis and M0 only matter for
// magnetic materials; both are stored unit length.
type Layer struct {
	Name     string
	Material material.Material
	Geometry Geometry
	EasyAxis spin.Vec3
	M0       spin.Vec3
}

// Magnetic reports whether the layer carries a moment.
func (l Layer) Magnetic() bool { return l.Material.Magnetic() }

// Volume returns the layer volume in m³.
func (l Layer) Volume() float64 { return l.Geometry.Volume() }

// Stack is an ordered multilayer. Build one with New; the constructor
// validates every layer and normalizes magnetization vectors, so downstream
// code can rely on unit-length M0 and EasyAxis.
type Stack struct {
	Layers []Layer

	corrected int
}

// New validates the layers and assembles a stack. Magnetizations off unit
// length by more than UnitTol are normalized and counted; retrieve the count
// with CorrectedM0 to surface the warning.
func New(layers ...Layer) (*Stack, error) {
	if len(layers) == 0 {
		return nil, spin.Invalid("stack.layers", "need at least one layer")
	}
	s := &Stack{Layers: make([]Layer, len(layers))}
	copy(s.Layers, layers)
	for i := range s.Layers {
		if err := s.ingest(i); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Stack) ingest(i int) error {
	l := &s.Layers[i]
	if l.Name == "" {
		return spin.Invalid("layer.name", "layer %d: must not be empty", i)
	}
	if err := l.Material.Validate(); err != nil {
		return err
	}
	if err := l.Geometry.Validate(); err != nil {
		return spin.Invalid("layer.geometry", "layer %d (%s): %v", i, l.Name, err)
	}
	if !l.Magnetic() {
		if l.M0 != (spin.Vec3{}) {
			return spin.Invalid("layer.m0", "layer %d (%s): magnetization on a normal metal", i, l.Name)
		}
		return nil
	}

	n := l.M0.Norm()
	if !l.M0.IsFinite() || n == 0 {
		return spin.Invalid("layer.m0", "layer %d (%s): need a finite nonzero magnetization", i, l.Name)
	}
	if math.Abs(n-1) > UnitTol {
		s.corrected++
	}
	l.M0 = l.M0.Normalized()

	if l.Material.AnisotropyK != 0 {
		an := l.EasyAxis.Norm()
		if !l.EasyAxis.IsFinite() || an == 0 {
			return spin.Invalid("layer.easyAxis", "layer %d (%s): anisotropy needs an axis", i, l.Name)
		}
		if math.Abs(an-1) > UnitTol {
			s.corrected++
		}
		l.EasyAxis = l.EasyAxis.Normalized()
	}
	return nil
}

// NodeCount returns the number of circuit nodes, one more than the layer
// count.
func (s *Stack) NodeCount() int { return len(s.Layers) + 1 }

// MagneticLayers lists the indices of magnetic layers in stack order.
func (s *Stack) MagneticLayers() []int {
	var idx []int
	for i, l := range s.Layers {
		if l.Magnetic() {
			idx = append(idx, i)
		}
	}
	return idx
}

// Magnetizations returns the initial unit magnetizations in magnetic-layer
// order, ready to seed a dynamics run.
func (s *Stack) Magnetizations() []spin.Vec3 {
	var ms []spin.Vec3
	for _, l := range s.Layers {
		if l.Magnetic() {
			ms = append(ms, l.M0)
		}
	}
	return ms
}

// CorrectedM0 reports how many magnetization or easy-axis vectors had to be
// renormalized at ingestion.
func (s *Stack) CorrectedM0() int { return s.corrected }

// AtTemperature returns a copy with every material rescaled to t kelvin.
func (s *Stack) AtTemperature(t float64) (*Stack, error) {
	if t <= 0 {
		return nil, spin.Invalid("temperature", "must be positive, got %g K", t)
	}
	out := &Stack{Layers: make([]Layer, len(s.Layers)), corrected: s.corrected}
	copy(out.Layers, s.Layers)
	for i := range out.Layers {
		out.Layers[i].Material = out.Layers[i].Material.AtTemperature(t)
	}
	return out, nil
}

// Clone returns a deep copy.
func (s *Stack) Clone() *Stack {
	out := &Stack{Layers: make([]Layer, len(s.Layers)), corrected: s.corrected}
	copy(out.Layers, s.Layers)
	return out
}
