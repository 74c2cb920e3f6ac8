package stack

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alaweimm90/SpinCirc/internal/material"
	"github.com/alaweimm90/SpinCirc/internal/spin"
)

var mats = material.BuiltIn()

func layer(t *testing.T, name, mat string, lengthNm float64, m0 spin.Vec3) Layer {
	t.Helper()
	m, err := mats.Get(mat)
	require.NoError(t, err)
	return Layer{
		Name:     name,
		Material: m,
		Geometry: Geometry{Length: lengthNm * 1e-9, Width: 100e-9, Thickness: 50e-9},
		EasyAxis: spin.Vec3{Z: 1},
		M0:       m0,
	}
}

func TestNewSpinValve(t *testing.T) {
	s, err := New(
		layer(t, "free", "CoFeB", 3, spin.Vec3{Z: 1}),
		layer(t, "spacer", "Cu", 5, spin.Vec3{}),
		layer(t, "fixed", "CoFeB", 3, spin.Vec3{Z: -1}),
	)
	require.NoError(t, err)

	assert.Equal(t, 4, s.NodeCount())
	assert.Equal(t, []int{0, 2}, s.MagneticLayers())
	assert.Equal(t, 0, s.CorrectedM0())

	ms := s.Magnetizations()
	require.Len(t, ms, 2)
	assert.Equal(t, spin.Vec3{Z: 1}, ms[0])
	assert.Equal(t, spin.Vec3{Z: -1}, ms[1])
}

func TestNewNormalizesM0(t *testing.T) {
	t.Run("within tolerance", func(t *testing.T) {
		s, err := New(layer(t, "f", "NiFe", 5, spin.Vec3{Z: 1 + 1e-8}))
		require.NoError(t, err)
		assert.Equal(t, 0, s.CorrectedM0())
		assert.True(t, s.Layers[0].M0.IsUnit(1e-12))
	})

	t.Run("off unit length", func(t *testing.T) {
		s, err := New(layer(t, "f", "NiFe", 5, spin.Vec3{X: 3, Y: 4}))
		require.NoError(t, err)
		assert.Equal(t, 1, s.CorrectedM0())
		assert.InDelta(t, 0.6, s.Layers[0].M0.X, 1e-12)
		assert.InDelta(t, 0.8, s.Layers[0].M0.Y, 1e-12)
	})
}

func TestNewRejects(t *testing.T) {
	tests := []struct {
		name   string
		layers func(t *testing.T) []Layer
	}{
		{"empty stack", func(t *testing.T) []Layer { return nil }},
		{"magnetization on normal metal", func(t *testing.T) []Layer {
			return []Layer{layer(t, "n", "Cu", 5, spin.Vec3{Z: 1})}
		}},
		{"zero magnetization on magnet", func(t *testing.T) []Layer {
			return []Layer{layer(t, "f", "Co", 5, spin.Vec3{})}
		}},
		{"NaN magnetization", func(t *testing.T) []Layer {
			return []Layer{layer(t, "f", "Co", 5, spin.Vec3{Z: math.NaN()})}
		}},
		{"missing easy axis", func(t *testing.T) []Layer {
			l := layer(t, "f", "Co", 5, spin.Vec3{Z: 1})
			l.EasyAxis = spin.Vec3{}
			return []Layer{l}
		}},
		{"bad geometry", func(t *testing.T) []Layer {
			l := layer(t, "n", "Cu", 5, spin.Vec3{})
			l.Geometry.Width = 0
			return []Layer{l}
		}},
		{"unnamed layer", func(t *testing.T) []Layer {
			l := layer(t, "n", "Cu", 5, spin.Vec3{})
			l.Name = ""
			return []Layer{l}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.layers(t)...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, spin.ErrConfiguration), "got %v", err)
		})
	}
}

func TestGeometry(t *testing.T) {
	g := Geometry{Length: 5e-9, Width: 100e-9, Thickness: 50e-9}
	assert.InEpsilon(t, 5e-15, g.Area(), 1e-12)
	assert.InEpsilon(t, 2.5e-23, g.Volume(), 1e-12)
}

func TestAtTemperature(t *testing.T) {
	s, err := New(
		layer(t, "f", "NiFe", 5, spin.Vec3{Z: 1}),
		layer(t, "n", "Cu", 5, spin.Vec3{}),
	)
	require.NoError(t, err)

	hot, err := s.AtTemperature(400)
	require.NoError(t, err)
	assert.Greater(t, hot.Layers[1].Material.Resistivity, s.Layers[1].Material.Resistivity)
	assert.Less(t, hot.Layers[0].Material.Ms, s.Layers[0].Material.Ms)

	_, err = s.AtTemperature(-10)
	require.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	s, err := New(layer(t, "f", "Co", 5, spin.Vec3{Z: 1}))
	require.NoError(t, err)

	c := s.Clone()
	c.Layers[0].Name = "renamed"
	assert.Equal(t, "f", s.Layers[0].Name)
}
