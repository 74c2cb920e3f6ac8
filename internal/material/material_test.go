package material

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alaweimm90/SpinCirc/internal/spin"
)

func TestBuiltInValid(t *testing.T) {
	r := BuiltIn()
	names := r.Names()
	require.Contains(t, names, "CoFeB")
	require.Contains(t, names, "Cu")
	require.Contains(t, names, "Pt")

	for _, n := range names {
		m, err := r.Get(n)
		require.NoError(t, err)
		assert.NoError(t, m.Validate(), n)
	}
}

func TestGetUnknown(t *testing.T) {
	r := BuiltIn()
	_, err := r.Get("Unobtainium")
	require.Error(t, err)
	assert.True(t, errors.Is(err, spin.ErrConfiguration))
	assert.Contains(t, err.Error(), "Unobtainium")
}

func TestRegisterOverwrites(t *testing.T) {
	r := BuiltIn()
	cu, err := r.Get("Cu")
	require.NoError(t, err)

	cu.Resistivity = 3.0e-8
	require.NoError(t, r.Register(cu))

	got, err := r.Get("Cu")
	require.NoError(t, err)
	assert.Equal(t, 3.0e-8, got.Resistivity)
}

func TestValidate(t *testing.T) {
	base := Material{
		Name:          "X",
		Resistivity:   1e-7,
		SpinDiffusion: 10e-9,
	}
	tests := []struct {
		name   string
		mutate func(*Material)
		field  string
	}{
		{"empty name", func(m *Material) { m.Name = "" }, "name"},
		{"zero resistivity", func(m *Material) { m.Resistivity = 0 }, "resistivity"},
		{"negative lambda", func(m *Material) { m.SpinDiffusion = -1e-9 }, "spinDiffusion"},
		{"polarization too high", func(m *Material) { m.Polarization = 1.0; m.Ms = 1e6; m.Gamma = GammaDefault }, "polarization"},
		{"polarized normal metal", func(m *Material) { m.Polarization = 0.5 }, "polarization"},
		{"magnetic without gamma", func(m *Material) { m.Ms = 1e6; m.Polarization = 0.5 }, "gamma"},
		{"unpolarized magnet", func(m *Material) { m.Ms = 1e6; m.Gamma = GammaDefault }, "polarization"},
		{"negative damping", func(m *Material) { m.Damping = -0.01 }, "damping"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base
			tt.mutate(&m)
			err := m.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, spin.ErrConfiguration))
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	assert.NoError(t, base.Validate())
}

func TestAtTemperature(t *testing.T) {
	r := BuiltIn()

	t.Run("resistivity and lambda", func(t *testing.T) {
		cu, err := r.Get("Cu")
		require.NoError(t, err)
		hot := cu.AtTemperature(400)

		assert.Greater(t, hot.Resistivity, cu.Resistivity)
		assert.Less(t, hot.SpinDiffusion, cu.SpinDiffusion)
		// ρλ is preserved by the mean-free-path scaling.
		assert.InEpsilon(t, cu.Resistivity*cu.SpinDiffusion,
			hot.Resistivity*hot.SpinDiffusion, 1e-12)
	})

	t.Run("bloch law", func(t *testing.T) {
		py, err := r.Get("NiFe")
		require.NoError(t, err)

		cold := py.AtTemperature(4)
		hot := py.AtTemperature(600)
		assert.Greater(t, cold.Ms, py.Ms)
		assert.Less(t, hot.Ms, py.Ms)

		above := py.AtTemperature(py.Tc + 1)
		assert.Zero(t, above.Ms)
	})

	t.Run("reference temperature is identity", func(t *testing.T) {
		co, err := r.Get("Co")
		require.NoError(t, err)
		same := co.AtTemperature(RefTemp)
		assert.InEpsilon(t, co.Resistivity, same.Resistivity, 1e-12)
		assert.InEpsilon(t, co.SpinDiffusion, same.SpinDiffusion, 1e-12)
		assert.InEpsilon(t, co.Ms, same.Ms, 1e-12)
	})

	t.Run("rejects nonpositive temperature", func(t *testing.T) {
		_, err := r.AtTemperature("Cu", 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, spin.ErrConfiguration))
	})
}
