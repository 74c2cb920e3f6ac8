package material

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alaweimm90/SpinCirc/internal/spin"
)

// Registry maps material names to their parameter sets. The zero value is
// unusable; construct with NewRegistry or BuiltIn.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Material
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Material)}
}

// Register validates m and adds it. Re-registering a name overwrites the
// previous entry, which is how configs shadow built-in parameters.
func (r *Registry) Register(m Material) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.byName[m.Name] = m
	r.mu.Unlock()
	return nil
}

// Get returns the material registered under name.
func (r *Registry) Get(name string) (Material, error) {
	r.mu.RLock()
	m, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return Material{}, spin.Invalid("material", "unknown material %q (have %v)", name, r.Names())
	}
	return m, nil
}

// AtTemperature is Get followed by temperature rescaling.
func (r *Registry) AtTemperature(name string, t float64) (Material, error) {
	if t <= 0 {
		return Material{}, spin.Invalid("temperature", "must be positive, got %g K", t)
	}
	m, err := r.Get(name)
	if err != nil {
		return Material{}, err
	}
	return m.AtTemperature(t), nil
}

// Names lists registered materials in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// BuiltIn returns a registry seeded with common spintronic metals. Values
// are typical thin-film numbers at 300 K.
func BuiltIn() *Registry {
	r := NewRegistry()
	for _, m := range []Material{
		{
			Name:          "CoFeB",
			Resistivity:   1.6e-6,
			TempCoeff:     6.0e-4,
			SpinDiffusion: 12e-9,
			Polarization:  0.56,
			SpinMixing:    5.0e14,
			Ms:            1.2e6,
			Tc:            1100,
			Damping:       0.008,
			Gamma:         GammaDefault,
			AnisotropyK:   3.0e4,
		},
		{
			Name:          "NiFe",
			Resistivity:   2.4e-7,
			TempCoeff:     2.0e-3,
			SpinDiffusion: 5.5e-9,
			Polarization:  0.7,
			SpinMixing:    4.0e14,
			Ms:            8.0e5,
			Tc:            850,
			Damping:       0.01,
			Gamma:         GammaDefault,
			AnisotropyK:   2.0e2,
		},
		{
			Name:          "Co",
			Resistivity:   1.1e-7,
			TempCoeff:     3.0e-3,
			SpinDiffusion: 38e-9,
			Polarization:  0.46,
			SpinMixing:    5.0e14,
			Ms:            1.4e6,
			Tc:            1388,
			Damping:       0.011,
			Gamma:         GammaDefault,
			AnisotropyK:   4.5e5,
		},
		{
			Name:          "Cu",
			Resistivity:   2.1e-8,
			TempCoeff:     3.9e-3,
			SpinDiffusion: 400e-9,
		},
		{
			Name:          "Pt",
			Resistivity:   1.05e-7,
			TempCoeff:     3.9e-3,
			SpinDiffusion: 1.4e-9,
		},
		{
			Name:          "Ta",
			Resistivity:   1.9e-6,
			TempCoeff:     1.0e-3,
			SpinDiffusion: 1.8e-9,
		},
		{
			Name:          "W",
			Resistivity:   1.3e-6,
			TempCoeff:     1.0e-3,
			SpinDiffusion: 2.1e-9,
		},
	} {
		if err := r.Register(m); err != nil {
			panic(fmt.Sprintf("material: bad built-in %s: %v", m.Name, err))
		}
	}
	return r
}
