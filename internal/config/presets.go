package config

import (
	"math"
	"sort"

	"github.com/alaweimm90/SpinCirc/internal/spin"
	"github.com/alaweimm90/SpinCirc/internal/stack"
)

// tilted returns a unit moment deg degrees off +z in the x-z plane.
func tilted(deg float64) spin.Vec3 {
	rad := deg * math.Pi / 180
	return spin.Vec3{X: math.Sin(rad), Z: math.Cos(rad)}
}

func geom(length float64) stack.Geometry {
	return stack.Geometry{Length: length, Width: 100e-9, Thickness: 50e-9}
}

// valveDevice is the CoFeB/Cu/CoFeB pillar most presets share: a free layer,
// a copper spacer and a pinned reference layer along fixedAxis.
func valveDevice(freeM0, fixedAxis spin.Vec3) DeviceConfig {
	return DeviceConfig{Layers: []LayerConfig{
		{Name: "free", Material: "CoFeB", Geometry: geom(3e-9), M0: freeM0, EasyAxis: spin.Vec3{Z: 1}},
		{Name: "spacer", Material: "Cu", Geometry: geom(5e-9)},
		{Name: "fixed", Material: "CoFeB", Geometry: geom(3e-9), M0: fixedAxis, EasyAxis: fixedAxis, Pin: true},
	}}
}

// Presets are ready-made configurations, keyed by family then name.
var Presets = map[string]map[string]*Config{
	"spinvalve": {
		"p": {
			Name:      "spinvalve/p",
			Device:    valveDevice(spin.Vec3{Z: 1}, spin.Vec3{Z: 1}),
			Run:       RunConfig{Scheme: "rk4", Dt: 1e-12, Duration: 5e-10, CouplingMode: ModeQuasiStatic},
			Transport: TransportConfig{Bias: 1e-3},
		},
		"ap": {
			Name:      "spinvalve/ap",
			Device:    valveDevice(spin.Vec3{Z: -1}, spin.Vec3{Z: 1}),
			Run:       RunConfig{Scheme: "rk4", Dt: 1e-12, Duration: 5e-10, CouplingMode: ModeQuasiStatic},
			Transport: TransportConfig{Bias: 1e-3},
		},
	},
	"switching": {
		"stt": {
			Name:      "switching/stt",
			Device:    valveDevice(tilted(5), spin.Vec3{Z: 1}),
			Run:       RunConfig{Scheme: "rk4", Dt: 1e-12, Duration: 2e-9, CouplingMode: ModeQuasiStatic},
			Transport: TransportConfig{Bias: 0.02},
		},
	},
	"precession": {
		"fmr": {
			Name: "precession/fmr",
			Device: DeviceConfig{Layers: []LayerConfig{
				{Name: "film", Material: "CoFeB", Geometry: geom(3e-9), M0: tilted(20), EasyAxis: spin.Vec3{Z: 1}},
			}},
			Run: RunConfig{Scheme: "rk4", Dt: 1e-12, Duration: 5e-9, CouplingMode: ModeOpen, Field: spin.Vec3{Z: 0.1}},
		},
	},
	"thermal": {
		"room": {
			Name:   "thermal/room",
			Device: valveDevice(tilted(5), spin.Vec3{Z: 1}),
			Run: RunConfig{
				Scheme: "heun", Dt: 1e-13, Duration: 2e-10, CouplingMode: ModeOpen,
				Field: spin.Vec3{Z: 0.05}, ThermalNoise: true, Temperature: 300, Seed: 42,
			},
		},
	},
}

// GetPreset returns an independent copy of the named preset, or nil when
// either key is unknown.
func GetPreset(family, name string) *Config {
	presets, ok := Presets[family]
	if !ok {
		return nil
	}
	cfg, ok := presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

// Families lists the preset families in sorted order.
func Families() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListPresets lists the presets of one family in sorted order, or nil for an
// unknown family.
func ListPresets(family string) []string {
	presets, ok := Presets[family]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
