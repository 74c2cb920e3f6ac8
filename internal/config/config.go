// Package config is the YAML surface of the simulator. One Config describes
// a full run, from the device stack down to the transport and coupling knobs,
// and assembles the core packages from itself. Loading applies the file over
// DefaultConfig, so partial files are complete configurations.
package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alaweimm90/SpinCirc/internal/couple"
	"github.com/alaweimm90/SpinCirc/internal/dynamics"
	"github.com/alaweimm90/SpinCirc/internal/integrators"
	"github.com/alaweimm90/SpinCirc/internal/llg"
	"github.com/alaweimm90/SpinCirc/internal/material"
	"github.com/alaweimm90/SpinCirc/internal/spin"
	"github.com/alaweimm90/SpinCirc/internal/stack"
	"github.com/alaweimm90/SpinCirc/internal/transport"
)

// Run-section defaults.
const (
	DefaultScheme   = "rk4"
	DefaultDt       = 1e-12
	DefaultDuration = 1e-9
	DefaultRecord   = 1
	DefaultBias     = 2e-3
)

// Coupling modes accepted in the run section. Open runs integrate the
// moments without a transport loop.
const (
	ModeQuasiStatic = "quasi-static"
	ModeDynamic     = "dynamic"
	ModeOpen        = "open"
)

// PinKDefault is the uniaxial constant (J/m³) standing in for exchange-bias
// pinning on layers marked pin.
const PinKDefault = 1e6

// Config mirrors one complete simulation setup.
type Config struct {
	Name      string          `yaml:"name"`
	Device    DeviceConfig    `yaml:"device"`
	Run       RunConfig       `yaml:"run"`
	Transport TransportConfig `yaml:"transport"`
	Coupling  CouplingConfig  `yaml:"coupling"`

	// Materials are applied over the built-in registry, so configs can
	// shadow or extend it.
	Materials []material.Material `yaml:"materials"`
}

// DeviceConfig lists the stack along the transport axis.
type DeviceConfig struct {
	Layers []LayerConfig `yaml:"layers"`
}

// LayerConfig names a material and places it. M0 and EasyAxis only matter
// for magnetic materials; Pin adds a hard uniaxial term along M0.
type LayerConfig struct {
	Name     string         `yaml:"name"`
	Material string         `yaml:"material"`
	Geometry stack.Geometry `yaml:"geometry"`
	M0       spin.Vec3      `yaml:"m0"`
	EasyAxis spin.Vec3      `yaml:"easy_axis"`
	Pin      bool           `yaml:"pin"`
}

// RunConfig drives the integration.
type RunConfig struct {
	Scheme       string    `yaml:"scheme"`
	Dt           float64   `yaml:"dt"`        // s
	Duration     float64   `yaml:"duration"`  // s
	Tolerance    float64   `yaml:"tolerance"` // adaptive error tolerance
	MaxSteps     int       `yaml:"max_steps"`
	Record       int       `yaml:"record"` // sample stride
	CouplingMode string    `yaml:"coupling_mode"`
	Field        spin.Vec3 `yaml:"field"` // applied uniform field, T
	ThermalNoise bool      `yaml:"thermal_noise"`
	Temperature  float64   `yaml:"temperature"` // K
	Seed         int64     `yaml:"seed"`
}

// TransportConfig sets the bias and the numerical guards. Zero guards fall
// back to the transport package defaults.
type TransportConfig struct {
	Bias         float64 `yaml:"bias"` // V at node 0 against the grounded far contact
	RowSumTol    float64 `yaml:"row_sum_tol"`
	KirchhoffTol float64 `yaml:"kirchhoff_tol"`
	CondLimit    float64 `yaml:"cond_limit"`
}

// CouplingConfig tunes the quasi-static fixed point.
type CouplingConfig struct {
	FixedPointTolerance     float64 `yaml:"fixed_point_tolerance"`
	MaxFixedPointIterations int     `yaml:"max_fixed_point_iterations"`
	OuterDt                 float64 `yaml:"outer_dt"` // s
}

// DefaultConfig is the CoFeB/Cu/CoFeB valve the presets build on: free
// moment a few degrees off the pinned axis, 2 mV across the outer nodes,
// quasi-static coupling.
func DefaultConfig() *Config {
	return &Config{
		Name:   "spinvalve",
		Device: valveDevice(tilted(5), spin.Vec3{Z: 1}),
		Run: RunConfig{
			Scheme:       DefaultScheme,
			Dt:           DefaultDt,
			Duration:     DefaultDuration,
			Record:       DefaultRecord,
			CouplingMode: ModeQuasiStatic,
		},
		Transport: TransportConfig{Bias: DefaultBias},
	}
}

// Load reads path and applies it over DefaultConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns an independent copy, so flag overrides never touch shared
// presets.
func (c *Config) Clone() *Config {
	out := *c
	out.Device.Layers = append([]LayerConfig(nil), c.Device.Layers...)
	out.Materials = append([]material.Material(nil), c.Materials...)
	return &out
}

// Validate checks the whole surface without building anything.
func (c *Config) Validate() error {
	if len(c.Device.Layers) == 0 {
		return spin.Invalid("device.layers", "need at least one layer")
	}
	for i, l := range c.Device.Layers {
		if l.Name == "" {
			return spin.Invalid("device.layers", "layer %d: name must not be empty", i)
		}
		if l.Material == "" {
			return spin.Invalid("device.layers", "layer %d (%s): material must not be empty", i, l.Name)
		}
		if err := l.Geometry.Validate(); err != nil {
			return err
		}
	}
	if _, err := integrators.New(c.Scheme()); err != nil {
		return err
	}
	switch {
	case c.Run.Dt <= 0:
		return spin.Invalid("run.dt", "must be positive, got %g", c.Run.Dt)
	case c.Run.Duration <= 0:
		return spin.Invalid("run.duration", "must be positive, got %g", c.Run.Duration)
	case c.Run.Tolerance < 0:
		return spin.Invalid("run.tolerance", "must be non-negative, got %g", c.Run.Tolerance)
	case c.Run.MaxSteps < 0:
		return spin.Invalid("run.max_steps", "must be non-negative, got %d", c.Run.MaxSteps)
	case c.Run.Record < 0:
		return spin.Invalid("run.record", "must be non-negative, got %d", c.Run.Record)
	case c.Run.Temperature < 0:
		return spin.Invalid("run.temperature", "must be non-negative, got %g", c.Run.Temperature)
	}
	if m := c.Mode(); m != ModeQuasiStatic && m != ModeDynamic && m != ModeOpen {
		return spin.Invalid("run.coupling_mode", "unknown mode %q (have %s, %s, %s)",
			c.Run.CouplingMode, ModeQuasiStatic, ModeDynamic, ModeOpen)
	}
	if c.Run.ThermalNoise && c.Run.Temperature <= 0 {
		return spin.Invalid("run.temperature", "thermal noise needs a positive temperature, got %g K", c.Run.Temperature)
	}
	if c.Transport.RowSumTol < 0 || c.Transport.KirchhoffTol < 0 || c.Transport.CondLimit < 0 {
		return spin.Invalid("transport", "guards must be non-negative")
	}
	switch {
	case c.Coupling.FixedPointTolerance < 0:
		return spin.Invalid("coupling.fixed_point_tolerance", "must be non-negative, got %g", c.Coupling.FixedPointTolerance)
	case c.Coupling.MaxFixedPointIterations < 0:
		return spin.Invalid("coupling.max_fixed_point_iterations", "must be non-negative, got %d", c.Coupling.MaxFixedPointIterations)
	case c.Coupling.OuterDt < 0:
		return spin.Invalid("coupling.outer_dt", "must be non-negative, got %g", c.Coupling.OuterDt)
	}
	for _, m := range c.Materials {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns the built-in materials with the config's overrides
// applied on top.
func (c *Config) Registry() (*material.Registry, error) {
	reg := material.BuiltIn()
	for _, m := range c.Materials {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Stack assembles the device section against reg, rescaled to the run
// temperature when one is set.
func (c *Config) Stack(reg *material.Registry) (*stack.Stack, error) {
	layers := make([]stack.Layer, len(c.Device.Layers))
	for i, lc := range c.Device.Layers {
		m, err := reg.Get(lc.Material)
		if err != nil {
			return nil, err
		}
		layers[i] = stack.Layer{
			Name:     lc.Name,
			Material: m,
			Geometry: lc.Geometry,
			EasyAxis: lc.EasyAxis,
			M0:       lc.M0,
		}
	}
	stk, err := stack.New(layers...)
	if err != nil {
		return nil, err
	}
	if c.Run.Temperature > 0 {
		return stk.AtTemperature(c.Run.Temperature)
	}
	return stk, nil
}

// System builds the dynamical system for stk's magnetic layers in stack
// order: material anisotropy about each easy axis, the applied run field,
// and a hard pinning term on layers marked pin.
func (c *Config) System(stk *stack.Stack) (*llg.System, error) {
	var layers []llg.Layer
	var gamma, alpha float64
	for _, idx := range stk.MagneticLayers() {
		l := stk.Layers[idx]
		var terms []llg.Term
		if l.Material.AnisotropyK != 0 {
			terms = append(terms, llg.Uniaxial{K: l.Material.AnisotropyK, Ms: l.Material.Ms, Axis: l.EasyAxis})
		}
		if idx < len(c.Device.Layers) && c.Device.Layers[idx].Pin {
			terms = append(terms, llg.Uniaxial{K: PinKDefault, Ms: l.Material.Ms, Axis: l.M0})
		}
		if c.Run.Field != (spin.Vec3{}) {
			terms = append(terms, llg.Uniform{B: c.Run.Field})
		}
		if gamma == 0 {
			gamma, alpha = l.Material.Gamma, l.Material.Damping
		}
		layers = append(layers, llg.Layer{
			Ms:     l.Material.Ms,
			Volume: l.Volume(),
			Alpha:  l.Material.Damping,
			Gamma:  l.Material.Gamma,
			Terms:  terms,
		})
	}
	if len(layers) == 0 {
		return nil, spin.Invalid("device.layers", "no magnetic layers to integrate")
	}
	return llg.NewSystem(gamma, alpha, layers...)
}

// X0 packs the stack's initial moments.
func (c *Config) X0(stk *stack.Stack) spin.State { return spin.Pack(stk.Magnetizations()) }

// Integrator resolves the configured scheme.
func (c *Config) Integrator() (spin.Integrator, error) { return integrators.New(c.Scheme()) }

// Dynamics maps the run section onto an integration config. Adaptive
// stepping follows from the scheme, except that thermal noise forces fixed
// steps; the noise sampler is seeded from the run seed.
func (c *Config) Dynamics() (dynamics.Config, error) {
	integ, err := c.Integrator()
	if err != nil {
		return dynamics.Config{}, err
	}
	_, adaptive := integ.(spin.AdaptiveIntegrator)
	cfg := dynamics.Config{
		Dt:       c.Run.Dt,
		Duration: c.Run.Duration,
		Adaptive: adaptive && !c.Run.ThermalNoise,
		Tol:      c.Run.Tolerance,
		MaxSteps: c.Run.MaxSteps,
		Record:   c.Run.Record,
	}
	if c.Run.ThermalNoise {
		th, err := llg.NewThermal(c.Run.Temperature, c.Run.Seed)
		if err != nil {
			return dynamics.Config{}, err
		}
		cfg.Thermal = th
	}
	return cfg, nil
}

// Coupled reports whether the run closes the transport loop.
func (c *Config) Coupled() bool { return c.Mode() != ModeOpen }

// CoupleMode maps the run section's mode onto the orchestrator's.
func (c *Config) CoupleMode() (couple.Mode, error) {
	switch c.Mode() {
	case ModeQuasiStatic:
		return couple.QuasiStatic, nil
	case ModeDynamic:
		return couple.Dynamic, nil
	}
	return 0, spin.Invalid("run.coupling_mode", "%q does not couple transport", c.Run.CouplingMode)
}

// TransportOptions maps the transport guards.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		RowSumTol:    c.Transport.RowSumTol,
		KirchhoffTol: c.Transport.KirchhoffTol,
		CondLimit:    c.Transport.CondLimit,
	}
}

// CoupleOptions assembles the orchestrator options.
func (c *Config) CoupleOptions() (couple.Options, error) {
	mode, err := c.CoupleMode()
	if err != nil {
		return couple.Options{}, err
	}
	return couple.Options{
		Mode:          mode,
		FixedPointTol: c.Coupling.FixedPointTolerance,
		MaxFixedPoint: c.Coupling.MaxFixedPointIterations,
		OuterDt:       c.Coupling.OuterDt,
		Transport:     c.TransportOptions(),
	}, nil
}

// BoundaryConditions bias node 0 against the grounded far contact.
func (c *Config) BoundaryConditions(stk *stack.Stack) []transport.BoundaryCondition {
	return []transport.BoundaryCondition{
		transport.ApplyVoltage(0, c.Transport.Bias),
		transport.GroundCharge(stk.NodeCount() - 1),
	}
}

// Scheme returns the integration scheme, falling back to DefaultScheme.
func (c *Config) Scheme() string {
	if c.Run.Scheme == "" {
		return DefaultScheme
	}
	return c.Run.Scheme
}

// Mode returns the normalized coupling mode, falling back to quasi-static.
func (c *Config) Mode() string {
	m := strings.ToLower(strings.TrimSpace(c.Run.CouplingMode))
	if m == "" {
		return ModeQuasiStatic
	}
	return m
}
