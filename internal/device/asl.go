package device

import (
	"context"
	"math"

	"github.com/alaweimm90/SpinCirc/internal/couple"
	"github.com/alaweimm90/SpinCirc/internal/dynamics"
	"github.com/alaweimm90/SpinCirc/internal/llg"
	"github.com/alaweimm90/SpinCirc/internal/material"
	"github.com/alaweimm90/SpinCirc/internal/spin"
	"github.com/alaweimm90/SpinCirc/internal/stack"
	"github.com/alaweimm90/SpinCirc/internal/transport"
)

// ASLInverter is the all-spin-logic primitive reduced to one transport
// chain: an input magnet writes its state into the channel's spin
// accumulation, which torques the output magnet. The input moment is pinned
// hard because upstream logic owns it; the supply current direction selects
// which output state the torque favors.
type ASLInverter struct {
	Magnet  material.Material
	Channel material.Material

	MagnetLength  float64 // m, both magnets
	ChannelLength float64 // m, must stay under the channel spin length
	Width         float64 // m
	Thickness     float64 // m

	Input    spin.Vec3 // logic input moment, unit
	OutputM0 spin.Vec3 // starting output moment, unit

	Supply float64 // drive current at the input contact, A
	PinK   float64 // input pinning, J/m³

	Transport transport.Options
}

// NewASLInverter returns a CoFeB/Cu/CoFeB inverter with a 100 nm channel,
// well inside copper's spin diffusion length. The output moment starts a
// few degrees off its easy axis.
func NewASLInverter() *ASLInverter {
	const tilt = 5 * math.Pi / 180
	return &ASLInverter{
		Magnet:        mustBuiltIn("CoFeB"),
		Channel:       mustBuiltIn("Cu"),
		MagnetLength:  3e-9,
		ChannelLength: 100e-9,
		Width:         100e-9,
		Thickness:     50e-9,
		Input:         spin.Vec3{Z: 1},
		OutputM0:      spin.Vec3{X: math.Sin(tilt), Z: math.Cos(tilt)},
		Supply:        1e-3,
		PinK:          1e6,
	}
}

// Build assembles input magnet, channel and output magnet as layers 0, 1
// and 2.
func (a *ASLInverter) Build() (*stack.Stack, error) {
	return stack.New(
		stack.Layer{Name: "input", Material: a.Magnet, Geometry: a.geom(a.MagnetLength), EasyAxis: a.Input, M0: a.Input},
		stack.Layer{Name: "channel", Material: a.Channel, Geometry: a.geom(a.ChannelLength)},
		stack.Layer{Name: "output", Material: a.Magnet, Geometry: a.geom(a.MagnetLength), EasyAxis: a.Input, M0: a.OutputM0},
	)
}

// BoundaryConditions drive the supply current through the chain against the
// grounded output contact.
func (a *ASLInverter) BoundaryConditions() []transport.BoundaryCondition {
	return []transport.BoundaryCondition{
		transport.InjectCurrent(0, a.Supply),
		transport.GroundCharge(3),
	}
}

// System builds the two-moment dynamical system: the pinned input first,
// then the free output. Both logic states share the input's easy axis.
func (a *ASLInverter) System() (*llg.System, error) {
	vol := a.geom(a.MagnetLength).Volume()
	return llg.NewSystem(a.Magnet.Gamma, a.Magnet.Damping,
		llg.Layer{Ms: a.Magnet.Ms, Volume: vol, Terms: []llg.Term{
			llg.Uniaxial{K: a.PinK, Ms: a.Magnet.Ms, Axis: a.Input},
		}},
		llg.Layer{Ms: a.Magnet.Ms, Volume: vol, Terms: []llg.Term{
			llg.Uniaxial{K: a.Magnet.AnisotropyK, Ms: a.Magnet.Ms, Axis: a.Input},
		}},
	)
}

// Run executes the coupled loop from the configured moments.
func (a *ASLInverter) Run(ctx context.Context, integ spin.Integrator, cfg dynamics.Config, opt couple.Options) (*couple.Result, error) {
	stk, err := a.Build()
	if err != nil {
		return nil, err
	}
	sys, err := a.System()
	if err != nil {
		return nil, err
	}
	orch, err := couple.New(stk, a.BoundaryConditions(), sys, integ, opt)
	if err != nil {
		return nil, err
	}
	return orch.Run(ctx, spin.Pack(stk.Magnetizations()), cfg)
}

// OutputAlignment projects the final output moment on the input axis.
// Inversion drives it negative.
func (a *ASLInverter) OutputAlignment(res *couple.Result) float64 {
	return res.Final().Vec(1).Dot(a.Input)
}

func (a *ASLInverter) geom(length float64) stack.Geometry {
	return stack.Geometry{Length: length, Width: a.Width, Thickness: a.Thickness}
}
