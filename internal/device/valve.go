// Package device composes the core packages into ready-made spintronic
// devices. The wrappers only configure stacks, boundary conditions and
// dynamical systems; all physics stays in transport, llg and couple.
package device

import (
	"context"
	"fmt"
	"math"

	"github.com/alaweimm90/SpinCirc/internal/analysis"
	"github.com/alaweimm90/SpinCirc/internal/couple"
	"github.com/alaweimm90/SpinCirc/internal/dynamics"
	"github.com/alaweimm90/SpinCirc/internal/llg"
	"github.com/alaweimm90/SpinCirc/internal/material"
	"github.com/alaweimm90/SpinCirc/internal/spin"
	"github.com/alaweimm90/SpinCirc/internal/stack"
	"github.com/alaweimm90/SpinCirc/internal/transport"
)

// SpinValve is a free/spacer/fixed trilayer biased across its outer nodes.
// Layer lengths run along the transport axis; Width and Thickness set the
// shared cross-section. The fixed layer is held by a strong uniaxial term
// standing in for exchange-bias pinning.
type SpinValve struct {
	Free, Spacer, Fixed material.Material

	FreeLength   float64 // m
	SpacerLength float64 // m
	FixedLength  float64 // m
	Width        float64 // m
	Thickness    float64 // m

	FixedAxis spin.Vec3 // pinned moment, unit
	FreeM0    spin.Vec3 // starting free moment, unit
	EasyAxis  spin.Vec3 // free-layer easy axis, unit
	Field     spin.Vec3 // applied field on both moments, T

	Bias        float64 // across the outer nodes, V
	PinK        float64 // fixed-layer pinning, J/m³
	Temperature float64 // K; zero keeps the 300 K parameters

	Transport transport.Options
}

// NewSpinValve returns a CoFeB/Cu/CoFeB valve with typical thin-film
// geometry. The free moment starts a few degrees off the easy axis so spin
// torque has a lever arm at t = 0.
func NewSpinValve() *SpinValve {
	const tilt = 5 * math.Pi / 180
	return &SpinValve{
		Free:         mustBuiltIn("CoFeB"),
		Spacer:       mustBuiltIn("Cu"),
		Fixed:        mustBuiltIn("CoFeB"),
		FreeLength:   3e-9,
		SpacerLength: 5e-9,
		FixedLength:  3e-9,
		Width:        100e-9,
		Thickness:    50e-9,
		FixedAxis:    spin.Vec3{Z: 1},
		FreeM0:       spin.Vec3{X: math.Sin(tilt), Z: math.Cos(tilt)},
		EasyAxis:     spin.Vec3{Z: 1},
		Bias:         2e-3,
		PinK:         1e6,
	}
}

// Build assembles the trilayer with the free layer at node 0. With a
// temperature set, every material is rescaled before assembly.
func (v *SpinValve) Build() (*stack.Stack, error) {
	free, fixed := v.params()
	stk, err := stack.New(
		stack.Layer{Name: "free", Material: free, Geometry: v.geom(v.FreeLength), EasyAxis: v.EasyAxis, M0: v.FreeM0},
		stack.Layer{Name: "spacer", Material: v.Spacer, Geometry: v.geom(v.SpacerLength)},
		stack.Layer{Name: "fixed", Material: fixed, Geometry: v.geom(v.FixedLength), EasyAxis: v.FixedAxis, M0: v.FixedAxis},
	)
	if err != nil {
		return nil, err
	}
	if v.Temperature > 0 {
		return stk.AtTemperature(v.Temperature)
	}
	return stk, nil
}

// BoundaryConditions bias node 0 against the grounded far contact. The
// trilayer spans nodes 0 through 3.
func (v *SpinValve) BoundaryConditions() []transport.BoundaryCondition {
	return v.contactsAt(v.Bias)
}

func (v *SpinValve) contactsAt(bias float64) []transport.BoundaryCondition {
	return []transport.BoundaryCondition{
		transport.ApplyVoltage(0, bias),
		transport.GroundCharge(3),
	}
}

// Resistance measures the two-terminal resistance with the free moment held
// at m. The conductance system is linear, so the probe bias cancels out of
// the result; a zero configured bias falls back to a 1 mV probe.
func (v *SpinValve) Resistance(m spin.Vec3) (float64, error) {
	stk, err := v.Build()
	if err != nil {
		return 0, err
	}
	probe := v.Bias
	if probe == 0 {
		probe = 1e-3
	}
	sys, err := transport.Build(stk, []spin.Vec3{m, v.FixedAxis}, v.Transport)
	if err != nil {
		return 0, err
	}
	sol, err := sys.Solve(v.contactsAt(probe))
	if err != nil {
		return 0, err
	}
	return sol.TotalResistance()
}

// MR returns the magnetoresistance ratio between the antiparallel and
// parallel free-moment configurations.
func (v *SpinValve) MR() (float64, error) {
	rp, err := v.Resistance(v.FixedAxis)
	if err != nil {
		return 0, err
	}
	rap, err := v.Resistance(v.FixedAxis.Scale(-1))
	if err != nil {
		return 0, err
	}
	return analysis.MRRatio(rp, rap)
}

// System builds the two-moment dynamical system matching Build's stack
// order: free first, then the pinned layer.
func (v *SpinValve) System() (*llg.System, error) {
	free, fixed := v.params()

	var freeTerms []llg.Term
	if free.AnisotropyK != 0 {
		freeTerms = append(freeTerms, llg.Uniaxial{K: free.AnisotropyK, Ms: free.Ms, Axis: v.EasyAxis})
	}
	fixedTerms := []llg.Term{llg.Uniaxial{K: v.PinK, Ms: fixed.Ms, Axis: v.FixedAxis}}
	if v.Field != (spin.Vec3{}) {
		freeTerms = append(freeTerms, llg.Uniform{B: v.Field})
		fixedTerms = append(fixedTerms, llg.Uniform{B: v.Field})
	}

	return llg.NewSystem(free.Gamma, free.Damping,
		llg.Layer{Ms: free.Ms, Volume: v.geom(v.FreeLength).Volume(), Alpha: free.Damping, Gamma: free.Gamma, Terms: freeTerms},
		llg.Layer{Ms: fixed.Ms, Volume: v.geom(v.FixedLength).Volume(), Alpha: fixed.Damping, Gamma: fixed.Gamma, Terms: fixedTerms},
	)
}

// Switch runs the coupled transport and dynamics loop from the configured
// starting moments and returns the trajectory with its final operating
// point.
func (v *SpinValve) Switch(ctx context.Context, integ spin.Integrator, cfg dynamics.Config, opt couple.Options) (*couple.Result, error) {
	stk, err := v.Build()
	if err != nil {
		return nil, err
	}
	sys, err := v.System()
	if err != nil {
		return nil, err
	}
	orch, err := couple.New(stk, v.BoundaryConditions(), sys, integ, opt)
	if err != nil {
		return nil, err
	}
	return orch.Run(ctx, spin.Pack(stk.Magnetizations()), cfg)
}

func (v *SpinValve) params() (free, fixed material.Material) {
	free, fixed = v.Free, v.Fixed
	if v.Temperature > 0 {
		free = free.AtTemperature(v.Temperature)
		fixed = fixed.AtTemperature(v.Temperature)
	}
	return free, fixed
}

func (v *SpinValve) geom(length float64) stack.Geometry {
	return stack.Geometry{Length: length, Width: v.Width, Thickness: v.Thickness}
}

func mustBuiltIn(name string) material.Material {
	m, err := material.BuiltIn().Get(name)
	if err != nil {
		panic(fmt.Sprintf("device: missing built-in %s: %v", name, err))
	}
	return m
}
