package transport

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/alaweimm90/SpinCirc/internal/spin"
)

// Kind selects what a boundary condition fixes at one unknown.
type Kind int

const (
	// Voltage pins the potential (charge) or accumulation (spin) in volts.
	Voltage Kind = iota
	// Current injects an external current in amperes.
	Current
)

func (k Kind) String() string {
	switch k {
	case Voltage:
		return "voltage"
	case Current:
		return "current"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// BoundaryCondition constrains one unknown of the network. Unconstrained
// unknowns float with zero external current.
type BoundaryCondition struct {
	Node  int
	Comp  int
	Kind  Kind
	Value float64
}

// GroundCharge pins the charge potential of node to zero.
func GroundCharge(node int) BoundaryCondition {
	return BoundaryCondition{Node: node}
}

// ApplyVoltage pins the charge potential of node to v volts.
func ApplyVoltage(node int, v float64) BoundaryCondition {
	return BoundaryCondition{Node: node, Value: v}
}

// InjectCurrent drives i amperes of charge current into node.
func InjectCurrent(node int, i float64) BoundaryCondition {
	return BoundaryCondition{Node: node, Kind: Current, Value: i}
}

// ReservoirContacts pins the spin accumulation of the given nodes to zero.
// Contacts are treated as ideal reservoirs that absorb any spin current.
func ReservoirContacts(nodes ...int) []BoundaryCondition {
	bcs := make([]BoundaryCondition, 0, 3*len(nodes))
	for _, n := range nodes {
		for c := 1; c < Comps; c++ {
			bcs = append(bcs, BoundaryCondition{Node: n, Comp: c})
		}
	}
	return bcs
}

// Solution holds one solved operating point. It keeps no reference to
// mutable solver state, so solutions can outlive rebuilds of the system.
type Solution struct {
	bcs     []BoundaryCondition
	nodes   int
	v       []float64
	i       []float64
	layerQ  []float64
	layerS  []spin.Vec3
	magnets []int
	torques []spin.Vec3
	cond    float64
}

// Solve computes the network's operating point under the given boundary
// conditions. Voltage constraints partition the unknowns; the reduced system
// K_ff x_f = I_f - K_fc v_c is LU-factorized, refused above the condition
// limit, and the result is accepted only if every free node satisfies
// Kirchhoff's law within tolerance.
func (s *System) Solve(bcs []BoundaryCondition) (*Solution, error) {
	dim := s.Dim()
	voltage := make(map[int]float64)
	injected := make(map[int]bool)
	inject := make([]float64, dim)

	for _, bc := range bcs {
		if bc.Node < 0 || bc.Node >= s.nodes {
			return nil, spin.Invalid("boundary.node", "node %d out of range [0,%d)", bc.Node, s.nodes)
		}
		if bc.Comp < 0 || bc.Comp >= Comps {
			return nil, spin.Invalid("boundary.comp", "component %d out of range [0,%d)", bc.Comp, Comps)
		}
		i := idx(bc.Node, bc.Comp)
		switch bc.Kind {
		case Voltage:
			if _, dup := voltage[i]; dup {
				return nil, spin.Invalid("boundary", "duplicate voltage constraint at node %d comp %d", bc.Node, bc.Comp)
			}
			voltage[i] = bc.Value
		case Current:
			if injected[i] {
				return nil, spin.Invalid("boundary", "duplicate current injection at node %d comp %d", bc.Node, bc.Comp)
			}
			injected[i] = true
			inject[i] = bc.Value
		default:
			return nil, spin.Invalid("boundary.kind", "unknown kind %v", bc.Kind)
		}
	}
	for i := range voltage {
		if injected[i] {
			return nil, spin.Invalid("boundary", "node %d comp %d has both voltage and current constraints", i/Comps, i%Comps)
		}
	}
	if len(voltage) == 0 {
		return nil, spin.Invalid("boundary", "need at least one voltage constraint to fix the potential gauge")
	}

	// Fixed partition order keeps solves reproducible bit for bit.
	free := make([]int, 0, dim-len(voltage))
	cons := make([]int, 0, len(voltage))
	for i := 0; i < dim; i++ {
		if _, ok := voltage[i]; ok {
			cons = append(cons, i)
		} else {
			free = append(free, i)
		}
	}

	v := make([]float64, dim)
	for _, i := range cons {
		v[i] = voltage[i]
	}
	cond := 1.0
	if nf := len(free); nf > 0 {
		kff := mat.NewDense(nf, nf, nil)
		rhs := mat.NewVecDense(nf, nil)
		for a, i := range free {
			r := inject[i]
			for b, j := range free {
				kff.Set(a, b, s.k.At(i, j))
			}
			for _, j := range cons {
				r -= s.k.At(i, j) * voltage[j]
			}
			rhs.SetVec(a, r)
		}

		var lu mat.LU
		lu.Factorize(kff)
		cond = lu.Cond()
		if math.IsNaN(cond) || cond > s.opt.CondLimit {
			return nil, &spin.SolveError{Node: -1, Cond: cond, Err: spin.ErrSingularSystem}
		}
		xf := mat.NewVecDense(nf, nil)
		if err := lu.SolveVecTo(xf, false, rhs); err != nil {
			return nil, &spin.SolveError{Node: -1, Cond: cond, Err: spin.ErrSingularSystem}
		}
		for a, i := range free {
			v[i] = xf.AtVec(a)
		}
	}

	iv := mat.NewVecDense(dim, nil)
	iv.MulVec(s.k, mat.NewVecDense(dim, v))
	cur := make([]float64, dim)
	scale := 0.0
	for i := range cur {
		cur[i] = iv.AtVec(i)
		if a := math.Abs(cur[i]); a > scale {
			scale = a
		}
	}
	tol := s.opt.KirchhoffTol * scale
	for _, i := range free {
		if r := math.Abs(cur[i] - inject[i]); r > tol {
			return nil, &spin.SolveError{Node: i / Comps, Cond: cond, Residual: r, Err: spin.ErrNumericalInstability}
		}
	}

	sol := &Solution{
		bcs:     append([]BoundaryCondition(nil), bcs...),
		nodes:   s.nodes,
		v:       v,
		i:       cur,
		layerQ:  make([]float64, len(s.st.Layers)),
		layerS:  make([]spin.Vec3, len(s.st.Layers)),
		magnets: s.MagneticLayers(),
		torques: make([]spin.Vec3, len(s.mixing)),
		cond:    cond,
	}
	for l := range s.st.Layers {
		blk := s.series[l]
		var dv, out [Comps]float64
		for c := 0; c < Comps; c++ {
			dv[c] = v[idx(l, c)] - v[idx(l+1, c)]
		}
		for r := 0; r < Comps; r++ {
			for c := 0; c < Comps; c++ {
				out[r] += blk[r][c] * dv[c]
			}
		}
		sol.layerQ[l] = out[0]
		sol.layerS[l] = spin.Vec3{X: out[1], Y: out[2], Z: out[3]}
	}
	for k, mx := range s.mixing {
		var tq spin.Vec3
		for _, n := range mx.nodes {
			mu := spin.Vec3{X: v[idx(n, 1)], Y: v[idx(n, 2)], Z: v[idx(n, 3)]}
			tq = tq.Add(mu.Perp(mx.m).Scale(mx.g))
		}
		sol.torques[k] = tq
	}
	return sol, nil
}

// ChargePotential returns the charge potential at node in volts.
func (s *Solution) ChargePotential(node int) float64 { return s.v[idx(node, 0)] }

// SpinAccumulation returns the spin accumulation vector at node in volts.
func (s *Solution) SpinAccumulation(node int) spin.Vec3 {
	return spin.Vec3{X: s.v[idx(node, 1)], Y: s.v[idx(node, 2)], Z: s.v[idx(node, 3)]}
}

// NodeCurrent returns the external charge current entering node in amperes.
// It is nonzero only at constrained or driven nodes.
func (s *Solution) NodeCurrent(node int) float64 { return s.i[idx(node, 0)] }

// LayerChargeCurrent returns the charge current through layer's series
// branch, positive from the lower to the higher node index.
func (s *Solution) LayerChargeCurrent(layer int) float64 { return s.layerQ[layer] }

// LayerSpinCurrent returns the spin current vector through layer's series
// branch in charge-current units.
func (s *Solution) LayerSpinCurrent(layer int) spin.Vec3 { return s.layerS[layer] }

// Torques returns the absorbed transverse spin current per magnetic layer,
// in stack order of the magnets. Each vector is perpendicular to its layer's
// magnetization and is the spin-transfer torque source for dynamics.
func (s *Solution) Torques() []spin.Vec3 {
	out := make([]spin.Vec3, len(s.torques))
	copy(out, s.torques)
	return out
}

// TorqueOnLayer returns the torque current for the given stack layer index.
func (s *Solution) TorqueOnLayer(layer int) (spin.Vec3, bool) {
	for k, l := range s.magnets {
		if l == layer {
			return s.torques[k], true
		}
	}
	return spin.Vec3{}, false
}

// Nodes returns the number of network nodes the solution spans.
func (s *Solution) Nodes() int { return s.nodes }

// Cond returns the condition number estimate of the reduced system.
func (s *Solution) Cond() float64 { return s.cond }

// TotalResistance derives the two-terminal resistance from the applied
// charge bias and the terminal current. It requires exactly two charge
// voltage constraints at distinct potentials.
func (s *Solution) TotalResistance() (float64, error) {
	type term struct {
		node int
		val  float64
	}
	var terms []term
	for _, bc := range s.bcs {
		if bc.Kind == Voltage && bc.Comp == 0 {
			terms = append(terms, term{bc.Node, bc.Value})
		}
	}
	if len(terms) != 2 {
		return 0, spin.Invalid("boundary", "total resistance needs exactly two charge terminals, got %d", len(terms))
	}
	hi, lo := terms[0], terms[1]
	if hi.val < lo.val {
		hi, lo = lo, hi
	}
	dv := hi.val - lo.val
	if dv == 0 {
		return 0, spin.Invalid("boundary", "total resistance needs a nonzero bias")
	}
	it := s.i[idx(hi.node, 0)]
	if it == 0 {
		return 0, fmt.Errorf("transport: zero terminal current at node %d: %w", hi.node, spin.ErrNumericalInstability)
	}
	return dv / it, nil
}
