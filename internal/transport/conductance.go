// Package transport assembles and solves the four-component conductance
// network of a multilayer. Every circuit node carries one charge potential
// and a three-component spin accumulation, so a stack with L layers becomes
// a dense 4(L+1) x 4(L+1) nodal system. Layers enter as discrete
// drift-diffusion pi-networks: a series branch between the layer's end nodes
// and relaxation shunts to ground at each end.
package transport

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/alaweimm90/SpinCirc/internal/spin"
	"github.com/alaweimm90/SpinCirc/internal/stack"
)

// Comps is the number of unknowns per node: charge plus three spin
// components, ordered c, x, y, z.
const Comps = 4

// Options tunes the builder's and solver's numerical guards. Zero values
// fall back to the defaults below.
type Options struct {
	// RowSumTol bounds the assembly self-check: charge rows must sum to
	// zero and spin rows to their recorded relaxation sinks, both relative
	// to the largest matrix entry.
	RowSumTol float64
	// KirchhoffTol bounds the post-solve nodal current residual relative
	// to the largest nodal current.
	KirchhoffTol float64
	// CondLimit is the condition number above which a solve is refused.
	CondLimit float64
}

// Default numerical guards.
const (
	DefaultRowSumTol    = 1e-9
	DefaultKirchhoffTol = 1e-9
	DefaultCondLimit    = 1e12
)

func (o Options) withDefaults() Options {
	if o.RowSumTol <= 0 {
		o.RowSumTol = DefaultRowSumTol
	}
	if o.KirchhoffTol <= 0 {
		o.KirchhoffTol = DefaultKirchhoffTol
	}
	if o.CondLimit <= 0 {
		o.CondLimit = DefaultCondLimit
	}
	return o
}

// block is a 4x4 nodal conductance block in component order c, x, y, z.
type block [Comps][Comps]float64

func diagBlock(c, x, y, z float64) block {
	var b block
	b[0][0], b[1][1], b[2][2], b[3][3] = c, x, y, z
	return b
}

// rotate conjugates a local-frame block by U = blockdiag(1, R): the charge
// entry is untouched, charge-spin rows and columns rotate as vectors, and
// the spin sub-block transforms as R D R^T.
func rotate(b block, r spin.Mat3) block {
	var out block
	out[0][0] = b[0][0]

	row := r.MulVec(spin.Vec3{X: b[0][1], Y: b[0][2], Z: b[0][3]})
	out[0][1], out[0][2], out[0][3] = row.X, row.Y, row.Z

	col := r.MulVec(spin.Vec3{X: b[1][0], Y: b[2][0], Z: b[3][0]})
	out[1][0], out[2][0], out[3][0] = col.X, col.Y, col.Z

	var d spin.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d[i][j] = b[i+1][j+1]
		}
	}
	rd := r.Mul(d).Mul(r.Transpose())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i+1][j+1] = rd[i][j]
		}
	}
	return out
}

// mixShunt records one magnetic layer's transverse spin-mixing sink. The
// absorbed transverse spin current at its end nodes is the spin-transfer
// torque delivered to that layer.
type mixShunt struct {
	layer int
	nodes [2]int
	g     float64 // 2 Re(g↑↓) A, siemens
	m     spin.Vec3
}

// System is an assembled conductance network. It is immutable after Build;
// magnetization changes require a rebuild because the frame rotation is the
// only place the moment direction enters.
type System struct {
	k       *mat.Dense
	nodes   int
	st      *stack.Stack
	ms      []spin.Vec3
	magnets []int
	series  []block
	mixing  []mixShunt
	sinks   []float64
	scale   float64
	opt     Options
}

func idx(node, comp int) int { return Comps*node + comp }

// Build assembles the lab-frame conductance matrix for st with the given
// magnetizations, one per magnetic layer in stack order. A nil ms uses the
// stack's initial magnetizations. The result is a pure function of the
// inputs: assembly order is fixed, so identical inputs reproduce the matrix
// bit for bit.
func Build(st *stack.Stack, ms []spin.Vec3, opt Options) (*System, error) {
	opt = opt.withDefaults()
	magnets := st.MagneticLayers()
	if ms == nil {
		ms = st.Magnetizations()
	}
	if len(ms) != len(magnets) {
		return nil, spin.Invalid("magnetizations", "got %d vectors for %d magnetic layers", len(ms), len(magnets))
	}
	unit := make([]spin.Vec3, len(ms))
	for i, m := range ms {
		if !m.IsFinite() || m.Norm() == 0 {
			return nil, spin.Invalid("magnetizations", "layer %d: need a finite nonzero direction", magnets[i])
		}
		unit[i] = m.Normalized()
	}

	dim := Comps * st.NodeCount()
	sys := &System{
		k:       mat.NewDense(dim, dim, nil),
		nodes:   st.NodeCount(),
		st:      st,
		ms:      unit,
		magnets: magnets,
		series:  make([]block, len(st.Layers)),
		sinks:   make([]float64, dim),
		opt:     opt,
	}

	mi := 0
	for i, l := range st.Layers {
		if err := l.Geometry.Validate(); err != nil {
			return nil, err
		}
		if l.Material.SpinDiffusion < 0 {
			return nil, spin.Invalid("material.spinDiffusion", "layer %d (%s): negative", i, l.Name)
		}
		if l.Magnetic() {
			sys.stampFerro(i, l, unit[mi])
			mi++
		} else {
			sys.stampNormal(i, l)
		}
	}

	if err := sys.selfCheck(); err != nil {
		return nil, err
	}
	return sys, nil
}

// stampNormal adds a normal-metal pi-network between nodes i and i+1.
// Charge conducts with g = A/(rho l); spin conducts through
// gs = glam/sinh(l/lam) and relaxes through end shunts glam tanh(l/(2 lam)).
// A zero diffusion length is an ideal spin sink: no spin series path and a
// charge-scale shunt.
func (s *System) stampNormal(i int, l stack.Layer) {
	g, gs, gt := seriesConductances(l)
	series := diagBlock(g, gs, gs, gs)
	shunt := diagBlock(0, gt, gt, gt)

	s.series[i] = series
	s.stampPair(i, i+1, series)
	s.stampShunt(i, shunt)
	s.stampShunt(i+1, shunt)
}

// stampFerro adds a ferromagnet pi-network. In the local frame (moment along
// z) only charge and longitudinal spin propagate, coupled by the bulk
// polarization; transverse spin is absorbed at the end nodes by the mixing
// shunt 2 Re(g↑↓) A, which doubles as the torque extraction operator.
func (s *System) stampFerro(i int, l stack.Layer, m spin.Vec3) {
	g, gs, gt := seriesConductances(l)
	beta := l.Material.Polarization

	var series block
	series[0][0] = g
	series[0][3] = beta * g
	series[3][0] = beta * g
	series[3][3] = beta*beta*g + (1-beta*beta)*gs

	long := diagBlock(0, 0, 0, (1-beta*beta)*gt)
	gm := 2 * l.Material.SpinMixing * l.Geometry.Area()
	mix := diagBlock(0, gm, gm, 0)

	r := spin.RotationFromZ(m)
	series = rotate(series, r)
	shunt := rotate(long, r)
	mixLab := rotate(mix, r)

	s.series[i] = series
	s.stampPair(i, i+1, series)
	s.stampShunt(i, shunt)
	s.stampShunt(i+1, shunt)
	s.stampShunt(i, mixLab)
	s.stampShunt(i+1, mixLab)

	s.mixing = append(s.mixing, mixShunt{layer: i, nodes: [2]int{i, i + 1}, g: gm, m: m})
}

// seriesConductances returns the charge conductance, spin series conductance
// and spin shunt conductance of one layer.
func seriesConductances(l stack.Layer) (g, gs, gt float64) {
	a := l.Geometry.Area()
	g = a / (l.Material.Resistivity * l.Geometry.Length)
	lam := l.Material.SpinDiffusion
	if lam == 0 {
		return g, 0, g
	}
	glam := a / (l.Material.Resistivity * lam)
	x := l.Geometry.Length / lam
	gs = glam / math.Sinh(x)
	gt = glam * math.Tanh(x/2)
	return g, gs, gt
}

// stampPair adds a series block between nodes a and b.
func (s *System) stampPair(a, b int, blk block) {
	for r := 0; r < Comps; r++ {
		for c := 0; c < Comps; c++ {
			if blk[r][c] == 0 {
				continue
			}
			ia, ib := idx(a, r), idx(b, r)
			ja, jb := idx(a, c), idx(b, c)
			s.k.Set(ia, ja, s.k.At(ia, ja)+blk[r][c])
			s.k.Set(ib, jb, s.k.At(ib, jb)+blk[r][c])
			s.k.Set(ia, jb, s.k.At(ia, jb)-blk[r][c])
			s.k.Set(ib, ja, s.k.At(ib, ja)-blk[r][c])
		}
	}
}

// stampShunt adds a node-to-ground block and records its row sums as
// relaxation sinks for the assembly self-check.
func (s *System) stampShunt(n int, blk block) {
	for r := 0; r < Comps; r++ {
		rowSum := 0.0
		for c := 0; c < Comps; c++ {
			if blk[r][c] == 0 {
				continue
			}
			i, j := idx(n, r), idx(n, c)
			s.k.Set(i, j, s.k.At(i, j)+blk[r][c])
			rowSum += blk[r][c]
		}
		s.sinks[idx(n, r)] += rowSum
	}
}

// selfCheck verifies the assembled matrix: every row sums to its recorded
// sink (zero for charge rows, so charge is conserved and no spin source is
// hidden in rounding), and the matrix is symmetric.
func (s *System) selfCheck() error {
	dim := Comps * s.nodes
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			if a := math.Abs(s.k.At(i, j)); a > s.scale {
				s.scale = a
			}
		}
	}
	tol := s.opt.RowSumTol * s.scale
	for i := 0; i < dim; i++ {
		sum := 0.0
		for j := 0; j < dim; j++ {
			sum += s.k.At(i, j)
		}
		if math.Abs(sum-s.sinks[i]) > tol {
			return &spin.SolveError{
				Node:     i / Comps,
				Residual: math.Abs(sum - s.sinks[i]),
				Err:      spin.ErrNumericalInstability,
			}
		}
	}
	for i := 0; i < dim; i++ {
		for j := i + 1; j < dim; j++ {
			if math.Abs(s.k.At(i, j)-s.k.At(j, i)) > tol {
				return &spin.SolveError{
					Node:     i / Comps,
					Residual: math.Abs(s.k.At(i, j) - s.k.At(j, i)),
					Err:      spin.ErrNumericalInstability,
				}
			}
		}
	}
	return nil
}

// NumNodes returns the node count of the assembled network.
func (s *System) NumNodes() int { return s.nodes }

// Dim returns the total number of unknowns.
func (s *System) Dim() int { return Comps * s.nodes }

// MagneticLayers returns the stack indices of the magnetic layers, aligned
// with the magnetization and torque slices.
func (s *System) MagneticLayers() []int {
	out := make([]int, len(s.magnets))
	copy(out, s.magnets)
	return out
}

// Magnetizations returns the unit magnetizations the system was built with.
func (s *System) Magnetizations() []spin.Vec3 {
	out := make([]spin.Vec3, len(s.ms))
	copy(out, s.ms)
	return out
}

// Conductance returns one matrix entry in siemens, indexed by node and
// component.
func (s *System) Conductance(node, comp, node2, comp2 int) float64 {
	return s.k.At(idx(node, comp), idx(node2, comp2))
}
