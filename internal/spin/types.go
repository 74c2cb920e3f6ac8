package spin

import "math"

// State is a flattened dynamical state: three consecutive entries per
// magnetic layer holding that layer's magnetization direction.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Vec returns the i-th embedded 3-vector.
func (s State) Vec(i int) Vec3 {
	return Vec3{s[3*i], s[3*i+1], s[3*i+2]}
}

// SetVec stores v as the i-th embedded 3-vector.
func (s State) SetVec(i int, v Vec3) {
	s[3*i], s[3*i+1], s[3*i+2] = v.X, v.Y, v.Z
}

// Pack flattens per-layer vectors into a State.
func Pack(vecs []Vec3) State {
	s := make(State, 3*len(vecs))
	for i, v := range vecs {
		s.SetVec(i, v)
	}
	return s
}

// Unpack expands a State into per-layer vectors.
func Unpack(s State) []Vec3 {
	vecs := make([]Vec3, len(s)/3)
	for i := range vecs {
		vecs[i] = s.Vec(i)
	}
	return vecs
}

// System is a first-order ODE system dx/dt = f(t, x).
type System interface {
	Derive(x State, t float64) State
	Dim() int
}

// Hamiltonian is implemented by systems that can report a scalar energy.
// Integration drivers use it for conservation diagnostics.
type Hamiltonian interface {
	Energy(x State, t float64) float64
}

// Integrator advances a system state by one step of size dt.
type Integrator interface {
	Step(sys System, x State, t, dt float64) State
}

// AdaptiveIntegrator additionally estimates local error. StepAdaptive
// returns the candidate state, the suggested next step size, and the ratio
// of estimated local error to tol; the caller accepts the step iff the
// ratio is at most 1.
type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(sys System, x State, t, dt, tol float64) (State, float64, float64)
}

// Metric observes accepted states during a run and reduces them to one value.
type Metric interface {
	Name() string
	Observe(x State, t float64)
	Value() float64
	Reset()
}
