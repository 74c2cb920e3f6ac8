package spin

import "math"

// Vec3 is a 3-component real vector. Magnetization directions, spin
// currents and effective fields are all Vec3 values.
type Vec3 struct {
	X, Y, Z float64
}

func V(x, y, z float64) Vec3 { return Vec3{x, y, z} }

func (v Vec3) Add(w Vec3) Vec3 { return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z} }
func (v Vec3) Sub(w Vec3) Vec3 { return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{s * v.X, s * v.Y, s * v.Z} }

func (v Vec3) Dot(w Vec3) float64 { return v.X*w.X + v.Y*w.Y + v.Z*w.Z }

func (v Vec3) Cross(w Vec3) Vec3 {
	return Vec3{
		v.Y*w.Z - v.Z*w.Y,
		v.Z*w.X - v.X*w.Z,
		v.X*w.Y - v.Y*w.X,
	}
}

func (v Vec3) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// Normalized returns v scaled to unit length. The zero vector is returned
// unchanged; callers that care must check Norm first.
func (v Vec3) Normalized() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

// IsUnit reports whether ‖v‖ is within tol of 1.
func (v Vec3) IsUnit(tol float64) bool {
	return math.Abs(v.Norm()-1) <= tol
}

func (v Vec3) IsFinite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Perp returns the component of v perpendicular to the unit vector m.
func (v Vec3) Perp(m Vec3) Vec3 {
	return v.Sub(m.Scale(v.Dot(m)))
}

// Mat3 is a dense 3×3 matrix in row-major order.
type Mat3 [3][3]float64

func Identity3() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

func (a Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		a[0][0]*v.X + a[0][1]*v.Y + a[0][2]*v.Z,
		a[1][0]*v.X + a[1][1]*v.Y + a[1][2]*v.Z,
		a[2][0]*v.X + a[2][1]*v.Y + a[2][2]*v.Z,
	}
}

func (a Mat3) Mul(b Mat3) Mat3 {
	var c Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s := 0.0
			for k := 0; k < 3; k++ {
				s += a[i][k] * b[k][j]
			}
			c[i][j] = s
		}
	}
	return c
}

func (a Mat3) Transpose() Mat3 {
	var t Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t[i][j] = a[j][i]
		}
	}
	return t
}

// RotationFromZ builds the rotation matrix that maps ẑ onto the unit vector
// m, via Rodrigues' formula about the axis ẑ×m. The antiparallel case m = −ẑ
// degenerates to a π rotation about x̂.
func RotationFromZ(m Vec3) Mat3 {
	const eps = 1e-12
	c := m.Z                              // cos θ
	vx, vy := -m.Y, m.X                   // ẑ×m
	s2 := vx*vx + vy*vy                   // sin²θ
	if s2 < eps {
		if c > 0 {
			return Identity3()
		}
		return Mat3{{1, 0, 0}, {0, -1, 0}, {0, 0, -1}}
	}
	k := (1 - c) / s2
	return Mat3{
		{1 + k*(-vy*vy), k * vx * vy, vy},
		{k * vx * vy, 1 + k*(-vx*vx), -vx},
		{-vy, vx, 1 + k*(-vx*vx-vy*vy)},
	}
}
