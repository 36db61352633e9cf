// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fixmath

// Vec3 is a three-component fixed-point vector.
type Vec3 [3]Fix16

// Vec3FromFloats builds a Vec3 from float64 components.
func Vec3FromFloats(x, y, z float64) Vec3 {
	return Vec3{FromFloat(x), FromFloat(y), FromFloat(z)}
}

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{
		saturateInt32(int64(v[0]) + int64(w[0])),
		saturateInt32(int64(v[1]) + int64(w[1])),
		saturateInt32(int64(v[2]) + int64(w[2])),
	}
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{
		saturateInt32(int64(v[0]) - int64(w[0])),
		saturateInt32(int64(v[1]) - int64(w[1])),
		saturateInt32(int64(v[2]) - int64(w[2])),
	}
}

// Scale returns v * s.
func (v Vec3) Scale(s Fix16) Vec3 {
	return Vec3{Mul(v[0], s), Mul(v[1], s), Mul(v[2], s)}
}

// Dot returns the dot product of v and w.
// The three products are summed in 64 bits before a single saturation.
func (v Vec3) Dot(w Vec3) Fix16 {
	sum := (int64(v[0])*int64(w[0]) +
		int64(v[1])*int64(w[1]) +
		int64(v[2])*int64(w[2])) >> Shift
	return saturateInt32(sum)
}

// Cross returns the cross product of v and w.
func (v Vec3) Cross(w Vec3) Vec3 {
	return Vec3{
		saturateInt32((int64(v[1])*int64(w[2]) - int64(v[2])*int64(w[1])) >> Shift),
		saturateInt32((int64(v[2])*int64(w[0]) - int64(v[0])*int64(w[2])) >> Shift),
		saturateInt32((int64(v[0])*int64(w[1]) - int64(v[1])*int64(w[0])) >> Shift),
	}
}

// Length returns the Euclidean length of v.
func (v Vec3) Length() Fix16 {
	return Sqrt(v.Dot(v))
}

// Normalize returns v scaled to unit length.
// A zero-length vector normalizes to the unit X axis rather than
// propagating a division blow-up into downstream transforms.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{One, 0, 0}
	}
	inv := Div(One, l)
	return v.Scale(inv)
}

// Mat4 is a 4x4 fixed-point matrix in row-major order:
// element (r, c) lives at index r*4 + c.
type Mat4 [16]Fix16

// Mat4Identity returns the identity matrix.
func Mat4Identity() Mat4 {
	var m Mat4
	m[0], m[5], m[10], m[15] = One, One, One, One
	return m
}

// Mul returns the matrix product m * n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum int64
			for k := 0; k < 4; k++ {
				sum += int64(m[r*4+k]) * int64(n[k*4+c])
			}
			out[r*4+c] = saturateInt32(sum >> Shift)
		}
	}
	return out
}

// MulVec4 transforms a homogeneous vector (x, y, z, w) by m.
func (m Mat4) MulVec4(x, y, z, w Fix16) (ox, oy, oz, ow Fix16) {
	in := [4]int64{int64(x), int64(y), int64(z), int64(w)}
	var out [4]Fix16
	for r := 0; r < 4; r++ {
		var sum int64
		for k := 0; k < 4; k++ {
			sum += int64(m[r*4+k]) * in[k]
		}
		out[r] = saturateInt32(sum >> Shift)
	}
	return out[0], out[1], out[2], out[3]
}

// Transpose returns the transpose of m.
func (m Mat4) Transpose() Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[c*4+r] = m[r*4+c]
		}
	}
	return out
}

// TransformPoint transforms a point by m, treating it as (x, y, z, 1).
func (m Mat4) TransformPoint(p Vec3) Vec3 {
	x, y, z, _ := m.MulVec4(p[0], p[1], p[2], One)
	return Vec3{x, y, z}
}
