// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package covar

import "math"

// eigenFloor is the minimum eigenvalue reported for a symmetric
// covariance. Flooring keeps downstream extent and radius math away
// from zero-width splats.
const eigenFloor = 1e-3

// Eigenvalues3x3 returns the eigenvalues of a symmetric matrix using
// the trigonometric solution of the characteristic polynomial.
// The result order is unspecified; see SortDesc. Each eigenvalue is
// floored at a small positive epsilon.
func Eigenvalues3x3(m Mat3) [3]float64 {
	offDiag := m[1]*m[1] + m[2]*m[2] + m[5]*m[5]
	if offDiag == 0 {
		// Already diagonal.
		return [3]float64{
			math.Max(m[0], eigenFloor),
			math.Max(m[4], eigenFloor),
			math.Max(m[8], eigenFloor),
		}
	}

	q := (m[0] + m[4] + m[8]) / 3
	p2 := (m[0]-q)*(m[0]-q) + (m[4]-q)*(m[4]-q) + (m[8]-q)*(m[8]-q) + 2*offDiag
	p := math.Sqrt(p2 / 6)

	// B = (A - qI) / p; r = det(B) / 2, clamped into acos domain
	// against rounding drift.
	b := m
	b[0] -= q
	b[4] -= q
	b[8] -= q
	for i := range b {
		b[i] /= p
	}
	r := det3(b) / 2
	if r < -1 {
		r = -1
	} else if r > 1 {
		r = 1
	}

	phi := math.Acos(r) / 3
	e0 := q + 2*p*math.Cos(phi)
	e2 := q + 2*p*math.Cos(phi+2*math.Pi/3)
	e1 := 3*q - e0 - e2

	return [3]float64{
		math.Max(e0, eigenFloor),
		math.Max(e1, eigenFloor),
		math.Max(e2, eigenFloor),
	}
}

// SortDesc orders three eigenvalues largest first, in place.
func SortDesc(v *[3]float64) {
	for i := 1; i < 3; i++ {
		x := v[i]
		j := i
		for j > 0 && v[j-1] < x {
			v[j] = v[j-1]
			j--
		}
		v[j] = x
	}
}

// MajorEigenvector approximates the eigenvector of the dominant
// eigenvalue lambda with ten iterations of a shifted power method from
// a fixed seed. The fixed iteration count makes the cost flat and the
// result deterministic; accuracy is adequate for level-of-detail
// ordering but not for rendering terms.
func MajorEigenvector(m Mat3, lambda float64) [3]float64 {
	// Shifting by the dominant eigenvalue estimate widens the gap to
	// the remaining spectrum, speeding convergence toward its vector.
	shift := lambda * 1e-3
	b := m
	b[0] += shift
	b[4] += shift
	b[8] += shift

	v := [3]float64{1.0, 0.5, 0.3}
	for i := 0; i < 10; i++ {
		w := [3]float64{
			b[0]*v[0] + b[1]*v[1] + b[2]*v[2],
			b[3]*v[0] + b[4]*v[1] + b[5]*v[2],
			b[6]*v[0] + b[7]*v[1] + b[8]*v[2],
		}
		n := math.Sqrt(w[0]*w[0] + w[1]*w[1] + w[2]*w[2])
		if n < 1e-12 {
			// Matrix annihilated the iterate; report the seed direction.
			return normalize3([3]float64{1.0, 0.5, 0.3})
		}
		v[0], v[1], v[2] = w[0]/n, w[1]/n, w[2]/n
	}
	return v
}

func normalize3(v [3]float64) [3]float64 {
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if n == 0 {
		return [3]float64{1, 0, 0}
	}
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}
}

func det3(m Mat3) float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}
