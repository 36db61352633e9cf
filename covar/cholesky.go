// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package covar

import "math"

// Cholesky3x3 factors a symmetric positive-definite matrix as L*L^T
// with L lower-triangular. Only the lower triangle of m is read.
//
// If any pivot is non-positive the matrix is not positive definite:
// ok is false, the returned L is zero and must not be used, and the
// package rejection counter is incremented. Callers substitute
// IsotropicDefault rather than propagating a broken factor.
func Cholesky3x3(m Mat3) (l Mat3, ok bool) {
	// Column 0.
	if m[0] <= 0 {
		choleskyFails.Add(1)
		return Mat3{}, false
	}
	l00 := math.Sqrt(m[0])
	l10 := m[3] / l00
	l20 := m[6] / l00

	// Column 1.
	d1 := m[4] - l10*l10
	if d1 <= 0 {
		choleskyFails.Add(1)
		return Mat3{}, false
	}
	l11 := math.Sqrt(d1)
	l21 := (m[7] - l20*l10) / l11

	// Column 2.
	d2 := m[8] - l20*l20 - l21*l21
	if d2 <= 0 {
		choleskyFails.Add(1)
		return Mat3{}, false
	}
	l22 := math.Sqrt(d2)

	l[0] = l00
	l[3], l[4] = l10, l11
	l[6], l[7], l[8] = l20, l21, l22
	return l, true
}

// MulTranspose returns a * a^T. Used by tests and by ingest to rebuild
// a covariance from its Cholesky factor.
func MulTranspose(a Mat3) Mat3 {
	var out Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += a[r*3+k] * a[c*3+k]
			}
			out[r*3+c] = sum
		}
	}
	return out
}
