// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package covar encodes and analyzes 3x3 splat covariance matrices.
//
// The wire encoding is nine signed Q8.8-style mantissa bytes plus one
// shared 4-bit exponent: entry = mant/256 * 2^(exp-7). A single shared
// exponent keeps every splat record at a fixed size while covering
// anisotropic splats whose extents span several orders of magnitude.
//
// Analysis (Cholesky factorization, eigenvalues, importance scoring)
// runs at ingest time in float64; render-time math never calls into
// this package.
package covar

import "sync/atomic"

// Mat3 is a 3x3 matrix in row-major order: element (r, c) is at r*3 + c.
// Covariance matrices are symmetric, but the full nine entries are kept
// so the encoding round-trips whatever it is given.
type Mat3 = [9]float64

// Exponent range of the shared-exponent encoding.
const (
	// ExpBias is subtracted from the stored exponent: with bias 7 the
	// neutral exponent encodes entries in roughly [-0.5, 0.5).
	ExpBias = 7

	// ExpMax is the largest storable exponent (4 bits).
	ExpMax = 15

	// mantScale is the fixed denominator of the mantissa quantization.
	mantScale = 256.0
)

// Package counters. Compression never fails; these surface how often it
// had to degrade instead.
var (
	clampCount    atomic.Uint64
	choleskyFails atomic.Uint64
)

// Stats is a snapshot of the codec degradation counters.
type Stats struct {
	// MantissaClamps counts Compress calls that clamped at least one
	// mantissa to the int8 range.
	MantissaClamps uint64

	// CholeskyRejections counts Cholesky3x3 calls that found a
	// non-positive pivot.
	CholeskyRejections uint64
}

// ReadStats returns the current codec counters.
func ReadStats() Stats {
	return Stats{
		MantissaClamps:     clampCount.Load(),
		CholeskyRejections: choleskyFails.Load(),
	}
}

// Compress encodes m as nine mantissa bytes and a shared exponent.
//
// The exponent is the smallest value in [0, ExpMax] that brings every
// entry into mantissa range; an all-zero matrix encodes with the
// neutral exponent ExpBias. Entries that still do not fit at ExpMax are
// clamped, never rejected: a degraded covariance renders as a slightly
// wrong footprint, while a hard failure would drop the splat entirely.
func Compress(m Mat3) (mant [9]int8, exp uint8) {
	maxAbs := 0.0
	for _, v := range m {
		a := v
		if a < 0 {
			a = -a
		}
		if a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		return mant, ExpBias
	}

	e := 0
	for e < ExpMax && maxAbs*mantScale*scalePow2(ExpBias-e) > 127 {
		e++
	}

	scale := mantScale * scalePow2(ExpBias-e)
	clamped := false
	for i, v := range m {
		q := v * scale
		switch {
		case q > 127:
			mant[i] = 127
			clamped = true
		case q < -128:
			mant[i] = -128
			clamped = true
		default:
			mant[i] = int8(roundHalfAway(q))
		}
	}
	if clamped {
		clampCount.Add(1)
	}
	return mant, uint8(e)
}

// Decompress reconstructs the matrix encoded by Compress.
// Exponents above ExpMax are treated as ExpMax.
func Decompress(mant [9]int8, exp uint8) Mat3 {
	if exp > ExpMax {
		exp = ExpMax
	}
	scale := scalePow2(int(exp)-ExpBias) / mantScale
	var m Mat3
	for i, q := range mant {
		m[i] = float64(q) * scale
	}
	return m
}

// QuantStep returns the reconstruction granularity at a given exponent:
// the worst-case round-trip error per entry is half of this step.
func QuantStep(exp uint8) float64 {
	if exp > ExpMax {
		exp = ExpMax
	}
	return scalePow2(int(exp)-ExpBias) / mantScale
}

// IsotropicDefault returns a spherical covariance with the given
// variance on the diagonal. Ingest substitutes it when a source matrix
// fails positive-definiteness checks.
func IsotropicDefault(variance float64) Mat3 {
	if variance <= 0 {
		variance = 1.0
	}
	var m Mat3
	m[0], m[4], m[8] = variance, variance, variance
	return m
}

// scalePow2 returns 2^e for small integer e without calling math.Pow.
func scalePow2(e int) float64 {
	s := 1.0
	for ; e > 0; e-- {
		s *= 2
	}
	for ; e < 0; e++ {
		s /= 2
	}
	return s
}

// roundHalfAway rounds to the nearest integer, halves away from zero.
func roundHalfAway(v float64) int {
	if v >= 0 {
		return int(v + 0.5)
	}
	return int(v - 0.5)
}
