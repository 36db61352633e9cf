// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package fixmath provides 16.16 signed fixed-point arithmetic.
//
// All quantities are Q16.16: 16 integer bits, 16 fractional bits, stored
// in an int32. Arithmetic uses 64-bit intermediates and saturates to the
// representable range instead of wrapping, so a long chain of operations
// degrades gracefully rather than flipping sign.
//
// The transcendental functions (Sqrt, Sin, Cos) are table-driven and
// deterministic: the same inputs produce the same outputs on every
// platform, which keeps batch results reproducible across backends.
package fixmath

import (
	"math"
	"sync/atomic"
)

// Fix16 is a 16.16 fixed-point number (16 fractional bits).
//
// Range: approximately -32768 to +32768 with 1/65536 precision.
type Fix16 = int32

// Fixed-point constants for Fix16.
const (
	// One is 1.0 in Fix16 representation (2^16 = 65536).
	One Fix16 = 1 << 16

	// Half is 0.5 in Fix16 representation (2^15 = 32768).
	Half Fix16 = 1 << 15

	// Shift is the number of fractional bits in Fix16.
	Shift = 16

	// Mask is the mask for the fractional part of Fix16.
	Mask = One - 1

	// Max is the largest representable Fix16 value (about 32767.99998).
	Max Fix16 = 0x7FFFFFFF

	// Min is the smallest representable Fix16 value (about -32768).
	Min Fix16 = -0x80000000

	// Epsilon is the smallest positive Fix16 increment (1/65536).
	Epsilon Fix16 = 1
)

// divZeroCount counts divisions by zero since process start.
var divZeroCount atomic.Uint64

// DivZeroCount returns the number of Div calls that received a zero
// denominator. Callers use it to surface silent numeric degradation.
func DivZeroCount() uint64 {
	return divZeroCount.Load()
}

// FromInt converts an integer to Fix16.
// The integer must fit in 16 bits (-32768 to 32767).
func FromInt(n int32) Fix16 {
	return saturateInt32(int64(n) << Shift)
}

// ToInt returns the integer part (floor) of a Fix16.
func ToInt(v Fix16) int32 {
	return v >> Shift
}

// FromFloat converts a float64 to Fix16, saturating out-of-range values.
// NaN converts to zero.
func FromFloat(f float64) Fix16 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= float64(Max)/float64(One):
		return Max
	case f <= float64(Min)/float64(One):
		return Min
	}
	return Fix16(f * float64(One))
}

// FromFloat32 converts a float32 to Fix16, saturating out-of-range values.
func FromFloat32(f float32) Fix16 {
	return FromFloat(float64(f))
}

// ToFloat converts a Fix16 to float64.
func ToFloat(v Fix16) float64 {
	return float64(v) / float64(One)
}

// ToFloat32 converts a Fix16 to float32.
func ToFloat32(v Fix16) float32 {
	return float32(v) / float32(One)
}

// Round returns the nearest integer to a Fix16.
func Round(v Fix16) int32 {
	return (v + Half) >> Shift
}

// Mul multiplies two Fix16 values.
// Uses a 64-bit intermediate and saturates instead of wrapping.
func Mul(a, b Fix16) Fix16 {
	return saturateInt32((int64(a) * int64(b)) >> Shift)
}

// MulAdd returns a*b + c with a single 64-bit intermediate, saturating
// once at the end. Preferred over Mul followed by addition in inner
// loops because the sum cannot lose the carry to early truncation.
func MulAdd(a, b, c Fix16) Fix16 {
	return saturateInt32(((int64(a)*int64(b))>>Shift) + int64(c))
}

// Div divides two Fix16 values.
// Division by zero returns Max or Min according to the sign of the
// numerator and increments the package division-by-zero counter; it
// never panics.
func Div(numer, denom Fix16) Fix16 {
	if denom == 0 {
		divZeroCount.Add(1)
		if numer >= 0 {
			return Max
		}
		return Min
	}
	return saturateInt32((int64(numer) << Shift) / int64(denom))
}

// Abs returns the absolute value of a Fix16.
// Abs(Min) saturates to Max.
func Abs(v Fix16) Fix16 {
	if v == Min {
		return Max
	}
	if v < 0 {
		return -v
	}
	return v
}

// Neg returns the negation of a Fix16. Neg(Min) saturates to Max.
func Neg(v Fix16) Fix16 {
	if v == Min {
		return Max
	}
	return -v
}

// Min16 returns the smaller of two Fix16 values.
func Min16(a, b Fix16) Fix16 {
	if a < b {
		return a
	}
	return b
}

// Max16 returns the larger of two Fix16 values.
func Max16(a, b Fix16) Fix16 {
	if a > b {
		return a
	}
	return b
}

// Clamp constrains v to the range [lo, hi].
func Clamp(v, lo, hi Fix16) Fix16 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Lerp linearly interpolates between a and b.
// The parameter t is clamped to [0, 1] before use, so callers feeding
// unvalidated animation parameters cannot extrapolate.
func Lerp(a, b, t Fix16) Fix16 {
	t = Clamp(t, 0, One)
	return saturateInt32(int64(a) + ((int64(b)-int64(a))*int64(t))>>Shift)
}

// Smoothstep evaluates the Hermite smoothstep 3t^2 - 2t^3.
// The parameter t is clamped to [0, 1] before use.
func Smoothstep(t Fix16) Fix16 {
	t = Clamp(t, 0, One)
	t2 := Mul(t, t)
	t3 := Mul(t2, t)
	return saturateInt32(3*int64(t2) - 2*int64(t3))
}

// saturateInt32 clamps an int64 to int32 range.
func saturateInt32(v int64) int32 {
	const maxInt32 = 0x7FFFFFFF
	const minInt32 = -0x80000000

	if v > maxInt32 {
		return maxInt32
	}
	if v < minInt32 {
		return minInt32
	}
	return int32(v)
}
