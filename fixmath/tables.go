// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fixmath

import (
	"math"
	"math/bits"
)

// Table sizes. Both tables are filled once at init; there is no lazy
// initialization, so concurrent readers never observe a partial table.
const (
	sinTableSize  = 1024
	sqrtTableSize = 256

	// sqrtTableLimit is the exclusive upper bound of the sqrt table
	// domain: values below 16.0 are served from the table, values at or
	// above it fall through to Newton-Raphson iteration.
	sqrtTableLimit Fix16 = 16 << Shift
)

var (
	sinTable  [sinTableSize]Fix16
	sqrtTable [sqrtTableSize]Fix16
)

func init() {
	for i := range sinTable {
		sinTable[i] = FromFloat(math.Sin(2 * math.Pi * float64(i) / sinTableSize))
	}
	for i := range sqrtTable {
		sqrtTable[i] = FromFloat(math.Sqrt(float64(i) * 16.0 / sqrtTableSize))
	}
}

// Sin returns the sine of an angle expressed in turns: One is a full
// revolution. The angle wraps naturally, so accumulating rotation
// counters never need an explicit modulo.
//
// The result comes from a 1024-entry table indexed by the top ten
// fractional bits of the angle; worst-case error is about 0.006.
func Sin(angle Fix16) Fix16 {
	return sinTable[(angle>>6)&(sinTableSize-1)]
}

// Cos returns the cosine of an angle expressed in turns.
// Implemented as Sin shifted by a quarter revolution through the same
// table, so Sin and Cos of the same angle are phase-exact.
func Cos(angle Fix16) Fix16 {
	return sinTable[((angle>>6)+sinTableSize/4)&(sinTableSize-1)]
}

// Sqrt returns the square root of a Fix16 value.
//
// Inputs below 16.0 are served from a 256-entry table with linear
// interpolation between entries. Larger inputs use eight Newton-Raphson
// iterations seeded from the input, which converges well inside the
// Fix16 range. Non-positive inputs return zero.
func Sqrt(x Fix16) Fix16 {
	if x <= 0 {
		return 0
	}
	if x < sqrtTableLimit {
		// Table step is 16/256 = 1/16, so the index is the value with
		// twelve fractional bits dropped and frac is what remains.
		idx := x >> 12
		frac := x & 0xFFF
		lo := int64(sqrtTable[idx])
		var hi int64
		if int(idx) < sqrtTableSize-1 {
			hi = int64(sqrtTable[idx+1])
		} else {
			hi = int64(sqrtTableLimit >> 2) // sqrt(16) = 4
		}
		return saturateInt32(lo + ((hi-lo)*int64(frac))>>12)
	}

	// Newton-Raphson on N = x << 16, whose integer square root is the
	// Fix16 result. A power-of-two seed near the true root converges to
	// full precision well inside eight iterations for any Fix16 input.
	xi := int64(x) << Shift
	guess := int64(1) << ((bits.Len64(uint64(xi)) + 1) / 2)
	for i := 0; i < 8; i++ {
		guess = (guess + xi/guess) >> 1
	}
	return saturateInt32(guess)
}
