// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package covar

import (
	"math"

	"github.com/gogpu/splat/fixmath"
)

// Importance scoring maps a splat's opacity to an entropy-style weight
// -alpha * ln(alpha): fully transparent and fully saturated splats both
// score low, while mid-opacity splats that carry the most visual
// information score highest. The score feeds level-of-detail ordering.

// lnTable holds ln(1 + i/lnTableSize) for mantissas in [1, 2).
const lnTableSize = 64

var lnTable [lnTableSize + 1]float64

func init() {
	for i := range lnTable {
		lnTable[i] = math.Log(1 + float64(i)/lnTableSize)
	}
}

// ImportanceScore returns -alpha*ln(alpha) as a Fix16 weight.
// Non-positive opacities score zero.
//
// Near alpha = 1 the logarithm comes from a short Taylor expansion,
// which is both cheaper and more accurate than table lookup where
// ln(alpha) crosses zero; elsewhere alpha is split into mantissa and
// exponent and the mantissa logarithm is interpolated from a table.
func ImportanceScore(alpha float64) fixmath.Fix16 {
	if alpha <= 0 {
		return 0
	}

	var ln float64
	if alpha > 0.5 && alpha < 1.5 {
		// ln(1+x) = x - x^2/2 + x^3/3 - x^4/4, |x| < 0.5.
		x := alpha - 1
		x2 := x * x
		ln = x - x2/2 + x2*x/3 - x2*x2/4
	} else {
		frac, exp := math.Frexp(alpha) // frac in [0.5, 1)
		m := frac * 2                  // mantissa in [1, 2)
		exp--
		pos := (m - 1) * lnTableSize
		idx := int(pos)
		if idx >= lnTableSize {
			idx = lnTableSize - 1
		}
		t := pos - float64(idx)
		ln = lnTable[idx] + t*(lnTable[idx+1]-lnTable[idx]) + float64(exp)*math.Ln2
	}

	return fixmath.FromFloat(-alpha * ln)
}
