// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package splat

import (
	"math"
	"math/rand"

	"github.com/gogpu/splat/covar"
)

// GenerateSphereScene builds a synthetic test scene: n splats on a unit
// sphere shell, colored by position, with mildly anisotropic covariance
// oriented at random. The same seed always produces the same scene, so
// end-to-end tests can assert exact visibility counts.
func GenerateSphereScene(n int, seed int64) *Store {
	rng := rand.New(rand.NewSource(seed))
	st := NewStore(n)

	for i := 0; i < n; i++ {
		// Uniform direction on the sphere.
		z := rng.Float64()*2 - 1
		theta := rng.Float64() * 2 * math.Pi
		r := math.Sqrt(1 - z*z)
		pos := [3]float64{r * math.Cos(theta), r * math.Sin(theta), z}

		scale := 0.5 + rng.Float64() // 0.5 to 1.5
		base := 0.002 * scale
		cov := covar.Mat3{
			base * (1 + rng.Float64()), 0, 0,
			0, base * (1 + rng.Float64()), 0,
			0, 0, base * (1 + rng.Float64()),
		}

		color := [3]uint8{
			uint8(127 + 127*pos[0]),
			uint8(127 + 127*pos[1]),
			uint8(127 + 127*pos[2]),
		}
		opacity := uint8(77 + rng.Intn(179)) // 0.3 to 1.0

		// Capacity equals n, so Append cannot fail here.
		_ = st.Append(NewSplat(pos, cov, color, opacity))
	}
	return st
}
