// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package project

import (
	"math"

	"golang.org/x/image/math/f32"
)

// Frustum is six world-space clip planes, each (nx, ny, nz, d) with the
// normal pointing inward: a point p is inside plane i when
// dot(n, p) + d >= 0. Plane order is left, right, bottom, top, near,
// far. A Frustum is built once per frame and read concurrently.
type Frustum [6]f32.Vec4

// FrustumFromMatrix extracts the six planes from a combined
// view-projection matrix (row-major) and normalizes them so plane
// distances are in world units.
func FrustumFromMatrix(vp f32.Mat4) Frustum {
	row := func(r int) f32.Vec4 {
		return f32.Vec4{vp[r*4], vp[r*4+1], vp[r*4+2], vp[r*4+3]}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	var fr Frustum
	fr[0] = addVec4(r3, r0)  // left:   w + x
	fr[1] = subVec4(r3, r0)  // right:  w - x
	fr[2] = addVec4(r3, r1)  // bottom: w + y
	fr[3] = subVec4(r3, r1)  // top:    w - y
	fr[4] = addVec4(r3, r2)  // near:   w + z
	fr[5] = subVec4(r3, r2)  // far:    w - z

	for i := range fr {
		fr[i] = normalizePlane(fr[i])
	}
	return fr
}

// PlaneDistance returns the signed distance from a point to a plane:
// positive inside, negative outside.
func PlaneDistance(plane f32.Vec4, p f32.Vec3) float32 {
	return plane[0]*p[0] + plane[1]*p[1] + plane[2]*p[2] + plane[3]
}

// SphereVisible reports whether a bounding sphere intersects the
// frustum. A sphere is culled only when it is strictly farther than its
// radius outside some plane; a sphere exactly touching a plane is
// visible. The tie rule keeps culling conservative: a borderline splat
// costs a few wasted kernel cycles, while wrongly dropping it pops a
// visible hole.
func SphereVisible(fr Frustum, center f32.Vec3, radius float32) bool {
	for i := range fr {
		if PlaneDistance(fr[i], center) < -radius {
			return false
		}
	}
	return true
}

// EffectiveRadius returns the conservative world-space bounding radius
// of a splat: three standard deviations along the widest axis, read
// from the covariance diagonal. Three sigmas cover 99.7% of the
// Gaussian mass.
func EffectiveRadius(cov [6]float32) float32 {
	// Diagonal entries of the symmetric matrix: xx, yy, zz.
	m := cov[0]
	if cov[3] > m {
		m = cov[3]
	}
	if cov[5] > m {
		m = cov[5]
	}
	if m <= 0 {
		return 0
	}
	return 3 * float32(math.Sqrt(float64(m)))
}

func addVec4(a, b f32.Vec4) f32.Vec4 {
	return f32.Vec4{a[0] + b[0], a[1] + b[1], a[2] + b[2], a[3] + b[3]}
}

func subVec4(a, b f32.Vec4) f32.Vec4 {
	return f32.Vec4{a[0] - b[0], a[1] - b[1], a[2] - b[2], a[3] - b[3]}
}

func normalizePlane(p f32.Vec4) f32.Vec4 {
	n := float32(math.Sqrt(float64(p[0]*p[0] + p[1]*p[1] + p[2]*p[2])))
	if n == 0 {
		return p
	}
	return f32.Vec4{p[0] / n, p[1] / n, p[2] / n, p[3] / n}
}
