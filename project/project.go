// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package project

import (
	"math"

	"golang.org/x/image/math/f32"
)

const (
	// minDepth is the closest view-space distance the projection will
	// divide by. Splats nearer than this are flagged invisible instead
	// of producing an exploding footprint.
	minDepth = 1e-4

	// minW clamps the homogeneous divisor away from zero so the
	// perspective divide can never produce NaN or Inf.
	minW = 1e-4

	// covEpsilon is added to the projected covariance diagonal. It
	// guarantees a minimum footprint of about one pixel and keeps the
	// 2x2 matrix invertible for downstream weight evaluation.
	covEpsilon = 0.3

	// minFootprint is the screen radius in pixels below which a splat
	// is flagged invisible: it would not cover a sample anyway.
	minFootprint = 0.1
)

// ProjectSplat runs the kernel contract for a single splat: frustum
// test, perspective projection, and covariance flattening.
//
// The output record is always produced, visible or not, so batch
// outputs stay index-aligned with their inputs. Degenerate inputs
// (behind the near plane, sub-pixel footprint, non-finite covariance)
// are flagged invisible rather than dropped.
func ProjectSplat(s CompactSplat, cam *Camera, fr Frustum) TransformedSplat {
	out := TransformedSplat{RGBA: s.RGBA}

	center := f32.Vec3{s.Pos[0], s.Pos[1], s.Pos[2]}
	radius := EffectiveRadius(s.Cov)
	if !SphereVisible(fr, center, radius) {
		return out
	}

	v := mat4MulVec4(cam.View, s.Pos)
	depth := -v[2] // camera looks down -Z in view space
	if depth < minDepth {
		return out
	}

	clip := mat4MulVec4(cam.Proj, v)
	w := clip[3]
	if w < minW {
		w = minW
	}
	invW := 1 / w

	ndcX := clip[0] * invW
	ndcY := clip[1] * invW
	ndcZ := clip[2] * invW

	out.Screen = f32.Vec4{
		(ndcX*0.5 + 0.5) * cam.ViewportW,
		(1 - (ndcY*0.5 + 0.5)) * cam.ViewportH,
		ndcZ,
		invW,
	}

	// Focal lengths in pixels, recovered from the projection diagonal.
	fx := cam.Proj[0] * cam.ViewportW / 2
	fy := cam.Proj[5] * cam.ViewportH / 2

	// Rotate the world covariance into view space, then flatten it with
	// the projection Jacobian. The Jacobian of the screen mapping at
	// view point (x, y, z) is
	//
	//	[ fx/z   0     -fx*x/z^2 ]
	//	[ 0      fy/z  -fy*y/z^2 ]
	//
	// using z = depth.
	covV := rotateCov(cam.View, s.Cov)

	z := depth
	j00 := fx / z
	j02 := -fx * v[0] / (z * z)
	j11 := fy / z
	j12 := -fy * v[1] / (z * z)

	// Sigma2D = J * SigmaView * J^T, expanded for the sparse J.
	// SigmaView rows: [c0 c1 c2; c1 c3 c4; c2 c4 c5].
	c0, c1, c2, c3, c4, c5 := covV[0], covV[1], covV[2], covV[3], covV[4], covV[5]
	a := j00*(j00*c0+j02*c2) + j02*(j00*c2+j02*c5)
	b := j00*(j11*c1+j12*c2) + j02*(j11*c4+j12*c5)
	c := j11*(j11*c3+j12*c4) + j12*(j11*c4+j12*c5)

	a += covEpsilon
	c += covEpsilon

	out.Cov2D = [3]float32{a, b, c}
	out.Radius = footprintRadius(a, b, c)

	if !isFinite(out.Radius) || !isFinite(a) || !isFinite(b) || !isFinite(c) {
		out.Cov2D = [3]float32{covEpsilon, 0, covEpsilon}
		out.Radius = 0
		return out
	}
	if out.Radius < minFootprint {
		return out
	}

	out.Visible = 1
	return out
}

// ProjectBatch projects src into dst, which must be at least as long.
// It returns the number of visible splats.
func ProjectBatch(dst []TransformedSplat, src []CompactSplat, cam *Camera, fr Frustum) int {
	visible := 0
	for i := range src {
		dst[i] = ProjectSplat(src[i], cam, fr)
		if dst[i].Visible != 0 {
			visible++
		}
	}
	return visible
}

// footprintRadius returns three standard deviations along the major
// axis of the 2x2 covariance [[a, b], [b, c]].
func footprintRadius(a, b, c float32) float32 {
	mid := (a + c) / 2
	diff := (a - c) / 2
	disc := float32(math.Sqrt(float64(diff*diff + b*b)))
	major := mid + disc
	if major <= 0 {
		return 0
	}
	return 3 * float32(math.Sqrt(float64(major)))
}

// InvertCov2D inverts the projected covariance for weight evaluation,
// regularizing near-singular matrices instead of failing. The epsilon
// added at projection time normally keeps the determinant healthy.
func InvertCov2D(cov [3]float32) (inv [3]float32, ok bool) {
	a, b, c := cov[0], cov[1], cov[2]
	det := a*c - b*b
	if det < 1e-6 {
		a += covEpsilon
		c += covEpsilon
		det = a*c - b*b
		if det < 1e-6 {
			return [3]float32{}, false
		}
	}
	invDet := 1 / det
	return [3]float32{c * invDet, -b * invDet, a * invDet}, true
}

// rotateCov transforms a symmetric covariance by the rotation part of a
// view matrix: R * Sigma * R^T, keeping only the upper triangle.
func rotateCov(view f32.Mat4, cov [6]float32) [6]float32 {
	// Expand the packed triangle.
	s := [3][3]float32{
		{cov[0], cov[1], cov[2]},
		{cov[1], cov[3], cov[4]},
		{cov[2], cov[4], cov[5]},
	}
	var r [3][3]float32
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = view[i*4+j]
		}
	}

	var rs [3][3]float32
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rs[i][j] = r[i][0]*s[0][j] + r[i][1]*s[1][j] + r[i][2]*s[2][j]
		}
	}
	var out [3][3]float32
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = rs[i][0]*r[j][0] + rs[i][1]*r[j][1] + rs[i][2]*r[j][2]
		}
	}
	return [6]float32{out[0][0], out[0][1], out[0][2], out[1][1], out[1][2], out[2][2]}
}

func mat4MulVec4(m f32.Mat4, v f32.Vec4) f32.Vec4 {
	var out f32.Vec4
	for r := 0; r < 4; r++ {
		out[r] = m[r*4]*v[0] + m[r*4+1]*v[1] + m[r*4+2]*v[2] + m[r*4+3]*v[3]
	}
	return out
}

// Mat4Mul returns the row-major product a * b.
func Mat4Mul(a, b f32.Mat4) f32.Mat4 {
	var out f32.Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r*4+c] = a[r*4]*b[c] + a[r*4+1]*b[4+c] + a[r*4+2]*b[8+c] + a[r*4+3]*b[12+c]
		}
	}
	return out
}

// Perspective builds a row-major perspective projection with a vertical
// field of view in radians. View space looks down -Z.
func Perspective(fovy, aspect, near, far float32) f32.Mat4 {
	f := 1 / float32(math.Tan(float64(fovy)/2))
	var m f32.Mat4
	m[0] = f / aspect
	m[5] = f
	m[10] = (far + near) / (near - far)
	m[11] = 2 * far * near / (near - far)
	m[14] = -1
	return m
}

// LookAt builds a row-major view matrix with the camera at eye, looking
// at target, with the given up direction.
func LookAt(eye, target, up f32.Vec3) f32.Mat4 {
	fwd := normalize3(sub3(target, eye))
	right := normalize3(cross3(fwd, up))
	u := cross3(right, fwd)

	var m f32.Mat4
	m[0], m[1], m[2] = right[0], right[1], right[2]
	m[4], m[5], m[6] = u[0], u[1], u[2]
	m[8], m[9], m[10] = -fwd[0], -fwd[1], -fwd[2]
	m[3] = -dot3(right, eye)
	m[7] = -dot3(u, eye)
	m[11] = dot3(fwd, eye)
	m[15] = 1
	return m
}

func isFinite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

func sub3(a, b f32.Vec3) f32.Vec3 {
	return f32.Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func dot3(a, b f32.Vec3) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross3(a, b f32.Vec3) f32.Vec3 {
	return f32.Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalize3(v f32.Vec3) f32.Vec3 {
	n := float32(math.Sqrt(float64(dot3(v, v))))
	if n == 0 {
		return f32.Vec3{1, 0, 0}
	}
	return f32.Vec3{v[0] / n, v[1] / n, v[2] / n}
}
