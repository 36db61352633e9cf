// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package project implements the numeric contract of the splat
// projection kernel: frustum visibility, perspective projection, and
// covariance flattening from 3D to screen space.
//
// Every backend that claims to run the kernel must reproduce this
// package bit-for-bit on the same inputs; the software device executes
// it directly, and the GPU shader mirrors it. All math is float32 so
// host and device agree on precision.
package project

import "golang.org/x/image/math/f32"

// CompactSplat is the transport form of a splat: the exact record
// uploaded to device data memory. It lives for one transfer.
//
// The layout is 48 bytes, three quadwords, with explicit padding so the
// Go struct, the wire encoding, and the shader struct all agree.
type CompactSplat struct {
	// Pos is the world-space position with W fixed at 1.
	Pos f32.Vec4

	// Cov is the upper triangle of the 3x3 world-space covariance:
	// xx, xy, xz, yy, yz, zz.
	Cov [6]float32

	// RGBA is the packed color, one byte per channel, R in the low byte.
	RGBA uint32

	// Pad0 keeps the record a whole number of quadwords.
	Pad0 uint32
}

// TransformedSplat is the kernel output record: one per input splat, in
// input order. Invisible splats are flagged, never removed, so output
// index i always corresponds to input index i.
//
// The layout is 48 bytes, three quadwords.
type TransformedSplat struct {
	// Screen holds the screen-space position in X and Y (pixels), the
	// normalized depth in Z, and the reciprocal of the clip-space W.
	Screen f32.Vec4

	// Cov2D is the projected 2x2 screen covariance as (a, b, c) of
	// [[a, b], [b, c]].
	Cov2D [3]float32

	// Radius is the conservative screen-space footprint radius in
	// pixels, derived from Cov2D.
	Radius float32

	// RGBA is the packed color carried through from the input.
	RGBA uint32

	// Visible is 1 when the splat survives culling and projection,
	// 0 otherwise.
	Visible uint32

	Pad0 uint32
	Pad1 uint32
}

// Sizes of the transport records in bytes. Both are whole quadwords.
const (
	CompactSplatSize     = 48
	TransformedSplatSize = 48
)

// Camera carries the per-frame transform state the kernel needs. It is
// uploaded once per batch and treated as read-only for the frame.
type Camera struct {
	// View transforms world space to view space. Row-major.
	View f32.Mat4

	// Proj is the perspective projection. Row-major.
	Proj f32.Mat4

	// ViewportW and ViewportH are the output dimensions in pixels.
	ViewportW float32
	ViewportH float32
}

// PackRGBA packs four channel bytes, R in the low byte.
func PackRGBA(r, g, b, a uint8) uint32 {
	return uint32(r) | uint32(g)<<8 | uint32(b)<<16 | uint32(a)<<24
}

// UnpackRGBA splits a packed color into channel bytes.
func UnpackRGBA(c uint32) (r, g, b, a uint8) {
	return uint8(c), uint8(c >> 8), uint8(c >> 16), uint8(c >> 24)
}
