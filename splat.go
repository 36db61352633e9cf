// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package splat

import (
	"github.com/gogpu/splat/covar"
	"github.com/gogpu/splat/fixmath"
	"github.com/gogpu/splat/project"
)

// SHCoefficients is the number of spherical-harmonic slots carried per
// splat. Only the DC band is populated by the current ingest path; the
// remaining slots exist so scene files do not change layout when
// higher bands arrive.
const SHCoefficients = 16

// GaussianSplat3D is the canonical splat record: fixed-point position,
// shared-exponent covariance, and quantized appearance. This is the
// form held in the Store and written to scene files.
type GaussianSplat3D struct {
	// Pos is the world-space center.
	Pos [3]fixmath.Fix16

	// CovMant and CovExp encode the 3x3 covariance; see covar.Compress.
	CovMant [9]int8
	CovExp  uint8

	// Color is the base RGB, one byte per channel.
	Color [3]uint8

	// Opacity is the alpha in [0, 255].
	Opacity uint8

	// SH holds half-precision spherical-harmonic coefficients, DC
	// first.
	SH [SHCoefficients]uint16

	// Importance is the level-of-detail weight as Fix16 bits, derived
	// from opacity at ingest.
	Importance uint32
}

// NewSplat builds a canonical record from ingest-time float data.
//
// The covariance is checked for positive definiteness by Cholesky
// factorization; a matrix that fails is replaced with an isotropic
// default scaled to its own trace, so a malformed source splat renders
// as a small sphere instead of vanishing or corrupting the batch.
func NewSplat(pos [3]float64, cov covar.Mat3, color [3]uint8, opacity uint8) GaussianSplat3D {
	if _, ok := covar.Cholesky3x3(cov); !ok {
		variance := (cov[0] + cov[4] + cov[8]) / 3
		cov = covar.IsotropicDefault(variance)
	}
	mant, exp := covar.Compress(cov)

	alpha := float64(opacity) / 255
	s := GaussianSplat3D{
		Pos: [3]fixmath.Fix16{
			fixmath.FromFloat(pos[0]),
			fixmath.FromFloat(pos[1]),
			fixmath.FromFloat(pos[2]),
		},
		CovMant:    mant,
		CovExp:     exp,
		Color:      color,
		Opacity:    opacity,
		Importance: uint32(covar.ImportanceScore(alpha)),
	}
	// DC spherical harmonic from the base color.
	s.SH[0] = uint16(color[0])<<8 | uint16(color[1])
	s.SH[1] = uint16(color[2]) << 8
	return s
}

// Covariance decodes the stored covariance matrix.
func (s *GaussianSplat3D) Covariance() covar.Mat3 {
	return covar.Decompress(s.CovMant, s.CovExp)
}

// Compact converts the record to its transport form for one transfer.
func (s *GaussianSplat3D) Compact() project.CompactSplat {
	cov := s.Covariance()
	return project.CompactSplat{
		Pos: [4]float32{
			fixmath.ToFloat32(s.Pos[0]),
			fixmath.ToFloat32(s.Pos[1]),
			fixmath.ToFloat32(s.Pos[2]),
			1,
		},
		Cov: [6]float32{
			float32(cov[0]), float32(cov[1]), float32(cov[2]),
			float32(cov[4]), float32(cov[5]), float32(cov[8]),
		},
		RGBA: project.PackRGBA(s.Color[0], s.Color[1], s.Color[2], s.Opacity),
	}
}
