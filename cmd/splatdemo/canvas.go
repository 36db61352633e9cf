// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/gogpu/splat/displaylist"
	"github.com/gogpu/splat/project"
)

// canvas is a software compositor for transformed splats. It evaluates
// the projected Gaussian of each primitive over its footprint and
// blends front splats over the accumulated background in arrival
// order.
type canvas struct {
	w, h int
	// Accumulated color, premultiplied, plus coverage.
	pix []float64 // 4 channels per pixel: r, g, b, a
}

var _ displaylist.Rasterizer = (*canvas)(nil)

func newCanvas(w, h int) *canvas {
	return &canvas{w: w, h: h, pix: make([]float64, w*h*4)}
}

// DrawBatch implements displaylist.Rasterizer.
func (c *canvas) DrawBatch(prims []displaylist.Primitive) error {
	for i := range prims {
		c.draw(&prims[i])
	}
	return nil
}

func (c *canvas) draw(p *displaylist.Primitive) {
	inv, ok := project.InvertCov2D(p.Cov2D)
	if !ok {
		return
	}
	r, g, b, a := project.UnpackRGBA(p.RGBA)
	cr := float64(r) / 255
	cg := float64(g) / 255
	cb := float64(b) / 255
	ca := float64(a) / 255

	x0 := clampInt(int(p.X-p.HalfW), 0, c.w)
	x1 := clampInt(int(p.X+p.HalfW)+1, 0, c.w)
	y0 := clampInt(int(p.Y-p.HalfH), 0, c.h)
	y1 := clampInt(int(p.Y+p.HalfH)+1, 0, c.h)

	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			dx := float64(float32(px) + 0.5 - p.X)
			dy := float64(float32(py) + 0.5 - p.Y)
			// Mahalanobis distance under the projected covariance.
			q := dx*dx*float64(inv[0]) + 2*dx*dy*float64(inv[1]) + dy*dy*float64(inv[2])
			if q > 9 { // beyond three sigmas
				continue
			}
			alpha := ca * math.Exp(-0.5*q)
			if alpha < 1.0/255 {
				continue
			}
			o := (py*c.w + px) * 4
			rem := 1 - c.pix[o+3]
			if rem <= 0 {
				continue
			}
			w := alpha * rem
			c.pix[o] += cr * w
			c.pix[o+1] += cg * w
			c.pix[o+2] += cb * w
			c.pix[o+3] += w
		}
	}
}

// SavePNG writes the accumulated frame over a black background.
func (c *canvas) SavePNG(path string) error {
	img := image.NewRGBA(image.Rect(0, 0, c.w, c.h))
	for y := 0; y < c.h; y++ {
		for x := 0; x < c.w; x++ {
			o := (y*c.w + x) * 4
			img.SetRGBA(x, y, color.RGBA{
				R: channelByte(c.pix[o]),
				G: channelByte(c.pix[o+1]),
				B: channelByte(c.pix[o+2]),
				A: 255,
			})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func channelByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
