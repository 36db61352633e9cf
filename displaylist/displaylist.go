// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package displaylist turns transformed splats into rasterizer-ready
// primitive batches.
//
// The assembler sits at the boundary of the offload pipeline: it
// consumes kernel output records, drops the invisible ones, and hands
// fixed-size batches of screen-space quads to whatever rasterizer is
// attached. Compositing itself is the rasterizer's business.
package displaylist

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/gogpu/splat/project"
)

// Primitive is one screen-space splat quad.
type Primitive struct {
	// X, Y is the splat center in pixels.
	X, Y float32

	// HalfW, HalfH are the conservative half-extents of the quad,
	// covering three standard deviations of the projected Gaussian on
	// each axis.
	HalfW, HalfH float32

	// Depth is the normalized depth for back-to-front ordering.
	Depth float32

	// Cov2D is the projected covariance, passed through for per-pixel
	// weight evaluation.
	Cov2D [3]float32

	// RGBA is the packed color.
	RGBA uint32
}

// Rasterizer receives finished primitive batches. The slice is only
// valid for the duration of the call.
type Rasterizer interface {
	DrawBatch(prims []Primitive) error
}

// DefaultBatchSize is the number of primitives per emitted batch.
// It matches the quad budget of one downstream list submission.
const DefaultBatchSize = 32

// Config controls an Assembler.
type Config struct {
	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int

	// Logger receives assembler events. Nil discards.
	Logger *slog.Logger
}

// Assembler groups visible splats into primitive batches.
type Assembler struct {
	out   Rasterizer
	batch []Primitive
	log   *slog.Logger

	emitted uint64
	skipped uint64
}

// NewAssembler returns an assembler feeding the given rasterizer.
func NewAssembler(out Rasterizer, cfg Config) *Assembler {
	size := cfg.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Assembler{
		out:   out,
		batch: make([]Primitive, 0, size),
		log:   logger,
	}
}

// Add appends one kernel output record. Invisible records are counted
// and skipped; a full batch is emitted before the next record is
// buffered.
func (a *Assembler) Add(ts project.TransformedSplat) error {
	if ts.Visible == 0 {
		a.skipped++
		return nil
	}

	a.batch = append(a.batch, Primitive{
		X:     ts.Screen[0],
		Y:     ts.Screen[1],
		HalfW: 3 * sqrt32(ts.Cov2D[0]),
		HalfH: 3 * sqrt32(ts.Cov2D[2]),
		Depth: ts.Screen[2],
		Cov2D: ts.Cov2D,
		RGBA:  ts.RGBA,
	})
	if len(a.batch) == cap(a.batch) {
		return a.emit()
	}
	return nil
}

// AddBatch appends a whole kernel output slice.
func (a *Assembler) AddBatch(ts []project.TransformedSplat) error {
	for i := range ts {
		if err := a.Add(ts[i]); err != nil {
			return err
		}
	}
	return nil
}

// Flush emits a partially filled final batch. A no-op when empty.
func (a *Assembler) Flush() error {
	if len(a.batch) == 0 {
		return nil
	}
	return a.emit()
}

func (a *Assembler) emit() error {
	n := len(a.batch)
	err := a.out.DrawBatch(a.batch)
	a.batch = a.batch[:0]
	if err != nil {
		return fmt.Errorf("displaylist: draw batch of %d: %w", n, err)
	}
	a.emitted += uint64(n)
	a.log.Debug("batch emitted", "primitives", n, "total", a.emitted)
	return nil
}

// Stats reports lifetime assembler counters: primitives emitted and
// invisible records skipped.
func (a *Assembler) Stats() (emitted, skipped uint64) {
	return a.emitted, a.skipped
}

func sqrt32(v float32) float32 {
	if v <= 0 {
		return 0
	}
	return float32(math.Sqrt(float64(v)))
}
