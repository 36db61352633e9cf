// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package splat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/splat/coproc"
	"github.com/gogpu/splat/displaylist"
	"github.com/gogpu/splat/packet"
	"github.com/gogpu/splat/project"
)

// RendererConfig controls frame orchestration. Zero values get
// defaults.
type RendererConfig struct {
	// BatchSize is the number of splats per device submission.
	// Default 256.
	BatchSize int

	// WaitTimeout bounds each batch wait. Default 100ms.
	WaitTimeout time.Duration

	// PrimitiveBatch overrides the display-list batch size.
	PrimitiveBatch int
}

func (c *RendererConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 256
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 100 * time.Millisecond
	}
}

// FrameStats summarizes one RenderFrame call.
type FrameStats struct {
	// Splats is the number of records submitted to the device.
	Splats int

	// Visible is the number of records that survived culling and
	// projection.
	Visible int

	// Batches is the number of device submissions.
	Batches int

	// Elapsed is the wall time of the frame.
	Elapsed time.Duration
}

// Renderer drives the per-frame offload cycle: compact the store,
// stream batches through the channel, collect transformed records, and
// assemble primitives for the rasterizer.
//
// A Renderer owns its channel and must be used from one goroutine.
type Renderer struct {
	cfg RendererConfig
	ch  *coproc.Channel
	asm *displaylist.Assembler

	v4f32 packet.Format

	// batchQuadwords is the footprint of one batch buffer: header,
	// inputs, outputs.
	batchQuadwords uint32

	// Scratch, reused across batches.
	compact []project.CompactSplat
	readbuf []byte
}

// NewRenderer wraps a device and a rasterizer. The projection kernel
// is uploaded immediately; the double-buffer bases are carved out of
// the device's data memory above the frame-constant region.
func NewRenderer(dev coproc.Device, ras displaylist.Rasterizer, cfg RendererConfig) (*Renderer, error) {
	cfg.applyDefaults()

	batchQW := uint32(1 + 2*cfg.BatchSize*coproc.SplatQuadwords)
	baseA := coproc.AddrBatchMin
	baseB := baseA + batchQW
	if int(baseB+batchQW) > dev.DataCapacity() {
		return nil, fmt.Errorf("splat: batch size %d needs %d quadwords, device has %d",
			cfg.BatchSize, baseB+batchQW, dev.DataCapacity())
	}

	ch := coproc.NewChannel(dev, coproc.Config{
		BufferBaseA: baseA,
		BufferBaseB: baseB,
		WaitTimeout: cfg.WaitTimeout,
		Logger:      Logger(),
	})
	if err := ch.UploadKernel(coproc.KernelProjection); err != nil {
		return nil, err
	}

	v4f32, _ := packet.FormatOf(32, 4)
	return &Renderer{
		cfg:            cfg,
		ch:             ch,
		asm:            displaylist.NewAssembler(ras, displaylist.Config{BatchSize: cfg.PrimitiveBatch, Logger: Logger()}),
		v4f32:          v4f32,
		batchQuadwords: batchQW,
		compact:        make([]project.CompactSplat, 0, cfg.BatchSize),
		readbuf:        make([]byte, cfg.BatchSize*project.TransformedSplatSize),
	}, nil
}

// Channel exposes the underlying channel for diagnostics.
func (r *Renderer) Channel() *coproc.Channel { return r.ch }

// Close releases the device.
func (r *Renderer) Close() error {
	return r.ch.Device().Close()
}

// RenderFrame projects every splat in the store through the device and
// feeds the visible ones to the rasterizer.
//
// A wait timeout faults the channel; RenderFrame resets it (which
// re-uploads the kernel) before returning the error, so the next frame
// starts from a clean channel.
func (r *Renderer) RenderFrame(ctx context.Context, st *Store, cam *project.Camera) (FrameStats, error) {
	start := time.Now()
	var stats FrameStats

	fr := project.FrustumFromMatrix(project.Mat4Mul(cam.Proj, cam.View))
	splats := st.Splats()

	for off := 0; off < len(splats); off += r.cfg.BatchSize {
		end := off + r.cfg.BatchSize
		if end > len(splats) {
			end = len(splats)
		}

		r.compact = r.compact[:0]
		for i := off; i < end; i++ {
			r.compact = append(r.compact, splats[i].Compact())
		}

		visible, err := r.runBatch(ctx, cam, fr)
		if err != nil {
			if errors.Is(err, coproc.ErrTimeout) {
				if resetErr := r.ch.ResetChannel(); resetErr != nil {
					return stats, fmt.Errorf("splat: reset after timeout: %w", resetErr)
				}
			}
			return stats, err
		}
		stats.Splats += len(r.compact)
		stats.Visible += visible
		stats.Batches++
	}

	if err := r.asm.Flush(); err != nil {
		return stats, err
	}
	stats.Elapsed = time.Since(start)

	Logger().Debug("frame rendered",
		"splats", stats.Splats,
		"visible", stats.Visible,
		"batches", stats.Batches,
		"elapsed", stats.Elapsed)
	return stats, nil
}

// runBatch submits r.compact through the channel and feeds the decoded
// output to the assembler.
func (r *Renderer) runBatch(ctx context.Context, cam *project.Camera, fr project.Frustum) (int, error) {
	n := len(r.compact)
	base := r.ch.PendingBase()
	outAddr := base + 1 + uint32(n*coproc.SplatQuadwords)

	pkt, err := r.buildPacket(cam, fr, base, outAddr)
	if err != nil {
		return 0, err
	}
	if err := r.ch.SubmitBatch(pkt); err != nil {
		return 0, err
	}
	if err := r.ch.Wait(ctx); err != nil {
		return 0, err
	}

	buf := r.readbuf[:n*project.TransformedSplatSize]
	if err := r.ch.Device().ReadBack(buf, outAddr); err != nil {
		return 0, err
	}
	out, err := coproc.DecodeTransformed(buf, n)
	if err != nil {
		return 0, err
	}

	visible := 0
	for i := range out {
		if out[i].Visible != 0 {
			visible++
		}
	}
	return visible, r.asm.AddBatch(out)
}

// buildPacket assembles the canonical batch packet: frame constants
// into the low region, header and inputs into the pending buffer, then
// the kernel invoke and a drain barrier.
func (r *Renderer) buildPacket(cam *project.Camera, fr project.Frustum, base, outAddr uint32) ([]byte, error) {
	n := len(r.compact)
	// Constants, setup tags, header+input, invoke, flush, terminator,
	// and tag overhead.
	capQW := 8 + coproc.CameraQuadwords + coproc.FrustumQuadwords + 1 + n*coproc.SplatQuadwords
	b := packet.NewBuilder(capQW)

	if err := b.AppendUnpack(coproc.AddrCamera, r.v4f32, coproc.CameraQuadwords, coproc.EncodeCamera(cam)); err != nil {
		return nil, err
	}
	if err := b.AppendUnpack(coproc.AddrFrustum, r.v4f32, coproc.FrustumQuadwords, coproc.EncodeFrustum(fr)); err != nil {
		return nil, err
	}
	if err := b.AppendSetBase(base); err != nil {
		return nil, err
	}
	if err := b.AppendSetOffset(0); err != nil {
		return nil, err
	}

	body := append(coproc.EncodeBatchHeader(coproc.BatchHeader{
		Count:   uint32(n),
		OutAddr: outAddr,
	}), coproc.EncodeSplats(r.compact)...)
	if err := b.AppendUnpack(0, r.v4f32, 1+n*coproc.SplatQuadwords, body); err != nil {
		return nil, err
	}

	if err := b.AppendInvoke(0); err != nil {
		return nil, err
	}
	if err := b.AppendFlush(); err != nil {
		return nil, err
	}
	if _, err := b.Finalize(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
