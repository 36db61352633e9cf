// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package coproc

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/splat/packet"
	"github.com/gogpu/splat/project"
)

// Device data memory layout, in quadword addresses. Every backend
// honors the same map, so a packet built for one device runs unchanged
// on another.
//
// The frame-constant region sits at the bottom; batch data lives in the
// double-buffered region above it. Each batch buffer starts with a
// header quadword naming the splat count and the absolute output
// address, followed by the input records; outputs are written where the
// header points, normally right after the inputs.
const (
	// AddrCamera is the camera block: view matrix (4 quadwords),
	// projection matrix (4), viewport extent (1).
	AddrCamera uint32 = 0x00

	// AddrFrustum is the six-plane frustum block.
	AddrFrustum uint32 = 0x09

	// AddrBatchMin is the lowest quadword usable for batch buffers.
	AddrBatchMin uint32 = 0x10

	// CameraQuadwords and FrustumQuadwords are the block sizes.
	CameraQuadwords  = 9
	FrustumQuadwords = 6

	// SplatQuadwords is the size of one CompactSplat or
	// TransformedSplat record. Both are 48 bytes.
	SplatQuadwords = 3
)

// BatchHeader is the first quadword of a batch buffer.
type BatchHeader struct {
	// Count is the number of splats in the batch.
	Count uint32

	// OutAddr is the absolute quadword address where the kernel writes
	// the transformed records.
	OutAddr uint32
}

// EncodeCamera serializes the camera block for upload at AddrCamera.
func EncodeCamera(cam *project.Camera) []byte {
	buf := make([]byte, 0, CameraQuadwords*packet.QuadwordSize)
	for _, v := range cam.View {
		buf = appendF32(buf, v)
	}
	for _, v := range cam.Proj {
		buf = appendF32(buf, v)
	}
	buf = appendF32(buf, cam.ViewportW)
	buf = appendF32(buf, cam.ViewportH)
	buf = appendF32(buf, 0)
	buf = appendF32(buf, 0)
	return buf
}

// DecodeCamera reads the camera block back from device memory bytes.
func DecodeCamera(buf []byte) (*project.Camera, error) {
	if len(buf) < CameraQuadwords*packet.QuadwordSize {
		return nil, fmt.Errorf("coproc: camera block needs %d bytes, have %d",
			CameraQuadwords*packet.QuadwordSize, len(buf))
	}
	cam := &project.Camera{}
	off := 0
	for i := range cam.View {
		cam.View[i] = readF32(buf, &off)
	}
	for i := range cam.Proj {
		cam.Proj[i] = readF32(buf, &off)
	}
	cam.ViewportW = readF32(buf, &off)
	cam.ViewportH = readF32(buf, &off)
	return cam, nil
}

// EncodeFrustum serializes the frustum block for upload at AddrFrustum.
func EncodeFrustum(fr project.Frustum) []byte {
	buf := make([]byte, 0, FrustumQuadwords*packet.QuadwordSize)
	for _, plane := range fr {
		for _, v := range plane {
			buf = appendF32(buf, v)
		}
	}
	return buf
}

// DecodeFrustum reads the frustum block back from device memory bytes.
func DecodeFrustum(buf []byte) (project.Frustum, error) {
	var fr project.Frustum
	if len(buf) < FrustumQuadwords*packet.QuadwordSize {
		return fr, fmt.Errorf("coproc: frustum block needs %d bytes, have %d",
			FrustumQuadwords*packet.QuadwordSize, len(buf))
	}
	off := 0
	for i := range fr {
		for j := range fr[i] {
			fr[i][j] = readF32(buf, &off)
		}
	}
	return fr, nil
}

// EncodeBatchHeader serializes a batch header quadword.
func EncodeBatchHeader(h BatchHeader) []byte {
	buf := make([]byte, packet.QuadwordSize)
	binary.LittleEndian.PutUint32(buf[0:], h.Count)
	binary.LittleEndian.PutUint32(buf[4:], h.OutAddr)
	return buf
}

// DecodeBatchHeader reads a batch header quadword.
func DecodeBatchHeader(buf []byte) (BatchHeader, error) {
	if len(buf) < packet.QuadwordSize {
		return BatchHeader{}, fmt.Errorf("coproc: batch header needs %d bytes, have %d",
			packet.QuadwordSize, len(buf))
	}
	return BatchHeader{
		Count:   binary.LittleEndian.Uint32(buf[0:]),
		OutAddr: binary.LittleEndian.Uint32(buf[4:]),
	}, nil
}

// EncodeSplats serializes compact splats for upload.
func EncodeSplats(splats []project.CompactSplat) []byte {
	buf := make([]byte, 0, len(splats)*project.CompactSplatSize)
	for i := range splats {
		s := &splats[i]
		for _, v := range s.Pos {
			buf = appendF32(buf, v)
		}
		for _, v := range s.Cov {
			buf = appendF32(buf, v)
		}
		buf = binary.LittleEndian.AppendUint32(buf, s.RGBA)
		buf = binary.LittleEndian.AppendUint32(buf, s.Pad0)
	}
	return buf
}

// DecodeSplats parses compact splats from device memory bytes.
func DecodeSplats(buf []byte, count int) ([]project.CompactSplat, error) {
	if len(buf) < count*project.CompactSplatSize {
		return nil, fmt.Errorf("coproc: splat block needs %d bytes, have %d",
			count*project.CompactSplatSize, len(buf))
	}
	out := make([]project.CompactSplat, count)
	off := 0
	for i := range out {
		s := &out[i]
		for j := range s.Pos {
			s.Pos[j] = readF32(buf, &off)
		}
		for j := range s.Cov {
			s.Cov[j] = readF32(buf, &off)
		}
		s.RGBA = binary.LittleEndian.Uint32(buf[off:])
		off += 8 // RGBA + padding
	}
	return out, nil
}

// EncodeTransformed serializes kernel output records; devices use it to
// write results into data memory.
func EncodeTransformed(splats []project.TransformedSplat) []byte {
	buf := make([]byte, 0, len(splats)*project.TransformedSplatSize)
	for i := range splats {
		s := &splats[i]
		for _, v := range s.Screen {
			buf = appendF32(buf, v)
		}
		for _, v := range s.Cov2D {
			buf = appendF32(buf, v)
		}
		buf = appendF32(buf, s.Radius)
		buf = binary.LittleEndian.AppendUint32(buf, s.RGBA)
		buf = binary.LittleEndian.AppendUint32(buf, s.Visible)
		buf = binary.LittleEndian.AppendUint32(buf, 0)
		buf = binary.LittleEndian.AppendUint32(buf, 0)
	}
	return buf
}

// DecodeTransformed parses kernel output records read back from device
// memory.
func DecodeTransformed(buf []byte, count int) ([]project.TransformedSplat, error) {
	if len(buf) < count*project.TransformedSplatSize {
		return nil, fmt.Errorf("coproc: output block needs %d bytes, have %d",
			count*project.TransformedSplatSize, len(buf))
	}
	out := make([]project.TransformedSplat, count)
	off := 0
	for i := range out {
		s := &out[i]
		for j := range s.Screen {
			s.Screen[j] = readF32(buf, &off)
		}
		for j := range s.Cov2D {
			s.Cov2D[j] = readF32(buf, &off)
		}
		s.Radius = readF32(buf, &off)
		s.RGBA = binary.LittleEndian.Uint32(buf[off:])
		s.Visible = binary.LittleEndian.Uint32(buf[off+4:])
		off += 16 // RGBA + Visible + padding
	}
	return out, nil
}

func appendF32(buf []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
}

func readF32(buf []byte, off *int) float32 {
	v := math.Float32frombits(binary.LittleEndian.Uint32(buf[*off:]))
	*off += 4
	return v
}
