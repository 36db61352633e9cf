// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package coproc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gogpu/splat/packet"
	"github.com/gogpu/splat/project"
)

// Interp executes finalized packets against a flat quadword-addressed
// data memory. The record semantics live here, once, so a packet built
// for one backend runs identically on any other; backends supply the
// memory and the kernel dispatch.
//
// An Interp is owned by a single device and is not safe for concurrent
// use.
type Interp struct {
	// Mem is the device data memory, quadword addressed.
	Mem []byte

	// RawSink receives the payload of Raw passthrough records in
	// submission order. Nil discards them.
	RawSink io.Writer

	// Invoke dispatches the kernel at an instruction word address.
	// Required: Invoke records fault without it.
	Invoke func(addr uint32) error

	// Execution registers, reset per packet.
	base    uint32
	offset  uint32
	cycleCL uint8
	cycleWL uint8
}

// Execute interprets one finalized packet.
func (ip *Interp) Execute(pkt []byte) error {
	ip.base, ip.offset = 0, 0
	ip.cycleCL, ip.cycleWL = 1, 1

	dec := packet.NewDecoder(pkt)
	for {
		rec, err := dec.Next()
		if err != nil {
			return err
		}

		switch rec.Op {
		case packet.OpNop:
		case packet.OpSetCycle:
			ip.cycleCL = uint8(rec.Imm)
			ip.cycleWL = uint8(rec.Imm >> 8)
		case packet.OpSetBase:
			ip.base = rec.Imm
		case packet.OpSetOffset:
			ip.offset = rec.Imm
		case packet.OpFlush:
			// Kernels run synchronously in the interpreter, so a
			// flush finds nothing outstanding.
		case packet.OpUnpack:
			if err := ip.unpack(rec); err != nil {
				return err
			}
		case packet.OpRaw:
			if ip.RawSink != nil {
				if _, err := ip.RawSink.Write(rec.Payload); err != nil {
					return fmt.Errorf("coproc: raw sink: %w", err)
				}
			}
		case packet.OpInvoke:
			if ip.Invoke == nil {
				return fmt.Errorf("coproc: invoke at word %d with no kernel dispatch", rec.Imm)
			}
			if err := ip.Invoke(rec.Imm); err != nil {
				return err
			}
		}

		if rec.Terminator {
			return nil
		}
	}
}

// BatchAddr returns the quadword address the current base and offset
// registers point at. Valid during kernel dispatch.
func (ip *Interp) BatchAddr() uint32 {
	return ip.base + ip.offset
}

// unpack widens a payload into data memory. Each input element expands
// to one quadword: its lanes widen to 32 bits, unused lanes read zero.
// Narrow lanes sign-extend except the 5-bit form, which is an unsigned
// color channel and zero-extends.
func (ip *Interp) unpack(rec packet.Record) error {
	lanes := rec.Format.Lanes()
	width := rec.Format.WidthBits()
	count := int(rec.Count)
	dest := rec.Dest + ip.base + ip.offset

	bits := newBitReader(rec.Payload)
	for i := 0; i < count; i++ {
		qw := dest + ip.elementSlot(i)
		byteOff := int(qw) * packet.QuadwordSize
		if byteOff < 0 || byteOff+packet.QuadwordSize > len(ip.Mem) {
			return fmt.Errorf("%w: unpack element %d at quadword %d", ErrBadAddress, i, qw)
		}

		for lane := 0; lane < 4; lane++ {
			var v uint32
			if lane < lanes {
				raw := bits.take(width)
				v = widen(raw, width)
			}
			binary.LittleEndian.PutUint32(ip.Mem[byteOff+lane*4:], v)
		}
	}
	return nil
}

// elementSlot maps an element index to its quadword slot under the
// current write cycle: with CL greater than WL, WL elements are written
// then CL-WL slots are skipped.
func (ip *Interp) elementSlot(i int) uint32 {
	cl, wl := uint32(ip.cycleCL), uint32(ip.cycleWL)
	if wl == 0 || cl <= wl {
		return uint32(i)
	}
	return uint32(i)/wl*cl + uint32(i)%wl
}

func widen(raw uint32, width int) uint32 {
	switch width {
	case 32:
		return raw
	case 16:
		return uint32(int32(int16(raw)))
	case 8:
		return uint32(int32(int8(raw)))
	default: // 5-bit, unsigned
		return raw & 0x1F
	}
}

// Fetch returns a view of data memory at a quadword address.
func (ip *Interp) Fetch(addr uint32, quadwords int) ([]byte, error) {
	start := int(addr) * packet.QuadwordSize
	end := start + quadwords*packet.QuadwordSize
	if start < 0 || end > len(ip.Mem) {
		return nil, fmt.Errorf("%w: fetch [%d, %d) of %d bytes", ErrBadAddress, start, end, len(ip.Mem))
	}
	return ip.Mem[start:end], nil
}

// Store writes bytes to data memory at a quadword address.
func (ip *Interp) Store(addr uint32, b []byte) error {
	start := int(addr) * packet.QuadwordSize
	if start < 0 || start+len(b) > len(ip.Mem) {
		return fmt.Errorf("%w: store [%d, %d) of %d bytes", ErrBadAddress, start, start+len(b), len(ip.Mem))
	}
	copy(ip.Mem[start:], b)
	return nil
}

// LoadBatch reads the frame-constant blocks and the batch at the
// current base+offset out of data memory. Called from kernel dispatch.
func (ip *Interp) LoadBatch() (*project.Camera, project.Frustum, BatchHeader, []project.CompactSplat, error) {
	var fr project.Frustum

	camBytes, err := ip.Fetch(AddrCamera, CameraQuadwords)
	if err != nil {
		return nil, fr, BatchHeader{}, nil, err
	}
	cam, err := DecodeCamera(camBytes)
	if err != nil {
		return nil, fr, BatchHeader{}, nil, err
	}

	frBytes, err := ip.Fetch(AddrFrustum, FrustumQuadwords)
	if err != nil {
		return nil, fr, BatchHeader{}, nil, err
	}
	fr, err = DecodeFrustum(frBytes)
	if err != nil {
		return nil, fr, BatchHeader{}, nil, err
	}

	batchAddr := ip.BatchAddr()
	hdrBytes, err := ip.Fetch(batchAddr, 1)
	if err != nil {
		return nil, fr, BatchHeader{}, nil, err
	}
	hdr, err := DecodeBatchHeader(hdrBytes)
	if err != nil {
		return nil, fr, BatchHeader{}, nil, err
	}
	if hdr.Count == 0 {
		return nil, fr, hdr, nil, fmt.Errorf("coproc: batch at quadword %d has zero count", batchAddr)
	}

	splatBytes, err := ip.Fetch(batchAddr+1, int(hdr.Count)*SplatQuadwords)
	if err != nil {
		return nil, fr, hdr, nil, err
	}
	splats, err := DecodeSplats(splatBytes, int(hdr.Count))
	if err != nil {
		return nil, fr, hdr, nil, err
	}
	return cam, fr, hdr, splats, nil
}

// bitReader pulls little-endian bit fields out of a packed payload.
// Fields may cross byte boundaries; the 5-bit form always does.
type bitReader struct {
	buf []byte
	pos int // bit position
}

func newBitReader(buf []byte) *bitReader {
	return &bitReader{buf: buf}
}

func (r *bitReader) take(width int) uint32 {
	var v uint32
	for i := 0; i < width; i++ {
		byteIdx := (r.pos + i) >> 3
		bitIdx := (r.pos + i) & 7
		if byteIdx < len(r.buf) && r.buf[byteIdx]>>bitIdx&1 != 0 {
			v |= 1 << i
		}
	}
	r.pos += width
	return v
}
