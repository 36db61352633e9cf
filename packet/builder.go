// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Builder errors. All rejection is synchronous: a packet either grows
// by a whole record or is untouched, so a failed append never leaves a
// half-written tag for the device to misparse.
var (
	// ErrPacketFull is returned when a record does not fit in the
	// builder's fixed capacity.
	ErrPacketFull = errors.New("packet: capacity exceeded")

	// ErrZeroSize is returned for an unpack or raw append with no
	// elements.
	ErrZeroSize = errors.New("packet: zero-size payload")

	// ErrNilData is returned for an unpack or raw append with nil data.
	ErrNilData = errors.New("packet: nil payload")

	// ErrSizeMismatch is returned when the payload length does not
	// match the format and element count.
	ErrSizeMismatch = errors.New("packet: payload size mismatch")

	// ErrFinalized is returned for appends after Finalize.
	ErrFinalized = errors.New("packet: already finalized")
)

// Builder assembles a command packet into a fixed-capacity buffer.
// Capacity is set once at construction; the builder never reallocates,
// so a full packet is reported to the caller instead of growing
// silently past the transfer budget.
//
// A Builder is not safe for concurrent use.
type Builder struct {
	buf       []byte
	finalized bool
}

// NewBuilder returns a Builder with room for maxQuadwords records
// including the terminator.
func NewBuilder(maxQuadwords int) *Builder {
	if maxQuadwords < 1 {
		maxQuadwords = 1
	}
	return &Builder{buf: make([]byte, 0, maxQuadwords*QuadwordSize)}
}

// Reset clears the builder for reuse, keeping its capacity.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.finalized = false
}

// Len returns the current packet length in quadwords.
func (b *Builder) Len() int {
	return len(b.buf) / QuadwordSize
}

// Bytes returns the packet contents. Only valid after Finalize.
func (b *Builder) Bytes() []byte {
	return b.buf
}

// appendTag writes one tag quadword, checking capacity first.
func (b *Builder) appendTag(op Opcode, format Format, flags uint8, addr uint32, count uint32, imm uint32) error {
	if b.finalized {
		return ErrFinalized
	}
	if len(b.buf)+QuadwordSize > cap(b.buf) {
		return ErrPacketFull
	}
	word0 := uint32(op) | uint32(format)<<8 | uint32(flags)<<16
	b.buf = binary.LittleEndian.AppendUint32(b.buf, word0)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, addr)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, count)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, imm)
	return nil
}

// AppendUnpack appends a data upload: count elements of the given
// format, written to device data memory at dest (a quadword address).
// The payload must be exactly format.PayloadSize(count) bytes; it is
// padded to a whole quadword in the packet.
func (b *Builder) AppendUnpack(dest uint32, format Format, count int, data []byte) error {
	if b.finalized {
		return ErrFinalized
	}
	if data == nil {
		return ErrNilData
	}
	if count <= 0 || len(data) == 0 {
		return ErrZeroSize
	}
	want := format.PayloadSize(count)
	if len(data) != want {
		return fmt.Errorf("%w: have %d bytes, format %s count %d needs %d",
			ErrSizeMismatch, len(data), format, count, want)
	}
	padded := quadwords(len(data)) * QuadwordSize
	if len(b.buf)+QuadwordSize+padded > cap(b.buf) {
		return ErrPacketFull
	}

	if err := b.appendTag(OpUnpack, format, 0, dest, uint32(count), 0); err != nil {
		return err
	}
	b.buf = append(b.buf, data...)
	for i := len(data); i < padded; i++ {
		b.buf = append(b.buf, 0)
	}
	return nil
}

// AppendRaw appends an opaque passthrough payload destined for the
// rasterizer path. The data is padded to a whole quadword.
func (b *Builder) AppendRaw(data []byte) error {
	if b.finalized {
		return ErrFinalized
	}
	if data == nil {
		return ErrNilData
	}
	if len(data) == 0 {
		return ErrZeroSize
	}
	padded := quadwords(len(data)) * QuadwordSize
	if len(b.buf)+QuadwordSize+padded > cap(b.buf) {
		return ErrPacketFull
	}

	if err := b.appendTag(OpRaw, 0, 0, 0, uint32(len(data)), 0); err != nil {
		return err
	}
	b.buf = append(b.buf, data...)
	for i := len(data); i < padded; i++ {
		b.buf = append(b.buf, 0)
	}
	return nil
}

// AppendSetCycle appends a cycle-control record with the given CL and
// WL fields.
func (b *Builder) AppendSetCycle(cl, wl uint8) error {
	return b.appendTag(OpSetCycle, 0, 0, 0, 0, uint32(cl)|uint32(wl)<<8)
}

// AppendSetBase appends a double-buffer base record.
func (b *Builder) AppendSetBase(base uint32) error {
	return b.appendTag(OpSetBase, 0, 0, 0, 0, base)
}

// AppendSetOffset appends a double-buffer offset record.
func (b *Builder) AppendSetOffset(offset uint32) error {
	return b.appendTag(OpSetOffset, 0, 0, 0, 0, offset)
}

// AppendInvoke appends a kernel start record at the given instruction
// address.
func (b *Builder) AppendInvoke(addr uint32) error {
	return b.appendTag(OpInvoke, 0, 0, 0, 0, addr)
}

// AppendFlush appends a drain barrier.
func (b *Builder) AppendFlush() error {
	return b.appendTag(OpFlush, 0, 0, 0, 0, 0)
}

// Finalize appends the terminator record and seals the packet,
// returning its total length in quadwords. Further appends fail with
// ErrFinalized.
func (b *Builder) Finalize() (int, error) {
	if b.finalized {
		return 0, ErrFinalized
	}
	if err := b.appendTag(OpNop, 0, flagTerminator, 0, 0, 0); err != nil {
		return 0, err
	}
	b.finalized = true
	return b.Len(), nil
}
