// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package packet implements the quadword-aligned command stream spoken
// between the host and a transfer coprocessor.
//
// A packet is a sequence of 16-byte records. Every record starts with a
// tag quadword of four little-endian uint32 words:
//
//	word 0: opcode (bits 0-7) | format (bits 8-15) | flags (bits 16-23)
//	word 1: destination address (quadwords, device data memory)
//	word 2: element count
//	word 3: immediate (cycle fields, base, offset, or kernel address)
//
// Unpack and Raw tags are followed by their payload, padded to a whole
// number of quadwords. A tag with the terminator flag set ends the
// packet; everything after it is ignored by conforming consumers.
package packet

import "fmt"

// QuadwordSize is the transfer granularity in bytes. Every record, tag
// and payload alike, is a whole number of quadwords.
const QuadwordSize = 16

// Opcode identifies a command record.
type Opcode uint8

// Command opcodes. The grouping mirrors the device pipeline: state
// setup in the low range, synchronization in the 0x1x range, data
// movement at 0x50/0x60.
const (
	// OpNop does nothing. A terminator-flagged OpNop ends the packet.
	OpNop Opcode = 0x00

	// OpSetCycle sets the write cycle: immediate holds CL (low 8 bits)
	// and WL (next 8 bits) controlling skipping writes.
	OpSetCycle Opcode = 0x01

	// OpSetOffset sets the double-buffer offset, in quadwords.
	OpSetOffset Opcode = 0x02

	// OpSetBase sets the double-buffer base, in quadwords.
	OpSetBase Opcode = 0x03

	// OpFlush stalls until prior kernel activity has drained.
	OpFlush Opcode = 0x11

	// OpInvoke starts the loaded kernel at the instruction address in
	// the immediate word.
	OpInvoke Opcode = 0x14

	// OpRaw carries an opaque payload straight through to the
	// downstream rasterizer path without touching device memory.
	OpRaw Opcode = 0x50

	// OpUnpack writes the payload into device data memory at the
	// destination address, widening elements according to the format.
	OpUnpack Opcode = 0x60
)

// String returns the mnemonic for an opcode.
func (op Opcode) String() string {
	switch op {
	case OpNop:
		return "Nop"
	case OpSetCycle:
		return "SetCycle"
	case OpSetOffset:
		return "SetOffset"
	case OpSetBase:
		return "SetBase"
	case OpFlush:
		return "Flush"
	case OpInvoke:
		return "Invoke"
	case OpRaw:
		return "Raw"
	case OpUnpack:
		return "Unpack"
	default:
		return fmt.Sprintf("Opcode(0x%02X)", uint8(op))
	}
}

// flagTerminator marks the final record of a packet.
const flagTerminator = 0x01

// Format describes the element layout of an Unpack payload: a vector
// size of 1 to 4 lanes, each lane 5, 8, 16, or 32 bits wide. All
// sixteen combinations are valid.
type Format uint8

// Lane width codes, two low bits of a Format.
const (
	width32 = 0
	width16 = 1
	width8  = 2
	width5  = 3
)

// FormatOf builds a Format from a lane width in bits (5, 8, 16, or 32)
// and a vector size (1 to 4). It returns false for any other shape.
func FormatOf(widthBits, lanes int) (Format, bool) {
	var w int
	switch widthBits {
	case 32:
		w = width32
	case 16:
		w = width16
	case 8:
		w = width8
	case 5:
		w = width5
	default:
		return 0, false
	}
	if lanes < 1 || lanes > 4 {
		return 0, false
	}
	return Format((lanes-1)<<2 | w), true
}

// Lanes returns the vector size of the format, 1 to 4.
func (f Format) Lanes() int {
	return int(f>>2)&0x3 + 1
}

// WidthBits returns the lane width in bits.
func (f Format) WidthBits() int {
	switch f & 0x3 {
	case width32:
		return 32
	case width16:
		return 16
	case width8:
		return 8
	default:
		return 5
	}
}

// String returns the format as "VnWw", e.g. "V3_32" for three 32-bit
// lanes.
func (f Format) String() string {
	return fmt.Sprintf("V%d_%d", f.Lanes(), f.WidthBits())
}

// PayloadSize returns the packed payload size in bytes for count
// elements of this format, before quadword padding. Five-bit lanes pack
// contiguously; every element starts on a bit boundary, and the total
// rounds up to whole bytes.
func (f Format) PayloadSize(count int) int {
	bits := count * f.Lanes() * f.WidthBits()
	return (bits + 7) / 8
}

// quadwords rounds a byte count up to whole quadwords.
func quadwords(n int) int {
	return (n + QuadwordSize - 1) / QuadwordSize
}
