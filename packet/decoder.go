// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Decoder errors.
var (
	// ErrTruncated is returned when the stream ends inside a record or
	// without a terminator.
	ErrTruncated = errors.New("packet: truncated stream")

	// ErrBadOpcode is returned for an opcode the protocol does not
	// define.
	ErrBadOpcode = errors.New("packet: unknown opcode")
)

// Record is one decoded command.
type Record struct {
	Op     Opcode
	Format Format
	Dest   uint32
	Count  uint32
	Imm    uint32

	// Payload aliases the decoder's input for Unpack and Raw records:
	// exactly PayloadSize/Count bytes, padding stripped. Nil otherwise.
	Payload []byte

	// Terminator is set on the final record of the packet.
	Terminator bool
}

// Decoder walks a packet record by record. It is the reference
// consumer: the simulated device parses with it, and tests use it to
// check what a Builder emitted.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns a Decoder over a finalized packet.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Next decodes the record at the cursor. After the terminator record is
// returned, subsequent calls keep returning it without advancing.
func (d *Decoder) Next() (Record, error) {
	if d.off+QuadwordSize > len(d.buf) {
		return Record{}, ErrTruncated
	}

	word0 := binary.LittleEndian.Uint32(d.buf[d.off:])
	rec := Record{
		Op:         Opcode(word0 & 0xFF),
		Format:     Format(word0 >> 8 & 0xFF),
		Dest:       binary.LittleEndian.Uint32(d.buf[d.off+4:]),
		Count:      binary.LittleEndian.Uint32(d.buf[d.off+8:]),
		Imm:        binary.LittleEndian.Uint32(d.buf[d.off+12:]),
		Terminator: word0>>16&flagTerminator != 0,
	}

	var payloadLen int
	switch rec.Op {
	case OpNop, OpSetCycle, OpSetOffset, OpSetBase, OpFlush, OpInvoke:
		// Tag only.
	case OpUnpack:
		payloadLen = rec.Format.PayloadSize(int(rec.Count))
	case OpRaw:
		payloadLen = int(rec.Count)
	default:
		return Record{}, fmt.Errorf("%w: 0x%02X at quadword %d", ErrBadOpcode, uint8(rec.Op), d.off/QuadwordSize)
	}

	total := QuadwordSize + quadwords(payloadLen)*QuadwordSize
	if d.off+total > len(d.buf) {
		return Record{}, fmt.Errorf("%w: record at quadword %d runs past end", ErrTruncated, d.off/QuadwordSize)
	}
	if payloadLen > 0 {
		rec.Payload = d.buf[d.off+QuadwordSize : d.off+QuadwordSize+payloadLen]
	}

	if !rec.Terminator {
		d.off += total
	}
	return rec, nil
}

// Records decodes the whole packet through the terminator.
func (d *Decoder) Records() ([]Record, error) {
	var out []Record
	for {
		rec, err := d.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
		if rec.Terminator {
			return out, nil
		}
	}
}
