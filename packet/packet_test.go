// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package packet

import (
	"bytes"
	"errors"
	"testing"
)

func TestFormatOf(t *testing.T) {
	// All sixteen shapes are valid.
	for _, width := range []int{5, 8, 16, 32} {
		for lanes := 1; lanes <= 4; lanes++ {
			f, ok := FormatOf(width, lanes)
			if !ok {
				t.Fatalf("FormatOf(%d, %d) rejected", width, lanes)
			}
			if f.WidthBits() != width || f.Lanes() != lanes {
				t.Errorf("FormatOf(%d, %d) decoded as %d-bit x%d", width, lanes, f.WidthBits(), f.Lanes())
			}
		}
	}

	invalid := []struct{ width, lanes int }{
		{7, 1}, {32, 0}, {32, 5}, {0, 2}, {64, 1},
	}
	for _, tt := range invalid {
		if _, ok := FormatOf(tt.width, tt.lanes); ok {
			t.Errorf("FormatOf(%d, %d) accepted", tt.width, tt.lanes)
		}
	}
}

func TestPayloadSize(t *testing.T) {
	tests := []struct {
		name  string
		width int
		lanes int
		count int
		want  int
	}{
		{"one vec4 float", 32, 4, 1, 16},
		{"ten vec3 shorts", 16, 3, 10, 60},
		{"bytes", 8, 1, 7, 7},
		{"packed 5-bit triples", 5, 3, 4, 8}, // 60 bits -> 8 bytes
		{"single 5-bit lane", 5, 1, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := FormatOf(tt.width, tt.lanes)
			if got := f.PayloadSize(tt.count); got != tt.want {
				t.Errorf("PayloadSize(%d) = %d, want %d", tt.count, got, tt.want)
			}
		})
	}
}

func TestBuilderSizeAccounting(t *testing.T) {
	b := NewBuilder(64)

	if err := b.AppendSetBase(0); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendSetOffset(16); err != nil {
		t.Fatal(err)
	}
	f, _ := FormatOf(32, 4)
	data := make([]byte, f.PayloadSize(3)) // 48 bytes = 3 quadwords
	if err := b.AppendUnpack(0x40, f, 3, data); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendInvoke(0); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendFlush(); err != nil {
		t.Fatal(err)
	}

	n, err := b.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	// 2 setup tags + unpack tag + 3 payload + invoke + flush + terminator.
	if want := 9; n != want {
		t.Errorf("Finalize() = %d quadwords, want %d", n, want)
	}
	if len(b.Bytes()) != n*QuadwordSize {
		t.Errorf("Bytes() length %d, want %d", len(b.Bytes()), n*QuadwordSize)
	}
}

func TestBuilderPayloadPadding(t *testing.T) {
	b := NewBuilder(8)
	f, _ := FormatOf(8, 1)
	if err := b.AppendUnpack(0, f, 5, make([]byte, 5)); err != nil {
		t.Fatal(err)
	}
	// Tag + one padded payload quadword.
	if got := b.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestBuilderRejections(t *testing.T) {
	f32x4, _ := FormatOf(32, 4)

	tests := []struct {
		name    string
		run     func(b *Builder) error
		wantErr error
	}{
		{"nil data", func(b *Builder) error {
			return b.AppendUnpack(0, f32x4, 1, nil)
		}, ErrNilData},
		{"zero count", func(b *Builder) error {
			return b.AppendUnpack(0, f32x4, 0, []byte{1})
		}, ErrZeroSize},
		{"empty data", func(b *Builder) error {
			return b.AppendUnpack(0, f32x4, 1, []byte{})
		}, ErrZeroSize},
		{"size mismatch", func(b *Builder) error {
			return b.AppendUnpack(0, f32x4, 2, make([]byte, 16))
		}, ErrSizeMismatch},
		{"raw nil", func(b *Builder) error {
			return b.AppendRaw(nil)
		}, ErrNilData},
		{"raw empty", func(b *Builder) error {
			return b.AppendRaw([]byte{})
		}, ErrZeroSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(8)
			if err := tt.run(b); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if b.Len() != 0 {
				t.Errorf("rejected append modified the packet: %d quadwords", b.Len())
			}
		})
	}
}

func TestBuilderCapacity(t *testing.T) {
	b := NewBuilder(2) // room for one record plus terminator

	if err := b.AppendFlush(); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendFlush(); !errors.Is(err, ErrPacketFull) {
		t.Errorf("err = %v, want ErrPacketFull", err)
	}
	// The failed append must not have consumed the terminator's slot.
	if _, err := b.Finalize(); err != nil {
		t.Errorf("Finalize() after full = %v", err)
	}
}

func TestBuilderFinalizeSeals(t *testing.T) {
	b := NewBuilder(4)
	if _, err := b.Finalize(); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendFlush(); !errors.Is(err, ErrFinalized) {
		t.Errorf("append after Finalize = %v, want ErrFinalized", err)
	}
	if _, err := b.Finalize(); !errors.Is(err, ErrFinalized) {
		t.Errorf("double Finalize = %v, want ErrFinalized", err)
	}

	b.Reset()
	if err := b.AppendFlush(); err != nil {
		t.Errorf("append after Reset = %v", err)
	}
}

func TestDecoderRoundTrip(t *testing.T) {
	b := NewBuilder(32)
	f16x3, _ := FormatOf(16, 3)
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	b.AppendSetCycle(1, 4)
	b.AppendSetBase(0x100)
	b.AppendSetOffset(0x80)
	b.AppendUnpack(0x20, f16x3, 2, payload)
	b.AppendRaw([]byte{0xAA, 0xBB, 0xCC})
	b.AppendInvoke(0x8)
	b.AppendFlush()
	if _, err := b.Finalize(); err != nil {
		t.Fatal(err)
	}

	recs, err := NewDecoder(b.Bytes()).Records()
	if err != nil {
		t.Fatal(err)
	}

	wantOps := []Opcode{OpSetCycle, OpSetBase, OpSetOffset, OpUnpack, OpRaw, OpInvoke, OpFlush, OpNop}
	if len(recs) != len(wantOps) {
		t.Fatalf("decoded %d records, want %d", len(recs), len(wantOps))
	}
	for i, op := range wantOps {
		if recs[i].Op != op {
			t.Errorf("record %d op = %v, want %v", i, recs[i].Op, op)
		}
	}

	if recs[0].Imm != 1|4<<8 {
		t.Errorf("cycle imm = 0x%X", recs[0].Imm)
	}
	if recs[1].Imm != 0x100 || recs[2].Imm != 0x80 {
		t.Errorf("base/offset = 0x%X/0x%X", recs[1].Imm, recs[2].Imm)
	}
	if recs[3].Dest != 0x20 || recs[3].Count != 2 || !bytes.Equal(recs[3].Payload, payload) {
		t.Errorf("unpack decoded as dest 0x%X count %d payload %v", recs[3].Dest, recs[3].Count, recs[3].Payload)
	}
	if !bytes.Equal(recs[4].Payload, []byte{0xAA, 0xBB, 0xCC}) {
		t.Errorf("raw payload = %v", recs[4].Payload)
	}
	if recs[5].Imm != 0x8 {
		t.Errorf("invoke addr = 0x%X", recs[5].Imm)
	}
	if !recs[7].Terminator {
		t.Error("final record not flagged as terminator")
	}
}

func TestDecoderStopsAtTerminator(t *testing.T) {
	b := NewBuilder(8)
	b.AppendFlush()
	b.Finalize()

	d := NewDecoder(b.Bytes())
	d.Next() // flush
	term, err := d.Next()
	if err != nil || !term.Terminator {
		t.Fatalf("Next() = %+v, %v", term, err)
	}
	// The cursor parks on the terminator.
	again, err := d.Next()
	if err != nil || !again.Terminator {
		t.Errorf("Next() after terminator = %+v, %v", again, err)
	}
}

func TestDecoderTruncated(t *testing.T) {
	b := NewBuilder(8)
	f, _ := FormatOf(32, 4)
	b.AppendUnpack(0, f, 2, make([]byte, 32))
	b.Finalize()

	// Cut the stream inside the payload.
	cut := b.Bytes()[:QuadwordSize+8]
	if _, err := NewDecoder(cut).Records(); !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}

	// Missing terminator.
	noTerm := b.Bytes()[:len(b.Bytes())-QuadwordSize]
	if _, err := NewDecoder(noTerm).Records(); !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestDecoderBadOpcode(t *testing.T) {
	raw := make([]byte, QuadwordSize)
	raw[0] = 0x7F
	if _, err := NewDecoder(raw).Next(); !errors.Is(err, ErrBadOpcode) {
		t.Errorf("err = %v, want ErrBadOpcode", err)
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "Nop"},
		{OpUnpack, "Unpack"},
		{OpInvoke, "Invoke"},
		{Opcode(0x99), "Opcode(0x99)"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}
