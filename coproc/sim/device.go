// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package sim implements a software splat coprocessor.
//
// The device owns a flat quadword-addressed data memory and a word
// image of instruction memory, parses submitted packets with the shared
// interpreter, and executes kernels by calling the project package
// directly. It is the authoritative backend: results from any other
// backend are compared against it.
package sim

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/splat/coproc"
	"github.com/gogpu/splat/packet"
)

// Config controls a simulated device. Zero values get defaults.
type Config struct {
	// DataQuadwords sizes data memory. Default 4096 (64KB).
	DataQuadwords int

	// ProgramWords sizes instruction memory. Default 512.
	ProgramWords int

	// RawSink receives the payload of Raw passthrough records in
	// submission order. Nil discards them.
	RawSink io.Writer

	// Synchronous makes Submit execute the packet before returning,
	// for tests that want failures on the calling goroutine.
	Synchronous bool

	// Logger receives device events. Nil discards.
	Logger *slog.Logger
}

// Device is a software implementation of coproc.Device.
type Device struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex // guards memory and program during execution
	interp  coproc.Interp
	program []uint64

	busy    atomic.Bool
	lastErr atomic.Pointer[error]
}

var _ coproc.Device = (*Device)(nil)

// NewDevice returns an idle simulated device.
func NewDevice(cfg Config) *Device {
	if cfg.DataQuadwords <= 0 {
		cfg.DataQuadwords = 4096
	}
	if cfg.ProgramWords <= 0 {
		cfg.ProgramWords = 512
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	d := &Device{
		cfg:     cfg,
		log:     cfg.Logger,
		program: make([]uint64, cfg.ProgramWords),
	}
	d.interp = coproc.Interp{
		Mem:     make([]byte, cfg.DataQuadwords*packet.QuadwordSize),
		RawSink: cfg.RawSink,
		Invoke:  d.invoke,
	}
	return d
}

// Name implements coproc.Device.
func (d *Device) Name() string { return "sim" }

// ProgramCapacity implements coproc.Device.
func (d *Device) ProgramCapacity() int { return d.cfg.ProgramWords }

// DataCapacity implements coproc.Device.
func (d *Device) DataCapacity() int { return d.cfg.DataQuadwords }

// LoadProgram implements coproc.Device.
func (d *Device) LoadProgram(addr int, words []uint64) error {
	if d.busy.Load() {
		return errors.New("sim: program load while busy")
	}
	if addr < 0 || addr+len(words) > len(d.program) {
		return fmt.Errorf("%w: program words [%d, %d) of %d",
			coproc.ErrBadAddress, addr, addr+len(words), len(d.program))
	}
	d.mu.Lock()
	copy(d.program[addr:], words)
	d.mu.Unlock()
	return nil
}

// Submit implements coproc.Device. The packet executes on a background
// goroutine; the device stays busy until the terminator record is
// reached or execution faults.
func (d *Device) Submit(pkt []byte) error {
	if d.busy.Load() {
		return errors.New("sim: submit while busy")
	}
	d.busy.Store(true)
	d.lastErr.Store(nil)

	if d.cfg.Synchronous {
		d.run(pkt)
		return nil
	}
	go d.run(pkt)
	return nil
}

func (d *Device) run(pkt []byte) {
	defer d.busy.Store(false)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.interp.Execute(pkt); err != nil {
		e := err
		d.lastErr.Store(&e)
		d.log.Error("packet execution failed", "error", err)
	}
}

// Busy implements coproc.Device.
func (d *Device) Busy() bool { return d.busy.Load() }

// ExecErr returns the error from the most recent packet execution, or
// nil. The Device interface has no asynchronous error path; the
// simulator keeps one for tests and diagnostics.
func (d *Device) ExecErr() error {
	if p := d.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// ReadBack implements coproc.Device.
func (d *Device) ReadBack(dst []byte, addr uint32) error {
	if d.busy.Load() {
		return errors.New("sim: readback while busy")
	}
	start := int(addr) * packet.QuadwordSize
	if start < 0 || start+len(dst) > len(d.interp.Mem) {
		return fmt.Errorf("%w: readback [%d, %d) of %d bytes",
			coproc.ErrBadAddress, start, start+len(dst), len(d.interp.Mem))
	}
	d.mu.Lock()
	copy(dst, d.interp.Mem[start:])
	d.mu.Unlock()
	return nil
}

// Reset implements coproc.Device.
func (d *Device) Reset() error {
	d.busy.Store(false)
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.interp.Mem)
	clear(d.program)
	d.lastErr.Store(nil)
	return nil
}

// Close implements coproc.Device.
func (d *Device) Close() error { return nil }
