// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package coproc manages the transfer channel to a splat compute
// device. The Device interface abstracts over backends; the Channel
// drives a device through the upload/submit/wait cycle with double
// buffering.
package coproc

import "errors"

// Channel and device errors.
var (
	// ErrBusy is returned by SubmitBatch when the previous batch has
	// not been waited for. Submission is never queued.
	ErrBusy = errors.New("coproc: channel busy")

	// ErrNoKernel is returned by SubmitBatch before a kernel upload.
	ErrNoKernel = errors.New("coproc: no kernel loaded")

	// ErrTimeout is returned by Wait when the device does not drain in
	// time. The channel is faulted and must be reset.
	ErrTimeout = errors.New("coproc: wait timed out")

	// ErrFaulted is returned by operations on a faulted channel.
	ErrFaulted = errors.New("coproc: channel faulted, reset required")

	// ErrUnknownKernel is returned for a kernel name outside the
	// registry.
	ErrUnknownKernel = errors.New("coproc: unknown kernel")

	// ErrBadAddress is returned by devices for out-of-range memory
	// accesses.
	ErrBadAddress = errors.New("coproc: address out of range")
)

// Device is one splat compute backend. The software simulator and the
// GPU backend both implement it; the Channel drives either through the
// same state machine.
//
// Submit is asynchronous: it kicks the device and returns. Completion
// is observed by polling Busy. A Device is owned by a single Channel
// and is not safe for concurrent use, except Busy, which the channel
// polls while the device runs.
type Device interface {
	// Name identifies the backend for logs.
	Name() string

	// ProgramCapacity returns the size of instruction memory in
	// 64-bit words.
	ProgramCapacity() int

	// DataCapacity returns the size of data memory in quadwords.
	DataCapacity() int

	// LoadProgram writes kernel words at a word address in instruction
	// memory.
	LoadProgram(addr int, words []uint64) error

	// Submit hands a finalized packet to the device and starts
	// execution.
	Submit(pkt []byte) error

	// Busy reports whether a submitted packet is still executing.
	Busy() bool

	// ReadBack copies device data memory starting at a quadword
	// address into dst. Only valid while the device is not busy.
	ReadBack(dst []byte, addr uint32) error

	// Reset aborts any execution and clears device state. Loaded
	// programs are discarded.
	Reset() error

	// Close releases backend resources.
	Close() error
}
