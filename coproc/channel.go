// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package coproc

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// State is the channel lifecycle state.
type State uint8

const (
	// StateIdle means the channel can accept an upload or a submit.
	StateIdle State = iota

	// StateUploadingKernel means a kernel image transfer is in flight.
	StateUploadingKernel

	// StateTransferring means a batch packet is being handed to the
	// device.
	StateTransferring

	// StateKernelRunning means the device is executing a batch.
	StateKernelRunning

	// StateDraining means Wait is polling for completion.
	StateDraining

	// StateFaulted means a wait timed out; only ResetChannel recovers.
	StateFaulted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateUploadingKernel:
		return "UploadingKernel"
	case StateTransferring:
		return "Transferring"
	case StateKernelRunning:
		return "KernelRunning"
	case StateDraining:
		return "Draining"
	case StateFaulted:
		return "Faulted"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Config controls a Channel. Zero values get defaults from NewChannel.
type Config struct {
	// BufferBaseA and BufferBaseB are the two double-buffer bases in
	// device data memory, in quadwords. Batches alternate between them
	// so the kernel can read one while the host fills the other.
	BufferBaseA uint32
	BufferBaseB uint32

	// UploadChunkWords is the transfer granularity of kernel uploads in
	// 64-bit words. Default 256.
	UploadChunkWords int

	// WaitTimeout bounds a single Wait call. Default 100ms.
	WaitTimeout time.Duration

	// PollInterval is the busy-poll period during Wait. Default 50us.
	PollInterval time.Duration

	// Logger receives channel lifecycle events. Nil discards.
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.UploadChunkWords <= 0 {
		c.UploadChunkWords = 256
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 100 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Microsecond
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Channel drives one Device through the upload/submit/wait cycle.
//
// A Channel is owned by a single goroutine; it has no internal locking.
// The state machine makes misuse loud: submitting while a batch is in
// flight or waiting without a submit are errors, never silent queueing.
type Channel struct {
	dev   Device
	cfg   Config
	state State

	// kernel is the most recently uploaded kernel name, re-uploaded
	// on reset.
	kernel string

	// activeBuf selects which double-buffer base the next submit
	// targets: 0 for A, 1 for B.
	activeBuf int

	// Counters for diagnostics.
	submits uint64
	faults  uint64
}

// NewChannel wraps a device in a channel. The device must be idle.
func NewChannel(dev Device, cfg Config) *Channel {
	cfg.applyDefaults()
	return &Channel{dev: dev, cfg: cfg}
}

// State returns the current channel state.
func (ch *Channel) State() State {
	return ch.state
}

// Device returns the underlying device.
func (ch *Channel) Device() Device {
	return ch.dev
}

// PendingBase returns the double-buffer base that the next SubmitBatch
// will target. Callers bake it into the packet's SetBase record.
func (ch *Channel) PendingBase() uint32 {
	if ch.activeBuf == 0 {
		return ch.cfg.BufferBaseA
	}
	return ch.cfg.BufferBaseB
}

// UploadKernel transfers a registered kernel's program image to the
// device in fixed-size chunks. An image larger than the device's
// instruction memory is truncated to fit, with a warning: a truncated
// kernel still dispatches, and dropping tail padding is harmless for
// the registered kernels.
func (ch *Channel) UploadKernel(name string) error {
	if ch.state == StateFaulted {
		return ErrFaulted
	}
	if ch.state != StateIdle {
		return fmt.Errorf("%w: state %s", ErrBusy, ch.state)
	}

	words, err := KernelWords(name)
	if err != nil {
		return err
	}

	capWords := ch.dev.ProgramCapacity()
	if len(words) > capWords {
		ch.cfg.Logger.Warn("kernel image truncated to instruction memory",
			"kernel", name,
			"image_words", len(words),
			"capacity_words", capWords)
		words = words[:capWords]
	}

	ch.state = StateUploadingKernel
	for off := 0; off < len(words); off += ch.cfg.UploadChunkWords {
		end := off + ch.cfg.UploadChunkWords
		if end > len(words) {
			end = len(words)
		}
		if err := ch.dev.LoadProgram(off, words[off:end]); err != nil {
			ch.state = StateIdle
			return fmt.Errorf("coproc: kernel upload at word %d: %w", off, err)
		}
	}
	ch.state = StateIdle
	ch.kernel = name

	ch.cfg.Logger.Debug("kernel uploaded",
		"kernel", name,
		"words", len(words),
		"device", ch.dev.Name())
	return nil
}

// SubmitBatch hands a finalized packet to the device and flips the
// double buffer. It fails with ErrBusy if the previous batch has not
// been waited for; submissions are never queued behind a running
// kernel.
func (ch *Channel) SubmitBatch(pkt []byte) error {
	switch ch.state {
	case StateFaulted:
		return ErrFaulted
	case StateIdle:
	default:
		return fmt.Errorf("%w: state %s", ErrBusy, ch.state)
	}
	if ch.kernel == "" {
		return ErrNoKernel
	}

	ch.state = StateTransferring
	if err := ch.dev.Submit(pkt); err != nil {
		ch.state = StateIdle
		return fmt.Errorf("coproc: submit: %w", err)
	}
	ch.state = StateKernelRunning
	ch.activeBuf = 1 - ch.activeBuf
	ch.submits++

	ch.cfg.Logger.Debug("batch submitted",
		"bytes", len(pkt),
		"next_base", ch.PendingBase(),
		"submits", ch.submits)
	return nil
}

// Wait polls the device until the submitted batch drains, the
// configured timeout passes, or ctx is canceled. On timeout the
// channel faults: in-flight state is unknown, so the only way forward
// is ResetChannel.
func (ch *Channel) Wait(ctx context.Context) error {
	switch ch.state {
	case StateFaulted:
		return ErrFaulted
	case StateKernelRunning:
	default:
		return fmt.Errorf("coproc: wait without submit (state %s)", ch.state)
	}

	ch.state = StateDraining
	deadline := time.Now().Add(ch.cfg.WaitTimeout)
	for ch.dev.Busy() {
		if time.Now().After(deadline) {
			ch.state = StateFaulted
			ch.faults++
			ch.cfg.Logger.Error("kernel wait timed out, channel faulted",
				"timeout", ch.cfg.WaitTimeout,
				"device", ch.dev.Name())
			return ErrTimeout
		}
		select {
		case <-ctx.Done():
			ch.state = StateFaulted
			ch.faults++
			return fmt.Errorf("coproc: wait canceled: %w", ctx.Err())
		case <-time.After(ch.cfg.PollInterval):
		}
	}
	ch.state = StateIdle
	return nil
}

// ResetChannel recovers from a fault: the device is reset, the channel
// returns to idle, and the last kernel is re-uploaded since the reset
// wiped instruction memory.
func (ch *Channel) ResetChannel() error {
	if err := ch.dev.Reset(); err != nil {
		return fmt.Errorf("coproc: device reset: %w", err)
	}
	ch.state = StateIdle
	ch.activeBuf = 0

	ch.cfg.Logger.Info("channel reset", "device", ch.dev.Name())

	if ch.kernel != "" {
		name := ch.kernel
		ch.kernel = ""
		if err := ch.UploadKernel(name); err != nil {
			return err
		}
	}
	return nil
}

// Stats reports lifetime channel counters.
func (ch *Channel) Stats() (submits, faults uint64) {
	return ch.submits, ch.faults
}
