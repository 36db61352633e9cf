// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package coproc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// fakeDevice records calls and completes batches on demand.
type fakeDevice struct {
	capacity int
	busy     atomic.Bool
	hang     bool

	loads   []int // chunk sizes in words
	submits int
	resets  int
}

func (d *fakeDevice) Name() string         { return "fake" }
func (d *fakeDevice) ProgramCapacity() int { return d.capacity }
func (d *fakeDevice) DataCapacity() int    { return 1024 }

func (d *fakeDevice) LoadProgram(addr int, words []uint64) error {
	d.loads = append(d.loads, len(words))
	return nil
}

func (d *fakeDevice) Submit(pkt []byte) error {
	d.submits++
	d.busy.Store(true)
	if !d.hang {
		// Complete promptly on a background timer, like real hardware.
		go func() {
			time.Sleep(time.Millisecond)
			d.busy.Store(false)
		}()
	}
	return nil
}

func (d *fakeDevice) Busy() bool { return d.busy.Load() }

func (d *fakeDevice) ReadBack(dst []byte, addr uint32) error { return nil }

func (d *fakeDevice) Reset() error {
	d.resets++
	d.busy.Store(false)
	return nil
}

func (d *fakeDevice) Close() error { return nil }

func newTestChannel(dev *fakeDevice) *Channel {
	return NewChannel(dev, Config{
		BufferBaseA: 0x100,
		BufferBaseB: 0x300,
		WaitTimeout: 50 * time.Millisecond,
	})
}

func TestUploadKernelChunks(t *testing.T) {
	dev := &fakeDevice{capacity: 4096}
	ch := newTestChannel(dev)

	if err := ch.UploadKernel(KernelProjection); err != nil {
		t.Fatal(err)
	}

	size, _ := KernelSize(KernelProjection)
	total := 0
	for _, n := range dev.loads {
		if n > 256 {
			t.Errorf("chunk of %d words exceeds the transfer granularity", n)
		}
		total += n
	}
	if total != size {
		t.Errorf("uploaded %d words, want %d", total, size)
	}
	if ch.State() != StateIdle {
		t.Errorf("state after upload = %s, want Idle", ch.State())
	}
}

func TestUploadKernelTruncates(t *testing.T) {
	// Instruction memory smaller than the projection kernel image.
	dev := &fakeDevice{capacity: 300}
	ch := newTestChannel(dev)

	if err := ch.UploadKernel(KernelProjection); err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, n := range dev.loads {
		total += n
	}
	if total != 300 {
		t.Errorf("uploaded %d words, want truncation to 300", total)
	}
}

func TestUploadUnknownKernel(t *testing.T) {
	ch := newTestChannel(&fakeDevice{capacity: 4096})
	if err := ch.UploadKernel("perlin-noise"); !errors.Is(err, ErrUnknownKernel) {
		t.Errorf("err = %v, want ErrUnknownKernel", err)
	}
}

func TestSubmitRequiresKernel(t *testing.T) {
	ch := newTestChannel(&fakeDevice{capacity: 4096})
	if err := ch.SubmitBatch([]byte{0}); !errors.Is(err, ErrNoKernel) {
		t.Errorf("err = %v, want ErrNoKernel", err)
	}
}

func TestDoubleSubmitRejected(t *testing.T) {
	dev := &fakeDevice{capacity: 4096, hang: true}
	ch := newTestChannel(dev)
	if err := ch.UploadKernel(KernelProjection); err != nil {
		t.Fatal(err)
	}

	if err := ch.SubmitBatch([]byte{1}); err != nil {
		t.Fatal(err)
	}
	if err := ch.SubmitBatch([]byte{2}); !errors.Is(err, ErrBusy) {
		t.Errorf("second submit = %v, want ErrBusy", err)
	}
	if dev.submits != 1 {
		t.Errorf("device saw %d submits, want 1: rejected submits must not be queued", dev.submits)
	}
}

func TestSubmitWaitCycle(t *testing.T) {
	dev := &fakeDevice{capacity: 4096}
	ch := newTestChannel(dev)
	if err := ch.UploadKernel(KernelProjection); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := ch.SubmitBatch([]byte{byte(i)}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if got := ch.State(); got != StateKernelRunning {
			t.Errorf("state after submit = %s, want KernelRunning", got)
		}
		if err := ch.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
		if got := ch.State(); got != StateIdle {
			t.Errorf("state after wait = %s, want Idle", got)
		}
	}

	submits, faults := ch.Stats()
	if submits != 3 || faults != 0 {
		t.Errorf("stats = %d submits %d faults, want 3, 0", submits, faults)
	}
}

func TestWaitWithoutSubmit(t *testing.T) {
	ch := newTestChannel(&fakeDevice{capacity: 4096})
	if err := ch.Wait(context.Background()); err == nil {
		t.Error("Wait without a submit succeeded")
	}
}

func TestDoubleBufferAlternates(t *testing.T) {
	dev := &fakeDevice{capacity: 4096}
	ch := newTestChannel(dev)
	if err := ch.UploadKernel(KernelProjection); err != nil {
		t.Fatal(err)
	}

	if got := ch.PendingBase(); got != 0x100 {
		t.Errorf("first base = 0x%X, want 0x100", got)
	}
	ch.SubmitBatch([]byte{1})
	if got := ch.PendingBase(); got != 0x300 {
		t.Errorf("second base = 0x%X, want 0x300", got)
	}
	ch.Wait(context.Background())
	ch.SubmitBatch([]byte{2})
	if got := ch.PendingBase(); got != 0x100 {
		t.Errorf("third base = 0x%X, want 0x100", got)
	}
}

func TestWaitTimeoutFaultsChannel(t *testing.T) {
	dev := &fakeDevice{capacity: 4096, hang: true}
	ch := NewChannel(dev, Config{
		WaitTimeout:  5 * time.Millisecond,
		PollInterval: time.Millisecond,
	})
	if err := ch.UploadKernel(KernelProjection); err != nil {
		t.Fatal(err)
	}
	if err := ch.SubmitBatch([]byte{1}); err != nil {
		t.Fatal(err)
	}

	if err := ch.Wait(context.Background()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("wait on a hung device = %v, want ErrTimeout", err)
	}
	if ch.State() != StateFaulted {
		t.Errorf("state = %s, want Faulted", ch.State())
	}

	// Everything except reset is refused while faulted.
	if err := ch.SubmitBatch([]byte{2}); !errors.Is(err, ErrFaulted) {
		t.Errorf("submit while faulted = %v, want ErrFaulted", err)
	}
	if err := ch.UploadKernel(KernelProjection); !errors.Is(err, ErrFaulted) {
		t.Errorf("upload while faulted = %v, want ErrFaulted", err)
	}

	// Reset recovers and re-uploads the kernel.
	loadsBefore := len(dev.loads)
	if err := ch.ResetChannel(); err != nil {
		t.Fatal(err)
	}
	if dev.resets != 1 {
		t.Errorf("device resets = %d, want 1", dev.resets)
	}
	if len(dev.loads) == loadsBefore {
		t.Error("reset did not re-upload the kernel")
	}
	if ch.State() != StateIdle {
		t.Errorf("state after reset = %s, want Idle", ch.State())
	}

	dev.hang = false
	if err := ch.SubmitBatch([]byte{3}); err != nil {
		t.Errorf("submit after recovery = %v", err)
	}
	if err := ch.Wait(context.Background()); err != nil {
		t.Errorf("wait after recovery = %v", err)
	}
}

func TestWaitContextCancel(t *testing.T) {
	dev := &fakeDevice{capacity: 4096, hang: true}
	ch := NewChannel(dev, Config{
		WaitTimeout:  time.Minute,
		PollInterval: time.Millisecond,
	})
	if err := ch.UploadKernel(KernelProjection); err != nil {
		t.Fatal(err)
	}
	if err := ch.SubmitBatch([]byte{1}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := ch.Wait(ctx); err == nil {
		t.Fatal("canceled wait succeeded")
	}
	if ch.State() != StateFaulted {
		t.Errorf("state = %s, want Faulted", ch.State())
	}
}

func TestKernelWordsDeterministic(t *testing.T) {
	a, err := KernelWords(KernelProjection)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := KernelWords(KernelProjection)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("image word %d differs between builds", i)
		}
	}

	if got := KernelIDFromHeader(a[0]); got != kernelIDProjection {
		t.Errorf("header ID = %d, want %d", got, kernelIDProjection)
	}
	if got := KernelIDFromHeader(0xDEADBEEF); got != 0 {
		t.Errorf("bogus header decoded as kernel %d", got)
	}

	cull, _ := KernelWords(KernelCulling)
	if got := KernelIDFromHeader(cull[0]); got != kernelIDCulling {
		t.Errorf("culling header ID = %d, want %d", got, kernelIDCulling)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "Idle"},
		{StateKernelRunning, "KernelRunning"},
		{StateFaulted, "Faulted"},
		{State(200), "State(200)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State.String() = %q, want %q", got, tt.want)
		}
	}
}
