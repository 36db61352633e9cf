// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/math/f32"

	// Import the Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/splat/coproc"
	"github.com/gogpu/splat/packet"
	"github.com/gogpu/splat/project"
)

// Config controls a GPU device. Zero values get defaults.
type Config struct {
	// DataQuadwords sizes the host mirror of data memory. Default
	// 4096 (64KB).
	DataQuadwords int

	// ProgramWords sizes instruction memory. Default 512.
	ProgramWords int

	// RawSink receives the payload of Raw passthrough records in
	// submission order. Nil discards them.
	RawSink io.Writer

	// ForceCPU skips kernel pipeline creation: packets still parse and
	// the device still opens, but kernels run on the host mirror. For
	// testing and diagnostics.
	ForceCPU bool

	// Synchronous makes Submit execute the packet before returning.
	Synchronous bool

	// Logger receives device events. Nil discards.
	Logger *slog.Logger
}

// Device is a GPU-backed implementation of coproc.Device.
//
// Data memory lives on the host; the packet interpreter writes into it
// exactly as the simulator does, so the memory layout contract holds
// byte for byte. Kernel invocations ship the batch to the GPU through
// the compiled compute pipelines and read the output block back. When
// the pipelines are unavailable the kernels run on the host mirror
// instead, which is the same algorithm the shaders implement.
type Device struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex // guards memory and program during execution
	interp  coproc.Interp
	program []uint64

	busy    atomic.Bool
	lastErr atomic.Pointer[error]

	instance hal.Instance
	hdev     hal.Device
	queue    hal.Queue
	disp     *dispatcher

	// gpuCompute is true when the kernel pipelines compiled and
	// dispatch goes to the GPU.
	gpuCompute bool
}

var _ coproc.Device = (*Device)(nil)

// NewDevice opens a GPU adapter and compiles the kernel pipelines.
// It fails when no adapter is available, so callers can fall back to
// the simulator. Pipeline compilation failure is not fatal: the device
// opens with kernels running on the host mirror.
func NewDevice(cfg Config) (*Device, error) {
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

	if err := d.initGPU(); err != nil {
		return nil, err
	}
	return d, nil
}

// initGPU creates a standalone Vulkan device for compute use and
// builds the kernel pipelines.
func (d *Device) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return errors.New("wgpu: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("wgpu: create instance: %w", err)
	}
	d.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		d.instance = nil
		return errors.New("wgpu: no GPU adapters found")
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		d.instance = nil
		return fmt.Errorf("wgpu: open device: %w", err)
	}
	d.hdev = openDev.Device
	d.queue = openDev.Queue

	if d.cfg.ForceCPU {
		d.log.Debug("kernel pipelines skipped, host mirror forced")
		return nil
	}

	disp := newDispatcher(d.hdev, d.queue, d.log)
	if err := disp.init(); err != nil {
		d.log.Warn("kernel pipelines unavailable, using host mirror", "error", err)
		return nil
	}
	d.disp = disp
	d.gpuCompute = true
	d.log.Info("GPU device opened", "adapter", selected.Info.Name)
	return nil
}

// Name implements coproc.Device.
func (d *Device) Name() string { return "wgpu" }

// ProgramCapacity implements coproc.Device.
func (d *Device) ProgramCapacity() int { return d.cfg.ProgramWords }

// DataCapacity implements coproc.Device.
func (d *Device) DataCapacity() int { return d.cfg.DataQuadwords }

// GPUCompute reports whether kernels dispatch to the GPU rather than
// the host mirror.
func (d *Device) GPUCompute() bool { return d.gpuCompute }

// LoadProgram implements coproc.Device. The GPU executes compiled
// pipelines, not the image words, but the image header still selects
// the kernel at invoke time, so the words are kept.
func (d *Device) LoadProgram(addr int, words []uint64) error {
	if d.busy.Load() {
		return errors.New("wgpu: program load while busy")
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

// Submit implements coproc.Device.
func (d *Device) Submit(pkt []byte) error {
	if d.busy.Load() {
		return errors.New("wgpu: submit while busy")
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
// nil.
func (d *Device) ExecErr() error {
	if p := d.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// ReadBack implements coproc.Device.
func (d *Device) ReadBack(dst []byte, addr uint32) error {
	if d.busy.Load() {
		return errors.New("wgpu: readback while busy")
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

// Reset implements coproc.Device. GPU pipelines survive a reset; only
// memory and program state clear.
func (d *Device) Reset() error {
	d.busy.Store(false)
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.interp.Mem)
	clear(d.program)
	d.lastErr.Store(nil)
	return nil
}

// Close implements coproc.Device. It releases all GPU resources; the
// device cannot be reused afterwards.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disp != nil {
		d.disp.close()
		d.disp = nil
	}
	if d.hdev != nil {
		d.hdev.Destroy()
		d.hdev = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
	d.queue = nil
	d.gpuCompute = false
	return nil
}

// invoke dispatches the kernel whose image header sits at the given
// instruction address. GPU dispatch failures fall back to the host
// mirror so a driver hiccup degrades to slower frames, not lost ones.
func (d *Device) invoke(addr uint32) error {
	if int(addr) >= len(d.program) {
		return fmt.Errorf("%w: invoke at word %d of %d", coproc.ErrBadAddress, addr, len(d.program))
	}
	id := coproc.KernelIDFromHeader(d.program[addr])
	if id == 0 {
		return fmt.Errorf("wgpu: no kernel image at word %d", addr)
	}

	cam, fr, hdr, splats, err := d.interp.LoadBatch()
	if err != nil {
		return err
	}

	switch id {
	case 1: // gaussian-projection
		if d.gpuCompute {
			out, gpuErr := d.disp.projectBatch(cam, fr, splats)
			if gpuErr == nil {
				return d.interp.Store(hdr.OutAddr, out)
			}
			d.log.Warn("GPU projection failed, using host mirror", "error", gpuErr)
		}
		out := make([]project.TransformedSplat, len(splats))
		project.ProjectBatch(out, splats, cam, fr)
		return d.interp.Store(hdr.OutAddr, coproc.EncodeTransformed(out))

	case 2: // frustum-culling
		if d.gpuCompute {
			out, gpuErr := d.disp.cullBatch(cam, fr, splats)
			if gpuErr == nil {
				return d.interp.Store(hdr.OutAddr, out)
			}
			d.log.Warn("GPU culling failed, using host mirror", "error", gpuErr)
		}
		flags := make([]byte, len(splats)*packet.QuadwordSize)
		for i := range splats {
			center := f32.Vec3{splats[i].Pos[0], splats[i].Pos[1], splats[i].Pos[2]}
			if project.SphereVisible(fr, center, project.EffectiveRadius(splats[i].Cov)) {
				binary.LittleEndian.PutUint32(flags[i*packet.QuadwordSize:], 1)
			}
		}
		return d.interp.Store(hdr.OutAddr, flags)

	default:
		return fmt.Errorf("wgpu: kernel ID %d not implemented", id)
	}
}
