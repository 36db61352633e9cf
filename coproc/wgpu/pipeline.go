// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/splat/coproc"
	"github.com/gogpu/splat/packet"
	"github.com/gogpu/splat/project"
)

//go:embed shaders/project.wgsl
var projectShaderWGSL string

//go:embed shaders/cull.wgsl
var cullShaderWGSL string

const (
	// kernelWGSize is the workgroup size used by both kernels. It
	// matches WG_SIZE in the WGSL sources.
	kernelWGSize = 64

	// paramsSize is the byte size of the Params uniform: view and
	// projection rows, viewport, six planes, count. 16 vec4s.
	paramsSize = 256

	// fenceTimeout bounds a single kernel dispatch.
	fenceTimeout = 5 * time.Second
)

// kernelStage indexes the compiled compute pipelines.
type kernelStage int

const (
	stageProjection kernelStage = iota
	stageCulling
	stageCount
)

func (s kernelStage) String() string {
	switch s {
	case stageProjection:
		return coproc.KernelProjection
	case stageCulling:
		return coproc.KernelCulling
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// dispatcher owns the compiled kernel pipelines and runs batches
// through them. Shaders are compiled to SPIR-V with naga at init and
// kept for the lifetime of the device.
type dispatcher struct {
	device hal.Device
	queue  hal.Queue
	log    *slog.Logger

	pipelines [stageCount]hal.ComputePipeline
	layouts   [stageCount]hal.PipelineLayout
	bgLayouts [stageCount]hal.BindGroupLayout
	modules   [stageCount]hal.ShaderModule

	initialized bool
}

var stageSources = [stageCount]string{
	stageProjection: projectShaderWGSL,
	stageCulling:    cullShaderWGSL,
}

func newDispatcher(device hal.Device, queue hal.Queue, log *slog.Logger) *dispatcher {
	return &dispatcher{device: device, queue: queue, log: log}
}

// stageLayoutEntries returns the bind group layout for a kernel stage.
// Both kernels share the same shape: uniform params, read-only splat
// input, read-write output.
func stageLayoutEntries() []gputypes.BindGroupLayoutEntry {
	return []gputypes.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		},
		{
			Binding:    1,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
		},
		{
			Binding:    2,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		},
	}
}

// init compiles both kernel shaders and builds their pipelines.
func (d *dispatcher) init() error {
	if d.initialized {
		return nil
	}

	for i := kernelStage(0); i < stageCount; i++ {
		spirvBytes, err := naga.Compile(stageSources[i])
		if err != nil {
			d.destroyPartial(i)
			return fmt.Errorf("wgpu: compile %s shader: %w", i, err)
		}
		spirv := make([]uint32, len(spirvBytes)/4)
		for j := range spirv {
			spirv[j] = binary.LittleEndian.Uint32(spirvBytes[j*4:])
		}

		module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  "splat_" + i.String(),
			Source: hal.ShaderSource{SPIRV: spirv},
		})
		if err != nil {
			d.destroyPartial(i)
			return fmt.Errorf("wgpu: create %s shader module: %w", i, err)
		}
		d.modules[i] = module

		bgLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   "splat_" + i.String() + "_bgl",
			Entries: stageLayoutEntries(),
		})
		if err != nil {
			d.destroyPartial(i + 1)
			return fmt.Errorf("wgpu: create %s bind group layout: %w", i, err)
		}
		d.bgLayouts[i] = bgLayout

		layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
			Label:            "splat_" + i.String() + "_pl",
			BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
		})
		if err != nil {
			d.destroyPartial(i + 1)
			return fmt.Errorf("wgpu: create %s pipeline layout: %w", i, err)
		}
		d.layouts[i] = layout

		pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  "splat_" + i.String(),
			Layout: layout,
			Compute: hal.ComputeState{
				Module:     module,
				EntryPoint: "main",
			},
		})
		if err != nil {
			d.destroyPartial(i + 1)
			return fmt.Errorf("wgpu: create %s pipeline: %w", i, err)
		}
		d.pipelines[i] = pipeline

		d.log.Debug("kernel pipeline created",
			"kernel", i.String(), "shader_bytes", len(stageSources[i]))
	}

	d.initialized = true
	return nil
}

// destroyPartial cleans up stages [0, upTo) after a failed init.
func (d *dispatcher) destroyPartial(upTo kernelStage) {
	for j := kernelStage(0); j < upTo; j++ {
		if d.pipelines[j] != nil {
			d.device.DestroyComputePipeline(d.pipelines[j])
			d.pipelines[j] = nil
		}
		if d.layouts[j] != nil {
			d.device.DestroyPipelineLayout(d.layouts[j])
			d.layouts[j] = nil
		}
		if d.bgLayouts[j] != nil {
			d.device.DestroyBindGroupLayout(d.bgLayouts[j])
			d.bgLayouts[j] = nil
		}
		if d.modules[j] != nil {
			d.device.DestroyShaderModule(d.modules[j])
			d.modules[j] = nil
		}
	}
}

// close releases all pipeline resources.
func (d *dispatcher) close() {
	d.destroyPartial(stageCount)
	d.initialized = false
}

// workgroups returns the dispatch width for n splats: ceiling division
// by the workgroup size.
func workgroups(n int) uint32 {
	if n <= 0 {
		return 0
	}
	return uint32((n + kernelWGSize - 1) / kernelWGSize)
}

// paramsBytes serializes the Params uniform: view rows, projection
// rows, viewport, frustum planes, splat count. The layout matches the
// Params struct in both WGSL sources.
func paramsBytes(cam *project.Camera, fr project.Frustum, count int) []byte {
	buf := make([]byte, 0, paramsSize)
	f := func(v float32) {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	for _, v := range cam.View {
		f(v)
	}
	for _, v := range cam.Proj {
		f(v)
	}
	f(cam.ViewportW)
	f(cam.ViewportH)
	f(0)
	f(0)
	for _, plane := range fr {
		for _, v := range plane {
			f(v)
		}
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(count))
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	return buf
}

// run uploads the batch, dispatches one kernel stage, and reads the
// output back through a staging buffer. in is the encoded splat block;
// outSize is the output block size in bytes. One submit, one fence.
func (d *dispatcher) run(stage kernelStage, params, in []byte, outSize uint64) ([]byte, error) {
	if !d.initialized {
		return nil, fmt.Errorf("wgpu: dispatcher not initialized")
	}

	paramsBuf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "splat_params",
		Size:  uint64(len(params)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create params buffer: %w", err)
	}
	defer d.device.DestroyBuffer(paramsBuf)

	inBuf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "splat_input",
		Size:  uint64(len(in)),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create input buffer: %w", err)
	}
	defer d.device.DestroyBuffer(inBuf)

	outBuf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "splat_output",
		Size:  outSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create output buffer: %w", err)
	}
	defer d.device.DestroyBuffer(outBuf)

	stagingBuf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "splat_staging",
		Size:  outSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(stagingBuf)

	d.queue.WriteBuffer(paramsBuf, 0, params)
	d.queue.WriteBuffer(inBuf, 0, in)

	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "splat_" + stage.String() + "_bg",
		Layout: d.bgLayouts[stage],
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: paramsBuf.NativeHandle()}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: inBuf.NativeHandle()}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: outBuf.NativeHandle()}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create bind group: %w", err)
	}
	defer d.device.DestroyBindGroup(bg)

	count := int(binary.LittleEndian.Uint32(params[paramsSize-16:]))

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "splat_kernel",
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("splat_kernel"); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{
		Label: "splat_" + stage.String(),
	})
	pass.SetPipeline(d.pipelines[stage])
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(workgroups(count), 1, 1)
	pass.End()

	encoder.CopyBufferToBuffer(outBuf, stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: outSize},
	})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	fence, err := d.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("wgpu: create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("wgpu: submit: %w", err)
	}
	ok, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return nil, fmt.Errorf("wgpu: wait for GPU: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("wgpu: GPU timeout after %v", fenceTimeout)
	}

	readback := make([]byte, outSize)
	if err := d.queue.ReadBuffer(stagingBuf, 0, readback); err != nil {
		return nil, fmt.Errorf("wgpu: readback: %w", err)
	}
	return readback, nil
}

// projectBatch runs the projection kernel on the GPU and returns the
// encoded output block.
func (d *dispatcher) projectBatch(cam *project.Camera, fr project.Frustum, splats []project.CompactSplat) ([]byte, error) {
	params := paramsBytes(cam, fr, len(splats))
	in := coproc.EncodeSplats(splats)
	outSize := uint64(len(splats) * project.TransformedSplatSize)
	return d.run(stageProjection, params, in, outSize)
}

// cullBatch runs the culling kernel on the GPU and returns the flag
// quadwords.
func (d *dispatcher) cullBatch(cam *project.Camera, fr project.Frustum, splats []project.CompactSplat) ([]byte, error) {
	params := paramsBytes(cam, fr, len(splats))
	in := coproc.EncodeSplats(splats)
	outSize := uint64(len(splats) * packet.QuadwordSize)
	return d.run(stageCulling, params, in, outSize)
}
