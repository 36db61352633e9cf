// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"encoding/binary"
	"log/slog"
	"math"
	"strings"
	"testing"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/splat/coproc"
	"github.com/gogpu/splat/packet"
	"github.com/gogpu/splat/project"
)

func TestShaderSourcesEmbedded(t *testing.T) {
	for i := kernelStage(0); i < stageCount; i++ {
		src := stageSources[i]
		if src == "" {
			t.Fatalf("stage %s has no shader source", i)
		}
		if !strings.Contains(src, "@compute") {
			t.Errorf("stage %s shader has no compute entry point", i)
		}
		if !strings.Contains(src, "fn main") {
			t.Errorf("stage %s shader has no main function", i)
		}
		if !strings.Contains(src, "workgroup_size(64)") {
			t.Errorf("stage %s shader workgroup size does not match kernelWGSize", i)
		}
	}
}

func TestStageLayoutEntries(t *testing.T) {
	entries := stageLayoutEntries()
	if len(entries) != 3 {
		t.Fatalf("layout entries = %d, want 3", len(entries))
	}
	wantTypes := []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeStorage,
	}
	for i, e := range entries {
		if e.Binding != uint32(i) {
			t.Errorf("entry %d binding = %d", i, e.Binding)
		}
		if e.Visibility != gputypes.ShaderStageCompute {
			t.Errorf("entry %d visibility = %v", i, e.Visibility)
		}
		if e.Buffer == nil || e.Buffer.Type != wantTypes[i] {
			t.Errorf("entry %d buffer type mismatch", i)
		}
	}
}

func TestWorkgroups(t *testing.T) {
	tests := []struct {
		n    int
		want uint32
	}{
		{0, 0},
		{1, 1},
		{64, 1},
		{65, 2},
		{100, 2},
		{128, 2},
		{129, 3},
	}
	for _, tt := range tests {
		if got := workgroups(tt.n); got != tt.want {
			t.Errorf("workgroups(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestParamsBytesLayout(t *testing.T) {
	cam := &project.Camera{
		View:      project.LookAt(f32.Vec3{0, 0, 5}, f32.Vec3{0, 0, 0}, f32.Vec3{0, 1, 0}),
		Proj:      project.Perspective(math.Pi/3, 4.0/3.0, 0.1, 100),
		ViewportW: 640,
		ViewportH: 480,
	}
	fr := project.FrustumFromMatrix(project.Mat4Mul(cam.Proj, cam.View))

	buf := paramsBytes(cam, fr, 37)
	if len(buf) != paramsSize {
		t.Fatalf("params size = %d, want %d", len(buf), paramsSize)
	}

	readF32 := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
	}
	// View row 0 at offset 0, projection row 0 at 64.
	if got := readF32(0); got != cam.View[0] {
		t.Errorf("view[0] = %v, want %v", got, cam.View[0])
	}
	if got := readF32(64); got != cam.Proj[0] {
		t.Errorf("proj[0] = %v, want %v", got, cam.Proj[0])
	}
	// Viewport at 128.
	if got := readF32(128); got != 640 {
		t.Errorf("viewport.x = %v, want 640", got)
	}
	if got := readF32(132); got != 480 {
		t.Errorf("viewport.y = %v, want 480", got)
	}
	// First plane at 144.
	if got := readF32(144); got != fr[0][0] {
		t.Errorf("plane[0].x = %v, want %v", got, fr[0][0])
	}
	// Count at 240.
	if got := binary.LittleEndian.Uint32(buf[240:]); got != 37 {
		t.Errorf("count = %d, want 37", got)
	}
}

// hostDevice builds a Device that never touches a GPU adapter: packets
// parse through the shared interpreter and kernels run on the host
// mirror. This is the path a dispatch failure degrades to, so it gets
// exercised regardless of the machine the tests run on.
func hostDevice() *Device {
	d := &Device{
		cfg: Config{
			DataQuadwords: 4096,
			ProgramWords:  512,
			Synchronous:   true,
		},
		log:     slog.New(slog.DiscardHandler),
		program: make([]uint64, 512),
	}
	d.interp = coproc.Interp{
		Mem:    make([]byte, 4096*packet.QuadwordSize),
		Invoke: d.invoke,
	}
	return d
}

func testScene(n int) (*project.Camera, project.Frustum, []project.CompactSplat) {
	cam := &project.Camera{
		View:      project.LookAt(f32.Vec3{0, 0, 5}, f32.Vec3{0, 0, 0}, f32.Vec3{0, 1, 0}),
		Proj:      project.Perspective(math.Pi/3, 4.0/3.0, 0.1, 100),
		ViewportW: 640,
		ViewportH: 480,
	}
	fr := project.FrustumFromMatrix(project.Mat4Mul(cam.Proj, cam.View))

	splats := make([]project.CompactSplat, n)
	for i := range splats {
		x := float32(i%5)*0.4 - 0.8
		y := float32(i/5)*0.4 - 0.4
		splats[i] = project.CompactSplat{
			Pos:  f32.Vec4{x, y, 0, 1},
			Cov:  [6]float32{0.05, 0, 0, 0.05, 0, 0.05},
			RGBA: project.PackRGBA(uint8(i), 0, 0, 255),
		}
	}
	return cam, fr, splats
}

func buildBatchPacket(t *testing.T, cam *project.Camera, fr project.Frustum, splats []project.CompactSplat, base uint32) []byte {
	t.Helper()
	v4f32, _ := packet.FormatOf(32, 4)
	b := packet.NewBuilder(32 + 4*len(splats))

	if err := b.AppendUnpack(coproc.AddrCamera, v4f32, coproc.CameraQuadwords, coproc.EncodeCamera(cam)); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendUnpack(coproc.AddrFrustum, v4f32, coproc.FrustumQuadwords, coproc.EncodeFrustum(fr)); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendSetBase(base); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendSetOffset(0); err != nil {
		t.Fatal(err)
	}

	outAddr := base + 1 + uint32(len(splats)*coproc.SplatQuadwords)
	hdr := coproc.EncodeBatchHeader(coproc.BatchHeader{
		Count:   uint32(len(splats)),
		OutAddr: outAddr,
	})
	body := append(hdr, coproc.EncodeSplats(splats)...)
	if err := b.AppendUnpack(0, v4f32, 1+len(splats)*coproc.SplatQuadwords, body); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendInvoke(0); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendFlush(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Finalize(); err != nil {
		t.Fatal(err)
	}
	return b.Bytes()
}

func TestHostMirrorProjection(t *testing.T) {
	dev := hostDevice()
	words, err := coproc.KernelWords(coproc.KernelProjection)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.LoadProgram(0, words); err != nil {
		t.Fatal(err)
	}

	cam, fr, splats := testScene(20)
	const base = 0x100
	pkt := buildBatchPacket(t, cam, fr, splats, base)

	if err := dev.Submit(pkt); err != nil {
		t.Fatal(err)
	}
	if err := dev.ExecErr(); err != nil {
		t.Fatal(err)
	}

	outAddr := uint32(base + 1 + len(splats)*coproc.SplatQuadwords)
	raw := make([]byte, len(splats)*project.TransformedSplatSize)
	if err := dev.ReadBack(raw, outAddr); err != nil {
		t.Fatal(err)
	}
	got, err := coproc.DecodeTransformed(raw, len(splats))
	if err != nil {
		t.Fatal(err)
	}

	for i := range splats {
		want := project.ProjectSplat(splats[i], cam, fr)
		if got[i] != want {
			t.Errorf("splat %d: got %+v, want %+v", i, got[i], want)
		}
	}
}

func TestHostMirrorCulling(t *testing.T) {
	dev := hostDevice()
	words, err := coproc.KernelWords(coproc.KernelCulling)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.LoadProgram(0, words); err != nil {
		t.Fatal(err)
	}

	cam, fr, splats := testScene(10)
	// Push some splats far outside the frustum.
	for i := 0; i < 5; i++ {
		splats[i].Pos = f32.Vec4{0, 0, 200, 1} // behind the camera
	}

	const base = 0x100
	pkt := buildBatchPacket(t, cam, fr, splats, base)
	if err := dev.Submit(pkt); err != nil {
		t.Fatal(err)
	}
	if err := dev.ExecErr(); err != nil {
		t.Fatal(err)
	}

	outAddr := uint32(base + 1 + len(splats)*coproc.SplatQuadwords)
	raw := make([]byte, len(splats)*packet.QuadwordSize)
	if err := dev.ReadBack(raw, outAddr); err != nil {
		t.Fatal(err)
	}

	for i := range splats {
		flag := binary.LittleEndian.Uint32(raw[i*packet.QuadwordSize:])
		center := f32.Vec3{splats[i].Pos[0], splats[i].Pos[1], splats[i].Pos[2]}
		want := uint32(0)
		if project.SphereVisible(fr, center, project.EffectiveRadius(splats[i].Cov)) {
			want = 1
		}
		if flag != want {
			t.Errorf("splat %d: flag = %d, want %d", i, flag, want)
		}
	}
}

func TestInvokeWithoutKernelFaults(t *testing.T) {
	dev := hostDevice()
	cam, fr, splats := testScene(4)
	pkt := buildBatchPacket(t, cam, fr, splats, 0x100)

	if err := dev.Submit(pkt); err != nil {
		t.Fatal(err)
	}
	if dev.ExecErr() == nil {
		t.Fatal("expected execution error without a loaded kernel image")
	}
}
