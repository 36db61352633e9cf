// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package splat

import (
	"context"
	"math"
	"testing"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/splat/displaylist"
	"github.com/gogpu/splat/project"
)

type collectingRasterizer struct {
	prims []displaylist.Primitive
}

func (c *collectingRasterizer) DrawBatch(prims []displaylist.Primitive) error {
	c.prims = append(c.prims, prims...)
	return nil
}

func frameCamera() *project.Camera {
	return &project.Camera{
		View:      project.LookAt(f32.Vec3{0, 0, 5}, f32.Vec3{0, 0, 0}, f32.Vec3{0, 1, 0}),
		Proj:      project.Perspective(math.Pi/3, 4.0/3.0, 0.1, 100),
		ViewportW: 640,
		ViewportH: 480,
	}
}

func TestRenderFrameSphereScene(t *testing.T) {
	st := GenerateSphereScene(100, 42)
	dev, err := OpenDevice(BackendSim)
	if err != nil {
		t.Fatal(err)
	}
	ras := &collectingRasterizer{}
	r, err := NewRenderer(dev, ras, RendererConfig{BatchSize: 32})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	cam := frameCamera()
	stats, err := r.RenderFrame(context.Background(), st, cam)
	if err != nil {
		t.Fatal(err)
	}

	if stats.Splats != 100 {
		t.Errorf("Splats = %d, want 100", stats.Splats)
	}
	if stats.Batches != 4 {
		t.Errorf("Batches = %d, want 4", stats.Batches)
	}
	// The whole unit sphere sits inside this frustum.
	if stats.Visible != 100 {
		t.Errorf("Visible = %d, want 100", stats.Visible)
	}
	if len(ras.prims) != stats.Visible {
		t.Errorf("rasterizer received %d primitives, want %d", len(ras.prims), stats.Visible)
	}

	// The device path must agree exactly with the host-side contract.
	fr := project.FrustumFromMatrix(project.Mat4Mul(cam.Proj, cam.View))
	splats := st.Splats()
	for i, p := range ras.prims {
		want := project.ProjectSplat(splats[i].Compact(), cam, fr)
		if p.X != want.Screen[0] || p.Y != want.Screen[1] {
			t.Fatalf("primitive %d at (%g, %g), reference says (%g, %g)",
				i, p.X, p.Y, want.Screen[0], want.Screen[1])
		}
		if p.RGBA != want.RGBA {
			t.Fatalf("primitive %d color 0x%08X, reference 0x%08X", i, p.RGBA, want.RGBA)
		}
	}
}

func TestRenderFramePartialVisibility(t *testing.T) {
	// Scene straight ahead plus a far-away cluster behind the camera.
	st := NewStore(64)
	for i := 0; i < 10; i++ {
		s := NewSplat([3]float64{float64(i) * 0.1, 0, 0}, isotropic(0.002), [3]uint8{255, 255, 255}, 255)
		if err := st.Append(s); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 5; i++ {
		s := NewSplat([3]float64{0, 0, 100}, isotropic(0.002), [3]uint8{255, 255, 255}, 255)
		if err := st.Append(s); err != nil {
			t.Fatal(err)
		}
	}

	dev, err := OpenDevice(BackendSim)
	if err != nil {
		t.Fatal(err)
	}
	ras := &collectingRasterizer{}
	r, err := NewRenderer(dev, ras, RendererConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	stats, err := r.RenderFrame(context.Background(), st, frameCamera())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Visible != 10 {
		t.Errorf("Visible = %d, want 10", stats.Visible)
	}
	if stats.Splats != 15 {
		t.Errorf("Splats = %d, want 15", stats.Splats)
	}
}

func TestRenderFrameEmptyStore(t *testing.T) {
	dev, err := OpenDevice(BackendSim)
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRenderer(dev, &collectingRasterizer{}, RendererConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	stats, err := r.RenderFrame(context.Background(), NewStore(4), frameCamera())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Splats != 0 || stats.Batches != 0 {
		t.Errorf("stats = %+v, want empty frame", stats)
	}
}

func TestRenderFrameDeterministic(t *testing.T) {
	st := GenerateSphereScene(60, 9)
	cam := frameCamera()

	run := func() []displaylist.Primitive {
		dev, err := OpenDevice(BackendSim)
		if err != nil {
			t.Fatal(err)
		}
		ras := &collectingRasterizer{}
		r, err := NewRenderer(dev, ras, RendererConfig{BatchSize: 16})
		if err != nil {
			t.Fatal(err)
		}
		defer r.Close()
		if _, err := r.RenderFrame(context.Background(), st, cam); err != nil {
			t.Fatal(err)
		}
		return ras.prims
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("primitive counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("primitive %d differs between identical frames", i)
		}
	}
}

func TestOpenDeviceFallsBackToSim(t *testing.T) {
	dev, err := OpenDevice("")
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()
	if dev.Name() == "" {
		t.Error("device has no name")
	}
}

func TestOpenDeviceUnknownBackend(t *testing.T) {
	if _, err := OpenDevice("abacus"); err == nil {
		t.Error("unknown backend opened")
	}
}

func isotropic(v float64) [9]float64 {
	return [9]float64{v, 0, 0, 0, v, 0, 0, 0, v}
}
