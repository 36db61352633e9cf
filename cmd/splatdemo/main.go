// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command splatdemo renders a Gaussian splat scene through the offload
// pipeline and writes the composited frame as a PNG.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"math"
	"os"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/splat"
	"github.com/gogpu/splat/project"

	// Register the GPU backend. Device selection falls back to the
	// simulator on machines without an adapter.
	_ "github.com/gogpu/splat/coproc/wgpu"
)

func main() {
	var (
		scene   = flag.String("scene", "", "SPLT scene file (empty generates a sphere scene)")
		count   = flag.Int("count", 2000, "splat count for the generated scene")
		seed    = flag.Int64("seed", 1, "seed for the generated scene")
		backend = flag.String("backend", "", "device backend (empty selects the best available)")
		width   = flag.Int("width", 800, "image width")
		height  = flag.Int("height", 600, "image height")
		batch   = flag.Int("batch", 256, "splats per device submission")
		output  = flag.String("output", "splats.png", "output file")
		verbose = flag.Bool("v", false, "log device and channel events")
	)
	flag.Parse()

	if *verbose {
		splat.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	st, err := loadScene(*scene, *count, *seed)
	if err != nil {
		log.Fatalf("Failed to load scene: %v", err)
	}

	dev, err := splat.OpenDevice(*backend)
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer dev.Close()

	canvas := newCanvas(*width, *height)
	r, err := splat.NewRenderer(dev, canvas, splat.RendererConfig{BatchSize: *batch})
	if err != nil {
		log.Fatalf("Failed to create renderer: %v", err)
	}
	defer r.Close()

	cam := &project.Camera{
		View:      project.LookAt(f32.Vec3{0, 0.5, 3.5}, f32.Vec3{0, 0, 0}, f32.Vec3{0, 1, 0}),
		Proj:      project.Perspective(math.Pi/3, float32(*width)/float32(*height), 0.1, 100),
		ViewportW: float32(*width),
		ViewportH: float32(*height),
	}

	stats, err := r.RenderFrame(context.Background(), st, cam)
	if err != nil {
		log.Fatalf("Render failed: %v", err)
	}

	if err := canvas.SavePNG(*output); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}

	log.Printf("Rendered %d splats (%d visible, %d batches) on %q in %v -> %s",
		stats.Splats, stats.Visible, stats.Batches, dev.Name(), stats.Elapsed, *output)
}

func loadScene(path string, count int, seed int64) (*splat.Store, error) {
	if path == "" {
		return splat.GenerateSphereScene(count, seed), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return splat.ReadScene(f, 0)
}
