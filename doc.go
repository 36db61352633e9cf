// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package splat implements a Gaussian-splat offload pipeline: scene
// storage, covariance encoding, and batched transfer of splats to a
// compute device for projection.
//
// # Overview
//
// Splats live in a Store as fixed-point records with a compact
// shared-exponent covariance. Each frame, the Renderer converts them to
// transport records, streams them through a packet-based transfer
// channel to a compute Device, and feeds the transformed results to a
// display-list assembler.
//
// # Quick Start
//
//	store := splat.GenerateSphereScene(1000, 1)
//	dev, _ := splat.OpenDevice("")
//	r, _ := splat.NewRenderer(dev, rasterizer, splat.RendererConfig{})
//	defer r.Close()
//
//	stats, err := r.RenderFrame(ctx, store, camera)
//
// # Backends
//
// The sim backend executes kernels in software and is always
// available. The wgpu backend (build tag default) registers itself at
// init and is preferred when a GPU device can be created; both produce
// identical results for the same batch.
//
// # Architecture
//
// The library is organized into:
//   - Public API: Store, Renderer, scene formats
//   - fixmath: 16.16 fixed-point math
//   - covar: covariance codec and analysis
//   - packet, coproc: wire protocol and device channel
//   - project: the kernel numeric contract
//   - displaylist: rasterizer-facing batch assembly
package splat
