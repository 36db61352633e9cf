// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements the splat coprocessor on a WebGPU compute
// device. Importing the package registers the backend:
//
//	import _ "github.com/gogpu/splat/coproc/wgpu"
//
// after which splat.OpenDevice prefers it over the simulator whenever
// a GPU adapter opens. Building with the nogpu tag compiles the
// package out entirely.
package wgpu
