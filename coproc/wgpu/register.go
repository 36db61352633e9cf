// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"github.com/gogpu/splat"
	"github.com/gogpu/splat/coproc"
)

func init() {
	splat.RegisterBackend(splat.BackendWGPU, func() (coproc.Device, error) {
		return NewDevice(Config{Logger: splat.Logger()})
	})
}
