// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package splat

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/splat/coproc"
	"github.com/gogpu/splat/coproc/sim"
)

// Backend names.
const (
	// BackendSim is the software coprocessor, always available.
	BackendSim = "sim"

	// BackendWGPU is the GPU-backed coprocessor, registered at init by
	// the coproc/wgpu package when built in.
	BackendWGPU = "wgpu"
)

// ErrNoBackend is returned when no backend can open a device.
var ErrNoBackend = errors.New("splat: no device backend available")

// DeviceFactory opens a device for a registered backend.
type DeviceFactory func() (coproc.Device, error)

// registry holds registered device backends.
var (
	registryMu sync.RWMutex
	factories  = map[string]DeviceFactory{
		BackendSim: func() (coproc.Device, error) {
			return sim.NewDevice(sim.Config{Logger: Logger()}), nil
		},
	}
	// Priority order for device selection (first to open wins).
	// Hardware beats the simulator when it is present and healthy.
	devicePriority = []string{BackendWGPU, BackendSim}
)

// RegisterBackend registers a device factory under a backend name.
// This is typically called from init() functions in backend packages.
// A factory registered under an existing name replaces it.
func RegisterBackend(name string, factory DeviceFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Backends returns the registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}

// OpenDevice opens a device by backend name. The empty name selects
// the best available backend in priority order; a backend that fails
// to open is skipped, so a machine without a GPU silently lands on the
// simulator.
func OpenDevice(name string) (coproc.Device, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if name != "" {
		factory, ok := factories[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q not registered", ErrNoBackend, name)
		}
		return factory()
	}

	var firstErr error
	for _, candidate := range devicePriority {
		factory, ok := factories[candidate]
		if !ok {
			continue
		}
		dev, err := factory()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			Logger().Warn("device backend unavailable", "backend", candidate, "error", err)
			continue
		}
		Logger().Info("device opened", "backend", candidate, "device", dev.Name())
		return dev, nil
	}
	if firstErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoBackend, firstErr)
	}
	return nil, ErrNoBackend
}
