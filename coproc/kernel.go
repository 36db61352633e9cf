// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package coproc

import "fmt"

// Kernel names. The set is closed: backends ship an implementation for
// every registered kernel, so a name outside this list is a programming
// error, not a loadable resource.
const (
	// KernelProjection transforms a batch of compact splats into
	// screen-space records: frustum test, perspective projection,
	// covariance flattening.
	KernelProjection = "gaussian-projection"

	// KernelCulling runs the frustum test alone, writing only
	// visibility flags. Used for occlusion prepasses.
	KernelCulling = "frustum-culling"
)

// Kernel IDs embedded in the program image header word.
const (
	kernelIDProjection uint64 = 1
	kernelIDCulling    uint64 = 2
)

// kernelImageMagic marks word 0 of a kernel image, with the kernel ID
// in the low byte.
const kernelImageMagic uint64 = 0x53504C4B00000000 // "SPLK"

// kernelSizes gives the program image length in 64-bit words per
// kernel.
var kernelSizes = map[string]int{
	KernelProjection: 384,
	KernelCulling:    192,
}

var kernelIDs = map[string]uint64{
	KernelProjection: kernelIDProjection,
	KernelCulling:    kernelIDCulling,
}

// KernelNames returns the registered kernel names.
func KernelNames() []string {
	return []string{KernelProjection, KernelCulling}
}

// KernelSize returns the program image length in words for a kernel.
func KernelSize(name string) (int, error) {
	n, ok := kernelSizes[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
	}
	return n, nil
}

// KernelWords builds the uploadable program image for a kernel: a
// header word carrying the kernel ID followed by deterministic filler.
// Devices dispatch on the header; the filler exists so upload paths
// move realistic volumes and chunking is exercised.
func KernelWords(name string) ([]uint64, error) {
	size, err := KernelSize(name)
	if err != nil {
		return nil, err
	}
	id := kernelIDs[name]

	words := make([]uint64, size)
	words[0] = kernelImageMagic | id
	// Deterministic filler derived from the header (xorshift).
	x := words[0]
	for i := 1; i < size; i++ {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		words[i] = x
	}
	return words, nil
}

// KernelIDFromHeader recovers the kernel ID from an image header word,
// or 0 if the word is not a kernel header.
func KernelIDFromHeader(w uint64) uint64 {
	if w&^uint64(0xFF) != kernelImageMagic {
		return 0
	}
	return w & 0xFF
}
