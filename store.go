// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package splat

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gogpu/splat/covar"
)

// Store errors.
var (
	// ErrStoreFull is returned by Append at capacity.
	ErrStoreFull = errors.New("splat: store full")

	// ErrBadExponent is returned for a covariance exponent outside the
	// encodable range.
	ErrBadExponent = errors.New("splat: covariance exponent out of range")
)

// DefaultMaxSplats bounds a Store when no capacity is given.
const DefaultMaxSplats = 32768

// Store is the capacity-bounded canonical splat array. It owns its
// records; per-frame consumers get read-only views.
//
// A Store is not safe for concurrent mutation. The usual discipline is
// single-writer at load time, read-only during rendering.
type Store struct {
	splats []GaussianSplat3D
	max    int
}

// NewStore returns an empty store holding at most max splats.
// Non-positive max gets DefaultMaxSplats.
func NewStore(max int) *Store {
	if max <= 0 {
		max = DefaultMaxSplats
	}
	return &Store{max: max}
}

// Cap returns the store capacity.
func (st *Store) Cap() int { return st.max }

// Len returns the number of stored splats.
func (st *Store) Len() int { return len(st.splats) }

// Append validates and stores a record.
func (st *Store) Append(s GaussianSplat3D) error {
	if len(st.splats) >= st.max {
		return fmt.Errorf("%w: capacity %d", ErrStoreFull, st.max)
	}
	if s.CovExp > covar.ExpMax {
		return fmt.Errorf("%w: %d", ErrBadExponent, s.CovExp)
	}
	st.splats = append(st.splats, s)
	return nil
}

// At returns a pointer to the i-th record. The pointer stays valid
// until the next Append.
func (st *Store) At(i int) *GaussianSplat3D {
	return &st.splats[i]
}

// Splats returns the backing slice as a read-only frame handoff.
// Callers must not append to or retain it across mutations.
func (st *Store) Splats() []GaussianSplat3D {
	return st.splats
}

// SortByImportance orders the store most-important-first, so a
// truncated draw keeps the splats that matter. The sort is stable:
// equally weighted splats keep their load order.
func (st *Store) SortByImportance() {
	sort.SliceStable(st.splats, func(i, j int) bool {
		return st.splats[i].Importance > st.splats[j].Importance
	})
}
