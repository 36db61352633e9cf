// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package splat

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Scene file format: a 16-byte header followed by fixed 64-byte splat
// records, all little-endian.
//
//	magic    uint32  'SPLT'
//	version  uint32
//	count    uint32
//	reserved uint32
//
// Record layout: position (3x int32 fixed-point), covariance mantissas
// (9 bytes), exponent, RGB, opacity, 2 reserved bytes, 16 SH halves,
// importance.
const (
	// SceneMagic identifies a scene file ("SPLT").
	SceneMagic uint32 = 0x53504C54

	// SceneVersion is the current format revision.
	SceneVersion uint32 = 1

	// sceneHeaderSize and sceneRecordSize are the fixed layouts.
	sceneHeaderSize = 16
	sceneRecordSize = 64
)

// Scene format errors. Header validation runs before any allocation, so
// a corrupt or hostile file is rejected without committing memory to
// its claimed record count.
var (
	// ErrBadMagic is returned when the file does not start with
	// SceneMagic.
	ErrBadMagic = errors.New("splat: not a scene file")

	// ErrBadVersion is returned for an unsupported format revision.
	ErrBadVersion = errors.New("splat: unsupported scene version")

	// ErrEmptyScene is returned for a zero record count.
	ErrEmptyScene = errors.New("splat: scene has no splats")

	// ErrSceneTooLarge is returned when the record count exceeds the
	// caller's limit.
	ErrSceneTooLarge = errors.New("splat: scene exceeds splat limit")
)

// ReadScene parses a scene stream into a new Store bounded by max
// (DefaultMaxSplats when non-positive).
func ReadScene(r io.Reader, max int) (*Store, error) {
	if max <= 0 {
		max = DefaultMaxSplats
	}

	var hdr [sceneHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("splat: scene header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(hdr[0:])
	version := binary.LittleEndian.Uint32(hdr[4:])
	count := binary.LittleEndian.Uint32(hdr[8:])

	if magic != SceneMagic {
		return nil, fmt.Errorf("%w: magic 0x%08X", ErrBadMagic, magic)
	}
	if version != SceneVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadVersion, version)
	}
	if count == 0 {
		return nil, ErrEmptyScene
	}
	if int64(count) > int64(max) {
		return nil, fmt.Errorf("%w: %d splats, limit %d", ErrSceneTooLarge, count, max)
	}

	st := NewStore(max)
	var rec [sceneRecordSize]byte
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			return nil, fmt.Errorf("splat: scene record %d: %w", i, err)
		}
		s, err := decodeRecord(rec[:])
		if err != nil {
			return nil, fmt.Errorf("splat: scene record %d: %w", i, err)
		}
		if err := st.Append(s); err != nil {
			return nil, err
		}
	}

	Logger().Debug("scene loaded", "splats", st.Len())
	return st, nil
}

// WriteScene serializes a store as a scene stream.
func WriteScene(w io.Writer, st *Store) error {
	if st.Len() == 0 {
		return ErrEmptyScene
	}

	var hdr [sceneHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], SceneMagic)
	binary.LittleEndian.PutUint32(hdr[4:], SceneVersion)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(st.Len()))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("splat: scene header: %w", err)
	}

	var rec [sceneRecordSize]byte
	for i := 0; i < st.Len(); i++ {
		encodeRecord(rec[:], st.At(i))
		if _, err := w.Write(rec[:]); err != nil {
			return fmt.Errorf("splat: scene record %d: %w", i, err)
		}
	}
	return nil
}

func encodeRecord(buf []byte, s *GaussianSplat3D) {
	for i, p := range s.Pos {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(p))
	}
	for i, m := range s.CovMant {
		buf[12+i] = byte(m)
	}
	buf[21] = s.CovExp
	buf[22], buf[23], buf[24] = s.Color[0], s.Color[1], s.Color[2]
	buf[25] = s.Opacity
	buf[26], buf[27] = 0, 0
	for i, h := range s.SH {
		binary.LittleEndian.PutUint16(buf[28+i*2:], h)
	}
	binary.LittleEndian.PutUint32(buf[60:], s.Importance)
}

func decodeRecord(buf []byte) (GaussianSplat3D, error) {
	var s GaussianSplat3D
	for i := range s.Pos {
		s.Pos[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	for i := range s.CovMant {
		s.CovMant[i] = int8(buf[12+i])
	}
	s.CovExp = buf[21]
	if s.CovExp > 15 {
		return s, fmt.Errorf("%w: %d", ErrBadExponent, s.CovExp)
	}
	s.Color = [3]uint8{buf[22], buf[23], buf[24]}
	s.Opacity = buf[25]
	for i := range s.SH {
		s.SH[i] = binary.LittleEndian.Uint16(buf[28+i*2:])
	}
	s.Importance = binary.LittleEndian.Uint32(buf[60:])
	return s, nil
}
