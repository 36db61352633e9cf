// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package splat

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestSceneRoundTrip(t *testing.T) {
	want := GenerateSphereScene(50, 7)

	var buf bytes.Buffer
	if err := WriteScene(&buf, want); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 16+50*64 {
		t.Errorf("scene file is %d bytes, want %d", buf.Len(), 16+50*64)
	}

	got, err := ReadScene(&buf, 100)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != want.Len() {
		t.Fatalf("loaded %d splats, want %d", got.Len(), want.Len())
	}
	for i := 0; i < want.Len(); i++ {
		if *got.At(i) != *want.At(i) {
			t.Fatalf("splat %d differs after round trip:\n got %+v\nwant %+v", i, *got.At(i), *want.At(i))
		}
	}
}

func sceneHeader(magic, version, count uint32) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:], magic)
	binary.LittleEndian.PutUint32(buf[4:], version)
	binary.LittleEndian.PutUint32(buf[8:], count)
	return buf
}

func TestReadSceneRejections(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		max     int
		wantErr error
	}{
		{"bad magic", sceneHeader(0x12345678, SceneVersion, 1), 10, ErrBadMagic},
		{"bad version", sceneHeader(SceneMagic, 99, 1), 10, ErrBadVersion},
		{"zero count", sceneHeader(SceneMagic, SceneVersion, 0), 10, ErrEmptyScene},
		{"count beyond limit", sceneHeader(SceneMagic, SceneVersion, 1000), 10, ErrSceneTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadScene(bytes.NewReader(tt.data), tt.max)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestReadSceneTruncatedRecords(t *testing.T) {
	// Header promises two records but the body holds half of one.
	data := append(sceneHeader(SceneMagic, SceneVersion, 2), make([]byte, 30)...)
	if _, err := ReadScene(bytes.NewReader(data), 10); err == nil {
		t.Error("truncated scene accepted")
	}
}

func TestReadSceneRejectsBadExponent(t *testing.T) {
	data := append(sceneHeader(SceneMagic, SceneVersion, 1), make([]byte, 64)...)
	data[16+21] = 99 // exponent byte of record 0
	if _, err := ReadScene(bytes.NewReader(data), 10); !errors.Is(err, ErrBadExponent) {
		t.Errorf("err = %v, want ErrBadExponent", err)
	}
}

func TestWriteSceneEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteScene(&buf, NewStore(4)); !errors.Is(err, ErrEmptyScene) {
		t.Errorf("err = %v, want ErrEmptyScene", err)
	}
}
