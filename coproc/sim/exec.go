// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sim

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/splat/coproc"
	"github.com/gogpu/splat/packet"
	"github.com/gogpu/splat/project"
)

// invoke dispatches the kernel whose image header sits at the given
// instruction address. Called by the interpreter with the device lock
// held.
func (d *Device) invoke(addr uint32) error {
	if int(addr) >= len(d.program) {
		return fmt.Errorf("%w: invoke at word %d of %d", coproc.ErrBadAddress, addr, len(d.program))
	}
	id := coproc.KernelIDFromHeader(d.program[addr])
	if id == 0 {
		return fmt.Errorf("sim: no kernel image at word %d", addr)
	}

	cam, fr, hdr, splats, err := d.interp.LoadBatch()
	if err != nil {
		return err
	}

	switch id {
	case 1: // gaussian-projection
		out := make([]project.TransformedSplat, len(splats))
		visible := project.ProjectBatch(out, splats, cam, fr)
		if err := d.interp.Store(hdr.OutAddr, coproc.EncodeTransformed(out)); err != nil {
			return err
		}
		d.log.Debug("projection kernel finished",
			"splats", len(splats), "visible", visible)
	case 2: // frustum-culling
		flags := make([]byte, len(splats)*packet.QuadwordSize)
		for i := range splats {
			center := f32.Vec3{splats[i].Pos[0], splats[i].Pos[1], splats[i].Pos[2]}
			if project.SphereVisible(fr, center, project.EffectiveRadius(splats[i].Cov)) {
				binary.LittleEndian.PutUint32(flags[i*packet.QuadwordSize:], 1)
			}
		}
		if err := d.interp.Store(hdr.OutAddr, flags); err != nil {
			return err
		}
	default:
		return fmt.Errorf("sim: kernel ID %d not implemented", id)
	}
	return nil
}
