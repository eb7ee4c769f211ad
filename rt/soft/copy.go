package soft

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

func checkBufferRange(b *Buffer, offset, size uint64) error {
	if offset+size > b.Size() || offset+size < offset {
		return fmt.Errorf("soft: range %d+%d exceeds %q (%d bytes)", offset, size, b.label, b.Size())
	}
	return nil
}

func bytesPerRow(tex *Texture, r *hal.BufferTextureCopy) uint64 {
	if r.BufferLayout.BytesPerRow != 0 {
		return uint64(r.BufferLayout.BytesPerRow)
	}
	return uint64(r.Size.Width) * uint64(bytesPerPixel(tex.format))
}

func checkTextureRegion(tex *Texture, origin hal.Origin3D, size hal.Extent3D) error {
	if origin.Z != 0 || size.DepthOrArrayLayers > 1 {
		return fmt.Errorf("soft: %q: only single-layer copies are supported", tex.label)
	}
	if origin.X+size.Width > tex.width || origin.Y+size.Height > tex.height {
		return fmt.Errorf("soft: region %dx%d at (%d,%d) exceeds %q (%dx%d)",
			size.Width, size.Height, origin.X, origin.Y, tex.label, tex.width, tex.height)
	}
	return nil
}

func checkTextureCopy(buf *Buffer, tex *Texture, r *hal.BufferTextureCopy) error {
	if err := checkTextureRegion(tex, r.TextureBase.Origin, r.Size); err != nil {
		return err
	}
	if r.Size.Height == 0 || r.Size.Width == 0 {
		return nil
	}
	row := uint64(r.Size.Width) * uint64(bytesPerPixel(tex.format))
	pitch := bytesPerRow(tex, r)
	if pitch < row {
		return fmt.Errorf("soft: bytes per row %d below row size %d", pitch, row)
	}
	return checkBufferRange(buf, r.BufferLayout.Offset, pitch*uint64(r.Size.Height-1)+row)
}

// copyBufferTexture copies one region between a buffer and a texture in the
// direction given by toTexture. The region must have passed checkTextureCopy.
func copyBufferTexture(buf *Buffer, tex *Texture, r *hal.BufferTextureCopy, toTexture bool) {
	bpp := bytesPerPixel(tex.format)
	row := int(r.Size.Width) * bpp
	pitch := int(bytesPerRow(tex, r))
	for y := 0; y < int(r.Size.Height); y++ {
		b := int(r.BufferLayout.Offset) + y*pitch
		t := (int(r.TextureBase.Origin.Y)+y)*tex.rowPitch() + int(r.TextureBase.Origin.X)*bpp
		if toTexture {
			copy(tex.data[t:t+row], buf.data[b:b+row])
		} else {
			copy(buf.data[b:b+row], tex.data[t:t+row])
		}
	}
}

func copyTextureTexture(src, dst *Texture, r *hal.TextureCopy) {
	bpp := bytesPerPixel(src.format)
	row := int(r.Size.Width) * bpp
	for y := 0; y < int(r.Size.Height); y++ {
		s := (int(r.SrcBase.Origin.Y)+y)*src.rowPitch() + int(r.SrcBase.Origin.X)*bpp
		d := (int(r.DstBase.Origin.Y)+y)*dst.rowPitch() + int(r.DstBase.Origin.X)*bpp
		copy(dst.data[d:d+row], src.data[s:s+row])
	}
}
