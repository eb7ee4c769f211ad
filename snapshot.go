package pathtrace

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
)

// Image returns the resolved image of the last rendered frame.
func (r *Renderer) Image() (*image.NRGBA, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if r.targets == nil {
		return nil, errors.New("pathtrace: no swap target")
	}
	dev := r.ctx.Device
	if err := dev.WaitIdle(); err != nil {
		return nil, fmt.Errorf("snapshot: wait idle: %w", err)
	}
	width, height := r.targets.Size()
	size := r.targets.OutputSize()
	staging, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "snapshot",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer dev.DestroyBuffer(staging)

	err = r.ctx.Submit("snapshot", func(enc rt.CommandEncoder) error {
		enc.CopyBufferToBuffer(r.targets.Output(), staging, []hal.BufferCopy{{Size: size}})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	m, err := dev.MapBuffer(staging, 0, size)
	if err != nil {
		return nil, fmt.Errorf("snapshot: map: %w", err)
	}
	defer func() { _ = dev.UnmapBuffer(staging) }()

	img := image.NewNRGBA(image.Rect(0, 0, int(width), int(height)))
	copy(img.Pix, unsafe.Slice((*byte)(m.Ptr), size))
	return img, nil
}

// Snapshot encodes the resolved image of the last rendered frame as PNG.
func (r *Renderer) Snapshot(w io.Writer) error {
	img, err := r.Image()
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}
