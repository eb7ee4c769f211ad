package kernel

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
)

// accumulationTexel is the size of one accumulation texel.
const accumulationTexel = 16

// Targets are the size-dependent buffers of the render: the accumulation
// buffer, the resolved RGBA8 pixels and the resolve parameters.
type Targets struct {
	ctx           *rt.Context
	width, height uint32

	accumulation hal.Buffer
	output       hal.Buffer
	params       hal.Buffer
}

// NewTargets creates targets for width x height pixels. gamma enables the
// square-root gamma of the resolve pass.
func NewTargets(ctx *rt.Context, width, height uint32, gamma bool) (*Targets, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("kernel: targets of %dx%d: %w", width, height, hal.ErrZeroArea)
	}
	t := &Targets{ctx: ctx, width: width, height: height}
	pixels := uint64(width) * uint64(height)
	var err error
	t.accumulation, err = ctx.CreateBuffer("accumulation", gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc, nil, pixels*accumulationTexel)
	if err != nil {
		t.Destroy()
		return nil, err
	}
	t.output, err = ctx.CreateBuffer("output", gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc, nil, pixels*4)
	if err != nil {
		t.Destroy()
		return nil, err
	}
	t.params, err = ctx.CreateBuffer("resolve params", gputypes.BufferUsageUniform, rt.Bytes([]Params{t.paramsFor(gamma)}), 0)
	if err != nil {
		t.Destroy()
		return nil, err
	}
	slogger().Debug("kernel: targets created", "width", width, "height", height, "gamma", gamma)
	return t, nil
}

func (t *Targets) paramsFor(gamma bool) Params {
	p := Params{Width: t.width, Height: t.height}
	if gamma {
		p.Gamma = 1
	}
	return p
}

// SetGamma updates the gamma flag of the resolve pass.
func (t *Targets) SetGamma(gamma bool) error {
	return t.ctx.Queue.WriteBuffer(t.params, 0, rt.Bytes([]Params{t.paramsFor(gamma)}))
}

// Size returns the target size in pixels.
func (t *Targets) Size() (width, height uint32) { return t.width, t.height }

// Output returns the buffer holding the resolved RGBA8 pixels, tightly
// packed row by row.
func (t *Targets) Output() hal.Buffer { return t.output }

// OutputSize returns the size of the output buffer in bytes.
func (t *Targets) OutputSize() uint64 { return uint64(t.width) * uint64(t.height) * 4 }

// Accumulation returns the accumulation buffer.
func (t *Targets) Accumulation() hal.Buffer { return t.accumulation }

// ReadAccumulation decodes accumulation texels read back from the device.
func ReadAccumulation(data []byte) []mgl32.Vec4 {
	return append([]mgl32.Vec4(nil), rt.View[mgl32.Vec4](data)...)
}

// Destroy releases the buffers. The device must be idle.
func (t *Targets) Destroy() {
	for _, b := range []*hal.Buffer{&t.accumulation, &t.output, &t.params} {
		if *b != nil {
			t.ctx.Device.DestroyBuffer(*b)
			*b = nil
		}
	}
}
