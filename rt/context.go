package rt

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// WaitForever is the fence timeout used for submissions. Device loss, not a
// timeout, ends a wait that never completes.
const WaitForever = -1

// ErrWaitTimeout is returned when a fence wait reports not ready without an
// error.
var ErrWaitTimeout = errors.New("rt: fence wait did not complete")

// Context is the device, queue and limits shared by the components of a
// render session. It is passed explicitly to every constructor.
type Context struct {
	Device     Device
	Queue      Queue
	Properties Properties
}

// NewContext returns a context for dev and queue.
func NewContext(dev Device, queue Queue) *Context {
	return &Context{Device: dev, Queue: queue, Properties: dev.Properties()}
}

// Submit records commands with record, submits them and waits for them to
// complete. Recording errors and errors reported by EndEncoding are
// returned as is.
func (c *Context) Submit(label string, record func(enc CommandEncoder) error) error {
	enc, err := c.Device.CreateRayTracingEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	defer enc.Destroy()

	if err := enc.BeginEncoding(label); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	if err := record(enc); err != nil {
		enc.DiscardEncoding()
		return err
	}
	cmdBuf, err := enc.EndEncoding()
	if err != nil {
		return err
	}
	defer c.Device.FreeCommandBuffer(cmdBuf)

	fence, err := c.Device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer c.Device.DestroyFence(fence)

	if err := c.Queue.SubmitFrame(&SubmitInfo{
		CommandBuffers: []hal.CommandBuffer{cmdBuf},
		Fence:          fence,
		FenceValue:     1,
	}); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	ok, err := c.Device.Wait(fence, 1, WaitForever)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", label, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", label, ErrWaitTimeout)
	}
	return nil
}

// minBufferSize keeps empty inputs bindable.
const minBufferSize = 16

// CreateBuffer creates a buffer holding data. The buffer is at least
// minSize bytes and never empty; data is written through the queue.
func (c *Context) CreateBuffer(label string, usage gputypes.BufferUsage, data []byte, minSize uint64) (hal.Buffer, error) {
	size := max(uint64(len(data)), minSize, minBufferSize)
	size = (size + 3) &^ 3
	buf, err := c.Device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s buffer (%d bytes): %w", label, size, err)
	}
	if len(data) > 0 {
		if err := c.Queue.WriteBuffer(buf, 0, data); err != nil {
			c.Device.DestroyBuffer(buf)
			return nil, fmt.Errorf("upload %s buffer: %w", label, err)
		}
	}
	slogger().Debug("rt: buffer created", "label", label, "size", size)
	return buf, nil
}

// AlignUp rounds v up to a multiple of align. An align of zero leaves v
// unchanged.
func AlignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) / align * align
}
