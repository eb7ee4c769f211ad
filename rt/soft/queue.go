package soft

import (
	"fmt"
	"image"

	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
)

// Queue submits work to the device timeline. Uploads through WriteBuffer and
// WriteTexture are ordered with submitted command buffers.
type Queue struct {
	dev *Device
}

// Submit queues command buffers for execution.
func (q *Queue) Submit(commandBuffers []hal.CommandBuffer) (uint64, error) {
	cmds, label, err := q.collect(commandBuffers)
	if err != nil {
		return 0, err
	}
	return q.dev.timeline.enqueue(batch{label: label, cmds: cmds})
}

func (q *Queue) collect(commandBuffers []hal.CommandBuffer) ([]command, string, error) {
	var cmds []command
	label := ""
	for _, cb := range commandBuffers {
		c, ok := cb.(*CommandBuffer)
		if !ok {
			return nil, "", fmt.Errorf("%w: command buffer %T", ErrForeignResource, cb)
		}
		if label == "" {
			label = c.label
		}
		cmds = append(cmds, c.cmds...)
	}
	return cmds, label, nil
}

// PollCompleted returns the index of the last completed submission.
func (q *Queue) PollCompleted() uint64 { return q.dev.timeline.lastCompleted() }

// WriteBuffer copies data now and applies it in order with submitted work.
func (q *Queue) WriteBuffer(buffer hal.Buffer, offset uint64, data []byte) error {
	buf, err := q.dev.buffer(buffer)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > buf.Size() {
		return fmt.Errorf("soft: write of %d bytes at %d overflows %q (%d bytes)", len(data), offset, buf.label, buf.Size())
	}
	staged := append([]byte(nil), data...)
	_, err = q.dev.timeline.enqueue(batch{label: "write " + buf.label, cmds: []command{func(*Device) error {
		copy(buf.data[offset:], staged)
		return nil
	}}})
	return err
}

// WriteTexture copies data now and applies it in order with submitted work.
func (q *Queue) WriteTexture(dst *hal.ImageCopyTexture, data []byte, layout *hal.ImageDataLayout, size *hal.Extent3D) error {
	tex, err := q.dev.texture(dst.Texture)
	if err != nil {
		return err
	}
	staged := append([]byte(nil), data...)
	src := &Buffer{label: "staging", data: staged}
	region := hal.BufferTextureCopy{BufferLayout: *layout, TextureBase: *dst, Size: *size}
	if err := checkTextureCopy(src, tex, &region); err != nil {
		return err
	}
	_, err = q.dev.timeline.enqueue(batch{label: "write " + tex.label, cmds: []command{func(*Device) error {
		copyBufferTexture(src, tex, &region, true)
		return nil
	}}})
	return err
}

// Present presents texture with no semaphore.
func (q *Queue) Present(surface hal.Surface, texture hal.SurfaceTexture, _ []image.Rectangle) error {
	return q.PresentFrame(surface, texture, nil)
}

// GetTimestampPeriod returns 1; the device has no timestamp queries.
func (q *Queue) GetTimestampPeriod() float32 { return 1 }

// SupportsCommandBufferCopies reports false: uploads are applied directly.
func (q *Queue) SupportsCommandBufferCopies() bool { return false }

// SetSwapchainSuppressed is a no-op.
func (q *Queue) SetSwapchainSuppressed(bool) {}

// AcquireFrame acquires the next image of surface. signal is signaled on the
// timeline, after all previously submitted work.
func (q *Queue) AcquireFrame(surface hal.Surface, signal rt.Semaphore) (*hal.AcquiredSurfaceTexture, error) {
	s, ok := surface.(*Surface)
	if !ok {
		return nil, fmt.Errorf("%w: surface %T", ErrForeignResource, surface)
	}
	sem, err := q.dev.semaphore(signal)
	if err != nil {
		return nil, err
	}
	acquired, err := s.AcquireTexture(nil)
	if err != nil {
		return nil, err
	}
	if sem != nil {
		if _, err := q.dev.timeline.enqueue(batch{label: "acquire", signal: sem}); err != nil {
			return nil, err
		}
	}
	return acquired, nil
}

// SubmitFrame queues command buffers gated by semaphores and a fence.
func (q *Queue) SubmitFrame(info *rt.SubmitInfo) error {
	cmds, label, err := q.collect(info.CommandBuffers)
	if err != nil {
		return err
	}
	wait, err := q.dev.semaphore(info.Wait)
	if err != nil {
		return err
	}
	signal, err := q.dev.semaphore(info.Signal)
	if err != nil {
		return err
	}
	var fence *Fence
	if info.Fence != nil {
		f, ok := info.Fence.(*Fence)
		if !ok {
			return fmt.Errorf("%w: fence %T", ErrForeignResource, info.Fence)
		}
		fence = f
	}
	_, err = q.dev.timeline.enqueue(batch{
		label:  label,
		wait:   wait,
		cmds:   cmds,
		signal: signal,
		fence:  fence,
		value:  info.FenceValue,
	})
	return err
}

// PresentFrame presents texture once wait is signaled. When the surface is
// outdated the wait is still consumed and hal.ErrSurfaceOutdated returned.
func (q *Queue) PresentFrame(surface hal.Surface, texture hal.SurfaceTexture, wait rt.Semaphore) error {
	s, ok := surface.(*Surface)
	if !ok {
		return fmt.Errorf("%w: surface %T", ErrForeignResource, surface)
	}
	sem, err := q.dev.semaphore(wait)
	if err != nil {
		return err
	}
	tex, err := q.dev.texture(texture)
	if err != nil {
		return err
	}
	if s.isOutdated() {
		if sem != nil {
			if _, err := q.dev.timeline.enqueue(batch{label: "discard present", wait: sem}); err != nil {
				return err
			}
		}
		return hal.ErrSurfaceOutdated
	}
	_, err = q.dev.timeline.enqueue(batch{label: "present", wait: sem, cmds: []command{func(*Device) error {
		s.present(tex)
		return nil
	}}})
	return err
}

var _ rt.Queue = (*Queue)(nil)
