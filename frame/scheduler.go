// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
)

// DefaultFramesInFlight is the number of frames the CPU may record ahead
// of the GPU.
const DefaultFramesInFlight = 3

// State is the position of the scheduler within a frame.
type State uint8

const (
	StateIdle State = iota
	StateAcquire
	StateRecord
	StateSubmit
	StatePresent
	StateInvalidated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquire:
		return "acquire"
	case StateRecord:
		return "record"
	case StateSubmit:
		return "submit"
	case StatePresent:
		return "present"
	case StateInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Outcome is what happened to one DrawFrame call.
type Outcome uint8

const (
	// Presented means the frame was recorded, submitted and presented.
	Presented Outcome = iota
	// SkippedInvalidated means the swap target was recreated instead.
	SkippedInvalidated
	// SkippedZeroArea means the target has no pixels, as for a minimized
	// window.
	SkippedZeroArea
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Presented:
		return "presented"
	case SkippedInvalidated:
		return "skipped (invalidated)"
	case SkippedZeroArea:
		return "skipped (zero area)"
	default:
		return "unknown"
	}
}

// Frame is the per-frame context handed to a Recorder.
type Frame struct {
	// Number counts recorded frames from zero.
	Number uint64
	// Slot is the frame-in-flight slot the frame uses.
	Slot int
	// Target is the acquired swap image.
	Target hal.SurfaceTexture
	// Uniform is the slot's uniform buffer, free for writing.
	Uniform hal.Buffer

	Width, Height uint32
}

// Recorder owns the swap-dependent resources and records frames.
type Recorder interface {
	// Resize (re)creates the resources that depend on the target size.
	// It is called with the device idle.
	Resize(width, height uint32) error
	// Record records the work of f into enc.
	Record(enc rt.CommandEncoder, f *Frame) error
}

// Config configures a Scheduler.
type Config struct {
	FramesInFlight int
	Format         gputypes.TextureFormat
	VSync          bool
	// Extent returns the size the target should have. It is consulted on
	// every recreation.
	Extent func() (width, height uint32)
}

// Stats counts scheduler events. The initial target creation is not a
// recreation.
type Stats struct {
	Presented   uint64
	Skipped     uint64
	Recreations uint64
}

// slot holds the resources of one frame in flight.
type slot struct {
	fence     hal.Fence
	submitted bool
	acquire   rt.Semaphore
	finished  rt.Semaphore
	uniform   hal.Buffer
}

// Scheduler drives frames through acquire, record, submit and present,
// keeping up to FramesInFlight frames queued. It recovers from outdated
// or suboptimal swap targets by recreating them and skipping the frame.
//
// Scheduler is not safe for concurrent use.
type Scheduler struct {
	ctx      *rt.Context
	surface  hal.Surface
	recorder Recorder
	cfg      Config

	slots   []slot
	current int
	frames  uint64
	state   State
	stats   Stats

	width, height uint32
	vsync         bool
	configured    bool
	closed        bool
}

// NewScheduler configures surface and creates the slots and the recorder's
// swap resources.
func NewScheduler(ctx *rt.Context, surface hal.Surface, recorder Recorder, cfg Config) (*Scheduler, error) {
	if cfg.FramesInFlight <= 0 {
		cfg.FramesInFlight = DefaultFramesInFlight
	}
	if cfg.Format == gputypes.TextureFormatUndefined {
		cfg.Format = gputypes.TextureFormatRGBA8Unorm
	}
	if cfg.Extent == nil {
		return nil, errors.New("frame: config has no extent source")
	}
	s := &Scheduler{
		ctx:      ctx,
		surface:  surface,
		recorder: recorder,
		cfg:      cfg,
		vsync:    cfg.VSync,
	}
	if err := s.recreate(); err != nil && !errors.Is(err, hal.ErrZeroArea) {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

// SetVSync requests a present mode change. It takes effect on the next
// DrawFrame, which recreates the target and skips that frame.
func (s *Scheduler) SetVSync(v bool) { s.cfg.VSync = v }

// Invalidate forces a recreation on the next DrawFrame, as after a window
// resize event.
func (s *Scheduler) Invalidate() { s.configured = false }

// State returns the current state. It is StateIdle between frames unless
// the last frame invalidated the target.
func (s *Scheduler) State() State { return s.state }

// Stats returns the event counters.
func (s *Scheduler) Stats() Stats { return s.stats }

// Size returns the current target size.
func (s *Scheduler) Size() (width, height uint32) { return s.width, s.height }

// FramesInFlight returns the number of slots.
func (s *Scheduler) FramesInFlight() int { return len(s.slots) }

// DrawFrame runs one frame. Swap target invalidation is recovered here and
// reported as a skipped outcome; any returned error is fatal.
func (s *Scheduler) DrawFrame() (Outcome, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if !s.configured || s.vsync != s.cfg.VSync {
		return s.skip(s.recreate())
	}

	// Idle: the slot's previous frame must be complete before its fence,
	// semaphores and uniform buffer are reused.
	s.state = StateIdle
	sl := &s.slots[s.current]
	if sl.submitted {
		ok, err := s.ctx.Device.Wait(sl.fence, 1, rt.WaitForever)
		if err != nil {
			return 0, fmt.Errorf("wait for slot %d: %w", s.current, err)
		}
		if !ok {
			return 0, fmt.Errorf("wait for slot %d: %w", s.current, rt.ErrWaitTimeout)
		}
	}

	s.state = StateAcquire
	acquired, err := s.ctx.Queue.AcquireFrame(s.surface, sl.acquire)
	if err != nil {
		return s.skip(s.invalidated("acquire", err))
	}
	if acquired.Suboptimal {
		// The acquire semaphore was signaled; recreation replaces it.
		s.surface.DiscardTexture(acquired.Texture)
		return s.skip(s.invalidated("acquire", ErrSwapTargetInvalidated))
	}

	s.state = StateRecord
	f := &Frame{
		Number:  s.frames,
		Slot:    s.current,
		Target:  acquired.Texture,
		Uniform: sl.uniform,
		Width:   s.width,
		Height:  s.height,
	}
	cmdBuf, err := s.record(f)
	if err != nil {
		return 0, err
	}
	defer s.ctx.Device.FreeCommandBuffer(cmdBuf)

	s.state = StateSubmit
	if err := s.ctx.Device.ResetFence(sl.fence); err != nil {
		return 0, fmt.Errorf("reset fence: %w", err)
	}
	if err := s.ctx.Queue.SubmitFrame(&rt.SubmitInfo{
		CommandBuffers: []hal.CommandBuffer{cmdBuf},
		Wait:           sl.acquire,
		Signal:         sl.finished,
		Fence:          sl.fence,
		FenceValue:     1,
	}); err != nil {
		return 0, fmt.Errorf("submit frame %d: %w", s.frames, err)
	}
	sl.submitted = true
	s.frames++

	s.state = StatePresent
	if err := s.ctx.Queue.PresentFrame(s.surface, acquired.Texture, sl.finished); err != nil {
		return s.skip(s.invalidated("present", err))
	}

	s.current = (s.current + 1) % len(s.slots)
	s.state = StateIdle
	s.stats.Presented++
	return Presented, nil
}

func (s *Scheduler) record(f *Frame) (hal.CommandBuffer, error) {
	enc, err := s.ctx.Device.CreateRayTracingEncoder(&hal.CommandEncoderDescriptor{Label: "frame"})
	if err != nil {
		return nil, fmt.Errorf("create frame encoder: %w", err)
	}
	defer enc.Destroy()
	if err := enc.BeginEncoding("frame"); err != nil {
		return nil, fmt.Errorf("begin frame: %w", err)
	}
	if err := s.recorder.Record(enc, f); err != nil {
		enc.DiscardEncoding()
		return nil, fmt.Errorf("record frame %d: %w", f.Number, err)
	}
	cmdBuf, err := enc.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("record frame %d: %w", f.Number, err)
	}
	return cmdBuf, nil
}

// invalidated turns an outdated target into a recreation. Other errors are
// returned unchanged.
func (s *Scheduler) invalidated(stage string, err error) error {
	if !errors.Is(err, hal.ErrSurfaceOutdated) && !errors.Is(err, ErrSwapTargetInvalidated) {
		return fmt.Errorf("%s: %w", stage, err)
	}
	s.state = StateInvalidated
	slogger().Warn("frame: swap target invalidated", "stage", stage, "frame", s.frames)
	return s.recreate()
}

// skip maps the result of a recreation to a skipped frame.
func (s *Scheduler) skip(err error) (Outcome, error) {
	if err != nil {
		if errors.Is(err, hal.ErrZeroArea) {
			s.stats.Skipped++
			return SkippedZeroArea, nil
		}
		return 0, err
	}
	s.stats.Skipped++
	s.stats.Recreations++
	return SkippedInvalidated, nil
}

// recreate waits for the device, then rebuilds the swap target, the slots
// and the recorder's swap resources. A zero-area extent leaves the target
// unconfigured and reports hal.ErrZeroArea.
func (s *Scheduler) recreate() error {
	if err := s.ctx.Device.WaitIdle(); err != nil {
		return fmt.Errorf("wait idle before recreation: %w", err)
	}
	s.destroySlots()
	s.configured = false

	w, h := s.cfg.Extent()
	if w == 0 || h == 0 {
		s.state = StateInvalidated
		slogger().Debug("frame: zero-area target, frame skipped")
		return hal.ErrZeroArea
	}
	presentMode := hal.PresentModeImmediate
	if s.cfg.VSync {
		presentMode = hal.PresentModeFifo
	}
	if err := s.surface.Configure(s.ctx.Device, &hal.SurfaceConfiguration{
		Width:       w,
		Height:      h,
		Format:      s.cfg.Format,
		Usage:       gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc,
		PresentMode: presentMode,
	}); err != nil {
		return fmt.Errorf("configure surface %dx%d: %w", w, h, err)
	}
	s.width, s.height, s.vsync = w, h, s.cfg.VSync

	if err := s.createSlots(); err != nil {
		return err
	}
	if err := s.recorder.Resize(w, h); err != nil {
		return fmt.Errorf("resize to %dx%d: %w", w, h, err)
	}
	s.current = 0
	s.configured = true
	s.state = StateIdle
	slogger().Info("frame: swap target created", "width", w, "height", h, "vsync", s.vsync, "slots", len(s.slots))
	return nil
}

func (s *Scheduler) createSlots() error {
	dev := s.ctx.Device
	s.slots = make([]slot, s.cfg.FramesInFlight)
	for i := range s.slots {
		sl := &s.slots[i]
		var err error
		if sl.fence, err = dev.CreateFence(); err != nil {
			return fmt.Errorf("create slot %d fence: %w", i, err)
		}
		if sl.acquire, err = dev.CreateSemaphore(); err != nil {
			return fmt.Errorf("create slot %d acquire semaphore: %w", i, err)
		}
		if sl.finished, err = dev.CreateSemaphore(); err != nil {
			return fmt.Errorf("create slot %d finished semaphore: %w", i, err)
		}
		sl.uniform, err = dev.CreateBuffer(&hal.BufferDescriptor{
			Label: fmt.Sprintf("uniform %d", i),
			Size:  UniformSize,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst | gputypes.BufferUsageMapWrite,
		})
		if err != nil {
			return fmt.Errorf("create slot %d uniform buffer: %w", i, err)
		}
	}
	return nil
}

func (s *Scheduler) destroySlots() {
	dev := s.ctx.Device
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.uniform != nil {
			dev.DestroyBuffer(sl.uniform)
		}
		if sl.finished != nil {
			dev.DestroySemaphore(sl.finished)
		}
		if sl.acquire != nil {
			dev.DestroySemaphore(sl.acquire)
		}
		if sl.fence != nil {
			dev.DestroyFence(sl.fence)
		}
	}
	s.slots = nil
}

// Destroy waits for the device and releases the slots and the target.
func (s *Scheduler) Destroy() {
	if s.closed {
		return
	}
	s.closed = true
	if err := s.ctx.Device.WaitIdle(); err != nil {
		slogger().Warn("frame: wait idle before destroy", "err", err)
	}
	s.destroySlots()
	s.surface.Unconfigure(s.ctx.Device)
}
