package pathtrace

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtrace/accel"
	"github.com/gogpu/pathtrace/assets"
	"github.com/gogpu/pathtrace/frame"
	"github.com/gogpu/pathtrace/internal/kernel"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/pathtrace/rt/soft"
	"github.com/gogpu/pathtrace/scenes"
	"github.com/gogpu/wgpu/hal"
)

// Scene supplies objects, textures and animation to a Renderer.
type Scene = scenes.Scene

// loadedScene is a scene resident on the device together with the programs
// that trace it.
type loadedScene struct {
	name    string
	scene   Scene
	device  *accel.DeviceScene
	structs *accel.Structures
	kernel  *kernel.Kernel
}

// destroy releases the scene. The device must be idle.
func (l *loadedScene) destroy(targets *kernel.Targets) {
	if targets != nil {
		l.kernel.Release(targets)
	}
	l.kernel.Destroy()
	l.structs.Destroy()
	l.device.Destroy()
}

// Renderer is a path-tracing session: a device, a loaded scene, a swap
// target and the frame loop that accumulates samples into it.
//
// A Renderer is driven from one goroutine. The camera controller it owns
// may receive input from another.
type Renderer struct {
	opts options

	opened    *rt.OpenedDevice
	ctx       *rt.Context
	surface   hal.Surface
	offscreen *soft.Surface

	scheduler *frame.Scheduler
	targets   *kernel.Targets
	loaded    *loadedScene

	settings   frame.Settings
	policy     frame.AccumulationPolicy
	camera     assets.CameraState
	controller *CameraController
	transforms []mgl32.Mat4

	resized atomic.Bool
	now     func() time.Time
	last    time.Time

	frameTime    time.Duration
	frameSamples uint32
	stats        Stats

	failed error
	closed bool
}

// New opens a ray-tracing device, loads the initial scene and creates the
// swap target.
func New(opts ...Option) (*Renderer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	r := &Renderer{
		opts:       o,
		settings:   frame.DefaultSettings(),
		controller: NewCameraController(),
		now:        time.Now,
	}
	r.settings.NumberOfSamples = o.samples
	r.settings.NumberOfBounces = o.bounces
	r.settings.MaxNumberOfSamples = o.maxSamples
	r.settings.VSync = o.vsync

	if err := r.openDevice(); err != nil {
		return nil, err
	}

	scene, name, err := resolveScene(&o)
	if err != nil {
		r.Close()
		return nil, err
	}
	if err := r.load(scene, name); err != nil {
		r.Close()
		return nil, err
	}

	r.surface = o.surface
	if r.surface == nil {
		r.offscreen = soft.NewSurface(o.framesInFlight)
		r.surface = r.offscreen
	}
	if ev, ok := o.window.(gpucontext.EventSource); ok {
		r.controller.Attach(ev)
		ev.OnResize(func(int, int) { r.resized.Store(true) })
	}

	r.scheduler, err = frame.NewScheduler(r.ctx, r.surface, (*recorder)(r), frame.Config{
		FramesInFlight: o.framesInFlight,
		Format:         gputypes.TextureFormatRGBA8Unorm,
		VSync:          o.vsync,
		Extent:         r.extent,
	})
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("pathtrace: create swap target: %w", err)
	}
	return r, nil
}

func (r *Renderer) openDevice() error {
	if r.opts.device != nil {
		r.ctx = rt.NewContext(r.opts.device, r.opts.queue)
		return nil
	}
	opened, err := rt.OpenDevice(r.opts.backend)
	if err != nil {
		return fmt.Errorf("pathtrace: open device: %w", err)
	}
	r.opened = opened
	r.ctx = rt.NewContext(opened.Device, opened.Queue)
	slogger().Info("pathtrace: device selected", "adapter", opened.Adapter.Name, "backend", opened.Backend)
	return nil
}

func resolveScene(o *options) (Scene, string, error) {
	if o.scene != nil {
		return o.scene, fmt.Sprintf("%T", o.scene), nil
	}
	name := o.sceneName
	if name == "" {
		name = scenes.Default()
	}
	e, err := scenes.Lookup(name)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrNoScene, err)
	}
	return e.New(), e.Name, nil
}

// extent returns the physical size of the window, or the offscreen size.
func (r *Renderer) extent() (width, height uint32) {
	if r.opts.window == nil {
		return r.opts.width, r.opts.height
	}
	w, h := r.opts.window.Size()
	scale := r.opts.window.ScaleFactor()
	return physical(w, scale), physical(h, scale)
}

func physical(logical int, scale float64) uint32 {
	if logical <= 0 {
		return 0
	}
	return uint32(math.Round(float64(logical) * scale))
}

// LoadScene replaces the active scene with the registered scene called
// name. On error the previous scene stays active.
func (r *Renderer) LoadScene(name string) error {
	if r.closed {
		return ErrClosed
	}
	e, err := scenes.Lookup(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSceneLoad, err)
	}
	return r.load(e.New(), e.Name)
}

// SetScene replaces the active scene with s. On error the previous scene
// stays active.
func (r *Renderer) SetScene(s Scene) error {
	if r.closed {
		return ErrClosed
	}
	return r.load(s, fmt.Sprintf("%T", s))
}

// load builds s on the device and makes it active. Nothing is replaced
// until every step succeeded.
func (r *Renderer) load(s Scene, name string) error {
	start := time.Now()
	var camera assets.CameraState
	s.Reset(&camera)

	buffers, err := assets.Aggregate(s.Objects())
	if err != nil {
		return fmt.Errorf("load %q: %w", name, err)
	}
	if err := r.ctx.Device.WaitIdle(); err != nil {
		return fmt.Errorf("load %q: wait idle: %w", name, err)
	}
	next := &loadedScene{name: name, scene: s}
	next.device, err = accel.UploadScene(r.ctx, buffers, s.Textures())
	if err != nil {
		if !errors.Is(err, ErrSceneLoad) {
			err = fmt.Errorf("%w: %w", ErrSceneLoad, err)
		}
		return fmt.Errorf("load %q: %w", name, err)
	}
	next.structs, err = accel.Build(r.ctx, next.device)
	if err != nil {
		next.device.Destroy()
		return fmt.Errorf("load %q: %w", name, err)
	}
	next.kernel, err = kernel.New(r.ctx, len(next.device.Views))
	if err != nil {
		next.structs.Destroy()
		next.device.Destroy()
		return fmt.Errorf("load %q: %w", name, err)
	}
	if r.targets != nil {
		if err := r.targets.SetGamma(camera.GammaCorrection); err != nil {
			next.destroy(nil)
			return fmt.Errorf("load %q: %w", name, err)
		}
	}

	if r.loaded != nil {
		r.loaded.destroy(r.targets)
	}
	r.loaded = next
	r.camera = camera
	r.settings.SceneName = name
	r.settings.ApplyCamera(&camera)
	r.controller.Reset(camera.ModelView)
	r.transforms = next.device.Transforms()
	r.policy.RequestReset()
	r.last = time.Time{}
	slogger().Info("pathtrace: scene loaded",
		"scene", name,
		"objects", buffers.ObjectCount(),
		"textures", len(next.device.Views),
		"elapsed", time.Since(start))
	return nil
}

// Settings returns a copy of the current settings.
func (r *Renderer) Settings() frame.Settings { return r.settings }

// UpdateSettings applies fn to the settings. Changes that affect the image
// discard the accumulated samples on the next frame, and a VSync change
// recreates the swap target.
func (r *Renderer) UpdateSettings(fn func(s *frame.Settings)) {
	fn(&r.settings)
	r.settings.ClampFieldOfView()
	r.scheduler.SetVSync(r.settings.VSync)
}

// Camera returns the controller that moves the camera.
func (r *Renderer) Camera() *CameraController { return r.controller }

// SetSize resizes an offscreen target. The next frame recreates the
// target and is skipped. It has no effect when a window provides the size.
func (r *Renderer) SetSize(width, height uint32) {
	r.opts.width, r.opts.height = width, height
	if r.offscreen != nil {
		r.offscreen.Resize(width, height)
	} else {
		r.resized.Store(true)
	}
}

// DrawFrame renders one frame. Swap target invalidation is recovered
// inside and reported through the outcome; a returned error is fatal and
// ends the session.
func (r *Renderer) DrawFrame() (frame.Outcome, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if r.failed != nil {
		return 0, r.failed
	}
	if r.resized.Swap(false) {
		r.scheduler.Invalidate()
	}
	out, err := r.scheduler.DrawFrame()
	if err != nil {
		r.failed = fmt.Errorf("pathtrace: %w", err)
		slogger().Error("pathtrace: frame failed", "err", err)
		return 0, r.failed
	}
	if out == frame.Presented {
		r.updateStats()
	}
	return out, nil
}

// Close waits for the device and releases every resource the renderer
// created.
func (r *Renderer) Close() {
	if r.closed {
		return
	}
	r.closed = true
	if r.scheduler != nil {
		r.scheduler.Destroy()
	} else if r.ctx != nil {
		if err := r.ctx.Device.WaitIdle(); err != nil {
			slogger().Warn("pathtrace: wait idle before close", "err", err)
		}
	}
	if r.loaded != nil {
		r.loaded.destroy(r.targets)
		r.loaded = nil
	}
	if r.targets != nil {
		r.targets.Destroy()
		r.targets = nil
	}
	if r.offscreen != nil {
		r.offscreen.Destroy()
	}
	if r.opened != nil {
		r.opened.Close()
	}
}

// recorder is the frame.Recorder view of a Renderer.
type recorder Renderer

// Resize recreates the output targets for the new swap target size.
func (rec *recorder) Resize(width, height uint32) error {
	r := (*Renderer)(rec)
	t, err := kernel.NewTargets(r.ctx, width, height, r.camera.GammaCorrection)
	if err != nil {
		return err
	}
	if r.targets != nil {
		r.loaded.kernel.Release(r.targets)
		r.targets.Destroy()
	}
	r.targets = t
	r.policy.RequestReset()
	return nil
}

// Record advances animation and the camera, updates the top-level
// structure when objects moved and records the trace and resolve passes.
func (rec *recorder) Record(enc rt.CommandEncoder, f *frame.Frame) error {
	r := (*Renderer)(rec)
	l := r.loaded

	now := r.now()
	var dt time.Duration
	if !r.last.IsZero() {
		dt = now.Sub(r.last)
	}
	r.last = now

	transformsChanged := l.scene.UpdateTransforms(dt, &r.settings, r.transforms)
	if transformsChanged {
		if err := l.structs.Instances.Rebuild(enc, r.transforms); err != nil {
			return err
		}
		enc.StructureBarrier()
	}

	cameraMoved := r.controller.Update(r.camera.ControlSpeed, dt)
	if step := r.controller.TakeFieldOfViewStep(); step != 0 {
		r.settings.FieldOfView += step
		r.settings.ClampFieldOfView()
	}
	r.camera.ModelView = r.controller.ModelView()

	budget := r.policy.Next(&r.settings, cameraMoved, transformsChanged)
	ubo := frame.NewUniform(&r.camera, &r.settings, budget, f.Width, f.Height, uint32(f.Number))
	if err := r.ctx.Queue.WriteBuffer(f.Uniform, 0, rt.Bytes([]frame.UniformBufferObject{ubo})); err != nil {
		return fmt.Errorf("write uniforms: %w", err)
	}
	r.frameTime, r.frameSamples = dt, budget.Samples
	return l.kernel.Record(enc, l.device, l.structs.Instances.Handle(), r.targets, f.Uniform, f.Target)
}
