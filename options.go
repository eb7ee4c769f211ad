package pathtrace

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/pathtrace/frame"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
)

// Option configures a Renderer during creation.
//
// Example:
//
//	// Offscreen renderer on the first ray-tracing adapter
//	r, err := pathtrace.New(pathtrace.WithSize(640, 360), pathtrace.WithSamples(4))
//
//	// Windowed renderer presenting to an existing surface
//	r, err := pathtrace.New(pathtrace.WithWindow(win), pathtrace.WithSurface(surface))
type Option func(*options)

// options holds the configuration of a Renderer.
type options struct {
	width, height  uint32
	framesInFlight int

	samples    uint32
	bounces    uint32
	maxSamples uint32
	vsync      bool

	sceneName string
	scene     Scene

	surface hal.Surface
	window  gpucontext.WindowProvider
	backend string

	device rt.Device
	queue  rt.Queue
}

// defaultOptions returns the default renderer options.
func defaultOptions() options {
	s := frame.DefaultSettings()
	return options{
		width:          1280,
		height:         720,
		framesInFlight: frame.DefaultFramesInFlight,
		samples:        s.NumberOfSamples,
		bounces:        s.NumberOfBounces,
		maxSamples:     s.MaxNumberOfSamples,
		vsync:          s.VSync,
	}
}

// WithSize sets the size of an offscreen target. It is ignored when a
// window provides the size.
func WithSize(width, height uint32) Option {
	return func(o *options) {
		o.width, o.height = width, height
	}
}

// WithFramesInFlight sets how many frames may be recorded ahead of the
// device. Values below one are ignored.
func WithFramesInFlight(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.framesInFlight = n
		}
	}
}

// WithSamples sets the number of samples traced per pixel and frame.
func WithSamples(n uint32) Option {
	return func(o *options) {
		o.samples = n
	}
}

// WithBounces sets the maximum path length.
func WithBounces(n uint32) Option {
	return func(o *options) {
		o.bounces = n
	}
}

// WithMaxSamples caps the accumulated samples per pixel.
func WithMaxSamples(n uint32) Option {
	return func(o *options) {
		o.maxSamples = n
	}
}

// WithVSync selects the FIFO present mode when v is true and the
// immediate mode otherwise.
func WithVSync(v bool) Option {
	return func(o *options) {
		o.vsync = v
	}
}

// WithScene loads the registered scene called name, or the scene at that
// index of the registry.
func WithScene(name string) Option {
	return func(o *options) {
		o.sceneName = name
		o.scene = nil
	}
}

// WithSceneValue loads s instead of a registered scene.
func WithSceneValue(s Scene) Option {
	return func(o *options) {
		o.scene = s
		o.sceneName = ""
	}
}

// WithSurface presents frames to surface. Without it the renderer draws
// into an offscreen surface of the software device.
func WithSurface(surface hal.Surface) Option {
	return func(o *options) {
		o.surface = surface
	}
}

// WithWindow takes the target size from w. When w also implements
// gpucontext.EventSource, the renderer follows its resize events and the
// camera follows its input.
func WithWindow(w gpucontext.WindowProvider) Option {
	return func(o *options) {
		o.window = w
	}
}

// WithBackend selects a ray-tracing backend by name. The empty name tries
// every registered backend.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithDevice renders on an existing device instead of opening one. The
// renderer does not destroy it.
func WithDevice(dev rt.Device, queue rt.Queue) Option {
	return func(o *options) {
		o.device, o.queue = dev, queue
	}
}
