package soft

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
)

// handleTable maps native handles to soft resources. Bind group entries
// reference buffers and views by native handle.
type handleTable struct {
	next    atomic.Uint64
	mu      sync.RWMutex
	entries map[uintptr]any
}

func (h *handleTable) add(res any) uintptr {
	id := uintptr(h.next.Add(1))
	h.mu.Lock()
	if h.entries == nil {
		h.entries = make(map[uintptr]any)
	}
	h.entries[id] = res
	h.mu.Unlock()
	return id
}

func (h *handleTable) remove(id uintptr) {
	h.mu.Lock()
	delete(h.entries, id)
	h.mu.Unlock()
}

func (h *handleTable) get(id uintptr) any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.entries[id]
}

// Buffer is device memory with a device address.
type Buffer struct {
	label   string
	data    []byte
	usage   gputypes.BufferUsage
	address rt.DeviceAddress
	handle  uintptr
}

// Destroy is a no-op; use Device.DestroyBuffer.
func (b *Buffer) Destroy() {}

// NativeHandle returns the handle bind groups use to reference the buffer.
func (b *Buffer) NativeHandle() uintptr { return b.handle }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }

// Texture is a 2D image in device memory.
type Texture struct {
	label  string
	width  uint32
	height uint32
	format gputypes.TextureFormat
	usage  gputypes.TextureUsage
	data   []byte
	handle uintptr
	refs   atomic.Int32
}

// Destroy is a no-op; use Device.DestroyTexture.
func (t *Texture) Destroy() {}

// NativeHandle returns the texture handle.
func (t *Texture) NativeHandle() uintptr { return t.handle }

// CurrentUsage returns the usage the texture was created with.
func (t *Texture) CurrentUsage() gputypes.TextureUsage { return t.usage }

// AddPendingRef marks the texture as referenced by queued work.
func (t *Texture) AddPendingRef() { t.refs.Add(1) }

// DecPendingRef releases a reference taken with AddPendingRef.
func (t *Texture) DecPendingRef() { t.refs.Add(-1) }

// Image returns a copy of the texture contents.
func (t *Texture) Image() Image {
	return Image{
		Width:  int(t.width),
		Height: int(t.height),
		Format: t.format,
		Pix:    append([]byte(nil), t.data...),
	}
}

func (t *Texture) rowPitch() int { return int(t.width) * bytesPerPixel(t.format) }

// TextureView references a texture from bind groups.
type TextureView struct {
	texture *Texture
	handle  uintptr
}

// Destroy is a no-op; use Device.DestroyTextureView.
func (v *TextureView) Destroy() {}

// NativeHandle returns the handle bind groups use to reference the view.
func (v *TextureView) NativeHandle() uintptr { return v.handle }

// Image is a texture snapshot or a texture bound to a program.
type Image struct {
	Width, Height int
	Format        gputypes.TextureFormat
	Pix           []byte
}

func bytesPerPixel(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatRGBA32Float:
		return 16
	case gputypes.TextureFormatRGBA16Float:
		return 8
	case gputypes.TextureFormatR8Unorm:
		return 1
	default:
		return 4
	}
}

type binding struct {
	buffer *Buffer
	offset uint64
	size   uint64
	view   *TextureView
}

func (b binding) bytes() []byte {
	if b.buffer == nil {
		return nil
	}
	end := uint64(len(b.buffer.data))
	if b.size != 0 && b.offset+b.size < end {
		end = b.offset + b.size
	}
	if b.offset > end {
		return nil
	}
	return b.buffer.data[b.offset:end]
}

// BindGroup is a resolved set of bindings.
type BindGroup struct {
	label   string
	entries map[uint32]binding
}

// Destroy is a no-op; use Device.DestroyBindGroup.
func (g *BindGroup) Destroy() {}

// ShaderModule keeps the module source for diagnostics. Programs are looked
// up by entry point.
type ShaderModule struct {
	label string
	spirv int
	wgsl  int
}

// Destroy is a no-op; use Device.DestroyShaderModule.
func (m *ShaderModule) Destroy() {}

// ComputePipeline runs a registered compute program.
type ComputePipeline struct {
	label   string
	program ComputeFunc
}

// Destroy is a no-op; use Device.DestroyComputePipeline.
func (p *ComputePipeline) Destroy() {}

// RayTracingPipeline holds resolved programs per shader group.
type RayTracingPipeline struct {
	label    string
	id       uint32
	groups   []shaderGroup
	maxDepth uint32
}

// Destroy is a no-op; use Device.DestroyRayTracingPipeline.
func (p *RayTracingPipeline) Destroy() {}

type shaderGroup struct {
	kind         rt.ShaderGroupType
	rayGen       RayGenFunc
	miss         MissFunc
	closestHit   ClosestHitFunc
	anyHit       AnyHitFunc
	intersection IntersectionFunc
}

// Fence is signaled by the timeline when submitted work completes.
type Fence struct {
	value uint64 // guarded by timeline.mu
}

// Destroy is a no-op; use Device.DestroyFence.
func (f *Fence) Destroy() {}

// Semaphore is a binary semaphore living on the timeline.
type Semaphore struct {
	signaled bool // guarded by timeline.mu
}

// Destroy is a no-op; use Device.DestroySemaphore.
func (s *Semaphore) Destroy() {}

// AccelerationStructure is storage reserved inside a buffer plus the
// hierarchy built into it.
type AccelerationStructure struct {
	label   string
	kind    rt.StructureType
	buffer  *Buffer
	offset  uint64
	size    uint64
	address rt.DeviceAddress

	mu    sync.RWMutex
	built *builtStructure
}

// Destroy is a no-op; use Device.DestroyAccelerationStructure.
func (a *AccelerationStructure) Destroy() {}

func (a *AccelerationStructure) snapshot() *builtStructure {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.built
}

func (a *AccelerationStructure) store(b *builtStructure) {
	a.mu.Lock()
	a.built = b
	a.mu.Unlock()
}

// CommandBuffer is a recorded list of commands.
type CommandBuffer struct {
	label string
	cmds  []command
}

// Destroy is a no-op; use Device.FreeCommandBuffer.
func (c *CommandBuffer) Destroy() {}

var (
	_ hal.Buffer         = (*Buffer)(nil)
	_ hal.SurfaceTexture = (*Texture)(nil)
	_ hal.TextureView    = (*TextureView)(nil)
	_ hal.BindGroup      = (*BindGroup)(nil)
	_ hal.Fence          = (*Fence)(nil)
	_ rt.Semaphore       = (*Semaphore)(nil)
	_ hal.CommandBuffer  = (*CommandBuffer)(nil)
)
