package soft

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// Device executes HAL and ray-tracing commands on the CPU. Objects the
// software device has no use for (samplers, layouts, render pipelines) come
// from the embedded HAL device.
type Device struct {
	hal.Device

	addrs    addressSpace
	handles  handleTable
	budget   *memoryBudget
	timeline *timeline
	queue    *Queue
	workers  int

	nextPipeline atomic.Uint32
	destroyOnce  sync.Once
}

// Option configures a Device.
type Option func(*options)

type options struct {
	memoryMB int
	workers  int
}

// WithMemoryLimit caps buffer and texture memory at mb megabytes.
func WithMemoryLimit(mb int) Option {
	return func(o *options) { o.memoryMB = mb }
}

// WithWorkers sets the number of goroutines a ray dispatch runs on. Zero
// uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// New returns a software device and its queue.
func New(opts ...Option) (*Device, *Queue) {
	return newDevice(&noop.Device{}, opts...)
}

func newDevice(inner hal.Device, opts ...Option) (*Device, *Queue) {
	o := options{memoryMB: DefaultMemoryMB}
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{
		Device:  inner,
		budget:  newMemoryBudget(o.memoryMB),
		workers: o.workers,
	}
	d.timeline = newTimeline(d)
	d.queue = &Queue{dev: d}
	return d, d.queue
}

// Properties returns the ray-tracing limits of the software device.
func (d *Device) Properties() rt.Properties {
	return rt.Properties{
		ShaderGroupHandleSize:      handleSize,
		ShaderGroupHandleAlignment: 32,
		ShaderGroupBaseAlignment:   64,
		MaxRecursionDepth:          1,
		MinScratchOffsetAlignment:  128,
		MaxInstanceCount:           1 << 24,
		MaxPrimitiveCount:          1 << 29,
		MaxGeometryCount:           1 << 24,
	}
}

// MemoryStats reports buffer and texture memory use.
func (d *Device) MemoryStats() MemoryStats { return d.budget.stats() }

func (d *Device) buffer(b hal.Buffer) (*Buffer, error) {
	buf, ok := b.(*Buffer)
	if !ok || buf == nil {
		return nil, fmt.Errorf("%w: buffer %T", ErrForeignResource, b)
	}
	return buf, nil
}

func (d *Device) texture(t hal.Texture) (*Texture, error) {
	tex, ok := t.(*Texture)
	if !ok || tex == nil {
		return nil, fmt.Errorf("%w: texture %T", ErrForeignResource, t)
	}
	return tex, nil
}

func (d *Device) semaphore(s rt.Semaphore) (*Semaphore, error) {
	if s == nil {
		return nil, nil
	}
	sem, ok := s.(*Semaphore)
	if !ok || sem == nil {
		return nil, fmt.Errorf("%w: semaphore %T", ErrForeignResource, s)
	}
	return sem, nil
}

// CreateBuffer allocates zeroed device memory with a device address.
func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	if desc == nil {
		return nil, fmt.Errorf("soft: nil buffer descriptor")
	}
	if err := d.budget.reserve(desc.Label, desc.Size); err != nil {
		return nil, err
	}
	b := &Buffer{label: desc.Label, data: make([]byte, desc.Size), usage: desc.Usage}
	b.handle = d.handles.add(b)
	d.addrs.assign(b)
	return b, nil
}

// DestroyBuffer releases the buffer memory. Its address is not reused.
func (d *Device) DestroyBuffer(buffer hal.Buffer) {
	b, ok := buffer.(*Buffer)
	if !ok || b == nil || b.handle == 0 {
		return
	}
	d.addrs.release(b)
	d.handles.remove(b.handle)
	d.budget.release(b.Size())
	b.handle = 0
}

// MapBuffer returns a pointer into buffer memory. Callers must wait for
// writing work to complete first.
func (d *Device) MapBuffer(buffer hal.Buffer, offset, size uint64) (hal.BufferMapping, error) {
	b, err := d.buffer(buffer)
	if err != nil {
		return hal.BufferMapping{}, err
	}
	if b.usage&(gputypes.BufferUsageMapRead|gputypes.BufferUsageMapWrite) == 0 || offset+size > b.Size() || size == 0 {
		return hal.BufferMapping{}, hal.ErrInvalidMapRange
	}
	return hal.BufferMapping{Ptr: unsafe.Pointer(&b.data[offset]), IsCoherent: true}, nil
}

// UnmapBuffer is a no-op; buffers stay mapped.
func (d *Device) UnmapBuffer(hal.Buffer) error { return nil }

// ReadBuffer copies size bytes at offset out of a mappable buffer.
func (d *Device) ReadBuffer(buffer hal.Buffer, offset, size uint64) ([]byte, error) {
	m, err := d.MapBuffer(buffer, offset, size)
	if err != nil {
		return nil, err
	}
	defer func() { _ = d.UnmapBuffer(buffer) }()
	return append([]byte(nil), unsafe.Slice((*byte)(m.Ptr), size)...), nil
}

// CreateTexture allocates a 2D texture.
func (d *Device) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	if desc == nil {
		return nil, fmt.Errorf("soft: nil texture descriptor")
	}
	if desc.Dimension != gputypes.TextureDimension2D && desc.Dimension != gputypes.TextureDimensionUndefined {
		return nil, fmt.Errorf("%w: %v textures", rt.ErrUnsupportedCapability, desc.Dimension)
	}
	if desc.Size.DepthOrArrayLayers > 1 || desc.MipLevelCount > 1 || desc.SampleCount > 1 {
		return nil, fmt.Errorf("%w: layered, mipmapped or multisampled textures", rt.ErrUnsupportedCapability)
	}
	return d.newTexture(desc.Label, desc.Size.Width, desc.Size.Height, desc.Format, desc.Usage)
}

func (d *Device) newTexture(label string, width, height uint32, format gputypes.TextureFormat, usage gputypes.TextureUsage) (*Texture, error) {
	if width == 0 || height == 0 {
		return nil, hal.ErrZeroArea
	}
	size := uint64(width) * uint64(height) * uint64(bytesPerPixel(format))
	if err := d.budget.reserve(label, size); err != nil {
		return nil, err
	}
	t := &Texture{label: label, width: width, height: height, format: format, usage: usage, data: make([]byte, size)}
	t.handle = d.handles.add(t)
	return t, nil
}

// DestroyTexture releases texture memory.
func (d *Device) DestroyTexture(texture hal.Texture) {
	t, ok := texture.(*Texture)
	if !ok || t == nil || t.handle == 0 {
		return
	}
	d.handles.remove(t.handle)
	d.budget.release(uint64(len(t.data)))
	t.handle = 0
}

// CreateTextureView returns a view of the whole texture.
func (d *Device) CreateTextureView(texture hal.Texture, _ *hal.TextureViewDescriptor) (hal.TextureView, error) {
	t, err := d.texture(texture)
	if err != nil {
		return nil, err
	}
	v := &TextureView{texture: t}
	v.handle = d.handles.add(v)
	return v, nil
}

// DestroyTextureView releases the view handle.
func (d *Device) DestroyTextureView(view hal.TextureView) {
	if v, ok := view.(*TextureView); ok && v != nil {
		d.handles.remove(v.handle)
	}
}

// CreateBindGroup resolves buffer and texture view bindings by handle.
func (d *Device) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	g := &BindGroup{label: desc.Label, entries: make(map[uint32]binding, len(desc.Entries))}
	for _, e := range desc.Entries {
		switch r := e.Resource.(type) {
		case gputypes.BufferBinding:
			b, ok := d.handles.get(r.Buffer).(*Buffer)
			if !ok {
				return nil, fmt.Errorf("%w: %q binding %d: unknown buffer handle", ErrForeignResource, desc.Label, e.Binding)
			}
			if r.Offset > b.Size() || r.Offset+r.Size > b.Size() {
				return nil, fmt.Errorf("soft: %q binding %d: range %d+%d exceeds %q", desc.Label, e.Binding, r.Offset, r.Size, b.label)
			}
			g.entries[e.Binding] = binding{buffer: b, offset: r.Offset, size: r.Size}
		case gputypes.TextureViewBinding:
			v, ok := d.handles.get(r.TextureView).(*TextureView)
			if !ok {
				return nil, fmt.Errorf("%w: %q binding %d: unknown texture view handle", ErrForeignResource, desc.Label, e.Binding)
			}
			g.entries[e.Binding] = binding{view: v}
		default:
			// Samplers are accepted and ignored; programs fetch texels
			// directly.
		}
	}
	return g, nil
}

// DestroyBindGroup is a no-op.
func (d *Device) DestroyBindGroup(hal.BindGroup) {}

// CreateShaderModule keeps the module source. Programs are looked up by
// entry point when pipelines are created.
func (d *Device) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	return &ShaderModule{label: desc.Label, spirv: len(desc.Source.SPIRV), wgsl: len(desc.Source.WGSL)}, nil
}

// DestroyShaderModule is a no-op.
func (d *Device) DestroyShaderModule(hal.ShaderModule) {}

// CreateComputePipeline resolves the compute program registered under the
// entry point.
func (d *Device) CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.ComputePipeline, error) {
	fn, err := lookupComputeProgram(desc.Compute.EntryPoint)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", desc.Label, err)
	}
	return &ComputePipeline{label: desc.Label, program: fn}, nil
}

// DestroyComputePipeline is a no-op.
func (d *Device) DestroyComputePipeline(hal.ComputePipeline) {}

// CreateCommandEncoder returns a ray-tracing capable encoder.
func (d *Device) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	return d.CreateRayTracingEncoder(desc)
}

// CreateRayTracingEncoder returns a new encoder.
func (d *Device) CreateRayTracingEncoder(desc *hal.CommandEncoderDescriptor) (rt.CommandEncoder, error) {
	e := &CommandEncoder{dev: d}
	if desc != nil {
		e.label = desc.Label
	}
	return e, nil
}

// FreeCommandBuffer is a no-op.
func (d *Device) FreeCommandBuffer(hal.CommandBuffer) {}

// CreateFence returns a fence at value zero.
func (d *Device) CreateFence() (hal.Fence, error) { return &Fence{}, nil }

// DestroyFence is a no-op.
func (d *Device) DestroyFence(hal.Fence) {}

// Wait blocks until fence reaches value. A negative timeout waits forever.
func (d *Device) Wait(fence hal.Fence, value uint64, timeout time.Duration) (bool, error) {
	f, ok := fence.(*Fence)
	if !ok {
		return false, fmt.Errorf("%w: fence %T", ErrForeignResource, fence)
	}
	t := d.timeline
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waitFor(func() bool { return f.value >= value }, timeout)
}

// ResetFence sets the fence value back to zero.
func (d *Device) ResetFence(fence hal.Fence) error {
	f, ok := fence.(*Fence)
	if !ok {
		return fmt.Errorf("%w: fence %T", ErrForeignResource, fence)
	}
	d.timeline.mu.Lock()
	f.value = 0
	d.timeline.mu.Unlock()
	return nil
}

// GetFenceStatus reports whether the fence was signaled.
func (d *Device) GetFenceStatus(fence hal.Fence) (bool, error) {
	f, ok := fence.(*Fence)
	if !ok {
		return false, fmt.Errorf("%w: fence %T", ErrForeignResource, fence)
	}
	d.timeline.mu.Lock()
	defer d.timeline.mu.Unlock()
	return f.value > 0, nil
}

// FenceValue returns the last value the fence was signaled with.
func (d *Device) FenceValue(fence hal.Fence) uint64 {
	f, ok := fence.(*Fence)
	if !ok {
		return 0
	}
	d.timeline.mu.Lock()
	defer d.timeline.mu.Unlock()
	return f.value
}

// WaitIdle waits for all submitted work and reports a lost device.
func (d *Device) WaitIdle() error { return d.timeline.idle() }

// Destroy stops the timeline after pending work drains.
func (d *Device) Destroy() {
	d.destroyOnce.Do(func() {
		d.timeline.close()
		d.Device.Destroy()
		slogger().Debug("soft: device destroyed", "memory", d.budget.stats().String())
	})
}

// BufferAddress returns the device address of buffer.
func (d *Device) BufferAddress(buffer hal.Buffer) rt.DeviceAddress {
	b, ok := buffer.(*Buffer)
	if !ok {
		return 0
	}
	return b.address
}

// BuildSizes returns the storage and scratch a build of info needs.
func (d *Device) BuildSizes(info *rt.BuildGeometryInfo) (rt.BuildSizes, error) {
	for i := range info.Geometries {
		g := &info.Geometries[i]
		if (info.Type == rt.TopLevel) != (g.Type == rt.GeometryInstances) {
			return rt.BuildSizes{}, fmt.Errorf("%w: %s geometry in %s build", rt.ErrInvalidGeometry, g.Type, info.Type)
		}
	}
	return buildSizes(info), nil
}

// CreateAccelerationStructure places a structure at offset in desc.Buffer.
func (d *Device) CreateAccelerationStructure(desc *rt.AccelerationStructureDescriptor) (rt.AccelerationStructure, error) {
	b, err := d.buffer(desc.Buffer)
	if err != nil {
		return nil, err
	}
	if desc.Offset%rt.StructureAlignment != 0 {
		return nil, fmt.Errorf("%w: structure offset %d is not %d-aligned", rt.ErrInvalidBuild, desc.Offset, rt.StructureAlignment)
	}
	if err := checkBufferRange(b, desc.Offset, desc.Size); err != nil {
		return nil, fmt.Errorf("%w: %w", rt.ErrInvalidBuild, err)
	}
	a := &AccelerationStructure{
		label:   desc.Label,
		kind:    desc.Type,
		buffer:  b,
		offset:  desc.Offset,
		size:    desc.Size,
		address: b.address.Offset(desc.Offset),
	}
	d.addrs.addStructure(a)
	return a, nil
}

// DestroyAccelerationStructure releases the structure address.
func (d *Device) DestroyAccelerationStructure(as rt.AccelerationStructure) {
	if a, ok := as.(*AccelerationStructure); ok {
		d.addrs.removeStructure(a)
	}
}

// StructureAddress returns the address instances use to reference as.
func (d *Device) StructureAddress(as rt.AccelerationStructure) rt.DeviceAddress {
	a, ok := as.(*AccelerationStructure)
	if !ok {
		return 0
	}
	return a.address
}

// CreateRayTracingPipeline resolves the programs of every shader group.
func (d *Device) CreateRayTracingPipeline(desc *rt.RayTracingPipelineDescriptor) (rt.RayTracingPipeline, error) {
	props := d.Properties()
	if desc.MaxRecursionDepth > props.MaxRecursionDepth {
		return nil, fmt.Errorf("%w: recursion depth %d exceeds %d", rt.ErrUnsupportedCapability, desc.MaxRecursionDepth, props.MaxRecursionDepth)
	}
	stages := make([]Program, len(desc.Stages))
	for i, s := range desc.Stages {
		p, err := lookupProgram(s.Stage, s.EntryPoint)
		if err != nil {
			return nil, fmt.Errorf("%q stage %d: %w", desc.Label, i, err)
		}
		stages[i] = p
	}
	stage := func(idx int32, want rt.ShaderStage) (Program, error) {
		if idx == rt.ShaderUnused {
			return nil, nil
		}
		if idx < 0 || int(idx) >= len(stages) {
			return nil, fmt.Errorf("%w: stage index %d out of range", rt.ErrInvalidBuild, idx)
		}
		if stages[idx].Stage() != want {
			return nil, fmt.Errorf("%w: stage %d is %s, want %s", rt.ErrInvalidBuild, idx, stages[idx].Stage(), want)
		}
		return stages[idx], nil
	}

	p := &RayTracingPipeline{
		label:    desc.Label,
		id:       d.nextPipeline.Add(1),
		groups:   make([]shaderGroup, len(desc.Groups)),
		maxDepth: max(desc.MaxRecursionDepth, 1),
	}
	for gi, g := range desc.Groups {
		sg := &p.groups[gi]
		sg.kind = g.Type
		switch g.Type {
		case rt.GroupGeneral:
			if g.ClosestHit != rt.ShaderUnused || g.AnyHit != rt.ShaderUnused || g.Intersection != rt.ShaderUnused {
				return nil, fmt.Errorf("%q group %d: %w: general group with hit stages", desc.Label, gi, rt.ErrInvalidBuild)
			}
			if g.General < 0 || int(g.General) >= len(stages) {
				return nil, fmt.Errorf("%q group %d: %w: general stage index %d", desc.Label, gi, rt.ErrInvalidBuild, g.General)
			}
			switch fn := stages[g.General].(type) {
			case RayGenFunc:
				sg.rayGen = fn
			case MissFunc:
				sg.miss = fn
			default:
				return nil, fmt.Errorf("%q group %d: %w: %s stage in general group", desc.Label, gi, rt.ErrInvalidBuild, fn.Stage())
			}
		case rt.GroupTrianglesHit, rt.GroupProceduralHit:
			if g.General != rt.ShaderUnused {
				return nil, fmt.Errorf("%q group %d: %w: hit group with general stage", desc.Label, gi, rt.ErrInvalidBuild)
			}
			if ch, err := stage(g.ClosestHit, rt.StageClosestHit); err != nil {
				return nil, fmt.Errorf("%q group %d: %w", desc.Label, gi, err)
			} else if ch != nil {
				sg.closestHit = ch.(ClosestHitFunc)
			}
			if ah, err := stage(g.AnyHit, rt.StageAnyHit); err != nil {
				return nil, fmt.Errorf("%q group %d: %w", desc.Label, gi, err)
			} else if ah != nil {
				sg.anyHit = ah.(AnyHitFunc)
			}
			is, err := stage(g.Intersection, rt.StageIntersection)
			if err != nil {
				return nil, fmt.Errorf("%q group %d: %w", desc.Label, gi, err)
			}
			if (is != nil) != (g.Type == rt.GroupProceduralHit) {
				return nil, fmt.Errorf("%q group %d: %w: intersection stage required for procedural groups only", desc.Label, gi, rt.ErrInvalidBuild)
			}
			if is != nil {
				sg.intersection = is.(IntersectionFunc)
			}
		default:
			return nil, fmt.Errorf("%q group %d: %w: unknown group type %d", desc.Label, gi, rt.ErrInvalidBuild, g.Type)
		}
	}
	slogger().Debug("soft: ray-tracing pipeline created", "label", desc.Label, "groups", len(p.groups))
	return p, nil
}

// DestroyRayTracingPipeline is a no-op.
func (d *Device) DestroyRayTracingPipeline(rt.RayTracingPipeline) {}

// ShaderGroupHandles returns the handles of groupCount groups starting at
// firstGroup, packed without padding.
func (d *Device) ShaderGroupHandles(pipeline rt.RayTracingPipeline, firstGroup, groupCount uint32) ([]byte, error) {
	p, ok := pipeline.(*RayTracingPipeline)
	if !ok {
		return nil, fmt.Errorf("%w: pipeline %T", ErrForeignResource, pipeline)
	}
	if uint64(firstGroup)+uint64(groupCount) > uint64(len(p.groups)) {
		return nil, fmt.Errorf("soft: groups %d+%d exceed %d in %q", firstGroup, groupCount, len(p.groups), p.label)
	}
	out := make([]byte, 0, int(groupCount)*handleSize)
	for g := firstGroup; g < firstGroup+groupCount; g++ {
		out = append(out, encodeHandle(p.id, g)...)
	}
	return out, nil
}

// CreateSemaphore returns an unsignaled binary semaphore.
func (d *Device) CreateSemaphore() (rt.Semaphore, error) { return &Semaphore{}, nil }

// DestroySemaphore is a no-op.
func (d *Device) DestroySemaphore(rt.Semaphore) {}

var _ rt.Device = (*Device)(nil)
