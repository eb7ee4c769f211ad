package rt

import (
	"github.com/gogpu/wgpu/hal"
)

// AccelerationStructure is an opaque built or buildable structure.
type AccelerationStructure interface {
	hal.Resource
}

// RayTracingPipeline is a compiled set of ray-tracing programs.
type RayTracingPipeline interface {
	hal.Resource
}

// Semaphore orders GPU work between acquire, submit and present. It is
// binary: each signal is consumed by exactly one wait.
type Semaphore interface {
	hal.Resource
}

// Device is a HAL device with ray-tracing support.
type Device interface {
	hal.Device

	// Properties returns the ray-tracing limits.
	Properties() Properties

	// BufferAddress returns the device address of the start of buffer.
	BufferAddress(buffer hal.Buffer) DeviceAddress

	// BuildSizes returns the storage and scratch a build of info needs.
	BuildSizes(info *BuildGeometryInfo) (BuildSizes, error)

	CreateAccelerationStructure(desc *AccelerationStructureDescriptor) (AccelerationStructure, error)
	DestroyAccelerationStructure(as AccelerationStructure)

	// StructureAddress returns the address instance records use to
	// reference a bottom-level structure.
	StructureAddress(as AccelerationStructure) DeviceAddress

	CreateRayTracingPipeline(desc *RayTracingPipelineDescriptor) (RayTracingPipeline, error)
	DestroyRayTracingPipeline(pipeline RayTracingPipeline)

	// ShaderGroupHandles returns groupCount opaque handles, each
	// Properties().ShaderGroupHandleSize bytes, starting at firstGroup.
	ShaderGroupHandles(pipeline RayTracingPipeline, firstGroup, groupCount uint32) ([]byte, error)

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	// CreateRayTracingEncoder returns an encoder that can also record
	// acceleration structure builds and ray dispatches.
	CreateRayTracingEncoder(desc *hal.CommandEncoderDescriptor) (CommandEncoder, error)
}

// CommandEncoder records ray-tracing commands next to regular HAL commands.
type CommandEncoder interface {
	hal.CommandEncoder

	// BuildAccelerationStructures records one build per info.
	BuildAccelerationStructures(infos []BuildGeometryInfo)

	// StructureBarrier makes prior structure builds visible to later builds
	// and ray dispatches.
	StructureBarrier()

	BeginRayTracingPass(desc *RayTracingPassDescriptor) RayTracingPassEncoder
}

// RayTracingPassEncoder records ray dispatches.
type RayTracingPassEncoder interface {
	End()
	SetPipeline(pipeline RayTracingPipeline)
	SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32)
	// SetAccelerationStructure binds a top-level structure to binding in
	// group 0.
	SetAccelerationStructure(binding uint32, as AccelerationStructure)
	TraceRays(desc *TraceRaysDescriptor)
}

// SubmitInfo is a frame submission gated by semaphores.
type SubmitInfo struct {
	CommandBuffers []hal.CommandBuffer

	// Wait, if set, must be signaled before the command buffers execute.
	Wait Semaphore
	// Signal, if set, is signaled once the command buffers complete.
	Signal Semaphore

	// Fence, if set, is signaled with FenceValue on completion.
	Fence      hal.Fence
	FenceValue uint64
}

// Queue is a HAL queue with semaphore-aware submit, acquire and present.
type Queue interface {
	hal.Queue

	// AcquireFrame acquires the next surface texture and signals signal once
	// it is ready for writing.
	AcquireFrame(surface hal.Surface, signal Semaphore) (*hal.AcquiredSurfaceTexture, error)

	SubmitFrame(info *SubmitInfo) error

	// PresentFrame presents texture after wait is signaled. It returns
	// hal.ErrSurfaceOutdated when the surface must be reconfigured.
	PresentFrame(surface hal.Surface, texture hal.SurfaceTexture, wait Semaphore) error
}
