package rt

import (
	"github.com/gogpu/wgpu/hal"
	"github.com/mokiat/gog/opt"
)

// DeviceAddress is a GPU virtual address of buffer memory.
type DeviceAddress uint64

// Offset returns the address advanced by n bytes.
func (a DeviceAddress) Offset(n uint64) DeviceAddress { return a + DeviceAddress(n) }

// StructureAlignment is the alignment required for acceleration structure
// storage offsets and sizes.
const StructureAlignment = 256

// StructureType selects the acceleration structure level.
type StructureType uint8

const (
	// BottomLevel structures hold triangles or axis-aligned boxes.
	BottomLevel StructureType = iota
	// TopLevel structures hold instances of bottom-level structures.
	TopLevel
)

// String returns the structure type name.
func (t StructureType) String() string {
	switch t {
	case BottomLevel:
		return "bottom-level"
	case TopLevel:
		return "top-level"
	default:
		return "unknown"
	}
}

// BuildMode selects between a full build and an update of a built structure.
type BuildMode uint8

const (
	// BuildModeBuild builds the destination from scratch.
	BuildModeBuild BuildMode = iota
	// BuildModeUpdate refits Source into Destination. The geometry layout and
	// primitive counts must match the original build.
	BuildModeUpdate
)

// BuildFlags tune a build.
type BuildFlags uint32

const (
	// BuildPreferFastTrace favors trace performance over build time.
	BuildPreferFastTrace BuildFlags = 1 << iota
	// BuildPreferFastBuild favors build time over trace performance.
	BuildPreferFastBuild
	// BuildAllowUpdate permits later BuildModeUpdate builds.
	BuildAllowUpdate
)

// GeometryFlags describe how rays interact with a geometry.
type GeometryFlags uint32

const (
	// GeometryOpaque skips any-hit programs.
	GeometryOpaque GeometryFlags = 1 << iota
)

// GeometryType tags the active member of Geometry.
type GeometryType uint8

const (
	GeometryTriangles GeometryType = iota
	GeometryAABBs
	GeometryInstances
)

func (t GeometryType) String() string {
	switch t {
	case GeometryTriangles:
		return "triangles"
	case GeometryAABBs:
		return "aabbs"
	case GeometryInstances:
		return "instances"
	default:
		return "unknown"
	}
}

// TrianglesData describes indexed triangles with float32x3 positions at the
// start of each vertex and uint32 indices.
type TrianglesData struct {
	VertexAddress DeviceAddress
	VertexStride  uint64
	MaxVertex     uint32
	IndexAddress  DeviceAddress
	// FirstVertex is added to every index.
	FirstVertex uint32
	// PrimitiveOffset is a byte offset into the index data.
	PrimitiveOffset uint64
	PrimitiveCount  uint32
}

// AABBSize is the size of one box: min xyz then max xyz as float32.
const AABBSize = 24

// AABBData describes axis-aligned boxes for procedural geometry.
type AABBData struct {
	Address         DeviceAddress
	Stride          uint64
	PrimitiveOffset uint64
	PrimitiveCount  uint32
}

// InstancesData describes a packed array of Instance records.
type InstancesData struct {
	Address DeviceAddress
	Count   uint32
}

// Geometry is one input of a build. Type selects which member is read.
type Geometry struct {
	Type      GeometryType
	Flags     GeometryFlags
	Triangles TrianglesData
	AABBs     AABBData
	Instances InstancesData
}

// PrimitiveCount returns the primitive count of the active member.
func (g *Geometry) PrimitiveCount() uint32 {
	switch g.Type {
	case GeometryTriangles:
		return g.Triangles.PrimitiveCount
	case GeometryAABBs:
		return g.AABBs.PrimitiveCount
	default:
		return g.Instances.Count
	}
}

// BuildGeometryInfo describes one acceleration structure build.
type BuildGeometryInfo struct {
	Label      string
	Type       StructureType
	Mode       BuildMode
	Flags      BuildFlags
	Geometries []Geometry

	// Source is read in BuildModeUpdate and may equal Destination.
	Source      AccelerationStructure
	Destination AccelerationStructure

	ScratchAddress DeviceAddress
}

// BuildSizes reports the memory a build needs, before any rounding.
type BuildSizes struct {
	StructureSize     uint64
	BuildScratchSize  uint64
	UpdateScratchSize uint64
}

// AccelerationStructureDescriptor places a structure inside a buffer.
type AccelerationStructureDescriptor struct {
	Label  string
	Type   StructureType
	Buffer hal.Buffer
	Offset uint64
	Size   uint64
}

// ShaderStage identifies a ray-tracing program stage.
type ShaderStage uint8

const (
	StageRayGen ShaderStage = iota
	StageMiss
	StageClosestHit
	StageAnyHit
	StageIntersection
)

// String returns the stage name.
func (s ShaderStage) String() string {
	switch s {
	case StageRayGen:
		return "raygen"
	case StageMiss:
		return "miss"
	case StageClosestHit:
		return "closest-hit"
	case StageAnyHit:
		return "any-hit"
	case StageIntersection:
		return "intersection"
	default:
		return "unknown"
	}
}

// ShaderStageDescriptor is one program of a ray-tracing pipeline.
type ShaderStageDescriptor struct {
	Stage      ShaderStage
	Module     hal.ShaderModule
	EntryPoint string
}

// ShaderGroupType classifies a shader group.
type ShaderGroupType uint8

const (
	// GroupGeneral holds a single ray-gen or miss program.
	GroupGeneral ShaderGroupType = iota
	// GroupTrianglesHit is invoked for triangle geometry.
	GroupTrianglesHit
	// GroupProceduralHit is invoked for AABB geometry and needs an
	// intersection program.
	GroupProceduralHit
)

// ShaderUnused marks an empty program slot in a ShaderGroup.
const ShaderUnused = -1

// ShaderGroup references stages by index into the pipeline's stage list.
type ShaderGroup struct {
	Type         ShaderGroupType
	General      int32
	ClosestHit   int32
	AnyHit       int32
	Intersection int32
}

// GeneralGroup returns a ray-gen or miss group for stage index.
func GeneralGroup(stage int32) ShaderGroup {
	return ShaderGroup{Type: GroupGeneral, General: stage, ClosestHit: ShaderUnused, AnyHit: ShaderUnused, Intersection: ShaderUnused}
}

// TrianglesHitGroup returns a triangle hit group.
func TrianglesHitGroup(closestHit int32) ShaderGroup {
	return ShaderGroup{Type: GroupTrianglesHit, General: ShaderUnused, ClosestHit: closestHit, AnyHit: ShaderUnused, Intersection: ShaderUnused}
}

// ProceduralHitGroup returns a procedural hit group.
func ProceduralHitGroup(closestHit, intersection int32) ShaderGroup {
	return ShaderGroup{Type: GroupProceduralHit, General: ShaderUnused, ClosestHit: closestHit, AnyHit: ShaderUnused, Intersection: intersection}
}

// RayTracingPipelineDescriptor describes a ray-tracing pipeline.
type RayTracingPipelineDescriptor struct {
	Label             string
	Layout            hal.PipelineLayout
	Stages            []ShaderStageDescriptor
	Groups            []ShaderGroup
	MaxRecursionDepth uint32
}

// StridedRegion locates one shader binding table region.
type StridedRegion struct {
	Address DeviceAddress
	Stride  uint64
	Size    uint64
}

// TraceRaysDescriptor launches Width x Height x Depth ray-gen invocations.
type TraceRaysDescriptor struct {
	RayGen   StridedRegion
	Miss     StridedRegion
	HitGroup StridedRegion
	Callable opt.T[StridedRegion]

	Width, Height, Depth uint32
}

// RayTracingPassDescriptor describes a ray-tracing pass.
type RayTracingPassDescriptor struct {
	Label string
}

// Properties are the ray-tracing limits of a device.
type Properties struct {
	ShaderGroupHandleSize      uint32
	ShaderGroupHandleAlignment uint32
	ShaderGroupBaseAlignment   uint32
	MaxRecursionDepth          uint32
	MinScratchOffsetAlignment  uint32
	MaxInstanceCount           uint64
	MaxPrimitiveCount          uint64
	MaxGeometryCount           uint64
}
