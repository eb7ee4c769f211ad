package soft

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
)

// Test programs write one uint32 per launch coordinate into group 0
// binding 1: 0 for a miss, 1+custom index for a hit on a triangle and
// 100+custom index for a procedural hit.
func init() {
	RegisterProgram("test.raygen", RayGenFunc(func(inv *Invocation) {
		var result uint32
		inv.TraceRay(&TraceParams{
			Structure: 0,
			CullMask:  0xFF,
			Origin:    [3]float32{float32(inv.LaunchID[0]) + 0.5, float32(inv.LaunchID[1]) + 0.5, 10},
			Direction: [3]float32{0, 0, -1},
			TMin:      0.001,
			TMax:      100,
		}, &result)
		out := rt.View[uint32](inv.Buffer(0, 1))
		out[inv.LaunchID[1]*inv.LaunchSize[0]+inv.LaunchID[0]] = result
	}))
	RegisterProgram("test.miss", MissFunc(func(_ *Invocation, _ *RayInfo, payload any) {
		*payload.(*uint32) = 0
	}))
	RegisterProgram("test.chit", ClosestHitFunc(func(_ *Invocation, hit *Hit, payload any) {
		v := 1 + hit.InstanceCustomIndex
		if hit.Kind == HitProcedural {
			v = 100 + hit.InstanceCustomIndex
		}
		*payload.(*uint32) = v
	}))
	RegisterProgram("test.recurse", ClosestHitFunc(func(inv *Invocation, hit *Hit, payload any) {
		inv.TraceRay(&TraceParams{CullMask: 0xFF, Direction: [3]float32{0, 0, -1}, TMax: 1}, payload)
	}))
	// Unit sphere around the object origin.
	RegisterProgram("test.sphere", IntersectionFunc(func(_ *Invocation, c *Candidate) (float32, [4]float32, bool) {
		o, d := vec3(c.ObjectRayOrigin), vec3(c.ObjectRayDirection)
		a := d.dot(d)
		b := o.dot(d)
		disc := b*b - a*(o.dot(o)-1)
		if disc < 0 {
			return 0, [4]float32{}, false
		}
		t := (-b - float32(math.Sqrt(float64(disc)))) / a
		return t, [4]float32{}, t >= c.TMin && t <= c.TMax
	}))
	RegisterComputeProgram("test.double", func(d *Dispatch) {
		values := rt.View[uint32](d.Buffer(0, 0))
		n := int(d.Workgroups[0])
		for i := 0; i < n && i < len(values); i++ {
			values[i] *= 2
		}
	})
}

var identity = mgl32.Ident4()

func translate(x, y, z float32) mgl32.Mat4 { return mgl32.Translate3D(x, y, z) }

func newTestDevice(t *testing.T, opts ...Option) (*Device, *Queue) {
	t.Helper()
	dev, queue := New(append([]Option{WithWorkers(2)}, opts...)...)
	t.Cleanup(dev.Destroy)
	return dev, queue
}

func mustBuffer(t *testing.T, dev *Device, label string, size uint64, usage gputypes.BufferUsage) *Buffer {
	t.Helper()
	b, err := dev.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: size, Usage: usage})
	if err != nil {
		t.Fatalf("CreateBuffer(%s): %v", label, err)
	}
	return b.(*Buffer)
}

func upload(t *testing.T, dev *Device, queue *Queue, label string, data []byte) *Buffer {
	t.Helper()
	b := mustBuffer(t, dev, label, uint64(len(data)), gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst)
	if err := queue.WriteBuffer(b, 0, data); err != nil {
		t.Fatalf("WriteBuffer(%s): %v", label, err)
	}
	return b
}

func float32Bytes(values ...float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func uint32Bytes(values ...uint32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

// sceneHarness holds a two-triangle quad covering [0,2]x[0,2] at z=0 and an
// optional unit sphere, ready to be instanced.
type sceneHarness struct {
	t      *testing.T
	dev    *Device
	queue  *Queue
	quad   *AccelerationStructure
	sphere *AccelerationStructure
	enc    rt.CommandEncoder
}

func newHarness(t *testing.T, dev *Device, queue *Queue) *sceneHarness {
	h := &sceneHarness{t: t, dev: dev, queue: queue}
	enc, err := dev.CreateRayTracingEncoder(&hal.CommandEncoderDescriptor{Label: "harness"})
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.BeginEncoding("harness"); err != nil {
		t.Fatal(err)
	}
	h.enc = enc

	vertices := upload(t, dev, queue, "vertices", float32Bytes(
		0, 0, 0,
		2, 0, 0,
		2, 2, 0,
		0, 2, 0,
	))
	indices := upload(t, dev, queue, "indices", uint32Bytes(0, 1, 2, 0, 2, 3))
	h.quad = h.buildBottom("quad", rt.Geometry{
		Type:  rt.GeometryTriangles,
		Flags: rt.GeometryOpaque,
		Triangles: rt.TrianglesData{
			VertexAddress:  vertices.address,
			VertexStride:   12,
			MaxVertex:      3,
			IndexAddress:   indices.address,
			PrimitiveCount: 2,
		},
	})
	boxes := upload(t, dev, queue, "boxes", float32Bytes(-1, -1, -1, 1, 1, 1))
	h.sphere = h.buildBottom("sphere", rt.Geometry{
		Type:  rt.GeometryAABBs,
		Flags: rt.GeometryOpaque,
		AABBs: rt.AABBData{Address: boxes.address, PrimitiveCount: 1},
	})
	return h
}

func (h *sceneHarness) structure(label string, kind rt.StructureType, info *rt.BuildGeometryInfo) (*AccelerationStructure, *Buffer) {
	h.t.Helper()
	sizes, err := h.dev.BuildSizes(info)
	if err != nil {
		h.t.Fatalf("BuildSizes(%s): %v", label, err)
	}
	storage := mustBuffer(h.t, h.dev, label+" storage", sizes.StructureSize, gputypes.BufferUsageStorage)
	as, err := h.dev.CreateAccelerationStructure(&rt.AccelerationStructureDescriptor{
		Label: label, Type: kind, Buffer: storage, Size: sizes.StructureSize,
	})
	if err != nil {
		h.t.Fatalf("CreateAccelerationStructure(%s): %v", label, err)
	}
	scratch := mustBuffer(h.t, h.dev, label+" scratch", max(sizes.BuildScratchSize, sizes.UpdateScratchSize), gputypes.BufferUsageStorage)
	info.Destination = as
	info.ScratchAddress = scratch.address
	return as.(*AccelerationStructure), scratch
}

func (h *sceneHarness) buildBottom(label string, g rt.Geometry) *AccelerationStructure {
	info := rt.BuildGeometryInfo{Label: label, Type: rt.BottomLevel, Geometries: []rt.Geometry{g}}
	as, _ := h.structure(label, rt.BottomLevel, &info)
	h.enc.BuildAccelerationStructures([]rt.BuildGeometryInfo{info})
	return as
}

// buildTop records the top-level build over instances and returns the
// structure and the instance buffer.
func (h *sceneHarness) buildTop(flags rt.BuildFlags, instances ...rt.Instance) (*AccelerationStructure, *Buffer) {
	h.enc.StructureBarrier()
	buf := upload(h.t, h.dev, h.queue, "instances", rt.Bytes(instances))
	info := rt.BuildGeometryInfo{
		Label: "top",
		Type:  rt.TopLevel,
		Flags: flags,
		Geometries: []rt.Geometry{{
			Type:      rt.GeometryInstances,
			Instances: rt.InstancesData{Address: buf.address, Count: uint32(len(instances))},
		}},
	}
	as, _ := h.structure("top", rt.TopLevel, &info)
	h.enc.BuildAccelerationStructures([]rt.BuildGeometryInfo{info})
	h.enc.StructureBarrier()
	return as, buf
}

type tracePipeline struct {
	pipeline rt.RayTracingPipeline
	sbt      *Buffer
	desc     rt.TraceRaysDescriptor
}

// newTracePipeline creates a pipeline with groups raygen, miss, triangle
// hit and sphere hit, and a table with one 64-byte record per group.
func newTracePipeline(t *testing.T, dev *Device, queue *Queue, closestHit string) *tracePipeline {
	t.Helper()
	p, err := dev.CreateRayTracingPipeline(&rt.RayTracingPipelineDescriptor{
		Label: "test",
		Stages: []rt.ShaderStageDescriptor{
			{Stage: rt.StageRayGen, EntryPoint: "test.raygen"},
			{Stage: rt.StageMiss, EntryPoint: "test.miss"},
			{Stage: rt.StageClosestHit, EntryPoint: closestHit},
			{Stage: rt.StageIntersection, EntryPoint: "test.sphere"},
		},
		Groups: []rt.ShaderGroup{
			rt.GeneralGroup(0),
			rt.GeneralGroup(1),
			rt.TrianglesHitGroup(2),
			rt.ProceduralHitGroup(2, 3),
		},
		MaxRecursionDepth: 1,
	})
	if err != nil {
		t.Fatalf("CreateRayTracingPipeline: %v", err)
	}
	handles, err := dev.ShaderGroupHandles(p, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	const stride = 64
	table := make([]byte, 4*stride)
	for g := 0; g < 4; g++ {
		copy(table[g*stride:], handles[g*handleSize:(g+1)*handleSize])
	}
	sbt := upload(t, dev, queue, "sbt", table)
	return &tracePipeline{
		pipeline: p,
		sbt:      sbt,
		desc: rt.TraceRaysDescriptor{
			RayGen:   rt.StridedRegion{Address: sbt.address, Stride: stride, Size: stride},
			Miss:     rt.StridedRegion{Address: sbt.address.Offset(stride), Stride: stride, Size: stride},
			HitGroup: rt.StridedRegion{Address: sbt.address.Offset(2 * stride), Stride: stride, Size: 2 * stride},
		},
	}
}

// trace records a width x height dispatch against tlas and returns the
// per-pixel results after the submission completes.
func (h *sceneHarness) trace(tp *tracePipeline, tlas *AccelerationStructure, width, height uint32) ([]uint32, error) {
	h.t.Helper()
	out := mustBuffer(h.t, h.dev, "out", uint64(width*height*4), gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc)
	readback := mustBuffer(h.t, h.dev, "readback", out.Size(), gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst)
	group, err := h.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "out",
		Entries: []gputypes.BindGroupEntry{{Binding: 1, Resource: gputypes.BufferBinding{Buffer: out.NativeHandle()}}},
	})
	if err != nil {
		h.t.Fatal(err)
	}
	pass := h.enc.BeginRayTracingPass(&rt.RayTracingPassDescriptor{Label: "trace"})
	pass.SetPipeline(tp.pipeline)
	pass.SetBindGroup(0, group, nil)
	pass.SetAccelerationStructure(0, tlas)
	desc := tp.desc
	desc.Width, desc.Height, desc.Depth = width, height, 1
	pass.TraceRays(&desc)
	pass.End()
	h.enc.CopyBufferToBuffer(out, readback, []hal.BufferCopy{{Size: out.Size()}})

	cb, err := h.enc.EndEncoding()
	if err != nil {
		return nil, err
	}
	if _, err := h.queue.Submit([]hal.CommandBuffer{cb}); err != nil {
		return nil, err
	}
	if err := h.dev.WaitIdle(); err != nil {
		return nil, err
	}
	data, err := h.dev.ReadBuffer(readback, 0, readback.Size())
	if err != nil {
		h.t.Fatal(err)
	}
	out32 := make([]uint32, width*height)
	for i := range out32 {
		out32[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out32, nil
}
