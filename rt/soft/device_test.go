package soft

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
)

func TestBufferAddressesAreAlignedAndUnique(t *testing.T) {
	dev, _ := newTestDevice(t)
	seen := map[rt.DeviceAddress]bool{}
	for i, size := range []uint64{1, 255, 256, 257, 4096} {
		b := mustBuffer(t, dev, "b", size, gputypes.BufferUsageStorage)
		addr := dev.BufferAddress(b)
		if addr == 0 || uint64(addr)%rt.StructureAlignment != 0 {
			t.Errorf("buffer %d address %#x not aligned", i, uint64(addr))
		}
		if seen[addr] {
			t.Errorf("buffer %d address %#x reused", i, uint64(addr))
		}
		seen[addr] = true
		dev.DestroyBuffer(b)
	}
}

func TestWriteBufferIsOrderedWithSubmissions(t *testing.T) {
	dev, queue := newTestDevice(t)
	src := upload(t, dev, queue, "src", uint32Bytes(1, 2, 3, 4))
	dst := mustBuffer(t, dev, "dst", 16, gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst)

	enc, _ := dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "copy"})
	if err := enc.BeginEncoding("copy"); err != nil {
		t.Fatal(err)
	}
	enc.CopyBufferToBuffer(src, dst, []hal.BufferCopy{{Size: 16}})
	cb, err := enc.EndEncoding()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := queue.Submit([]hal.CommandBuffer{cb}); err != nil {
		t.Fatal(err)
	}
	// Written after the copy was submitted: must not be visible in dst.
	if err := queue.WriteBuffer(src, 0, uint32Bytes(9, 9, 9, 9)); err != nil {
		t.Fatal(err)
	}
	if err := dev.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	got, err := dev.ReadBuffer(dst, 0, 16)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(uint32Bytes(1, 2, 3, 4), got); diff != "" {
		t.Errorf("dst mismatch (-want +got):\n%s", diff)
	}
}

func TestMapBufferRequiresMapUsage(t *testing.T) {
	dev, _ := newTestDevice(t)
	b := mustBuffer(t, dev, "storage", 16, gputypes.BufferUsageStorage)
	if _, err := dev.MapBuffer(b, 0, 16); !errors.Is(err, hal.ErrInvalidMapRange) {
		t.Errorf("MapBuffer on storage buffer: err = %v, want ErrInvalidMapRange", err)
	}
}

func TestMemoryBudget(t *testing.T) {
	dev, _ := newTestDevice(t, WithMemoryLimit(1))
	b := mustBuffer(t, dev, "half", 512<<10, gputypes.BufferUsageStorage)
	if _, err := dev.CreateBuffer(&hal.BufferDescriptor{Label: "too big", Size: 768 << 10}); !errors.Is(err, rt.ErrOutOfMemory) {
		t.Fatalf("CreateBuffer over budget: err = %v, want ErrOutOfMemory", err)
	}
	dev.DestroyBuffer(b)
	if _, err := dev.CreateBuffer(&hal.BufferDescriptor{Label: "fits", Size: 768 << 10}); err != nil {
		t.Fatalf("CreateBuffer after release: %v", err)
	}
	if got := dev.MemoryStats().Allocations; got != 1 {
		t.Errorf("Allocations = %d, want 1", got)
	}
}

func TestTraceTriangles(t *testing.T) {
	dev, queue := newTestDevice(t)
	h := newHarness(t, dev, queue)
	tlas, _ := h.buildTop(0, rt.NewInstance(identity, 6, 0xFF, 0, 0, h.quad.address))
	tp := newTracePipeline(t, dev, queue, "test.chit")

	got, err := h.trace(tp, tlas, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{
		7, 7, 0, 0,
		7, 7, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestTraceInstancesAndProcedurals(t *testing.T) {
	dev, queue := newTestDevice(t)
	h := newHarness(t, dev, queue)
	tlas, _ := h.buildTop(0,
		rt.NewInstance(translate(2, 2, 0), 1, 0xFF, 0, 0, h.quad.address),
		// Sphere instances use the procedural hit group at record 1.
		rt.NewInstance(translate(1, 1, 0), 3, 0xFF, 1, 0, h.sphere.address),
		// Masked out: never hit.
		rt.NewInstance(identity, 9, 0x00, 0, 0, h.quad.address),
	)
	tp := newTracePipeline(t, dev, queue, "test.chit")

	got, err := h.trace(tp, tlas, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{
		103, 103, 0, 0,
		103, 103, 0, 0,
		0, 0, 2, 2,
		0, 0, 2, 2,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestTraceRecursionLimit(t *testing.T) {
	dev, queue := newTestDevice(t)
	h := newHarness(t, dev, queue)
	tlas, _ := h.buildTop(0, rt.NewInstance(identity, 0, 0xFF, 0, 0, h.quad.address))
	tp := newTracePipeline(t, dev, queue, "test.recurse")

	_, err := h.trace(tp, tlas, 2, 2)
	if !errors.Is(err, ErrRecursionDepth) {
		t.Fatalf("err = %v, want ErrRecursionDepth", err)
	}
	if !errors.Is(err, hal.ErrDeviceLost) {
		t.Errorf("err = %v, want device lost", err)
	}
}

func TestTraceRejectsOutOfRangeRecord(t *testing.T) {
	dev, queue := newTestDevice(t)
	h := newHarness(t, dev, queue)
	// SBT offset 5 points past the two hit records.
	tlas, _ := h.buildTop(0, rt.NewInstance(identity, 0, 0xFF, 5, 0, h.quad.address))
	tp := newTracePipeline(t, dev, queue, "test.chit")

	if _, err := h.trace(tp, tlas, 2, 2); !errors.Is(err, ErrShaderRecord) {
		t.Fatalf("err = %v, want ErrShaderRecord", err)
	}
}

func TestTraceRegionValidation(t *testing.T) {
	dev, queue := newTestDevice(t)
	h := newHarness(t, dev, queue)
	tlas, _ := h.buildTop(0, rt.NewInstance(identity, 0, 0xFF, 0, 0, h.quad.address))
	tp := newTracePipeline(t, dev, queue, "test.chit")
	tp.desc.Miss.Stride = 48

	if _, err := h.trace(tp, tlas, 2, 2); !errors.Is(err, ErrShaderRecord) {
		t.Fatalf("err = %v, want ErrShaderRecord from EndEncoding", err)
	}
}

func TestUpdateRequiresAllowUpdate(t *testing.T) {
	dev, queue := newTestDevice(t)
	h := newHarness(t, dev, queue)
	tlas, instances := h.buildTop(0, rt.NewInstance(identity, 0, 0xFF, 0, 0, h.quad.address))
	cb, err := h.enc.EndEncoding()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := queue.Submit([]hal.CommandBuffer{cb}); err != nil {
		t.Fatal(err)
	}

	enc, _ := dev.CreateRayTracingEncoder(nil)
	if err := enc.BeginEncoding("update"); err != nil {
		t.Fatal(err)
	}
	scratch := mustBuffer(t, dev, "scratch", 4096, gputypes.BufferUsageStorage)
	enc.BuildAccelerationStructures([]rt.BuildGeometryInfo{{
		Type:  rt.TopLevel,
		Mode:  rt.BuildModeUpdate,
		Flags: rt.BuildAllowUpdate,
		Geometries: []rt.Geometry{{
			Type:      rt.GeometryInstances,
			Instances: rt.InstancesData{Address: instances.address, Count: 1},
		}},
		Source:         tlas,
		Destination:    tlas,
		ScratchAddress: scratch.address,
	}})
	cb, err = enc.EndEncoding()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := queue.Submit([]hal.CommandBuffer{cb}); err != nil {
		t.Fatal(err)
	}
	// The source was built without BuildAllowUpdate.
	if err := dev.WaitIdle(); !errors.Is(err, rt.ErrInvalidBuild) {
		t.Fatalf("WaitIdle err = %v, want ErrInvalidBuild", err)
	}
}

func TestBuildValidation(t *testing.T) {
	dev, queue := newTestDevice(t)
	h := newHarness(t, dev, queue)
	tests := []struct {
		name string
		info rt.BuildGeometryInfo
		want error
	}{
		{
			name: "wrong kind",
			info: rt.BuildGeometryInfo{Type: rt.TopLevel, Destination: h.quad, Geometries: []rt.Geometry{{Type: rt.GeometryInstances}}},
			want: rt.ErrInvalidBuild,
		},
		{
			name: "instances in bottom level",
			info: rt.BuildGeometryInfo{Type: rt.BottomLevel, Destination: h.quad, Geometries: []rt.Geometry{{Type: rt.GeometryInstances}}},
			want: rt.ErrInvalidGeometry,
		},
		{
			name: "storage too small",
			info: rt.BuildGeometryInfo{Type: rt.BottomLevel, Destination: h.sphere, Geometries: []rt.Geometry{{
				Type: rt.GeometryAABBs, AABBs: rt.AABBData{PrimitiveCount: 1000},
			}}},
			want: rt.ErrInvalidBuild,
		},
		{
			name: "update without source",
			info: rt.BuildGeometryInfo{Type: rt.BottomLevel, Mode: rt.BuildModeUpdate, Flags: rt.BuildAllowUpdate, Destination: h.quad},
			want: rt.ErrInvalidBuild,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := dev.checkBuild(&tt.info, dev.Properties()); !errors.Is(err, tt.want) {
				t.Errorf("checkBuild() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestShaderGroupHandles(t *testing.T) {
	dev, queue := newTestDevice(t)
	tp := newTracePipeline(t, dev, queue, "test.chit")
	handles, err := dev.ShaderGroupHandles(tp.pipeline, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(handles) != 2*handleSize {
		t.Fatalf("len = %d, want %d", len(handles), 2*handleSize)
	}
	if _, err := dev.ShaderGroupHandles(tp.pipeline, 3, 2); err == nil {
		t.Error("ShaderGroupHandles past the last group succeeded")
	}
}

func TestPipelineRejectsUnknownProgram(t *testing.T) {
	dev, _ := newTestDevice(t)
	_, err := dev.CreateRayTracingPipeline(&rt.RayTracingPipelineDescriptor{
		Stages: []rt.ShaderStageDescriptor{{Stage: rt.StageRayGen, EntryPoint: "test.missing"}},
		Groups: []rt.ShaderGroup{rt.GeneralGroup(0)},
	})
	if !errors.Is(err, ErrProgramNotFound) {
		t.Errorf("err = %v, want ErrProgramNotFound", err)
	}
	_, err = dev.CreateRayTracingPipeline(&rt.RayTracingPipelineDescriptor{
		Stages: []rt.ShaderStageDescriptor{{Stage: rt.StageClosestHit, EntryPoint: "test.raygen"}},
		Groups: []rt.ShaderGroup{rt.TrianglesHitGroup(0)},
	})
	if !errors.Is(err, ErrProgramNotFound) {
		t.Errorf("stage mismatch: err = %v, want ErrProgramNotFound", err)
	}
}

func TestComputeDispatch(t *testing.T) {
	dev, queue := newTestDevice(t)
	data := upload(t, dev, queue, "data", uint32Bytes(1, 2, 3, 4))
	readback := mustBuffer(t, dev, "readback", 16, gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst)
	pipeline, err := dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "double",
		Compute: hal.ComputeState{EntryPoint: "test.double"},
	})
	if err != nil {
		t.Fatal(err)
	}
	group, err := dev.CreateBindGroup(&hal.BindGroupDescriptor{Entries: []gputypes.BindGroupEntry{
		{Binding: 0, Resource: gputypes.BufferBinding{Buffer: data.NativeHandle()}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	enc, _ := dev.CreateCommandEncoder(nil)
	_ = enc.BeginEncoding("compute")
	pass := enc.BeginComputePass(&hal.ComputePassDescriptor{})
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group, nil)
	pass.Dispatch(3, 1, 1)
	pass.End()
	enc.CopyBufferToBuffer(data, readback, []hal.BufferCopy{{Size: 16}})
	cb, err := enc.EndEncoding()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := queue.Submit([]hal.CommandBuffer{cb}); err != nil {
		t.Fatal(err)
	}
	if err := dev.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	got, _ := dev.ReadBuffer(readback, 0, 16)
	if diff := cmp.Diff(uint32Bytes(2, 4, 6, 4), got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderPassUnsupported(t *testing.T) {
	dev, _ := newTestDevice(t)
	enc, _ := dev.CreateCommandEncoder(nil)
	_ = enc.BeginEncoding("render")
	enc.BeginRenderPass(&hal.RenderPassDescriptor{}).End()
	if _, err := enc.EndEncoding(); !errors.Is(err, rt.ErrUnsupportedCapability) {
		t.Errorf("err = %v, want ErrUnsupportedCapability", err)
	}
}

func TestFencesAndSemaphores(t *testing.T) {
	dev, queue := newTestDevice(t)
	fence, _ := dev.CreateFence()
	sem, _ := dev.CreateSemaphore()

	if err := queue.SubmitFrame(&rt.SubmitInfo{Signal: sem, Fence: fence, FenceValue: 1}); err != nil {
		t.Fatal(err)
	}
	if err := queue.SubmitFrame(&rt.SubmitInfo{Wait: sem, Fence: fence, FenceValue: 2}); err != nil {
		t.Fatal(err)
	}
	ok, err := dev.Wait(fence, 2, time.Second)
	if err != nil || !ok {
		t.Fatalf("Wait = %v, %v; want true, nil", ok, err)
	}
	if got := dev.FenceValue(fence); got != 2 {
		t.Errorf("FenceValue = %d, want 2", got)
	}

	// The semaphore was consumed: a second wait has nothing to wait for.
	if err := queue.SubmitFrame(&rt.SubmitInfo{Wait: sem, Fence: fence, FenceValue: 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := dev.Wait(fence, 3, time.Second); !errors.Is(err, ErrUnsignaledSemaphore) {
		t.Errorf("Wait err = %v, want ErrUnsignaledSemaphore", err)
	}
}

func TestWaitTimeout(t *testing.T) {
	dev, _ := newTestDevice(t)
	fence, _ := dev.CreateFence()
	ok, err := dev.Wait(fence, 1, 10*time.Millisecond)
	if ok || err != nil {
		t.Errorf("Wait on unsignaled fence = %v, %v; want false, nil", ok, err)
	}
}

func TestSurfacePresent(t *testing.T) {
	dev, queue := newTestDevice(t)
	surface := NewSurface(2)
	if err := surface.Configure(dev, &hal.SurfaceConfiguration{Width: 4, Height: 2, Format: gputypes.TextureFormatRGBA8Unorm}); err != nil {
		t.Fatal(err)
	}
	acquire, _ := dev.CreateSemaphore()
	finished, _ := dev.CreateSemaphore()

	frame, err := queue.AcquireFrame(surface, acquire)
	if err != nil {
		t.Fatal(err)
	}
	if err := queue.SubmitFrame(&rt.SubmitInfo{Wait: acquire, Signal: finished}); err != nil {
		t.Fatal(err)
	}
	if err := queue.PresentFrame(surface, frame.Texture, finished); err != nil {
		t.Fatal(err)
	}
	if err := dev.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	if got := surface.PresentCount(); got != 1 {
		t.Errorf("PresentCount = %d, want 1", got)
	}
	img, ok := surface.LastPresented()
	if !ok || img.Width != 4 || img.Height != 2 {
		t.Errorf("LastPresented = %dx%d, %v", img.Width, img.Height, ok)
	}
}

func TestSurfaceOutdated(t *testing.T) {
	dev, queue := newTestDevice(t)
	surface := NewSurface(2)
	if err := surface.Configure(dev, &hal.SurfaceConfiguration{Width: 4, Height: 4}); err != nil {
		t.Fatal(err)
	}
	acquire, _ := dev.CreateSemaphore()
	finished, _ := dev.CreateSemaphore()
	frame, err := queue.AcquireFrame(surface, acquire)
	if err != nil {
		t.Fatal(err)
	}
	if err := queue.SubmitFrame(&rt.SubmitInfo{Wait: acquire, Signal: finished}); err != nil {
		t.Fatal(err)
	}
	surface.Resize(8, 8)
	if err := queue.PresentFrame(surface, frame.Texture, finished); !errors.Is(err, hal.ErrSurfaceOutdated) {
		t.Fatalf("PresentFrame err = %v, want ErrSurfaceOutdated", err)
	}
	// The finished semaphore was consumed, so the device is healthy.
	if err := dev.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
	if _, err := queue.AcquireFrame(surface, acquire); !errors.Is(err, hal.ErrSurfaceOutdated) {
		t.Errorf("AcquireFrame err = %v, want ErrSurfaceOutdated", err)
	}
	if err := surface.Configure(dev, &hal.SurfaceConfiguration{Width: 0, Height: 8}); !errors.Is(err, hal.ErrZeroArea) {
		t.Errorf("Configure zero area err = %v, want ErrZeroArea", err)
	}
}
