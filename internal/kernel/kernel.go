package kernel

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtrace/accel"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/pathtrace/sbt"
	"github.com/gogpu/wgpu/hal"
)

// Path-tracing bindings in group 0.
const (
	BindingTopLevel     = 0
	BindingAccumulation = 1
	BindingUniform      = 2
	BindingVertices     = 3
	BindingIndices      = 4
	BindingMaterials    = 5
	BindingOffsets      = 6
	BindingProcedurals  = 7
	BindingTextures     = 8
)

// Shader group indices. The hit groups are ordered like the instance
// hit group offsets of accel.
const (
	groupRayGen = iota
	groupMiss
	groupTrianglesHit
	groupProceduralHit
)

// MaxRecursionDepth is the recursion the pipeline is created with. Ray
// generation follows paths iteratively, so no hit program traces.
const MaxRecursionDepth = 1

// Kernel is the path-tracing pipeline of one scene with its shader binding
// table, plus the resolve pipeline.
type Kernel struct {
	ctx      *rt.Context
	textures int

	traceLayout     hal.BindGroupLayout
	tracePipeLayout hal.PipelineLayout
	pipeline        rt.RayTracingPipeline
	table           *sbt.Table

	resolveShader     hal.ShaderModule
	resolveLayout     hal.BindGroupLayout
	resolvePipeLayout hal.PipelineLayout
	resolvePipeline   hal.ComputePipeline

	groups map[groupKey]frameGroups
}

type groupKey struct {
	targets *Targets
	uniform hal.Buffer
}

type frameGroups struct {
	trace, resolve hal.BindGroup
}

// New creates the pipelines for a scene with textureCount textures.
func New(ctx *rt.Context, textureCount int) (*Kernel, error) {
	k := &Kernel{ctx: ctx, textures: textureCount, groups: make(map[groupKey]frameGroups)}
	if err := k.createTracePipeline(); err != nil {
		k.Destroy()
		return nil, err
	}
	if err := k.createResolvePipeline(); err != nil {
		k.Destroy()
		return nil, err
	}
	slogger().Debug("kernel: pipelines created", "textures", textureCount, "sbt_size", k.table.Layout.Size)
	return k, nil
}

func storageEntry(binding uint32, readOnly bool) gputypes.BindGroupLayoutEntry {
	t := gputypes.BufferBindingTypeStorage
	if readOnly {
		t = gputypes.BufferBindingTypeReadOnlyStorage
	}
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: t},
	}
}

func uniformEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
}

func (k *Kernel) createTracePipeline() error {
	dev := k.ctx.Device
	// The top-level structure is bound through the pass, not the group.
	entries := []gputypes.BindGroupLayoutEntry{
		storageEntry(BindingAccumulation, false),
		uniformEntry(BindingUniform),
		storageEntry(BindingVertices, true),
		storageEntry(BindingIndices, true),
		storageEntry(BindingMaterials, true),
		storageEntry(BindingOffsets, true),
		storageEntry(BindingProcedurals, true),
	}
	for i := range k.textures {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    BindingTextures + uint32(i),
			Visibility: gputypes.ShaderStageCompute,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}
	var err error
	k.traceLayout, err = dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: "path trace", Entries: entries})
	if err != nil {
		return fmt.Errorf("create path trace bind group layout: %w", err)
	}
	k.tracePipeLayout, err = dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "path trace", BindGroupLayouts: []hal.BindGroupLayout{k.traceLayout},
	})
	if err != nil {
		return fmt.Errorf("create path trace pipeline layout: %w", err)
	}

	k.pipeline, err = k.ctx.Device.CreateRayTracingPipeline(&rt.RayTracingPipelineDescriptor{
		Label:  "path trace",
		Layout: k.tracePipeLayout,
		Stages: []rt.ShaderStageDescriptor{
			{Stage: rt.StageRayGen, EntryPoint: EntryRayGen},
			{Stage: rt.StageMiss, EntryPoint: EntryMiss},
			{Stage: rt.StageClosestHit, EntryPoint: EntryClosestHit},
			{Stage: rt.StageClosestHit, EntryPoint: EntrySphereClosestHit},
			{Stage: rt.StageIntersection, EntryPoint: EntrySphereIntersection},
		},
		Groups: []rt.ShaderGroup{
			groupRayGen:        rt.GeneralGroup(0),
			groupMiss:          rt.GeneralGroup(1),
			groupTrianglesHit:  rt.TrianglesHitGroup(2),
			groupProceduralHit: rt.ProceduralHitGroup(3, 4),
		},
		MaxRecursionDepth: MaxRecursionDepth,
	})
	if err != nil {
		return fmt.Errorf("create path trace pipeline: %w", err)
	}

	b := sbt.NewBuilder().AddRayGen(groupRayGen).AddMiss(groupMiss)
	b.AddHitGroup(groupTrianglesHit) // accel.TrianglesHitGroup
	b.AddHitGroup(groupProceduralHit) // accel.ProceduralHitGroup
	k.table, err = b.Build(k.ctx, k.pipeline)
	if err != nil {
		return fmt.Errorf("build shader binding table: %w", err)
	}
	return nil
}

func (k *Kernel) createResolvePipeline() error {
	dev := k.ctx.Device
	code, err := compileResolve()
	if err != nil {
		return err
	}
	k.resolveShader, err = dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "resolve",
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return fmt.Errorf("create resolve shader: %w", err)
	}
	k.resolveLayout, err = dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "resolve",
		Entries: []gputypes.BindGroupLayoutEntry{
			storageEntry(ResolveAccumulation, true),
			uniformEntry(ResolveUniform),
			storageEntry(ResolveOutput, false),
			uniformEntry(ResolveParams),
		},
	})
	if err != nil {
		return fmt.Errorf("create resolve bind group layout: %w", err)
	}
	k.resolvePipeLayout, err = dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "resolve", BindGroupLayouts: []hal.BindGroupLayout{k.resolveLayout},
	})
	if err != nil {
		return fmt.Errorf("create resolve pipeline layout: %w", err)
	}
	k.resolvePipeline, err = dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "resolve",
		Layout:  k.resolvePipeLayout,
		Compute: hal.ComputeState{Module: k.resolveShader, EntryPoint: EntryResolve},
	})
	if err != nil {
		return fmt.Errorf("create resolve pipeline: %w", err)
	}
	return nil
}

// Table returns the shader binding table.
func (k *Kernel) Table() *sbt.Table { return k.table }

// TextureCount returns the number of texture bindings.
func (k *Kernel) TextureCount() int { return k.textures }

func bufferEntry(binding uint32, buf hal.Buffer) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding: binding,
		Resource: gputypes.BufferBinding{
			Buffer: buf.NativeHandle(),
			Offset: 0,
			Size:   0, // entire buffer
		},
	}
}

// frameGroups returns the bind groups for one uniform buffer, creating
// them on first use.
func (k *Kernel) frameGroups(scene *accel.DeviceScene, t *Targets, uniform hal.Buffer) (frameGroups, error) {
	key := groupKey{targets: t, uniform: uniform}
	if g, ok := k.groups[key]; ok {
		return g, nil
	}
	if len(scene.Views) < k.textures {
		return frameGroups{}, fmt.Errorf("kernel: scene has %d textures, pipeline expects %d", len(scene.Views), k.textures)
	}
	dev := k.ctx.Device
	entries := []gputypes.BindGroupEntry{
		bufferEntry(BindingAccumulation, t.accumulation),
		bufferEntry(BindingUniform, uniform),
		bufferEntry(BindingVertices, scene.Vertices),
		bufferEntry(BindingIndices, scene.Indices),
		bufferEntry(BindingMaterials, scene.Materials),
		bufferEntry(BindingOffsets, scene.Offsets),
		bufferEntry(BindingProcedurals, scene.Procedurals),
	}
	for i := range k.textures {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  BindingTextures + uint32(i),
			Resource: gputypes.TextureViewBinding{TextureView: scene.Views[i].NativeHandle()},
		})
	}
	trace, err := dev.CreateBindGroup(&hal.BindGroupDescriptor{Label: "path trace", Layout: k.traceLayout, Entries: entries})
	if err != nil {
		return frameGroups{}, fmt.Errorf("create path trace bind group: %w", err)
	}
	res, err := dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "resolve",
		Layout: k.resolveLayout,
		Entries: []gputypes.BindGroupEntry{
			bufferEntry(ResolveAccumulation, t.accumulation),
			bufferEntry(ResolveUniform, uniform),
			bufferEntry(ResolveOutput, t.output),
			bufferEntry(ResolveParams, t.params),
		},
	})
	if err != nil {
		dev.DestroyBindGroup(trace)
		return frameGroups{}, fmt.Errorf("create resolve bind group: %w", err)
	}
	g := frameGroups{trace: trace, resolve: res}
	k.groups[key] = g
	return g, nil
}

// Record records the path-tracing dispatch, the resolve pass and the copy
// of the resolved pixels into target.
func (k *Kernel) Record(enc rt.CommandEncoder, scene *accel.DeviceScene, tlas rt.AccelerationStructure, t *Targets, uniform hal.Buffer, target hal.Texture) error {
	if tlas == nil {
		return errors.New("kernel: no top-level structure")
	}
	g, err := k.frameGroups(scene, t, uniform)
	if err != nil {
		return err
	}

	pass := enc.BeginRayTracingPass(&rt.RayTracingPassDescriptor{Label: "path trace"})
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, g.trace, nil)
	pass.SetAccelerationStructure(BindingTopLevel, tlas)
	pass.TraceRays(k.table.TraceRays(t.width, t.height))
	pass.End()

	cp := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: "resolve"})
	cp.SetPipeline(k.resolvePipeline)
	cp.SetBindGroup(0, g.resolve, nil)
	cp.Dispatch((t.width+resolveWorkgroupSize-1)/resolveWorkgroupSize, (t.height+resolveWorkgroupSize-1)/resolveWorkgroupSize, 1)
	cp.End()

	if target != nil {
		enc.CopyBufferToTexture(t.output, target, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: t.width * 4, RowsPerImage: t.height},
			TextureBase:  hal.ImageCopyTexture{Texture: target, MipLevel: 0},
			Size:         hal.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
		}})
	}
	return nil
}

// Release destroys the bind groups that reference t. The device must be
// idle.
func (k *Kernel) Release(t *Targets) {
	for key, g := range k.groups {
		if key.targets == t {
			k.ctx.Device.DestroyBindGroup(g.trace)
			k.ctx.Device.DestroyBindGroup(g.resolve)
			delete(k.groups, key)
		}
	}
}

// Destroy releases the pipelines, the table and all bind groups. The
// device must be idle.
func (k *Kernel) Destroy() {
	dev := k.ctx.Device
	for key, g := range k.groups {
		dev.DestroyBindGroup(g.trace)
		dev.DestroyBindGroup(g.resolve)
		delete(k.groups, key)
	}
	if k.table != nil {
		k.table.Destroy()
		k.table = nil
	}
	if k.pipeline != nil {
		dev.DestroyRayTracingPipeline(k.pipeline)
		k.pipeline = nil
	}
	if k.resolvePipeline != nil {
		dev.DestroyComputePipeline(k.resolvePipeline)
		k.resolvePipeline = nil
	}
	if k.resolvePipeLayout != nil {
		dev.DestroyPipelineLayout(k.resolvePipeLayout)
		k.resolvePipeLayout = nil
	}
	if k.resolveLayout != nil {
		dev.DestroyBindGroupLayout(k.resolveLayout)
		k.resolveLayout = nil
	}
	if k.resolveShader != nil {
		dev.DestroyShaderModule(k.resolveShader)
		k.resolveShader = nil
	}
	if k.tracePipeLayout != nil {
		dev.DestroyPipelineLayout(k.tracePipeLayout)
		k.tracePipeLayout = nil
	}
	if k.traceLayout != nil {
		dev.DestroyBindGroupLayout(k.traceLayout)
		k.traceLayout = nil
	}
}
