package soft

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// CommandEncoder records commands into a CommandBuffer. Structural errors
// are collected while recording and returned by EndEncoding.
type CommandEncoder struct {
	dev       *Device
	label     string
	recording bool
	cmds      []command
	err       error
}

func (e *CommandEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *CommandEncoder) record(cmd command) {
	if !e.recording {
		e.fail(ErrNotRecording)
		return
	}
	e.cmds = append(e.cmds, cmd)
}

// BeginEncoding starts recording.
func (e *CommandEncoder) BeginEncoding(label string) error {
	if e.recording {
		return fmt.Errorf("soft: encoder %q is already recording", e.label)
	}
	e.label = label
	e.recording = true
	e.cmds = nil
	e.err = nil
	return nil
}

// EndEncoding finishes recording and returns the command buffer, or the
// first recording error.
func (e *CommandEncoder) EndEncoding() (hal.CommandBuffer, error) {
	if !e.recording {
		return nil, ErrNotRecording
	}
	e.recording = false
	cmds, err := e.cmds, e.err
	e.cmds, e.err = nil, nil
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.label, err)
	}
	return &CommandBuffer{label: e.label, cmds: cmds}, nil
}

// DiscardEncoding drops everything recorded so far.
func (e *CommandEncoder) DiscardEncoding() {
	e.recording = false
	e.cmds = nil
	e.err = nil
}

// ResetAll is a no-op; command buffers are garbage collected.
func (e *CommandEncoder) ResetAll([]hal.CommandBuffer) {}

// Destroy is a no-op.
func (e *CommandEncoder) Destroy() {}

// TransitionBuffers is a no-op: commands execute in order.
func (e *CommandEncoder) TransitionBuffers([]hal.BufferBarrier) {}

// TransitionTextures is a no-op: commands execute in order.
func (e *CommandEncoder) TransitionTextures([]hal.TextureBarrier) {}

// ClearBuffer zeroes size bytes at offset. A zero size clears to the end.
func (e *CommandEncoder) ClearBuffer(buffer hal.Buffer, offset, size uint64) {
	buf, err := e.dev.buffer(buffer)
	if err != nil {
		e.fail(err)
		return
	}
	if size == 0 && offset <= buf.Size() {
		size = buf.Size() - offset
	}
	if err := checkBufferRange(buf, offset, size); err != nil {
		e.fail(err)
		return
	}
	e.record(func(*Device) error {
		clear(buf.data[offset : offset+size])
		return nil
	})
}

// CopyBufferToBuffer copies regions from src to dst.
func (e *CommandEncoder) CopyBufferToBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	s, err := e.dev.buffer(src)
	if err != nil {
		e.fail(err)
		return
	}
	d, err := e.dev.buffer(dst)
	if err != nil {
		e.fail(err)
		return
	}
	for _, r := range regions {
		if err := errors.Join(checkBufferRange(s, r.SrcOffset, r.Size), checkBufferRange(d, r.DstOffset, r.Size)); err != nil {
			e.fail(err)
			return
		}
	}
	regions = append([]hal.BufferCopy(nil), regions...)
	e.record(func(*Device) error {
		for _, r := range regions {
			copy(d.data[r.DstOffset:r.DstOffset+r.Size], s.data[r.SrcOffset:r.SrcOffset+r.Size])
		}
		return nil
	})
}

// CopyBufferToTexture copies regions from src into dst.
func (e *CommandEncoder) CopyBufferToTexture(src hal.Buffer, dst hal.Texture, regions []hal.BufferTextureCopy) {
	e.copyBufferTexture(src, dst, regions, true)
}

// CopyTextureToBuffer copies regions from src into dst.
func (e *CommandEncoder) CopyTextureToBuffer(src hal.Texture, dst hal.Buffer, regions []hal.BufferTextureCopy) {
	e.copyBufferTexture(dst, src, regions, false)
}

func (e *CommandEncoder) copyBufferTexture(buffer hal.Buffer, texture hal.Texture, regions []hal.BufferTextureCopy, toTexture bool) {
	buf, err := e.dev.buffer(buffer)
	if err != nil {
		e.fail(err)
		return
	}
	tex, err := e.dev.texture(texture)
	if err != nil {
		e.fail(err)
		return
	}
	for i := range regions {
		if err := checkTextureCopy(buf, tex, &regions[i]); err != nil {
			e.fail(err)
			return
		}
	}
	regions = append([]hal.BufferTextureCopy(nil), regions...)
	e.record(func(*Device) error {
		for i := range regions {
			copyBufferTexture(buf, tex, &regions[i], toTexture)
		}
		return nil
	})
}

// CopyTextureToTexture copies regions between textures of the same format.
func (e *CommandEncoder) CopyTextureToTexture(src, dst hal.Texture, regions []hal.TextureCopy) {
	s, err := e.dev.texture(src)
	if err != nil {
		e.fail(err)
		return
	}
	d, err := e.dev.texture(dst)
	if err != nil {
		e.fail(err)
		return
	}
	if s.format != d.format {
		e.fail(fmt.Errorf("soft: copy from %q to %q changes format", s.label, d.label))
		return
	}
	for _, r := range regions {
		if err := errors.Join(checkTextureRegion(s, r.SrcBase.Origin, r.Size), checkTextureRegion(d, r.DstBase.Origin, r.Size)); err != nil {
			e.fail(err)
			return
		}
	}
	regions = append([]hal.TextureCopy(nil), regions...)
	e.record(func(*Device) error {
		for i := range regions {
			copyTextureTexture(s, d, &regions[i])
		}
		return nil
	})
}

// ResolveQuerySet is not supported.
func (e *CommandEncoder) ResolveQuerySet(hal.QuerySet, uint32, uint32, hal.Buffer, uint64) {
	e.fail(fmt.Errorf("%w: query sets", rt.ErrUnsupportedCapability))
}

// BeginRenderPass is not supported; the returned encoder ignores commands
// and EndEncoding reports the failure.
func (e *CommandEncoder) BeginRenderPass(*hal.RenderPassDescriptor) hal.RenderPassEncoder {
	e.fail(fmt.Errorf("%w: render passes", rt.ErrUnsupportedCapability))
	return &noop.RenderPassEncoder{}
}

// BeginComputePass starts a compute pass.
func (e *CommandEncoder) BeginComputePass(*hal.ComputePassDescriptor) hal.ComputePassEncoder {
	return &computePass{enc: e}
}

// BuildAccelerationStructures records one build per info. Geometry data is
// read when the command executes.
func (e *CommandEncoder) BuildAccelerationStructures(infos []rt.BuildGeometryInfo) {
	props := e.dev.Properties()
	for i := range infos {
		info := infos[i]
		if err := e.dev.checkBuild(&info, props); err != nil {
			e.fail(err)
			return
		}
		info.Geometries = append([]rt.Geometry(nil), info.Geometries...)
		dst := info.Destination.(*AccelerationStructure)
		e.record(func(d *Device) error {
			built, err := d.buildStructure(&info)
			if err != nil {
				return fmt.Errorf("%w: %w", rt.ErrInvalidBuild, err)
			}
			dst.store(built)
			slogger().Debug("soft: structure built", "label", dst.label, "type", info.Type,
				"mode", info.Mode, "primitives", len(built.refs)+len(built.instances))
			return nil
		})
	}
}

// StructureBarrier orders builds before later commands. Commands execute in
// order, so it records nothing.
func (e *CommandEncoder) StructureBarrier() {
	if !e.recording {
		e.fail(ErrNotRecording)
	}
}

// BeginRayTracingPass starts a ray-tracing pass.
func (e *CommandEncoder) BeginRayTracingPass(*rt.RayTracingPassDescriptor) rt.RayTracingPassEncoder {
	return &rayTracingPass{enc: e, structures: map[uint32]*AccelerationStructure{}}
}

// checkBuild validates the parts of a build that do not depend on the
// contents of device memory.
func (d *Device) checkBuild(info *rt.BuildGeometryInfo, props rt.Properties) error {
	dst, ok := info.Destination.(*AccelerationStructure)
	if !ok {
		return fmt.Errorf("%w: build destination %T", ErrForeignResource, info.Destination)
	}
	if dst.kind != info.Type {
		return fmt.Errorf("%w: %s build into %s structure %q", rt.ErrInvalidBuild, info.Type, dst.kind, dst.label)
	}
	if len(info.Geometries) > int(props.MaxGeometryCount) {
		return fmt.Errorf("%w: %d geometries exceed %d", rt.ErrInvalidBuild, len(info.Geometries), props.MaxGeometryCount)
	}
	var prims uint64
	for i := range info.Geometries {
		g := &info.Geometries[i]
		switch {
		case info.Type == rt.TopLevel && g.Type != rt.GeometryInstances,
			info.Type == rt.BottomLevel && g.Type == rt.GeometryInstances:
			return fmt.Errorf("%w: %s geometry %d in %s build %q", rt.ErrInvalidGeometry, g.Type, i, info.Type, info.Label)
		}
		prims += uint64(g.PrimitiveCount())
	}
	if info.Type == rt.TopLevel {
		if len(info.Geometries) != 1 {
			return fmt.Errorf("%w: top-level build %q needs exactly one instance geometry", rt.ErrInvalidGeometry, info.Label)
		}
		if prims > uint64(props.MaxInstanceCount) {
			return fmt.Errorf("%w: %d instances exceed %d", rt.ErrInvalidBuild, prims, props.MaxInstanceCount)
		}
	} else if prims > props.MaxPrimitiveCount {
		return fmt.Errorf("%w: %d primitives exceed %d", rt.ErrInvalidBuild, prims, props.MaxPrimitiveCount)
	}

	sizes := buildSizes(info)
	if dst.size < sizes.StructureSize {
		return fmt.Errorf("%w: %q holds %d bytes, build needs %d", rt.ErrInvalidBuild, dst.label, dst.size, sizes.StructureSize)
	}
	scratch := sizes.BuildScratchSize
	if info.Mode == rt.BuildModeUpdate {
		scratch = sizes.UpdateScratchSize
		if _, ok := info.Source.(*AccelerationStructure); !ok {
			return fmt.Errorf("%w: update of %q needs a source structure", rt.ErrInvalidBuild, dst.label)
		}
		if info.Flags&rt.BuildAllowUpdate == 0 {
			return fmt.Errorf("%w: update of %q without allow-update flag", rt.ErrInvalidBuild, dst.label)
		}
	}
	if uint64(info.ScratchAddress)%uint64(props.MinScratchOffsetAlignment) != 0 {
		return fmt.Errorf("%w: scratch address %#x is not %d-aligned", rt.ErrInvalidBuild, uint64(info.ScratchAddress), props.MinScratchOffsetAlignment)
	}
	if _, err := d.addrs.resolve(info.ScratchAddress, scratch); err != nil {
		return fmt.Errorf("%w: scratch: %w", rt.ErrInvalidBuild, err)
	}
	return nil
}

type computePass struct {
	enc      *CommandEncoder
	pipeline *ComputePipeline
	bindings Bindings
}

func (p *computePass) End() {}

func (p *computePass) SetPipeline(pipeline hal.ComputePipeline) {
	cp, ok := pipeline.(*ComputePipeline)
	if !ok {
		p.enc.fail(fmt.Errorf("%w: compute pipeline %T", ErrForeignResource, pipeline))
		return
	}
	p.pipeline = cp
}

func (p *computePass) SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32) {
	p.enc.fail(p.bindings.set(index, group, offsets))
}

func (p *computePass) Dispatch(x, y, z uint32) {
	if p.pipeline == nil {
		p.enc.fail(errors.New("soft: dispatch without compute pipeline"))
		return
	}
	pl, b := p.pipeline, p.bindings
	p.enc.record(func(*Device) error {
		return runCompute(pl, &Dispatch{Bindings: b, Workgroups: [3]uint32{x, y, z}})
	})
}

func (p *computePass) DispatchIndirect(buffer hal.Buffer, offset uint64) {
	if p.pipeline == nil {
		p.enc.fail(errors.New("soft: dispatch without compute pipeline"))
		return
	}
	buf, err := p.enc.dev.buffer(buffer)
	if err != nil {
		p.enc.fail(err)
		return
	}
	if err := checkBufferRange(buf, offset, 12); err != nil {
		p.enc.fail(err)
		return
	}
	pl, b := p.pipeline, p.bindings
	p.enc.record(func(*Device) error {
		args := buf.data[offset:]
		groups := [3]uint32{
			binary.LittleEndian.Uint32(args),
			binary.LittleEndian.Uint32(args[4:]),
			binary.LittleEndian.Uint32(args[8:]),
		}
		return runCompute(pl, &Dispatch{Bindings: b, Workgroups: groups})
	})
}

func runCompute(p *ComputePipeline, d *Dispatch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrProgramPanic, p.label, r)
		}
	}()
	p.program(d)
	return nil
}

func (b *Bindings) set(index uint32, group hal.BindGroup, offsets []uint32) error {
	if index >= maxBindGroups {
		return fmt.Errorf("soft: bind group index %d out of range", index)
	}
	if len(offsets) > 0 {
		return fmt.Errorf("%w: dynamic offsets", rt.ErrUnsupportedCapability)
	}
	g, ok := group.(*BindGroup)
	if !ok {
		return fmt.Errorf("%w: bind group %T", ErrForeignResource, group)
	}
	b.groups[index] = g
	return nil
}

type rayTracingPass struct {
	enc        *CommandEncoder
	pipeline   *RayTracingPipeline
	bindings   Bindings
	structures map[uint32]*AccelerationStructure
}

func (p *rayTracingPass) End() {}

func (p *rayTracingPass) SetPipeline(pipeline rt.RayTracingPipeline) {
	rp, ok := pipeline.(*RayTracingPipeline)
	if !ok {
		p.enc.fail(fmt.Errorf("%w: ray-tracing pipeline %T", ErrForeignResource, pipeline))
		return
	}
	p.pipeline = rp
}

func (p *rayTracingPass) SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32) {
	p.enc.fail(p.bindings.set(index, group, offsets))
}

func (p *rayTracingPass) SetAccelerationStructure(binding uint32, as rt.AccelerationStructure) {
	a, ok := as.(*AccelerationStructure)
	if !ok {
		p.enc.fail(fmt.Errorf("%w: acceleration structure %T", ErrForeignResource, as))
		return
	}
	if a.kind != rt.TopLevel {
		p.enc.fail(fmt.Errorf("%w: %q bound for tracing is %s", rt.ErrInvalidBuild, a.label, a.kind))
		return
	}
	p.structures[binding] = a
}

func (p *rayTracingPass) TraceRays(desc *rt.TraceRaysDescriptor) {
	if p.pipeline == nil {
		p.enc.fail(errors.New("soft: trace rays without ray-tracing pipeline"))
		return
	}
	if err := checkRegions(desc, p.enc.dev.Properties()); err != nil {
		p.enc.fail(err)
		return
	}
	pipeline, bindings, d := p.pipeline, p.bindings, *desc
	structures := make(map[uint32]*AccelerationStructure, len(p.structures))
	for k, v := range p.structures {
		structures[k] = v
	}
	p.enc.record(func(dev *Device) error {
		l := &launch{
			dev:        dev,
			pipeline:   pipeline,
			bindings:   bindings,
			desc:       d,
			structures: make(map[uint32]*builtStructure, len(structures)),
		}
		for binding, as := range structures {
			built := as.snapshot()
			if built == nil {
				return fmt.Errorf("%w: %q traced before it was built", rt.ErrInvalidBuild, as.label)
			}
			l.structures[binding] = built
		}
		if d.Width == 0 || d.Height == 0 {
			return nil
		}
		return l.run(dev.workers)
	})
}

func checkRegions(desc *rt.TraceRaysDescriptor, props rt.Properties) error {
	if desc.Callable.Specified && desc.Callable.Value.Size > 0 {
		return fmt.Errorf("%w: callable shaders", rt.ErrUnsupportedCapability)
	}
	if desc.RayGen.Size != desc.RayGen.Stride {
		return fmt.Errorf("%w: ray generation region size %d differs from stride %d", ErrShaderRecord, desc.RayGen.Size, desc.RayGen.Stride)
	}
	regions := []struct {
		name string
		r    rt.StridedRegion
	}{{"ray generation", desc.RayGen}, {"miss", desc.Miss}, {"hit group", desc.HitGroup}}
	for _, reg := range regions {
		if reg.r.Size == 0 {
			continue
		}
		if uint64(reg.r.Address)%uint64(props.ShaderGroupBaseAlignment) != 0 {
			return fmt.Errorf("%w: %s region address %#x is not %d-aligned", ErrShaderRecord, reg.name, uint64(reg.r.Address), props.ShaderGroupBaseAlignment)
		}
		if reg.r.Stride%uint64(props.ShaderGroupHandleAlignment) != 0 || reg.r.Stride < uint64(props.ShaderGroupHandleSize) {
			return fmt.Errorf("%w: %s region stride %d", ErrShaderRecord, reg.name, reg.r.Stride)
		}
	}
	if desc.RayGen.Size == 0 {
		return fmt.Errorf("%w: empty ray generation region", ErrShaderRecord)
	}
	return nil
}

var (
	_ rt.CommandEncoder        = (*CommandEncoder)(nil)
	_ hal.ComputePassEncoder   = (*computePass)(nil)
	_ rt.RayTracingPassEncoder = (*rayTracingPass)(nil)
)
