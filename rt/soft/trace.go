// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package soft

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gogpu/pathtrace/rt"
)

// maxBindGroups is the number of bind group slots a pass exposes.
const maxBindGroups = 4

// Bindings resolves the resources bound to a pass.
type Bindings struct {
	groups [maxBindGroups]*BindGroup
}

// Buffer returns the bytes bound at group and binding, or nil.
func (b *Bindings) Buffer(group, binding uint32) []byte {
	if group >= maxBindGroups || b.groups[group] == nil {
		return nil
	}
	return b.groups[group].entries[binding].bytes()
}

// Texture returns the texture bound at group and binding. Pix aliases
// device memory and must not be written.
func (b *Bindings) Texture(group, binding uint32) (Image, bool) {
	if group >= maxBindGroups || b.groups[group] == nil {
		return Image{}, false
	}
	v := b.groups[group].entries[binding].view
	if v == nil {
		return Image{}, false
	}
	t := v.texture
	return Image{Width: int(t.width), Height: int(t.height), Format: t.format, Pix: t.data}, true
}

// Dispatch is a compute dispatch handed to a ComputeFunc.
type Dispatch struct {
	Bindings
	Workgroups [3]uint32
}

// RayFlags controls traversal of a single TraceRay call.
type RayFlags uint32

const (
	// RayFlagOpaque treats all geometry as opaque.
	RayFlagOpaque RayFlags = 1 << iota
	// RayFlagTerminateOnFirstHit accepts the first hit found.
	RayFlagTerminateOnFirstHit
	// RayFlagSkipClosestHit skips the closest-hit program.
	RayFlagSkipClosestHit
	// RayFlagCullBackFacing ignores back-facing triangles.
	RayFlagCullBackFacing
)

// TraceParams are the arguments of a TraceRay call.
type TraceParams struct {
	// Structure is the binding the top-level structure was set at.
	Structure uint32
	Flags     RayFlags
	CullMask  uint8
	SBTOffset uint32
	SBTStride uint32
	MissIndex uint32

	Origin    [3]float32
	TMin      float32
	Direction [3]float32
	TMax      float32
}

// RayInfo is the world-space ray seen by miss programs.
type RayInfo struct {
	Origin    [3]float32
	Direction [3]float32
	TMin      float32
	TMax      float32
}

// HitKind tells triangle hits from procedural ones.
type HitKind uint8

const (
	HitFrontFacingTriangle HitKind = iota
	HitBackFacingTriangle
	HitProcedural
)

// Hit describes an accepted intersection.
type Hit struct {
	Ray  RayInfo
	T    float32
	Kind HitKind

	InstanceIndex       uint32
	InstanceCustomIndex uint32
	GeometryIndex       uint32
	PrimitiveIndex      uint32

	// Barycentrics holds the weights of vertices 1 and 2 for triangles.
	Barycentrics [2]float32
	// Attributes are reported by the intersection program.
	Attributes [4]float32

	ObjectToWorld      [12]float32
	WorldToObject      [12]float32
	ObjectRayOrigin    [3]float32
	ObjectRayDirection [3]float32

	// Record is the inline data following the handle in the shader record.
	Record []byte
}

// WorldPosition returns the world-space hit point.
func (h *Hit) WorldPosition() [3]float32 {
	return vec3(h.Ray.Origin).add(vec3(h.Ray.Direction).scale(h.T))
}

// ObjectToWorldVector transforms a direction from object to world space.
func (h *Hit) ObjectToWorldVector(v [3]float32) [3]float32 {
	return transformVector(h.ObjectToWorld, v)
}

// ObjectToWorldNormal transforms an object-space normal to world space.
func (h *Hit) ObjectToWorldNormal(n [3]float32) [3]float32 {
	// Normals use the transposed inverse.
	m := h.WorldToObject
	return [3]float32{
		m[0]*n[0] + m[4]*n[1] + m[8]*n[2],
		m[1]*n[0] + m[5]*n[1] + m[9]*n[2],
		m[2]*n[0] + m[6]*n[1] + m[10]*n[2],
	}
}

// Candidate is a procedural primitive whose box the ray entered.
type Candidate struct {
	ObjectRayOrigin    [3]float32
	ObjectRayDirection [3]float32
	TMin               float32
	TMax               float32

	InstanceIndex       uint32
	InstanceCustomIndex uint32
	GeometryIndex       uint32
	PrimitiveIndex      uint32
}

// Invocation is the execution context of one launch coordinate.
type Invocation struct {
	Bindings
	LaunchID   [3]uint32
	LaunchSize [3]uint32

	launch *launch
	depth  uint32
}

// handleMagic starts every shader group handle.
var handleMagic = [4]byte{'S', 'F', 'R', 'T'}

const handleSize = 32

func encodeHandle(pipeline, group uint32) []byte {
	h := make([]byte, handleSize)
	copy(h, handleMagic[:])
	binary.LittleEndian.PutUint32(h[4:], pipeline)
	binary.LittleEndian.PutUint32(h[8:], group)
	return h
}

type launch struct {
	dev        *Device
	pipeline   *RayTracingPipeline
	bindings   Bindings
	structures map[uint32]*builtStructure
	desc       rt.TraceRaysDescriptor

	failed  atomic.Bool
	errOnce sync.Once
	err     error
}

func (l *launch) fail(err error) {
	l.errOnce.Do(func() {
		l.err = err
		l.failed.Store(true)
	})
}

// record resolves the shader record at index in region. A zero handle
// yields a nil group.
func (l *launch) record(name string, region rt.StridedRegion, index uint64) (*shaderGroup, []byte, error) {
	off := region.Stride * index
	if off+handleSize > region.Size {
		return nil, nil, fmt.Errorf("%w: %s record %d outside region of %d bytes", ErrShaderRecord, name, index, region.Size)
	}
	size := uint64(handleSize)
	if region.Stride > size {
		size = region.Stride
	}
	if off+size > region.Size {
		size = region.Size - off
	}
	data, err := l.dev.addrs.resolve(region.Address.Offset(off), size)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s record %d: %w", ErrShaderRecord, name, index, err)
	}
	if [4]byte(data[:4]) != handleMagic {
		for _, b := range data[:handleSize] {
			if b != 0 {
				return nil, nil, fmt.Errorf("%w: %s record %d holds no handle", ErrShaderRecord, name, index)
			}
		}
		return nil, data[handleSize:], nil
	}
	id := binary.LittleEndian.Uint32(data[4:])
	group := binary.LittleEndian.Uint32(data[8:])
	if id != l.pipeline.id || group >= uint32(len(l.pipeline.groups)) {
		return nil, nil, fmt.Errorf("%w: %s record %d belongs to another pipeline", ErrShaderRecord, name, index)
	}
	return &l.pipeline.groups[group], data[handleSize:], nil
}

// run executes the ray-generation program over the launch grid. Rows are
// spread over a worker pool.
func (l *launch) run(workers int) error {
	rg, _, err := l.record("ray generation", l.desc.RayGen, 0)
	if err != nil {
		return err
	}
	if rg == nil || rg.rayGen == nil {
		return fmt.Errorf("%w: ray generation record holds no ray generation program", ErrShaderRecord)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	depth := max(l.desc.Depth, 1)
	size := [3]uint32{l.desc.Width, l.desc.Height, depth}

	rows := make(chan [2]uint32, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range rows {
				if l.failed.Load() {
					continue
				}
				l.runRow(rg.rayGen, size, row)
			}
		}()
	}
	for z := uint32(0); z < depth; z++ {
		for y := uint32(0); y < l.desc.Height; y++ {
			rows <- [2]uint32{y, z}
		}
	}
	close(rows)
	wg.Wait()
	return l.err
}

func (l *launch) runRow(fn RayGenFunc, size [3]uint32, row [2]uint32) {
	defer func() {
		if r := recover(); r != nil {
			l.fail(fmt.Errorf("%w: %v", ErrProgramPanic, r))
		}
	}()
	inv := Invocation{Bindings: l.bindings, LaunchSize: size, launch: l}
	for x := uint32(0); x < size[0]; x++ {
		inv.LaunchID = [3]uint32{x, row[0], row[1]}
		inv.depth = 0
		fn(&inv)
		if l.failed.Load() {
			return
		}
	}
}

type candidateHit struct {
	found    bool
	t        float32
	kind     HitKind
	instance int32
	ref      primRef
	bary     [2]float32
	attrs    [4]float32
	group    *shaderGroup
	record   []byte
	origin   vec3
	dir      vec3
	resolved bool
}

// TraceRay traverses the structure bound at p.Structure and runs the hit or
// miss program for the result. Failures stop the launch and are reported
// when the submission completes.
func (inv *Invocation) TraceRay(p *TraceParams, payload any) {
	l := inv.launch
	if l.failed.Load() {
		return
	}
	if inv.depth >= l.pipeline.maxDepth {
		l.fail(fmt.Errorf("%w: depth %d", ErrRecursionDepth, inv.depth+1))
		return
	}
	tlas := l.structures[p.Structure]
	if tlas == nil {
		l.fail(fmt.Errorf("soft: no acceleration structure bound at %d", p.Structure))
		return
	}
	origin, dir := vec3(p.Origin), vec3(p.Direction)
	var best candidateHit
	done := false

	tlas.tree.traverse(origin, dir, p.TMin, p.TMax, func(ii int32, tmax float32) float32 {
		if done {
			return p.TMin
		}
		in := &tlas.instances[ii]
		if in.mask&p.CullMask == 0 {
			return tmax
		}
		oo := transformPoint(in.worldToObject, origin)
		od := transformVector(in.worldToObject, dir)
		blas := in.blas
		return blas.tree.traverse(oo, od, p.TMin, tmax, func(pi int32, tmax float32) float32 {
			if done || l.failed.Load() {
				return p.TMin
			}
			ref := blas.refs[pi]
			g := &blas.geometries[ref.geometry]
			c := candidateHit{instance: ii, ref: ref, origin: oo, dir: od}
			switch g.kind {
			case rt.GeometryTriangles:
				t, u, v, front, ok := intersectTriangle(oo, od, g.triangles[ref.primitive])
				if !ok || t < p.TMin || t > tmax {
					return tmax
				}
				if in.flags&rt.InstanceTriangleFlipFacing != 0 {
					front = !front
				}
				if !front && p.Flags&RayFlagCullBackFacing != 0 && in.flags&rt.InstanceTriangleFacingCullDisable == 0 {
					return tmax
				}
				c.t, c.bary, c.kind = t, [2]float32{u, v}, HitFrontFacingTriangle
				if !front {
					c.kind = HitBackFacingTriangle
				}
			case rt.GeometryAABBs:
				if err := l.resolveGroup(in, p, &c); err != nil {
					l.fail(err)
					return p.TMin
				}
				if c.group == nil || c.group.intersection == nil {
					return tmax
				}
				t, attrs, ok := c.group.intersection(inv, &Candidate{
					ObjectRayOrigin:     oo,
					ObjectRayDirection:  od,
					TMin:                p.TMin,
					TMax:                tmax,
					InstanceIndex:       uint32(ii),
					InstanceCustomIndex: in.customIndex,
					GeometryIndex:       uint32(ref.geometry),
					PrimitiveIndex:      uint32(ref.primitive),
				})
				if !ok || t < p.TMin || t > tmax {
					return tmax
				}
				c.t, c.attrs, c.kind = t, attrs, HitProcedural
			}
			opaque := g.opaque || in.flags&rt.InstanceForceOpaque != 0 || p.Flags&RayFlagOpaque != 0
			if !opaque {
				if err := l.resolveGroup(in, p, &c); err != nil {
					l.fail(err)
					return p.TMin
				}
				if c.group != nil && c.group.anyHit != nil {
					h := l.hit(tlas, p, &c)
					if !c.group.anyHit(inv, &h, payload) {
						return tmax
					}
				}
			}
			c.found = true
			best = c
			if p.Flags&RayFlagTerminateOnFirstHit != 0 {
				done = true
				return p.TMin
			}
			return c.t
		})
	})
	if l.failed.Load() {
		return
	}

	child := *inv
	child.depth++
	if !best.found {
		group, _, err := l.record("miss", l.desc.Miss, uint64(p.MissIndex))
		if err != nil {
			l.fail(err)
			return
		}
		if group != nil && group.miss != nil {
			group.miss(&child, &RayInfo{Origin: p.Origin, Direction: p.Direction, TMin: p.TMin, TMax: p.TMax}, payload)
		}
		return
	}
	if p.Flags&RayFlagSkipClosestHit != 0 {
		return
	}
	if err := l.resolveGroup(&tlas.instances[best.instance], p, &best); err != nil {
		l.fail(err)
		return
	}
	if best.group != nil && best.group.closestHit != nil {
		h := l.hit(tlas, p, &best)
		best.group.closestHit(&child, &h, payload)
	}
}

// resolveGroup looks up the hit group record of c.
func (l *launch) resolveGroup(in *builtInstance, p *TraceParams, c *candidateHit) error {
	if c.resolved {
		return nil
	}
	index := uint64(in.sbtOffset) + uint64(p.SBTOffset) + uint64(p.SBTStride)*uint64(c.ref.geometry)
	group, record, err := l.record("hit group", l.desc.HitGroup, index)
	if err != nil {
		return err
	}
	c.group, c.record, c.resolved = group, record, true
	return nil
}

func (l *launch) hit(tlas *builtStructure, p *TraceParams, c *candidateHit) Hit {
	in := &tlas.instances[c.instance]
	return Hit{
		Ray:                 RayInfo{Origin: p.Origin, Direction: p.Direction, TMin: p.TMin, TMax: p.TMax},
		T:                   c.t,
		Kind:                c.kind,
		InstanceIndex:       uint32(c.instance),
		InstanceCustomIndex: in.customIndex,
		GeometryIndex:       uint32(c.ref.geometry),
		PrimitiveIndex:      uint32(c.ref.primitive),
		Barycentrics:        c.bary,
		Attributes:          c.attrs,
		ObjectToWorld:       in.objectToWorld,
		WorldToObject:       in.worldToObject,
		ObjectRayOrigin:     c.origin,
		ObjectRayDirection:  c.dir,
		Record:              c.record,
	}
}

// intersectTriangle returns the hit distance and the barycentrics of
// vertices 1 and 2. Counter-clockwise triangles seen from the ray origin are
// front facing.
func intersectTriangle(o, d vec3, tri [3]vec3) (t, u, v float32, front, ok bool) {
	e1 := tri[1].sub(tri[0])
	e2 := tri[2].sub(tri[0])
	pv := d.cross(e2)
	det := e1.dot(pv)
	if det == 0 {
		return 0, 0, 0, false, false
	}
	inv := 1 / det
	s := o.sub(tri[0])
	u = s.dot(pv) * inv
	if u < 0 || u > 1 {
		return 0, 0, 0, false, false
	}
	q := s.cross(e1)
	v = d.dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false, false
	}
	t = e2.dot(q) * inv
	return t, u, v, det > 0, true
}
