// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package soft

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/pathtrace/rt"
)

// buildSizes returns the storage and scratch estimate for info. The numbers
// follow node and primitive record sizes of the hierarchy built below.
func buildSizes(info *rt.BuildGeometryInfo) rt.BuildSizes {
	var prims uint64
	for i := range info.Geometries {
		prims += uint64(info.Geometries[i].PrimitiveCount())
	}
	if info.Type == rt.TopLevel {
		return rt.BuildSizes{
			StructureSize:     96 + prims*80,
			BuildScratchSize:  64 + prims*16,
			UpdateScratchSize: 32 + prims*8,
		}
	}
	return rt.BuildSizes{
		StructureSize:     96 + prims*56,
		BuildScratchSize:  64 + prims*24,
		UpdateScratchSize: 32 + prims*8,
	}
}

type primRef struct {
	geometry  int32
	primitive int32
}

type builtGeometry struct {
	kind      rt.GeometryType
	opaque    bool
	triangles [][3]vec3
	boxes     []aabb
}

type builtInstance struct {
	objectToWorld [12]float32
	worldToObject [12]float32
	customIndex   uint32
	mask          uint8
	sbtOffset     uint32
	flags         rt.InstanceFlags
	blas          *builtStructure
}

// builtStructure is an immutable snapshot of a completed build. Rebuilds
// replace the snapshot, so in-flight traversals keep a consistent view.
type builtStructure struct {
	kind       rt.StructureType
	flags      rt.BuildFlags
	counts     []uint32
	geometries []builtGeometry
	refs       []primRef
	instances  []builtInstance
	tree       *bvh
}

// buildStructure reads the geometry referenced by info from device memory
// and builds the hierarchy.
func (d *Device) buildStructure(info *rt.BuildGeometryInfo) (*builtStructure, error) {
	dst, ok := info.Destination.(*AccelerationStructure)
	if !ok {
		return nil, fmt.Errorf("%w: destination %T", ErrForeignResource, info.Destination)
	}
	if info.Mode == rt.BuildModeUpdate {
		src, ok := info.Source.(*AccelerationStructure)
		if !ok {
			return nil, fmt.Errorf("%w: update of %q without source", rt.ErrInvalidBuild, dst.label)
		}
		prev := src.snapshot()
		if prev == nil {
			return nil, fmt.Errorf("%w: update of %q from unbuilt source", rt.ErrInvalidBuild, dst.label)
		}
		if prev.flags&rt.BuildAllowUpdate == 0 {
			return nil, fmt.Errorf("%w: %q was built without allow-update", rt.ErrInvalidBuild, src.label)
		}
		if len(prev.counts) != len(info.Geometries) {
			return nil, fmt.Errorf("%w: update of %q changes geometry count", rt.ErrInvalidBuild, dst.label)
		}
		for i := range info.Geometries {
			if prev.counts[i] != info.Geometries[i].PrimitiveCount() {
				return nil, fmt.Errorf("%w: update of %q changes primitive count of geometry %d", rt.ErrInvalidBuild, dst.label, i)
			}
		}
	}

	out := &builtStructure{kind: info.Type, flags: info.Flags}
	if info.Mode == rt.BuildModeUpdate {
		// Updates inherit the flags of the original build.
		out.flags = info.Source.(*AccelerationStructure).snapshot().flags
	}
	var boxes []aabb
	for gi := range info.Geometries {
		g := &info.Geometries[gi]
		out.counts = append(out.counts, g.PrimitiveCount())
		switch g.Type {
		case rt.GeometryTriangles:
			bg, err := d.readTriangles(&g.Triangles)
			if err != nil {
				return nil, fmt.Errorf("%q geometry %d: %w", info.Label, gi, err)
			}
			bg.opaque = g.Flags&rt.GeometryOpaque != 0
			for pi, tri := range bg.triangles {
				boxes = append(boxes, emptyBox().grow(tri[0]).grow(tri[1]).grow(tri[2]))
				out.refs = append(out.refs, primRef{geometry: int32(gi), primitive: int32(pi)})
			}
			out.geometries = append(out.geometries, bg)
		case rt.GeometryAABBs:
			bg, err := d.readBoxes(&g.AABBs)
			if err != nil {
				return nil, fmt.Errorf("%q geometry %d: %w", info.Label, gi, err)
			}
			bg.opaque = g.Flags&rt.GeometryOpaque != 0
			for pi, b := range bg.boxes {
				boxes = append(boxes, b)
				out.refs = append(out.refs, primRef{geometry: int32(gi), primitive: int32(pi)})
			}
			out.geometries = append(out.geometries, bg)
		case rt.GeometryInstances:
			if info.Type != rt.TopLevel {
				return nil, fmt.Errorf("%w: instances in bottom-level %q", rt.ErrInvalidGeometry, info.Label)
			}
			instances, err := d.readInstances(&g.Instances)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", info.Label, err)
			}
			for _, in := range instances {
				boxes = append(boxes, in.worldBounds())
			}
			out.instances = append(out.instances, instances...)
		}
	}
	if info.Type == rt.TopLevel && len(out.geometries) > 0 {
		return nil, fmt.Errorf("%w: geometry in top-level %q", rt.ErrInvalidGeometry, info.Label)
	}
	out.tree = buildBVH(boxes)
	return out, nil
}

func (d *Device) readTriangles(t *rt.TrianglesData) (builtGeometry, error) {
	g := builtGeometry{kind: rt.GeometryTriangles}
	if t.PrimitiveCount == 0 {
		return g, nil
	}
	if t.VertexStride < 12 {
		return g, fmt.Errorf("%w: vertex stride %d", rt.ErrInvalidGeometry, t.VertexStride)
	}
	indices, err := d.addrs.resolve(t.IndexAddress.Offset(t.PrimitiveOffset), uint64(t.PrimitiveCount)*12)
	if err != nil {
		return g, fmt.Errorf("%w: index data: %w", rt.ErrInvalidGeometry, err)
	}
	vertices, err := d.addrs.resolve(t.VertexAddress, (uint64(t.MaxVertex)+1)*t.VertexStride)
	if err != nil {
		return g, fmt.Errorf("%w: vertex data: %w", rt.ErrInvalidGeometry, err)
	}
	position := func(i uint32) vec3 {
		off := uint64(i) * t.VertexStride
		return vec3{
			math.Float32frombits(binary.LittleEndian.Uint32(vertices[off:])),
			math.Float32frombits(binary.LittleEndian.Uint32(vertices[off+4:])),
			math.Float32frombits(binary.LittleEndian.Uint32(vertices[off+8:])),
		}
	}
	g.triangles = make([][3]vec3, t.PrimitiveCount)
	for p := range g.triangles {
		for k := 0; k < 3; k++ {
			idx := binary.LittleEndian.Uint32(indices[(p*3+k)*4:]) + t.FirstVertex
			if idx > t.MaxVertex {
				return g, fmt.Errorf("%w: triangle %d index %d exceeds max vertex %d", rt.ErrInvalidGeometry, p, idx, t.MaxVertex)
			}
			g.triangles[p][k] = position(idx)
		}
	}
	return g, nil
}

func (d *Device) readBoxes(a *rt.AABBData) (builtGeometry, error) {
	g := builtGeometry{kind: rt.GeometryAABBs}
	if a.PrimitiveCount == 0 {
		return g, nil
	}
	stride := a.Stride
	if stride == 0 {
		stride = rt.AABBSize
	}
	if stride < rt.AABBSize {
		return g, fmt.Errorf("%w: aabb stride %d", rt.ErrInvalidGeometry, stride)
	}
	data, err := d.addrs.resolve(a.Address.Offset(a.PrimitiveOffset), uint64(a.PrimitiveCount-1)*stride+rt.AABBSize)
	if err != nil {
		return g, fmt.Errorf("%w: aabb data: %w", rt.ErrInvalidGeometry, err)
	}
	g.boxes = make([]aabb, a.PrimitiveCount)
	for i := range g.boxes {
		base := uint64(i) * stride
		var f [6]float32
		for k := range f {
			f[k] = math.Float32frombits(binary.LittleEndian.Uint32(data[base+uint64(k)*4:]))
		}
		g.boxes[i] = aabb{min: vec3{f[0], f[1], f[2]}, max: vec3{f[3], f[4], f[5]}}
		if !g.boxes[i].valid() {
			return g, fmt.Errorf("%w: aabb %d has min greater than max", rt.ErrInvalidGeometry, i)
		}
	}
	return g, nil
}

func (d *Device) readInstances(in *rt.InstancesData) ([]builtInstance, error) {
	if in.Count == 0 {
		return nil, nil
	}
	data, err := d.addrs.resolve(in.Address, uint64(in.Count)*rt.InstanceSize)
	if err != nil {
		return nil, fmt.Errorf("%w: instance data: %w", rt.ErrInvalidGeometry, err)
	}
	records := make([]rt.Instance, in.Count)
	copy(rt.Bytes(records), data)
	out := make([]builtInstance, len(records))
	for i := range records {
		r := &records[i]
		as, err := d.addrs.structure(r.AccelerationStructure)
		if err != nil {
			return nil, fmt.Errorf("%w: instance %d: %w", rt.ErrInvalidGeometry, i, err)
		}
		blas := as.snapshot()
		if blas == nil || blas.kind != rt.BottomLevel {
			return nil, fmt.Errorf("%w: instance %d references unbuilt %q", rt.ErrInvalidGeometry, i, as.label)
		}
		inv, ok := invertAffine(r.Transform)
		if !ok {
			return nil, fmt.Errorf("%w: instance %d transform is singular", rt.ErrInvalidGeometry, i)
		}
		out[i] = builtInstance{
			objectToWorld: r.Transform,
			worldToObject: inv,
			customIndex:   r.CustomIndex(),
			mask:          r.Mask(),
			sbtOffset:     r.SBTOffset(),
			flags:         r.Flags(),
			blas:          blas,
		}
	}
	return out, nil
}

func (in *builtInstance) worldBounds() aabb {
	local := in.blas.tree.bounds()
	if !local.valid() {
		return local
	}
	out := emptyBox()
	for c := 0; c < 8; c++ {
		p := vec3{local.min[0], local.min[1], local.min[2]}
		if c&1 != 0 {
			p[0] = local.max[0]
		}
		if c&2 != 0 {
			p[1] = local.max[1]
		}
		if c&4 != 0 {
			p[2] = local.max[2]
		}
		out = out.grow(transformPoint(in.objectToWorld, p))
	}
	return out
}

func transformPoint(m [12]float32, p vec3) vec3 {
	return vec3{
		m[0]*p[0] + m[1]*p[1] + m[2]*p[2] + m[3],
		m[4]*p[0] + m[5]*p[1] + m[6]*p[2] + m[7],
		m[8]*p[0] + m[9]*p[1] + m[10]*p[2] + m[11],
	}
}

func transformVector(m [12]float32, v vec3) vec3 {
	return vec3{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
		m[4]*v[0] + m[5]*v[1] + m[6]*v[2],
		m[8]*v[0] + m[9]*v[1] + m[10]*v[2],
	}
}

// invertAffine inverts a row-major 3x4 affine transform.
func invertAffine(m [12]float32) ([12]float32, bool) {
	a, b, c := m[0], m[1], m[2]
	d, e, f := m[4], m[5], m[6]
	g, h, i := m[8], m[9], m[10]
	co00 := e*i - f*h
	co01 := f*g - d*i
	co02 := d*h - e*g
	det := a*co00 + b*co01 + c*co02
	if det == 0 || math.IsNaN(float64(det)) {
		return [12]float32{}, false
	}
	inv := 1 / det
	r := [12]float32{
		co00 * inv, (c*h - b*i) * inv, (b*f - c*e) * inv, 0,
		co01 * inv, (a*i - c*g) * inv, (c*d - a*f) * inv, 0,
		co02 * inv, (b*g - a*h) * inv, (a*e - b*d) * inv, 0,
	}
	t := vec3{m[3], m[7], m[11]}
	for row := 0; row < 3; row++ {
		r[row*4+3] = -(r[row*4]*t[0] + r[row*4+1]*t[1] + r[row*4+2]*t[2])
	}
	return r, true
}
