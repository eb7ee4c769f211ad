package assets

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Offset is the device layout of one row of the per-object offset table.
type Offset struct {
	IndexOffset  uint32
	VertexOffset uint32
}

// ObjectRange locates one object inside SceneBuffers.
type ObjectRange struct {
	IndexOffset    uint32
	IndexCount     uint32
	VertexOffset   uint32
	VertexCount    uint32
	MaterialOffset uint32
	// AABB indexes SceneBuffers.AABBs, or is -1 for triangle objects.
	AABB int32
}

// SceneBuffers are the global buffers of an aggregated scene. Indices are
// global: they already include the vertex offset of their object.
type SceneBuffers struct {
	Vertices  []Vertex
	Indices   []uint32
	Materials []Material
	// Offsets has one row per object and never decreases.
	Offsets    []Offset
	Transforms []mgl32.Mat4
	// Procedurals has one center+radius per object, zero for triangle
	// objects.
	Procedurals []mgl32.Vec4
	// AABBs has one box per procedural object, in object space.
	AABBs []AABB

	Objects []ObjectRange
}

// ObjectCount returns the number of aggregated objects.
func (b *SceneBuffers) ObjectCount() int { return len(b.Objects) }

// Aggregate flattens objects, in order, into one set of buffers. Each
// vertex material index is shifted by the materials of the preceding
// objects, each index by their vertices.
//
// It returns an error wrapping ErrSceneLoad when the list is empty or an
// object is degenerate.
func Aggregate(objects []Object) (*SceneBuffers, error) {
	if len(objects) == 0 {
		return nil, fmt.Errorf("%w: scene has no objects", ErrSceneLoad)
	}

	var nv, ni, nm, nb int
	for i := range objects {
		if err := validate(&objects[i]); err != nil {
			return nil, fmt.Errorf("%w: object %d: %w", ErrSceneLoad, i, err)
		}
		nv += len(objects[i].Vertices)
		ni += len(objects[i].Indices)
		nm += len(objects[i].Materials)
		if objects[i].IsProcedural() {
			nb++
		}
	}
	if uint64(nv) > uint64(^uint32(0)) || uint64(ni) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("%w: %d vertices and %d indices exceed 32-bit indexing", ErrSceneLoad, nv, ni)
	}

	b := &SceneBuffers{
		Vertices:    make([]Vertex, 0, nv),
		Indices:     make([]uint32, 0, ni),
		Materials:   make([]Material, 0, nm),
		Offsets:     make([]Offset, 0, len(objects)),
		Transforms:  make([]mgl32.Mat4, 0, len(objects)),
		Procedurals: make([]mgl32.Vec4, 0, len(objects)),
		AABBs:       make([]AABB, 0, nb),
		Objects:     make([]ObjectRange, 0, len(objects)),
	}
	for i := range objects {
		o := &objects[i]
		vertexOffset := uint32(len(b.Vertices))
		materialOffset := int32(len(b.Materials))
		r := ObjectRange{
			IndexOffset:    uint32(len(b.Indices)),
			IndexCount:     uint32(len(o.Indices)),
			VertexOffset:   vertexOffset,
			VertexCount:    uint32(len(o.Vertices)),
			MaterialOffset: uint32(materialOffset),
			AABB:           -1,
		}
		b.Offsets = append(b.Offsets, Offset{IndexOffset: r.IndexOffset, VertexOffset: r.VertexOffset})

		for _, v := range o.Vertices {
			v.MaterialIndex += materialOffset
			b.Vertices = append(b.Vertices, v)
		}
		for _, idx := range o.Indices {
			b.Indices = append(b.Indices, idx+vertexOffset)
		}
		b.Materials = append(b.Materials, o.Materials...)
		b.Transforms = append(b.Transforms, o.Transform)

		if o.Procedural.Specified {
			s := o.Procedural.Value
			r.AABB = int32(len(b.AABBs))
			b.AABBs = append(b.AABBs, s.Bounds())
			b.Procedurals = append(b.Procedurals, mgl32.Vec4{s.Center[0], s.Center[1], s.Center[2], s.Radius})
		} else {
			b.Procedurals = append(b.Procedurals, mgl32.Vec4{})
		}
		b.Objects = append(b.Objects, r)
	}
	return b, nil
}

func validate(o *Object) error {
	if len(o.Vertices) == 0 {
		if o.IsProcedural() {
			return errors.New("procedural object has no vertex carrying its material")
		}
		return errors.New("triangle object has no vertices")
	}
	if len(o.Materials) == 0 {
		return errors.New("object has no materials")
	}
	if len(o.Indices)%3 != 0 {
		return fmt.Errorf("index count %d is not a multiple of 3", len(o.Indices))
	}
	if !o.IsProcedural() && len(o.Indices) == 0 {
		return errors.New("triangle object has no indices")
	}
	for i, idx := range o.Indices {
		if int(idx) >= len(o.Vertices) {
			return fmt.Errorf("index %d references vertex %d of %d", i, idx, len(o.Vertices))
		}
	}
	for i := range o.Vertices {
		if m := o.Vertices[i].MaterialIndex; m < 0 || int(m) >= len(o.Materials) {
			return fmt.Errorf("vertex %d references material %d of %d", i, m, len(o.Materials))
		}
	}
	if o.Procedural.Specified && !(o.Procedural.Value.Radius > 0) {
		return fmt.Errorf("procedural sphere radius %v is not positive", o.Procedural.Value.Radius)
	}
	return nil
}
