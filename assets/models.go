package assets

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mokiat/gog/opt"
)

// Sphere tessellation used by NewSphere.
const (
	SphereSlices = 32
	SphereStacks = 16
)

func newObject(vertices []Vertex, indices []uint32, materials ...Material) Object {
	return Object{
		Vertices:  vertices,
		Indices:   indices,
		Materials: materials,
		Transform: mgl32.Ident4(),
	}
}

func vertex(p, n mgl32.Vec3, uv mgl32.Vec2, material int32) Vertex {
	return Vertex{Position: p, Normal: n, TexCoord: uv, MaterialIndex: material}
}

// NewBox returns an axis-aligned box between corners p0 and p1 with one
// material. Faces point outwards when every component of p0 is below p1.
func NewBox(p0, p1 mgl32.Vec3, m Material) Object {
	x0, y0, z0 := p0[0], p0[1], p0[2]
	x1, y1, z1 := p1[0], p1[1], p1[2]
	faces := [6]struct {
		n       mgl32.Vec3
		corners [4]mgl32.Vec3
	}{
		{mgl32.Vec3{-1, 0, 0}, [4]mgl32.Vec3{{x0, y0, z0}, {x0, y0, z1}, {x0, y1, z1}, {x0, y1, z0}}},
		{mgl32.Vec3{1, 0, 0}, [4]mgl32.Vec3{{x1, y0, z1}, {x1, y0, z0}, {x1, y1, z0}, {x1, y1, z1}}},
		{mgl32.Vec3{0, 0, -1}, [4]mgl32.Vec3{{x1, y0, z0}, {x0, y0, z0}, {x0, y1, z0}, {x1, y1, z0}}},
		{mgl32.Vec3{0, 0, 1}, [4]mgl32.Vec3{{x0, y0, z1}, {x1, y0, z1}, {x1, y1, z1}, {x0, y1, z1}}},
		{mgl32.Vec3{0, -1, 0}, [4]mgl32.Vec3{{x0, y0, z0}, {x1, y0, z0}, {x1, y0, z1}, {x0, y0, z1}}},
		{mgl32.Vec3{0, 1, 0}, [4]mgl32.Vec3{{x1, y1, z0}, {x0, y1, z0}, {x0, y1, z1}, {x1, y1, z1}}},
	}
	vertices := make([]Vertex, 0, 24)
	indices := make([]uint32, 0, 36)
	for _, f := range faces {
		base := uint32(len(vertices))
		for _, c := range f.corners {
			vertices = append(vertices, vertex(c, f.n, mgl32.Vec2{}, 0))
		}
		indices = appendQuad(indices, base, 0, 1, 2, 3)
	}
	return newObject(vertices, indices, m)
}

// NewSphere returns a UV sphere. A procedural sphere keeps its mesh but is
// traced through its analytic shape.
func NewSphere(center mgl32.Vec3, radius float32, m Material, procedural bool) Object {
	vertices := make([]Vertex, 0, (SphereSlices+1)*(SphereStacks+1))
	for j := 0; j <= SphereStacks; j++ {
		phi := math.Pi * float64(j) / SphereStacks
		ring, height := float32(-math.Sin(phi)), float32(math.Cos(phi))
		for i := 0; i <= SphereSlices; i++ {
			theta := 2 * math.Pi * float64(i) / SphereSlices
			s, c := float32(math.Sin(theta)), float32(math.Cos(theta))
			n := mgl32.Vec3{ring * s, height, ring * c}
			vertices = append(vertices, vertex(
				center.Add(n.Mul(radius)),
				n,
				mgl32.Vec2{float32(i) / SphereSlices, float32(j) / SphereStacks},
				0,
			))
		}
	}

	indices := make([]uint32, 0, SphereSlices*SphereStacks*6)
	for j := uint32(0); j < SphereStacks; j++ {
		for i := uint32(0); i < SphereSlices; i++ {
			top := j*(SphereSlices+1) + i
			bottom := (j+1)*(SphereSlices+1) + i
			indices = append(indices, top, bottom, bottom+1, top, bottom+1, top+1)
		}
	}

	o := newObject(vertices, indices, m)
	if procedural {
		o.Procedural = opt.V(Sphere{Center: center, Radius: radius})
	}
	return o
}

// NewGroundRect returns a horizontal rectangle centered on p0, facing up,
// with texture coordinates spanning [0, uvScale].
func NewGroundRect(p0 mgl32.Vec3, width, depth float32, m Material, uvScale float32) Object {
	w, d := width/2, depth/2
	up := mgl32.Vec3{0, 1, 0}
	vertices := []Vertex{
		vertex(mgl32.Vec3{p0[0] + w, p0[1], p0[2] - d}, up, mgl32.Vec2{uvScale, 0}, 0),
		vertex(mgl32.Vec3{p0[0] - w, p0[1], p0[2] - d}, up, mgl32.Vec2{0, 0}, 0),
		vertex(mgl32.Vec3{p0[0] - w, p0[1], p0[2] + d}, up, mgl32.Vec2{0, uvScale}, 0),
		vertex(mgl32.Vec3{p0[0] + w, p0[1], p0[2] + d}, up, mgl32.Vec2{uvScale, uvScale}, 0),
	}
	return newObject(vertices, appendQuad(nil, 0, 0, 1, 2, 3), m)
}

// Cornell box material slots.
const (
	cornellRed int32 = iota
	cornellGreen
	cornellWhite
	cornellLight
)

// NewCornellBox returns an open Cornell box of side scale: red and green
// side walls, white floor, ceiling and back wall, and a ceiling light. The
// open side faces +z and the box spans z in [-scale, 0].
func NewCornellBox(scale float32) Object {
	s := scale
	l0, l1, l2, l3 := mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -s}, mgl32.Vec3{0, s, -s}, mgl32.Vec3{0, s, 0}
	r0, r1, r2, r3 := mgl32.Vec3{s, 0, 0}, mgl32.Vec3{s, 0, -s}, mgl32.Vec3{s, s, -s}, mgl32.Vec3{s, s, 0}

	var vertices []Vertex
	var indices []uint32
	panel := func(corners [4]mgl32.Vec3, n mgl32.Vec3, material int32, order [4]uint32) {
		base := uint32(len(vertices))
		uvs := [4]mgl32.Vec2{{0, 1}, {1, 1}, {1, 0}, {0, 0}}
		for i, c := range corners {
			vertices = append(vertices, vertex(c, n, uvs[i], material))
		}
		indices = appendQuad(indices, base, order[0], order[1], order[2], order[3])
	}
	forward := [4]uint32{0, 1, 2, 3}

	panel([4]mgl32.Vec3{l0, l1, l2, l3}, mgl32.Vec3{1, 0, 0}, cornellGreen, forward)
	// Wound the other way so that the panel faces into the box.
	panel([4]mgl32.Vec3{r0, r1, r2, r3}, mgl32.Vec3{-1, 0, 0}, cornellRed, [4]uint32{2, 1, 0, 3})
	panel([4]mgl32.Vec3{l1, r1, r2, l2}, mgl32.Vec3{0, 0, 1}, cornellWhite, forward)
	panel([4]mgl32.Vec3{l0, r0, r1, l1}, mgl32.Vec3{0, 1, 0}, cornellWhite, forward)
	panel([4]mgl32.Vec3{l2, r2, r3, l3}, mgl32.Vec3{0, -1, 0}, cornellWhite, forward)

	x0, x1 := s*213/555, s*343/555
	z0, z1 := s*(-555+332)/555, s*(-555+227)/555
	y := s * 0.998
	panel([4]mgl32.Vec3{{x0, y, z1}, {x1, y, z1}, {x1, y, z0}, {x0, y, z0}}, mgl32.Vec3{0, -1, 0}, cornellLight, forward)

	return newObject(vertices, indices,
		NewLambertian(mgl32.Vec3{0.65, 0.05, 0.05}),
		NewLambertian(mgl32.Vec3{0.12, 0.45, 0.15}),
		NewLambertian(mgl32.Vec3{0.73, 0.73, 0.73}),
		NewDiffuseLight(mgl32.Vec3{15, 15, 15}),
	)
}

// appendQuad appends the two triangles (a, b, c) and (a, c, d) of a quad
// whose corners are base+a..base+d.
func appendQuad(indices []uint32, base, a, b, c, d uint32) []uint32 {
	return append(indices, base+a, base+b, base+c, base+a, base+c, base+d)
}
