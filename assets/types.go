package assets

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/mokiat/gog/opt"
)

// VertexSize is the size in bytes of one Vertex.
const VertexSize = 36

// Vertex is the device layout of one mesh vertex.
type Vertex struct {
	Position      mgl32.Vec3
	Normal        mgl32.Vec3
	TexCoord      mgl32.Vec2
	MaterialIndex int32
}

// MaterialModel selects the scattering function of a material.
type MaterialModel uint32

const (
	Lambertian MaterialModel = iota
	Metallic
	Dielectric
	Isotropic
	DiffuseLight
)

// String returns the model name.
func (m MaterialModel) String() string {
	switch m {
	case Lambertian:
		return "lambertian"
	case Metallic:
		return "metallic"
	case Dielectric:
		return "dielectric"
	case Isotropic:
		return "isotropic"
	case DiffuseLight:
		return "diffuse-light"
	default:
		return "unknown"
	}
}

// MaterialSize is the size in bytes of one Material.
const MaterialSize = 32

// NoTexture is the DiffuseTextureID of an untextured material.
const NoTexture = -1

// Material is the device layout of one material.
type Material struct {
	Diffuse          mgl32.Vec4
	DiffuseTextureID int32
	// Fuzziness blurs metallic reflections.
	Fuzziness float32
	// RefractionIndex is read by dielectrics.
	RefractionIndex float32
	Model           MaterialModel
}

// NewLambertian returns a diffuse material.
func NewLambertian(diffuse mgl32.Vec3) Material {
	return Material{Diffuse: opaque(diffuse), DiffuseTextureID: NoTexture, Model: Lambertian}
}

// NewTexturedLambertian returns a diffuse material sampling texture id.
func NewTexturedLambertian(diffuse mgl32.Vec3, texture int32) Material {
	return Material{Diffuse: opaque(diffuse), DiffuseTextureID: texture, Model: Lambertian}
}

// NewMetallic returns a reflective material.
func NewMetallic(diffuse mgl32.Vec3, fuzziness float32) Material {
	return Material{Diffuse: opaque(diffuse), DiffuseTextureID: NoTexture, Fuzziness: fuzziness, Model: Metallic}
}

// NewTexturedMetallic returns a reflective material tinted by texture id.
func NewTexturedMetallic(diffuse mgl32.Vec3, fuzziness float32, texture int32) Material {
	return Material{Diffuse: opaque(diffuse), DiffuseTextureID: texture, Fuzziness: fuzziness, Model: Metallic}
}

// NewDielectric returns a glass-like material.
func NewDielectric(refractionIndex float32) Material {
	return Material{
		Diffuse:          mgl32.Vec4{0.7, 0.7, 1, 1},
		DiffuseTextureID: NoTexture,
		RefractionIndex:  refractionIndex,
		Model:            Dielectric,
	}
}

// NewIsotropic returns a material that scatters uniformly.
func NewIsotropic(diffuse mgl32.Vec3) Material {
	return Material{Diffuse: opaque(diffuse), DiffuseTextureID: NoTexture, Model: Isotropic}
}

// NewDiffuseLight returns an emissive material.
func NewDiffuseLight(emission mgl32.Vec3) Material {
	return Material{Diffuse: opaque(emission), DiffuseTextureID: NoTexture, Model: DiffuseLight}
}

func opaque(c mgl32.Vec3) mgl32.Vec4 { return mgl32.Vec4{c[0], c[1], c[2], 1} }

// Sphere is a procedural sphere in object space.
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

// Bounds returns the box enclosing the sphere.
func (s Sphere) Bounds() AABB {
	r := s.Radius
	return AABB{
		Min: mgl32.Vec3{s.Center[0] - r, s.Center[1] - r, s.Center[2] - r},
		Max: mgl32.Vec3{s.Center[0] + r, s.Center[1] + r, s.Center[2] + r},
	}
}

// AABB is the device layout of one procedural bounding box.
type AABB struct {
	Min, Max mgl32.Vec3
}

// Object is one independently authored part of a scene.
//
// Procedural objects still carry a mesh: the closest-hit program reads the
// material index from the object's first vertex.
type Object struct {
	Vertices  []Vertex
	Indices   []uint32
	Materials []Material
	// Transform is the object-to-world matrix.
	Transform  mgl32.Mat4
	Procedural opt.T[Sphere]
}

// IsProcedural reports whether the object is traced as a procedural shape.
func (o *Object) IsProcedural() bool { return o.Procedural.Specified }

// Clone returns a deep copy of the object.
func (o *Object) Clone() Object {
	c := *o
	c.Vertices = append([]Vertex(nil), o.Vertices...)
	c.Indices = append([]uint32(nil), o.Indices...)
	c.Materials = append([]Material(nil), o.Materials...)
	return c
}

// SetMaterial replaces the material of a single-material object.
func (o *Object) SetMaterial(m Material) error {
	if len(o.Materials) != 1 {
		return errMultiMaterial
	}
	o.Materials[0] = m
	return nil
}

// TransformVertices bakes m into positions and normals. Normals use the
// inverse transpose of m.
func (o *Object) TransformVertices(m mgl32.Mat4) error {
	if m.Det() == 0 {
		return errSingularTransform
	}
	normal := mgl32.Mat4Normal(m)
	for i := range o.Vertices {
		v := &o.Vertices[i]
		v.Position = mgl32.TransformCoordinate(v.Position, m)
		v.Normal = normal.Mul3x1(v.Normal).Normalize()
	}
	return nil
}

// CameraState is the initial camera a scene requests on load.
type CameraState struct {
	ModelView       mgl32.Mat4
	FieldOfView     float32
	Aperture        float32
	FocusDistance   float32
	ControlSpeed    float32
	GammaCorrection bool
	SkyColor1       mgl32.Vec4
	SkyColor2       mgl32.Vec4
}
