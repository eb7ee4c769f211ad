package kernel

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/pathtrace/assets"
	"github.com/gogpu/pathtrace/frame"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/pathtrace/rt/soft"
)

// Entry points of the path-tracing programs.
const (
	EntryRayGen             = "path_raygen"
	EntryMiss               = "path_miss"
	EntryClosestHit         = "path_closest_hit"
	EntrySphereClosestHit   = "sphere_closest_hit"
	EntrySphereIntersection = "sphere_intersection"
	EntryResolve            = "resolve"
)

// Ray extent of every traced segment.
const (
	rayTMin = 0.001
	rayTMax = 10000
)

func init() {
	soft.RegisterProgram(EntryRayGen, soft.RayGenFunc(rayGen))
	soft.RegisterProgram(EntryMiss, soft.MissFunc(miss))
	soft.RegisterProgram(EntryClosestHit, soft.ClosestHitFunc(closestHit))
	soft.RegisterProgram(EntrySphereClosestHit, soft.ClosestHitFunc(sphereClosestHit))
	soft.RegisterProgram(EntrySphereIntersection, soft.IntersectionFunc(sphereIntersection))
	soft.RegisterComputeProgram(EntryResolve, resolve)
}

func uniforms(b *soft.Bindings) *frame.UniformBufferObject {
	return &rt.View[frame.UniformBufferObject](b.Buffer(0, BindingUniform))[0]
}

// sceneView is the scene as seen by the hit programs.
type sceneView struct {
	vertices    []assets.Vertex
	indices     []uint32
	materials   []assets.Material
	offsets     []assets.Offset
	procedurals []mgl32.Vec4
}

func viewScene(b *soft.Bindings) sceneView {
	return sceneView{
		vertices:    rt.View[assets.Vertex](b.Buffer(0, BindingVertices)),
		indices:     rt.View[uint32](b.Buffer(0, BindingIndices)),
		materials:   rt.View[assets.Material](b.Buffer(0, BindingMaterials)),
		offsets:     rt.View[assets.Offset](b.Buffer(0, BindingOffsets)),
		procedurals: rt.View[mgl32.Vec4](b.Buffer(0, BindingProcedurals)),
	}
}

// rayGen traces NumberOfSamples camera paths through the pixel and adds
// them to the accumulation buffer. Paths are followed iteratively, one
// TraceRay per bounce.
func rayGen(inv *soft.Invocation) {
	ubo := uniforms(&inv.Bindings)
	accumulation := rt.View[mgl32.Vec4](inv.Buffer(0, BindingAccumulation))
	x, y := inv.LaunchID[0], inv.LaunchID[1]
	w, h := inv.LaunchSize[0], inv.LaunchSize[1]

	p := payload{seed: initRandomSeed(initRandomSeed(x, y), ubo.TotalNumberOfSamples^ubo.RandomSeed)}
	var sum mgl32.Vec3
	var rays uint32
	for range ubo.NumberOfSamples {
		u := (float32(x)+randomFloat(&p.seed))/float32(w)*2 - 1
		v := (float32(y)+randomFloat(&p.seed))/float32(h)*2 - 1
		dx, dy := randomInUnitDisk(&p.seed)
		lens := mgl32.Vec3{dx * ubo.Aperture / 2, dy * ubo.Aperture / 2, 0}

		target := ubo.ProjectionInverse.Mul4x1(mgl32.Vec4{u, v, 1, 1}).Vec3()
		origin := ubo.ModelViewInverse.Mul4x1(lens.Vec4(1)).Vec3()
		direction := ubo.ModelViewInverse.Mul4x1(target.Mul(ubo.FocusDistance).Sub(lens).Normalize().Vec4(0)).Vec3()

		color := mgl32.Vec3{1, 1, 1}
		for b := uint32(0); ; b++ {
			if b == ubo.NumberOfBounces {
				color = mgl32.Vec3{}
				break
			}
			inv.TraceRay(&soft.TraceParams{
				Structure: BindingTopLevel,
				CullMask:  0xFF,
				Origin:    origin,
				TMin:      rayTMin,
				Direction: direction,
				TMax:      rayTMax,
			}, &p)
			rays++
			color = mulVec(color, p.color)
			if p.distance < 0 || !p.scattered {
				break
			}
			origin = origin.Add(direction.Mul(p.distance))
			direction = p.direction
		}
		sum = sum.Add(color)
	}

	i := y*w + x
	acc := mgl32.Vec4{sum[0], sum[1], sum[2], float32(rays)}
	if ubo.NumberOfSamples != ubo.TotalNumberOfSamples {
		prev := accumulation[i]
		acc = mgl32.Vec4{prev[0] + acc[0], prev[1] + acc[1], prev[2] + acc[2], prev[3] + acc[3]}
	}
	accumulation[i] = acc
}

// miss returns the sky gradient.
func miss(inv *soft.Invocation, ray *soft.RayInfo, pl any) {
	p := pl.(*payload)
	ubo := uniforms(&inv.Bindings)
	t := 0.5 * (mgl32.Vec3(ray.Direction).Normalize()[1] + 1)
	var sky mgl32.Vec3
	for c := range 3 {
		sky[c] = (1-t)*ubo.SkyColor1[c] + t*ubo.SkyColor2[c]
	}
	*p = payload{color: sky, distance: -1, seed: p.seed}
}

// closestHit shades a triangle with the material of its first vertex.
func closestHit(inv *soft.Invocation, hit *soft.Hit, pl any) {
	p := pl.(*payload)
	sc := viewScene(&inv.Bindings)
	base := sc.offsets[hit.InstanceCustomIndex].IndexOffset + hit.PrimitiveIndex*3
	v0 := &sc.vertices[sc.indices[base]]
	v1 := &sc.vertices[sc.indices[base+1]]
	v2 := &sc.vertices[sc.indices[base+2]]

	b1, b2 := hit.Barycentrics[0], hit.Barycentrics[1]
	b0 := 1 - b1 - b2
	var n mgl32.Vec3
	var uv mgl32.Vec2
	for c := range 3 {
		n[c] = b0*v0.Normal[c] + b1*v1.Normal[c] + b2*v2.Normal[c]
	}
	for c := range 2 {
		uv[c] = b0*v0.TexCoord[c] + b1*v1.TexCoord[c] + b2*v2.TexCoord[c]
	}
	normal := mgl32.Vec3(hit.ObjectToWorldNormal(n)).Normalize()
	shade(inv, p, &sc.materials[v0.MaterialIndex], hit, normal, uv)
}

// sphereClosestHit shades a procedural sphere. The material comes from the
// object's first vertex.
func sphereClosestHit(inv *soft.Invocation, hit *soft.Hit, pl any) {
	p := pl.(*payload)
	sc := viewScene(&inv.Bindings)
	s := sc.procedurals[hit.InstanceCustomIndex]
	center := mgl32.Vec3{s[0], s[1], s[2]}

	point := mgl32.Vec3(hit.ObjectRayOrigin).Add(mgl32.Vec3(hit.ObjectRayDirection).Mul(hit.T))
	n := point.Sub(center).Mul(1 / s[3])
	phi := math.Atan2(float64(n[0]), float64(n[2]))
	theta := math.Asin(float64(min(max(n[1], -1), 1)))
	uv := mgl32.Vec2{
		float32((phi + math.Pi) / (2 * math.Pi)),
		float32(1 - (theta+math.Pi/2)/math.Pi),
	}

	v := &sc.vertices[sc.offsets[hit.InstanceCustomIndex].VertexOffset]
	normal := mgl32.Vec3(hit.ObjectToWorldNormal(n)).Normalize()
	shade(inv, p, &sc.materials[v.MaterialIndex], hit, normal, uv)
}

func shade(inv *soft.Invocation, p *payload, m *assets.Material, hit *soft.Hit, normal mgl32.Vec3, uv mgl32.Vec2) {
	texel := mgl32.Vec3{1, 1, 1}
	if m.DiffuseTextureID >= 0 {
		if img, ok := inv.Texture(0, BindingTextures+uint32(m.DiffuseTextureID)); ok {
			texel = sampleTexture(img, uv)
		}
	}
	seed := p.seed
	*p = scatter(m, mgl32.Vec3(hit.Ray.Direction).Normalize(), normal, texel, hit.T, &seed)
	p.seed = seed
}

// sampleTexture fetches the nearest texel with repeat addressing.
func sampleTexture(img soft.Image, uv mgl32.Vec2) mgl32.Vec3 {
	if img.Width == 0 || img.Height == 0 {
		return mgl32.Vec3{1, 1, 1}
	}
	wrap := func(t float32, n int) int {
		t -= float32(math.Floor(float64(t)))
		return min(int(t*float32(n)), n-1)
	}
	x, y := wrap(uv[0], img.Width), wrap(uv[1], img.Height)
	i := (y*img.Width + x) * 4
	return mgl32.Vec3{float32(img.Pix[i]) / 255, float32(img.Pix[i+1]) / 255, float32(img.Pix[i+2]) / 255}
}

// sphereIntersection intersects the object-space ray with the object's
// sphere.
func sphereIntersection(inv *soft.Invocation, c *soft.Candidate) (float32, [4]float32, bool) {
	s := rt.View[mgl32.Vec4](inv.Buffer(0, BindingProcedurals))[c.InstanceCustomIndex]
	center := mgl32.Vec3{s[0], s[1], s[2]}
	t, ok := intersectSphere(c.ObjectRayOrigin, c.ObjectRayDirection, center, s[3], c.TMin, c.TMax)
	return t, [4]float32(s), ok
}

// intersectSphere returns the nearest root of the ray inside [tmin, tmax].
func intersectSphere(origin, direction, center mgl32.Vec3, radius, tmin, tmax float32) (float32, bool) {
	oc := origin.Sub(center)
	a := direction.Dot(direction)
	b := oc.Dot(direction)
	c := oc.Dot(oc) - radius*radius
	disc := b*b - a*c
	if disc < 0 || a == 0 {
		return 0, false
	}
	sq := float32(math.Sqrt(float64(disc)))
	for _, t := range [2]float32{(-b - sq) / a, (-b + sq) / a} {
		if t >= tmin && t <= tmax {
			return t, true
		}
	}
	return 0, false
}
