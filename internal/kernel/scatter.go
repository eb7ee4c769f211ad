package kernel

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/pathtrace/assets"
)

// payload carries the result of one traced ray back to ray generation.
type payload struct {
	// color is the attenuation of a scattering surface or the emitted
	// radiance of a light or the sky.
	color mgl32.Vec3
	// distance is the hit distance, negative on a miss.
	distance float32
	// direction is the scattered ray, valid when scattered is set.
	direction mgl32.Vec3
	scattered bool
	seed      uint32
}

func mulVec(a, b mgl32.Vec3) mgl32.Vec3 { return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]} }

func reflect(v, n mgl32.Vec3) mgl32.Vec3 { return v.Sub(n.Mul(2 * v.Dot(n))) }

// refract follows Snell's law for eta = n1/n2. It returns false on total
// internal reflection.
func refract(v, n mgl32.Vec3, eta float32) (mgl32.Vec3, bool) {
	d := n.Dot(v)
	k := 1 - eta*eta*(1-d*d)
	if k < 0 {
		return mgl32.Vec3{}, false
	}
	return v.Mul(eta).Sub(n.Mul(eta*d + float32(math.Sqrt(float64(k))))), true
}

// schlick approximates the Fresnel reflectance.
func schlick(cosine, refractionIndex float32) float32 {
	r0 := (1 - refractionIndex) / (1 + refractionIndex)
	r0 *= r0
	return r0 + (1-r0)*float32(math.Pow(float64(1-cosine), 5))
}

// scatter evaluates material m at a hit. direction is the normalized
// incoming ray, normal the world-space surface normal and texel the sampled
// diffuse texture (white when untextured).
func scatter(m *assets.Material, direction, normal, texel mgl32.Vec3, t float32, seed *uint32) payload {
	diffuse := mgl32.Vec3{m.Diffuse[0], m.Diffuse[1], m.Diffuse[2]}
	switch m.Model {
	case assets.Lambertian:
		return payload{
			color:     mulVec(diffuse, texel),
			distance:  t,
			direction: normal.Add(randomInUnitSphere(seed)),
			scattered: direction.Dot(normal) < 0,
		}

	case assets.Metallic:
		reflected := reflect(direction, normal)
		return payload{
			color:     mulVec(diffuse, texel),
			distance:  t,
			direction: reflected.Add(randomInUnitSphere(seed).Mul(m.Fuzziness)),
			scattered: reflected.Dot(normal) > 0,
		}

	case assets.Dielectric:
		d := direction.Dot(normal)
		outward, eta, cosine := normal, 1/m.RefractionIndex, -d
		if d > 0 {
			outward, eta, cosine = normal.Mul(-1), m.RefractionIndex, m.RefractionIndex*d
		}
		refracted, ok := refract(direction, outward, eta)
		reflectProb := float32(1)
		if ok {
			reflectProb = schlick(cosine, m.RefractionIndex)
		}
		p := payload{color: texel, distance: t, direction: refracted, scattered: true}
		if randomFloat(seed) < reflectProb {
			p.direction = reflect(direction, normal)
		}
		return p

	case assets.Isotropic:
		return payload{
			color:     mulVec(diffuse, texel),
			distance:  t,
			direction: randomInUnitSphere(seed),
			scattered: true,
		}

	default:
		// Diffuse lights and unknown models end the path.
		return payload{color: diffuse, distance: t}
	}
}
