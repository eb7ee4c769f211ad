package scenes

import (
	"image/color"
	"math"
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/pathtrace/assets"
	"github.com/gogpu/pathtrace/frame"
	"github.com/mroth/weightedrand/v2"
)

// OneWeekendSeed seeds the random sphere field so that every load produces
// the same scene.
const OneWeekendSeed = 42

type sphereKind uint8

const (
	diffuseSphere sphereKind = iota
	metalSphere
	glassSphere
)

var sphereKinds = mustChooser(
	weightedrand.NewChoice(diffuseSphere, 80),
	weightedrand.NewChoice(metalSphere, 15),
	weightedrand.NewChoice(glassSphere, 5),
)

func mustChooser(choices ...weightedrand.Choice[sphereKind, int]) *weightedrand.Chooser[sphereKind, int] {
	c, err := weightedrand.NewChooser(choices...)
	if err != nil {
		panic(err)
	}
	return c
}

// randomSpheres returns the ground sphere and the field of small spheres of
// the final scene of "Ray Tracing in One Weekend".
func randomSpheres(rng *rand.Rand) []assets.Object {
	r := func() float32 { return rng.Float32() }
	objects := []assets.Object{
		assets.NewSphere(mgl32.Vec3{0, -1000, 0}, 1000, assets.NewLambertian(mgl32.Vec3{0.5, 0.5, 0.5}), true),
	}
	keepOut := mgl32.Vec3{4, 0.2, 0}
	for a := -11; a < 11; a++ {
		for b := -11; b < 11; b++ {
			kind := sphereKinds.PickSource(rng)
			center := mgl32.Vec3{float32(a) + 0.9*r(), 0.2, float32(b) + 0.9*r()}
			if center.Sub(keepOut).Len() <= 0.9 {
				continue
			}
			var m assets.Material
			switch kind {
			case diffuseSphere:
				m = assets.NewLambertian(mgl32.Vec3{r() * r(), r() * r(), r() * r()})
			case metalSphere:
				m = assets.NewMetallic(mgl32.Vec3{0.5 * (1 + r()), 0.5 * (1 + r()), 0.5 * (1 + r())}, 0.5*r())
			default:
				m = assets.NewDielectric(1.5)
			}
			objects = append(objects, assets.NewSphere(center, 0.2, m, true))
		}
	}
	return objects
}

func oneWeekendCamera(camera *assets.CameraState) {
	skyCamera(camera, mgl32.Vec3{13, 2, 3}, mgl32.Vec3{0, 0, 0}, 20, 0.1, 10, 5)
}

// NewRayTracingInOneWeekend returns the final scene of the first book of
// the "Ray Tracing in One Weekend" series: a seeded field of small random
// spheres around three large ones.
func NewRayTracingInOneWeekend() Scene {
	return &static{build: func(camera *assets.CameraState) ([]assets.Object, []assets.Texture) {
		oneWeekendCamera(camera)
		objects := randomSpheres(rand.New(rand.NewSource(OneWeekendSeed)))
		objects = append(objects,
			assets.NewSphere(mgl32.Vec3{0, 1, 0}, 1, assets.NewDielectric(1.5), true),
			assets.NewSphere(mgl32.Vec3{-4, 1, 0}, 1, assets.NewLambertian(mgl32.Vec3{0.4, 0.2, 0.1}), true),
			assets.NewSphere(mgl32.Vec3{4, 1, 0}, 1, assets.NewMetallic(mgl32.Vec3{0.7, 0.6, 0.5}, 0), true),
		)
		return objects, nil
	}}
}

// Orbit rates of the three planets, in radians per second at full speed.
var planetRates = [3]float32{0.25, 0.4, 0.15}

// Planets is the one-weekend sphere field with three textured planets
// orbiting the vertical axis.
type Planets struct {
	static
	// first is the index of the first planet in Objects.
	first  int
	angles [3]float32
}

// NewPlanetsInOneWeekend returns the Planets scene.
func NewPlanetsInOneWeekend() Scene {
	p := &Planets{}
	p.build = func(camera *assets.CameraState) ([]assets.Object, []assets.Texture) {
		oneWeekendCamera(camera)
		objects := randomSpheres(rand.New(rand.NewSource(OneWeekendSeed)))
		p.first = len(objects)
		p.angles = [3]float32{}
		objects = append(objects,
			assets.NewSphere(mgl32.Vec3{0, 1, 0}, 1, assets.NewTexturedMetallic(mgl32.Vec3{1, 1, 1}, 0.1, 2), true),
			assets.NewSphere(mgl32.Vec3{-4, 1, 0}, 1, assets.NewTexturedLambertian(mgl32.Vec3{1, 1, 1}, 0), true),
			assets.NewSphere(mgl32.Vec3{4, 1, 0}, 1, assets.NewTexturedMetallic(mgl32.Vec3{1, 1, 1}, 0, 1), true),
		)
		textures := []assets.Texture{
			assets.NewCheckerTexture(256, 32, color.RGBA{R: 193, G: 68, B: 14, A: 255}, color.RGBA{R: 120, G: 40, B: 10, A: 255}),
			assets.NewCheckerTexture(256, 16, color.RGBA{R: 200, G: 200, B: 200, A: 255}, color.RGBA{R: 110, G: 110, B: 110, A: 255}),
			assets.NewCheckerTexture(256, 64, color.RGBA{R: 30, G: 90, B: 200, A: 255}, color.RGBA{R: 40, G: 140, B: 60, A: 255}),
		}
		return objects, textures
	}
	return p
}

// UpdateTransforms rotates each planet around the y axis.
func (p *Planets) UpdateTransforms(dt time.Duration, settings *frame.Settings, transforms []mgl32.Mat4) bool {
	if settings.Speed <= 0 || dt <= 0 {
		return false
	}
	step := float32(dt.Seconds()) * float32(settings.Speed) / 100
	for i := range p.angles {
		idx := p.first + i
		if idx >= len(transforms) {
			break
		}
		p.angles[i] = float32(math.Mod(float64(p.angles[i]+planetRates[i]*step), 2*math.Pi))
		transforms[idx] = mgl32.HomogRotate3DY(p.angles[i])
	}
	return true
}
