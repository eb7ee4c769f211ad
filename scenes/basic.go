package scenes

import (
	"image/color"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/pathtrace/assets"
)

// NewCubeAndSpheres returns a small test scene: a multi-material cube with
// a metal, a glass and a textured sphere around it.
func NewCubeAndSpheres() Scene {
	return &static{build: func(camera *assets.CameraState) ([]assets.Object, []assets.Texture) {
		*camera = assets.CameraState{
			ModelView:     mgl32.Translate3D(0, 0, -2),
			FieldOfView:   90,
			Aperture:      0.05,
			FocusDistance: 2,
			ControlSpeed:  2,
			SkyColor1:     mgl32.Vec4{1, 1, 1, 1},
			SkyColor2:     mgl32.Vec4{0.5, 0.7, 1, 1},
		}
		return []assets.Object{
				multiMaterialCube(),
				assets.NewSphere(mgl32.Vec3{1, 0, 0}, 0.5, assets.NewMetallic(mgl32.Vec3{0.7, 0.5, 0.8}, 0.2), true),
				assets.NewSphere(mgl32.Vec3{-1, 0, 0}, 0.5, assets.NewDielectric(1.5), true),
				assets.NewSphere(mgl32.Vec3{0, 1, 0}, 0.5, assets.NewTexturedLambertian(mgl32.Vec3{1, 1, 1}, 0), true),
			}, []assets.Texture{
				assets.NewCheckerTexture(512, 64, color.RGBA{R: 20, G: 60, B: 160, A: 255}, color.RGBA{R: 60, G: 150, B: 70, A: 255}),
			}
	}}
}

// multiMaterialCube is a unit cube centered on the origin with a different
// material on each pair of opposite faces.
func multiMaterialCube() assets.Object {
	cube := assets.NewBox(mgl32.Vec3{-0.5, -0.5, -0.5}, mgl32.Vec3{0.5, 0.5, 0.5}, assets.NewLambertian(mgl32.Vec3{0.8, 0.1, 0.1}))
	cube.Materials = append(cube.Materials,
		assets.NewLambertian(mgl32.Vec3{0.1, 0.8, 0.1}),
		assets.NewLambertian(mgl32.Vec3{0.1, 0.1, 0.8}),
	)
	// NewBox emits four vertices per face in the order -x, +x, -z, +z, -y, +y.
	for i := range cube.Vertices {
		cube.Vertices[i].MaterialIndex = int32(i / 8)
	}
	return cube
}

// NewCornellBox returns the classic Cornell box with two white blocks.
func NewCornellBox() Scene {
	return &static{build: func(camera *assets.CameraState) ([]assets.Object, []assets.Texture) {
		*camera = assets.CameraState{
			ModelView:       mgl32.LookAtV(mgl32.Vec3{278, 278, 800}, mgl32.Vec3{278, 278, 0}, mgl32.Vec3{0, 1, 0}),
			FieldOfView:     40,
			FocusDistance:   10,
			ControlSpeed:    500,
			GammaCorrection: true,
		}
		white := assets.NewLambertian(mgl32.Vec3{0.73, 0.73, 0.73})
		short := assets.NewBox(mgl32.Vec3{0, 0, -165}, mgl32.Vec3{165, 165, 0}, white)
		tall := assets.NewBox(mgl32.Vec3{0, 0, -165}, mgl32.Vec3{165, 330, 0}, white)
		// Both transforms are invertible, so the errors are nil.
		_ = short.TransformVertices(mgl32.Translate3D(555-130-165, 0, -65).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(-18))))
		_ = tall.TransformVertices(mgl32.Translate3D(555-265-165, 0, -295).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(15))))
		return []assets.Object{assets.NewCornellBox(555), short, tall}, nil
	}}
}
