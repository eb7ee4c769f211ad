// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/pathtrace/assets"
)

// UniformSize is the size in bytes of UniformBufferObject.
const UniformSize = 320

// UniformBufferObject is the device layout of the per-frame camera and
// sampling parameters. Matrices are column-major, as in WGSL.
type UniformBufferObject struct {
	ModelView         mgl32.Mat4
	Projection        mgl32.Mat4
	ModelViewInverse  mgl32.Mat4
	ProjectionInverse mgl32.Mat4
	SkyColor1         mgl32.Vec4
	SkyColor2         mgl32.Vec4

	Aperture      float32
	FocusDistance float32
	HeatmapScale  float32

	TotalNumberOfSamples uint32
	NumberOfSamples      uint32
	NumberOfBounces      uint32
	RandomSeed           uint32
	ShowHeatmap          uint32
}

// Near and far planes of the projection.
const (
	nearPlane = 0.1
	farPlane  = 10000
)

// NewUniform fills a uniform block from the camera, the settings and the
// sample budget of the frame. A singular model-view matrix leaves the
// inverse zero.
func NewUniform(camera *assets.CameraState, s *Settings, b Budget, width, height uint32, seed uint32) UniformBufferObject {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	u := UniformBufferObject{
		ModelView:  camera.ModelView,
		Projection: projection(s.FieldOfView, aspect),
		SkyColor1:  camera.SkyColor1,
		SkyColor2:  camera.SkyColor2,

		Aperture:      s.Aperture,
		FocusDistance: s.FocusDistance,
		HeatmapScale:  s.HeatmapScale,

		TotalNumberOfSamples: b.Total,
		NumberOfSamples:      b.Samples,
		NumberOfBounces:      s.NumberOfBounces,
		RandomSeed:           seed,
	}
	u.ModelViewInverse = u.ModelView.Inv()
	u.ProjectionInverse = u.Projection.Inv()
	if s.ShowHeatmap {
		u.ShowHeatmap = 1
	}
	return u
}

// projection returns a perspective projection with the y axis pointing down
// in clip space, so that pixel rows run top to bottom.
func projection(fovDegrees, aspect float32) mgl32.Mat4 {
	p := mgl32.Perspective(mgl32.DegToRad(fovDegrees), aspect, nearPlane, farPlane)
	p[5] *= -1
	return p
}
