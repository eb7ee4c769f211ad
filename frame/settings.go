// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

import "github.com/gogpu/pathtrace/assets"

// Field of view limits in degrees.
const (
	FieldOfViewMin = 10
	FieldOfViewMax = 90
)

// Settings are the user-controlled render settings. A copy is taken every
// frame and compared with the previous frame's copy.
type Settings struct {
	// Scene
	SceneName string
	// Speed scales object animation, in percent. Zero or less freezes it.
	Speed int

	// Renderer
	AccumulateRays     bool
	NumberOfSamples    uint32
	NumberOfBounces    uint32
	MaxNumberOfSamples uint32
	VSync              bool

	// Camera
	FieldOfView   float32
	Aperture      float32
	FocusDistance float32

	// Profiler
	ShowHeatmap  bool
	HeatmapScale float32
}

// DefaultSettings returns the settings a new renderer starts with.
func DefaultSettings() Settings {
	return Settings{
		Speed:              100,
		AccumulateRays:     true,
		NumberOfSamples:    8,
		NumberOfBounces:    16,
		MaxNumberOfSamples: 64 * 1024,
		VSync:              true,
		FieldOfView:        FieldOfViewMax,
		FocusDistance:      10,
		HeatmapScale:       1.5,
	}
}

// ClampFieldOfView keeps FieldOfView within [FieldOfViewMin, FieldOfViewMax].
func (s *Settings) ClampFieldOfView() {
	s.FieldOfView = min(max(s.FieldOfView, FieldOfViewMin), FieldOfViewMax)
}

// ApplyCamera copies the lens parameters of a scene's initial camera.
func (s *Settings) ApplyCamera(c *assets.CameraState) {
	s.FieldOfView = c.FieldOfView
	s.Aperture = c.Aperture
	s.FocusDistance = c.FocusDistance
	s.ClampFieldOfView()
}

// RequiresAccumulationReset reports whether a change from prev alters the
// rendered image.
func (s *Settings) RequiresAccumulationReset(prev *Settings) bool {
	return s.AccumulateRays != prev.AccumulateRays ||
		s.NumberOfBounces != prev.NumberOfBounces ||
		s.FieldOfView != prev.FieldOfView ||
		s.Aperture != prev.Aperture ||
		s.FocusDistance != prev.FocusDistance
}
