// Package scenes provides the built-in scenes and the registry that maps
// scene names to their factories.
//
// The registry is a fixed table filled at compile time:
//
//	scene, err := scenes.New("Cornell Box")
//	if err != nil {
//	    return err
//	}
//	var camera assets.CameraState
//	scene.Reset(&camera)
package scenes

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/pathtrace/assets"
	"github.com/gogpu/pathtrace/frame"
)

// ErrUnknownScene is returned by New for names not in the registry.
var ErrUnknownScene = errors.New("scenes: unknown scene")

// Scene supplies objects and textures to the renderer.
type Scene interface {
	// Objects returns the objects built by the last Reset.
	Objects() []assets.Object
	// Textures returns the textures built by the last Reset.
	Textures() []assets.Texture
	// Reset rebuilds the scene content and writes its initial camera.
	Reset(camera *assets.CameraState)
	// UpdateTransforms advances animation by dt. It writes one transform per
	// object into transforms and reports whether any of them changed.
	UpdateTransforms(dt time.Duration, settings *frame.Settings, transforms []mgl32.Mat4) bool
}

// Factory creates a scene.
type Factory func() Scene

// Entry is one row of the scene registry.
type Entry struct {
	Name string
	New  Factory
}

var registry = []Entry{
	{"Ray Tracing In One Weekend", NewRayTracingInOneWeekend},
	{"Planets In One Weekend", NewPlanetsInOneWeekend},
	{"Cube And Spheres", NewCubeAndSpheres},
	{"Cornell Box", NewCornellBox},
}

// All returns the registry in display order.
func All() []Entry { return append([]Entry(nil), registry...) }

// Names returns the registered scene names in display order.
func Names() []string {
	names := make([]string, len(registry))
	for i, e := range registry {
		names[i] = e.Name
	}
	return names
}

// Default returns the name of the scene loaded when none is requested.
func Default() string { return registry[0].Name }

// Lookup finds a scene by name, ignoring case, or by its zero-based index
// in the registry.
func Lookup(name string) (Entry, error) {
	for _, e := range registry {
		if strings.EqualFold(e.Name, name) {
			return e, nil
		}
	}
	if i, err := strconv.Atoi(name); err == nil && i >= 0 && i < len(registry) {
		return registry[i], nil
	}
	return Entry{}, fmt.Errorf("%w: %q", ErrUnknownScene, name)
}

// New creates the scene registered under name. See Lookup.
func New(name string) (Scene, error) {
	e, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return e.New(), nil
}

// static is a scene whose objects never move.
type static struct {
	build    func(camera *assets.CameraState) ([]assets.Object, []assets.Texture)
	objects  []assets.Object
	textures []assets.Texture
}

func (s *static) Objects() []assets.Object   { return s.objects }
func (s *static) Textures() []assets.Texture { return s.textures }

func (s *static) Reset(camera *assets.CameraState) {
	s.objects, s.textures = s.build(camera)
}

func (s *static) UpdateTransforms(time.Duration, *frame.Settings, []mgl32.Mat4) bool { return false }

// skyCamera fills the fields most scenes share.
func skyCamera(camera *assets.CameraState, eye, center mgl32.Vec3, fov, aperture, focus, speed float32) {
	*camera = assets.CameraState{
		ModelView:       mgl32.LookAtV(eye, center, mgl32.Vec3{0, 1, 0}),
		FieldOfView:     fov,
		Aperture:        aperture,
		FocusDistance:   focus,
		ControlSpeed:    speed,
		GammaCorrection: true,
		SkyColor1:       mgl32.Vec4{1, 1, 1, 1},
		SkyColor2:       mgl32.Vec4{0.5, 0.7, 1, 1},
	}
}
