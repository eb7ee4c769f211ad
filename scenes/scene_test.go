package scenes

import (
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/pathtrace/assets"
	"github.com/gogpu/pathtrace/frame"
	"github.com/google/go-cmp/cmp"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"Cornell Box", "Cornell Box"},
		{"cornell box", "Cornell Box"},
		{"0", "Ray Tracing In One Weekend"},
		{"2", "Cube And Spheres"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			e, err := Lookup(tt.query)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if e.Name != tt.want {
				t.Errorf("Lookup(%q) = %q, want %q", tt.query, e.Name, tt.want)
			}
		})
	}

	for _, bad := range []string{"", "Lucy", "-1", "99"} {
		if _, err := New(bad); !errors.Is(err, ErrUnknownScene) {
			t.Errorf("New(%q) error = %v, want ErrUnknownScene", bad, err)
		}
	}
	if Default() != Names()[0] {
		t.Errorf("Default() = %q, want the first registered scene", Default())
	}
}

// Every built-in scene must aggregate without error.
func TestScenesAggregate(t *testing.T) {
	for _, e := range All() {
		t.Run(e.Name, func(t *testing.T) {
			s := e.New()
			var camera assets.CameraState
			s.Reset(&camera)
			if camera.FieldOfView < frame.FieldOfViewMin || camera.FieldOfView > frame.FieldOfViewMax {
				t.Errorf("field of view %v out of range", camera.FieldOfView)
			}
			if camera.ModelView == (mgl32.Mat4{}) {
				t.Error("camera has no model-view matrix")
			}
			b, err := assets.Aggregate(s.Objects())
			if err != nil {
				t.Fatalf("Aggregate: %v", err)
			}
			for i, m := range b.Materials {
				if m.DiffuseTextureID >= int32(len(s.Textures())) {
					t.Errorf("material %d samples texture %d of %d", i, m.DiffuseTextureID, len(s.Textures()))
				}
			}
		})
	}
}

func TestOneWeekendIsDeterministic(t *testing.T) {
	build := func() []assets.Object {
		s := NewRayTracingInOneWeekend()
		var camera assets.CameraState
		s.Reset(&camera)
		return s.Objects()
	}
	first, second := build(), build()
	if len(first) < 4 {
		t.Fatalf("scene has %d objects", len(first))
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("two loads differ (-first +second):\n%s", diff)
	}

	var procedural int
	for _, o := range first {
		if o.IsProcedural() {
			procedural++
		}
	}
	if procedural != len(first) {
		t.Errorf("%d of %d objects are procedural, want all", procedural, len(first))
	}
}

func TestStaticScenesDoNotMove(t *testing.T) {
	s := NewCornellBox()
	var camera assets.CameraState
	s.Reset(&camera)
	settings := frame.DefaultSettings()
	transforms := make([]mgl32.Mat4, len(s.Objects()))
	if s.UpdateTransforms(time.Second, &settings, transforms) {
		t.Error("static scene reported moving objects")
	}
}

func TestPlanetsOrbit(t *testing.T) {
	s := NewPlanetsInOneWeekend()
	var camera assets.CameraState
	s.Reset(&camera)
	objects := s.Objects()
	transforms := make([]mgl32.Mat4, len(objects))
	for i := range objects {
		transforms[i] = objects[i].Transform
	}
	settings := frame.DefaultSettings()

	if !s.UpdateTransforms(100*time.Millisecond, &settings, transforms) {
		t.Fatal("planets did not move")
	}
	last := len(objects) - 1
	if transforms[last] == mgl32.Ident4() {
		t.Error("last planet transform unchanged")
	}
	if transforms[0] != mgl32.Ident4() {
		t.Error("ground sphere moved")
	}

	before := append([]mgl32.Mat4(nil), transforms...)
	settings.Speed = 0
	if s.UpdateTransforms(100*time.Millisecond, &settings, transforms) {
		t.Error("planets moved at speed 0")
	}
	if diff := cmp.Diff(before, transforms); diff != "" {
		t.Errorf("transforms changed at speed 0:\n%s", diff)
	}

	// Reset rewinds the orbit.
	s.Reset(&camera)
	fresh := make([]mgl32.Mat4, len(objects))
	settings.Speed = 100
	s.UpdateTransforms(100*time.Millisecond, &settings, fresh)
	if fresh[last] != before[last] {
		t.Error("orbit did not restart after Reset")
	}
}
