package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestModelSizes(t *testing.T) {
	lambert := NewLambertian(mgl32.Vec3{0.5, 0.5, 0.5})
	tests := []struct {
		name       string
		object     Object
		vertices   int
		indices    int
		materials  int
		procedural bool
	}{
		{"box", NewBox(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1}, lambert), 24, 36, 1, false},
		{"sphere", NewSphere(mgl32.Vec3{}, 1, lambert, false), 33 * 17, 32 * 16 * 6, 1, false},
		{"procedural sphere", NewSphere(mgl32.Vec3{}, 1, lambert, true), 33 * 17, 32 * 16 * 6, 1, true},
		{"ground", NewGroundRect(mgl32.Vec3{}, 2, 2, lambert, 1), 4, 6, 1, false},
		{"cornell box", NewCornellBox(555), 24, 36, 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.object
			if len(o.Vertices) != tt.vertices {
				t.Errorf("vertices = %d, want %d", len(o.Vertices), tt.vertices)
			}
			if len(o.Indices) != tt.indices {
				t.Errorf("indices = %d, want %d", len(o.Indices), tt.indices)
			}
			if len(o.Materials) != tt.materials {
				t.Errorf("materials = %d, want %d", len(o.Materials), tt.materials)
			}
			if o.IsProcedural() != tt.procedural {
				t.Errorf("IsProcedural = %v, want %v", o.IsProcedural(), tt.procedural)
			}
			if o.Transform != mgl32.Ident4() {
				t.Errorf("Transform = %v, want identity", o.Transform)
			}
			if err := validate(&o); err != nil {
				t.Errorf("validate: %v", err)
			}
		})
	}
}

// Every triangle of a closed box winds counter-clockwise seen from outside,
// so its geometric normal agrees with the stored vertex normal.
func TestBoxWinding(t *testing.T) {
	box := NewBox(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}, NewLambertian(mgl32.Vec3{}))
	for i := 0; i < len(box.Indices); i += 3 {
		a := box.Vertices[box.Indices[i]]
		b := box.Vertices[box.Indices[i+1]]
		c := box.Vertices[box.Indices[i+2]]
		n := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position))
		if n.Dot(a.Normal) <= 0 {
			t.Errorf("triangle %d winds against normal %v", i/3, a.Normal)
		}
	}
}

func TestCornellBoxFacesInward(t *testing.T) {
	const s = 10
	box := NewCornellBox(s)
	center := mgl32.Vec3{s / 2, s / 2, -s / 2}
	for i := 0; i < len(box.Indices); i += 3 {
		a := box.Vertices[box.Indices[i]]
		b := box.Vertices[box.Indices[i+1]]
		c := box.Vertices[box.Indices[i+2]]
		n := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position))
		if n.Dot(center.Sub(a.Position)) <= 0 {
			t.Errorf("triangle %d (material %d) faces away from the box center", i/3, a.MaterialIndex)
		}
	}
}

func TestSphereVerticesOnSurface(t *testing.T) {
	center := mgl32.Vec3{1, -2, 3}
	s := NewSphere(center, 2, NewLambertian(mgl32.Vec3{}), true)
	for i, v := range s.Vertices {
		if d := v.Position.Sub(center).Len(); math.Abs(float64(d-2)) > 1e-4 {
			t.Fatalf("vertex %d at distance %v, want 2", i, d)
		}
		if l := v.Normal.Len(); math.Abs(float64(l-1)) > 1e-4 {
			t.Fatalf("normal %d has length %v", i, l)
		}
	}
	if got := s.Procedural.Value; got != (Sphere{Center: center, Radius: 2}) {
		t.Errorf("procedural = %+v", got)
	}
}

func TestTransformVertices(t *testing.T) {
	o := NewBox(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1}, NewLambertian(mgl32.Vec3{}))
	m := mgl32.Translate3D(5, 0, 0).Mul4(mgl32.Scale3D(2, 1, 1))
	if err := o.TransformVertices(m); err != nil {
		t.Fatalf("TransformVertices: %v", err)
	}
	for _, v := range o.Vertices {
		if v.Position[0] < 5 || v.Position[0] > 7 {
			t.Fatalf("x = %v, want within [5, 7]", v.Position[0])
		}
		if l := v.Normal.Len(); math.Abs(float64(l-1)) > 1e-5 {
			t.Fatalf("normal %v is not unit length", v.Normal)
		}
	}
	if err := o.TransformVertices(mgl32.Scale3D(0, 1, 1)); err == nil {
		t.Error("TransformVertices accepted a singular matrix")
	}
}

func TestSetMaterial(t *testing.T) {
	o := NewBox(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}, NewLambertian(mgl32.Vec3{}))
	glass := NewDielectric(1.5)
	if err := o.SetMaterial(glass); err != nil {
		t.Fatalf("SetMaterial: %v", err)
	}
	if o.Materials[0] != glass {
		t.Errorf("material = %+v, want %+v", o.Materials[0], glass)
	}
	c := NewCornellBox(1)
	if err := c.SetMaterial(glass); err == nil {
		t.Error("SetMaterial on a multi-material object succeeded")
	}
}

func TestTransformVerticesNormals(t *testing.T) {
	o := NewBox(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}, NewLambertian(mgl32.Vec3{}))
	// A quarter turn around y maps the +x face to -z.
	m := mgl32.Translate3D(0, 4, 0).Mul4(mgl32.HomogRotate3DY(math.Pi / 2)).Mul4(mgl32.Scale3D(3, 1, 1))
	if err := o.TransformVertices(m); err != nil {
		t.Fatal(err)
	}
	for i, v := range o.Vertices {
		if v.Position[1] < 3-1e-5 || v.Position[1] > 5+1e-5 {
			t.Fatalf("vertex %d: y = %v, want within [3, 5]", i, v.Position[1])
		}
	}
	// Vertices 4..7 are the +x face.
	if n := o.Vertices[4].Normal; n.Sub(mgl32.Vec3{0, 0, -1}).Len() > 1e-5 {
		t.Errorf("+x face normal = %v, want (0, 0, -1)", n)
	}
}

func TestLoadTexture(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	img.Set(1, 2, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	encoded := buf.Bytes()

	tex, err := LoadTexture(bytes.NewReader(encoded), 0)
	if err != nil {
		t.Fatalf("LoadTexture: %v", err)
	}
	if tex.Width != 8 || tex.Height != 4 || len(tex.Pixels) != 8*4*4 {
		t.Fatalf("texture %dx%d with %d bytes", tex.Width, tex.Height, len(tex.Pixels))
	}
	i := 4 * (2*8 + 1)
	if got := tex.Pixels[i : i+4]; !bytes.Equal(got, []byte{10, 20, 30, 255}) {
		t.Errorf("pixel (1,2) = %v", got)
	}

	small, err := LoadTexture(bytes.NewReader(encoded), 4)
	if err != nil {
		t.Fatalf("LoadTexture scaled: %v", err)
	}
	if small.Width != 4 || small.Height != 2 {
		t.Errorf("scaled size = %dx%d, want 4x2", small.Width, small.Height)
	}

	if _, err := LoadTexture(bytes.NewReader([]byte("not an image")), 0); err == nil {
		t.Error("LoadTexture decoded garbage")
	}
}

func TestCheckerTexture(t *testing.T) {
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black := color.RGBA{A: 255}
	tex := NewCheckerTexture(4, 2, white, black)
	at := func(x, y int) byte { return tex.Pixels[4*(y*4+x)] }
	if at(0, 0) != 255 || at(2, 0) != 0 || at(2, 2) != 255 || at(0, 3) != 0 {
		t.Errorf("unexpected checker pattern %v", tex.Pixels)
	}
	if d := DummyTexture(); d.Width != 1 || d.Height != 1 || len(d.Pixels) != 4 {
		t.Errorf("dummy texture = %+v", d)
	}
}
