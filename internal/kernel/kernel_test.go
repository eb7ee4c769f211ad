package kernel

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtrace/accel"
	"github.com/gogpu/pathtrace/assets"
	"github.com/gogpu/pathtrace/frame"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/pathtrace/rt/soft"
	"github.com/gogpu/wgpu/hal"
	"github.com/google/go-cmp/cmp"
)

const testSize = 8

type harness struct {
	t       *testing.T
	ctx     *rt.Context
	dev     *soft.Device
	scene   *accel.DeviceScene
	structs *accel.Structures
	kernel  *Kernel
	targets *Targets
	camera  assets.CameraState
}

func newHarness(t *testing.T, objects ...assets.Object) *harness {
	t.Helper()
	dev, queue := soft.New(soft.WithWorkers(2))
	t.Cleanup(dev.Destroy)
	ctx := rt.NewContext(dev, queue)

	buffers, err := assets.Aggregate(objects)
	if err != nil {
		t.Fatal(err)
	}
	scene, err := accel.UploadScene(ctx, buffers, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(scene.Destroy)
	structs, err := accel.Build(ctx, scene)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(structs.Destroy)
	k, err := New(ctx, len(scene.Views))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(k.Destroy)
	targets, err := NewTargets(ctx, testSize, testSize, false)
	if err != nil {
		t.Fatalf("NewTargets: %v", err)
	}
	t.Cleanup(func() {
		k.Release(targets)
		targets.Destroy()
	})
	return &harness{
		t: t, ctx: ctx, dev: dev, scene: scene, structs: structs, kernel: k, targets: targets,
		camera: assets.CameraState{
			ModelView:     mgl32.Ident4(),
			FieldOfView:   90,
			FocusDistance: 10,
			SkyColor1:     mgl32.Vec4{0, 0, 1, 1},
			SkyColor2:     mgl32.Vec4{0, 0, 1, 1},
		},
	}
}

// frame renders one frame with budget b.
func (h *harness) frame(b frame.Budget) {
	h.t.Helper()
	s := frame.DefaultSettings()
	s.NumberOfBounces = 4
	s.ApplyCamera(&h.camera)
	u := frame.NewUniform(&h.camera, &s, b, testSize, testSize, 1)
	ubo, err := h.ctx.CreateBuffer("uniform", gputypes.BufferUsageUniform, rt.Bytes([]frame.UniformBufferObject{u}), 0)
	if err != nil {
		h.t.Fatal(err)
	}
	h.t.Cleanup(func() { h.dev.DestroyBuffer(ubo) })
	err = h.ctx.Submit("frame", func(enc rt.CommandEncoder) error {
		return h.kernel.Record(enc, h.scene, h.structs.Instances.Handle(), h.targets, ubo, nil)
	})
	if err != nil {
		h.t.Fatalf("frame: %v", err)
	}
}

func (h *harness) read(src hal.Buffer, size uint64) []byte {
	h.t.Helper()
	staging, err := h.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		h.t.Fatal(err)
	}
	defer h.dev.DestroyBuffer(staging)
	err = h.ctx.Submit("read back", func(enc rt.CommandEncoder) error {
		enc.CopyBufferToBuffer(src, staging, []hal.BufferCopy{{Size: size}})
		return nil
	})
	if err != nil {
		h.t.Fatal(err)
	}
	data, err := h.dev.ReadBuffer(staging, 0, size)
	if err != nil {
		h.t.Fatal(err)
	}
	return data
}

func (h *harness) pixel(x, y int) [4]byte {
	h.t.Helper()
	out := h.read(h.targets.Output(), h.targets.OutputSize())
	i := (y*testSize + x) * 4
	return [4]byte(out[i : i+4])
}

func TestRenderEmissiveWall(t *testing.T) {
	wall := assets.NewBox(mgl32.Vec3{-100, -100, -20}, mgl32.Vec3{100, 100, -5}, assets.NewDiffuseLight(mgl32.Vec3{1, 0.5, 0.25}))
	h := newHarness(t, wall)
	h.frame(frame.Budget{Reset: true, Samples: 1, Total: 1})

	want := [4]byte{255, 128, 64, 255}
	for _, p := range [][2]int{{0, 0}, {3, 4}, {7, 7}} {
		if got := h.pixel(p[0], p[1]); got != want {
			t.Errorf("pixel %v = %v, want %v", p, got, want)
		}
	}
}

func TestRenderProceduralSphere(t *testing.T) {
	sphere := assets.NewSphere(mgl32.Vec3{0, 0, -10}, 4, assets.NewDiffuseLight(mgl32.Vec3{1, 0, 0}), true)
	h := newHarness(t, sphere)
	h.frame(frame.Budget{Reset: true, Samples: 1, Total: 1})

	if got, want := h.pixel(4, 4), ([4]byte{255, 0, 0, 255}); got != want {
		t.Errorf("center pixel = %v, want the sphere's %v", got, want)
	}
	if got, want := h.pixel(0, 0), ([4]byte{0, 0, 255, 255}); got != want {
		t.Errorf("corner pixel = %v, want the sky's %v", got, want)
	}
}

func TestRenderAccumulates(t *testing.T) {
	wall := assets.NewBox(mgl32.Vec3{-100, -100, -20}, mgl32.Vec3{100, 100, -5}, assets.NewDiffuseLight(mgl32.Vec3{0.5, 0.5, 0.5}))
	h := newHarness(t, wall)
	size := uint64(testSize * testSize * accumulationTexel)

	h.frame(frame.Budget{Reset: true, Samples: 2, Total: 2})
	h.frame(frame.Budget{Samples: 3, Total: 5})
	acc := ReadAccumulation(h.read(h.targets.Accumulation(), size))
	if diff := cmp.Diff(mgl32.Vec4{2.5, 2.5, 2.5, 5}, acc[9]); diff != "" {
		t.Errorf("accumulated texel (-want +got):\n%s", diff)
	}

	h.frame(frame.Budget{Reset: true, Samples: 1, Total: 1})
	acc = ReadAccumulation(h.read(h.targets.Accumulation(), size))
	if diff := cmp.Diff(mgl32.Vec4{0.5, 0.5, 0.5, 1}, acc[9]); diff != "" {
		t.Errorf("texel after reset (-want +got):\n%s", diff)
	}
	if got, want := h.pixel(1, 1), ([4]byte{128, 128, 128, 255}); got != want {
		t.Errorf("pixel = %v, want %v", got, want)
	}
}

func TestResolvePixel(t *testing.T) {
	tests := []struct {
		name  string
		sum   mgl32.Vec4
		ubo   frame.UniformBufferObject
		gamma bool
		want  [4]byte
	}{
		{
			name: "average",
			sum:  mgl32.Vec4{2, 1, 0, 4},
			ubo:  frame.UniformBufferObject{TotalNumberOfSamples: 4},
			want: [4]byte{128, 64, 0, 255},
		},
		{
			name:  "gamma",
			sum:   mgl32.Vec4{1, 0.25, 0, 1},
			ubo:   frame.UniformBufferObject{TotalNumberOfSamples: 4},
			gamma: true,
			want:  [4]byte{128, 64, 0, 255},
		},
		{
			name: "clamped",
			sum:  mgl32.Vec4{3, -1, 1, 1},
			ubo:  frame.UniformBufferObject{TotalNumberOfSamples: 1},
			want: [4]byte{255, 0, 255, 255},
		},
		{
			name: "no samples yet",
			sum:  mgl32.Vec4{},
			ubo:  frame.UniformBufferObject{},
			want: [4]byte{0, 0, 0, 255},
		},
		{
			name: "cold heatmap",
			sum:  mgl32.Vec4{1, 1, 1, 0},
			ubo:  frame.UniformBufferObject{TotalNumberOfSamples: 1, NumberOfBounces: 8, ShowHeatmap: 1, HeatmapScale: 1},
			want: [4]byte{0, 0, 255, 255},
		},
		{
			name: "hot heatmap",
			sum:  mgl32.Vec4{1, 1, 1, 16},
			ubo:  frame.UniformBufferObject{TotalNumberOfSamples: 1, NumberOfBounces: 8, ShowHeatmap: 1, HeatmapScale: 1},
			want: [4]byte{255, 0, 0, 255},
		},
		{
			// sqrt(max(color, 0)) then pack4x8unorm: (0, 0.6, 3) -> (0, 153, 255).
			name:  "gamma clamps negative and bright channels",
			sum:   mgl32.Vec4{-4, 0.36, 9, 1},
			ubo:   frame.UniformBufferObject{TotalNumberOfSamples: 1},
			gamma: true,
			want:  [4]byte{0, 153, 255, 255},
		},
		{
			// heatmap(2.5 / 2 / 4 * 2 = 0.625): r = smoothstep(0.5, 0.8, 0.625)
			// = 0.37616 -> 96, g = 1 * (1 - 0) -> 255, b = 1 - 1 -> 0. Gamma
			// is not applied to the heatmap.
			name:  "heatmap with gamma",
			sum:   mgl32.Vec4{1, 1, 1, 2.5},
			ubo:   frame.UniformBufferObject{TotalNumberOfSamples: 2, NumberOfBounces: 4, ShowHeatmap: 1, HeatmapScale: 2},
			gamma: true,
			want:  [4]byte{96, 255, 0, 255},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolvePixel(tt.sum, &tt.ubo, tt.gamma); got != tt.want {
				t.Errorf("ResolvePixel = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompileResolveShader(t *testing.T) {
	words, err := compileResolve()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(words) < 5 {
		t.Fatalf("module has %d words", len(words))
	}
	if words[0] != 0x07230203 {
		t.Errorf("magic = %#x, want SPIR-V", words[0])
	}
}

func TestIntersectSphere(t *testing.T) {
	center := mgl32.Vec3{0, 0, -5}
	tests := []struct {
		name       string
		origin     mgl32.Vec3
		dir        mgl32.Vec3
		tmin, tmax float32
		wantT      float32
		wantHit    bool
	}{
		{name: "front", origin: mgl32.Vec3{}, dir: mgl32.Vec3{0, 0, -1}, tmin: 0.001, tmax: 100, wantT: 4, wantHit: true},
		{name: "from inside", origin: center, dir: mgl32.Vec3{1, 0, 0}, tmin: 0.001, tmax: 100, wantT: 1, wantHit: true},
		{name: "miss", origin: mgl32.Vec3{}, dir: mgl32.Vec3{0, 1, 0}, tmin: 0.001, tmax: 100},
		{name: "beyond extent", origin: mgl32.Vec3{}, dir: mgl32.Vec3{0, 0, -1}, tmin: 0.001, tmax: 3},
		{name: "behind", origin: mgl32.Vec3{}, dir: mgl32.Vec3{0, 0, 1}, tmin: 0.001, tmax: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := intersectSphere(tt.origin, tt.dir, center, 1, tt.tmin, tt.tmax)
			if ok != tt.wantHit || got != tt.wantT {
				t.Errorf("intersectSphere = %v, %v; want %v, %v", got, ok, tt.wantT, tt.wantHit)
			}
		})
	}
}

func TestScatter(t *testing.T) {
	up := mgl32.Vec3{0, 1, 0}
	down := mgl32.Vec3{0, -1, 0}
	white := mgl32.Vec3{1, 1, 1}
	seed := uint32(7)

	p := scatter(ptr(assets.NewLambertian(mgl32.Vec3{0.5, 0.5, 0.5})), down, up, white, 2, &seed)
	if !p.scattered || p.distance != 2 || p.color != (mgl32.Vec3{0.5, 0.5, 0.5}) {
		t.Errorf("lambertian = %+v", p)
	}
	if p := scatter(ptr(assets.NewLambertian(white)), up, up, white, 1, &seed); p.scattered {
		t.Error("lambertian hit from behind scatters")
	}

	p = scatter(ptr(assets.NewMetallic(white, 0)), mgl32.Vec3{1, -1, 0}.Normalize(), up, white, 1, &seed)
	if want := (mgl32.Vec3{1, 1, 0}).Normalize(); !p.scattered || !near(p.direction, want) {
		t.Errorf("mirror direction = %v, want %v", p.direction, want)
	}

	for range 16 {
		if p := scatter(ptr(assets.NewDielectric(1.5)), down, up, white, 1, &seed); !p.scattered || p.color != white {
			t.Fatalf("dielectric = %+v", p)
		}
	}

	light := scatter(ptr(assets.NewDiffuseLight(mgl32.Vec3{4, 4, 4})), down, up, white, 3, &seed)
	if light.scattered || light.color != (mgl32.Vec3{4, 4, 4}) {
		t.Errorf("diffuse light = %+v", light)
	}
}

func TestRandomFloatRange(t *testing.T) {
	seed := initRandomSeed(initRandomSeed(3, 5), 11)
	for range 1000 {
		if v := randomFloat(&seed); v < 0 || v >= 1 {
			t.Fatalf("randomFloat = %v", v)
		}
	}
	if initRandomSeed(1, 2) == initRandomSeed(2, 1) {
		t.Error("seed does not depend on argument order")
	}
}

func ptr[T any](v T) *T { return &v }

func near(a, b mgl32.Vec3) bool {
	return a.Sub(b).LenSqr() < 1e-10
}
