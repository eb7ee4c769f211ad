package sbt

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/pathtrace/rt/soft"
	"github.com/google/go-cmp/cmp"
)

var testProps = rt.Properties{ShaderGroupHandleSize: 32, ShaderGroupBaseAlignment: 64}

func TestLayout(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Builder
		want  Layout
	}{
		{
			name: "handles only",
			build: func() *Builder {
				return NewBuilder().AddRayGen(0).AddMiss(1).AddHitGroup(2).AddHitGroup(3)
			},
			want: Layout{
				Regions: [categoryCount]Region{
					{Offset: 0, EntrySize: 64, Count: 1},
					{Offset: 64, EntrySize: 64, Count: 1},
					{Offset: 128, EntrySize: 64, Count: 2},
				},
				Size: 256,
			},
		},
		{
			name: "inline data widens one category",
			build: func() *Builder {
				return NewBuilder().AddRayGen(0).AddMiss(1).AddMiss(2).AddHitGroup(3, make([]byte, 40)...).AddHitGroup(4)
			},
			want: Layout{
				Regions: [categoryCount]Region{
					{Offset: 0, EntrySize: 64, Count: 1},
					{Offset: 64, EntrySize: 64, Count: 2},
					{Offset: 192, EntrySize: 128, Count: 2},
				},
				Size: 448,
			},
		},
		{
			name: "no miss programs",
			build: func() *Builder {
				return NewBuilder().AddRayGen(0).AddHitGroup(1)
			},
			want: Layout{
				Regions: [categoryCount]Region{
					{Offset: 0, EntrySize: 64, Count: 1},
					{Offset: 64, EntrySize: 64, Count: 0},
					{Offset: 64, EntrySize: 64, Count: 1},
				},
				Size: 128,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.build().Layout(testProps)
			if err != nil {
				t.Fatalf("Layout: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Layout (-want +got):\n%s", diff)
			}
			var end uint64
			for c, r := range got.Regions {
				if r.EntrySize%uint64(testProps.ShaderGroupBaseAlignment) != 0 {
					t.Errorf("%s entry size %d not aligned", Category(c), r.EntrySize)
				}
				if r.Offset < end {
					t.Errorf("%s region overlaps the previous one", Category(c))
				}
				end = r.Offset + r.Size()
			}
		})
	}
}

func TestLayoutEmptyCategory(t *testing.T) {
	for name, b := range map[string]*Builder{
		"no ray generation": NewBuilder().AddMiss(0).AddHitGroup(1),
		"no hit groups":     NewBuilder().AddRayGen(0).AddMiss(1),
	} {
		if _, err := b.Layout(testProps); !errors.Is(err, ErrEmptyCategory) {
			t.Errorf("%s: error = %v, want ErrEmptyCategory", name, err)
		}
	}
}

func TestEncode(t *testing.T) {
	handles := make([]byte, 3*32)
	for g := range 3 {
		for i := range 32 {
			handles[g*32+i] = byte(g + 1)
		}
	}
	b := NewBuilder().AddRayGen(2).AddMiss(0).AddHitGroup(1, 0xAA, 0xBB)
	l, err := b.Layout(testProps)
	if err != nil {
		t.Fatal(err)
	}
	data, err := b.Encode(l, handles, 32)
	if err != nil {
		t.Fatal(err)
	}
	if uint64(len(data)) != l.Size {
		t.Fatalf("table is %d bytes, want %d", len(data), l.Size)
	}
	check := func(c Category, handle byte) []byte {
		t.Helper()
		rec := data[l.Regions[c].Offset:]
		if !bytes.Equal(rec[:32], bytes.Repeat([]byte{handle}, 32)) {
			t.Errorf("%s record holds the wrong handle", c)
		}
		return rec[32:]
	}
	check(RayGen, 3)
	check(Miss, 1)
	if inline := check(HitGroup, 2); inline[0] != 0xAA || inline[1] != 0xBB {
		t.Errorf("hit group inline data = %x, want aabb", inline[:2])
	}

	if _, err := NewBuilder().AddRayGen(5).AddHitGroup(0).Encode(l, handles, 32); !errors.Is(err, ErrGroupRange) {
		t.Errorf("Encode error = %v, want ErrGroupRange", err)
	}
}

func TestEncodeRejectsHandleSize(t *testing.T) {
	b := NewBuilder().AddRayGen(0).AddHitGroup(1)
	l, err := b.Layout(testProps)
	if err != nil {
		t.Fatal(err)
	}
	handles := make([]byte, 64)
	for _, size := range []uint32{0, uint32(l.Regions[RayGen].EntrySize) + 1} {
		if _, err := b.Encode(l, handles, size); !errors.Is(err, ErrHandleSize) {
			t.Errorf("Encode(handle size %d) error = %v, want ErrHandleSize", size, err)
		}
	}
}

func init() {
	soft.RegisterProgram("sbt.raygen", soft.RayGenFunc(func(*soft.Invocation) {}))
	soft.RegisterProgram("sbt.miss", soft.MissFunc(func(*soft.Invocation, *soft.RayInfo, any) {}))
	soft.RegisterProgram("sbt.chit", soft.ClosestHitFunc(func(*soft.Invocation, *soft.Hit, any) {}))
}

func TestBuildOnDevice(t *testing.T) {
	dev, queue := soft.New(soft.WithWorkers(1))
	defer dev.Destroy()
	ctx := rt.NewContext(dev, queue)

	pipeline, err := dev.CreateRayTracingPipeline(&rt.RayTracingPipelineDescriptor{
		Label: "sbt test",
		Stages: []rt.ShaderStageDescriptor{
			{Stage: rt.StageRayGen, EntryPoint: "sbt.raygen"},
			{Stage: rt.StageMiss, EntryPoint: "sbt.miss"},
			{Stage: rt.StageClosestHit, EntryPoint: "sbt.chit"},
		},
		Groups: []rt.ShaderGroup{
			rt.GeneralGroup(0),
			rt.GeneralGroup(1),
			rt.TrianglesHitGroup(2),
		},
		MaxRecursionDepth: 1,
	})
	if err != nil {
		t.Fatalf("CreateRayTracingPipeline: %v", err)
	}
	defer dev.DestroyRayTracingPipeline(pipeline)

	table, err := NewBuilder().AddRayGen(0).AddMiss(1).AddHitGroup(2).Build(ctx, pipeline)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer table.Destroy()

	desc := table.TraceRays(4, 4)
	base := uint64(ctx.Properties.ShaderGroupBaseAlignment)
	for name, r := range map[string]rt.StridedRegion{"raygen": desc.RayGen, "miss": desc.Miss, "hit": desc.HitGroup} {
		if uint64(r.Address)%base != 0 {
			t.Errorf("%s region address %#x not aligned to %d", name, uint64(r.Address), base)
		}
	}
	if desc.RayGen.Size != desc.RayGen.Stride {
		t.Errorf("ray generation size %d differs from stride %d", desc.RayGen.Size, desc.RayGen.Stride)
	}
	if !(desc.RayGen.Address < desc.Miss.Address && desc.Miss.Address < desc.HitGroup.Address) {
		t.Error("regions are not ordered ray generation, miss, hit group")
	}

	if err := dev.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	data, err := dev.ReadBuffer(table.Buffer(), 0, table.Layout.Size)
	if err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	handles, err := dev.ShaderGroupHandles(pipeline, 0, 3)
	if err != nil {
		t.Fatal(err)
	}
	hs := int(ctx.Properties.ShaderGroupHandleSize)
	hit := table.Layout.Regions[HitGroup].Offset
	if !bytes.Equal(data[hit:hit+uint64(hs)], handles[2*hs:3*hs]) {
		t.Error("hit group record does not hold the group 2 handle")
	}
}
