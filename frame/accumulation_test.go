package frame

import (
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
)

func TestAccumulationCameraMove(t *testing.T) {
	s := DefaultSettings()
	s.NumberOfSamples = 4
	s.MaxNumberOfSamples = 1 << 20

	var p AccumulationPolicy
	var prev uint32
	for i := 0; i < 500; i++ {
		b := p.Next(&s, false, false)
		if b.Reset != (i == 0) {
			t.Fatalf("frame %d: reset = %v", i, b.Reset)
		}
		if i > 0 && b.Total < prev {
			t.Fatalf("frame %d: total decreased from %d to %d", i, prev, b.Total)
		}
		prev = b.Total
	}
	if got, want := p.Total(), uint32(500*4); got != want {
		t.Fatalf("total after 500 frames = %d, want %d", got, want)
	}

	got := p.Next(&s, true, false)
	want := Budget{Reset: true, Samples: 4, Total: 4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("budget after camera move (-want +got):\n%s", diff)
	}
}

func TestAccumulationResets(t *testing.T) {
	tests := []struct {
		name              string
		change            func(s *Settings)
		cameraMoved       bool
		transformsChanged bool
		reload            bool
		wantReset         bool
	}{
		{name: "nothing", wantReset: false},
		{name: "bounces", change: func(s *Settings) { s.NumberOfBounces++ }, wantReset: true},
		{name: "field of view", change: func(s *Settings) { s.FieldOfView = 45 }, wantReset: true},
		{name: "aperture", change: func(s *Settings) { s.Aperture = 0.3 }, wantReset: true},
		{name: "focus distance", change: func(s *Settings) { s.FocusDistance = 2 }, wantReset: true},
		{name: "accumulation off", change: func(s *Settings) { s.AccumulateRays = false }, wantReset: true},
		{name: "samples per frame", change: func(s *Settings) { s.NumberOfSamples = 2 }, wantReset: false},
		{name: "heatmap", change: func(s *Settings) { s.ShowHeatmap = true }, wantReset: false},
		{name: "camera moved", cameraMoved: true, wantReset: true},
		{name: "transforms changed", transformsChanged: true, wantReset: true},
		{name: "explicit reload", reload: true, wantReset: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			var p AccumulationPolicy
			p.Next(&s, false, false)
			p.Next(&s, false, false)

			if tt.change != nil {
				tt.change(&s)
			}
			if tt.reload {
				p.RequestReset()
			}
			b := p.Next(&s, tt.cameraMoved, tt.transformsChanged)
			if b.Reset != tt.wantReset {
				t.Errorf("reset = %v, want %v", b.Reset, tt.wantReset)
			}
			if b.Reset && b.Total != b.Samples {
				t.Errorf("total %d after reset, want the frame's %d samples", b.Total, b.Samples)
			}
		})
	}
}

func TestAccumulationNeverExceedsMax(t *testing.T) {
	s := DefaultSettings()
	s.NumberOfSamples = 7
	s.MaxNumberOfSamples = 20

	var p AccumulationPolicy
	var budgets []uint32
	for range 5 {
		b := p.Next(&s, false, false)
		if b.Total > s.MaxNumberOfSamples {
			t.Fatalf("total %d exceeds max %d", b.Total, s.MaxNumberOfSamples)
		}
		budgets = append(budgets, b.Samples)
	}
	if diff := cmp.Diff([]uint32{7, 7, 6, 0, 0}, budgets); diff != "" {
		t.Errorf("budgets (-want +got):\n%s", diff)
	}

	s.MaxNumberOfSamples = 10
	b := p.Next(&s, false, false)
	if !b.Reset || b.Total != 7 {
		t.Errorf("lowered max: budget = %+v, want a reset to 7", b)
	}
}

func TestUniformLayout(t *testing.T) {
	if got := unsafe.Sizeof(UniformBufferObject{}); got != UniformSize {
		t.Errorf("UniformBufferObject is %d bytes, want %d", got, UniformSize)
	}
}
