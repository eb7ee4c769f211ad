// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package kernel

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/naga"
	"github.com/gogpu/pathtrace/frame"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/pathtrace/rt/soft"
)

//go:embed shaders/resolve.wgsl
var resolveShaderSource string

// Resolve bindings in group 0.
const (
	ResolveAccumulation = 0
	ResolveUniform      = 1
	ResolveOutput       = 2
	ResolveParams       = 3
)

// resolveWorkgroupSize matches @workgroup_size in resolve.wgsl.
const resolveWorkgroupSize = 8

// Params is the device layout of the resolve parameters.
type Params struct {
	Width, Height uint32
	Gamma         uint32
	_             uint32
}

// compileResolve compiles the resolve shader once per process.
var compileResolve = sync.OnceValues(func() ([]uint32, error) {
	return compileShaderToSPIRV(resolveShaderSource)
})

// compileShaderToSPIRV compiles WGSL to little-endian SPIR-V words.
func compileShaderToSPIRV(src string) ([]uint32, error) {
	code, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile resolve shader: %w", err)
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[4*i:])
	}
	return words, nil
}

// resolve runs resolve.wgsl on the software device. The shader is the
// contract: every other backend dispatches the compiled module, so resolve
// and ResolvePixel must produce the same bytes for the same inputs.
func resolve(d *soft.Dispatch) {
	accumulation := rt.View[mgl32.Vec4](d.Buffer(0, ResolveAccumulation))
	ubo := &rt.View[frame.UniformBufferObject](d.Buffer(0, ResolveUniform))[0]
	out := d.Buffer(0, ResolveOutput)
	p := rt.View[Params](d.Buffer(0, ResolveParams))[0]

	w := min(p.Width, d.Workgroups[0]*resolveWorkgroupSize)
	h := min(p.Height, d.Workgroups[1]*resolveWorkgroupSize)
	for y := range h {
		for x := range w {
			i := y*p.Width + x
			c := ResolvePixel(accumulation[i], ubo, p.Gamma != 0)
			copy(out[4*i:], c[:])
		}
	}
}

// ResolvePixel converts one accumulation texel to RGBA8.
func ResolvePixel(sum mgl32.Vec4, ubo *frame.UniformBufferObject, gamma bool) [4]byte {
	total := max(float32(ubo.TotalNumberOfSamples), 1)
	color := mgl32.Vec3{sum[0] / total, sum[1] / total, sum[2] / total}
	switch {
	case ubo.ShowHeatmap != 0:
		bounces := max(float32(ubo.NumberOfBounces), 1)
		color = heatmap(sum[3] / total / bounces * ubo.HeatmapScale)
	case gamma:
		for c := range color {
			color[c] = float32(math.Sqrt(float64(max(color[c], 0))))
		}
	}
	return [4]byte{unorm8(color[0]), unorm8(color[1]), unorm8(color[2]), 255}
}

func heatmap(t float32) mgl32.Vec3 {
	x := min(max(t, 0), 1)
	return mgl32.Vec3{
		smoothstep(0.5, 0.8, x),
		smoothstep(0, 0.5, x) * (1 - smoothstep(0.8, 1, x)),
		1 - smoothstep(0.2, 0.5, x),
	}
}

func smoothstep(e0, e1, x float32) float32 {
	t := min(max((x-e0)/(e1-e0), 0), 1)
	return t * t * (3 - 2*t)
}

// unorm8 quantizes like pack4x8unorm.
func unorm8(v float32) byte {
	return byte(math.Floor(0.5 + 255*float64(min(max(v, 0), 1))))
}
