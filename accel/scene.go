// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package accel

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtrace/assets"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
)

// DeviceScene is an aggregated scene resident in device memory.
type DeviceScene struct {
	// Host is the aggregated scene the buffers were uploaded from.
	Host *assets.SceneBuffers

	Vertices    hal.Buffer
	Indices     hal.Buffer
	Materials   hal.Buffer
	Offsets     hal.Buffer
	Procedurals hal.Buffer
	AABBs       hal.Buffer

	Textures []hal.Texture
	Views    []hal.TextureView

	ctx *rt.Context
}

// UploadScene copies buffers and textures to the device. A scene without
// textures gets a 1x1 white one so that texture bindings are never empty.
func UploadScene(ctx *rt.Context, buffers *assets.SceneBuffers, textures []assets.Texture) (*DeviceScene, error) {
	if len(textures) == 0 {
		textures = []assets.Texture{assets.DummyTexture()}
	}
	s := &DeviceScene{Host: buffers, ctx: ctx}

	const usage = gputypes.BufferUsageStorage
	uploads := []struct {
		label string
		dst   *hal.Buffer
		data  []byte
	}{
		{"vertices", &s.Vertices, rt.Bytes(buffers.Vertices)},
		{"indices", &s.Indices, rt.Bytes(buffers.Indices)},
		{"materials", &s.Materials, rt.Bytes(buffers.Materials)},
		{"offsets", &s.Offsets, rt.Bytes(buffers.Offsets)},
		{"procedurals", &s.Procedurals, rt.Bytes(buffers.Procedurals)},
		{"aabbs", &s.AABBs, rt.Bytes(buffers.AABBs)},
	}
	for _, u := range uploads {
		buf, err := ctx.CreateBuffer(u.label, usage, u.data, 0)
		if err != nil {
			s.Destroy()
			return nil, err
		}
		*u.dst = buf
	}

	for i := range textures {
		if err := s.uploadTexture(i, &textures[i]); err != nil {
			s.Destroy()
			return nil, err
		}
	}
	slogger().Debug("accel: scene uploaded",
		"objects", buffers.ObjectCount(),
		"vertices", len(buffers.Vertices),
		"indices", len(buffers.Indices),
		"materials", len(buffers.Materials),
		"textures", len(textures))
	return s, nil
}

func (s *DeviceScene) uploadTexture(i int, t *assets.Texture) error {
	dev := s.ctx.Device
	size := hal.Extent3D{Width: t.Width, Height: t.Height, DepthOrArrayLayers: 1}
	tex, err := dev.CreateTexture(&hal.TextureDescriptor{
		Label:         fmt.Sprintf("texture %d", i),
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create texture %d (%dx%d): %w", i, t.Width, t.Height, err)
	}
	s.Textures = append(s.Textures, tex)

	if err := s.ctx.Queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex, MipLevel: 0},
		t.Pixels,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: t.Width * 4, RowsPerImage: t.Height},
		&size,
	); err != nil {
		return fmt.Errorf("upload texture %d: %w", i, err)
	}

	view, err := dev.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: fmt.Sprintf("texture %d view", i),
	})
	if err != nil {
		return fmt.Errorf("create texture %d view: %w", i, err)
	}
	s.Views = append(s.Views, view)
	return nil
}

// Address returns the device address of buf.
func (s *DeviceScene) Address(buf hal.Buffer) rt.DeviceAddress {
	return s.ctx.Device.BufferAddress(buf)
}

// Transforms returns a copy of the initial object transforms.
func (s *DeviceScene) Transforms() []mgl32.Mat4 {
	return append([]mgl32.Mat4(nil), s.Host.Transforms...)
}

// Destroy releases all device resources. It is safe to call on a partially
// uploaded scene.
func (s *DeviceScene) Destroy() {
	dev := s.ctx.Device
	for _, v := range s.Views {
		dev.DestroyTextureView(v)
	}
	for _, t := range s.Textures {
		dev.DestroyTexture(t)
	}
	s.Views, s.Textures = nil, nil
	for _, b := range []*hal.Buffer{&s.Vertices, &s.Indices, &s.Materials, &s.Offsets, &s.Procedurals, &s.AABBs} {
		if *b != nil {
			dev.DestroyBuffer(*b)
			*b = nil
		}
	}
}
