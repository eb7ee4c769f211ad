// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package accel

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtrace/assets"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
)

// GeometryAccelerator owns the bottom-level structures of a scene. All
// structures share one storage buffer and one scratch buffer.
type GeometryAccelerator struct {
	ctx        *rt.Context
	structures []*BottomLevel
	storage    hal.Buffer
	scratch    hal.Buffer
	builds     int
}

// NewGeometryAccelerator returns an empty accelerator.
func NewGeometryAccelerator(ctx *rt.Context) *GeometryAccelerator {
	return &GeometryAccelerator{ctx: ctx}
}

// Generate allocates one structure per object of scene and records their
// builds into enc. Structures are placed at increasing offsets of the
// shared buffers.
func (g *GeometryAccelerator) Generate(enc rt.CommandEncoder, scene *DeviceScene) error {
	if g.storage != nil {
		return fmt.Errorf("%w: bottom-level structures already generated", ErrAccelerationBuild)
	}
	dev := g.ctx.Device
	props := g.ctx.Properties
	host := scene.Host

	var storageTotal, scratchTotal uint64
	for i := range host.Objects {
		b := &BottomLevel{
			label:    fmt.Sprintf("blas %d", i),
			geometry: objectGeometry(scene, &host.Objects[i]),
		}
		raw, err := dev.BuildSizes(b.buildInfo())
		if err != nil {
			g.Destroy()
			return fmt.Errorf("%w: size query for object %d: %w", ErrAccelerationBuild, i, err)
		}
		b.sizes = roundSizes(raw, raw.BuildScratchSize, props)
		b.storageOffset = storageTotal
		b.scratchOffset = scratchTotal
		storageTotal += b.sizes.Storage
		scratchTotal += b.sizes.Scratch
		g.structures = append(g.structures, b)
	}

	var err error
	g.storage, err = dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "blas storage",
		Size:  storageTotal,
		Usage: gputypes.BufferUsageStorage,
	})
	if err != nil {
		g.Destroy()
		return fmt.Errorf("%w: allocate %d storage bytes: %w", ErrAccelerationBuild, storageTotal, err)
	}
	g.scratch, err = dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "blas scratch",
		Size:  scratchTotal,
		Usage: gputypes.BufferUsageStorage,
	})
	if err != nil {
		g.Destroy()
		return fmt.Errorf("%w: allocate %d scratch bytes: %w", ErrAccelerationBuild, scratchTotal, err)
	}

	scratchBase := dev.BufferAddress(g.scratch)
	infos := make([]rt.BuildGeometryInfo, 0, len(g.structures))
	for _, b := range g.structures {
		b.handle, err = dev.CreateAccelerationStructure(&rt.AccelerationStructureDescriptor{
			Label:  b.label,
			Type:   rt.BottomLevel,
			Buffer: g.storage,
			Offset: b.storageOffset,
			Size:   b.sizes.Storage,
		})
		if err != nil {
			g.Destroy()
			return fmt.Errorf("%w: create %s: %w", ErrAccelerationBuild, b.label, err)
		}
		info := b.buildInfo()
		info.Destination = b.handle
		info.ScratchAddress = scratchBase.Offset(b.scratchOffset)
		infos = append(infos, *info)
	}
	enc.BuildAccelerationStructures(infos)
	g.builds += len(infos)

	slogger().Debug("accel: bottom-level structures recorded",
		"count", len(g.structures),
		"storage", storageTotal,
		"scratch", scratchTotal)
	return nil
}

// objectGeometry returns the build input of one object: its triangle range
// of the shared buffers, or its single procedural box.
func objectGeometry(scene *DeviceScene, r *assets.ObjectRange) rt.Geometry {
	if r.AABB >= 0 {
		return rt.Geometry{
			Type:  rt.GeometryAABBs,
			Flags: rt.GeometryOpaque,
			AABBs: rt.AABBData{
				Address:         scene.Address(scene.AABBs),
				Stride:          rt.AABBSize,
				PrimitiveOffset: uint64(r.AABB) * rt.AABBSize,
				PrimitiveCount:  1,
			},
		}
	}
	// Indices are already global, so FirstVertex stays zero and MaxVertex
	// bounds the object's own vertex range.
	return rt.Geometry{
		Type:  rt.GeometryTriangles,
		Flags: rt.GeometryOpaque,
		Triangles: rt.TrianglesData{
			VertexAddress:   scene.Address(scene.Vertices),
			VertexStride:    assets.VertexSize,
			MaxVertex:       r.VertexOffset + r.VertexCount - 1,
			IndexAddress:    scene.Address(scene.Indices),
			PrimitiveOffset: uint64(r.IndexOffset) * 4,
			PrimitiveCount:  r.IndexCount / 3,
		},
	}
}

func (b *BottomLevel) buildInfo() *rt.BuildGeometryInfo {
	return &rt.BuildGeometryInfo{
		Label:      b.label,
		Type:       rt.BottomLevel,
		Mode:       rt.BuildModeBuild,
		Flags:      rt.BuildPreferFastTrace,
		Geometries: []rt.Geometry{b.geometry},
	}
}

// Structures returns the structures in object order.
func (g *GeometryAccelerator) Structures() []*BottomLevel { return g.structures }

// Builds returns how many bottom-level builds were recorded in total.
func (g *GeometryAccelerator) Builds() int { return g.builds }

// StorageSize returns the size of the shared storage buffer.
func (g *GeometryAccelerator) StorageSize() uint64 {
	var n uint64
	for _, b := range g.structures {
		n += b.sizes.Storage
	}
	return n
}

// Destroy releases the structures and their buffers.
func (g *GeometryAccelerator) Destroy() {
	dev := g.ctx.Device
	for _, b := range g.structures {
		if b.handle != nil {
			dev.DestroyAccelerationStructure(b.handle)
			b.handle = nil
		}
	}
	g.structures = nil
	if g.storage != nil {
		dev.DestroyBuffer(g.storage)
		g.storage = nil
	}
	if g.scratch != nil {
		dev.DestroyBuffer(g.scratch)
		g.scratch = nil
	}
}
