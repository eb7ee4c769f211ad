// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package accel

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
)

// Hit group record offsets of the two object kinds.
const (
	TrianglesHitGroup  = 0
	ProceduralHitGroup = 1
)

// InstanceMask is the visibility mask of every instance.
const InstanceMask = 0xFF

// InstanceAccelerator owns the top-level structure of a scene. It is
// generated once per scene load and refit in place as objects move.
type InstanceAccelerator struct {
	ctx       *rt.Context
	instances []rt.Instance

	instanceBuf hal.Buffer
	storage     hal.Buffer
	scratch     hal.Buffer
	handle      rt.AccelerationStructure
	sizes       Sizes

	rebuilds int
}

// NewInstanceAccelerator returns an empty accelerator.
func NewInstanceAccelerator(ctx *rt.Context) *InstanceAccelerator {
	return &InstanceAccelerator{ctx: ctx}
}

// Generate creates one instance per object, uploads them and records the
// top-level build into enc. The caller records a structure barrier between
// the bottom-level builds and this one.
func (a *InstanceAccelerator) Generate(enc rt.CommandEncoder, scene *DeviceScene, blas *GeometryAccelerator) error {
	if a.handle != nil {
		return fmt.Errorf("%w: top-level structure already generated", ErrAccelerationBuild)
	}
	structures := blas.Structures()
	host := scene.Host
	if len(structures) != host.ObjectCount() {
		return fmt.Errorf("%w: %d bottom-level structures for %d objects", ErrAccelerationBuild, len(structures), host.ObjectCount())
	}
	dev := a.ctx.Device

	a.instances = make([]rt.Instance, len(structures))
	for i, b := range structures {
		hitGroup := uint32(TrianglesHitGroup)
		if b.Procedural() {
			hitGroup = ProceduralHitGroup
		}
		a.instances[i] = rt.NewInstance(host.Transforms[i], uint32(i), InstanceMask, hitGroup,
			rt.InstanceTriangleFacingCullDisable, dev.StructureAddress(b.Handle()))
	}

	var err error
	a.instanceBuf, err = a.ctx.CreateBuffer("instances",
		gputypes.BufferUsageStorage|gputypes.BufferUsageMapWrite,
		rt.Bytes(a.instances), 0)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAccelerationBuild, err)
	}

	info := a.buildInfo(rt.BuildModeBuild)
	raw, err := dev.BuildSizes(info)
	if err != nil {
		a.Destroy()
		return fmt.Errorf("%w: top-level size query: %w", ErrAccelerationBuild, err)
	}
	// Scratch serves both the first build and every later update.
	a.sizes = roundSizes(raw, max(raw.BuildScratchSize, raw.UpdateScratchSize), a.ctx.Properties)

	a.storage, err = dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "tlas storage",
		Size:  a.sizes.Storage,
		Usage: gputypes.BufferUsageStorage,
	})
	if err != nil {
		a.Destroy()
		return fmt.Errorf("%w: allocate %d storage bytes: %w", ErrAccelerationBuild, a.sizes.Storage, err)
	}
	a.scratch, err = dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "tlas scratch",
		Size:  a.sizes.Scratch,
		Usage: gputypes.BufferUsageStorage,
	})
	if err != nil {
		a.Destroy()
		return fmt.Errorf("%w: allocate %d scratch bytes: %w", ErrAccelerationBuild, a.sizes.Scratch, err)
	}
	a.handle, err = dev.CreateAccelerationStructure(&rt.AccelerationStructureDescriptor{
		Label:  "tlas",
		Type:   rt.TopLevel,
		Buffer: a.storage,
		Size:   a.sizes.Storage,
	})
	if err != nil {
		a.Destroy()
		return fmt.Errorf("%w: create tlas: %w", ErrAccelerationBuild, err)
	}

	info = a.buildInfo(rt.BuildModeBuild)
	enc.BuildAccelerationStructures([]rt.BuildGeometryInfo{*info})
	slogger().Debug("accel: top-level structure recorded",
		"instances", len(a.instances),
		"storage", a.sizes.Storage,
		"scratch", a.sizes.Scratch)
	return nil
}

func (a *InstanceAccelerator) buildInfo(mode rt.BuildMode) *rt.BuildGeometryInfo {
	info := &rt.BuildGeometryInfo{
		Label: "tlas",
		Type:  rt.TopLevel,
		Mode:  mode,
		Flags: rt.BuildPreferFastTrace | rt.BuildAllowUpdate,
		Geometries: []rt.Geometry{{
			Type: rt.GeometryInstances,
			Instances: rt.InstancesData{
				Address: a.ctx.Device.BufferAddress(a.instanceBuf),
				Count:   uint32(len(a.instances)),
			},
		}},
		Destination: a.handle,
	}
	if a.scratch != nil {
		info.ScratchAddress = a.ctx.Device.BufferAddress(a.scratch)
	}
	if mode == rt.BuildModeUpdate {
		info.Source = a.handle
	}
	return info
}

// Rebuild rewrites the transform of every instance, uploads the instances
// and records an update of the structure into enc. Nothing is allocated
// and the handle stays the same. The caller records a structure barrier
// before tracing.
func (a *InstanceAccelerator) Rebuild(enc rt.CommandEncoder, transforms []mgl32.Mat4) error {
	if a.handle == nil {
		return errNotGenerated
	}
	if len(transforms) != len(a.instances) {
		return fmt.Errorf("%w: %d transforms for %d instances", ErrAccelerationBuild, len(transforms), len(a.instances))
	}
	for i := range a.instances {
		a.instances[i].Transform = rt.TransformRows(transforms[i])
	}
	if err := a.ctx.Queue.WriteBuffer(a.instanceBuf, 0, rt.Bytes(a.instances)); err != nil {
		return fmt.Errorf("upload instances: %w", err)
	}
	enc.BuildAccelerationStructures([]rt.BuildGeometryInfo{*a.buildInfo(rt.BuildModeUpdate)})
	a.rebuilds++
	slogger().Debug("accel: top-level update recorded", "instances", len(a.instances), "rebuilds", a.rebuilds)
	return nil
}

// Handle returns the device structure.
func (a *InstanceAccelerator) Handle() rt.AccelerationStructure { return a.handle }

// Sizes returns the rounded storage and scratch sizes.
func (a *InstanceAccelerator) Sizes() Sizes { return a.sizes }

// Instances returns the host copy of the instance records.
func (a *InstanceAccelerator) Instances() []rt.Instance { return a.instances }

// InstanceBuffer returns the device buffer holding the instance records.
func (a *InstanceAccelerator) InstanceBuffer() hal.Buffer { return a.instanceBuf }

// Rebuilds returns how many updates were recorded.
func (a *InstanceAccelerator) Rebuilds() int { return a.rebuilds }

// Destroy releases the structure and its buffers.
func (a *InstanceAccelerator) Destroy() {
	dev := a.ctx.Device
	if a.handle != nil {
		dev.DestroyAccelerationStructure(a.handle)
		a.handle = nil
	}
	for _, b := range []*hal.Buffer{&a.instanceBuf, &a.storage, &a.scratch} {
		if *b != nil {
			dev.DestroyBuffer(*b)
			*b = nil
		}
	}
	a.instances = nil
}
