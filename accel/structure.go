// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package accel

import (
	"github.com/gogpu/pathtrace/rt"
)

// Sizes is the memory one structure occupies after rounding.
type Sizes struct {
	// Storage is rounded to rt.StructureAlignment.
	Storage uint64
	// Scratch is rounded to the device's minimum scratch alignment.
	Scratch uint64
}

// Structure is a bottom- or top-level acceleration structure.
type Structure interface {
	// Handle returns the device structure, or nil before generation.
	Handle() rt.AccelerationStructure
	Sizes() Sizes
}

// roundSizes applies the storage and scratch alignment to raw sizes.
// scratch selects the scratch size the structure reserves.
func roundSizes(raw rt.BuildSizes, scratch uint64, props rt.Properties) Sizes {
	return Sizes{
		Storage: rt.AlignUp(raw.StructureSize, rt.StructureAlignment),
		Scratch: rt.AlignUp(scratch, uint64(props.MinScratchOffsetAlignment)),
	}
}

// BottomLevel is the structure of one object.
type BottomLevel struct {
	label    string
	geometry rt.Geometry
	sizes    Sizes

	storageOffset uint64
	scratchOffset uint64
	handle        rt.AccelerationStructure
}

// Handle returns the device structure.
func (b *BottomLevel) Handle() rt.AccelerationStructure { return b.handle }

// Sizes returns the rounded storage and scratch sizes.
func (b *BottomLevel) Sizes() Sizes { return b.sizes }

// Geometry returns the build input.
func (b *BottomLevel) Geometry() rt.Geometry { return b.geometry }

// Procedural reports whether the structure holds a box rather than
// triangles.
func (b *BottomLevel) Procedural() bool { return b.geometry.Type == rt.GeometryAABBs }

var (
	_ Structure = (*BottomLevel)(nil)
	_ Structure = (*InstanceAccelerator)(nil)
)
