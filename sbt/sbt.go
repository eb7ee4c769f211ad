// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package sbt lays out shader binding tables.
//
// A table holds one record per program group: the group's opaque handle
// followed by optional inline data. Records are grouped by category in the
// order ray generation, miss, hit group, and every record of a category has
// the same size, rounded up to the device's base alignment.
package sbt

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
)

// Entry is one record: a group index into the pipeline's group list and
// the bytes copied after its handle.
type Entry struct {
	Group  uint32
	Inline []byte
}

// Category identifies a record region.
type Category uint8

const (
	RayGen Category = iota
	Miss
	HitGroup
	categoryCount
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case RayGen:
		return "ray generation"
	case Miss:
		return "miss"
	case HitGroup:
		return "hit group"
	default:
		return "unknown"
	}
}

// Builder collects entries per category.
type Builder struct {
	entries [categoryCount][]Entry
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder { return &Builder{} }

// AddRayGen appends a ray-generation record.
func (b *Builder) AddRayGen(group uint32, inline ...byte) *Builder {
	return b.add(RayGen, group, inline)
}

// AddMiss appends a miss record.
func (b *Builder) AddMiss(group uint32, inline ...byte) *Builder {
	return b.add(Miss, group, inline)
}

// AddHitGroup appends a hit group record.
func (b *Builder) AddHitGroup(group uint32, inline ...byte) *Builder {
	return b.add(HitGroup, group, inline)
}

func (b *Builder) add(c Category, group uint32, inline []byte) *Builder {
	b.entries[c] = append(b.entries[c], Entry{Group: group, Inline: append([]byte(nil), inline...)})
	return b
}

// Region is the placement of one category inside the table.
type Region struct {
	Offset    uint64
	EntrySize uint64
	Count     int
}

// Size returns the bytes the region occupies.
func (r Region) Size() uint64 { return r.EntrySize * uint64(r.Count) }

// Layout is the placement of all categories.
type Layout struct {
	Regions [categoryCount]Region
	Size    uint64
}

// Layout computes record sizes and region offsets for props.
func (b *Builder) Layout(props rt.Properties) (Layout, error) {
	if len(b.entries[RayGen]) == 0 {
		return Layout{}, fmt.Errorf("%w: %s", ErrEmptyCategory, RayGen)
	}
	if len(b.entries[HitGroup]) == 0 {
		return Layout{}, fmt.Errorf("%w: %s", ErrEmptyCategory, HitGroup)
	}
	var l Layout
	for c := range categoryCount {
		r := Region{
			Offset:    l.Size,
			EntrySize: entrySize(props, b.entries[c]),
			Count:     len(b.entries[c]),
		}
		l.Regions[c] = r
		l.Size += r.Size()
	}
	return l, nil
}

// entrySize is the handle plus the largest inline payload, rounded up to
// the base alignment.
func entrySize(props rt.Properties, entries []Entry) uint64 {
	var maxInline int
	for _, e := range entries {
		maxInline = max(maxInline, len(e.Inline))
	}
	return rt.AlignUp(uint64(props.ShaderGroupHandleSize)+uint64(maxInline), uint64(props.ShaderGroupBaseAlignment))
}

// Encode returns the table bytes for a layout, given the packed handles of
// groups 0..n-1 as returned by rt.Device.ShaderGroupHandles.
func (b *Builder) Encode(l Layout, handles []byte, handleSize uint32) ([]byte, error) {
	if handleSize == 0 {
		return nil, fmt.Errorf("%w: 0", ErrHandleSize)
	}
	hs := int(handleSize)
	groups := len(handles) / hs
	out := make([]byte, l.Size)
	for c := range categoryCount {
		r := l.Regions[c]
		if len(b.entries[c]) > 0 && uint64(hs) > r.EntrySize {
			return nil, fmt.Errorf("%w: %d exceeds %s record size %d", ErrHandleSize, hs, c, r.EntrySize)
		}
		for i, e := range b.entries[c] {
			if int(e.Group) >= groups {
				return nil, fmt.Errorf("%w: %s entry %d names group %d of %d", ErrGroupRange, c, i, e.Group, groups)
			}
			rec := out[r.Offset+uint64(i)*r.EntrySize:]
			copy(rec, handles[int(e.Group)*hs:int(e.Group+1)*hs])
			copy(rec[hs:], e.Inline)
		}
	}
	return out, nil
}

func (b *Builder) groupCount() uint32 {
	var n uint32
	for c := range categoryCount {
		for _, e := range b.entries[c] {
			n = max(n, e.Group+1)
		}
	}
	return n
}

// Table is a shader binding table in a host-visible device buffer.
type Table struct {
	Layout Layout

	buffer  hal.Buffer
	address rt.DeviceAddress
	ctx     *rt.Context
}

// Build lays out the table, fetches the group handles of pipeline and
// uploads the records.
func (b *Builder) Build(ctx *rt.Context, pipeline rt.RayTracingPipeline) (*Table, error) {
	l, err := b.Layout(ctx.Properties)
	if err != nil {
		return nil, err
	}
	handles, err := ctx.Device.ShaderGroupHandles(pipeline, 0, b.groupCount())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGroupRange, err)
	}
	data, err := b.Encode(l, handles, ctx.Properties.ShaderGroupHandleSize)
	if err != nil {
		return nil, err
	}
	buf, err := ctx.CreateBuffer("shader binding table",
		gputypes.BufferUsageStorage|gputypes.BufferUsageMapWrite|gputypes.BufferUsageCopySrc, data, 0)
	if err != nil {
		return nil, err
	}
	return &Table{Layout: l, buffer: buf, address: ctx.Device.BufferAddress(buf), ctx: ctx}, nil
}

// Region returns the device region of category c. Empty categories yield a
// zero region.
func (t *Table) Region(c Category) rt.StridedRegion {
	r := t.Layout.Regions[c]
	if r.Count == 0 {
		return rt.StridedRegion{}
	}
	return rt.StridedRegion{Address: t.address.Offset(r.Offset), Stride: r.EntrySize, Size: r.Size()}
}

// RayGenRegion returns the region of ray-generation record index, which is
// what a dispatch expects: one record whose size equals its stride.
func (t *Table) RayGenRegion(index int) rt.StridedRegion {
	r := t.Layout.Regions[RayGen]
	return rt.StridedRegion{
		Address: t.address.Offset(r.Offset + uint64(index)*r.EntrySize),
		Stride:  r.EntrySize,
		Size:    r.EntrySize,
	}
}

// TraceRays returns a dispatch over width x height using the first
// ray-generation record.
func (t *Table) TraceRays(width, height uint32) *rt.TraceRaysDescriptor {
	return &rt.TraceRaysDescriptor{
		RayGen:   t.RayGenRegion(0),
		Miss:     t.Region(Miss),
		HitGroup: t.Region(HitGroup),
		Width:    width,
		Height:   height,
		Depth:    1,
	}
}

// Buffer returns the device buffer holding the table.
func (t *Table) Buffer() hal.Buffer { return t.buffer }

// Destroy releases the table buffer.
func (t *Table) Destroy() {
	if t.buffer != nil {
		t.ctx.Device.DestroyBuffer(t.buffer)
		t.buffer = nil
	}
}
