// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package accel

import (
	"errors"
	"fmt"

	"github.com/gogpu/pathtrace/rt"
)

// Structures is the two-level structure of one loaded scene.
type Structures struct {
	Geometry  *GeometryAccelerator
	Instances *InstanceAccelerator
}

// Build generates the bottom-level structures of scene, then the top-level
// structure over them, in one submission separated by a structure barrier.
// It waits for the builds to complete.
func Build(ctx *rt.Context, scene *DeviceScene) (*Structures, error) {
	s := &Structures{
		Geometry:  NewGeometryAccelerator(ctx),
		Instances: NewInstanceAccelerator(ctx),
	}
	err := ctx.Submit("acceleration structures", func(enc rt.CommandEncoder) error {
		if err := s.Geometry.Generate(enc, scene); err != nil {
			return err
		}
		enc.StructureBarrier()
		return s.Instances.Generate(enc, scene, s.Geometry)
	})
	if err != nil {
		s.Destroy()
		if !errors.Is(err, ErrAccelerationBuild) {
			err = fmt.Errorf("%w: %w", ErrAccelerationBuild, err)
		}
		return nil, err
	}
	slogger().Info("accel: scene structures built",
		"blas", len(s.Geometry.Structures()),
		"instances", len(s.Instances.Instances()),
		"blas_storage", s.Geometry.StorageSize(),
		"tlas_storage", s.Instances.Sizes().Storage)
	return s, nil
}

// Destroy releases both levels.
func (s *Structures) Destroy() {
	s.Instances.Destroy()
	s.Geometry.Destroy()
}
