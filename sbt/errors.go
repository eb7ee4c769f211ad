// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package sbt

import "errors"

var (
	// ErrEmptyCategory is returned when a table has no ray-generation
	// entries or no hit groups.
	ErrEmptyCategory = errors.New("sbt: empty program category")

	// ErrGroupRange is returned when an entry names a group the pipeline
	// does not have.
	ErrGroupRange = errors.New("sbt: shader group out of range")

	// ErrHandleSize is returned when the shader group handle size is zero
	// or does not fit a record of the layout.
	ErrHandleSize = errors.New("sbt: invalid shader group handle size")
)
