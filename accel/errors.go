package accel

import "errors"

// ErrAccelerationBuild is returned when the device rejects a structure
// size query, allocation or build. The scene load that triggered it is
// aborted.
var ErrAccelerationBuild = errors.New("accel: acceleration structure build failed")

var errNotGenerated = errors.New("accel: top-level structure not generated")
