package rt

import (
	"errors"

	"github.com/gogpu/wgpu/hal"
)

var (
	// ErrUnsupportedCapability is returned when no adapter offers the
	// ray-tracing features a backend needs.
	ErrUnsupportedCapability = errors.New("rt: ray tracing not supported by any adapter")

	// ErrBackendNotFound is returned by OpenDevice when the requested backend
	// name is not registered.
	ErrBackendNotFound = errors.New("rt: backend not registered")

	// ErrOutOfMemory is returned when the device cannot satisfy an allocation.
	// Errors carrying it also match hal.ErrDeviceOutOfMemory.
	ErrOutOfMemory error = &outOfMemoryError{}

	// ErrInvalidGeometry is returned when a build references geometry the
	// device cannot read.
	ErrInvalidGeometry = errors.New("rt: invalid acceleration structure geometry")

	// ErrInvalidBuild is returned for malformed build commands, such as an
	// update of a structure created without BuildAllowUpdate.
	ErrInvalidBuild = errors.New("rt: invalid acceleration structure build")

	// ErrSemaphoreState is returned when a semaphore is signaled twice
	// without a wait in between.
	ErrSemaphoreState = errors.New("rt: semaphore already signaled")
)

type outOfMemoryError struct{}

func (*outOfMemoryError) Error() string { return "rt: device out of memory" }

func (*outOfMemoryError) Is(target error) bool {
	return target == hal.ErrDeviceOutOfMemory
}
