package soft

import "errors"

var (
	// ErrProgramNotFound is returned when a pipeline names an entry point
	// with no registered program of the right stage.
	ErrProgramNotFound = errors.New("soft: program not registered")

	// ErrForeignResource is returned when a resource created by another
	// device is passed in.
	ErrForeignResource = errors.New("soft: resource not created by this device")

	// ErrInvalidAddress is returned when a device address does not fall inside
	// a live buffer.
	ErrInvalidAddress = errors.New("soft: device address out of range")

	// ErrUnsignaledSemaphore is returned by the timeline when work waits on
	// a semaphore nothing has signaled.
	ErrUnsignaledSemaphore = errors.New("soft: wait on unsignaled semaphore")

	// ErrShaderRecord is returned when a ray dispatch reads a shader binding
	// table entry that is out of range or does not hold a handle of the bound
	// pipeline.
	ErrShaderRecord = errors.New("soft: invalid shader binding table record")

	// ErrRecursionDepth is returned when programs trace rays deeper than the
	// pipeline allows.
	ErrRecursionDepth = errors.New("soft: ray recursion depth exceeded")

	// ErrProgramPanic is returned when a program panics during a dispatch.
	ErrProgramPanic = errors.New("soft: program panicked")

	// ErrNotRecording is returned when commands are recorded outside
	// BeginEncoding/EndEncoding.
	ErrNotRecording = errors.New("soft: encoder is not recording")

	// ErrSurfaceNotConfigured is returned when acquiring from a surface
	// before Configure.
	ErrSurfaceNotConfigured = errors.New("soft: surface not configured")
)
