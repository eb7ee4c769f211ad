// Package soft implements the rt ray-tracing extension on the CPU.
//
// The soft device wraps a HAL device opened from the noop backend and takes
// over the parts that need real memory and execution: buffers, textures,
// fences, command encoding and queue submission. Submitted work runs in
// order on one timeline goroutine, the way a GPU queue would, so frame
// pipelining, fences and semaphores behave as they do on hardware.
//
// Acceleration structures are real bounding volume hierarchies built from the
// device memory that build commands reference. Ray dispatches run the
// programs registered with RegisterProgram, keyed by shader entry point, on a
// pool of worker goroutines. Compute pipelines resolve their entry point the
// same way through RegisterComputeProgram.
//
// Importing the package registers the backend with rt:
//
//	import _ "github.com/gogpu/pathtrace/rt/soft"
package soft
