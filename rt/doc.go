// Package rt extends the gogpu HAL with hardware ray tracing.
//
// The HAL in github.com/gogpu/wgpu/hal covers buffers, textures, compute and
// render work. Ray tracing needs four more things, which this package adds as
// interfaces layered on top of hal.Device, hal.Queue and hal.CommandEncoder:
//
//   - acceleration structures (bottom-level over geometry, top-level over
//     instances) with size queries, build and update commands;
//   - ray-tracing pipelines and their shader group handles;
//   - buffer device addresses, used by builds and by the shader binding table;
//   - binary semaphores ordering acquire, submit and present.
//
// Backends register themselves with RegisterBackend, usually from an init
// function, and OpenDevice picks the first HAL adapter a registered backend
// can drive:
//
//	import _ "github.com/gogpu/pathtrace/rt/soft" // software ray tracing
//
//	dev, err := rt.OpenDevice("")
//	if errors.Is(err, rt.ErrUnsupportedCapability) {
//	    // no adapter can trace rays
//	}
//	defer dev.Close()
package rt
