// Package kernel holds the path-tracing programs and the resolve pass.
//
// The ray-tracing programs run on the software ray-tracing device, which
// looks them up by entry point when the pipeline is created. The resolve
// pass is a WGSL compute shader compiled with naga; the software device runs
// the Go program registered under the same entry point.
//
// All programs read group 0:
//
//	binding 0    top-level acceleration structure
//	binding 1    accumulation buffer, one vec4 per pixel
//	binding 2    uniform block (frame.UniformBufferObject)
//	binding 3    vertices
//	binding 4    indices
//	binding 5    materials
//	binding 6    per-object offsets
//	binding 7    per-object procedural spheres
//	binding 8+   scene textures
//
// Each accumulation texel holds the radiance sum in xyz and the number of
// traced rays in w.
package kernel
