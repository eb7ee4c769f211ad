// Package accel builds the two-level acceleration structure of a scene.
//
// Each object gets its own bottom-level structure (BLAS): a triangle mesh
// range of the aggregated scene buffers, or a single box for procedural
// objects. A top-level structure (TLAS) holds one instance per object and
// is refit in place when objects move:
//
//	scene, err := accel.UploadScene(ctx, buffers, textures)
//	...
//	structures, err := accel.Build(ctx, scene)
//	...
//	// every frame with moving objects
//	err = structures.Instances.Rebuild(enc, transforms)
//	enc.StructureBarrier()
package accel
