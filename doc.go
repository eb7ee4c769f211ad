// Package pathtrace is a progressive path tracer built on hardware-style
// ray tracing: bottom- and top-level acceleration structures, a shader
// binding table and a ray-generation, miss and hit-group pipeline.
//
// # Overview
//
// A Renderer owns a device, the active scene and a swap target. Every
// frame traces a number of samples per pixel, adds them to an accumulation
// buffer and resolves the average into the presented image. Moving the
// camera, animating objects, resizing or changing settings that affect the
// image discard the accumulated samples.
//
// # Quick Start
//
//	r, err := pathtrace.New(
//	    pathtrace.WithScene("Cornell Box"),
//	    pathtrace.WithSize(640, 360),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	for range 64 {
//	    if _, err := r.DrawFrame(); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	f, _ := os.Create("out.png")
//	defer f.Close()
//	r.Snapshot(f)
//
// # Devices
//
// Ray-tracing backends register with package rt. The soft backend, imported
// by this package, runs every program on the CPU over the noop HAL adapter,
// so a renderer works without a GPU. Use WithBackend to pick one by name
// and WithDevice to render on a device the caller opened.
//
// # Architecture
//
//   - assets: objects, materials, textures and the camera state
//   - scenes: the built-in scenes and their registry
//   - accel: scene upload and acceleration structures
//   - sbt: the shader binding table
//   - frame: settings, accumulation policy and the swap target scheduler
//   - rt, rt/soft: the ray-tracing device interface and its CPU backend
//
// # Coordinate System
//
// Right-handed world space with y up. The camera looks down -z in view
// space. Angles in settings are in degrees.
package pathtrace

// Version is the current version of the library.
const Version = "0.1.0"
