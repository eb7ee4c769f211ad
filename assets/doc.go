// Package assets holds the scene data model shared by the renderer: objects
// with their vertices, indices and materials, textures, procedural spheres
// and the initial camera of a scene.
//
// Vertex, Material and the other device-visible types have a fixed memory
// layout and are uploaded without conversion. Aggregate flattens an ordered
// list of objects into the global buffers the acceleration structures and
// ray-tracing programs read:
//
//	buffers, err := assets.Aggregate(objects)
//	if err != nil {
//	    return err // wraps assets.ErrSceneLoad
//	}
//
// The model factories (NewBox, NewSphere, NewGroundRect, NewCornellBox)
// build the objects the built-in scenes are made of.
package assets
