package assets

import "errors"

// ErrSceneLoad is returned when scene data cannot be aggregated or loaded.
// The renderer keeps the previously loaded scene.
var ErrSceneLoad = errors.New("assets: scene load failed")

var (
	errMultiMaterial     = errors.New("assets: cannot change the material of a multi-material object")
	errSingularTransform = errors.New("assets: transform is not invertible")
)
