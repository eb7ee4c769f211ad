package pathtrace

import (
	"errors"

	"github.com/gogpu/pathtrace/accel"
	"github.com/gogpu/pathtrace/assets"
	"github.com/gogpu/pathtrace/frame"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
)

// Errors returned by the renderer. Errors from the sub-packages are
// re-exported so that callers can match them with errors.Is without
// importing those packages.
var (
	// ErrSceneLoad is returned when a scene cannot be aggregated or
	// uploaded. The previously loaded scene stays active.
	ErrSceneLoad = assets.ErrSceneLoad

	// ErrAccelerationBuild is returned when acceleration structures cannot
	// be built. The previously loaded scene stays active.
	ErrAccelerationBuild = accel.ErrAccelerationBuild

	// ErrUnsupportedCapability is returned by New when no adapter supports
	// ray tracing.
	ErrUnsupportedCapability = rt.ErrUnsupportedCapability

	// ErrOutOfMemory reports a failed device allocation. It is fatal.
	ErrOutOfMemory = rt.ErrOutOfMemory

	// ErrDeviceLost reports a lost device. It is fatal.
	ErrDeviceLost = hal.ErrDeviceLost

	// ErrSwapTargetInvalidated is recovered inside DrawFrame and never
	// returned by it.
	ErrSwapTargetInvalidated = frame.ErrSwapTargetInvalidated

	// ErrClosed is returned by methods called after Close.
	ErrClosed = errors.New("pathtrace: renderer closed")

	// ErrNoScene is returned by New when neither a scene nor a scene name
	// resolves to a scene.
	ErrNoScene = errors.New("pathtrace: no scene")
)
