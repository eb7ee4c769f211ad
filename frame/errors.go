package frame

import "errors"

var (
	// ErrSwapTargetInvalidated reports that the swap target must be
	// recreated. The scheduler recovers from it by recreating the
	// swap-dependent resources and skipping the frame; DrawFrame never
	// returns it.
	ErrSwapTargetInvalidated = errors.New("frame: swap target invalidated")

	// ErrClosed is returned by DrawFrame after Destroy.
	ErrClosed = errors.New("frame: scheduler destroyed")
)
