package anchor

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyPlaced means the label already has an anchor this session.
	ErrAlreadyPlaced = errors.New("label already placed")

	// ErrNoSurface means the hit test found nothing under the screen point.
	ErrNoSurface = errors.New("no surface found")

	// ErrNoFrame means the session has not produced a frame to map through.
	ErrNoFrame = errors.New("no current frame")

	// ErrNoCandidate means no detection has qualified yet.
	ErrNoCandidate = errors.New("no candidate detection")
)

// PlacementError reports the stage at which a placement was aborted.
type PlacementError struct {
	State State
	Err   error
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("placement aborted while %s: %v", e.State, e.Err)
}

func (e *PlacementError) Unwrap() error { return e.Err }
