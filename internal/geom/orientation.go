package geom

import (
	"fmt"
	"strings"
)

// Orientation is the interface orientation the viewport is presented in.
type Orientation int

const (
	OrientationPortrait Orientation = iota
	OrientationPortraitUpsideDown
	OrientationLandscapeLeft
	// OrientationLandscapeRight matches the camera sensor's native orientation.
	OrientationLandscapeRight
)

func (o Orientation) String() string {
	switch o {
	case OrientationPortrait:
		return "portrait"
	case OrientationPortraitUpsideDown:
		return "portrait_upside_down"
	case OrientationLandscapeLeft:
		return "landscape_left"
	case OrientationLandscapeRight:
		return "landscape_right"
	default:
		return fmt.Sprintf("orientation(%d)", int(o))
	}
}

// ParseOrientation accepts the names produced by Orientation.String.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "portrait":
		return OrientationPortrait, nil
	case "portrait_upside_down", "portrait-upside-down":
		return OrientationPortraitUpsideDown, nil
	case "landscape_left", "landscape-left":
		return OrientationLandscapeLeft, nil
	case "landscape_right", "landscape-right":
		return OrientationLandscapeRight, nil
	}
	return 0, fmt.Errorf("unknown orientation %q", s)
}

// IsPortrait reports whether the viewport is taller than the sensor image is wide.
func (o Orientation) IsPortrait() bool {
	return o == OrientationPortrait || o == OrientationPortraitUpsideDown
}

// rotation maps the normalized sensor image onto the unit square as seen in o.
func (o Orientation) rotation() Affine {
	switch o {
	case OrientationPortrait:
		// x' = 1 - y, y' = x
		return Affine{A: 0, B: 1, C: -1, D: 0, Tx: 1, Ty: 0}
	case OrientationPortraitUpsideDown:
		// x' = y, y' = 1 - x
		return Affine{A: 0, B: -1, C: 1, D: 0, Tx: 0, Ty: 1}
	case OrientationLandscapeLeft:
		return Affine{A: -1, D: -1, Tx: 1, Ty: 1}
	default:
		return IdentityAffine
	}
}

// DisplayTransform returns the transform from normalized image coordinates to
// normalized view coordinates for an image of imageSize (in the sensor's native
// orientation) shown aspect-filled in viewport under orientation o.
//
// The rotation is applied first; the image is then scaled to cover the viewport
// and the overflowing axis is cropped symmetrically.
func DisplayTransform(imageSize Size, o Orientation, viewport Size) Affine {
	rot := o.rotation()
	if imageSize.IsEmpty() || viewport.IsEmpty() {
		return rot
	}

	rotated := imageSize
	if o.IsPortrait() {
		rotated = Size{Width: imageSize.Height, Height: imageSize.Width}
	}

	imageAspect := rotated.Aspect()
	viewAspect := viewport.Aspect()

	var crop Affine
	switch {
	case imageAspect > viewAspect:
		// Image is wider than the viewport: only the middle fx of it is visible.
		fx := viewAspect / imageAspect
		crop = Translate(-(1-fx)/2, 0).Concat(Scale(1/fx, 1))
	case imageAspect < viewAspect:
		fy := imageAspect / viewAspect
		crop = Translate(0, -(1-fy)/2).Concat(Scale(1, 1/fy))
	default:
		return rot
	}
	return rot.Concat(crop)
}
