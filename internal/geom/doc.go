// Package geom holds the 2-D and 3-D geometry shared by the anchor pipeline.
//
// Rectangles and affine transforms follow the CoreGraphics conventions used by
// mobile AR frameworks: a rectangle is an origin plus a size, and an affine
// transform maps a point (x, y) to (a*x + c*y + tx, b*x + d*y + ty). Applying
// a transform to a rectangle yields the axis-aligned bounding box of the four
// transformed corners.
//
// # Coordinate spaces
//
//   - Normalized image space: [0,1]x[0,1] over the captured camera image in the
//     sensor's native (landscape-right) orientation.
//   - Normalized view space: [0,1]x[0,1] over the on-screen viewport, after the
//     display-mapping transform has rotated and cropped the image.
//   - View pixel space: normalized view space scaled by the viewport size.
//   - World space: metres, right-handed, as tracked by the AR session.
//
// World transforms are 4x4 row-major rigid transforms stored as [16]float64,
// with the translation in elements 3, 7 and 11.
package geom
