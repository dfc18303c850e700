// Package arsession defines the AR session boundary of the anchor pipeline
// (frames, hit-test results, anchors) and a simulated session that answers
// hit tests against a static feature-point cloud.
package arsession

import (
	"image"
	"time"

	"github.com/banshee-data/arlabel/internal/geom"
)

// HitTestType selects which estimated geometry a hit test considers.
type HitTestType string

const (
	// HitTestFeaturePoint intersects the ray with tracked feature points.
	HitTestFeaturePoint HitTestType = "feature_point"
)

// Intrinsics are pinhole camera parameters in image pixels.
type Intrinsics struct {
	Fx float64 `json:"fx"`
	Fy float64 `json:"fy"`
	Cx float64 `json:"cx"`
	Cy float64 `json:"cy"`
}

// Camera is the capturing camera at the time of a frame. Pose maps camera
// coordinates (x right, y up, looking down -z) to world coordinates.
type Camera struct {
	Intrinsics Intrinsics     `json:"intrinsics"`
	Pose       geom.Transform `json:"pose"`
}

// Frame is one captured camera frame.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Image     image.Image
	ImageSize geom.Size // sensor-native (landscape) resolution
	Camera    Camera
}

// DisplayTransform returns the normalized image to normalized view transform
// for this frame's image shown in viewport under orientation o.
func (f *Frame) DisplayTransform(o geom.Orientation, viewport geom.Size) geom.Affine {
	return geom.DisplayTransform(f.ImageSize, o, viewport)
}

// HitResult is one intersection found by a hit test.
type HitResult struct {
	Type           HitTestType    `json:"type"`
	Distance       float64        `json:"distance"` // metres from the camera along the ray
	WorldTransform geom.Transform `json:"world_transform"`
}

// Anchor is a named pose tracked by the session.
type Anchor struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Transform geom.Transform `json:"transform"`
	CreatedAt time.Time      `json:"created_at"`
}
