package arsession

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/arlabel/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Scene describes the static world a Simulator reports on.
type Scene struct {
	ImageWidth      float64        `json:"image_width"`
	ImageHeight     float64        `json:"image_height"`
	Intrinsics      Intrinsics     `json:"intrinsics"`
	CameraPose      geom.Transform `json:"camera_pose"`
	FeaturePoints   []r3.Vec       `json:"feature_points"`
	FrameRate       float64        `json:"frame_rate"`
	HitToleranceDeg float64        `json:"hit_tolerance_deg"`
}

// DefaultScene is a 1920x1440 camera at the origin looking down -Z at a wall
// of feature points two metres away.
func DefaultScene() Scene {
	s := Scene{
		ImageWidth:      1920,
		ImageHeight:     1440,
		Intrinsics:      Intrinsics{Fx: 1500, Fy: 1500, Cx: 960, Cy: 720},
		CameraPose:      geom.IdentityTransform,
		FrameRate:       30,
		HitToleranceDeg: 1.5,
	}
	for i := -10; i <= 10; i++ {
		for j := -10; j <= 10; j++ {
			s.FeaturePoints = append(s.FeaturePoints, r3.Vec{X: float64(i) / 10, Y: float64(j) / 10, Z: -2})
		}
	}
	return s
}

// LoadScene reads a scene from a JSON file. Missing numeric fields keep the
// DefaultScene values; feature points are taken from the file when present.
func LoadScene(path string) (Scene, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Scene{}, fmt.Errorf("scene file must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Scene{}, fmt.Errorf("failed to read scene file: %w", err)
	}

	s := DefaultScene()
	s.FeaturePoints = nil
	if err := json.Unmarshal(data, &s); err != nil {
		return Scene{}, fmt.Errorf("failed to parse scene JSON: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Scene{}, fmt.Errorf("invalid scene: %w", err)
	}
	return s, nil
}

// Validate checks the scene can be simulated.
func (s Scene) Validate() error {
	if s.ImageWidth <= 0 || s.ImageHeight <= 0 {
		return fmt.Errorf("image size must be positive, got %gx%g", s.ImageWidth, s.ImageHeight)
	}
	if s.Intrinsics.Fx <= 0 || s.Intrinsics.Fy <= 0 {
		return fmt.Errorf("focal lengths must be positive, got fx=%g fy=%g", s.Intrinsics.Fx, s.Intrinsics.Fy)
	}
	if !s.CameraPose.IsRigid() {
		return fmt.Errorf("camera_pose is not a rigid transform")
	}
	if s.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %g", s.FrameRate)
	}
	if s.HitToleranceDeg <= 0 || s.HitToleranceDeg >= 90 {
		return fmt.Errorf("hit_tolerance_deg must be in (0, 90), got %g", s.HitToleranceDeg)
	}
	return nil
}

// FrameInterval returns the time between simulated frames.
func (s Scene) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / s.FrameRate)
}

// ImageSize returns the sensor resolution.
func (s Scene) ImageSize() geom.Size {
	return geom.Size{Width: s.ImageWidth, Height: s.ImageHeight}
}
