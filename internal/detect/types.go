package detect

import (
	"context"
	"image"
	"time"

	"github.com/banshee-data/arlabel/internal/geom"
)

// Classification is one ranked interpretation of a detection.
type Classification struct {
	Identifier string  `json:"identifier"`
	Confidence float64 `json:"confidence"`
}

// DetectionResult is a single detected object as reported by the detector.
// Labels are ranked, most likely first. BoundingBox is in normalized image
// coordinates.
type DetectionResult struct {
	Labels      []Classification `json:"labels"`
	BoundingBox geom.Rect        `json:"bounding_box"`
}

// TopLabel returns the highest ranked classification.
func (r DetectionResult) TopLabel() (Classification, bool) {
	if len(r.Labels) == 0 {
		return Classification{}, false
	}
	return r.Labels[0], true
}

// Candidate is the detection a tap would anchor.
type Candidate struct {
	Label       string    `json:"label"`
	BoundingBox geom.Rect `json:"bounding_box"`
	Confidence  float64   `json:"confidence"`
	ObservedAt  time.Time `json:"observed_at"`
	FrameSeq    uint64    `json:"frame_seq"`
}

// Detector classifies objects in a camera image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]DetectionResult, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image) ([]DetectionResult, error)

func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]DetectionResult, error) {
	return f(ctx, img)
}

// LabelSink receives the text of the latest candidate. Implementations must
// not block the caller.
type LabelSink interface {
	SetLabel(text string)
}
