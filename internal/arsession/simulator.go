package arsession

import (
	"context"
	"errors"
	"image"
	"math"
	"sort"
	"sync"

	"github.com/banshee-data/arlabel/internal/geom"
	"github.com/banshee-data/arlabel/internal/monitoring"
	"github.com/banshee-data/arlabel/internal/timeutil"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

// nearPlaneMeters excludes feature points closer than this along the ray.
const nearPlaneMeters = 0.05

// ErrNotRunning is returned by HitTest before the first frame exists.
var ErrNotRunning = errors.New("session has not produced a frame")

// SimulatorOptions configures the view a Simulator answers hit tests for.
type SimulatorOptions struct {
	Viewport    geom.Size
	Orientation geom.Orientation
	Clock       timeutil.Clock

	// OnAnchorAdded is invoked after a named anchor is added, outside the
	// session lock. It stands in for the renderer's node-added callback.
	OnAnchorAdded func(Anchor)
}

// Simulator is an in-process AR session over a static Scene.
type Simulator struct {
	opts  SimulatorOptions
	clock timeutil.Clock

	mu      sync.RWMutex
	scene   Scene
	seq     uint64
	current *Frame
	anchors []Anchor

	frames chan *Frame
	image  image.Image
}

// NewSimulator validates scene and creates a session that has not yet
// produced any frame.
func NewSimulator(scene Scene, opts SimulatorOptions) (*Simulator, error) {
	if err := scene.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	img := image.NewGray(image.Rect(0, 0, int(scene.ImageWidth), int(scene.ImageHeight)))
	for i := range img.Pix {
		img.Pix[i] = 128
	}

	return &Simulator{
		opts:   opts,
		clock:  opts.Clock,
		scene:  scene,
		frames: make(chan *Frame, 1),
		image:  img,
	}, nil
}

// Frames delivers new frames. When the consumer falls behind, the older
// undelivered frame is replaced by the newest one.
func (s *Simulator) Frames() <-chan *Frame {
	return s.frames
}

// Run produces frames at the scene frame rate until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.scene.FrameInterval())
	defer ticker.Stop()

	s.Step()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			s.Step()
		}
	}
}

// Step captures one frame from the current camera pose and publishes it.
func (s *Simulator) Step() *Frame {
	s.mu.Lock()
	s.seq++
	f := &Frame{
		Seq:       s.seq,
		Timestamp: s.clock.Now(),
		Image:     s.image,
		ImageSize: s.scene.ImageSize(),
		Camera: Camera{
			Intrinsics: s.scene.Intrinsics,
			Pose:       s.scene.CameraPose,
		},
	}
	s.current = f
	s.mu.Unlock()

	for {
		select {
		case s.frames <- f:
			return f
		default:
		}
		// Drop the stale frame and retry.
		select {
		case <-s.frames:
		default:
		}
	}
}

// CurrentFrame returns the most recent frame.
func (s *Simulator) CurrentFrame() (*Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current != nil
}

// SetCameraPose moves the camera. It takes effect from the next frame.
func (s *Simulator) SetCameraPose(pose geom.Transform) error {
	if !pose.IsRigid() {
		return errors.New("camera pose is not a rigid transform")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scene.CameraPose = pose
	return nil
}

// FeaturePoints returns a copy of the scene's feature points.
func (s *Simulator) FeaturePoints() []r3.Vec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]r3.Vec(nil), s.scene.FeaturePoints...)
}

// HitTest casts a ray through a point in view pixel space using the current
// frame's camera and returns the matching feature points, nearest first.
// Each result carries the camera's rotation at the feature point's position.
func (s *Simulator) HitTest(ctx context.Context, point geom.Point, types ...HitTestType) ([]HitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !wantsFeaturePoints(types) {
		return nil, nil
	}

	s.mu.RLock()
	frame := s.current
	points := s.scene.FeaturePoints
	tolerance := s.scene.HitToleranceDeg * math.Pi / 180
	s.mu.RUnlock()
	if frame == nil {
		return nil, ErrNotRunning
	}

	origin, dir, ok := s.ray(frame, point)
	if !ok {
		return nil, nil
	}

	var hits []HitResult
	for _, p := range points {
		w := r3.Sub(p, origin)
		along := r3.Dot(w, dir)
		if along <= nearPlaneMeters {
			continue
		}
		angle := math.Acos(math.Min(1, along/r3.Norm(w)))
		if angle > tolerance {
			continue
		}
		hits = append(hits, HitResult{
			Type:           HitTestFeaturePoint,
			Distance:       along,
			WorldTransform: frame.Camera.Pose.WithPosition(p),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	return hits, nil
}

// ray returns the world-space origin and unit direction through a view pixel.
func (s *Simulator) ray(frame *Frame, point geom.Point) (origin, dir r3.Vec, ok bool) {
	vp := s.opts.Viewport
	if vp.IsEmpty() {
		return r3.Vec{}, r3.Vec{}, false
	}
	inv, ok := frame.DisplayTransform(s.opts.Orientation, vp).Invert()
	if !ok {
		return r3.Vec{}, r3.Vec{}, false
	}
	img := inv.ApplyPoint(geom.Point{X: point.X / vp.Width, Y: point.Y / vp.Height})

	k := frame.Camera.Intrinsics
	px := img.X * frame.ImageSize.Width
	py := img.Y * frame.ImageSize.Height
	camDir := r3.Vec{X: (px - k.Cx) / k.Fx, Y: -(py - k.Cy) / k.Fy, Z: -1}

	pose := frame.Camera.Pose
	return pose.Position(), r3.Unit(pose.ApplyDirection(camDir)), true
}

func wantsFeaturePoints(types []HitTestType) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == HitTestFeaturePoint {
			return true
		}
	}
	return false
}

// AddAnchor starts tracking a. An empty ID is filled with a new UUID.
func (s *Simulator) AddAnchor(ctx context.Context, a Anchor) (Anchor, error) {
	if err := ctx.Err(); err != nil {
		return Anchor{}, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock.Now()
	}

	s.mu.Lock()
	s.anchors = append(s.anchors, a)
	s.mu.Unlock()

	if a.Name != "" && s.opts.OnAnchorAdded != nil {
		s.opts.OnAnchorAdded(a)
	}
	return a, nil
}

// Anchors returns the tracked anchors in insertion order.
func (s *Simulator) Anchors() []Anchor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Anchor(nil), s.anchors...)
}

// Reset removes every anchor and restarts tracking. The frame counter keeps
// running.
func (s *Simulator) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	n := len(s.anchors)
	s.anchors = nil
	s.current = nil
	s.mu.Unlock()
	monitoring.Logf("session reset: removed %d anchors", n)
	return nil
}
