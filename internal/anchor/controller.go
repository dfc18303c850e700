package anchor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/arlabel/internal/arsession"
	"github.com/banshee-data/arlabel/internal/config"
	"github.com/banshee-data/arlabel/internal/detect"
	"github.com/banshee-data/arlabel/internal/geom"
	"github.com/banshee-data/arlabel/internal/monitoring"
	"github.com/banshee-data/arlabel/internal/timeutil"
	"github.com/google/uuid"
)

// WorldAnchor is a named pose tracked by the AR session.
type WorldAnchor = arsession.Anchor

// Session is the part of the AR session the controller drives.
type Session interface {
	HitTester
	CurrentFrame() (*arsession.Frame, bool)
	AddAnchor(ctx context.Context, a WorldAnchor) (WorldAnchor, error)
	Reset(ctx context.Context) error
}

// CandidateSource provides the candidate a tap anchors. *detect.Selector
// implements it.
type CandidateSource interface {
	Current() (detect.Candidate, bool)
}

// PlacementRecorder persists placement attempts.
type PlacementRecorder interface {
	RecordPlacement(ctx context.Context, p Placement) error
	NewSession(ctx context.Context) error
}

// State is a placement stage.
type State int

const (
	StateIdle State = iota
	StateClaiming
	StateTransforming
	StateLocating
	StateCreating
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClaiming:
		return "claiming"
	case StateTransforming:
		return "transforming"
	case StateLocating:
		return "locating"
	case StateCreating:
		return "creating"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateAborted; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown placement state %q", text)
}

// Placement is the outcome of one PlaceAnchor call.
type Placement struct {
	ID          string           `json:"id"`
	Candidate   detect.Candidate `json:"candidate"`
	ViewBox     geom.Rect        `json:"view_box"`
	ScreenPoint geom.Point       `json:"screen_point"`
	Anchor      *WorldAnchor     `json:"anchor,omitempty"`
	State       State            `json:"state"`
	AbortedAt   State            `json:"aborted_at,omitempty"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
}

// Succeeded reports whether the placement created an anchor.
func (p Placement) Succeeded() bool { return p.State == StateDone }

// ControllerConfig holds the placement parameters.
type ControllerConfig struct {
	Orientation        geom.Orientation
	Viewport           geom.Size
	HitTestType        arsession.HitTestType
	LocateTimeout      time.Duration
	ReleaseOnNoSurface bool
}

// ControllerConfigFromPipeline builds a ControllerConfig from a loaded
// PipelineConfig.
func ControllerConfigFromPipeline(cfg *config.PipelineConfig) ControllerConfig {
	return ControllerConfig{
		Orientation:        cfg.GetOrientation(),
		Viewport:           cfg.GetViewport(),
		HitTestType:        arsession.HitTestType(cfg.GetHitTestType()),
		LocateTimeout:      cfg.GetLocateTimeout(),
		ReleaseOnNoSurface: cfg.GetReleaseOnNoSurface(),
	}
}

// Controller places anchors for tapped candidates.
type Controller struct {
	cfg        ControllerConfig
	session    Session
	candidates CandidateSource
	locator    *Locator
	dedup      *Deduplicator
	clock      timeutil.Clock
	recorder   PlacementRecorder

	// Placements hold the read lock until recorded; Reset takes the write
	// lock so no placement spans two sessions.
	sessionMu sync.RWMutex
}

// NewController creates a Controller. candidates and clock may be nil.
func NewController(cfg ControllerConfig, session Session, candidates CandidateSource, clock timeutil.Clock) *Controller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Controller{
		cfg:        cfg,
		session:    session,
		candidates: candidates,
		locator:    NewLocator(session, cfg.HitTestType, cfg.LocateTimeout),
		dedup:      NewDeduplicator(),
		clock:      clock,
	}
}

// SetRecorder attaches a journal for placement attempts. Call before use.
func (c *Controller) SetRecorder(r PlacementRecorder) {
	c.recorder = r
}

// PlacedLabels returns the labels anchored this session.
func (c *Controller) PlacedLabels() []string {
	return c.dedup.Labels()
}

// IsPlaced reports whether label is already anchored in this session.
func (c *Controller) IsPlaced(label string) bool {
	return c.dedup.Contains(label)
}

// Tap places an anchor for the current candidate.
func (c *Controller) Tap(ctx context.Context) (Placement, error) {
	if c.candidates == nil {
		return Placement{}, ErrNoCandidate
	}
	cand, ok := c.candidates.Current()
	if !ok {
		return Placement{}, ErrNoCandidate
	}
	return c.PlaceAnchor(ctx, cand)
}

// PlaceAnchor claims the candidate's label, maps its box center to the view,
// hit tests under it and adds a named anchor at the result. A returned error
// is a *PlacementError wrapping one of the package sentinels or a session
// error.
func (c *Controller) PlaceAnchor(ctx context.Context, cand detect.Candidate) (Placement, error) {
	p := Placement{
		ID:        uuid.NewString(),
		Candidate: cand,
		State:     StateIdle,
		StartedAt: c.clock.Now(),
	}

	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	p, err := c.place(ctx, p)

	if c.recorder != nil {
		if rerr := c.recorder.RecordPlacement(context.WithoutCancel(ctx), p); rerr != nil {
			monitoring.Logf("failed to record placement %s: %v", p.ID, rerr)
		}
	}
	return p, err
}

func (c *Controller) place(ctx context.Context, p Placement) (Placement, error) {
	label := p.Candidate.Label

	p.State = StateClaiming
	if !c.dedup.TryClaim(label) {
		return abort(p, ErrAlreadyPlaced)
	}

	p.State = StateTransforming
	frame, ok := c.session.CurrentFrame()
	if !ok {
		return abort(p, ErrNoFrame)
	}
	p.ViewBox = ToViewPixelSpace(p.Candidate.BoundingBox, frame, c.cfg.Orientation, c.cfg.Viewport)
	p.ScreenPoint = p.ViewBox.Center()

	p.State = StateLocating
	transform, err := c.locator.Locate(ctx, p.ScreenPoint)
	if err != nil {
		if c.cfg.ReleaseOnNoSurface {
			c.dedup.Release(label)
		}
		return abort(p, err)
	}

	p.State = StateCreating
	a, err := c.session.AddAnchor(ctx, WorldAnchor{Name: label, Transform: transform})
	if err != nil {
		return abort(p, fmt.Errorf("failed to add anchor: %w", err))
	}

	p.Anchor = &a
	p.State = StateDone
	monitoring.Logf("placed %q at (%.3f, %.3f, %.3f)", label, transform[3], transform[7], transform[11])
	return p, nil
}

func abort(p Placement, err error) (Placement, error) {
	p.AbortedAt = p.State
	p.State = StateAborted
	p.Error = err.Error()
	if !errors.Is(err, ErrAlreadyPlaced) {
		monitoring.Logf("placement of %q aborted while %s: %v", p.Candidate.Label, p.AbortedAt, err)
	}
	return p, &PlacementError{State: p.AbortedAt, Err: err}
}

// Reset restarts session tracking, which removes every anchor, and forgets
// every placed label. The journal moves to a new session. Reset waits for
// placements already in progress, which finish in the old session.
func (c *Controller) Reset(ctx context.Context) error {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	if err := c.session.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	c.dedup.Reset()
	if c.recorder != nil {
		if err := c.recorder.NewSession(ctx); err != nil {
			monitoring.Logf("failed to start journal session: %v", err)
		}
	}
	return nil
}
