package anchor

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/arlabel/internal/arsession"
	"github.com/banshee-data/arlabel/internal/geom"
	"github.com/banshee-data/arlabel/internal/monitoring"
)

// HitTester answers hit tests in view pixel space.
type HitTester interface {
	HitTest(ctx context.Context, point geom.Point, types ...arsession.HitTestType) ([]arsession.HitResult, error)
}

// Locator finds the world transform under a screen point.
type Locator struct {
	session HitTester
	hitType arsession.HitTestType
	timeout time.Duration
}

// NewLocator creates a Locator. A zero timeout leaves the query bounded only
// by the caller's context.
func NewLocator(session HitTester, hitType arsession.HitTestType, timeout time.Duration) *Locator {
	if hitType == "" {
		hitType = arsession.HitTestFeaturePoint
	}
	return &Locator{session: session, hitType: hitType, timeout: timeout}
}

// Locate returns the world transform of the nearest hit. Every failure,
// including a timeout or a session error, is reported as ErrNoSurface.
func (l *Locator) Locate(ctx context.Context, point geom.Point) (geom.Transform, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	hits, err := l.session.HitTest(ctx, point, l.hitType)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		monitoring.Logf("hit test at (%.1f, %.1f) failed: %v", point.X, point.Y, err)
		return geom.Transform{}, fmt.Errorf("%w: %w", ErrNoSurface, err)
	}
	if len(hits) == 0 {
		return geom.Transform{}, ErrNoSurface
	}
	return hits[0].WorldTransform, nil
}
