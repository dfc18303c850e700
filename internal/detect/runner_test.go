package detect

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/banshee-data/arlabel/internal/arsession"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(seq uint64) *arsession.Frame {
	return &arsession.Frame{
		Seq:   seq,
		Image: image.NewGray(image.Rect(0, 0, 4, 3)),
	}
}

// blockingDetector holds every Detect call until release is closed.
type blockingDetector struct {
	started chan struct{}
	release chan struct{}
	results []DetectionResult
}

func newBlockingDetector(results []DetectionResult) *blockingDetector {
	return &blockingDetector{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
		results: results,
	}
}

func (d *blockingDetector) Detect(ctx context.Context, _ image.Image) ([]DetectionResult, error) {
	d.started <- struct{}{}
	<-d.release
	return d.results, nil
}

func TestRunner_DropsFramesWhileBusy(t *testing.T) {
	t.Parallel()
	d := newBlockingDetector([]DetectionResult{det("cup", 0.95, boxA)})
	s := NewSelector(DefaultSelectorConfig(), nil, nil)
	r := NewRunner(d, s, 0)
	ctx := context.Background()

	require.True(t, r.Submit(ctx, testFrame(1)))
	<-d.started
	assert.False(t, r.Submit(ctx, testFrame(2)))
	assert.False(t, r.Submit(ctx, testFrame(3)))

	close(d.release)
	r.wg.Wait()

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Submitted)
	assert.Equal(t, uint64(2), stats.Dropped)
	assert.Equal(t, uint64(1), stats.Completed)

	c, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, uint64(1), c.FrameSeq)

	// Free again once the previous inference finished.
	assert.True(t, r.Submit(ctx, testFrame(4)))
	r.wg.Wait()
}

func TestRunner_FailureIsSkipped(t *testing.T) {
	t.Parallel()
	calls := 0
	d := DetectorFunc(func(ctx context.Context, _ image.Image) ([]DetectionResult, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("model exploded")
		}
		return []DetectionResult{det("cup", 0.95, boxA)}, nil
	})
	s := NewSelector(DefaultSelectorConfig(), nil, nil)
	r := NewRunner(d, s, time.Second)
	ctx := context.Background()

	for seq := uint64(1); seq <= 3; seq++ {
		require.True(t, r.Submit(ctx, testFrame(seq)))
		r.wg.Wait()
	}

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(2), stats.Completed)

	c, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, uint64(3), c.FrameSeq)
}

func TestRunner_IgnoresFramesWithoutImage(t *testing.T) {
	t.Parallel()
	r := NewRunner(DetectorFunc(func(context.Context, image.Image) ([]DetectionResult, error) {
		t.Error("detector must not be called")
		return nil, nil
	}), NewSelector(DefaultSelectorConfig(), nil, nil), 0)

	assert.False(t, r.Submit(context.Background(), nil))
	assert.False(t, r.Submit(context.Background(), &arsession.Frame{Seq: 1}))
}

func TestRunner_ResultAfterStopIsDiscarded(t *testing.T) {
	t.Parallel()
	d := newBlockingDetector([]DetectionResult{det("cup", 0.95, boxA)})
	sink := &recordingSink{}
	s := NewSelector(DefaultSelectorConfig(), sink, nil)
	r := NewRunner(d, s, 0)

	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan *arsession.Frame, 1)
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, frames) }()

	frames <- testFrame(1)
	<-d.started
	cancel()
	close(d.release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, ok := s.Current()
	assert.False(t, ok)
	assert.Empty(t, sink.Labels())
}

func TestRunner_RunReturnsWhenFramesClosed(t *testing.T) {
	t.Parallel()
	s := NewSelector(DefaultSelectorConfig(), nil, nil)
	r := NewRunner(NewReplayDetector([][]DetectionResult{{det("cup", 0.95, boxA)}}), s, 0)

	frames := make(chan *arsession.Frame, 1)
	frames <- testFrame(1)
	close(frames)

	require.NoError(t, r.Run(context.Background(), frames))
	c, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "cup", c.Label)
}
