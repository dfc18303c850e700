package detect

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/arlabel/internal/arsession"
	"github.com/banshee-data/arlabel/internal/monitoring"
)

// RunnerStats counts what happened to the frames offered to a Runner.
type RunnerStats struct {
	Submitted uint64 `json:"submitted"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
	Completed uint64 `json:"completed"`
}

// Runner feeds session frames through a Detector into a Selector.
type Runner struct {
	detector Detector
	selector *Selector
	timeout  time.Duration

	busy atomic.Bool
	wg   sync.WaitGroup

	submitted atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
	completed atomic.Uint64
}

// NewRunner creates a Runner. A zero timeout leaves inference unbounded.
func NewRunner(d Detector, s *Selector, timeout time.Duration) *Runner {
	return &Runner{detector: d, selector: s, timeout: timeout}
}

// Run consumes frames until ctx is cancelled or frames is closed, then waits
// for the in-flight inference to finish. Results completing after ctx is
// cancelled are discarded.
func (r *Runner) Run(ctx context.Context, frames <-chan *arsession.Frame) error {
	defer r.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			r.Submit(ctx, f)
		}
	}
}

// Submit starts inference on f unless one is already running, in which case
// the frame is dropped and Submit returns false.
func (r *Runner) Submit(ctx context.Context, f *arsession.Frame) bool {
	if f == nil || f.Image == nil {
		return false
	}
	if !r.busy.CompareAndSwap(false, true) {
		r.dropped.Add(1)
		return false
	}
	r.submitted.Add(1)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.busy.Store(false)
		r.infer(ctx, f)
	}()
	return true
}

func (r *Runner) infer(ctx context.Context, f *arsession.Frame) {
	ictx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	results, err := r.detector.Detect(ictx, f.Image)
	if err != nil {
		r.failed.Add(1)
		monitoring.Logf("object detection error on frame %d: %v", f.Seq, err)
		return
	}
	r.completed.Add(1)

	if c, ok := r.selector.Update(ctx, f.Seq, results); ok {
		monitoring.Debugf("frame %d: candidate %q (%.3f)", f.Seq, c.Label, c.Confidence)
	}
}

// Stats returns a snapshot of the frame counters.
func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		Submitted: r.submitted.Load(),
		Dropped:   r.dropped.Load(),
		Failed:    r.failed.Load(),
		Completed: r.completed.Load(),
	}
}
