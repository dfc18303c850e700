package detect

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/arlabel/internal/config"
	"github.com/banshee-data/arlabel/internal/monitoring"
	"github.com/banshee-data/arlabel/internal/timeutil"
)

// SelectorConfig holds the detection selection parameters.
type SelectorConfig struct {
	Threshold float64 // Top-label confidence must be strictly above this
	Policy    string  // config.SelectLast or config.SelectHighest
}

// DefaultSelectorConfig returns the documented defaults.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfigFromPipeline(config.EmptyPipelineConfig())
}

// SelectorConfigFromPipeline builds a SelectorConfig from a loaded PipelineConfig.
func SelectorConfigFromPipeline(cfg *config.PipelineConfig) SelectorConfig {
	return SelectorConfig{
		Threshold: cfg.GetConfidenceThreshold(),
		Policy:    cfg.GetSelectionPolicy(),
	}
}

// Selector maintains the current Candidate.
type Selector struct {
	cfg     SelectorConfig
	sink    LabelSink
	clock   timeutil.Clock
	current atomic.Pointer[Candidate]

	// publishMu orders Store and SetLabel across concurrent updates so the
	// displayed label is always the latest candidate's.
	publishMu sync.Mutex
}

// NewSelector creates a Selector. sink may be nil.
func NewSelector(cfg SelectorConfig, sink LabelSink, clock timeutil.Clock) *Selector {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Selector{cfg: cfg, sink: sink, clock: clock}
}

// Select applies the selection policy to one frame's results without touching
// the current Candidate. ok is false when nothing qualifies.
func (s *Selector) Select(results []DetectionResult) (c Candidate, ok bool) {
	for _, r := range results {
		top, has := r.TopLabel()
		if !has || !(top.Confidence > s.cfg.Threshold) {
			continue
		}
		if ok && s.cfg.Policy == config.SelectHighest && top.Confidence < c.Confidence {
			continue
		}
		c = Candidate{
			Label:       top.Identifier,
			BoundingBox: r.BoundingBox,
			Confidence:  top.Confidence,
		}
		ok = true
	}
	return c, ok
}

// Update selects from results and, if something qualifies and ctx is still
// live, replaces the current Candidate and publishes its label.
func (s *Selector) Update(ctx context.Context, frameSeq uint64, results []DetectionResult) (Candidate, bool) {
	c, ok := s.Select(results)
	if !ok {
		return Candidate{}, false
	}
	if ctx.Err() != nil {
		monitoring.Debugf("discarding detection for frame %d: %v", frameSeq, ctx.Err())
		return Candidate{}, false
	}

	c.ObservedAt = s.clock.Now()
	c.FrameSeq = frameSeq
	snapshot := c

	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.current.Store(&snapshot)
	if s.sink != nil {
		s.sink.SetLabel(c.Label)
	}
	return c, true
}

// Current returns the latest candidate, if any frame has produced one.
func (s *Selector) Current() (Candidate, bool) {
	p := s.current.Load()
	if p == nil {
		return Candidate{}, false
	}
	return *p, true
}
