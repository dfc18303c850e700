package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/arlabel/internal/geom"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

// Selection policies accepted by selection_policy.
const (
	// SelectLast keeps the last qualifying detection of a frame.
	SelectLast = "last"
	// SelectHighest keeps the qualifying detection with the highest confidence.
	SelectHighest = "highest"
)

// JournalDisabled as journal_path turns the placement journal off.
const JournalDisabled = "none"

// HitTestFeaturePoint is the only hit-test type the locator issues.
const HitTestFeaturePoint = "feature_point"

// PipelineConfig is the root configuration for the anchor pipeline.
// Every field is optional; the Get* accessors fall back to the defaults so a
// partial file is safe.
type PipelineConfig struct {
	// Detection selection
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	SelectionPolicy     *string  `json:"selection_policy,omitempty"`

	// Coordinate transform
	Orientation    *string  `json:"orientation,omitempty"`
	ViewportWidth  *float64 `json:"viewport_width,omitempty"`
	ViewportHeight *float64 `json:"viewport_height,omitempty"`

	// Spatial lookup
	HitTestType        *string `json:"hit_test_type,omitempty"`
	LocateTimeout      *string `json:"locate_timeout,omitempty"` // duration string like "50ms"
	ReleaseOnNoSurface *bool   `json:"release_on_no_surface,omitempty"`

	// Detector integration
	DetectorURL            *string `json:"detector_url,omitempty"`
	DetectorReconnectDelay *string `json:"detector_reconnect_delay,omitempty"`
	InferenceTimeout       *string `json:"inference_timeout,omitempty"`

	// Placement journal
	JournalPath *string `json:"journal_path,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }

// EmptyPipelineConfig returns a PipelineConfig with all fields unset.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// DefaultPipelineConfig returns a PipelineConfig with every field set to the
// value its accessor would fall back to.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		ConfidenceThreshold:    ptrFloat64(0.9),
		SelectionPolicy:        ptrString(SelectLast),
		Orientation:            ptrString(geom.OrientationPortrait.String()),
		ViewportWidth:          ptrFloat64(1080),
		ViewportHeight:         ptrFloat64(1920),
		HitTestType:            ptrString(HitTestFeaturePoint),
		LocateTimeout:          ptrString("50ms"),
		ReleaseOnNoSurface:     ptrBool(false),
		DetectorURL:            ptrString(""),
		DetectorReconnectDelay: ptrString("2s"),
		InferenceTimeout:       ptrString("2s"),
		JournalPath:            ptrString("arlabel.db"),
	}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *PipelineConfig) Validate() error {
	if c.ConfidenceThreshold != nil {
		if !finite(*c.ConfidenceThreshold) || *c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1 {
			return fmt.Errorf("confidence_threshold must be between 0 and 1, got %f", *c.ConfidenceThreshold)
		}
	}

	if c.SelectionPolicy != nil {
		switch *c.SelectionPolicy {
		case SelectLast, SelectHighest:
		default:
			return fmt.Errorf("selection_policy must be %q or %q, got %q", SelectLast, SelectHighest, *c.SelectionPolicy)
		}
	}

	if c.Orientation != nil {
		if _, err := geom.ParseOrientation(*c.Orientation); err != nil {
			return fmt.Errorf("invalid orientation: %w", err)
		}
	}

	if c.ViewportWidth != nil && (!finite(*c.ViewportWidth) || *c.ViewportWidth <= 0) {
		return fmt.Errorf("viewport_width must be positive and finite, got %f", *c.ViewportWidth)
	}
	if c.ViewportHeight != nil && (!finite(*c.ViewportHeight) || *c.ViewportHeight <= 0) {
		return fmt.Errorf("viewport_height must be positive and finite, got %f", *c.ViewportHeight)
	}

	if c.HitTestType != nil && *c.HitTestType != HitTestFeaturePoint {
		return fmt.Errorf("hit_test_type %q is not supported", *c.HitTestType)
	}

	for name, v := range map[string]*string{
		"locate_timeout":           c.LocateTimeout,
		"detector_reconnect_delay": c.DetectorReconnectDelay,
		"inference_timeout":        c.InferenceTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	return nil
}

// GetConfidenceThreshold returns the confidence_threshold value or the default.
func (c *PipelineConfig) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.9
	}
	return *c.ConfidenceThreshold
}

// GetSelectionPolicy returns the selection_policy value or the default.
func (c *PipelineConfig) GetSelectionPolicy() string {
	if c.SelectionPolicy == nil || *c.SelectionPolicy == "" {
		return SelectLast
	}
	return *c.SelectionPolicy
}

// GetOrientation returns the parsed orientation or portrait.
func (c *PipelineConfig) GetOrientation() geom.Orientation {
	if c.Orientation == nil {
		return geom.OrientationPortrait
	}
	o, err := geom.ParseOrientation(*c.Orientation)
	if err != nil {
		return geom.OrientationPortrait
	}
	return o
}

// GetViewport returns the configured viewport size.
func (c *PipelineConfig) GetViewport() geom.Size {
	vp := geom.Size{Width: 1080, Height: 1920}
	if c.ViewportWidth != nil {
		vp.Width = *c.ViewportWidth
	}
	if c.ViewportHeight != nil {
		vp.Height = *c.ViewportHeight
	}
	return vp
}

// GetHitTestType returns the hit_test_type value or the default.
func (c *PipelineConfig) GetHitTestType() string {
	if c.HitTestType == nil || *c.HitTestType == "" {
		return HitTestFeaturePoint
	}
	return *c.HitTestType
}

// GetLocateTimeout parses and returns the LocateTimeout as a time.Duration.
func (c *PipelineConfig) GetLocateTimeout() time.Duration {
	return parseDurationOr(c.LocateTimeout, 50*time.Millisecond)
}

// GetReleaseOnNoSurface returns the release_on_no_surface value or the default.
func (c *PipelineConfig) GetReleaseOnNoSurface() bool {
	if c.ReleaseOnNoSurface == nil {
		return false
	}
	return *c.ReleaseOnNoSurface
}

// GetDetectorURL returns the websocket URL of the remote detector, empty when unset.
func (c *PipelineConfig) GetDetectorURL() string {
	if c.DetectorURL == nil {
		return ""
	}
	return *c.DetectorURL
}

// GetDetectorReconnectDelay parses and returns the DetectorReconnectDelay.
func (c *PipelineConfig) GetDetectorReconnectDelay() time.Duration {
	return parseDurationOr(c.DetectorReconnectDelay, 2*time.Second)
}

// GetInferenceTimeout parses and returns the InferenceTimeout.
func (c *PipelineConfig) GetInferenceTimeout() time.Duration {
	return parseDurationOr(c.InferenceTimeout, 2*time.Second)
}

// GetJournalPath returns the journal_path value or the default. It returns ""
// when journal_path is JournalDisabled.
func (c *PipelineConfig) GetJournalPath() string {
	if c.JournalPath == nil || *c.JournalPath == "" {
		return "arlabel.db"
	}
	if *c.JournalPath == JournalDisabled {
		return ""
	}
	return *c.JournalPath
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
