package config

import (
	"fmt"
	"os"
	"strconv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARLABEL_"

// ApplyEnv overrides fields from ARLABEL_* variables found through lookup
// (os.LookupEnv when nil) and re-validates the result.
func (c *PipelineConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	strs := map[string]**string{
		"SELECTION_POLICY":         &c.SelectionPolicy,
		"ORIENTATION":              &c.Orientation,
		"LOCATE_TIMEOUT":           &c.LocateTimeout,
		"DETECTOR_URL":             &c.DetectorURL,
		"DETECTOR_RECONNECT_DELAY": &c.DetectorReconnectDelay,
		"INFERENCE_TIMEOUT":        &c.InferenceTimeout,
		"JOURNAL_PATH":             &c.JournalPath,
	}
	for key, field := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*field = ptrString(v)
		}
	}

	floats := map[string]**float64{
		"CONFIDENCE_THRESHOLD": &c.ConfidenceThreshold,
		"VIEWPORT_WIDTH":       &c.ViewportWidth,
		"VIEWPORT_HEIGHT":      &c.ViewportHeight,
	}
	for key, field := range floats {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s%s %q: %w", EnvPrefix, key, v, err)
		}
		*field = ptrFloat64(f)
	}

	if v, ok := lookup(EnvPrefix + "RELEASE_ON_NO_SURFACE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sRELEASE_ON_NO_SURFACE %q: %w", EnvPrefix, v, err)
		}
		c.ReleaseOnNoSurface = ptrBool(b)
	}

	return c.Validate()
}
